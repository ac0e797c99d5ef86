package discord

import (
	"context"
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"

	"github.com/mlukaszek/steel-llama/internal/config"
	"github.com/mlukaszek/steel-llama/internal/model"
	"github.com/mlukaszek/steel-llama/internal/ollama"
	"github.com/mlukaszek/steel-llama/internal/session"
)

// Messenger is the slice of the Discord API the bot talks through.
// Tests substitute a scripted implementation.
type Messenger interface {
	SendMessage(channelID, content string) (*discordgo.Message, error)
	EditMessage(channelID, messageID, content string) (*discordgo.Message, error)
	ChannelHistory(channelID string, limit int) ([]*discordgo.Message, error)
}

// Backend is the streaming surface of the LLM client used by the
// respond path.
type Backend interface {
	ChatStream(ctx context.Context, model string, msgs []ollama.Message) (<-chan ollama.Chunk, <-chan error)
	GenerateStream(ctx context.Context, model, prompt string) (<-chan ollama.Chunk, <-chan error)
}

// Bot routes prefixed channel messages to session and model operations.
type Bot struct {
	cfg       *config.Config
	store     *session.Store
	catalogue *model.Catalogue
	backend   Backend
	messenger Messenger
	editor    *Editor

	ctx context.Context

	selfID   string
	selfName string
}

// New wires a bot around its collaborators. The gateway identity is
// filled in by the ready event.
func New(cfg *config.Config, store *session.Store, catalogue *model.Catalogue, backend Backend, messenger Messenger) *Bot {
	return &Bot{
		cfg:       cfg,
		store:     store,
		catalogue: catalogue,
		backend:   backend,
		messenger: messenger,
		editor:    NewEditor(messenger, cfg.Bot.EditDelay),
		ctx:       context.Background(),
	}
}

// Run connects to the Discord gateway and serves until ctx is done.
func Run(ctx context.Context, cfg *config.Config, store *session.Store, catalogue *model.Catalogue, backend Backend) error {
	dg, err := discordgo.New("Bot " + cfg.Bot.DiscordAPIKey)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	// Reading message text from channels requires the privileged
	// message-content intent.
	dg.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	bot := New(cfg, store, catalogue, backend, &gatewayMessenger{dg: dg})
	bot.ctx = ctx
	dg.AddHandler(bot.onReady)
	dg.AddHandler(bot.onMessageCreate)

	if err := dg.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	defer dg.Close()

	<-ctx.Done()
	log.Printf("[discord] shutting down")
	return nil
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.selfID = r.User.ID
	b.selfName = r.User.Username
	log.Printf("[discord] Logged in as %s!", r.User.String())
}

func (b *Bot) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == b.selfID || m.Author.Bot {
		return
	}
	// Command handling runs off the gateway dispatch goroutine so a
	// streaming response never stalls event delivery.
	go b.dispatch(b.ctx, m.Message)
}

// gatewayMessenger adapts *discordgo.Session to the Messenger slice.
type gatewayMessenger struct {
	dg *discordgo.Session
}

func (g *gatewayMessenger) SendMessage(channelID, content string) (*discordgo.Message, error) {
	return g.dg.ChannelMessageSend(channelID, content)
}

func (g *gatewayMessenger) EditMessage(channelID, messageID, content string) (*discordgo.Message, error) {
	return g.dg.ChannelMessageEdit(channelID, messageID, content)
}

func (g *gatewayMessenger) ChannelHistory(channelID string, limit int) ([]*discordgo.Message, error) {
	return g.dg.ChannelMessages(channelID, limit, "", "", "")
}
