package discord

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/mlukaszek/steel-llama/internal/config"
	"github.com/mlukaszek/steel-llama/internal/model"
	"github.com/mlukaszek/steel-llama/internal/ollama"
	"github.com/mlukaszek/steel-llama/internal/session"
	"github.com/mlukaszek/steel-llama/internal/testutil"
)

type sentMessage struct {
	Channel string
	ID      string
	Content string
}

// fakeMessenger records sends and edits and serves a scripted channel
// history, newest first like the real API.
type fakeMessenger struct {
	mu        sync.Mutex
	nextID    int
	sends     []sentMessage
	edits     []sentMessage
	history   []*discordgo.Message
	histErr   error
	histLimit int
}

func (f *fakeMessenger) SendMessage(channelID, content string) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := strconv.Itoa(9000 + f.nextID)
	f.sends = append(f.sends, sentMessage{Channel: channelID, ID: id, Content: content})
	return &discordgo.Message{ID: id, ChannelID: channelID, Content: content, Timestamp: time.Now()}, nil
}

func (f *fakeMessenger) EditMessage(channelID, messageID, content string) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, sentMessage{Channel: channelID, ID: messageID, Content: content})
	return &discordgo.Message{ID: messageID, ChannelID: channelID, Content: content}, nil
}

func (f *fakeMessenger) ChannelHistory(channelID string, limit int) ([]*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histLimit = limit
	if f.histErr != nil {
		return nil, f.histErr
	}
	if len(f.history) > limit {
		return f.history[:limit], nil
	}
	return f.history, nil
}

func (f *fakeMessenger) sentContents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sends))
	for i, s := range f.sends {
		out[i] = s.Content
	}
	return out
}

func (f *fakeMessenger) lastSend(t *testing.T) sentMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sends) == 0 {
		t.Fatal("no messages sent")
	}
	return f.sends[len(f.sends)-1]
}

func (f *fakeMessenger) lastEdit(t *testing.T) sentMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		t.Fatal("no messages edited")
	}
	return f.edits[len(f.edits)-1]
}

// fakeBackend returns a pre-loaded stream and records what was asked of it.
type fakeBackend struct {
	mu        sync.Mutex
	chunks    []ollama.Chunk
	err       error
	chatCalls int
	genCalls  int
	chatModel string
	chatMsgs  []ollama.Message
	genModel  string
	genPrompt string
}

func (f *fakeBackend) stream() (<-chan ollama.Chunk, <-chan error) {
	return testutil.Stream(f.err, f.chunks...)
}

func (f *fakeBackend) ChatStream(_ context.Context, model string, msgs []ollama.Message) (<-chan ollama.Chunk, <-chan error) {
	f.mu.Lock()
	f.chatCalls++
	f.chatModel = model
	f.chatMsgs = msgs
	f.mu.Unlock()
	return f.stream()
}

func (f *fakeBackend) GenerateStream(_ context.Context, model, prompt string) (<-chan ollama.Chunk, <-chan error) {
	f.mu.Lock()
	f.genCalls++
	f.genModel = model
	f.genPrompt = prompt
	f.mu.Unlock()
	return f.stream()
}

// fakeModelBackend feeds the catalogue a fixed installed-model listing.
type fakeModelBackend struct {
	models []ollama.Model
	infos  map[string]map[string]any
}

func (f *fakeModelBackend) List(context.Context) ([]ollama.Model, error) {
	return f.models, nil
}

func (f *fakeModelBackend) Show(_ context.Context, name string) (map[string]any, error) {
	return f.infos[name], nil
}

func testConfig() *config.Config {
	return &config.Config{
		Bot: config.BotConfig{
			DiscordAPIKey:         "token",
			BotPrefix:             "$",
			EditDelay:             time.Millisecond,
			MaxMessagesForContext: 5,
			SessionDBPath:         "unused",
			DefaultSystemPrompt:   "Be helpful.",
		},
		Admin: config.AdminConfig{ID: 99},
		Models: config.ModelsConfig{
			DefaultModel:    "qwen3-8b",
			DefaultModelTag: "latest",
			Models: []config.ModelEntry{
				{Name: "qwen3-8b", Config: config.ModelConfig{
					ThinkingPrefix: "<think>",
					ThinkingSuffix: "</think>",
				}},
			},
		},
	}
}

func newTestBot(t *testing.T, fm *fakeMessenger, fb *fakeBackend) (*Bot, *session.Store) {
	return newTestBotWithConfig(t, testConfig(), fm, fb)
}

func newTestBotWithConfig(t *testing.T, cfg *config.Config, fm *fakeMessenger, fb *fakeBackend) (*Bot, *session.Store) {
	t.Helper()
	store, err := session.Open(filepath.Join(t.TempDir(), "bot.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	catalogue := model.NewCatalogue(&fakeModelBackend{
		models: []ollama.Model{
			{Name: "qwen3-8b:latest", Size: 5 << 30, ParameterSize: "8.2B", QuantizationLevel: "Q4_K_M"},
		},
		infos: map[string]map[string]any{
			"qwen3-8b:latest": {"qwen3.context_length": float64(40960)},
		},
	}, cfg.Models)

	b := New(cfg, store, catalogue, fb, fm)
	b.selfID = "500"
	b.selfName = "SteelLlama"
	return b, store
}

// userMessage builds an incoming channel message from a plain user.
func userMessage(id, authorID, username, content string) *discordgo.Message {
	return &discordgo.Message{
		ID:        id,
		ChannelID: "chan1",
		Content:   content,
		Timestamp: time.Now(),
		Author:    &discordgo.User{ID: authorID, Username: username},
	}
}
