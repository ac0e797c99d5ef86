package discord

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/mlukaszek/steel-llama/internal/llm"
	"github.com/mlukaszek/steel-llama/internal/model"
	"github.com/mlukaszek/steel-llama/internal/ollama"
	"github.com/mlukaszek/steel-llama/internal/session"
)

const (
	placeholderStarting   = "*Starting up...*"
	placeholderHistory    = "*Reading chat history...*"
	placeholderProcessing = "*Processing messages...*"
)

// respond drives one prompt through the active or temporary session and
// streams the answer into a placeholder reply. Once the placeholder
// exists every failure is rendered into it, so this handler never bubbles
// errors to the dispatch boundary.
func (b *Bot) respond(ctx context.Context, m *discordgo.Message, prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		b.reply(m.ChannelID, "Missing prompt!")
		return nil
	}

	ph, err := b.messenger.SendMessage(m.ChannelID, placeholderStarting)
	if err != nil {
		return fmt.Errorf("send placeholder: %w", err)
	}

	err = b.converse(ctx, m, ph)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	log.Printf("[discord] respond for %s failed: %v", m.Author.ID, err)
	if editErr := b.editor.Edit(ctx, m.ChannelID, ph.ID, userErrorMessage(err)); editErr != nil {
		log.Printf("[discord] render failure into placeholder %s: %v", ph.ID, editErr)
	}
	return nil
}

func (b *Bot) converse(ctx context.Context, m *discordgo.Message, ph *discordgo.Message) error {
	owner, err := parseID(m.Author.ID)
	if err != nil {
		return err
	}

	b.editPlaceholder(ctx, m.ChannelID, ph.ID, placeholderHistory)
	conv, err := b.conversationFor(ctx, m, owner)
	if err != nil {
		return err
	}
	sess := conv.Session()

	userMsg, err := session.FromDiscord(m, session.RoleUser, sess.Name, sess.OwnerID)
	if err != nil {
		return err
	}
	if err := conv.Append(ctx, userMsg); err != nil {
		return err
	}

	mdl, found, err := b.catalogue.Get(ctx, sess.Model)
	if err != nil {
		return err
	}
	if !found {
		warn := fmt.Sprintf("The model %s used by session %s is not available anymore! <@%d>, please fix it.",
			sess.Model, sess.Name, b.cfg.Admin.ID)
		if err := b.editor.Edit(ctx, m.ChannelID, ph.ID, warn); err != nil {
			return fmt.Errorf("render model warning: %w", err)
		}
		return nil
	}

	b.editPlaceholder(ctx, m.ChannelID, ph.ID, placeholderProcessing)
	chunks, errc, err := b.startStream(ctx, sess, mdl)
	if err != nil {
		return err
	}

	start, end, _ := mdl.Config.ThinkingTags()
	pump := &llm.Pump{
		Parser:    llm.NewParser(start, end),
		EditDelay: b.cfg.Bot.EditDelay,
		Edit: func(ctx context.Context, content string) error {
			return b.editor.Edit(ctx, m.ChannelID, ph.ID, content)
		},
	}
	res, err := pump.Run(ctx, chunks, errc)
	if err != nil {
		return err
	}
	if !res.Produced() {
		return nil
	}

	assistant, err := b.assistantMessage(ph, sess, res.Rendered)
	if err != nil {
		return err
	}
	if err := conv.Append(ctx, assistant); err != nil {
		return err
	}

	usage := session.Usage{
		OwnerID:      sess.OwnerID,
		SessionName:  sess.Name,
		Model:        mdl.Full,
		PromptTokens: res.PromptTokens,
		EvalTokens:   res.EvalTokens,
		Duration:     res.Duration,
	}
	if err := b.store.RecordUsage(ctx, usage); err != nil {
		log.Printf("[discord] record usage for %s: %v", sess.Name, err)
	}
	return nil
}

// editPlaceholder applies a progress edit. A failed progress edit is
// not fatal, the next one overwrites it anyway.
func (b *Bot) editPlaceholder(ctx context.Context, channelID, messageID, content string) {
	if err := b.editor.Edit(ctx, channelID, messageID, content); err != nil {
		log.Printf("[discord] placeholder edit %s: %v", messageID, err)
	}
}

// conversationFor resolves the owner's active stored session, or builds
// a temporary one from recent channel history when none is active.
func (b *Bot) conversationFor(ctx context.Context, m *discordgo.Message, owner int64) (session.Conversation, error) {
	active, err := b.store.GetActive(ctx, owner)
	if err != nil {
		return nil, err
	}
	if active != "" {
		sess, err := b.store.GetSession(ctx, owner, active)
		if err == nil {
			return session.NewStored(sess, b.store), nil
		}
		if !errors.Is(err, session.ErrSessionNotFound) {
			return nil, err
		}
	}

	history, err := b.channelHistory(m)
	if err != nil {
		return nil, err
	}
	sess := session.NewTemporarySession(m.ChannelID, b.cfg.Admin.ID,
		b.cfg.Models.DefaultModelName(), b.cfg.Bot.DefaultSystemPrompt, history)
	return session.NewTemporary(sess), nil
}

// channelHistory converts the recent channel window into chat messages,
// oldest first, with the triggering message left out.
func (b *Bot) channelHistory(m *discordgo.Message) ([]session.ChatMessage, error) {
	limit := b.cfg.Bot.MaxMessagesForContext
	raw, err := b.messenger.ChannelHistory(m.ChannelID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("fetch channel history: %w", err)
	}

	name := session.TemporaryName(m.ChannelID)
	history := make([]session.ChatMessage, 0, len(raw))
	// The API returns newest first.
	for i := len(raw) - 1; i >= 0; i-- {
		msg := raw[i]
		if msg == nil || msg.Author == nil || msg.ID == m.ID {
			continue
		}
		role := session.RoleUser
		if msg.Author.ID == b.selfID {
			role = session.RoleAssistant
		}
		cm, err := session.FromDiscord(msg, role, name, b.cfg.Admin.ID)
		if err != nil {
			log.Printf("[discord] skip history message %s: %v", msg.ID, err)
			continue
		}
		history = append(history, cm)
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history, nil
}

// startStream opens the backend stream in chat mode, or raw mode when
// the model carries a chat template.
func (b *Bot) startStream(ctx context.Context, sess *session.ChatSession, mdl model.ChatModel) (<-chan ollama.Chunk, <-chan error, error) {
	msgs := backendMessages(sess)
	counter := model.TokenizerFor(mdl.Config.Tokenizer)

	if name := mdl.Config.ChatTemplate; name != "" {
		tmpl, ok := model.LookupTemplate(name)
		if !ok {
			return nil, nil, fmt.Errorf("unknown chat template %q for model %s", name, mdl.Full)
		}
		prompt, err := tmpl.Render(msgs)
		if err != nil {
			return nil, nil, fmt.Errorf("render chat template: %w", err)
		}
		b.warnNearContextLimit(sess, mdl, counter.Count(prompt))
		chunks, errc := b.backend.GenerateStream(ctx, mdl.Full, prompt)
		return chunks, errc, nil
	}

	b.warnNearContextLimit(sess, mdl, sess.TokenTotal(counter))
	chunks, errc := b.backend.ChatStream(ctx, mdl.Full, msgs)
	return chunks, errc, nil
}

func backendMessages(sess *session.ChatSession) []ollama.Message {
	msgs := make([]ollama.Message, 0, len(sess.Messages))
	for _, cm := range sess.Messages {
		msgs = append(msgs, ollama.Message{Role: string(cm.Role), Content: cm.String()})
	}
	return msgs
}

// warnNearContextLimit logs once the estimate crosses 90% of the model's
// effective window. The backend still decides what actually fits.
func (b *Bot) warnNearContextLimit(sess *session.ChatSession, mdl model.ChatModel, estimated int) {
	if mdl.ContextLength <= 0 {
		return
	}
	if estimated*10 >= mdl.ContextLength*9 {
		log.Printf("[discord] session %s estimated at %d tokens, close to the %d token window of %s",
			sess.Name, estimated, mdl.ContextLength, mdl.Full)
	}
}

// assistantMessage wraps the final rendered reply as a session message.
// The placeholder's id and timestamp are the real ones of the bot's
// message, so reconstruction from history lines up with what was stored.
func (b *Bot) assistantMessage(ph *discordgo.Message, sess *session.ChatSession, rendered string) (session.ChatMessage, error) {
	id, err := parseID(ph.ID)
	if err != nil {
		return session.ChatMessage{}, fmt.Errorf("parse placeholder id: %w", err)
	}
	selfID, err := parseID(b.selfID)
	if err != nil {
		return session.ChatMessage{}, fmt.Errorf("parse bot id: %w", err)
	}
	ts := ph.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return session.ChatMessage{
		ID:             id,
		OwnerID:        sess.OwnerID,
		SenderID:       selfID,
		SenderNickname: b.selfName,
		SessionName:    sess.Name,
		Timestamp:      ts.UTC(),
		Role:           session.RoleAssistant,
		Content:        rendered,
	}, nil
}
