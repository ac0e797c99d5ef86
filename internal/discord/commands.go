package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/mlukaszek/steel-llama/internal/model"
	"github.com/mlukaszek/steel-llama/internal/session"
)

const helpBanner = "**This is SteelLlama, simple bridge between Ollama and Discord with user/session management.**"

func (b *Bot) help(m *discordgo.Message) error {
	var sb strings.Builder
	sb.WriteString(helpBanner)
	sb.WriteString("\nAvailable commands:")
	p := b.cfg.Bot.BotPrefix
	for _, usage := range []string{
		"llm-new-session [session name]",
		"llm-list-sessions",
		"llm-change-session [session name]",
		"llm-remove-session [session name]",
		"llm-get-session-size [session name]",
		"llm-set-system-prompt [prompt content]",
		"llm-list-models",
		"llm-set-session-model [session-name] [model name]",
	} {
		sb.WriteString("\n- ")
		sb.WriteString(p)
		sb.WriteString(usage)
	}
	b.reply(m.ChannelID, sb.String())
	return nil
}

func (b *Bot) newSession(ctx context.Context, m *discordgo.Message, args string) error {
	name, _ := splitCommand(args)
	if name == "" {
		b.reply(m.ChannelID, "Missing session name!")
		return nil
	}
	owner, err := parseID(m.Author.ID)
	if err != nil {
		return err
	}

	sess := session.New(owner, name, b.cfg.Models.DefaultModelName(), b.cfg.Bot.DefaultSystemPrompt)
	if err := b.store.CreateSession(ctx, sess); err != nil {
		if errors.Is(err, session.ErrSessionExists) {
			b.reply(m.ChannelID, fmt.Sprintf("Session called %s already exists!", name))
			return nil
		}
		return err
	}
	if err := b.store.SetActive(ctx, owner, name); err != nil {
		return err
	}
	b.reply(m.ChannelID, fmt.Sprintf("*Created new session called %s, and switched to it*", name))
	return nil
}

func (b *Bot) listSessions(ctx context.Context, m *discordgo.Message) error {
	owner, err := parseID(m.Author.ID)
	if err != nil {
		return err
	}
	infos, err := b.store.ListSessions(ctx, owner)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		b.reply(m.ChannelID, "*No sessions found*")
		return nil
	}
	active, err := b.store.GetActive(ctx, owner)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("Your sessions:\n")
	for _, info := range infos {
		fmt.Fprintf(&sb, "- **%s** - %s, %d messages", info.Name, info.Model, info.MessageCount)
		if info.Name == active {
			sb.WriteString(" *(active)*")
		}
		sb.WriteString("\n")
	}
	b.reply(m.ChannelID, sb.String())
	return nil
}

func (b *Bot) changeSession(ctx context.Context, m *discordgo.Message, args string) error {
	name, _ := splitCommand(args)
	if name == "" {
		b.reply(m.ChannelID, "Missing session name!")
		return nil
	}
	owner, err := parseID(m.Author.ID)
	if err != nil {
		return err
	}
	if err := b.store.SetActive(ctx, owner, name); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			b.reply(m.ChannelID, fmt.Sprintf("Session called %s doesn't exist!", name))
			return nil
		}
		return err
	}
	b.reply(m.ChannelID, fmt.Sprintf("*Switched to session %s*", name))
	return nil
}

func (b *Bot) removeSession(ctx context.Context, m *discordgo.Message, args string) error {
	name, _ := splitCommand(args)
	if name == "" {
		b.reply(m.ChannelID, "Missing session name!")
		return nil
	}
	owner, err := parseID(m.Author.ID)
	if err != nil {
		return err
	}
	// Messages and the active pointer go with the session row.
	if err := b.store.DeleteSession(ctx, owner, name); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			b.reply(m.ChannelID, fmt.Sprintf("Session called %s doesn't exist!", name))
			return nil
		}
		return err
	}
	b.reply(m.ChannelID, fmt.Sprintf("*Removed session %s*", name))
	return nil
}

func (b *Bot) sessionSize(ctx context.Context, m *discordgo.Message, args string) error {
	name, _ := splitCommand(args)
	if name == "" {
		b.reply(m.ChannelID, "Missing session name!")
		return nil
	}
	owner, err := parseID(m.Author.ID)
	if err != nil {
		return err
	}
	sess, err := b.store.GetSession(ctx, owner, name)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			b.reply(m.ChannelID, fmt.Sprintf("Session called %s doesn't exist!", name))
			return nil
		}
		return err
	}
	tokens := sess.TokenTotal(b.counterFor(sess.Model))
	b.reply(m.ChannelID, fmt.Sprintf("*Session %s has %d messages, roughly %d tokens*", sess.Name, len(sess.Messages), tokens))
	return nil
}

func (b *Bot) setSystemPrompt(ctx context.Context, m *discordgo.Message, args string) error {
	prompt := strings.TrimSpace(args)
	if prompt == "" {
		b.reply(m.ChannelID, "Missing system prompt!")
		return nil
	}
	owner, err := parseID(m.Author.ID)
	if err != nil {
		return err
	}
	active, err := b.store.GetActive(ctx, owner)
	if err != nil {
		return err
	}
	if active == "" {
		b.reply(m.ChannelID, fmt.Sprintf("No active session! Create one with %sllm-new-session first.", b.cfg.Bot.BotPrefix))
		return nil
	}
	sess, err := b.store.GetSession(ctx, owner, active)
	if err != nil {
		return err
	}
	sess.SetSystemPrompt(prompt)
	if err := b.store.UpdateSystemPrompt(ctx, sess); err != nil {
		return err
	}
	b.reply(m.ChannelID, fmt.Sprintf("*Updated system prompt of session %s*", sess.Name))
	return nil
}

func (b *Bot) listModels(ctx context.Context, m *discordgo.Message) error {
	models, err := b.catalogue.Refresh(ctx)
	if err != nil {
		return err
	}
	if len(models) == 0 {
		b.reply(m.ChannelID, "*No models available*")
		return nil
	}
	var sb strings.Builder
	sb.WriteString("Available models:\n")
	for _, cm := range models {
		sb.WriteString(cm.ListEntry())
		sb.WriteString("\n")
	}
	b.reply(m.ChannelID, sb.String())
	return nil
}

func (b *Bot) setSessionModel(ctx context.Context, m *discordgo.Message, args string) error {
	name, rest := splitCommand(args)
	modelArg, _ := splitCommand(rest)
	if name == "" || modelArg == "" {
		b.reply(m.ChannelID, "Missing session name or model name!")
		return nil
	}
	owner, err := parseID(m.Author.ID)
	if err != nil {
		return err
	}

	full := b.cfg.Models.Qualify(modelArg)
	ok, err := b.catalogue.Exists(ctx, full)
	if err != nil {
		return err
	}
	if !ok {
		b.reply(m.ChannelID, fmt.Sprintf("Model %s is not available!", full))
		return nil
	}
	if err := b.store.UpdateModel(ctx, owner, name, full); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			b.reply(m.ChannelID, fmt.Sprintf("Session called %s doesn't exist!", name))
			return nil
		}
		return err
	}
	b.reply(m.ChannelID, fmt.Sprintf("*Session %s now uses model %s*", name, full))
	return nil
}

// usageSummary reports today's per-model token spend. Operator only;
// the command stays out of the help banner.
func (b *Bot) usageSummary(ctx context.Context, m *discordgo.Message) error {
	caller, err := parseID(m.Author.ID)
	if err != nil {
		return err
	}
	if caller != b.cfg.Admin.ID {
		return nil
	}

	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	rows, err := b.store.UsageSummary(ctx, midnight)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		b.reply(m.ChannelID, "*No usage recorded today*")
		return nil
	}

	var sb strings.Builder
	sb.WriteString("**Token usage since midnight:**\n")
	for _, r := range rows {
		fmt.Fprintf(&sb, "- **%s**: %d responses, %d prompt + %d eval tokens, %s spent\n",
			r.Model, r.Responses, r.PromptTokens, r.EvalTokens, r.Duration.Round(time.Second))
	}
	b.reply(m.ChannelID, sb.String())
	return nil
}

// counterFor picks the token counter configured for a model, falling
// back to the heuristic estimator for unconfigured names.
func (b *Bot) counterFor(fullModel string) session.TokenCounter {
	mc, ok := b.cfg.Models.ForModel(fullModel)
	if !ok {
		return model.Estimator{}
	}
	return model.TokenizerFor(mc.Tokenizer)
}
