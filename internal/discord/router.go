package discord

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"unicode"

	"github.com/bwmarrin/discordgo"

	"github.com/mlukaszek/steel-llama/internal/ollama"
)

const unavailableReply = "The LLM backend is currently unavailable, try again later."

// dispatch routes one prefixed message to its command handler. Handler
// errors are logged and rendered as a generic reply; user mistakes
// (missing arguments, unknown sessions) are replied to inside the
// handlers and never reach this boundary.
func (b *Bot) dispatch(ctx context.Context, m *discordgo.Message) {
	word, rest := splitCommand(m.Content)
	prefix := b.cfg.Bot.BotPrefix
	if !strings.HasPrefix(word, prefix) {
		return
	}

	var err error
	switch strings.TrimPrefix(word, prefix) {
	case "llm":
		err = b.respond(ctx, m, rest)
	case "llm-help":
		err = b.help(m)
	case "llm-new-session":
		err = b.newSession(ctx, m, rest)
	case "llm-list-sessions":
		err = b.listSessions(ctx, m)
	case "llm-change-session":
		err = b.changeSession(ctx, m, rest)
	case "llm-remove-session":
		err = b.removeSession(ctx, m, rest)
	case "llm-get-session-size":
		err = b.sessionSize(ctx, m, rest)
	case "llm-set-system-prompt":
		err = b.setSystemPrompt(ctx, m, rest)
	case "llm-list-models":
		err = b.listModels(ctx, m)
	case "llm-set-session-model":
		err = b.setSessionModel(ctx, m, rest)
	case "llm-usage":
		err = b.usageSummary(ctx, m)
	default:
		// Anything else carrying the prefix is not ours to answer.
		return
	}
	if err != nil {
		log.Printf("[discord] %s from %s failed: %v", word, m.Author.ID, err)
		b.reply(m.ChannelID, userErrorMessage(err))
	}
}

// splitCommand separates the command word from its argument text.
func splitCommand(content string) (word, rest string) {
	content = strings.TrimSpace(content)
	if i := strings.IndexFunc(content, unicode.IsSpace); i >= 0 {
		return content[:i], strings.TrimLeftFunc(content[i:], unicode.IsSpace)
	}
	return content, ""
}

func userErrorMessage(err error) string {
	if errors.Is(err, ollama.ErrUnavailable) {
		return unavailableReply
	}
	var be *ollama.BackendError
	if errors.As(err, &be) {
		return fmt.Sprintf("Oops, an unknown error has happened: %s", be.Detail)
	}
	return fmt.Sprintf("Oops, an unknown error has happened: %v", err)
}

// reply sends a one-off message, logging delivery failures. Every
// command answers with a single reply.
func (b *Bot) reply(channelID, content string) {
	if _, err := b.messenger.SendMessage(channelID, content); err != nil {
		log.Printf("[discord] send reply to %s: %v", channelID, err)
	}
}

func parseID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse user id %q: %w", id, err)
	}
	return n, nil
}
