package config

import (
	"fmt"

	"gopkg.in/ini.v1"
)

const seedSystemPrompt = `You are a Discord bot, proceed with the following conversation with the users. ` +
	`Every message is prefixed with a line containing the username (and user ID) of it's sender (prefixed with @) ` +
	`and the timestamp of the message. Messages directed specifically to you are prefixed with "$llm".`

// WriteDefault writes an example configuration to path. The operator is
// expected to fill in the Discord token before the next start.
func WriteDefault(path string) error {
	f := ini.Empty()

	models, err := f.NewSection("models")
	if err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	models.NewKey("default_model", "qwen3-8b")

	admin, err := f.NewSection("admin")
	if err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	admin.NewKey("id", "12345")

	bot, err := f.NewSection("bot")
	if err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	bot.NewKey("discord_api_key", "your_discord_api_key_here")
	bot.NewKey("bot_prefix", "$")
	bot.NewKey("edit_delay_seconds", "0.5")
	bot.NewKey("max_messages_for_context", "30")
	bot.NewKey("session_db_path", "./bot.db")
	bot.NewKey("default_system_prompt", seedSystemPrompt)

	qwen, err := f.NewSection("models.qwen3-8b")
	if err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	qwen.NewKey("thinking_prefix", "<think>")
	qwen.NewKey("thinking_suffix", "</think>")
	qwen.NewKey("tokenizer", "Qwen/Qwen3-8B")

	if err := f.SaveTo(path); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}
