package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// DefaultPath is where the bot looks for its configuration when --config is not given.
const DefaultPath = "./bot-config.ini"

// Error is a configuration violation detected while loading or validating.
type Error struct {
	Field  string // section-qualified option, e.g. "bot.bot_prefix"
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

// ModelConfig holds the per-model settings from a [models.<name>] section.
type ModelConfig struct {
	ThinkingPrefix string // tag opening a thinking segment, e.g. "<think>"
	ThinkingSuffix string // tag closing a thinking segment
	Tokenizer      string // tokenizer handle used for token counting
	ContextLimit   int    // explicit input-token cap; 0 when unset
	ChatTemplate   string // built-in prompt template name; non-empty switches respond to raw mode
}

// ThinkingTags returns the configured tag pair. ok is false unless both are set.
func (m ModelConfig) ThinkingTags() (start, end string, ok bool) {
	if m.ThinkingPrefix == "" || m.ThinkingSuffix == "" {
		return "", "", false
	}
	return m.ThinkingPrefix, m.ThinkingSuffix, true
}

// ModelEntry pairs a configured model name with its settings. Order matters:
// lookup is by name prefix, first declared match wins.
type ModelEntry struct {
	Name   string
	Config ModelConfig
}

type ModelsConfig struct {
	DefaultModel    string
	DefaultModelTag string // appended to bare model names when set
	Models          []ModelEntry
}

// ForModel returns the configuration bound to a full model name, matching
// configured names as prefixes in declaration order.
func (m ModelsConfig) ForModel(fullName string) (ModelConfig, bool) {
	for _, entry := range m.Models {
		if strings.HasPrefix(fullName, entry.Name) {
			return entry.Config, true
		}
	}
	return ModelConfig{}, false
}

// DefaultModelName returns the default model with the configured tag applied.
func (m ModelsConfig) DefaultModelName() string {
	return m.Qualify(m.DefaultModel)
}

// Qualify appends default_model_tag to a bare model name. Names that already
// carry a tag are returned unchanged.
func (m ModelsConfig) Qualify(name string) string {
	if m.DefaultModelTag == "" || strings.Contains(name, ":") {
		return name
	}
	return name + ":" + m.DefaultModelTag
}

type AdminConfig struct {
	ID int64 // platform user id of the operator; pinged when a session's model vanishes
}

type BotConfig struct {
	DiscordAPIKey         string
	BotPrefix             string
	EditDelay             time.Duration // minimum interval between placeholder edits
	MaxMessagesForContext int           // history window for temporary sessions
	SessionDBPath         string
	DefaultSystemPrompt   string
}

type Config struct {
	Bot    BotConfig
	Admin  AdminConfig
	Models ModelsConfig
}

// Load reads and validates the INI configuration at path. A missing file is
// reported as the underlying fs error so callers can seed a default config;
// any semantic violation is reported as *Error.
//
// The DISCORD_API_KEY environment variable, when set, overrides the key from
// the file so the token can be kept out of version-controlled configs.
func Load(path string) (*Config, error) {
	f, err := ini.LoadSources(ini.LoadOptions{}, path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	cfg := &Config{}
	if err := parseBot(f, &cfg.Bot); err != nil {
		return nil, err
	}
	if err := parseAdmin(f, &cfg.Admin); err != nil {
		return nil, err
	}
	if err := parseModels(f, &cfg.Models); err != nil {
		return nil, err
	}

	if key := os.Getenv("DISCORD_API_KEY"); key != "" {
		cfg.Bot.DiscordAPIKey = key
	}
	return cfg, nil
}

func parseBot(f *ini.File, out *BotConfig) error {
	sec, err := f.GetSection("bot")
	if err != nil {
		return &Error{Field: "bot", Reason: "missing section [bot]"}
	}

	out.DiscordAPIKey, err = requiredString(sec, "bot", "discord_api_key")
	if err != nil {
		return err
	}

	out.BotPrefix, err = requiredString(sec, "bot", "bot_prefix")
	if err != nil {
		return err
	}
	if out.BotPrefix == "" {
		return &Error{Field: "bot.bot_prefix", Reason: "Invalid bot prefix, must not be empty!"}
	}

	if !sec.HasKey("edit_delay_seconds") {
		return missingOption("bot", "edit_delay_seconds")
	}
	delay, err := sec.Key("edit_delay_seconds").Float64()
	if err != nil {
		return &Error{Field: "bot.edit_delay_seconds", Reason: "not a number: " + sec.Key("edit_delay_seconds").String()}
	}
	if delay <= 0 {
		return &Error{Field: "bot.edit_delay_seconds", Reason: "Invalid bot edit delay, must be longer than 0 seconds"}
	}
	out.EditDelay = time.Duration(delay * float64(time.Second))

	if !sec.HasKey("max_messages_for_context") {
		return missingOption("bot", "max_messages_for_context")
	}
	out.MaxMessagesForContext, err = sec.Key("max_messages_for_context").Int()
	if err != nil {
		return &Error{Field: "bot.max_messages_for_context", Reason: "not an integer: " + sec.Key("max_messages_for_context").String()}
	}
	if out.MaxMessagesForContext < 0 {
		return &Error{Field: "bot.max_messages_for_context", Reason: "Invalid context message limit, must be 0 or more"}
	}

	out.SessionDBPath, err = requiredString(sec, "bot", "session_db_path")
	if err != nil {
		return err
	}
	if out.SessionDBPath == "" {
		return &Error{Field: "bot.session_db_path", Reason: "Session database path cannot be empty"}
	}

	out.DefaultSystemPrompt, err = requiredString(sec, "bot", "default_system_prompt")
	if err != nil {
		return err
	}
	return nil
}

func parseAdmin(f *ini.File, out *AdminConfig) error {
	sec, err := f.GetSection("admin")
	if err != nil {
		return &Error{Field: "admin", Reason: "missing section [admin]"}
	}
	if !sec.HasKey("id") {
		return missingOption("admin", "id")
	}
	out.ID, err = sec.Key("id").Int64()
	if err != nil {
		return &Error{Field: "admin.id", Reason: "not an integer: " + sec.Key("id").String()}
	}
	return nil
}

func parseModels(f *ini.File, out *ModelsConfig) error {
	sec, err := f.GetSection("models")
	if err != nil {
		return &Error{Field: "models", Reason: "missing section [models]"}
	}
	out.DefaultModel, err = requiredString(sec, "models", "default_model")
	if err != nil {
		return err
	}
	out.DefaultModelTag = sec.Key("default_model_tag").String()

	// Section order in the file defines lookup precedence.
	for _, name := range f.SectionStrings() {
		if !strings.HasPrefix(name, "models.") {
			continue
		}
		mc, err := parseModelSection(f.Section(name), name)
		if err != nil {
			return err
		}
		out.Models = append(out.Models, ModelEntry{
			Name:   strings.TrimPrefix(name, "models."),
			Config: mc,
		})
	}

	found := false
	for _, entry := range out.Models {
		if entry.Name == out.DefaultModel {
			found = true
			break
		}
	}
	if !found {
		return &Error{
			Field:  "models.default_model",
			Reason: fmt.Sprintf("Default model '%s' doesn't have a config section in configuration file!", out.DefaultModel),
		}
	}
	return nil
}

func parseModelSection(sec *ini.Section, name string) (ModelConfig, error) {
	var mc ModelConfig

	hasPrefix := sec.HasKey("thinking_prefix")
	hasSuffix := sec.HasKey("thinking_suffix")
	if hasPrefix && !hasSuffix {
		return mc, &Error{Field: name + ".thinking_suffix", Reason: "Missing thinking suffix in section " + name}
	}
	if hasSuffix && !hasPrefix {
		return mc, &Error{Field: name + ".thinking_prefix", Reason: "Missing thinking prefix in section " + name}
	}
	mc.ThinkingPrefix = sec.Key("thinking_prefix").String()
	mc.ThinkingSuffix = sec.Key("thinking_suffix").String()

	if !sec.HasKey("tokenizer") {
		return mc, &Error{Field: name + ".tokenizer", Reason: "Missing tokenizer in section " + name}
	}
	mc.Tokenizer = sec.Key("tokenizer").String()

	if sec.HasKey("context_limit") {
		limit, err := sec.Key("context_limit").Int()
		if err != nil {
			return mc, &Error{Field: name + ".context_limit", Reason: "not an integer: " + sec.Key("context_limit").String()}
		}
		mc.ContextLimit = limit
	}
	mc.ChatTemplate = sec.Key("chat_template").String()
	return mc, nil
}

func requiredString(sec *ini.Section, section, option string) (string, error) {
	if !sec.HasKey(option) {
		return "", missingOption(section, option)
	}
	return sec.Key(option).String(), nil
}

func missingOption(section, option string) *Error {
	return &Error{
		Field:  section + "." + option,
		Reason: fmt.Sprintf("missing option '%s' in section [%s]", option, section),
	}
}
