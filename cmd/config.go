package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mlukaszek/steel-llama/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the loaded configuration",
	Long:  `Load and validate the configuration, then print it with the Discord token masked.`,
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	fmt.Printf("config: %s\n\n", configPath)
	fmt.Println("[bot]")
	fmt.Printf("discord_api_key          = %s\n", maskToken(cfg.Bot.DiscordAPIKey))
	fmt.Printf("bot_prefix               = %s\n", cfg.Bot.BotPrefix)
	fmt.Printf("edit_delay_seconds       = %g\n", cfg.Bot.EditDelay.Seconds())
	fmt.Printf("max_messages_for_context = %d\n", cfg.Bot.MaxMessagesForContext)
	fmt.Printf("session_db_path          = %s\n", cfg.Bot.SessionDBPath)
	fmt.Printf("default_system_prompt    = %s\n", cfg.Bot.DefaultSystemPrompt)

	fmt.Println("\n[admin]")
	fmt.Printf("id = %d\n", cfg.Admin.ID)

	fmt.Println("\n[models]")
	fmt.Printf("default_model = %s\n", cfg.Models.DefaultModel)
	if cfg.Models.DefaultModelTag != "" {
		fmt.Printf("default_model_tag = %s\n", cfg.Models.DefaultModelTag)
	}

	for _, entry := range cfg.Models.Models {
		fmt.Printf("\n[models.%s]\n", entry.Name)
		mc := entry.Config
		if mc.ThinkingPrefix != "" {
			fmt.Printf("thinking_prefix = %s\n", mc.ThinkingPrefix)
			fmt.Printf("thinking_suffix = %s\n", mc.ThinkingSuffix)
		}
		fmt.Printf("tokenizer = %s\n", mc.Tokenizer)
		if mc.ContextLimit > 0 {
			fmt.Printf("context_limit = %d\n", mc.ContextLimit)
		}
		if mc.ChatTemplate != "" {
			fmt.Printf("chat_template = %s\n", mc.ChatTemplate)
		}
	}
	return nil
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
