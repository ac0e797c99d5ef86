package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mlukaszek/steel-llama/internal/config"
)

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to the INI configuration file")
}

var rootCmd = &cobra.Command{
	Use:   "steel-llama",
	Short: "Bridge Discord channels to Ollama models",
	Long: `SteelLlama is a simple bridge between Ollama and Discord with
user/session management.

Users talk to local models through prefixed commands, keep named chat
sessions with their own system prompts and models, and watch replies
stream into place as tokens arrive.

Examples:
  steel-llama run                          # start the bot
  steel-llama run --config /etc/sl.ini     # with an explicit config
  steel-llama config                       # show the loaded configuration`,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
