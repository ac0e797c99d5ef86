package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mlukaszek/steel-llama/internal/config"
	"github.com/mlukaszek/steel-llama/internal/discord"
	"github.com/mlukaszek/steel-llama/internal/model"
	"github.com/mlukaszek/steel-llama/internal/ollama"
	"github.com/mlukaszek/steel-llama/internal/session"
	"github.com/mlukaszek/steel-llama/internal/signal"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the Discord bot",
	Long: `Run the bot until interrupted.

Configuration is read from --config; when the file is missing an example
is written for the operator to fill in. A .env file in the working
directory may carry DISCORD_API_KEY instead of the config file. The
Ollama host comes from OLLAMA_HOST, defaulting to the local daemon.`,
	RunE: runBot,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runBot(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[boot] load .env: %v", err)
	}

	cfg, err := loadOrSeedConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext()
	defer stop()

	store, err := session.Open(cfg.Bot.SessionDBPath)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer store.Close()

	backend, err := ollama.New()
	if err != nil {
		return fmt.Errorf("create ollama client: %w", err)
	}
	if err := backend.Ping(ctx); err != nil {
		log.Printf("[boot] ollama heartbeat: %v", err)
	} else if v, err := backend.Version(ctx); err == nil {
		log.Printf("[boot] ollama %s reachable", v)
	}

	catalogue := model.NewCatalogue(backend, cfg.Models)
	if models, err := catalogue.Refresh(ctx); err != nil {
		log.Printf("[boot] model catalogue: %v", err)
	} else {
		log.Printf("[boot] %d models configured and installed", len(models))
	}

	return discord.Run(ctx, cfg, store, catalogue, backend)
}

// loadOrSeedConfig loads the config, writing an example file and exiting
// when none exists yet. A present but invalid file is reported without
// being overwritten.
func loadOrSeedConfig() (*config.Config, error) {
	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		fmt.Printf("Error: %v. Creating example config file...\n", err)
		if werr := config.WriteDefault(configPath); werr != nil {
			return nil, werr
		}
		fmt.Printf("Example config created. Please edit '%s' with your settings.\n", configPath)
		os.Exit(1)
	}
	return config.Load(configPath)
}
