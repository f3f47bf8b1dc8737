package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/chatvault/chatvault/internal/config"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "chatvault",
	Short: "Local-first chat client for LLM assistants",
	Long: `Chatvault holds multiple named conversations with a language-model
assistant and persists them on-device. Conversations can be exported as a
snapshot and merged back on another device with last-write-wins semantics.`,
	PersistentPreRunE: loadRootConfig,
	SilenceUsage:      true,
}

func Execute() error {
	return rootCmd.Execute()
}

func loadRootConfig(_ *cobra.Command, _ []string) error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if level, err := zerolog.ParseLevel(os.Getenv("CHATVAULT_LOG_LEVEL")); err == nil && level != zerolog.NoLevel {
		zerolog.SetGlobalLevel(level)
	}

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using environment variables")
	}

	cfg = config.Load()
	return cfg.Validate()
}
