package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/rs/zerolog/log"

	"github.com/chatvault/chatvault/internal/ai"
	"github.com/chatvault/chatvault/internal/chat"
	"github.com/chatvault/chatvault/internal/config"
)

const anthropicMaxTokens = 4096

func setupContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	// Setup graceful shutdown
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		log.Info().Msg("interrupt signal detected, shutting down gracefully")
		cancel()
		<-interrupt
		log.Fatal().Msg("forcing shutdown")
	}()

	return ctx
}

func newStore() *chat.Store {
	var backend chat.Backend
	switch cfg.Backend {
	case config.BackendFile:
		backend = chat.NewFileBackend(cfg.DataDir)
	default:
		backend = chat.NewSQLiteBackend(filepath.Join(cfg.DataDir, "chatvault.db"))
	}
	return chat.NewStore(backend)
}

func newCompleter(apiKey string) ai.Completer {
	var completer ai.Completer
	switch cfg.Provider {
	case config.ProviderAnthropic:
		completer = ai.NewAnthropicCompleter(apiKey, anthropic.Model(cfg.Model), anthropicMaxTokens)
	default:
		completer = ai.NewOpenAICompleter(apiKey, cfg.Model)
	}
	return ai.WithTracing(completer)
}

// resolveAPIKey prefers the credential stored in the durable store and falls
// back to the environment-provided one.
func resolveAPIKey(ctx context.Context, store *chat.Store) (string, error) {
	key, err := store.Key(ctx)
	if err != nil {
		return "", err
	}
	if key == "" {
		key = cfg.APIKey
	}
	if key == "" {
		return "", fmt.Errorf("no API key: store one with 'chatvault key <value>' or set CHATVAULT_API_KEY")
	}
	return key, nil
}
