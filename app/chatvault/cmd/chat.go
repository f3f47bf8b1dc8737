package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/chatvault/chatvault/internal/chat"
	"github.com/chatvault/chatvault/internal/stream"
	"github.com/chatvault/chatvault/internal/telemetry"
)

var chatCmd = &cobra.Command{
	Use:   "chat [name]",
	Short: "Start an interactive chat session",
	Long: `Starts an interactive session with the configured completion provider.
Every exchange is persisted into the named chat; without a name a new chat is
created from the current date and time.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := setupContext()

	telemetryProvider, err := telemetry.NewProvider(ctx, telemetry.TelemetryConfig{
		Enabled:      cfg.TelemetryEnabled,
		OTLPEndpoint: cfg.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		if err := telemetryProvider.Shutdown(context.Background()); err != nil {
			log.Warn().Err(err).Msg("failed to shut down telemetry")
		}
	}()

	store := newStore()

	name := ""
	if len(args) == 1 {
		name = args[0]
	} else {
		name = fmt.Sprintf("chat-%s", time.Now().Format("2006-01-02-150405"))
	}

	if err := store.CreateChat(ctx, name); err != nil {
		return fmt.Errorf("failed to create chat %q: %w", name, err)
	}

	apiKey, err := resolveAPIKey(ctx, store)
	if err != nil {
		return err
	}

	publisher := stream.NewPublisher(newCompleter(apiKey))
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close publisher")
		}
	}()

	sessionID := telemetry.NewSessionID()
	log.Info().Str("chat", name).Str("session_id", sessionID).Msg("starting chat session")
	fmt.Printf("Chatting in %q. Press ctrl-d to exit.\n", name)

	// The live history includes the system preamble; persisted messages start
	// after it, tracked by this index.
	persisted := len(publisher.History())

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		prompt := scanner.Text()
		if prompt == "" {
			continue
		}

		sendErr := publisher.Send(ctx, prompt)

		// Persist everything new, including the user message of a failed
		// exchange: the publisher keeps it, and so do we.
		history := publisher.History()
		for _, msg := range history[persisted:] {
			if err := store.AddMessage(ctx, name, msg); err != nil {
				log.Warn().Err(err).Msg("failed to persist message")
			}
			if msg.Role == chat.RoleAssistant {
				fmt.Printf("\n%s\n\n", msg.Content)
			}
		}
		persisted = len(history)

		if sendErr != nil {
			log.Error().Err(sendErr).Msg("completion failed, your message was kept")
		}

		if ctx.Err() != nil {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	return nil
}
