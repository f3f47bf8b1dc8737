package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chatvault/chatvault/internal/chat"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Merge a snapshot into the local store",
	Long: `Merges a snapshot exported on another device into the local store.
Chats are compared by their last-edited timestamps: the strictly newer record
wins wholesale, and local chats absent from the snapshot are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := setupContext()
	store := newStore()

	payload, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read snapshot file: %w", err)
	}

	if err := store.Import(ctx, payload); err != nil {
		if errors.Is(err, chat.ErrMalformedSnapshot) {
			return fmt.Errorf("snapshot rejected, nothing was imported: %w", err)
		}
		return fmt.Errorf("failed to import snapshot: %w", err)
	}

	chats, err := store.ChatList(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Import complete, %d chats stored.\n", len(chats))
	return nil
}
