package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all chats and the credential as a snapshot",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "File to write the snapshot to (default stdout)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := setupContext()
	store := newStore()

	payload, err := store.Export(ctx)
	if err != nil {
		return fmt.Errorf("failed to export snapshot: %w", err)
	}

	if exportOut == "" {
		fmt.Println(string(payload))
		return nil
	}
	// 0600: the snapshot contains the credential
	if err := os.WriteFile(exportOut, payload, 0o600); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	fmt.Printf("Snapshot written to %s\n", exportOut)
	return nil
}
