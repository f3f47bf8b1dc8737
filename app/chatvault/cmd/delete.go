package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteYes bool

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete all stored chats",
	Long: `Deletes every stored chat. There is no per-chat delete; the store only
supports a full reset. The stored credential is not touched.`,
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVar(&deleteYes, "yes", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := setupContext()
	store := newStore()

	if !deleteYes {
		fmt.Print("This deletes ALL chats. Type 'delete' to confirm: ")
		var confirm string
		if _, err := fmt.Scanln(&confirm); err != nil || confirm != "delete" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := store.DeleteChats(ctx); err != nil {
		return fmt.Errorf("failed to delete chats: %w", err)
	}
	fmt.Println("All chats deleted.")
	return nil
}
