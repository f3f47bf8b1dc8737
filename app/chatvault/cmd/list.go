package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored chats, most recently edited first",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := setupContext()
	store := newStore()

	chats, err := store.ChatList(ctx)
	if err != nil {
		return fmt.Errorf("failed to list chats: %w", err)
	}

	if len(chats) == 0 {
		fmt.Println("No chats stored.")
		return nil
	}
	for _, c := range chats {
		fmt.Printf("%s\t%d messages\tlast edited %s\n",
			c.Name, len(c.Messages), c.LastEdited.Format("2006-01-02 15:04:05"))
	}
	return nil
}
