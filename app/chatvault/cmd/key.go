package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var keyCmd = &cobra.Command{
	Use:   "key [value]",
	Short: "Show or set the stored API credential",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runKey,
}

func init() {
	rootCmd.AddCommand(keyCmd)
}

func runKey(cmd *cobra.Command, args []string) error {
	ctx := setupContext()
	store := newStore()

	if len(args) == 1 {
		if err := store.SetKey(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to store credential: %w", err)
		}
		fmt.Println("Credential stored.")
		return nil
	}

	key, err := store.Key(ctx)
	if err != nil {
		return fmt.Errorf("failed to read credential: %w", err)
	}
	if key == "" {
		fmt.Println("No credential stored.")
		return nil
	}
	fmt.Println(mask(key))
	return nil
}

func mask(key string) string {
	if len(key) <= 8 {
		return "********"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
