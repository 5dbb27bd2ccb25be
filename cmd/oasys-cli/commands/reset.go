package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(resetCmd)
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the stored session, including the session id and attendance page.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := openStore()
		defer store.Close()

		err := store.ResetSession(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println("Session cleared.")
		return nil
	},
}
