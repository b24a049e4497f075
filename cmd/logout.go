package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// logoutCmd represents the logout command
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and clear the locally stored stats",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, cleanup, err := openState(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := store.Reset(); err != nil {
			return err
		}

		fmt.Println("Signed out. Local stats cleared.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
