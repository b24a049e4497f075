package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ecosort/ecoscan/pkg/gamification"
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in so your score reaches the leaderboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")

		reader := bufio.NewReader(os.Stdin)
		if email == "" {
			fmt.Print("Email: ")
			line, err := reader.ReadString('\n')
			if err != nil {
				return err
			}
			email = strings.TrimSpace(line)
		}
		if password == "" {
			fmt.Print("Password: ")
			line, err := reader.ReadString('\n')
			if err != nil {
				return err
			}
			password = strings.TrimSpace(line)
		}

		client := gamification.NewClient(apiBaseURL(), apiTimeout())
		sess, err := client.Login(cmd.Context(), email, password)
		if err != nil {
			return err
		}

		_, store, cleanup, err := openState(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		store.SetSession(sess.UserID, sess.Username, sess.Token)

		// Pull the authoritative record so a returning user starts from
		// their server-side score, not zero.
		if server, err := client.FetchUserStats(cmd.Context(), sess.UserID, sess.Token); err == nil {
			store.ReplaceFromServer(server)
		}

		color.Green("Signed in as %s", sess.Username)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().String("email", "", "Account email (prompted when omitted)")
	loginCmd.Flags().String("password", "", "Account password (prompted when omitted)")
}
