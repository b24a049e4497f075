package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ecosort/ecoscan/pkg/gamification"
)

// leaderboardCmd represents the leaderboard command
var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Show the global leaderboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, cleanup, err := openState(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		client := gamification.NewClient(apiBaseURL(), apiTimeout())
		entries, err := client.FetchLeaderboard(cmd.Context())
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("The leaderboard is empty. Be the first: ecoscan analyze")
			return nil
		}

		// The local optimistic counters may be ahead of the server's record
		// for the current user; show the freshest numbers for our own row.
		snap := store.Snapshot()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "RANK\tUSER\tSCORE\tITEMS\t")
		for _, e := range entries {
			name := e.Username
			score, items := e.Score, e.ItemsAnalyzed
			if snap.SignedIn() && e.Username == snap.Username {
				name = color.CyanString(e.Username) + " (you)"
				if snap.Score > score {
					score, items = snap.Score, snap.ItemsAnalyzed
				}
			}
			fmt.Fprintf(w, "%d\t%s\t%d\t%d\t\n", e.Rank, name, score, items)
		}
		w.Flush()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(leaderboardCmd)
}
