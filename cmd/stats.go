package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ecosort/ecoscan/pkg/gamification"
	"github.com/ecosort/ecoscan/pkg/stats"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show your score, streak, and weekly activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, cleanup, err := openState(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		remote, _ := cmd.Flags().GetBool("remote")
		if remote {
			snap := store.Snapshot()
			if !snap.SignedIn() {
				return fmt.Errorf("not signed in: run 'ecoscan login' first")
			}
			client := gamification.NewClient(apiBaseURL(), apiTimeout())
			server, err := client.FetchUserStats(cmd.Context(), snap.UserID, snap.Token)
			if err != nil {
				return err
			}
			// Server response overwrites local state; whichever arrives
			// last wins.
			store.ReplaceFromServer(server)
		}

		printStats(store.Snapshot())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().Bool("remote", false, "Fetch the authoritative stats from the server first")
}

func printStats(snap stats.Snapshot) {
	if snap.Username != "" {
		fmt.Printf("Signed in as %s\n\n", color.CyanString(snap.Username))
	} else {
		fmt.Println("Not signed in (local stats only)")
		fmt.Println()
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "Score\t%d\t\n", snap.Score)
	fmt.Fprintf(w, "Level\t%s\t\n", snap.Level)
	fmt.Fprintf(w, "Items analyzed\t%d\t\n", snap.ItemsAnalyzed)
	fmt.Fprintf(w, "Streak\t%d day(s)\t\n", snap.StreakDays)
	fmt.Fprintf(w, "CO2 saved\t%.1f kg\t\n", snap.CO2SavedKg)
	fmt.Fprintf(w, "Trees planted\t%d\t\n", snap.TreesPlanted)
	w.Flush()

	fmt.Println()
	fmt.Println("This week: " + weeklyBar(snap.WeeklyActivity))
	if snap.PerfectWeekStreak {
		color.Green("Perfect week! Every day active.")
	}
}

// weeklyBar renders the Monday..Sunday activity slots.
func weeklyBar(week [7]int) string {
	days := []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}
	parts := make([]string, 0, 7)
	for i, d := range days {
		if week[i] > 0 {
			parts = append(parts, color.GreenString("%s:%d", d, week[i]))
		} else {
			parts = append(parts, fmt.Sprintf("%s:-", d))
		}
	}
	return strings.Join(parts, " ")
}
