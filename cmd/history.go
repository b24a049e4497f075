package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List your most recent analyses",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, cleanup, err := openState(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		limit, _ := cmd.Flags().GetInt("limit")
		rows, err := db.RecentAnalyses(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(rows) == 0 {
			fmt.Println("No analyses yet. Run 'ecoscan analyze' first.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "WHEN\tLABEL\tCATEGORY\tCONFIDENCE\t")
		for _, r := range rows {
			conf := "-"
			if r.ConfidencePercent != nil {
				conf = fmt.Sprintf("%d%%", *r.ConfidencePercent)
			}
			label := r.Label
			if r.Failed {
				label = label + " (failed)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", r.AnalyzedAt.Format("2006-01-02 15:04"), label, r.Category, conf)
		}
		w.Flush()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of rows to show")
}
