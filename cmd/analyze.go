package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/ecosort/ecoscan/internal/utils"
	"github.com/ecosort/ecoscan/pkg/batch"
	"github.com/ecosort/ecoscan/pkg/gamification"
	"github.com/ecosort/ecoscan/pkg/inference"
	"github.com/ecosort/ecoscan/pkg/media"
	"github.com/ecosort/ecoscan/pkg/stats"
	"github.com/ecosort/ecoscan/pkg/storage"
)

// analyzeCmd implements: ecoscan analyze
//
//	ecoscan analyze photo1.jpg photo2.png
//	ecoscan analyze --kind video clip.mp4
var analyzeCmd = &cobra.Command{
	Use:   "analyze FILE...",
	Short: "Analyze waste photos or a video and update your score",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kindString, _ := cmd.Flags().GetString("kind")
		kind, err := media.ParseKind(kindString)
		if err != nil {
			return err
		}

		db, store, cleanup, err := openState(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		analyzer := inference.NewClient(apiBaseURL(), apiTimeout())
		gamClient := gamification.NewClient(apiBaseURL(), apiTimeout())
		reconciler := stats.NewReconciler(store, gamClient, utils.Log)

		var limiter *rate.Limiter
		if rps := viper.GetFloat64("analyze.rate_limit_rps"); rps > 0 {
			limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}

		orch := batch.New(batch.Config{
			Analyzer:   analyzer,
			Reconciler: reconciler,
			Limiter:    limiter,
			Log:        utils.Log,
			OnItemDone: printResult,
		})

		b, results, err := orch.Run(cmd.Context(), args, kind)
		defer b.Discard()
		if err != nil {
			return err
		}

		if err := archiveResults(cmd.Context(), db, b, results); err != nil {
			utils.Log.Warnf("Could not archive analysis history: %v", err)
		}

		// Let dispatched leaderboard syncs land before the process exits.
		reconciler.Wait()

		printSummary(results, store.Snapshot())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringP("kind", "k", "image", "Media kind of the submitted files: image or video")
}

func printResult(res batch.Result) {
	fmt.Println()
	if res.Failed {
		color.Red("✗ %s", res.Label)
		fmt.Printf("  %s\n", res.Instructions)
		fmt.Printf("  Tip: %s\n", res.EcoTip)
		return
	}

	header := res.Label
	if res.ConfidencePercent != nil {
		header = fmt.Sprintf("%s (%d%%)", res.Label, *res.ConfidencePercent)
	}
	color.Green("✓ %s", header)
	fmt.Printf("  Category:     %s\n", res.Category)
	fmt.Printf("  Instructions: %s\n", res.Instructions)
	fmt.Printf("  Did you know: %s\n", res.Facts)
	fmt.Printf("  Eco tip:      %s\n", res.EcoTip)
	for _, box := range res.Boxes {
		fmt.Printf("  Detected %s (%d%%) at [%.0f, %.0f, %.0f, %.0f]\n",
			box.Label, box.ConfidencePercent, box.Rect[0], box.Rect[1], box.Rect[2], box.Rect[3])
	}
}

func printSummary(results []batch.Result, snap stats.Snapshot) {
	var failed int
	for _, r := range results {
		if r.Failed {
			failed++
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("-", 40))
	fmt.Printf("Analyzed %d item(s), %d failed\n", len(results), failed)
	fmt.Printf("Score: %s   Items: %d   Level: %s\n",
		color.YellowString("%d", snap.Score), snap.ItemsAnalyzed, snap.Level)
	if !snap.SignedIn() {
		fmt.Println("Not signed in: score is kept locally only. Run 'ecoscan login' to join the leaderboard.")
	}
}

func archiveResults(ctx context.Context, db *storage.DB, b *batch.Batch, results []batch.Result) error {
	rows := make([]storage.AnalysisRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, storage.AnalysisRow{
			BatchID:           b.ID,
			ItemIndex:         r.Index,
			Label:             r.Label,
			Category:          r.Category,
			ConfidencePercent: r.ConfidencePercent,
			Failed:            r.Failed,
			ErrorMessage:      r.ErrorMessage,
		})
	}
	return db.AppendAnalyses(ctx, rows)
}
