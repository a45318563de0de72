package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/quillfin/quill/internal/cli"
	"github.com/quillfin/quill/internal/common"
	"github.com/quillfin/quill/internal/model"
)

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify pending transactions",
		Long: `Run the classification pipeline over every unclassified transaction:
user rules first, the correction-trained model as fallback, then
confidence-based routing into auto-accept, targeted review, or full review.

Progress is saved per transaction, so an interrupted run resumes where it
left off.`,
		RunE: runClassify,
	}

	cmd.Flags().String("from", "", "only classify transactions on or after this date (YYYY-MM-DD)")
	return cmd
}

func runClassify(cmd *cobra.Command, _ []string) error {
	var fromDate *time.Time
	if raw, _ := cmd.Flags().GetString("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return fmt.Errorf("invalid --from date %q: %w", raw, err)
		}
		fromDate = &parsed
	}

	handler := cli.NewInterruptHandler(nil)
	ctx, cancel := handler.Watch(cmd.Context())
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var bar *progressbar.ProgressBar
	stats, err := a.engine.ClassifyTransactions(ctx, fromDate, func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Classifying"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}
		_ = bar.Set(done)
	})
	if err != nil {
		if handler.Interrupted() {
			return nil
		}
		if errors.Is(err, common.ErrNoTransactions) {
			fmt.Println(cli.FormatWarning("No transactions waiting for classification"))
			return nil
		}
		return err
	}

	fmt.Println(cli.FormatTitle("Classification complete"))
	fmt.Println(cli.RenderTable(
		[]string{"Result", "Count"},
		[][]string{
			{"Total", fmt.Sprintf("%d", stats.Total)},
			{"By rules", fmt.Sprintf("%d", stats.RuleClassified)},
			{"By model", fmt.Sprintf("%d", stats.ModelClassified)},
			{"Unclassified", fmt.Sprintf("%d", stats.Unclassified)},
			{"Auto-accepted", fmt.Sprintf("%d", stats.Tiers[model.TierAutoAccept])},
			{"Targeted review", fmt.Sprintf("%d", stats.Tiers[model.TierTargetedReview])},
			{"Full review", fmt.Sprintf("%d", stats.Tiers[model.TierFullReview])},
		},
	))

	for _, conflict := range stats.Conflicts {
		if conflict.Resolved {
			fmt.Println(cli.FormatWarning(fmt.Sprintf(
				"Rule conflict on %s resolved to %q (%s)",
				conflict.ActionType, conflict.WinningValue, conflict.Strategy)))
		} else {
			fmt.Println(cli.FormatWarning(fmt.Sprintf(
				"Unresolved rule conflict on %s between values %v; no action applied",
				conflict.ActionType, conflict.Values)))
		}
	}

	return nil
}
