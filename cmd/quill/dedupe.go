package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillfin/quill/internal/cli"
	"github.com/quillfin/quill/internal/service"
)

func dedupeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Find duplicate transactions",
		Long: `Scan stored transactions for duplicates: exact re-imports, near-identical
pairs, and possible duplicates with small amount drift (tips, partial
refunds). Nothing is deleted; each group comes with a suggested handling.`,
		RunE: runDedupe,
	}

	cmd.Flags().String("start", "", "only scan transactions on or after this date (YYYY-MM-DD)")
	cmd.Flags().String("end", "", "only scan transactions on or before this date (YYYY-MM-DD)")
	return cmd
}

func runDedupe(cmd *cobra.Command, _ []string) error {
	filter := service.TransactionFilter{}
	if raw, _ := cmd.Flags().GetString("start"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return fmt.Errorf("invalid --start date %q: %w", raw, err)
		}
		filter.StartDate = &parsed
	}
	if raw, _ := cmd.Flags().GetString("end"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return fmt.Errorf("invalid --end date %q: %w", raw, err)
		}
		filter.EndDate = &parsed
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	groups, err := a.engine.DetectDuplicates(cmd.Context(), filter)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		fmt.Println(cli.FormatSuccess("No duplicates found"))
		return nil
	}

	rows := make([][]string, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, []string{
			string(g.DuplicateType),
			strings.Join(g.Transactions, ", "),
			g.Representative,
			string(g.Suggestion),
			fmt.Sprintf("%.2f", g.SimilarityScore),
		})
	}

	fmt.Println(cli.FormatTitle(fmt.Sprintf("%d duplicate groups", len(groups))))
	fmt.Println(cli.RenderTable(
		[]string{"Type", "Transactions", "Keep", "Suggestion", "Score"},
		rows,
	))
	return nil
}
