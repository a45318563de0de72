package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/quillfin/quill/internal/cli"
)

func metricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Show learning metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			m, err := a.engine.Metrics(cmd.Context())
			if err != nil {
				return err
			}

			lastTrained := "never"
			if !m.LastTrainedAt.IsZero() {
				lastTrained = m.LastTrainedAt.Format("2006-01-02 15:04")
			}

			fmt.Println(cli.FormatTitle(cli.ChartIcon + " Learning metrics"))
			fmt.Println(cli.RenderTable(
				[]string{"Metric", "Value"},
				[][]string{
					{"Corrections recorded", strconv.Itoa(m.TotalCorrections)},
					{"Patterns learned", strconv.Itoa(m.PatternsLearned)},
					{"Auto-created rules", strconv.Itoa(m.AutoCreatedRules)},
					{"Known categories", strconv.Itoa(m.KnownCategories)},
					{"Last trained", lastTrained},
					{"Estimated accuracy gain", fmt.Sprintf("%.0f%%", m.AccuracyImprovement*100)},
				},
			))
			return nil
		},
	}
}
