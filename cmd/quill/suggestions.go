package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/quillfin/quill/internal/cli"
)

func suggestionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggestions",
		Short: "Review rule suggestions mined from corrections",
	}

	cmd.AddCommand(suggestionsListCmd())
	cmd.AddCommand(suggestionsAcceptCmd())
	cmd.AddCommand(suggestionsRejectCmd())
	return cmd
}

func suggestionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Mine the correction history and list suggestions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			mined, err := a.engine.RefreshSuggestions(cmd.Context())
			if err != nil {
				return err
			}
			if len(mined) == 0 {
				fmt.Println(cli.SubtleStyle.Render("No suggestions; record more corrections first."))
				return nil
			}

			rows := make([][]string, 0, len(mined))
			for _, s := range mined {
				rows = append(rows, []string{
					s.ID,
					s.Reason,
					fmt.Sprintf("%.2f", s.Confidence),
					strconv.Itoa(s.EstimatedMatches),
				})
			}
			fmt.Println(cli.FormatTitle("Rule suggestions"))
			fmt.Println(cli.RenderTable(
				[]string{"ID", "Reason", "Confidence", "Matches"},
				rows,
			))
			return nil
		},
	}
}

func suggestionsAcceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <suggestion-id>",
		Short: "Accept a suggestion as a persistent rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			// The pool is per process, so re-mine before resolving the ID.
			if _, err := a.engine.RefreshSuggestions(cmd.Context()); err != nil {
				return err
			}

			rule, err := a.engine.AcceptSuggestion(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Created rule %s (%s)", rule.Name, rule.ID)))
			return nil
		},
	}
}

func suggestionsRejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <suggestion-id>",
		Short: "Discard a suggestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.engine.RefreshSuggestions(cmd.Context()); err != nil {
				return err
			}
			if err := a.engine.RejectSuggestion(args[0]); err != nil {
				return err
			}
			fmt.Println(cli.FormatSuccess("Suggestion discarded"))
			return nil
		},
	}
}
