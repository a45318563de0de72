package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillfin/quill/internal/cli"
	"github.com/quillfin/quill/internal/common"
)

func correctCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "correct <transaction-id> <category>",
		Short: "Re-categorize a transaction",
		Long: `Record a correction for a misclassified transaction. The transaction is
marked user-validated and the correction feeds pattern learning, rule
induction, and classifier retraining.`,
		Args: cobra.ExactArgs(2),
		RunE: runCorrect,
	}

	cmd.Flags().String("subcategory", "", "subcategory to set alongside the category")
	return cmd
}

func runCorrect(cmd *cobra.Command, args []string) error {
	subcategory, _ := cmd.Flags().GetString("subcategory")

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.engine.RecordCorrection(cmd.Context(), args[0], args[1], subcategory); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.NewUserError(fmt.Sprintf("no transaction with ID %s", args[0]), err)
		}
		return err
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Corrected %s to %s", args[0], args[1])))
	return nil
}
