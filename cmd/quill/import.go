package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quillfin/quill/internal/cli"
	"github.com/quillfin/quill/internal/config"
	"github.com/quillfin/quill/internal/model"
)

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import extracted transactions",
		Long: `Load a JSON array of extracted transactions into the database. Re-imported
transactions are upserted by ID, so running the same file twice does not
create duplicates.`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(config.ExpandPath(args[0]))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	var transactions []model.Transaction
	if err := json.Unmarshal(data, &transactions); err != nil {
		return fmt.Errorf("failed to parse %s: %w", args[0], err)
	}
	if len(transactions) == 0 {
		fmt.Println(cli.FormatWarning("No transactions in file"))
		return nil
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.SaveTransactions(cmd.Context(), transactions); err != nil {
		return err
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Imported %d transactions", len(transactions))))
	return nil
}
