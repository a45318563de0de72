package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillfin/quill/internal/cli"
	"github.com/quillfin/quill/internal/common"
	"github.com/quillfin/quill/internal/learning"
)

func trainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Retrain the classifier from corrections",
		Long: `Rebuild the fallback classifier from the full correction history and
learned patterns, then save the model. With --watch the command keeps
running and retrains on the configured schedule whenever enough new
corrections have accumulated.`,
		RunE: runTrain,
	}

	cmd.Flags().Bool("watch", false, "keep running and retrain on the configured schedule")
	return cmd
}

func runTrain(cmd *cobra.Command, _ []string) error {
	watch, _ := cmd.Flags().GetBool("watch")

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if watch {
		scheduler := learning.NewScheduler(a.learner)
		if err := scheduler.Start(cmd.Context(), a.settings.TrainingSchedule); err != nil {
			return fmt.Errorf("failed to start training schedule: %w", err)
		}
		defer scheduler.Stop()

		fmt.Println(cli.FormatTitle(fmt.Sprintf("Watching for retraining (%s); Ctrl-C to stop", a.settings.TrainingSchedule)))
		<-cmd.Context().Done()
		return nil
	}

	if err := a.learner.Train(cmd.Context()); err != nil {
		if errors.Is(err, common.ErrNoCorrections) {
			fmt.Println(cli.FormatWarning("No corrections recorded yet; nothing to train on"))
			return nil
		}
		return err
	}

	fmt.Println(cli.FormatSuccess("Classifier retrained and saved"))
	return nil
}
