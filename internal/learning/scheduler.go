package learning

import (
	"context"
	"errors"
	"log/slog"

	"github.com/quillfin/quill/internal/common"
	"github.com/robfig/cron/v3"
)

// Scheduler periodically checks the retraining trigger and runs a training
// cycle when it is due. The engine's own guard serializes runs, so an
// overlapping tick is a no-op.
type Scheduler struct {
	cron   *cron.Cron
	engine *Engine
}

// NewScheduler creates a scheduler for the given engine.
func NewScheduler(engine *Engine) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		engine: engine,
	}
}

// Start registers the check on the given cron spec (e.g. "@hourly") and
// starts the scheduler. Training runs with the supplied context so shutdown
// can abandon an in-flight cycle.
func (s *Scheduler) Start(ctx context.Context, spec string) error {
	if spec == "" {
		spec = "@hourly"
	}

	_, err := s.cron.AddFunc(spec, func() {
		due, dueErr := s.engine.retrainingDue(ctx)
		if dueErr != nil {
			slog.Error("Failed to evaluate retraining trigger", "error", dueErr)
			return
		}
		if !due {
			return
		}

		if trainErr := s.engine.Train(ctx); trainErr != nil {
			if errors.Is(trainErr, common.ErrTrainingInProgress) {
				slog.Debug("Skipping scheduled training, run already in flight")
				return
			}
			// Model stays at its last good state; the next tick retries.
			slog.Error("Scheduled training failed", "error", trainErr)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop halts the scheduler. In-flight training finishes or is abandoned via
// the context passed to Start.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
