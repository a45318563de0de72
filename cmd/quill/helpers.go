package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/quillfin/quill/internal/config"
	"github.com/quillfin/quill/internal/decision"
	"github.com/quillfin/quill/internal/engine"
	"github.com/quillfin/quill/internal/learning"
	"github.com/quillfin/quill/internal/rules"
	"github.com/quillfin/quill/internal/storage"
)

// app bundles the wired components every subcommand needs.
type app struct {
	settings *config.Settings
	store    *storage.SQLiteStorage
	learner  *learning.Engine
	engine   *engine.ProcessingEngine
}

// openApp resolves configuration, opens storage, and wires the engines. The
// saved classifier model is restored if one exists.
func openApp(ctx context.Context) (*app, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(settings.DatabasePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(settings.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	learnerConfig := learning.DefaultConfig()
	learnerConfig.MinCorrectionsForRule = settings.MinCorrectionsForRule
	learnerConfig.MinCorrectionsForRetraining = settings.MinCorrectionsForRetraining
	learnerConfig.RetrainingInterval = settings.RetrainingInterval
	learnerConfig.ConfidenceThreshold = settings.ConfidenceThreshold
	learnerConfig.SimilarityThreshold = settings.SimilarityThreshold

	learner := learning.NewEngine(store, learnerConfig)
	if err := learner.LoadModel(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	engineConfig := engine.DefaultConfig()
	engineConfig.ConflictStrategy = rules.ConflictStrategy(settings.ConflictStrategy)
	engineConfig.Decision = decision.Config{
		AutoProcessThreshold:    settings.AutoProcessThreshold,
		TargetedReviewThreshold: settings.TargetedReviewThreshold,
	}

	return &app{
		settings: settings,
		store:    store,
		learner:  learner,
		engine:   engine.New(store, learner, engineConfig),
	}, nil
}

func (a *app) Close() {
	_ = a.store.Close()
}
