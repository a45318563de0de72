package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/quillfin/quill/internal/common"
)

// Settings is the typed application configuration resolved from viper.
type Settings struct {
	DatabasePath                string
	ConflictStrategy            string
	TrainingSchedule            string
	AutoProcessThreshold        float64
	TargetedReviewThreshold     float64
	ConfidenceThreshold         float64
	SimilarityThreshold         float64
	MinCorrectionsForRule       int
	MinCorrectionsForRetraining int
	RetrainingInterval          time.Duration
}

// SetDefaults registers default values for every configuration key.
func SetDefaults() {
	viper.SetDefault("database.path", "")
	viper.SetDefault("rules.conflict_strategy", "highest_confidence")
	viper.SetDefault("decision.auto_process_threshold", 0.95)
	viper.SetDefault("decision.targeted_review_threshold", 0.80)
	viper.SetDefault("learning.confidence_threshold", 0.8)
	viper.SetDefault("learning.similarity_threshold", 0.7)
	viper.SetDefault("learning.min_corrections_for_rule", 3)
	viper.SetDefault("learning.min_corrections_for_retraining", 10)
	viper.SetDefault("learning.retraining_interval", "24h")
	viper.SetDefault("learning.training_schedule", "@hourly")
}

// Load resolves settings from viper, applying defaults and validating.
func Load() (*Settings, error) {
	s := &Settings{
		DatabasePath:                ExpandPath(viper.GetString("database.path")),
		ConflictStrategy:            viper.GetString("rules.conflict_strategy"),
		TrainingSchedule:            viper.GetString("learning.training_schedule"),
		AutoProcessThreshold:        viper.GetFloat64("decision.auto_process_threshold"),
		TargetedReviewThreshold:     viper.GetFloat64("decision.targeted_review_threshold"),
		ConfidenceThreshold:         viper.GetFloat64("learning.confidence_threshold"),
		SimilarityThreshold:         viper.GetFloat64("learning.similarity_threshold"),
		MinCorrectionsForRule:       viper.GetInt("learning.min_corrections_for_rule"),
		MinCorrectionsForRetraining: viper.GetInt("learning.min_corrections_for_retraining"),
	}

	if s.DatabasePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("%w: database.path and no home directory: %v", common.ErrMissingConfig, err)
		}
		s.DatabasePath = filepath.Join(home, ".local", "share", "quill", "quill.db")
	}

	interval, err := time.ParseDuration(viper.GetString("learning.retraining_interval"))
	if err != nil {
		return nil, fmt.Errorf("%w: learning.retraining_interval: %v", common.ErrInvalidConfig, err)
	}
	s.RetrainingInterval = interval

	switch s.ConflictStrategy {
	case "highest_confidence", "most_recent", "user_choice":
	default:
		return nil, fmt.Errorf("%w: rules.conflict_strategy %q", common.ErrInvalidConfig, s.ConflictStrategy)
	}

	if s.AutoProcessThreshold < s.TargetedReviewThreshold {
		return nil, fmt.Errorf("%w: auto_process_threshold below targeted_review_threshold", common.ErrInvalidConfig)
	}

	return s, nil
}
