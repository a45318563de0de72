package config

import (
	"errors"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillfin/quill/internal/common"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	SetDefaults()
	t.Cleanup(viper.Reset)
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)

	s, err := Load()
	require.NoError(t, err)
	assert.NotEmpty(t, s.DatabasePath)
	assert.Equal(t, "highest_confidence", s.ConflictStrategy)
	assert.InDelta(t, 0.95, s.AutoProcessThreshold, 0.001)
	assert.InDelta(t, 0.80, s.TargetedReviewThreshold, 0.001)
	assert.Equal(t, 3, s.MinCorrectionsForRule)
	assert.Equal(t, 10, s.MinCorrectionsForRetraining)
	assert.Equal(t, "24h0m0s", s.RetrainingInterval.String())
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Run("unknown conflict strategy", func(t *testing.T) {
		resetViper(t)
		viper.Set("rules.conflict_strategy", "coin_flip")

		_, err := Load()
		require.Error(t, err)
		assert.True(t, errors.Is(err, common.ErrInvalidConfig))
	})

	t.Run("unparsable interval", func(t *testing.T) {
		resetViper(t)
		viper.Set("learning.retraining_interval", "soon")

		_, err := Load()
		require.Error(t, err)
		assert.True(t, errors.Is(err, common.ErrInvalidConfig))
	})

	t.Run("inverted thresholds", func(t *testing.T) {
		resetViper(t)
		viper.Set("decision.auto_process_threshold", 0.5)

		_, err := Load()
		require.Error(t, err)
		assert.True(t, errors.Is(err, common.ErrInvalidConfig))
	})
}

func TestExpandPath(t *testing.T) {
	t.Setenv("QUILL_TEST_DIR", "/tmp/quill")
	assert.Equal(t, "/tmp/quill/data.db", ExpandPath("$QUILL_TEST_DIR/data.db"))
	assert.Equal(t, "", ExpandPath(""))
}
