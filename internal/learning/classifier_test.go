package learning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trainingExamples() []Example {
	return []Example{
		{Text: "STARBUCKS COFFEE #123", Category: "Dining"},
		{Text: "STARBUCKS STORE LATTE", Category: "Dining"},
		{Text: "COFFEE SHOP DOWNTOWN", Category: "Dining"},
		{Text: "SHELL GASOLINE STATION", Category: "Gas"},
		{Text: "SHELL FUEL PURCHASE", Category: "Gas"},
		{Text: "CHEVRON GASOLINE", Category: "Gas"},
	}
}

func TestClassifierTrainAndPredict(t *testing.T) {
	c := NewClassifier(0.8)
	require.NoError(t, c.Train(trainingExamples(), 200, 0.5))

	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "coffee text", text: "STARBUCKS COFFEE ORDER", want: "Dining"},
		{name: "fuel text", text: "SHELL GASOLINE 99", want: "Gas"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred := c.Predict(tt.text)
			require.NotNil(t, pred)
			assert.Equal(t, tt.want, pred.Category)
			assert.Greater(t, pred.Confidence, 0.8)
		})
	}
}

func TestClassifierPredictReturnsNil(t *testing.T) {
	t.Run("untrained", func(t *testing.T) {
		c := NewClassifier(0.8)
		assert.Nil(t, c.Predict("STARBUCKS COFFEE"))
	})

	t.Run("no recognizable tokens", func(t *testing.T) {
		c := NewClassifier(0.5)
		require.NoError(t, c.Train(trainingExamples(), 50, 0.5))
		assert.Nil(t, c.Predict("ZZZQQQ UNRELATED WORDS"))
	})

	t.Run("short and stopword tokens only", func(t *testing.T) {
		c := NewClassifier(0.5)
		require.NoError(t, c.Train(trainingExamples(), 50, 0.5))
		assert.Nil(t, c.Predict("the a of 12"))
	})
}

func TestClassifierTrainValidation(t *testing.T) {
	c := NewClassifier(0.8)
	assert.Error(t, c.Train(nil, 50, 0.5))
}

func TestClassifierTrainIsDeterministic(t *testing.T) {
	a := NewClassifier(0.5)
	b := NewClassifier(0.5)
	require.NoError(t, a.Train(trainingExamples(), 50, 0.5))
	require.NoError(t, b.Train(trainingExamples(), 50, 0.5))

	for _, text := range []string{"STARBUCKS LATTE", "SHELL FUEL", "CHEVRON GASOLINE"} {
		predA := a.Predict(text)
		predB := b.Predict(text)
		require.NotNil(t, predA)
		require.NotNil(t, predB)
		assert.Equal(t, predA.Category, predB.Category)
		assert.InDelta(t, predA.Confidence, predB.Confidence, 1e-12)
	}
}

func TestClassifierSnapshotRoundTrip(t *testing.T) {
	original := NewClassifier(0.5)
	require.NoError(t, original.Train(trainingExamples(), 100, 0.5))

	payload, err := original.Snapshot()
	require.NoError(t, err)

	restored, err := RestoreClassifier(payload)
	require.NoError(t, err)
	assert.Equal(t, original.Categories(), restored.Categories())

	// A restored model must be an equivalent predictor.
	for _, text := range []string{
		"STARBUCKS COFFEE ORDER",
		"SHELL GASOLINE 99",
		"CHEVRON FUEL",
		"ZZZQQQ UNRELATED",
	} {
		want := original.Predict(text)
		got := restored.Predict(text)
		if want == nil {
			assert.Nil(t, got, "text %q", text)
			continue
		}
		require.NotNil(t, got, "text %q", text)
		assert.Equal(t, want.Category, got.Category)
		assert.InDelta(t, want.Confidence, got.Confidence, 1e-12)
	}
}

func TestRestoreClassifierRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: "not a model"},
		{name: "wrong feature dimension", payload: `{"feature_dim":64,"categories":[],"weights":[],"bias":[]}`},
		{name: "mismatched layout", payload: `{"feature_dim":100,"categories":["A","B"],"weights":[[]],"bias":[0]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RestoreClassifier([]byte(tt.payload))
			assert.Error(t, err)
		})
	}
}

func TestClassifierGrowsCategorySet(t *testing.T) {
	c := NewClassifier(0.5)
	require.NoError(t, c.Train(trainingExamples(), 50, 0.5))
	require.Len(t, c.Categories(), 2)

	more := append(trainingExamples(),
		Example{Text: "TRADER JOES MARKET", Category: "Groceries"},
		Example{Text: "WHOLE FOODS MARKET", Category: "Groceries"},
	)
	require.NoError(t, c.Train(more, 50, 0.5))
	assert.Len(t, c.Categories(), 3)
}
