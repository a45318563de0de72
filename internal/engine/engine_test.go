package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillfin/quill/internal/common"
	"github.com/quillfin/quill/internal/learning"
	"github.com/quillfin/quill/internal/model"
	"github.com/quillfin/quill/internal/service"
	"github.com/quillfin/quill/internal/storage"
)

func newTestEngine(t *testing.T) (*ProcessingEngine, *storage.SQLiteStorage, func()) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := storage.NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))

	learnerConfig := learning.DefaultConfig()
	learnerConfig.MinCorrectionsForRetraining = 1000
	learner := learning.NewEngine(store, learnerConfig)

	return New(store, learner, DefaultConfig()), store, func() { _ = store.Close() }
}

func unclassifiedTransaction(id, description, merchant string, day int) model.Transaction {
	return model.Transaction{
		ID:                   id,
		Date:                 time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC),
		Description:          description,
		MerchantName:         merchant,
		Amount:               -10.00,
		Type:                 model.TypeDebit,
		ExtractionConfidence: 0.95,
	}
}

func TestClassifyTransactionsWithRules(t *testing.T) {
	ctx := context.Background()
	engine, store, cleanup := newTestEngine(t)
	defer cleanup()

	rule := &model.Rule{
		ID:   "rule-starbucks",
		Name: "Starbucks to Dining",
		Conditions: []model.Condition{
			{Field: model.FieldMerchantName, Operator: model.OpContains, StringValue: "starbucks"},
		},
		Action:     model.RuleAction{Type: model.ActionSetCategory, Value: "Dining"},
		Source:     model.RuleSourceUser,
		Confidence: 1.0,
		IsActive:   true,
	}
	require.NoError(t, store.CreateRule(ctx, rule))

	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{
		unclassifiedTransaction("txn-1", "STARBUCKS STORE #1", "Starbucks", 1),
		unclassifiedTransaction("txn-2", "UNKNOWN VENDOR 99", "", 2),
	}))

	var progressCalls int
	stats, err := engine.ClassifyTransactions(ctx, nil, func(done, total int) {
		progressCalls++
		assert.Equal(t, 2, total)
	})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.RuleClassified)
	assert.Equal(t, 1, stats.Unclassified)
	assert.Equal(t, 2, progressCalls)
	assert.Equal(t, 1, stats.Tiers[model.TierAutoAccept])
	assert.Equal(t, 1, stats.Tiers[model.TierFullReview])

	classified, err := store.GetTransactionByID(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, "Dining", classified.Category)
	assert.Equal(t, []string{"rule-starbucks"}, classified.AppliedRules)
	assert.InDelta(t, 1.0, classified.ClassificationConfidence, 0.001)
	assert.Greater(t, classified.OverallConfidence, 0.95)

	used, err := store.GetRule(ctx, "rule-starbucks")
	require.NoError(t, err)
	assert.Equal(t, 1, used.UseCount)

	t.Run("nothing left to classify", func(t *testing.T) {
		stats, err := engine.ClassifyTransactions(ctx, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Total, "only the unclassified transaction remains")
	})
}

func TestClassifyTransactionsEmpty(t *testing.T) {
	engine, _, cleanup := newTestEngine(t)
	defer cleanup()

	stats, err := engine.ClassifyTransactions(context.Background(), nil, nil)
	require.ErrorIs(t, err, common.ErrNoTransactions)
	assert.Zero(t, stats.Total)
}

func TestClassifyTransactionsClassifierFallback(t *testing.T) {
	ctx := context.Background()
	engine, store, cleanup := newTestEngine(t)
	defer cleanup()

	// Teach the learner two clearly separated categories, then train
	// explicitly.
	for _, suffix := range []string{"111", "222", "333"} {
		gas := &model.UserCorrection{
			ID:                      "gas-" + suffix,
			TransactionID:           "seed-gas-" + suffix,
			CorrectedClassification: "Gas",
			MerchantName:            "Shell",
			Description:             "SHELL GASOLINE " + suffix,
			Timestamp:               time.Now(),
		}
		require.NoError(t, store.SaveCorrection(ctx, gas))

		dining := &model.UserCorrection{
			ID:                      "dining-" + suffix,
			TransactionID:           "seed-dining-" + suffix,
			CorrectedClassification: "Dining",
			MerchantName:            "Starbucks",
			Description:             "STARBUCKS COFFEE " + suffix,
			Timestamp:               time.Now(),
		}
		require.NoError(t, store.SaveCorrection(ctx, dining))
	}
	require.NoError(t, engine.learner.Train(ctx))

	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{
		unclassifiedTransaction("txn-1", "SHELL GASOLINE 999", "Shell", 1),
	}))

	stats, err := engine.ClassifyTransactions(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ModelClassified)

	classified, err := store.GetTransactionByID(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, "Gas", classified.Category)
	assert.Greater(t, classified.ClassificationConfidence, 0.8)
}

func TestRecordCorrection(t *testing.T) {
	ctx := context.Background()
	engine, store, cleanup := newTestEngine(t)
	defer cleanup()

	txn := unclassifiedTransaction("txn-1", "SHELL OIL 12345", "Shell", 1)
	txn.Category = "Dining"
	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{txn}))

	require.NoError(t, engine.RecordCorrection(ctx, "txn-1", "Gas", "Fuel"))

	updated, err := store.GetTransactionByID(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, "Gas", updated.Category)
	assert.Equal(t, "Fuel", updated.Subcategory)
	assert.True(t, updated.UserValidated)

	corrections, err := store.GetCorrections(ctx)
	require.NoError(t, err)
	require.Len(t, corrections, 1)
	assert.Equal(t, "Dining", corrections[0].OriginalClassification)
	assert.Equal(t, "Gas", corrections[0].CorrectedClassification)

	t.Run("unknown transaction", func(t *testing.T) {
		assert.Error(t, engine.RecordCorrection(ctx, "missing", "Gas", ""))
	})
}

func TestDetectDuplicates(t *testing.T) {
	ctx := context.Background()
	engine, store, cleanup := newTestEngine(t)
	defer cleanup()

	a := unclassifiedTransaction("txn-a", "STARBUCKS STORE #123", "Starbucks", 15)
	b := unclassifiedTransaction("txn-b", "STARBUCKS STORE #123", "Starbucks", 15)
	c := unclassifiedTransaction("txn-c", "TRADER JOES MARKET", "Trader Joes", 16)
	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{a, b, c}))

	groups, err := engine.DetectDuplicates(ctx, service.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, model.DuplicateExact, groups[0].DuplicateType)
	assert.ElementsMatch(t, []string{"txn-a", "txn-b"}, groups[0].Transactions)
}

func TestSuggestionLifecycle(t *testing.T) {
	ctx := context.Background()
	engine, store, cleanup := newTestEngine(t)
	defer cleanup()

	for i, suffix := range []string{"111", "222"} {
		correction := &model.UserCorrection{
			ID:                      "corr-" + suffix,
			TransactionID:           "txn-" + suffix,
			CorrectedClassification: "Gas",
			MerchantName:            "Shell",
			Description:             "SHELL GASOLINE " + suffix,
			Amount:                  -45.00,
			Timestamp:               time.Now().Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.SaveCorrection(ctx, correction))
	}

	suggestions, err := engine.RefreshSuggestions(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)
	assert.Equal(t, suggestions, engine.Suggestions())

	t.Run("accept persists rule with provenance", func(t *testing.T) {
		accepted, err := engine.AcceptSuggestion(ctx, suggestions[0].ID)
		require.NoError(t, err)
		assert.Equal(t, model.RuleSourceSuggestion, accepted.Source)

		persisted, err := store.GetRule(ctx, accepted.ID)
		require.NoError(t, err)
		assert.Equal(t, suggestions[0].Action, persisted.Action)
		assert.InDelta(t, suggestions[0].Confidence, persisted.Confidence, 0.001)
		assert.NotContains(t, engine.Suggestions(), suggestions[0])
	})

	t.Run("reject discards", func(t *testing.T) {
		remaining := engine.Suggestions()
		require.NotEmpty(t, remaining)
		require.NoError(t, engine.RejectSuggestion(remaining[0].ID))
		assert.Len(t, engine.Suggestions(), len(remaining)-1)
	})

	t.Run("unknown suggestion", func(t *testing.T) {
		_, err := engine.AcceptSuggestion(ctx, "nope")
		assert.Error(t, err)
	})
}

func TestMetricsPassthrough(t *testing.T) {
	ctx := context.Background()
	engine, _, cleanup := newTestEngine(t)
	defer cleanup()

	metrics, err := engine.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, metrics.TotalCorrections)
}
