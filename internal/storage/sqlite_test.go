package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillfin/quill/internal/common"
	"github.com/quillfin/quill/internal/model"
	"github.com/quillfin/quill/internal/service"
)

func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	return store, func() { _ = store.Close() }
}

func testTransaction(id string, day int) model.Transaction {
	return model.Transaction{
		ID:                   id,
		Date:                 time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC),
		Description:          "STARBUCKS STORE #123",
		MerchantName:         "Starbucks",
		Amount:               -4.95,
		Type:                 model.TypeDebit,
		ExtractionConfidence: 0.95,
	}
}

func TestSaveAndGetTransactions(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	txns := []model.Transaction{
		testTransaction("txn-1", 1),
		testTransaction("txn-2", 2),
	}
	txns[1].Category = "Dining"
	txns[1].AppliedRules = []string{"rule-a"}

	require.NoError(t, store.SaveTransactions(ctx, txns))

	t.Run("get by id", func(t *testing.T) {
		got, err := store.GetTransactionByID(ctx, "txn-2")
		require.NoError(t, err)
		assert.Equal(t, "Dining", got.Category)
		assert.Equal(t, []string{"rule-a"}, got.AppliedRules)
		assert.Equal(t, model.TypeDebit, got.Type)
		assert.InDelta(t, -4.95, got.Amount, 0.001)
	})

	t.Run("not found wraps sentinel", func(t *testing.T) {
		_, err := store.GetTransactionByID(ctx, "missing")
		require.Error(t, err)
		assert.True(t, errors.Is(err, common.ErrNotFound))
	})

	t.Run("filter by category", func(t *testing.T) {
		got, err := store.GetTransactions(ctx, service.TransactionFilter{Category: "Dining"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "txn-2", got[0].ID)
	})

	t.Run("filter by date range", func(t *testing.T) {
		start := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
		got, err := store.GetTransactions(ctx, service.TransactionFilter{StartDate: &start})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "txn-2", got[0].ID)
	})

	t.Run("upsert updates classification fields", func(t *testing.T) {
		updated := testTransaction("txn-1", 1)
		updated.Category = "Coffee"
		updated.ClassificationConfidence = 0.9
		require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{updated}))

		got, err := store.GetTransactionByID(ctx, "txn-1")
		require.NoError(t, err)
		assert.Equal(t, "Coffee", got.Category)
		assert.InDelta(t, 0.9, got.ClassificationConfidence, 0.001)
	})

	t.Run("empty batch rejected", func(t *testing.T) {
		err := store.SaveTransactions(ctx, nil)
		assert.Error(t, err)
	})

	t.Run("invalid transaction rejected", func(t *testing.T) {
		bad := testTransaction("txn-3", 3)
		bad.Type = "transfer"
		err := store.SaveTransactions(ctx, []model.Transaction{bad})
		assert.Error(t, err)
	})
}

func TestGetTransactionsToClassify(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	classified := testTransaction("classified", 1)
	classified.Category = "Dining"
	unclassified := testTransaction("unclassified", 2)
	validated := testTransaction("validated", 3)
	validated.UserValidated = true

	require.NoError(t, store.SaveTransactions(ctx,
		[]model.Transaction{classified, unclassified, validated}))

	got, err := store.GetTransactionsToClassify(ctx, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "unclassified", got[0].ID)

	from := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)
	got, err = store.GetTransactionsToClassify(ctx, &from)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUpdateTransactionClassification(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	txn := testTransaction("txn-1", 1)
	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{txn}))

	txn.Category = "Dining"
	txn.Subcategory = "Coffee Shops"
	txn.AppliedRules = []string{"rule-x"}
	txn.ClassificationConfidence = 0.85
	txn.UserValidated = true
	require.NoError(t, store.UpdateTransactionClassification(ctx, &txn))

	got, err := store.GetTransactionByID(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, "Dining", got.Category)
	assert.Equal(t, "Coffee Shops", got.Subcategory)
	assert.Equal(t, []string{"rule-x"}, got.AppliedRules)
	assert.True(t, got.UserValidated)

	t.Run("unknown transaction", func(t *testing.T) {
		missing := testTransaction("ghost", 1)
		err := store.UpdateTransactionClassification(ctx, &missing)
		require.Error(t, err)
		assert.True(t, errors.Is(err, common.ErrNotFound))
	})
}

func testRule(id, name string) *model.Rule {
	return &model.Rule{
		ID:   id,
		Name: name,
		Conditions: []model.Condition{
			{Field: model.FieldMerchantName, Operator: model.OpContains, StringValue: "starbucks"},
		},
		Action:     model.RuleAction{Type: model.ActionSetCategory, Value: "Dining"},
		Source:     model.RuleSourceUser,
		Confidence: 0.9,
		IsActive:   true,
	}
}

func TestRuleCRUD(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	rule := testRule("rule-1", "Starbucks to Dining")
	require.NoError(t, store.CreateRule(ctx, rule))

	t.Run("round trip", func(t *testing.T) {
		got, err := store.GetRule(ctx, "rule-1")
		require.NoError(t, err)
		assert.Equal(t, rule.Name, got.Name)
		assert.Equal(t, rule.Conditions, got.Conditions)
		assert.Equal(t, rule.Action, got.Action)
		assert.Equal(t, model.RuleSourceUser, got.Source)
		assert.True(t, got.IsActive)
	})

	t.Run("active rules ordered by confidence", func(t *testing.T) {
		stronger := testRule("rule-2", "Stronger")
		stronger.Confidence = 0.95
		require.NoError(t, store.CreateRule(ctx, stronger))

		inactive := testRule("rule-3", "Inactive")
		inactive.IsActive = false
		require.NoError(t, store.CreateRule(ctx, inactive))

		got, err := store.GetActiveRules(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "rule-2", got[0].ID)
		assert.Equal(t, "rule-1", got[1].ID)
	})

	t.Run("update", func(t *testing.T) {
		rule.Confidence = 0.7
		rule.IsActive = false
		require.NoError(t, store.UpdateRule(ctx, rule))

		got, err := store.GetRule(ctx, "rule-1")
		require.NoError(t, err)
		assert.InDelta(t, 0.7, got.Confidence, 0.001)
		assert.False(t, got.IsActive)
	})

	t.Run("increment use count", func(t *testing.T) {
		require.NoError(t, store.IncrementRuleUseCount(ctx, "rule-2"))
		require.NoError(t, store.IncrementRuleUseCount(ctx, "rule-2"))

		got, err := store.GetRule(ctx, "rule-2")
		require.NoError(t, err)
		assert.Equal(t, 2, got.UseCount)
	})

	t.Run("count by source", func(t *testing.T) {
		learned := testRule("rule-4", "Learned")
		learned.Source = model.RuleSourceLearned
		require.NoError(t, store.CreateRule(ctx, learned))

		count, err := store.CountRulesBySource(ctx, model.RuleSourceLearned)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.DeleteRule(ctx, "rule-1"))
		_, err := store.GetRule(ctx, "rule-1")
		require.Error(t, err)
		assert.True(t, errors.Is(err, common.ErrNotFound))
	})

	t.Run("invalid rule rejected", func(t *testing.T) {
		bad := testRule("rule-5", "Bad")
		bad.Conditions = nil
		assert.Error(t, store.CreateRule(ctx, bad))
	})
}

func TestCreateRuleWithProvenance(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	rule := testRule("rule-1", "Induced rule")
	rule.Source = model.RuleSourceLearned
	require.NoError(t, store.CreateRuleWithProvenance(ctx, rule, []string{"corr-1", "corr-2"}))

	got, err := store.GetRule(ctx, "rule-1")
	require.NoError(t, err)
	assert.Equal(t, model.RuleSourceLearned, got.Source)

	var count int
	err = store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rule_provenance WHERE rule_id = ?`, "rule-1").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	t.Run("duplicate rule rolls back provenance", func(t *testing.T) {
		again := testRule("rule-1", "Induced rule")
		err := store.CreateRuleWithProvenance(ctx, again, []string{"corr-3"})
		require.ErrorIs(t, err, common.ErrDuplicateEntry)

		var after int
		require.NoError(t, store.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM rule_provenance`).Scan(&after))
		assert.Equal(t, 2, after)
	})

	t.Run("delete removes provenance", func(t *testing.T) {
		require.NoError(t, store.DeleteRule(ctx, "rule-1"))

		var after int
		require.NoError(t, store.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM rule_provenance WHERE rule_id = ?`, "rule-1").Scan(&after))
		assert.Equal(t, 0, after)
	})
}

func TestCorrections(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	corrections := []model.UserCorrection{
		{
			ID:                      "corr-1",
			TransactionID:           "txn-1",
			OriginalClassification:  "Dining",
			CorrectedClassification: "Gas",
			MerchantName:            "Shell",
			Description:             "SHELL OIL 123",
			Amount:                  -45.00,
			FeedbackType:            model.FeedbackManualEdit,
			Timestamp:               base,
		},
		{
			ID:                      "corr-2",
			TransactionID:           "txn-2",
			CorrectedClassification: "Gas",
			Description:             "SHELL OIL 456",
			Timestamp:               base.Add(time.Hour),
		},
		{
			ID:                      "corr-3",
			TransactionID:           "txn-3",
			CorrectedClassification: "Groceries",
			Description:             "TRADER JOES",
			Timestamp:               base.Add(2 * time.Hour),
		},
	}
	for i := range corrections {
		require.NoError(t, store.SaveCorrection(ctx, &corrections[i]))
	}

	t.Run("get all oldest first", func(t *testing.T) {
		got, err := store.GetCorrections(ctx)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "corr-1", got[0].ID)
		assert.Equal(t, "Shell", got[0].MerchantName)
		assert.Equal(t, model.FeedbackManualEdit, got[0].FeedbackType)
	})

	t.Run("get by category", func(t *testing.T) {
		got, err := store.GetCorrectionsByCategory(ctx, "Gas")
		require.NoError(t, err)
		require.Len(t, got, 2)
	})

	t.Run("counts", func(t *testing.T) {
		total, err := store.CountCorrections(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, total)

		recent, err := store.CountCorrectionsSince(ctx, base.Add(30*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 2, recent)
	})

	t.Run("duplicate id rejected", func(t *testing.T) {
		dup := corrections[0]
		err := store.SaveCorrection(ctx, &dup)
		assert.Error(t, err)
	})

	t.Run("invalid correction rejected", func(t *testing.T) {
		bad := &model.UserCorrection{ID: "corr-4", TransactionID: "txn-4"}
		assert.Error(t, store.SaveCorrection(ctx, bad))
	})
}

func TestLearningPatterns(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	seen := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	pattern := &model.LearningPattern{
		ID:          "pat-1",
		Pattern:     "shell",
		Category:    "Gas",
		Confidence:  0.7,
		Occurrences: 1,
		LastSeen:    seen,
		Source:      model.PatternSourceCorrection,
	}
	require.NoError(t, store.UpsertLearningPattern(ctx, pattern))

	t.Run("round trip", func(t *testing.T) {
		got, err := store.GetLearningPattern(ctx, "shell", "Gas")
		require.NoError(t, err)
		assert.Equal(t, "pat-1", got.ID)
		assert.InDelta(t, 0.7, got.Confidence, 0.001)
		assert.Equal(t, 1, got.Occurrences)
		assert.Equal(t, model.PatternSourceCorrection, got.Source)
	})

	t.Run("not found wraps sentinel", func(t *testing.T) {
		_, err := store.GetLearningPattern(ctx, "shell", "Dining")
		require.Error(t, err)
		assert.True(t, errors.Is(err, common.ErrNotFound))
	})

	t.Run("reinforcement persists via upsert", func(t *testing.T) {
		pattern.Reinforce(seen.Add(24 * time.Hour))
		require.NoError(t, store.UpsertLearningPattern(ctx, pattern))

		got, err := store.GetLearningPattern(ctx, "shell", "Gas")
		require.NoError(t, err)
		assert.InDelta(t, 0.8, got.Confidence, 0.001)
		assert.Equal(t, 2, got.Occurrences)
	})

	t.Run("list strongest first", func(t *testing.T) {
		weaker := &model.LearningPattern{
			ID:          "pat-2",
			Pattern:     "chevron",
			Category:    "Gas",
			Confidence:  0.5,
			Occurrences: 1,
			LastSeen:    seen,
			Source:      model.PatternSourceCorrection,
		}
		require.NoError(t, store.UpsertLearningPattern(ctx, weaker))

		got, err := store.GetLearningPatterns(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "shell", got[0].Pattern)
		assert.Equal(t, "chevron", got[1].Pattern)
	})
}

func TestClassifierModels(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	t.Run("empty storage", func(t *testing.T) {
		_, err := store.GetLatestClassifierModel(ctx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, common.ErrNotFound))
	})

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	older := &service.ClassifierModel{
		Name:    "category-classifier",
		Payload: []byte(`{"version":1}`),
		SavedAt: base,
	}
	newer := &service.ClassifierModel{
		Name:    "category-classifier",
		Payload: []byte(`{"version":2}`),
		SavedAt: base.Add(time.Hour),
	}
	require.NoError(t, store.SaveClassifierModel(ctx, older))
	require.NoError(t, store.SaveClassifierModel(ctx, newer))

	t.Run("latest wins", func(t *testing.T) {
		got, err := store.GetLatestClassifierModel(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"version":2}`), got.Payload)
	})

	t.Run("empty payload rejected", func(t *testing.T) {
		bad := &service.ClassifierModel{Name: "category-classifier", SavedAt: base}
		assert.Error(t, store.SaveClassifierModel(ctx, bad))
	})
}
