package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTransaction() Transaction {
	return Transaction{
		ID:          "txn-1",
		Date:        time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Description: "STARBUCKS STORE #123",
		Amount:      -4.95,
		Type:        TypeDebit,
	}
}

func TestTransactionValidate(t *testing.T) {
	tests := []struct {
		mutate  func(*Transaction)
		name    string
		wantErr bool
	}{
		{name: "valid", mutate: func(*Transaction) {}},
		{name: "missing id", mutate: func(txn *Transaction) { txn.ID = " " }, wantErr: true},
		{name: "missing description", mutate: func(txn *Transaction) { txn.Description = "" }, wantErr: true},
		{name: "zero date", mutate: func(txn *Transaction) { txn.Date = time.Time{} }, wantErr: true},
		{name: "bad type", mutate: func(txn *Transaction) { txn.Type = "wire" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := validTransaction()
			tt.mutate(&txn)
			err := txn.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTransactionHash(t *testing.T) {
	a := validTransaction()
	b := validTransaction()
	assert.Equal(t, a.Hash(), b.Hash())

	b.Amount = -5.95
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestTransactionAppliedRules(t *testing.T) {
	txn := validTransaction()
	assert.False(t, txn.HasAppliedRule("r1"))

	txn.RecordAppliedRule("r1")
	txn.RecordAppliedRule("r1")
	txn.RecordAppliedRule("r2")

	assert.Equal(t, []string{"r1", "r2"}, txn.AppliedRules)
}

func TestNormalizedDescription(t *testing.T) {
	txn := Transaction{Description: "  starbucks Store #123 "}
	assert.Equal(t, "STARBUCKS STORE #123", txn.NormalizedDescription())
}

func TestRuleValidate(t *testing.T) {
	valid := Rule{
		Name: "Coffee",
		Conditions: []Condition{
			{Field: FieldMerchantName, Operator: OpContains, StringValue: "starbucks"},
		},
		Action:     RuleAction{Type: ActionSetCategory, Value: "Dining"},
		Confidence: 0.9,
	}
	require.NoError(t, valid.Validate())

	t.Run("no conditions", func(t *testing.T) {
		r := valid
		r.Conditions = nil
		assert.Error(t, r.Validate())
	})

	t.Run("numeric operator on text field", func(t *testing.T) {
		r := valid
		r.Conditions = []Condition{
			{Field: FieldDescription, Operator: OpGreaterThan, NumericValue: 10},
		}
		assert.Error(t, r.Validate())
	})

	t.Run("confidence out of range", func(t *testing.T) {
		r := valid
		r.Confidence = 1.5
		assert.Error(t, r.Validate())
	})

	t.Run("missing action value", func(t *testing.T) {
		r := valid
		r.Action.Value = ""
		assert.Error(t, r.Validate())
	})
}

func TestConditionIsNumeric(t *testing.T) {
	assert.True(t, Condition{Field: FieldAmount, Operator: OpGreaterThan}.IsNumeric())
	assert.True(t, Condition{Field: FieldAmount, Operator: OpEquals}.IsNumeric())
	assert.False(t, Condition{Field: FieldMerchantName, Operator: OpEquals}.IsNumeric())
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, ClampConfidence(-0.2))
	assert.Equal(t, 1.0, ClampConfidence(1.7))
	assert.Equal(t, 0.5, ClampConfidence(0.5))
}

func TestLearningPatternReinforce(t *testing.T) {
	seen := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	p := LearningPattern{Confidence: 0.95, Occurrences: 4}

	p.Reinforce(seen)
	assert.Equal(t, 5, p.Occurrences)
	assert.Equal(t, 1.0, p.Confidence, "confidence caps at 1.0")
	assert.Equal(t, seen, p.LastSeen)
}

func TestUserCorrectionValidate(t *testing.T) {
	valid := UserCorrection{
		TransactionID:           "txn-1",
		CorrectedClassification: "Gas",
		Description:             "SHELL OIL",
	}
	require.NoError(t, valid.Validate())

	t.Run("needs description or merchant", func(t *testing.T) {
		c := valid
		c.Description = ""
		assert.Error(t, c.Validate())

		c.MerchantName = "Shell"
		assert.NoError(t, c.Validate())
	})

	t.Run("needs corrected classification", func(t *testing.T) {
		c := valid
		c.CorrectedClassification = ""
		assert.Error(t, c.Validate())
	})
}
