// Package model defines the core domain models used throughout the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
)

// TransactionType indicates the direction of money movement.
type TransactionType string

// Transaction type constants.
const (
	TypeDebit  TransactionType = "debit"
	TypeCredit TransactionType = "credit"
)

// Transaction represents a single financial transaction produced by the
// extraction pipeline. Identity fields are immutable; classification fields
// are mutated by rules, the classifier, and user corrections.
type Transaction struct {
	Date                     time.Time       `json:"date"`
	ID                       string          `json:"id"`
	Description              string          `json:"description"`
	MerchantName             string          `json:"merchant_name,omitempty"`
	Category                 string          `json:"category,omitempty"`
	Subcategory              string          `json:"subcategory,omitempty"`
	Type                     TransactionType `json:"type"`
	AppliedRules             []string        `json:"applied_rules,omitempty"`
	Amount                   float64         `json:"amount"`
	ExtractionConfidence     float64         `json:"extraction_confidence"`
	ClassificationConfidence float64         `json:"classification_confidence"`
	OverallConfidence        float64         `json:"overall_confidence"`
	UserValidated            bool            `json:"user_validated"`
}

// NormalizedDescription returns the uppercase trimmed description used for
// rule matching.
func (t *Transaction) NormalizedDescription() string {
	return strings.ToUpper(strings.TrimSpace(t.Description))
}

// Hash creates a stable fingerprint for exact-duplicate pre-grouping and
// storage upserts.
func (t *Transaction) Hash() string {
	data := fmt.Sprintf("%s:%.2f:%s:%s",
		t.Date.Format("2006-01-02"),
		t.Amount,
		t.MerchantName,
		t.Description)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// HasAppliedRule reports whether the given rule has already been applied.
func (t *Transaction) HasAppliedRule(ruleID string) bool {
	for _, id := range t.AppliedRules {
		if id == ruleID {
			return true
		}
	}
	return false
}

// RecordAppliedRule appends the rule ID if it is not already present.
func (t *Transaction) RecordAppliedRule(ruleID string) {
	if !t.HasAppliedRule(ruleID) {
		t.AppliedRules = append(t.AppliedRules, ruleID)
	}
}

// Validate ensures the transaction carries the fields the engines require.
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("transaction ID is required")
	}
	if strings.TrimSpace(t.Description) == "" {
		return fmt.Errorf("transaction description is required")
	}
	if t.Date.IsZero() {
		return fmt.Errorf("transaction date is required")
	}
	if t.Type != TypeDebit && t.Type != TypeCredit {
		return fmt.Errorf("transaction type must be debit or credit, got %q", t.Type)
	}
	return nil
}
