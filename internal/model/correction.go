package model

import (
	"fmt"
	"strings"
	"time"
)

// FeedbackType distinguishes how a correction was captured.
type FeedbackType string

// Feedback type constants.
const (
	FeedbackManualEdit       FeedbackType = "MANUAL_EDIT"
	FeedbackSuggestionReject FeedbackType = "SUGGESTION_REJECT"
	FeedbackBulkEdit         FeedbackType = "BULK_EDIT"
)

// UserCorrection is the immutable record of a user re-categorizing a
// transaction. Corrections feed pattern mining, rule induction, and
// classifier training.
type UserCorrection struct {
	Timestamp               time.Time    `json:"timestamp"`
	ID                      string       `json:"id"`
	TransactionID           string       `json:"transaction_id"`
	OriginalClassification  string       `json:"original_classification"`
	CorrectedClassification string       `json:"corrected_classification"`
	MerchantName            string       `json:"merchant_name"`
	Description             string       `json:"description"`
	FeedbackType            FeedbackType `json:"feedback_type"`
	Amount                  float64      `json:"amount"`
}

// Validate ensures the correction carries enough signal to learn from.
func (c *UserCorrection) Validate() error {
	if strings.TrimSpace(c.TransactionID) == "" {
		return fmt.Errorf("correction transaction ID is required")
	}
	if strings.TrimSpace(c.CorrectedClassification) == "" {
		return fmt.Errorf("corrected classification is required")
	}
	if strings.TrimSpace(c.Description) == "" && strings.TrimSpace(c.MerchantName) == "" {
		return fmt.Errorf("correction requires a description or merchant name")
	}
	return nil
}
