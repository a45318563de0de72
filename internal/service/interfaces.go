// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/quillfin/quill/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Category  string
	Limit     int
	Offset    int
}

// ClassifierModel is the persisted classifier blob: weights, vocabulary, and
// category list serialized by the learning engine, plus the save timestamp.
// Saving and reloading it must produce an equivalent predictor.
type ClassifierModel struct {
	SavedAt time.Time
	Name    string
	Payload []byte
}

// Storage defines the contract for the persistence layer. Failures surface
// to callers wrapped in common.ErrStorageUnavailable; the engines do not
// retry storage writes.
type Storage interface {
	// Transaction operations
	SaveTransactions(ctx context.Context, transactions []model.Transaction) error
	GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	GetTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	GetTransactionsToClassify(ctx context.Context, fromDate *time.Time) ([]model.Transaction, error)
	UpdateTransactionClassification(ctx context.Context, txn *model.Transaction) error

	// Rule operations
	CreateRule(ctx context.Context, rule *model.Rule) error
	CreateRuleWithProvenance(ctx context.Context, rule *model.Rule, correctionIDs []string) error
	GetRule(ctx context.Context, id string) (*model.Rule, error)
	GetActiveRules(ctx context.Context) ([]model.Rule, error)
	UpdateRule(ctx context.Context, rule *model.Rule) error
	DeleteRule(ctx context.Context, id string) error
	IncrementRuleUseCount(ctx context.Context, id string) error
	CountRulesBySource(ctx context.Context, source model.RuleSource) (int, error)

	// Correction operations
	SaveCorrection(ctx context.Context, correction *model.UserCorrection) error
	GetCorrections(ctx context.Context) ([]model.UserCorrection, error)
	GetCorrectionsByCategory(ctx context.Context, category string) ([]model.UserCorrection, error)
	CountCorrections(ctx context.Context) (int, error)
	CountCorrectionsSince(ctx context.Context, since time.Time) (int, error)

	// Learning pattern operations
	GetLearningPattern(ctx context.Context, pattern, category string) (*model.LearningPattern, error)
	UpsertLearningPattern(ctx context.Context, pattern *model.LearningPattern) error
	GetLearningPatterns(ctx context.Context) ([]model.LearningPattern, error)

	// Classifier model blob
	SaveClassifierModel(ctx context.Context, blob *ClassifierModel) error
	GetLatestClassifierModel(ctx context.Context) (*ClassifierModel, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
