// Package engine orchestrates transaction processing: rule application,
// classifier fallback, confidence-based routing, duplicate detection, and
// the correction feedback loop.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quillfin/quill/internal/common"
	"github.com/quillfin/quill/internal/decision"
	"github.com/quillfin/quill/internal/dedupe"
	"github.com/quillfin/quill/internal/learning"
	"github.com/quillfin/quill/internal/model"
	"github.com/quillfin/quill/internal/rules"
	"github.com/quillfin/quill/internal/service"
	"github.com/quillfin/quill/internal/suggest"
)

// Config holds configuration for the processing engine and its components.
type Config struct {
	ConflictStrategy rules.ConflictStrategy
	Decision         decision.Config
	Dedupe           dedupe.Config
	Suggest          suggest.Config
}

// DefaultConfig returns the default processing configuration.
func DefaultConfig() Config {
	return Config{
		ConflictStrategy: rules.StrategyHighestConfidence,
		Decision:         decision.DefaultConfig(),
		Dedupe:           dedupe.DefaultConfig(),
		Suggest:          suggest.DefaultConfig(),
	}
}

// ProcessingEngine coordinates the classification pipeline over storage.
type ProcessingEngine struct {
	storage   service.Storage
	learner   *learning.Engine
	evaluator *rules.Evaluator
	decider   *decision.Engine
	detector  *dedupe.Detector
	miner     *suggest.Miner
	pool      *suggest.Pool
}

// New creates a processing engine with the given dependencies.
func New(storage service.Storage, learner *learning.Engine, config Config) *ProcessingEngine {
	return &ProcessingEngine{
		storage:   storage,
		learner:   learner,
		evaluator: rules.NewEvaluator(config.ConflictStrategy),
		decider:   decision.NewEngine(config.Decision),
		detector:  dedupe.NewDetector(config.Dedupe),
		miner:     suggest.NewMiner(config.Suggest),
		pool:      suggest.NewPool(),
	}
}

// ClassifyStats summarizes one classification run.
type ClassifyStats struct {
	Tiers           map[model.ReviewTier]int
	Conflicts       []model.RuleConflict
	Total           int
	RuleClassified  int
	ModelClassified int
	Unclassified    int
}

// ProgressFunc reports batch progress; done counts processed transactions.
type ProgressFunc func(done, total int)

// ClassifyTransactions runs the pipeline over every unclassified transaction:
// rules first, classifier fallback for transactions no rule categorized, then
// confidence combination and tier routing. Results are persisted per
// transaction; a canceled context stops between transactions with everything
// already processed kept.
func (e *ProcessingEngine) ClassifyTransactions(ctx context.Context, fromDate *time.Time, progress ProgressFunc) (*ClassifyStats, error) {
	activeRules, err := e.storage.GetActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	transactions, err := e.storage.GetTransactionsToClassify(ctx, fromDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	stats := &ClassifyStats{
		Total: len(transactions),
		Tiers: make(map[model.ReviewTier]int),
	}
	if len(transactions) == 0 {
		return stats, common.ErrNoTransactions
	}

	slog.Info("Starting classification",
		"transactions", len(transactions),
		"rules", len(activeRules))

	for i := range transactions {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		txn := &transactions[i]
		conflicts := e.classifyOne(txn, activeRules, stats)
		stats.Conflicts = append(stats.Conflicts, conflicts...)

		if err := e.storage.UpdateTransactionClassification(ctx, txn); err != nil {
			return stats, fmt.Errorf("%w: transaction %s: %w", common.ErrClassificationFailed, txn.ID, err)
		}

		for _, ruleID := range txn.AppliedRules {
			if err := e.storage.IncrementRuleUseCount(ctx, ruleID); err != nil {
				slog.Warn("Failed to bump rule use count", "rule", ruleID, "error", err)
			}
		}

		if progress != nil {
			progress(i+1, len(transactions))
		}
	}

	slog.Info("Classification complete",
		"total", stats.Total,
		"by_rules", stats.RuleClassified,
		"by_model", stats.ModelClassified,
		"unclassified", stats.Unclassified)
	return stats, nil
}

// classifyOne applies rules and the classifier fallback to one transaction
// and routes it to a review tier.
func (e *ProcessingEngine) classifyOne(txn *model.Transaction, activeRules []model.Rule, stats *ClassifyStats) []model.RuleConflict {
	conflicts := e.evaluator.ApplyAll(activeRules, txn)

	switch {
	case txn.Category != "":
		txn.ClassificationConfidence = appliedConfidence(activeRules, txn)
		stats.RuleClassified++
	default:
		if pred := e.learner.PredictCategory(txn); pred != nil {
			txn.Category = pred.Category
			txn.ClassificationConfidence = pred.Confidence
			stats.ModelClassified++
		} else {
			txn.ClassificationConfidence = 0
			stats.Unclassified++
		}
	}

	d := e.decider.Decide(decision.Scores{
		Extraction:     txn.ExtractionConfidence,
		Classification: txn.ClassificationConfidence,
		AccountInfo:    accountInfoScore(txn),
	})
	txn.OverallConfidence = d.Overall
	stats.Tiers[d.Tier]++

	return conflicts
}

// appliedConfidence returns the strongest confidence among the rules credited
// on the transaction.
func appliedConfidence(activeRules []model.Rule, txn *model.Transaction) float64 {
	var best float64
	for i := range activeRules {
		if txn.HasAppliedRule(activeRules[i].ID) && activeRules[i].Confidence > best {
			best = activeRules[i].Confidence
		}
	}
	return model.ClampConfidence(best)
}

// accountInfoScore grades how complete the transaction's identity fields
// are. Merchant name is the only optional field the pipeline cares about.
func accountInfoScore(txn *model.Transaction) float64 {
	if txn.MerchantName == "" {
		return 0.5
	}
	return 1.0
}

// RecordCorrection applies a user's re-categorization: the transaction is
// updated as validated and the correction feeds the learning engine.
func (e *ProcessingEngine) RecordCorrection(ctx context.Context, transactionID, category, subcategory string) error {
	txn, err := e.storage.GetTransactionByID(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("failed to load transaction: %w", err)
	}

	original := txn.Category
	txn.Category = category
	txn.Subcategory = subcategory
	txn.ClassificationConfidence = 1.0
	txn.OverallConfidence = e.decider.Combine(decision.Scores{
		Extraction:     txn.ExtractionConfidence,
		Classification: 1.0,
		AccountInfo:    accountInfoScore(txn),
	})
	txn.UserValidated = true

	if err := e.storage.UpdateTransactionClassification(ctx, txn); err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}

	correction := &model.UserCorrection{
		TransactionID:           txn.ID,
		OriginalClassification:  original,
		CorrectedClassification: category,
		MerchantName:            txn.MerchantName,
		Description:             txn.Description,
		Amount:                  txn.Amount,
		FeedbackType:            model.FeedbackManualEdit,
	}
	if err := e.learner.LearnFromCorrection(ctx, correction); err != nil {
		return fmt.Errorf("failed to learn from correction: %w", err)
	}

	slog.Info("Recorded correction",
		"transaction", txn.ID,
		"from", original,
		"to", category)
	return nil
}

// DetectDuplicates loads transactions matching the filter and returns the
// duplicate groups found among them.
func (e *ProcessingEngine) DetectDuplicates(ctx context.Context, filter service.TransactionFilter) ([]model.DuplicateGroup, error) {
	transactions, err := e.storage.GetTransactions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	groups := e.detector.Detect(transactions)
	slog.Info("Duplicate detection complete",
		"transactions", len(transactions),
		"groups", len(groups))
	return groups, nil
}

// RefreshSuggestions re-mines the full correction history and replaces the
// session suggestion pool.
func (e *ProcessingEngine) RefreshSuggestions(ctx context.Context) ([]model.RuleSuggestion, error) {
	corrections, err := e.storage.GetCorrections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load corrections: %w", err)
	}

	suggestions := e.miner.Analyze(corrections)
	e.pool.Refresh(suggestions)
	return suggestions, nil
}

// Suggestions returns the current session's suggestion pool.
func (e *ProcessingEngine) Suggestions() []model.RuleSuggestion {
	return e.pool.List()
}

// AcceptSuggestion materializes a pooled suggestion as a persisted rule,
// keeping the corrections it was mined from as provenance.
func (e *ProcessingEngine) AcceptSuggestion(ctx context.Context, id string) (*model.Rule, error) {
	var basedOn []string
	for _, s := range e.pool.List() {
		if s.ID == id {
			basedOn = s.BasedOnCorrections
			break
		}
	}

	rule, err := e.pool.Accept(id)
	if err != nil {
		return nil, err
	}

	if err := e.storage.CreateRuleWithProvenance(ctx, rule, basedOn); err != nil {
		return nil, fmt.Errorf("failed to persist accepted suggestion: %w", err)
	}

	slog.Info("Accepted rule suggestion", "rule", rule.Name)
	return rule, nil
}

// RejectSuggestion discards a pooled suggestion.
func (e *ProcessingEngine) RejectSuggestion(id string) error {
	return e.pool.Reject(id)
}

// Metrics reports the learning engine's accumulated state.
func (e *ProcessingEngine) Metrics(ctx context.Context) (*model.LearningMetrics, error) {
	return e.learner.Metrics(ctx)
}
