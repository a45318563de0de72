package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quillfin/quill/internal/common"
	"github.com/quillfin/quill/internal/model"
	"github.com/quillfin/quill/internal/service"
	"github.com/quillfin/quill/internal/similarity"
	"github.com/quillfin/quill/internal/suggest"
)

// modelName is the repository key for the single classifier blob.
const modelName = "category-classifier"

// Config holds the learning engine thresholds.
type Config struct {
	MinCorrectionsForRule       int
	MinCorrectionsForRetraining int
	RetrainingInterval          time.Duration
	ConfidenceThreshold         float64
	SimilarityThreshold         float64
	TrainingEpochs              int
	LearningRate                float64
}

// DefaultConfig returns the default learning thresholds.
func DefaultConfig() Config {
	return Config{
		MinCorrectionsForRule:       3,
		MinCorrectionsForRetraining: 10,
		RetrainingInterval:          24 * time.Hour,
		ConfidenceThreshold:         0.8,
		SimilarityThreshold:         0.7,
		TrainingEpochs:              50,
		LearningRate:                0.5,
	}
}

// Engine records corrections, extracts durable patterns, auto-creates rules
// once corrections repeat, and maintains the fallback classifier.
type Engine struct {
	storage       service.Storage
	config        Config
	classifier    *Classifier
	lastTrainedAt time.Time
	mu            sync.RWMutex
	trainMu       sync.Mutex
	training      bool
}

// NewEngine creates a learning engine over the given storage.
func NewEngine(storage service.Storage, config Config) *Engine {
	defaults := DefaultConfig()
	if config.MinCorrectionsForRule <= 0 {
		config.MinCorrectionsForRule = defaults.MinCorrectionsForRule
	}
	if config.MinCorrectionsForRetraining <= 0 {
		config.MinCorrectionsForRetraining = defaults.MinCorrectionsForRetraining
	}
	if config.RetrainingInterval <= 0 {
		config.RetrainingInterval = defaults.RetrainingInterval
	}
	if config.ConfidenceThreshold <= 0 {
		config.ConfidenceThreshold = defaults.ConfidenceThreshold
	}
	if config.SimilarityThreshold <= 0 {
		config.SimilarityThreshold = defaults.SimilarityThreshold
	}
	return &Engine{storage: storage, config: config}
}

// LoadModel restores the most recently saved classifier, if any. Call once
// at startup; a missing model is not an error.
func (e *Engine) LoadModel(ctx context.Context) error {
	blob, err := e.storage.GetLatestClassifierModel(ctx)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load classifier model: %w", err)
	}
	if blob == nil {
		return nil
	}

	classifier, err := RestoreClassifier(blob.Payload)
	if err != nil {
		return fmt.Errorf("failed to restore classifier: %w", err)
	}

	e.mu.Lock()
	e.classifier = classifier
	e.lastTrainedAt = blob.SavedAt
	e.mu.Unlock()

	slog.Info("Restored classifier model",
		"saved_at", blob.SavedAt,
		"categories", len(classifier.Categories()))
	return nil
}

// LearnFromCorrection persists the correction and runs the learning side
// effects: pattern upsert, rule induction, and the retraining trigger. A
// malformed correction is skipped with a warning, never an error.
func (e *Engine) LearnFromCorrection(ctx context.Context, correction *model.UserCorrection) error {
	if err := correction.Validate(); err != nil {
		slog.Warn("Skipping malformed correction",
			"transaction_id", correction.TransactionID,
			"error", err)
		return nil
	}

	if correction.ID == "" {
		correction.ID = uuid.NewString()
	}
	if correction.Timestamp.IsZero() {
		correction.Timestamp = time.Now()
	}

	if err := e.storage.SaveCorrection(ctx, correction); err != nil {
		return fmt.Errorf("failed to save correction: %w", err)
	}

	if err := e.upsertPattern(ctx, correction); err != nil {
		return err
	}

	if err := e.maybeInduceRule(ctx, correction); err != nil {
		return err
	}

	due, err := e.retrainingDue(ctx)
	if err != nil {
		return err
	}
	if due {
		go func() {
			// A scheduled run may already hold the training lock; retry with
			// patience instead of dropping the trigger.
			bg := context.WithoutCancel(ctx)
			trainErr := common.WithRetry(bg, func() error {
				return e.Train(bg)
			}, service.RetryOptions{MaxAttempts: 3, MaxDelay: 30 * time.Second})
			if trainErr != nil {
				slog.Error("Background training failed", "error", trainErr)
			}
		}()
	}

	return nil
}

// upsertPattern extracts a pattern from the top significant tokens of the
// correction and applies the reinforcement rule. No significant tokens means
// no pattern.
func (e *Engine) upsertPattern(ctx context.Context, correction *model.UserCorrection) error {
	raw := suggest.SignificantTokens(correction.Description + " " + correction.MerchantName)
	seen := make(map[string]bool, len(raw))
	tokens := make([]string, 0, len(raw))
	for _, token := range raw {
		if seen[token] {
			continue
		}
		seen[token] = true
		tokens = append(tokens, token)
	}
	if len(tokens) == 0 {
		return nil
	}
	if len(tokens) > 3 {
		tokens = tokens[:3]
	}
	patternText := strings.Join(tokens, " ")
	category := correction.CorrectedClassification

	existing, err := e.storage.GetLearningPattern(ctx, patternText, category)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("failed to look up learning pattern: %w", err)
	}

	if existing != nil {
		existing.Reinforce(correction.Timestamp)
		if err := e.storage.UpsertLearningPattern(ctx, existing); err != nil {
			return fmt.Errorf("failed to reinforce learning pattern: %w", err)
		}
		return nil
	}

	pattern := &model.LearningPattern{
		ID:          uuid.NewString(),
		Pattern:     patternText,
		Category:    category,
		Confidence:  0.7,
		Occurrences: 1,
		LastSeen:    correction.Timestamp,
		Source:      model.PatternSourceCorrection,
	}
	if err := e.storage.UpsertLearningPattern(ctx, pattern); err != nil {
		return fmt.Errorf("failed to save learning pattern: %w", err)
	}
	return nil
}

// maybeInduceRule auto-creates a rule once enough corrections agree: same
// merchant, or descriptions similar beyond the threshold.
func (e *Engine) maybeInduceRule(ctx context.Context, correction *model.UserCorrection) error {
	peers, err := e.storage.GetCorrectionsByCategory(ctx, correction.CorrectedClassification)
	if err != nil {
		return fmt.Errorf("failed to load corrections for rule induction: %w", err)
	}

	similar := make([]model.UserCorrection, 0, len(peers))
	for _, peer := range peers {
		sameMerchant := correction.MerchantName != "" &&
			strings.EqualFold(peer.MerchantName, correction.MerchantName)
		if sameMerchant || similarity.TextSimilarity(peer.Description, correction.Description) > e.config.SimilarityThreshold {
			similar = append(similar, peer)
		}
	}

	if len(similar) < e.config.MinCorrectionsForRule {
		return nil
	}

	rule := e.buildInducedRule(correction, similar)
	if rule == nil {
		return nil
	}

	exists, err := e.equivalentRuleExists(ctx, rule)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := e.storage.CreateRuleWithProvenance(ctx, rule, correctionIDs(similar)); err != nil {
		return fmt.Errorf("failed to create induced rule: %w", err)
	}

	slog.Info("Auto-created rule from corrections",
		"rule", rule.Name,
		"category", rule.Action.Value,
		"corrections", len(similar))
	return nil
}

// buildInducedRule prefers a merchant rule (0.9); without a merchant it falls
// back to tokens common to at least half the similar corrections (0.8).
func (e *Engine) buildInducedRule(correction *model.UserCorrection, similar []model.UserCorrection) *model.Rule {
	category := correction.CorrectedClassification

	var conditions []model.Condition
	var confidence float64
	var name string

	if correction.MerchantName != "" {
		merchant := strings.ToLower(strings.TrimSpace(correction.MerchantName))
		conditions = []model.Condition{
			{Field: model.FieldMerchantName, Operator: model.OpContains, StringValue: merchant},
		}
		confidence = 0.9
		name = fmt.Sprintf("Learned: %s → %s", merchant, category)
	} else {
		shared := commonTokens(similar, (len(similar)+1)/2)
		if len(shared) == 0 {
			return nil
		}
		conditions = make([]model.Condition, 0, len(shared))
		for _, token := range shared {
			conditions = append(conditions, model.Condition{
				Field: model.FieldDescription, Operator: model.OpContains, StringValue: token,
			})
		}
		confidence = 0.8
		name = fmt.Sprintf("Learned: %s → %s", strings.Join(shared, " "), category)
	}

	return &model.Rule{
		ID:          uuid.NewString(),
		Name:        name,
		Conditions:  conditions,
		Action:      model.RuleAction{Type: model.ActionSetCategory, Value: category},
		Source:      model.RuleSourceLearned,
		Confidence:  confidence,
		IsActive:    true,
		CreatedDate: time.Now(),
	}
}

// equivalentRuleExists reports whether an active rule already has the same
// action and first-condition value, so induction does not pile up clones.
func (e *Engine) equivalentRuleExists(ctx context.Context, candidate *model.Rule) (bool, error) {
	existing, err := e.storage.GetActiveRules(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load rules: %w", err)
	}
	for _, r := range existing {
		if r.Action != candidate.Action || len(r.Conditions) == 0 {
			continue
		}
		if r.Conditions[0].Field == candidate.Conditions[0].Field &&
			r.Conditions[0].StringValue == candidate.Conditions[0].StringValue {
			return true, nil
		}
	}
	return false, nil
}

// retrainingDue checks the retraining trigger: enough corrections since the
// last successful run, and the interval elapsed (or no run yet).
func (e *Engine) retrainingDue(ctx context.Context) (bool, error) {
	e.mu.RLock()
	lastTrained := e.lastTrainedAt
	e.mu.RUnlock()

	var count int
	var err error
	if lastTrained.IsZero() {
		count, err = e.storage.CountCorrections(ctx)
	} else {
		count, err = e.storage.CountCorrectionsSince(ctx, lastTrained)
	}
	if err != nil {
		return false, fmt.Errorf("failed to count corrections: %w", err)
	}

	if count < e.config.MinCorrectionsForRetraining {
		return false, nil
	}
	return lastTrained.IsZero() || time.Since(lastTrained) > e.config.RetrainingInterval, nil
}

// Train rebuilds the classifier from scratch on all corrections and learned
// patterns, then persists the model blob. Runs are serialized: a second call
// while one is in flight returns ErrTrainingInProgress. On failure the
// previous model and its metadata are left untouched.
func (e *Engine) Train(ctx context.Context) error {
	e.trainMu.Lock()
	if e.training {
		e.trainMu.Unlock()
		return common.ErrTrainingInProgress
	}
	e.training = true
	e.trainMu.Unlock()

	defer func() {
		e.trainMu.Lock()
		e.training = false
		e.trainMu.Unlock()
	}()

	// Corrections recorded after this instant belong to the next run.
	trainStart := time.Now()

	corrections, err := e.storage.GetCorrections(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrTrainingFailed, err)
	}
	if len(corrections) == 0 {
		return common.ErrNoCorrections
	}

	patterns, err := e.storage.GetLearningPatterns(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrTrainingFailed, err)
	}

	examples := make([]Example, 0, len(corrections)+len(patterns))
	for _, c := range corrections {
		examples = append(examples, Example{
			Text:     c.Description + " " + c.MerchantName,
			Category: c.CorrectedClassification,
			Weight:   1,
		})
	}
	for _, p := range patterns {
		// Pattern text acts as a pseudo-description; occurrences weight it,
		// capped so durable patterns do not swamp real corrections.
		examples = append(examples, Example{
			Text:     p.Pattern,
			Category: p.Category,
			Weight:   math.Min(float64(p.Occurrences), 3),
		})
	}

	classifier := NewClassifier(e.config.ConfidenceThreshold)
	if err := classifier.Train(examples, e.config.TrainingEpochs, e.config.LearningRate); err != nil {
		return fmt.Errorf("%w: %v", common.ErrTrainingFailed, err)
	}

	if ctx.Err() != nil {
		// Shutdown mid-cycle: abandon without touching the saved model.
		return fmt.Errorf("%w: %v", common.ErrTrainingFailed, ctx.Err())
	}

	payload, err := classifier.Snapshot()
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrTrainingFailed, err)
	}

	blob := &service.ClassifierModel{
		Name:    modelName,
		Payload: payload,
		SavedAt: trainStart,
	}
	if err := e.storage.SaveClassifierModel(ctx, blob); err != nil {
		return fmt.Errorf("%w: %v", common.ErrTrainingFailed, err)
	}

	e.mu.Lock()
	e.classifier = classifier
	e.lastTrainedAt = trainStart
	e.mu.Unlock()

	slog.Info("Classifier retrained",
		"examples", len(examples),
		"categories", len(classifier.Categories()))
	return nil
}

// PredictCategory runs the fallback classifier on the transaction. A nil
// result means no trained model, no recognizable features, or a best guess
// below the confidence threshold; callers fall back to rule results.
func (e *Engine) PredictCategory(txn *model.Transaction) *Prediction {
	e.mu.RLock()
	classifier := e.classifier
	e.mu.RUnlock()

	if classifier == nil {
		return nil
	}
	return classifier.Predict(txn.Description + " " + txn.MerchantName)
}

// Metrics summarizes accumulated learning state. The accuracy-improvement
// figure is a rough proxy, not a validated measurement.
func (e *Engine) Metrics(ctx context.Context) (*model.LearningMetrics, error) {
	totalCorrections, err := e.storage.CountCorrections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count corrections: %w", err)
	}

	patterns, err := e.storage.GetLearningPatterns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load patterns: %w", err)
	}

	autoRules, err := e.storage.CountRulesBySource(ctx, model.RuleSourceLearned)
	if err != nil {
		return nil, fmt.Errorf("failed to count auto-created rules: %w", err)
	}

	e.mu.RLock()
	lastTrained := e.lastTrainedAt
	var categories int
	if e.classifier != nil {
		categories = len(e.classifier.Categories())
	}
	e.mu.RUnlock()

	return &model.LearningMetrics{
		TotalCorrections:    totalCorrections,
		PatternsLearned:     len(patterns),
		AutoCreatedRules:    autoRules,
		KnownCategories:     categories,
		LastTrainedAt:       lastTrained,
		AccuracyImprovement: math.Min(float64(totalCorrections)*0.01, 0.5),
	}, nil
}

// commonTokens returns description tokens shared by at least minCount of the
// corrections, most frequent first, capped at two.
func commonTokens(corrections []model.UserCorrection, minCount int) []string {
	counts := make(map[string]int)
	for _, c := range corrections {
		seen := make(map[string]bool)
		for _, token := range suggest.SignificantTokens(c.Description) {
			if !seen[token] {
				seen[token] = true
				counts[token]++
			}
		}
	}

	var tokens []string
	for token, count := range counts {
		if count >= minCount {
			tokens = append(tokens, token)
		}
	}
	sort.Slice(tokens, func(i, j int) bool {
		if counts[tokens[i]] != counts[tokens[j]] {
			return counts[tokens[i]] > counts[tokens[j]]
		}
		return tokens[i] < tokens[j]
	})

	if len(tokens) > 2 {
		tokens = tokens[:2]
	}
	return tokens
}

func correctionIDs(corrections []model.UserCorrection) []string {
	ids := make([]string, len(corrections))
	for i, c := range corrections {
		ids[i] = c.ID
	}
	return ids
}
