// Package rules evaluates classification rules against transactions and
// resolves conflicts when multiple rules fire.
package rules

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/quillfin/quill/internal/model"
)

// ConflictStrategy selects how competing rule actions are resolved.
type ConflictStrategy string

// Conflict resolution strategies.
const (
	// StrategyHighestConfidence applies the highest-confidence rule's action.
	StrategyHighestConfidence ConflictStrategy = "highest_confidence"
	// StrategyMostRecent applies the most recently created rule's action.
	StrategyMostRecent ConflictStrategy = "most_recent"
	// StrategyUserChoice emits the conflict for manual resolution instead of
	// auto-applying any action.
	StrategyUserChoice ConflictStrategy = "user_choice"
)

// Result describes the outcome of evaluating one rule against one transaction.
type Result struct {
	Reason     string
	Applied    bool
	Confidence float64
}

// Evaluator evaluates rules and applies their actions.
type Evaluator struct {
	strategy ConflictStrategy
}

// NewEvaluator creates an evaluator with the given conflict strategy.
// An empty strategy falls back to highest_confidence.
func NewEvaluator(strategy ConflictStrategy) *Evaluator {
	if strategy == "" {
		strategy = StrategyHighestConfidence
	}
	return &Evaluator{strategy: strategy}
}

// Evaluate checks every condition of the rule against the transaction. All
// conditions must hold. An operator incompatible with its field evaluates
// false rather than erroring, so malformed rules simply never match.
func (e *Evaluator) Evaluate(rule *model.Rule, txn *model.Transaction) Result {
	if !rule.IsActive {
		return Result{Reason: "rule is inactive"}
	}

	for i, cond := range rule.Conditions {
		if !conditionHolds(cond, txn) {
			return Result{
				Reason: fmt.Sprintf("condition %d (%s %s) not satisfied", i, cond.Field, cond.Operator),
			}
		}
	}

	return Result{
		Applied:    true,
		Confidence: model.ClampConfidence(rule.Confidence),
		Reason:     fmt.Sprintf("all %d conditions satisfied", len(rule.Conditions)),
	}
}

// ConditionScore computes the fraction of conditions independently satisfied,
// used for incremental scoring of candidate rules. Action application never
// uses this; it requires Evaluate to pass in full.
func (e *Evaluator) ConditionScore(rule *model.Rule, txn *model.Transaction) float64 {
	if len(rule.Conditions) == 0 {
		return 0
	}
	satisfied := 0
	for _, cond := range rule.Conditions {
		if conditionHolds(cond, txn) {
			satisfied++
		}
	}
	return float64(satisfied) / float64(len(rule.Conditions))
}

// Apply mutates the transaction per the rule's action and records the rule
// ID. Applying the same rule twice is a no-op on AppliedRules.
func (e *Evaluator) Apply(rule *model.Rule, txn *model.Transaction) {
	applyAction(rule.Action, txn)
	txn.RecordAppliedRule(rule.ID)
}

// ApplyAll evaluates every rule, resolves conflicts between applied rules per
// the configured strategy, applies the winning actions, and returns the
// conflict reports. All participating rules appear in the reports for audit
// even when only one wins.
func (e *Evaluator) ApplyAll(ruleSet []model.Rule, txn *model.Transaction) []model.RuleConflict {
	applied := make([]*model.Rule, 0, len(ruleSet))
	for i := range ruleSet {
		if e.Evaluate(&ruleSet[i], txn).Applied {
			applied = append(applied, &ruleSet[i])
		}
	}
	if len(applied) == 0 {
		return nil
	}

	sort.SliceStable(applied, func(i, j int) bool {
		return applied[i].Confidence > applied[j].Confidence
	})

	var conflicts []model.RuleConflict
	byAction := groupByActionType(applied)

	for _, actionType := range []model.ActionType{model.ActionSetCategory, model.ActionSetSubcategory, model.ActionSetMerchantName} {
		group := byAction[actionType]
		if len(group) == 0 {
			continue
		}

		values := distinctValues(group)
		if len(values) == 1 {
			// Agreement is not a conflict; apply once, credit every rule.
			applyAction(group[0].Action, txn)
			for _, r := range group {
				txn.RecordAppliedRule(r.ID)
			}
			continue
		}

		winner := e.pickWinner(group)
		conflict := model.RuleConflict{
			ActionType: actionType,
			RuleIDs:    ruleIDs(group),
			Values:     values,
			Strategy:   string(e.strategy),
		}

		if winner != nil {
			applyAction(winner.Action, txn)
			txn.RecordAppliedRule(winner.ID)
			conflict.Resolved = true
			conflict.WinningRuleID = winner.ID
			conflict.WinningValue = winner.Action.Value
		}

		conflicts = append(conflicts, conflict)
	}

	return conflicts
}

// pickWinner selects the rule whose action is applied under the conflict
// strategy, or nil when the strategy defers to the user.
func (e *Evaluator) pickWinner(group []*model.Rule) *model.Rule {
	switch e.strategy {
	case StrategyMostRecent:
		winner := group[0]
		for _, r := range group[1:] {
			if r.CreatedDate.After(winner.CreatedDate) {
				winner = r
			}
		}
		return winner
	case StrategyUserChoice:
		return nil
	default:
		// Group is already sorted by confidence descending.
		return group[0]
	}
}

func conditionHolds(cond model.Condition, txn *model.Transaction) bool {
	if cond.Field == model.FieldAmount {
		return amountConditionHolds(cond, txn.Amount)
	}

	// Numeric operators are invalid on string fields: fail, don't error.
	if cond.Operator == model.OpGreaterThan || cond.Operator == model.OpLessThan {
		return false
	}

	var fieldValue string
	switch cond.Field {
	case model.FieldMerchantName:
		fieldValue = txn.MerchantName
	case model.FieldDescription:
		fieldValue = txn.NormalizedDescription()
	case model.FieldCategory:
		fieldValue = txn.Category
	default:
		return false
	}

	haystack := strings.ToLower(fieldValue)
	needle := strings.ToLower(cond.StringValue)

	switch cond.Operator {
	case model.OpEquals:
		return haystack == needle
	case model.OpContains:
		return strings.Contains(haystack, needle)
	case model.OpStartsWith:
		return strings.HasPrefix(haystack, needle)
	case model.OpEndsWith:
		return strings.HasSuffix(haystack, needle)
	}
	return false
}

// amountConditionHolds compares against the amount's magnitude; rules never
// see the sign.
func amountConditionHolds(cond model.Condition, amount float64) bool {
	magnitude := math.Abs(amount)
	switch cond.Operator {
	case model.OpEquals:
		return magnitude == cond.NumericValue
	case model.OpGreaterThan:
		return magnitude > cond.NumericValue
	case model.OpLessThan:
		return magnitude < cond.NumericValue
	}
	return false
}

func applyAction(action model.RuleAction, txn *model.Transaction) {
	switch action.Type {
	case model.ActionSetCategory:
		txn.Category = action.Value
	case model.ActionSetSubcategory:
		txn.Subcategory = action.Value
	case model.ActionSetMerchantName:
		txn.MerchantName = action.Value
	}
}

func groupByActionType(applied []*model.Rule) map[model.ActionType][]*model.Rule {
	byAction := make(map[model.ActionType][]*model.Rule)
	for _, r := range applied {
		byAction[r.Action.Type] = append(byAction[r.Action.Type], r)
	}
	return byAction
}

func distinctValues(group []*model.Rule) []string {
	seen := make(map[string]bool)
	var values []string
	for _, r := range group {
		if !seen[r.Action.Value] {
			seen[r.Action.Value] = true
			values = append(values, r.Action.Value)
		}
	}
	return values
}

func ruleIDs(group []*model.Rule) []string {
	ids := make([]string, len(group))
	for i, r := range group {
		ids[i] = r.ID
	}
	return ids
}
