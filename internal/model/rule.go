package model

import (
	"fmt"
	"strings"
	"time"
)

// ConditionField identifies the transaction field a condition inspects.
type ConditionField string

// Condition field constants.
const (
	FieldMerchantName ConditionField = "merchantName"
	FieldDescription  ConditionField = "description"
	FieldAmount       ConditionField = "amount"
	FieldCategory     ConditionField = "category"
)

// ConditionOperator is the comparison a condition performs.
type ConditionOperator string

// Condition operator constants. String operators apply to text fields;
// numeric operators are only valid on the amount field.
const (
	OpEquals      ConditionOperator = "equals"
	OpContains    ConditionOperator = "contains"
	OpStartsWith  ConditionOperator = "startsWith"
	OpEndsWith    ConditionOperator = "endsWith"
	OpGreaterThan ConditionOperator = "greaterThan"
	OpLessThan    ConditionOperator = "lessThan"
)

// Condition is a single field comparison within a rule. StringValue is used
// for text fields, NumericValue for the amount field; the split replaces a
// dynamically typed value slot so the evaluator never branches on runtime
// types.
type Condition struct {
	Field        ConditionField    `json:"field"`
	Operator     ConditionOperator `json:"operator"`
	StringValue  string            `json:"string_value,omitempty"`
	NumericValue float64           `json:"numeric_value,omitempty"`
}

// IsNumeric reports whether the condition uses a numeric operator.
func (c Condition) IsNumeric() bool {
	return c.Operator == OpGreaterThan || c.Operator == OpLessThan ||
		(c.Field == FieldAmount && c.Operator == OpEquals)
}

// Validate checks operator/field compatibility.
func (c Condition) Validate() error {
	switch c.Field {
	case FieldMerchantName, FieldDescription, FieldCategory:
		switch c.Operator {
		case OpEquals, OpContains, OpStartsWith, OpEndsWith:
		default:
			return fmt.Errorf("operator %q is not valid on field %q", c.Operator, c.Field)
		}
		if strings.TrimSpace(c.StringValue) == "" {
			return fmt.Errorf("condition on field %q requires a string value", c.Field)
		}
	case FieldAmount:
		switch c.Operator {
		case OpEquals, OpGreaterThan, OpLessThan:
		default:
			return fmt.Errorf("operator %q is not valid on field amount", c.Operator)
		}
	default:
		return fmt.Errorf("unknown condition field %q", c.Field)
	}
	return nil
}

// ActionType identifies which classification field a rule action sets.
type ActionType string

// Action type constants.
const (
	ActionSetCategory     ActionType = "setCategory"
	ActionSetSubcategory  ActionType = "setSubcategory"
	ActionSetMerchantName ActionType = "setMerchantName"
)

// RuleAction is the mutation a matching rule performs on a transaction.
type RuleAction struct {
	Type  ActionType `json:"type"`
	Value string     `json:"value"`
}

// RuleSource indicates how a rule came to exist.
type RuleSource string

const (
	// RuleSourceUser indicates a rule created directly by the user.
	RuleSourceUser RuleSource = "USER"
	// RuleSourceLearned indicates a rule auto-induced from corrections.
	RuleSourceLearned RuleSource = "LEARNED"
	// RuleSourceSuggestion indicates a rule materialized from an accepted suggestion.
	RuleSourceSuggestion RuleSource = "SUGGESTION"
)

// Rule is a user- or system-defined condition set plus an action. All
// conditions must hold (AND semantics) for the rule to apply.
type Rule struct {
	CreatedDate time.Time   `json:"created_date"`
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Conditions  []Condition `json:"conditions"`
	Action      RuleAction  `json:"action"`
	Source      RuleSource  `json:"source"`
	Confidence  float64     `json:"confidence"`
	UseCount    int         `json:"use_count"`
	IsActive    bool        `json:"is_active"`
}

// Validate ensures the rule has valid data before it is persisted or applied.
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name is required")
	}
	if len(r.Conditions) == 0 {
		return fmt.Errorf("rule requires at least one condition")
	}
	for i, cond := range r.Conditions {
		if err := cond.Validate(); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}
	switch r.Action.Type {
	case ActionSetCategory, ActionSetSubcategory, ActionSetMerchantName:
	default:
		return fmt.Errorf("unknown action type %q", r.Action.Type)
	}
	if strings.TrimSpace(r.Action.Value) == "" {
		return fmt.Errorf("rule action requires a value")
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("rule confidence must be between 0 and 1")
	}
	return nil
}

// RuleConflict reports two or more applied rules targeting the same action
// type with different values. It is a structured result, not an error.
type RuleConflict struct {
	ActionType    ActionType `json:"action_type"`
	WinningRuleID string     `json:"winning_rule_id"`
	WinningValue  string     `json:"winning_value"`
	RuleIDs       []string   `json:"rule_ids"`
	Values        []string   `json:"values"`
	Strategy      string     `json:"strategy"`
	Resolved      bool       `json:"resolved"`
}
