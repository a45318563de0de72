package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/quillfin/quill/internal/cli"
	"github.com/quillfin/quill/internal/model"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage classification rules",
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesAddCmd())
	cmd.AddCommand(rulesDeleteCmd())
	return cmd
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			active, err := a.store.GetActiveRules(cmd.Context())
			if err != nil {
				return err
			}
			if len(active) == 0 {
				fmt.Println(cli.SubtleStyle.Render("No active rules."))
				return nil
			}

			rows := make([][]string, 0, len(active))
			for _, r := range active {
				rows = append(rows, []string{
					r.ID,
					r.Name,
					string(r.Source),
					formatConditions(r.Conditions),
					fmt.Sprintf("%s=%s", r.Action.Type, r.Action.Value),
					fmt.Sprintf("%.2f", r.Confidence),
					strconv.Itoa(r.UseCount),
				})
			}
			fmt.Println(cli.RenderTable(
				[]string{"ID", "Name", "Source", "Conditions", "Action", "Confidence", "Uses"},
				rows,
			))
			return nil
		},
	}
}

func rulesAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a rule",
		Long: `Create a user rule. Conditions are field:operator:value triples, and all
conditions must match for the rule to apply:

  quill rules add "Coffee shops" \
    --condition merchantName:contains:starbucks \
    --set-category Dining`,
		Args: cobra.ExactArgs(1),
		RunE: runRulesAdd,
	}

	cmd.Flags().StringArray("condition", nil, "condition as field:operator:value (repeatable)")
	cmd.Flags().String("set-category", "", "category the rule assigns")
	cmd.Flags().String("set-subcategory", "", "subcategory the rule assigns")
	cmd.Flags().String("set-merchant", "", "merchant name the rule assigns")
	cmd.Flags().Float64("confidence", 1.0, "rule confidence (0-1)")
	return cmd
}

func runRulesAdd(cmd *cobra.Command, args []string) error {
	rawConditions, _ := cmd.Flags().GetStringArray("condition")
	confidence, _ := cmd.Flags().GetFloat64("confidence")

	conditions := make([]model.Condition, 0, len(rawConditions))
	for _, raw := range rawConditions {
		cond, err := parseCondition(raw)
		if err != nil {
			return err
		}
		conditions = append(conditions, cond)
	}

	action, err := actionFromFlags(cmd)
	if err != nil {
		return err
	}

	rule := &model.Rule{
		ID:         uuid.NewString(),
		Name:       args[0],
		Conditions: conditions,
		Action:     action,
		Source:     model.RuleSourceUser,
		Confidence: confidence,
		IsActive:   true,
	}
	if err := rule.Validate(); err != nil {
		return err
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.CreateRule(cmd.Context(), rule); err != nil {
		return err
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Created rule %s (%s)", rule.Name, rule.ID)))
	return nil
}

func rulesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <rule-id>",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.DeleteRule(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Deleted rule %s", args[0])))
			return nil
		},
	}
}

// parseCondition parses a field:operator:value triple. The value may itself
// contain colons; only the first two are separators.
func parseCondition(raw string) (model.Condition, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 {
		return model.Condition{}, fmt.Errorf("invalid condition %q, expected field:operator:value", raw)
	}

	cond := model.Condition{
		Field:    model.ConditionField(parts[0]),
		Operator: model.ConditionOperator(parts[1]),
	}
	if cond.Field == model.FieldAmount && cond.Operator != model.OpContains {
		value, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return model.Condition{}, fmt.Errorf("invalid numeric value in condition %q: %w", raw, err)
		}
		cond.NumericValue = value
	} else {
		cond.StringValue = parts[2]
	}

	if err := cond.Validate(); err != nil {
		return model.Condition{}, err
	}
	return cond, nil
}

func actionFromFlags(cmd *cobra.Command) (model.RuleAction, error) {
	category, _ := cmd.Flags().GetString("set-category")
	subcategory, _ := cmd.Flags().GetString("set-subcategory")
	merchant, _ := cmd.Flags().GetString("set-merchant")

	set := 0
	var action model.RuleAction
	if category != "" {
		action = model.RuleAction{Type: model.ActionSetCategory, Value: category}
		set++
	}
	if subcategory != "" {
		action = model.RuleAction{Type: model.ActionSetSubcategory, Value: subcategory}
		set++
	}
	if merchant != "" {
		action = model.RuleAction{Type: model.ActionSetMerchantName, Value: merchant}
		set++
	}
	if set != 1 {
		return model.RuleAction{}, fmt.Errorf("exactly one of --set-category, --set-subcategory, --set-merchant is required")
	}
	return action, nil
}

func formatConditions(conditions []model.Condition) string {
	parts := make([]string, 0, len(conditions))
	for _, c := range conditions {
		if c.IsNumeric() {
			parts = append(parts, fmt.Sprintf("%s %s %.2f", c.Field, c.Operator, c.NumericValue))
		} else {
			parts = append(parts, fmt.Sprintf("%s %s %q", c.Field, c.Operator, c.StringValue))
		}
	}
	return strings.Join(parts, " AND ")
}
