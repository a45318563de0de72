package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/quillfin/quill/internal/common"
	"github.com/quillfin/quill/internal/model"
)

// CreateRule persists a new rule.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if err := rule.Validate(); err != nil {
		return err
	}

	if rule.CreatedDate.IsZero() {
		rule.CreatedDate = time.Now()
	}

	if err := s.insertRule(ctx, s.db.ExecContext, rule); err != nil {
		if errors.Is(err, common.ErrDuplicateEntry) {
			return err
		}
		return storageErr("create rule", err)
	}
	return nil
}

// CreateRuleWithProvenance creates a rule and records the corrections it was
// induced from in one transaction: both succeed or neither does.
func (s *SQLiteStorage) CreateRuleWithProvenance(ctx context.Context, rule *model.Rule, correctionIDs []string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if err := rule.Validate(); err != nil {
		return err
	}

	if rule.CreatedDate.IsZero() {
		rule.CreatedDate = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin create rule", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.insertRule(ctx, tx.ExecContext, rule); err != nil {
		if errors.Is(err, common.ErrDuplicateEntry) {
			return err
		}
		return storageErr("create rule", err)
	}

	for _, correctionID := range correctionIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO rule_provenance (rule_id, correction_id) VALUES (?, ?)`,
			rule.ID, correctionID,
		); err != nil {
			return storageErr("record rule provenance", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit create rule", err)
	}
	return nil
}

type execFunc func(ctx context.Context, query string, args ...any) (sql.Result, error)

func (s *SQLiteStorage) insertRule(ctx context.Context, exec execFunc, rule *model.Rule) error {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("failed to encode conditions: %w", err)
	}

	_, err = exec(ctx, `
		INSERT INTO rules (
			id, name, conditions, action_type, action_value, source,
			confidence, use_count, is_active, created_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Name, string(conditions),
		string(rule.Action.Type), rule.Action.Value, string(rule.Source),
		model.ClampConfidence(rule.Confidence), rule.UseCount, rule.IsActive,
		rule.CreatedDate,
	)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: rule %s", common.ErrDuplicateEntry, rule.ID)
	}
	return err
}

const ruleColumns = `
	id, name, conditions, action_type, action_value, source,
	confidence, use_count, is_active, created_date
`

// GetRule retrieves a rule by ID.
func (s *SQLiteStorage) GetRule(ctx context.Context, id string) (*model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id = ?`, id)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: rule %s", common.ErrNotFound, id)
		}
		return nil, storageErr("get rule", err)
	}
	return rule, nil
}

// GetActiveRules retrieves all active rules, highest confidence first.
func (s *SQLiteStorage) GetActiveRules(ctx context.Context) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM rules WHERE is_active = 1
		 ORDER BY confidence DESC, created_date ASC`)
	if err != nil {
		return nil, storageErr("get active rules", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, storageErr("scan rule", err)
		}
		out = append(out, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate rules", err)
	}
	return out, nil
}

// UpdateRule replaces a rule's mutable fields.
func (s *SQLiteStorage) UpdateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if err := rule.Validate(); err != nil {
		return err
	}

	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("failed to encode conditions: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE rules SET
			name = ?, conditions = ?, action_type = ?, action_value = ?,
			confidence = ?, is_active = ?
		WHERE id = ?`,
		rule.Name, string(conditions), string(rule.Action.Type), rule.Action.Value,
		model.ClampConfidence(rule.Confidence), rule.IsActive, rule.ID,
	)
	if err != nil {
		return storageErr("update rule", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return storageErr("update rule", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: rule %s", common.ErrNotFound, rule.ID)
	}
	return nil
}

// DeleteRule removes a rule and its provenance records.
func (s *SQLiteStorage) DeleteRule(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin delete rule", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rule_provenance WHERE rule_id = ?`, id); err != nil {
		return storageErr("delete rule provenance", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return storageErr("delete rule", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storageErr("delete rule", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: rule %s", common.ErrNotFound, id)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit delete rule", err)
	}
	return nil
}

// IncrementRuleUseCount bumps a rule's use counter.
func (s *SQLiteStorage) IncrementRuleUseCount(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE rules SET use_count = use_count + 1 WHERE id = ?`, id); err != nil {
		return storageErr("increment rule use count", err)
	}
	return nil
}

// CountRulesBySource counts rules created by the given source.
func (s *SQLiteStorage) CountRulesBySource(ctx context.Context, source model.RuleSource) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rules WHERE source = ?`, string(source)).Scan(&count)
	if err != nil {
		return 0, storageErr("count rules by source", err)
	}
	return count, nil
}

func scanRule(row rowScanner) (*model.Rule, error) {
	var rule model.Rule
	var conditions, actionType, actionValue, source string

	err := row.Scan(
		&rule.ID, &rule.Name, &conditions, &actionType, &actionValue, &source,
		&rule.Confidence, &rule.UseCount, &rule.IsActive, &rule.CreatedDate,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(conditions), &rule.Conditions); err != nil {
		return nil, fmt.Errorf("failed to decode conditions: %w", err)
	}
	rule.Action = model.RuleAction{Type: model.ActionType(actionType), Value: actionValue}
	rule.Source = model.RuleSource(source)
	return &rule, nil
}
