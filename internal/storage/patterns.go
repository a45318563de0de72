package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/quillfin/quill/internal/common"
	"github.com/quillfin/quill/internal/model"
)

const patternColumns = `id, pattern, category, confidence, occurrences, last_seen, source`

// GetLearningPattern retrieves the pattern for a (pattern, category) pair.
func (s *SQLiteStorage) GetLearningPattern(ctx context.Context, pattern, category string) (*model.LearningPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(pattern, "pattern"); err != nil {
		return nil, err
	}
	if err := validateString(category, "category"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+patternColumns+` FROM learning_patterns WHERE pattern = ? AND category = ?`,
		pattern, category)

	p, err := scanPattern(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: pattern %q for %q", common.ErrNotFound, pattern, category)
		}
		return nil, storageErr("get learning pattern", err)
	}
	return p, nil
}

// UpsertLearningPattern inserts or replaces a pattern keyed by
// (pattern, category). Confidence is clamped on write.
func (s *SQLiteStorage) UpsertLearningPattern(ctx context.Context, pattern *model.LearningPattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if pattern == nil {
		return fmt.Errorf("%w: pattern", ErrNilParameter)
	}
	if err := validateString(pattern.Pattern, "pattern.Pattern"); err != nil {
		return err
	}
	if err := validateString(pattern.Category, "pattern.Category"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learning_patterns (
			id, pattern, category, confidence, occurrences, last_seen, source
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pattern, category) DO UPDATE SET
			confidence = excluded.confidence,
			occurrences = excluded.occurrences,
			last_seen = excluded.last_seen`,
		pattern.ID, pattern.Pattern, pattern.Category,
		model.ClampConfidence(pattern.Confidence), pattern.Occurrences,
		pattern.LastSeen, string(pattern.Source),
	)
	if err != nil {
		return storageErr("upsert learning pattern", err)
	}
	return nil
}

// GetLearningPatterns retrieves all learned patterns, strongest first.
func (s *SQLiteStorage) GetLearningPatterns(ctx context.Context) ([]model.LearningPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+patternColumns+` FROM learning_patterns
		 ORDER BY confidence DESC, occurrences DESC, pattern ASC`)
	if err != nil {
		return nil, storageErr("get learning patterns", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.LearningPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, storageErr("scan learning pattern", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate learning patterns", err)
	}
	return out, nil
}

func scanPattern(row rowScanner) (*model.LearningPattern, error) {
	var p model.LearningPattern
	var source string

	err := row.Scan(&p.ID, &p.Pattern, &p.Category, &p.Confidence,
		&p.Occurrences, &p.LastSeen, &source)
	if err != nil {
		return nil, err
	}
	p.Source = model.PatternSource(source)
	return &p, nil
}
