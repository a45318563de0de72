package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/quillfin/quill/internal/model"
)

// SaveCorrection persists one user correction. Corrections are immutable
// historical records; saving the same ID twice is rejected.
func (s *SQLiteStorage) SaveCorrection(ctx context.Context, correction *model.UserCorrection) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if correction == nil {
		return fmt.Errorf("%w: correction", ErrNilParameter)
	}
	if err := correction.Validate(); err != nil {
		return err
	}
	if correction.Timestamp.IsZero() {
		correction.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO corrections (
			id, transaction_id, original_classification, corrected_classification,
			merchant_name, description, amount, feedback_type, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		correction.ID, correction.TransactionID,
		correction.OriginalClassification, correction.CorrectedClassification,
		correction.MerchantName, correction.Description, correction.Amount,
		string(correction.FeedbackType), correction.Timestamp,
	)
	if err != nil {
		return storageErr("save correction", err)
	}
	return nil
}

const correctionColumns = `
	id, transaction_id, original_classification, corrected_classification,
	merchant_name, description, amount, feedback_type, timestamp
`

// GetCorrections retrieves all corrections, oldest first.
func (s *SQLiteStorage) GetCorrections(ctx context.Context) ([]model.UserCorrection, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+correctionColumns+` FROM corrections ORDER BY timestamp ASC, id ASC`)
	if err != nil {
		return nil, storageErr("get corrections", err)
	}
	defer func() { _ = rows.Close() }()

	return collectCorrections(rows)
}

// GetCorrectionsByCategory retrieves corrections for one corrected category.
func (s *SQLiteStorage) GetCorrectionsByCategory(ctx context.Context, category string) ([]model.UserCorrection, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(category, "category"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+correctionColumns+` FROM corrections
		 WHERE corrected_classification = ? ORDER BY timestamp ASC, id ASC`, category)
	if err != nil {
		return nil, storageErr("get corrections by category", err)
	}
	defer func() { _ = rows.Close() }()

	return collectCorrections(rows)
}

// CountCorrections counts all recorded corrections.
func (s *SQLiteStorage) CountCorrections(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM corrections`).Scan(&count); err != nil {
		return 0, storageErr("count corrections", err)
	}
	return count, nil
}

// CountCorrectionsSince counts corrections recorded after the given time.
func (s *SQLiteStorage) CountCorrectionsSince(ctx context.Context, since time.Time) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM corrections WHERE timestamp > ?`, since).Scan(&count)
	if err != nil {
		return 0, storageErr("count corrections since", err)
	}
	return count, nil
}

func collectCorrections(rows *sql.Rows) ([]model.UserCorrection, error) {
	var out []model.UserCorrection
	for rows.Next() {
		var c model.UserCorrection
		var original, merchant, description, feedback sql.NullString

		err := rows.Scan(
			&c.ID, &c.TransactionID, &original, &c.CorrectedClassification,
			&merchant, &description, &c.Amount, &feedback, &c.Timestamp,
		)
		if err != nil {
			return nil, storageErr("scan correction", err)
		}

		c.OriginalClassification = original.String
		c.MerchantName = merchant.String
		c.Description = description.String
		c.FeedbackType = model.FeedbackType(feedback.String)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate corrections", err)
	}
	return out, nil
}
