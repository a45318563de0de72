package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/quillfin/quill/internal/common"
	"github.com/quillfin/quill/internal/service"
)

// SaveClassifierModel persists a serialized classifier snapshot. Snapshots
// are append-only; the newest row wins on load.
func (s *SQLiteStorage) SaveClassifierModel(ctx context.Context, blob *service.ClassifierModel) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if blob == nil {
		return fmt.Errorf("%w: blob", ErrNilParameter)
	}
	if err := validateString(blob.Name, "blob.Name"); err != nil {
		return err
	}
	if len(blob.Payload) == 0 {
		return fmt.Errorf("%w: blob.Payload", ErrEmptySlice)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO classifier_models (name, payload, saved_at) VALUES (?, ?, ?)`,
		blob.Name, blob.Payload, blob.SavedAt)
	if err != nil {
		return storageErr("save classifier model", err)
	}
	return nil
}

// GetLatestClassifierModel retrieves the most recently saved snapshot.
func (s *SQLiteStorage) GetLatestClassifierModel(ctx context.Context) (*service.ClassifierModel, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var blob service.ClassifierModel
	err := s.db.QueryRowContext(ctx,
		`SELECT name, payload, saved_at FROM classifier_models
		 ORDER BY saved_at DESC, id DESC LIMIT 1`).
		Scan(&blob.Name, &blob.Payload, &blob.SavedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: classifier model", common.ErrNotFound)
		}
		return nil, storageErr("get latest classifier model", err)
	}
	return &blob, nil
}
