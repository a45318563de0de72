package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/quillfin/quill/internal/common"
	"github.com/quillfin/quill/internal/model"
	"github.com/quillfin/quill/internal/service"
)

// SaveTransactions upserts a batch of transactions keyed by ID.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(transactions) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin save transactions", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO transactions (
			id, hash, date, description, merchant_name, amount, type,
			category, subcategory, applied_rules,
			extraction_confidence, classification_confidence, overall_confidence,
			user_validated
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			category = excluded.category,
			subcategory = excluded.subcategory,
			merchant_name = excluded.merchant_name,
			applied_rules = excluded.applied_rules,
			extraction_confidence = excluded.extraction_confidence,
			classification_confidence = excluded.classification_confidence,
			overall_confidence = excluded.overall_confidence,
			user_validated = excluded.user_validated
	`

	for i := range transactions {
		txn := &transactions[i]
		if err := txn.Validate(); err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}

		appliedRules, err := json.Marshal(txn.AppliedRules)
		if err != nil {
			return fmt.Errorf("failed to encode applied rules: %w", err)
		}

		if _, err := tx.ExecContext(ctx, query,
			txn.ID, txn.Hash(), txn.Date, txn.Description, txn.MerchantName,
			txn.Amount, string(txn.Type), txn.Category, txn.Subcategory,
			string(appliedRules),
			model.ClampConfidence(txn.ExtractionConfidence),
			model.ClampConfidence(txn.ClassificationConfidence),
			model.ClampConfidence(txn.OverallConfidence),
			txn.UserValidated,
		); err != nil {
			return storageErr("save transaction", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit save transactions", err)
	}
	return nil
}

const transactionColumns = `
	id, date, description, merchant_name, amount, type,
	category, subcategory, applied_rules,
	extraction_confidence, classification_confidence, overall_confidence,
	user_validated
`

// GetTransactionByID retrieves a single transaction.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)

	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: transaction %s", common.ErrNotFound, id)
		}
		return nil, storageErr("get transaction", err)
	}
	return txn, nil
}

// GetTransactions retrieves transactions matching the filter, newest first.
func (s *SQLiteStorage) GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`
	var args []any

	if filter.StartDate != nil {
		query += ` AND date >= ?`
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		query += ` AND date <= ?`
		args = append(args, *filter.EndDate)
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	query += ` ORDER BY date DESC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("get transactions", err)
	}
	defer func() { _ = rows.Close() }()

	return collectTransactions(rows)
}

// GetTransactionsToClassify retrieves transactions without a category,
// optionally from a starting date.
func (s *SQLiteStorage) GetTransactionsToClassify(ctx context.Context, fromDate *time.Time) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE (category IS NULL OR category = '') AND user_validated = 0`
	var args []any
	if fromDate != nil {
		query += ` AND date >= ?`
		args = append(args, *fromDate)
	}
	query += ` ORDER BY date ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("get transactions to classify", err)
	}
	defer func() { _ = rows.Close() }()

	return collectTransactions(rows)
}

// UpdateTransactionClassification persists the mutable classification fields
// of a transaction.
func (s *SQLiteStorage) UpdateTransactionClassification(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if txn == nil {
		return fmt.Errorf("%w: txn", ErrNilParameter)
	}

	appliedRules, err := json.Marshal(txn.AppliedRules)
	if err != nil {
		return fmt.Errorf("failed to encode applied rules: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET
			category = ?, subcategory = ?, merchant_name = ?, applied_rules = ?,
			classification_confidence = ?, overall_confidence = ?,
			extraction_confidence = ?, user_validated = ?
		WHERE id = ?`,
		txn.Category, txn.Subcategory, txn.MerchantName, string(appliedRules),
		model.ClampConfidence(txn.ClassificationConfidence),
		model.ClampConfidence(txn.OverallConfidence),
		model.ClampConfidence(txn.ExtractionConfidence),
		txn.UserValidated, txn.ID,
	)
	if err != nil {
		return storageErr("update transaction classification", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return storageErr("update transaction classification", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: transaction %s", common.ErrNotFound, txn.ID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var txn model.Transaction
	var txnType string
	var merchantName, category, subcategory, appliedRules sql.NullString

	err := row.Scan(
		&txn.ID, &txn.Date, &txn.Description, &merchantName, &txn.Amount,
		&txnType, &category, &subcategory, &appliedRules,
		&txn.ExtractionConfidence, &txn.ClassificationConfidence,
		&txn.OverallConfidence, &txn.UserValidated,
	)
	if err != nil {
		return nil, err
	}

	txn.Type = model.TransactionType(txnType)
	txn.MerchantName = merchantName.String
	txn.Category = category.String
	txn.Subcategory = subcategory.String
	if appliedRules.Valid && appliedRules.String != "" {
		if err := json.Unmarshal([]byte(appliedRules.String), &txn.AppliedRules); err != nil {
			return nil, fmt.Errorf("failed to decode applied rules: %w", err)
		}
	}
	return &txn, nil
}

func collectTransactions(rows *sql.Rows) ([]model.Transaction, error) {
	var out []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, storageErr("scan transaction", err)
		}
		out = append(out, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate transactions", err)
	}
	return out, nil
}
