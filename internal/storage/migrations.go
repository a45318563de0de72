package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a fatal
// error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Transactions and rules",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					hash TEXT NOT NULL,
					date DATETIME NOT NULL,
					description TEXT NOT NULL,
					merchant_name TEXT,
					amount REAL NOT NULL,
					type TEXT NOT NULL,
					category TEXT,
					subcategory TEXT,
					applied_rules TEXT,
					extraction_confidence REAL DEFAULT 0,
					classification_confidence REAL DEFAULT 0,
					overall_confidence REAL DEFAULT 0,
					user_validated INTEGER DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_date ON transactions(date)`,
				`CREATE INDEX idx_transactions_merchant ON transactions(merchant_name)`,
				`CREATE INDEX idx_transactions_category ON transactions(category)`,

				`CREATE TABLE IF NOT EXISTS rules (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					conditions TEXT NOT NULL,
					action_type TEXT NOT NULL,
					action_value TEXT NOT NULL,
					source TEXT NOT NULL DEFAULT 'USER',
					confidence REAL NOT NULL DEFAULT 1.0,
					use_count INTEGER DEFAULT 0,
					is_active INTEGER DEFAULT 1,
					created_date DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_rules_active ON rules(is_active)`,
				`CREATE INDEX idx_rules_source ON rules(source)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Corrections, learning patterns, and rule provenance",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS corrections (
					id TEXT PRIMARY KEY,
					transaction_id TEXT NOT NULL,
					original_classification TEXT,
					corrected_classification TEXT NOT NULL,
					merchant_name TEXT,
					description TEXT,
					amount REAL DEFAULT 0,
					feedback_type TEXT,
					timestamp DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_corrections_category ON corrections(corrected_classification)`,
				`CREATE INDEX idx_corrections_timestamp ON corrections(timestamp)`,

				`CREATE TABLE IF NOT EXISTS learning_patterns (
					id TEXT PRIMARY KEY,
					pattern TEXT NOT NULL,
					category TEXT NOT NULL,
					confidence REAL NOT NULL,
					occurrences INTEGER NOT NULL DEFAULT 1,
					last_seen DATETIME NOT NULL,
					source TEXT NOT NULL DEFAULT 'CORRECTION',
					UNIQUE(pattern, category)
				)`,

				`CREATE TABLE IF NOT EXISTS rule_provenance (
					rule_id TEXT NOT NULL,
					correction_id TEXT NOT NULL,
					PRIMARY KEY (rule_id, correction_id),
					FOREIGN KEY (rule_id) REFERENCES rules(id)
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Classifier model blobs",
		Up: func(tx *sql.Tx) error {
			query := `CREATE TABLE IF NOT EXISTS classifier_models (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				payload BLOB NOT NULL,
				saved_at DATETIME NOT NULL
			)`
			if _, err := tx.Exec(query); err != nil {
				return fmt.Errorf("failed to execute query: %w", err)
			}
			return nil
		},
	},
}

// Migrate applies all pending schema migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.Version, txErr)
		}

		if upErr := m.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, upErr)
		}

		if _, recErr := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.Version); recErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, recErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, commitErr)
		}

		slog.Info("Applied migration", "version", m.Version, "description", m.Description)
	}

	return nil
}
