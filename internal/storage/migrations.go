package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
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
		Description: "Rules, exceptions, and transactions",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS recurrence_rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					kind TEXT NOT NULL,
					account_id TEXT,
					source_account_id TEXT,
					destination_account_id TEXT,
					amount TEXT NOT NULL,
					description TEXT NOT NULL,
					frequency TEXT NOT NULL,
					interval INTEGER NOT NULL,
					anchor_date DATE NOT NULL,
					end_date DATE,
					max_occurrences INTEGER,
					is_paused INTEGER NOT NULL DEFAULT 0,
					paused_at DATE,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_rules_created ON recurrence_rules(created_at, id)`,

				`CREATE TABLE IF NOT EXISTS occurrence_exceptions (
					rule_id INTEGER NOT NULL,
					scheduled_date DATE NOT NULL,
					kind TEXT NOT NULL,
					override_amount TEXT,
					override_description TEXT,
					override_date DATE,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (rule_id, scheduled_date),
					FOREIGN KEY (rule_id) REFERENCES recurrence_rules(id)
				)`,

				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					hash TEXT UNIQUE NOT NULL,
					date DATE NOT NULL,
					account_id TEXT NOT NULL,
					amount TEXT NOT NULL,
					description TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_date ON transactions(date)`,
				`CREATE INDEX idx_transactions_account ON transactions(account_id)`,
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
		Description: "Realization linkage",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS realizations (
					rule_id INTEGER NOT NULL,
					scheduled_date DATE NOT NULL,
					transaction_id TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (rule_id, scheduled_date, transaction_id),
					FOREIGN KEY (rule_id) REFERENCES recurrence_rules(id),
					FOREIGN KEY (transaction_id) REFERENCES transactions(id)
				)`,
				`CREATE INDEX idx_realizations_rule ON realizations(rule_id, scheduled_date)`,
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
		Description: "Reconciliation matches",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS reconciliation_matches (
					id TEXT PRIMARY KEY,
					transaction_id TEXT NOT NULL,
					rule_id INTEGER NOT NULL,
					scheduled_date DATE NOT NULL,
					kind TEXT NOT NULL,
					status TEXT NOT NULL,
					confidence REAL NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL,
					resolved_at DATETIME,
					FOREIGN KEY (transaction_id) REFERENCES transactions(id),
					FOREIGN KEY (rule_id) REFERENCES recurrence_rules(id)
				)`,
				`CREATE INDEX idx_matches_transaction ON reconciliation_matches(transaction_id)`,
				`CREATE INDEX idx_matches_instance ON reconciliation_matches(rule_id, scheduled_date)`,
				`CREATE INDEX idx_matches_status ON reconciliation_matches(status)`,

				// At most one accepted match per transaction and per
				// occurrence, enforced at the engine level so two
				// concurrent accepts cannot both land.
				`CREATE UNIQUE INDEX idx_matches_accepted_transaction
					ON reconciliation_matches(transaction_id)
					WHERE status = 'accepted'`,
				`CREATE UNIQUE INDEX idx_matches_accepted_instance
					ON reconciliation_matches(rule_id, scheduled_date)
					WHERE status = 'accepted'`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
