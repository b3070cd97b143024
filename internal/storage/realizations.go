package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/becauseimclever/budgetexperiment/internal/model"
)

// RealizationExists reports whether any concrete transaction is already
// linked to the (rule, scheduled date).
func (s *SQLiteStorage) RealizationExists(ctx context.Context, ref model.InstanceRef) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM realizations WHERE rule_id = ? AND scheduled_date = ?`,
		ref.RuleID, model.DateOnly(ref.ScheduledDate).Format(dateLayout),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check realization: %w", err)
	}
	return count > 0, nil
}

// RecordRealization links the created transaction ids to the occurrence.
// Transfers record both legs under the same (rule, scheduled date).
func (s *SQLiteStorage) RecordRealization(ctx context.Context, ref model.InstanceRef, transactionIDs []string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(transactionIDs) == 0 {
		return fmt.Errorf("%w: transactionIDs", ErrNilParameter)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO realizations (rule_id, scheduled_date, transaction_id) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	scheduled := model.DateOnly(ref.ScheduledDate).Format(dateLayout)
	for _, id := range transactionIDs {
		if _, err := stmt.ExecContext(ctx, ref.RuleID, scheduled, id); err != nil {
			return fmt.Errorf("failed to record realization for %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit realization: %w", err)
	}

	slog.Info("Recorded realization",
		"rule_id", ref.RuleID,
		"scheduled_date", scheduled,
		"transaction_count", len(transactionIDs))
	return nil
}

// GetRealizedDates returns the scheduled dates of a rule that already have
// concrete transactions, ascending.
func (s *SQLiteStorage) GetRealizedDates(ctx context.Context, ruleID int64) ([]time.Time, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT scheduled_date FROM realizations WHERE rule_id = ? ORDER BY scheduled_date`,
		ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query realized dates: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Error("failed to close rows", "error", closeErr)
		}
	}()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan realized date: %w", err)
		}
		dates = append(dates, model.DateOnly(d))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate realized dates: %w", err)
	}
	return dates, nil
}
