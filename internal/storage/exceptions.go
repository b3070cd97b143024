package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/becauseimclever/budgetexperiment/internal/common"
	"github.com/becauseimclever/budgetexperiment/internal/model"
)

// GetExceptions returns every per-date override for a rule, scheduled-date
// ascending.
func (s *SQLiteStorage) GetExceptions(ctx context.Context, ruleID int64) ([]model.OccurrenceException, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT rule_id, scheduled_date, kind, override_amount,
			override_description, override_date, created_at
		FROM occurrence_exceptions
		WHERE rule_id = ?
		ORDER BY scheduled_date`

	rows, err := s.db.QueryContext(ctx, query, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query exceptions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Error("failed to close rows", "error", closeErr)
		}
	}()

	var exceptions []model.OccurrenceException
	for rows.Next() {
		var (
			exc             model.OccurrenceException
			kind            string
			overrideAmount  sql.NullString
			overrideDesc    sql.NullString
			overrideDate    sql.NullTime
		)
		if err := rows.Scan(&exc.RuleID, &exc.ScheduledDate, &kind,
			&overrideAmount, &overrideDesc, &overrideDate, &exc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan exception: %w", err)
		}

		exc.Kind = model.ExceptionKind(kind)
		exc.ScheduledDate = model.DateOnly(exc.ScheduledDate)
		if overrideAmount.Valid {
			amount, parseErr := decimal.NewFromString(overrideAmount.String)
			if parseErr != nil {
				return nil, fmt.Errorf("invalid stored override amount %q: %w", overrideAmount.String, parseErr)
			}
			exc.OverrideAmount = &amount
		}
		if overrideDesc.Valid {
			desc := overrideDesc.String
			exc.OverrideDescription = &desc
		}
		if overrideDate.Valid {
			d := model.DateOnly(overrideDate.Time)
			exc.OverrideDate = &d
		}

		exceptions = append(exceptions, exc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate exceptions: %w", err)
	}
	return exceptions, nil
}

// SaveExceptionOverride inserts or replaces the override for the exception's
// (rule, scheduled date) key. The primary key keeps the at-most-one-per-date
// invariant.
func (s *SQLiteStorage) SaveExceptionOverride(ctx context.Context, exc *model.OccurrenceException) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if exc == nil {
		return fmt.Errorf("%w: exception", ErrNilParameter)
	}
	if err := exc.Validate(); err != nil {
		return fmt.Errorf("invalid exception: %w", err)
	}

	var overrideAmount any
	if exc.OverrideAmount != nil {
		overrideAmount = exc.OverrideAmount.String()
	}

	query := `
		INSERT OR REPLACE INTO occurrence_exceptions (
			rule_id, scheduled_date, kind, override_amount,
			override_description, override_date
		) VALUES (?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, query,
		exc.RuleID, model.DateOnly(exc.ScheduledDate).Format(dateLayout),
		string(exc.Kind), overrideAmount, nullString(exc.OverrideDescription),
		nullDate(exc.OverrideDate),
	); err != nil {
		return fmt.Errorf("failed to save exception: %w", err)
	}

	slog.Info("Saved exception override",
		"rule_id", exc.RuleID,
		"scheduled_date", model.DateOnly(exc.ScheduledDate).Format(dateLayout),
		"kind", exc.Kind)
	return nil
}

// DeleteException removes the override for one (rule, scheduled date).
func (s *SQLiteStorage) DeleteException(ctx context.Context, ruleID int64, scheduledDate time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateDate(scheduledDate, "scheduledDate"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM occurrence_exceptions WHERE rule_id = ? AND scheduled_date = ?`,
		ruleID, model.DateOnly(scheduledDate).Format(dateLayout))
	if err != nil {
		return fmt.Errorf("failed to delete exception: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: exception for rule %d on %s", common.ErrNotFound,
			ruleID, model.DateOnly(scheduledDate).Format(dateLayout))
	}
	return nil
}

// nullString converts an optional string to a driver value.
func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
