package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/becauseimclever/budgetexperiment/internal/common"
	"github.com/becauseimclever/budgetexperiment/internal/model"
)

// CreateMatch persists a new match record. The partial unique indexes on
// accepted matches turn a double-booking attempt into common.ErrConflict.
func (s *SQLiteStorage) CreateMatch(ctx context.Context, match *model.ReconciliationMatch) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if match == nil {
		return fmt.Errorf("%w: match", ErrNilParameter)
	}
	if err := match.Validate(); err != nil {
		return fmt.Errorf("invalid match: %w", err)
	}

	query := `
		INSERT INTO reconciliation_matches (
			id, transaction_id, rule_id, scheduled_date,
			kind, status, confidence, created_at, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		match.ID, match.ActualTransactionID,
		match.Instance.RuleID, model.DateOnly(match.Instance.ScheduledDate).Format(dateLayout),
		string(match.Kind), string(match.Status), match.ConfidenceScore,
		match.CreatedAt, nullTime(match.ResolvedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: a side of match %s is already accepted", common.ErrConflict, match.ID)
		}
		return fmt.Errorf("failed to create match: %w", err)
	}

	slog.Info("Created match",
		"id", match.ID,
		"transaction_id", match.ActualTransactionID,
		"kind", match.Kind,
		"status", match.Status)
	return nil
}

// GetMatch loads one match by id.
func (s *SQLiteStorage) GetMatch(ctx context.Context, id string) (*model.ReconciliationMatch, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, matchSelect+` WHERE id = ?`, id)
	match, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: match %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query match %s: %w", id, err)
	}
	return match, nil
}

// TransitionMatch atomically flips a match from one status to another. The
// status predicate in the UPDATE is the optimistic concurrency check: a
// match that left the expected status since it was read yields
// common.ErrInvalidState, and a transition that would give a side a second
// accepted match trips the partial unique index and yields common.ErrConflict.
func (s *SQLiteStorage) TransitionMatch(ctx context.Context, id string, from, to model.MatchStatus, resolvedAt *time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE reconciliation_matches SET status = ?, resolved_at = ? WHERE id = ? AND status = ?`,
		string(to), nullTime(resolvedAt), id, string(from))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: a side of match %s is already accepted", common.ErrConflict, id)
		}
		return fmt.Errorf("failed to transition match %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		// Distinguish missing from moved-on.
		if _, getErr := s.GetMatch(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: match %s is no longer %s", common.ErrInvalidState, id, from)
	}

	slog.Info("Transitioned match", "id", id, "from", from, "to", to)
	return nil
}

// HasAcceptedForTransaction reports whether the transaction side is settled.
func (s *SQLiteStorage) HasAcceptedForTransaction(ctx context.Context, transactionID string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return false, err
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reconciliation_matches WHERE transaction_id = ? AND status = 'accepted'`,
		transactionID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check accepted match for transaction: %w", err)
	}
	return count > 0, nil
}

// HasAcceptedForInstance reports whether the occurrence side is settled.
func (s *SQLiteStorage) HasAcceptedForInstance(ctx context.Context, ref model.InstanceRef) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reconciliation_matches WHERE rule_id = ? AND scheduled_date = ? AND status = 'accepted'`,
		ref.RuleID, model.DateOnly(ref.ScheduledDate).Format(dateLayout)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check accepted match for instance: %w", err)
	}
	return count > 0, nil
}

// HasOpenMatch reports whether a pending suggestion already exists for the
// exact pair, so repeated finder runs don't pile up duplicates.
func (s *SQLiteStorage) HasOpenMatch(ctx context.Context, transactionID string, ref model.InstanceRef) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return false, err
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reconciliation_matches
		WHERE transaction_id = ? AND rule_id = ? AND scheduled_date = ? AND status = 'pending'`,
		transactionID, ref.RuleID, model.DateOnly(ref.ScheduledDate).Format(dateLayout)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check open match: %w", err)
	}
	return count > 0, nil
}

// ListAcceptedMatches returns every accepted match, for finder exclusions.
func (s *SQLiteStorage) ListAcceptedMatches(ctx context.Context) ([]model.ReconciliationMatch, error) {
	return s.listMatchesWhere(ctx, `WHERE status = 'accepted' ORDER BY created_at, id`)
}

// ListPendingMatches returns every pending suggestion, oldest first.
func (s *SQLiteStorage) ListPendingMatches(ctx context.Context) ([]model.ReconciliationMatch, error) {
	return s.listMatchesWhere(ctx, `WHERE status = 'pending' ORDER BY created_at, id`)
}

// ListMatchesForTransaction returns the full match history of a transaction.
func (s *SQLiteStorage) ListMatchesForTransaction(ctx context.Context, transactionID string) ([]model.ReconciliationMatch, error) {
	if err := validateString(transactionID, "transactionID"); err != nil {
		return nil, err
	}
	return s.listMatchesWhere(ctx, `WHERE transaction_id = ? ORDER BY created_at, id`, transactionID)
}

func (s *SQLiteStorage) listMatchesWhere(ctx context.Context, clause string, args ...any) ([]model.ReconciliationMatch, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, matchSelect+" "+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Error("failed to close rows", "error", closeErr)
		}
	}()

	var matches []model.ReconciliationMatch
	for rows.Next() {
		match, scanErr := scanMatch(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan match: %w", scanErr)
		}
		matches = append(matches, *match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate matches: %w", err)
	}
	return matches, nil
}

const matchSelect = `
	SELECT id, transaction_id, rule_id, scheduled_date,
		kind, status, confidence, created_at, resolved_at
	FROM reconciliation_matches`

// scanMatch reads one match row.
func scanMatch(row rowScanner) (*model.ReconciliationMatch, error) {
	var (
		match        model.ReconciliationMatch
		kind, status string
		resolvedAt   sql.NullTime
	)
	if err := row.Scan(&match.ID, &match.ActualTransactionID,
		&match.Instance.RuleID, &match.Instance.ScheduledDate,
		&kind, &status, &match.ConfidenceScore,
		&match.CreatedAt, &resolvedAt); err != nil {
		return nil, err
	}

	match.Instance.ScheduledDate = model.DateOnly(match.Instance.ScheduledDate)
	match.Kind = model.MatchKind(kind)
	match.Status = model.MatchStatus(status)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		match.ResolvedAt = &t
	}
	return &match, nil
}

// nullTime converts an optional timestamp to a driver value.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// isUniqueViolation reports whether err is a SQLite unique constraint
// failure, which here only the accepted-side partial indexes can raise.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
