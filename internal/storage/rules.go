package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/becauseimclever/budgetexperiment/internal/common"
	"github.com/becauseimclever/budgetexperiment/internal/model"
)

const dateLayout = "2006-01-02"

// SaveRule persists a rule variant and returns its assigned id.
func (s *SQLiteStorage) SaveRule(ctx context.Context, rule model.ProjectableRule) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if rule == nil {
		return 0, fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if err := rule.Validate(); err != nil {
		return 0, fmt.Errorf("invalid rule: %w", err)
	}

	rec := rule.Recurrence()

	var accountID, sourceAccountID, destinationAccountID sql.NullString
	switch v := rule.(type) {
	case *model.TransactionRule:
		accountID = sql.NullString{String: v.AccountID, Valid: true}
	case *model.TransferRule:
		sourceAccountID = sql.NullString{String: v.SourceAccountID, Valid: true}
		destinationAccountID = sql.NullString{String: v.DestinationAccountID, Valid: true}
	default:
		return 0, fmt.Errorf("unknown rule kind %q", rule.Kind())
	}

	query := `
		INSERT INTO recurrence_rules (
			kind, account_id, source_account_id, destination_account_id,
			amount, description, frequency, interval, anchor_date,
			end_date, max_occurrences, is_paused, paused_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		string(rule.Kind()), accountID, sourceAccountID, destinationAccountID,
		rule.ScheduledAmount().String(), rule.ScheduledDescription(),
		string(rec.Frequency), rec.Interval,
		model.DateOnly(rec.AnchorDate).Format(dateLayout),
		nullDate(rec.EndDate), nullInt(rec.MaxOccurrences),
		rec.IsPaused, nullDate(rec.PausedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	rec.ID = id
	slog.Info("Saved rule", "id", id, "kind", rule.Kind(), "frequency", rec.Frequency)
	return id, nil
}

// GetRule loads one rule variant by id.
func (s *SQLiteStorage) GetRule(ctx context.Context, id int64) (model.ProjectableRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, ruleSelect+` WHERE id = ?`, id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: rule %d", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query rule %d: %w", id, err)
	}
	return rule, nil
}

// ListRules returns every rule in creation order, so merged projections
// break effective-date ties by rule creation.
func (s *SQLiteStorage) ListRules(ctx context.Context) ([]model.ProjectableRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, ruleSelect+` ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Error("failed to close rows", "error", closeErr)
		}
	}()

	var rules []model.ProjectableRule
	for rows.Next() {
		rule, scanErr := scanRule(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", scanErr)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}
	return rules, nil
}

// SetRulePaused pauses or resumes a rule. Pausing records the pause point so
// pre-pause occurrences keep projecting.
func (s *SQLiteStorage) SetRulePaused(ctx context.Context, id int64, paused bool, pausedAt *time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE recurrence_rules SET is_paused = ?, paused_at = ? WHERE id = ?`,
		paused, nullDate(pausedAt), id)
	if err != nil {
		return fmt.Errorf("failed to update rule %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: rule %d", common.ErrNotFound, id)
	}

	slog.Info("Updated rule pause state", "id", id, "paused", paused)
	return nil
}

const ruleSelect = `
	SELECT id, kind, account_id, source_account_id, destination_account_id,
		amount, description, frequency, interval, anchor_date,
		end_date, max_occurrences, is_paused, paused_at, created_at
	FROM recurrence_rules`

// rowScanner covers both sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRule reads one rule row into the right variant.
func scanRule(row rowScanner) (model.ProjectableRule, error) {
	var (
		id                                            int64
		kind, amountStr, description, frequency       string
		accountID, sourceAccountID, destAccountID     sql.NullString
		interval                                      int
		anchorDate                                    time.Time
		endDate, pausedAt                             sql.NullTime
		maxOccurrences                                sql.NullInt64
		isPaused                                      bool
		createdAt                                     time.Time
	)

	if err := row.Scan(&id, &kind, &accountID, &sourceAccountID, &destAccountID,
		&amountStr, &description, &frequency, &interval, &anchorDate,
		&endDate, &maxOccurrences, &isPaused, &pausedAt, &createdAt); err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amountStr, err)
	}

	rec := model.RecurrenceRule{
		ID:         id,
		Frequency:  model.Frequency(frequency),
		Interval:   interval,
		AnchorDate: model.DateOnly(anchorDate),
		IsPaused:   isPaused,
		CreatedAt:  createdAt,
	}
	if endDate.Valid {
		d := model.DateOnly(endDate.Time)
		rec.EndDate = &d
	}
	if pausedAt.Valid {
		d := model.DateOnly(pausedAt.Time)
		rec.PausedAt = &d
	}
	if maxOccurrences.Valid {
		n := int(maxOccurrences.Int64)
		rec.MaxOccurrences = &n
	}

	switch model.RuleKind(kind) {
	case model.RuleKindTransaction:
		return &model.TransactionRule{
			RecurrenceRule: rec,
			AccountID:      accountID.String,
			Amount:         amount,
			Description:    description,
		}, nil
	case model.RuleKindTransfer:
		return &model.TransferRule{
			RecurrenceRule:       rec,
			SourceAccountID:      sourceAccountID.String,
			DestinationAccountID: destAccountID.String,
			Amount:               amount,
			Description:          description,
		}, nil
	default:
		return nil, fmt.Errorf("unknown stored rule kind %q", kind)
	}
}

// nullDate converts an optional date to a driver value.
func nullDate(d *time.Time) any {
	if d == nil {
		return nil
	}
	return model.DateOnly(*d).Format(dateLayout)
}

// nullInt converts an optional int to a driver value.
func nullInt(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}
