// Package service defines the contracts the core consumes from its
// external collaborators: persistence, and the clock.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/becauseimclever/budgetexperiment/internal/model"
)

// DateRange is a closed calendar-date window.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether d falls within the range, boundaries included.
func (r DateRange) Contains(d time.Time) bool {
	d = model.DateOnly(d)
	return !d.Before(model.DateOnly(r.Start)) && !d.After(model.DateOnly(r.End))
}

// Empty reports whether the range contains no dates.
func (r DateRange) Empty() bool {
	return model.DateOnly(r.End).Before(model.DateOnly(r.Start))
}

// Storage is the persistence contract for the core. One implementation backs
// all four §6 collaborator roles; the core never reaches past this interface.
type Storage interface {
	// Transaction/transfer store
	CreateTransaction(ctx context.Context, accountID string, amount decimal.Decimal, date time.Time, description string) (string, error)
	CreateTransferPair(ctx context.Context, sourceAccountID, destinationAccountID string, amount decimal.Decimal, date time.Time, description string) (sourceID, destinationID string, err error)
	GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	FindUnmatched(ctx context.Context, window DateRange, accountID string) ([]model.Transaction, error)

	// Realization linkage
	RealizationExists(ctx context.Context, ref model.InstanceRef) (bool, error)
	RecordRealization(ctx context.Context, ref model.InstanceRef, transactionIDs []string) error
	GetRealizedDates(ctx context.Context, ruleID int64) ([]time.Time, error)

	// Rule store
	SaveRule(ctx context.Context, rule model.ProjectableRule) (int64, error)
	GetRule(ctx context.Context, id int64) (model.ProjectableRule, error)
	ListRules(ctx context.Context) ([]model.ProjectableRule, error)
	SetRulePaused(ctx context.Context, id int64, paused bool, pausedAt *time.Time) error

	// Exception store
	GetExceptions(ctx context.Context, ruleID int64) ([]model.OccurrenceException, error)
	SaveExceptionOverride(ctx context.Context, exc *model.OccurrenceException) error
	DeleteException(ctx context.Context, ruleID int64, scheduledDate time.Time) error

	// Match store
	CreateMatch(ctx context.Context, match *model.ReconciliationMatch) error
	GetMatch(ctx context.Context, id string) (*model.ReconciliationMatch, error)
	// TransitionMatch flips a match from expected current status to next,
	// atomically. It returns common.ErrInvalidState when the match is no
	// longer in the expected status, and common.ErrConflict when the
	// transition would give a side a second accepted match.
	TransitionMatch(ctx context.Context, id string, from, to model.MatchStatus, resolvedAt *time.Time) error
	HasAcceptedForTransaction(ctx context.Context, transactionID string) (bool, error)
	HasAcceptedForInstance(ctx context.Context, ref model.InstanceRef) (bool, error)
	HasOpenMatch(ctx context.Context, transactionID string, ref model.InstanceRef) (bool, error)
	ListAcceptedMatches(ctx context.Context) ([]model.ReconciliationMatch, error)
	ListPendingMatches(ctx context.Context) ([]model.ReconciliationMatch, error)
	ListMatchesForTransaction(ctx context.Context, transactionID string) ([]model.ReconciliationMatch, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// Clock supplies "today" for past-due computation. Injected everywhere so
// tests can pin time.
type Clock interface {
	Now() time.Time
	Today() time.Time
}

// SystemClock reads the ambient system time. The core itself only ever sees
// the interface.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Today returns the current UTC calendar date.
func (SystemClock) Today() time.Time { return model.DateOnly(time.Now().UTC()) }

// FixedClock always reports the same instant. Test helper.
type FixedClock struct {
	Time time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return c.Time }

// Today returns the fixed instant's calendar date.
func (c FixedClock) Today() time.Time { return model.DateOnly(c.Time) }

// RetryOptions configures retry behavior for operations against a slow or
// flaky store.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
