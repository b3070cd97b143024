// Package model defines the core domain types for recurring transactions,
// occurrence projection, and reconciliation matching.
package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Frequency describes how often a recurrence rule fires.
type Frequency string

// Supported recurrence frequencies.
const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyBiWeekly  Frequency = "biweekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiWeekly,
		FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	}
	return false
}

// Rule validation errors.
var (
	ErrInvalidFrequency   = errors.New("invalid frequency")
	ErrInvalidInterval    = errors.New("interval must be at least 1")
	ErrMissingAnchor      = errors.New("anchor date is required")
	ErrConflictingEndings = errors.New("end date and max occurrences are mutually exclusive")
	ErrInvalidEndDate     = errors.New("end date must not be before anchor date")
	ErrInvalidAmount      = errors.New("amount must be non-zero")
	ErrMissingAccount     = errors.New("account is required")
	ErrSameAccounts       = errors.New("source and destination accounts must differ")
)

// RecurrenceRule is the pure recurrence value shared by both rule variants.
// It is immutable after creation except for the pause flag.
type RecurrenceRule struct {
	AnchorDate     time.Time
	CreatedAt      time.Time
	EndDate        *time.Time
	PausedAt       *time.Time
	MaxOccurrences *int
	ID             int64
	Interval       int
	Frequency      Frequency
	IsPaused       bool
}

// Validate checks the recurrence invariants: a known frequency, interval >= 1,
// an anchor date, and at most one end condition.
func (r *RecurrenceRule) Validate() error {
	if !r.Frequency.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidFrequency, r.Frequency)
	}
	if r.Interval < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidInterval, r.Interval)
	}
	if r.AnchorDate.IsZero() {
		return ErrMissingAnchor
	}
	if r.EndDate != nil && r.MaxOccurrences != nil {
		return ErrConflictingEndings
	}
	if r.EndDate != nil && r.EndDate.Before(DateOnly(r.AnchorDate)) {
		return ErrInvalidEndDate
	}
	if r.MaxOccurrences != nil && *r.MaxOccurrences < 1 {
		return fmt.Errorf("max occurrences must be at least 1, got %d", *r.MaxOccurrences)
	}
	return nil
}

// Active reports whether the rule currently produces new occurrences.
func (r *RecurrenceRule) Active() bool {
	return !r.IsPaused
}

// RuleKind distinguishes the two projectable rule variants.
type RuleKind string

// Rule variants.
const (
	RuleKindTransaction RuleKind = "transaction"
	RuleKindTransfer    RuleKind = "transfer"
)

// ProjectableRule is the capability shared by recurring transactions and
// recurring transfers: everything the projector needs to expand a schedule
// into concrete occurrences.
type ProjectableRule interface {
	// Recurrence returns the underlying schedule value.
	Recurrence() *RecurrenceRule
	// Kind identifies the rule variant.
	Kind() RuleKind
	// ScheduledAmount is the amount each natural occurrence carries.
	ScheduledAmount() decimal.Decimal
	// ScheduledDescription is the description each natural occurrence carries.
	ScheduledDescription() string
	// Validate checks both the schedule and variant-specific fields.
	Validate() error
}

// TransactionRule is a recurring single transaction against one account.
type TransactionRule struct {
	AccountID   string
	Description string
	Amount      decimal.Decimal
	RecurrenceRule
}

// Recurrence returns the schedule value.
func (r *TransactionRule) Recurrence() *RecurrenceRule { return &r.RecurrenceRule }

// Kind identifies this as a single-transaction rule.
func (r *TransactionRule) Kind() RuleKind { return RuleKindTransaction }

// ScheduledAmount returns the per-occurrence amount.
func (r *TransactionRule) ScheduledAmount() decimal.Decimal { return r.Amount }

// ScheduledDescription returns the per-occurrence description.
func (r *TransactionRule) ScheduledDescription() string { return r.Description }

// Validate checks the schedule plus transaction-specific fields.
func (r *TransactionRule) Validate() error {
	if err := r.RecurrenceRule.Validate(); err != nil {
		return err
	}
	if r.AccountID == "" {
		return fmt.Errorf("%w: account id", ErrMissingAccount)
	}
	if r.Amount.IsZero() {
		return ErrInvalidAmount
	}
	return nil
}

// TransferRule is a recurring transfer between two accounts. The amount is
// debited from the source account and credited to the destination account.
type TransferRule struct {
	SourceAccountID      string
	DestinationAccountID string
	Description          string
	Amount               decimal.Decimal
	RecurrenceRule
}

// Recurrence returns the schedule value.
func (r *TransferRule) Recurrence() *RecurrenceRule { return &r.RecurrenceRule }

// Kind identifies this as a transfer rule.
func (r *TransferRule) Kind() RuleKind { return RuleKindTransfer }

// ScheduledAmount returns the per-occurrence amount.
func (r *TransferRule) ScheduledAmount() decimal.Decimal { return r.Amount }

// ScheduledDescription returns the per-occurrence description.
func (r *TransferRule) ScheduledDescription() string { return r.Description }

// Validate checks the schedule plus transfer-specific fields.
func (r *TransferRule) Validate() error {
	if err := r.RecurrenceRule.Validate(); err != nil {
		return err
	}
	if r.SourceAccountID == "" || r.DestinationAccountID == "" {
		return fmt.Errorf("%w: source and destination account ids", ErrMissingAccount)
	}
	if r.SourceAccountID == r.DestinationAccountID {
		return ErrSameAccounts
	}
	if r.Amount.IsZero() {
		return ErrInvalidAmount
	}
	return nil
}

// DateOnly strips the time component from t, leaving a zone-less calendar
// date anchored at UTC midnight. All schedule arithmetic operates on these.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDate reports whether a and b fall on the same calendar date.
func SameDate(a, b time.Time) bool {
	return DateOnly(a).Equal(DateOnly(b))
}
