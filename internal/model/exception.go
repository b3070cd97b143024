package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ExceptionKind describes what an occurrence exception does to the natural
// occurrence on its scheduled date.
type ExceptionKind string

// Exception kinds.
const (
	// ExceptionSkipped removes the occurrence entirely.
	ExceptionSkipped ExceptionKind = "skipped"
	// ExceptionModified keeps the occurrence but overrides amount,
	// description, or date.
	ExceptionModified ExceptionKind = "modified"
)

// Exception validation errors.
var (
	ErrInvalidExceptionKind = errors.New("invalid exception kind")
	ErrMissingScheduledDate = errors.New("scheduled date is required")
	ErrEmptyModification    = errors.New("modified exception must override at least one field")
	ErrSkipWithOverrides    = errors.New("skipped exception cannot carry overrides")
)

// OccurrenceException is a per-date override for one rule, keyed by
// (RuleID, ScheduledDate). At most one exception may exist per key.
type OccurrenceException struct {
	ScheduledDate       time.Time
	CreatedAt           time.Time
	OverrideDate        *time.Time
	OverrideAmount      *decimal.Decimal
	OverrideDescription *string
	RuleID              int64
	Kind                ExceptionKind
}

// Validate checks the exception invariants.
func (e *OccurrenceException) Validate() error {
	if e.RuleID == 0 {
		return fmt.Errorf("exception rule id is required")
	}
	if e.ScheduledDate.IsZero() {
		return ErrMissingScheduledDate
	}
	switch e.Kind {
	case ExceptionSkipped:
		if e.OverrideAmount != nil || e.OverrideDescription != nil || e.OverrideDate != nil {
			return ErrSkipWithOverrides
		}
	case ExceptionModified:
		if e.OverrideAmount == nil && e.OverrideDescription == nil && e.OverrideDate == nil {
			return ErrEmptyModification
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidExceptionKind, e.Kind)
	}
	return nil
}

// EffectiveDate returns the date the occurrence lands on after applying this
// exception: the override date if present, otherwise the scheduled date.
func (e *OccurrenceException) EffectiveDate() time.Time {
	if e.Kind == ExceptionModified && e.OverrideDate != nil {
		return DateOnly(*e.OverrideDate)
	}
	return DateOnly(e.ScheduledDate)
}
