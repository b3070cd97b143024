package model

import (
	"errors"
	"fmt"
	"time"
)

// MatchKind distinguishes finder-suggested matches from user-created ones.
type MatchKind string

// Match kinds.
const (
	MatchKindSuggested MatchKind = "suggested"
	MatchKindManual    MatchKind = "manual"
)

// MatchStatus is the lifecycle state of a reconciliation match.
type MatchStatus string

// Match statuses. Pending may move to Accepted or Rejected; Accepted may
// move to Unlinked. Rejected and Unlinked are terminal for the record.
const (
	MatchStatusPending  MatchStatus = "pending"
	MatchStatusAccepted MatchStatus = "accepted"
	MatchStatusRejected MatchStatus = "rejected"
	MatchStatusUnlinked MatchStatus = "unlinked"
)

// Match validation errors.
var (
	ErrInvalidMatchKind   = errors.New("invalid match kind")
	ErrInvalidMatchStatus = errors.New("invalid match status")
	ErrInvalidConfidence  = errors.New("confidence must be between 0 and 1")
	ErrMissingTransaction = errors.New("actual transaction id is required")
	ErrMissingInstance    = errors.New("recurring instance reference is required")
)

// ReconciliationMatch pairs an actual transaction with one projected
// occurrence of a recurring rule. Records are never hard-deleted; rejected
// and unlinked matches remain as history.
type ReconciliationMatch struct {
	CreatedAt           time.Time
	ResolvedAt          *time.Time
	ID                  string
	ActualTransactionID string
	Instance            InstanceRef
	Kind                MatchKind
	Status              MatchStatus
	// ConfidenceScore is 0-1 and only meaningful for suggested matches.
	ConfidenceScore float64
}

// Validate checks the match invariants.
func (m *ReconciliationMatch) Validate() error {
	if m.ActualTransactionID == "" {
		return ErrMissingTransaction
	}
	if m.Instance.RuleID == 0 || m.Instance.ScheduledDate.IsZero() {
		return ErrMissingInstance
	}
	switch m.Kind {
	case MatchKindSuggested, MatchKindManual:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMatchKind, m.Kind)
	}
	switch m.Status {
	case MatchStatusPending, MatchStatusAccepted, MatchStatusRejected, MatchStatusUnlinked:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMatchStatus, m.Status)
	}
	if m.ConfidenceScore < 0 || m.ConfidenceScore > 1 {
		return ErrInvalidConfidence
	}
	return nil
}

// Resolved reports whether the match has left the Pending state.
func (m *ReconciliationMatch) Resolved() bool {
	return m.Status != MatchStatusPending
}
