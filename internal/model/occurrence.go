package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProjectedOccurrence is one computed calendar occurrence of a rule. It is
// ephemeral: projections are recomputed on demand and never persisted.
type ProjectedOccurrence struct {
	// ScheduledDate is the date the schedule naturally produces.
	ScheduledDate time.Time
	// EffectiveDate is the scheduled date, or the override date when a
	// modified exception moved the occurrence.
	EffectiveDate time.Time
	Description   string
	Amount        decimal.Decimal
	RuleID        int64
	// IsModified is set when a modified exception changed any field.
	IsModified bool
	// IsRealized is set when a concrete transaction already exists for
	// this (rule, scheduled date).
	IsRealized bool
	// IsPastDue is set when the effective date has elapsed without the
	// occurrence being realized.
	IsPastDue bool
}

// InstanceRef identifies one occurrence of one rule, realized or not.
type InstanceRef struct {
	ScheduledDate time.Time
	RuleID        int64
}

// Ref returns the instance reference for this occurrence.
func (o *ProjectedOccurrence) Ref() InstanceRef {
	return InstanceRef{RuleID: o.RuleID, ScheduledDate: DateOnly(o.ScheduledDate)}
}
