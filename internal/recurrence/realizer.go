package recurrence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/becauseimclever/budgetexperiment/internal/common"
	"github.com/becauseimclever/budgetexperiment/internal/model"
	"github.com/becauseimclever/budgetexperiment/internal/service"
)

// Realizer converts projected occurrences into persisted transactions,
// delegating creation to the external store and recording the realization
// linkage so future projections see the date as materialized.
type Realizer struct {
	storage   service.Storage
	clock     service.Clock
	projector *Projector
}

// NewRealizer creates a realizer backed by the given storage and clock.
func NewRealizer(storage service.Storage, clock service.Clock) *Realizer {
	return &Realizer{
		storage:   storage,
		clock:     clock,
		projector: NewProjector(),
	}
}

// RealizeResult describes the concrete transaction(s) created for one
// occurrence. Transfers produce two transaction ids, single transactions one.
type RealizeResult struct {
	EffectiveDate  time.Time
	Description    string
	TransactionIDs []string
	Amount         decimal.Decimal
	Ref            model.InstanceRef
}

// Realize materializes one occurrence of a rule. It fails with
// common.ErrRuleInactive when the rule is paused or missing,
// common.ErrAlreadyRealized when a concrete transaction already exists for
// the (rule, scheduled date), and common.ErrNotProjectable when the schedule
// would never produce that date (or an exception skips it).
func (r *Realizer) Realize(
	ctx context.Context,
	ruleID int64,
	scheduledDate time.Time,
	overrideAmount *decimal.Decimal,
	overrideDescription *string,
) (*RealizeResult, error) {
	scheduledDate = model.DateOnly(scheduledDate)
	ref := model.InstanceRef{RuleID: ruleID, ScheduledDate: scheduledDate}

	rule, err := r.storage.GetRule(ctx, ruleID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("%w: rule %d", common.ErrRuleInactive, ruleID)
		}
		return nil, fmt.Errorf("failed to load rule %d: %w", ruleID, err)
	}
	if rule.Recurrence().IsPaused {
		return nil, fmt.Errorf("%w: rule %d is paused", common.ErrRuleInactive, ruleID)
	}

	exists, err := r.storage.RealizationExists(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to check realization: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: rule %d on %s", common.ErrAlreadyRealized,
			ruleID, scheduledDate.Format("2006-01-02"))
	}

	occ, err := r.projectSingle(ctx, rule, scheduledDate)
	if err != nil {
		return nil, err
	}

	amount := occ.Amount
	if overrideAmount != nil {
		amount = *overrideAmount
	}
	description := occ.Description
	if overrideDescription != nil {
		description = *overrideDescription
	}

	ids, err := r.createTransactions(ctx, rule, amount, occ.EffectiveDate, description)
	if err != nil {
		return nil, err
	}

	if err := r.storage.RecordRealization(ctx, ref, ids); err != nil {
		return nil, fmt.Errorf("failed to record realization: %w", err)
	}

	slog.Info("Realized occurrence",
		"rule_id", ruleID,
		"scheduled_date", scheduledDate.Format("2006-01-02"),
		"transaction_ids", ids)

	return &RealizeResult{
		Ref:            ref,
		TransactionIDs: ids,
		EffectiveDate:  occ.EffectiveDate,
		Amount:         amount,
		Description:    description,
	}, nil
}

// projectSingle validates that the schedule actually produces scheduledDate
// by re-running the projector over a single-day window.
func (r *Realizer) projectSingle(ctx context.Context, rule model.ProjectableRule, scheduledDate time.Time) (*model.ProjectedOccurrence, error) {
	exceptions, err := r.storage.GetExceptions(ctx, rule.Recurrence().ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load exceptions: %w", err)
	}

	window := service.DateRange{Start: scheduledDate, End: scheduledDate}
	occs, err := r.projector.Project(rule, exceptions, nil, window, r.clock.Today())
	if err != nil {
		return nil, err
	}

	for i := range occs {
		if model.SameDate(occs[i].ScheduledDate, scheduledDate) {
			return &occs[i], nil
		}
	}
	return nil, fmt.Errorf("%w: rule %d does not produce %s", common.ErrNotProjectable,
		rule.Recurrence().ID, scheduledDate.Format("2006-01-02"))
}

// createTransactions dispatches to the store by rule variant.
func (r *Realizer) createTransactions(
	ctx context.Context,
	rule model.ProjectableRule,
	amount decimal.Decimal,
	date time.Time,
	description string,
) ([]string, error) {
	switch v := rule.(type) {
	case *model.TransactionRule:
		id, err := r.storage.CreateTransaction(ctx, v.AccountID, amount, date, description)
		if err != nil {
			return nil, fmt.Errorf("failed to create transaction: %w", err)
		}
		return []string{id}, nil
	case *model.TransferRule:
		srcID, dstID, err := r.storage.CreateTransferPair(ctx, v.SourceAccountID, v.DestinationAccountID, amount, date, description)
		if err != nil {
			return nil, fmt.Errorf("failed to create transfer pair: %w", err)
		}
		return []string{srcID, dstID}, nil
	default:
		return nil, fmt.Errorf("unknown rule kind %q", rule.Kind())
	}
}

// RealizeItem identifies one occurrence in a batch realization request.
type RealizeItem struct {
	ScheduledDate       time.Time
	OverrideAmount      *decimal.Decimal
	OverrideDescription *string
	RuleID              int64
}

// RealizeOutcome is the per-item result of a batch realization.
type RealizeOutcome struct {
	Result *RealizeResult
	Err    error
	Item   RealizeItem
}

// RealizeBatch realizes each item independently. One item's failure never
// aborts its siblings; the caller gets an outcome per item, in input order.
// Partial failure is final: nothing is retried.
func (r *Realizer) RealizeBatch(ctx context.Context, items []RealizeItem) []RealizeOutcome {
	outcomes := make([]RealizeOutcome, len(items))
	for i, item := range items {
		result, err := r.Realize(ctx, item.RuleID, item.ScheduledDate, item.OverrideAmount, item.OverrideDescription)
		outcomes[i] = RealizeOutcome{Item: item, Result: result, Err: err}
		if err != nil {
			slog.Warn("Batch item failed",
				"rule_id", item.RuleID,
				"scheduled_date", model.DateOnly(item.ScheduledDate).Format("2006-01-02"),
				"error", err)
		}
	}
	return outcomes
}

// PastDue projects every rule from its anchor through today and returns the
// occurrences whose effective date has elapsed without being realized,
// merged in effective-date order.
func (r *Realizer) PastDue(ctx context.Context) ([]model.ProjectedOccurrence, error) {
	rules, err := r.storage.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	today := r.clock.Today()
	lists := make([][]model.ProjectedOccurrence, 0, len(rules))

	for _, rule := range rules {
		rec := rule.Recurrence()
		exceptions, err := r.storage.GetExceptions(ctx, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load exceptions for rule %d: %w", rec.ID, err)
		}
		realized, err := r.storage.GetRealizedDates(ctx, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load realizations for rule %d: %w", rec.ID, err)
		}

		window := service.DateRange{Start: rec.AnchorDate, End: today}
		occs, err := r.projector.Project(rule, exceptions, realized, window, today)
		if err != nil {
			return nil, err
		}

		due := occs[:0:0]
		for _, occ := range occs {
			if occ.IsPastDue {
				due = append(due, occ)
			}
		}
		if len(due) > 0 {
			lists = append(lists, due)
		}
	}

	return Merge(lists...), nil
}
