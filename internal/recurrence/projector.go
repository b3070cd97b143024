package recurrence

import (
	"fmt"
	"sort"
	"time"

	"github.com/becauseimclever/budgetexperiment/internal/model"
	"github.com/becauseimclever/budgetexperiment/internal/service"
)

// Projector deterministically expands a rule plus its per-date exceptions
// into ordered occurrences over a window. It is stateless and side-effect
// free; the same inputs always produce the same sequence.
type Projector struct{}

// NewProjector creates a projector.
func NewProjector() *Projector {
	return &Projector{}
}

// Project expands the rule over [window.Start, window.End]. Occurrences are
// selected by their scheduled date; a modified exception may move the
// effective date, and the output is ordered by effective date. The supplied
// today drives past-due computation, and realized lists the scheduled dates
// that already have a concrete transaction.
func (p *Projector) Project(
	rule model.ProjectableRule,
	exceptions []model.OccurrenceException,
	realized []time.Time,
	window service.DateRange,
	today time.Time,
) ([]model.ProjectedOccurrence, error) {
	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("cannot project invalid rule: %w", err)
	}

	rec := rule.Recurrence()
	windowStart := model.DateOnly(window.Start)
	windowEnd := model.DateOnly(window.End)
	today = model.DateOnly(today)

	if windowEnd.Before(windowStart) {
		return nil, nil
	}
	if model.DateOnly(rec.AnchorDate).After(windowEnd) {
		return nil, nil
	}

	// A paused rule keeps its history: occurrences scheduled before the
	// pause point still project, later ones do not. A paused rule with no
	// recorded pause point yields nothing.
	var pauseCutoff *time.Time
	if rec.IsPaused {
		if rec.PausedAt == nil {
			return nil, nil
		}
		cutoff := model.DateOnly(*rec.PausedAt)
		pauseCutoff = &cutoff
	}

	excByDate := make(map[time.Time]*model.OccurrenceException, len(exceptions))
	for i := range exceptions {
		excByDate[model.DateOnly(exceptions[i].ScheduledDate)] = &exceptions[i]
	}

	realizedDates := make(map[time.Time]bool, len(realized))
	for _, d := range realized {
		realizedDates[model.DateOnly(d)] = true
	}

	var out []model.ProjectedOccurrence
	for n := 0; ; n++ {
		if rec.MaxOccurrences != nil && n >= *rec.MaxOccurrences {
			break
		}

		scheduled := nthScheduledDate(rec, n)
		if scheduled.After(windowEnd) {
			break
		}
		if rec.EndDate != nil && scheduled.After(model.DateOnly(*rec.EndDate)) {
			break
		}
		if pauseCutoff != nil && !scheduled.Before(*pauseCutoff) {
			break
		}
		if scheduled.Before(windowStart) {
			continue
		}

		occ := model.ProjectedOccurrence{
			RuleID:        rec.ID,
			ScheduledDate: scheduled,
			EffectiveDate: scheduled,
			Amount:        rule.ScheduledAmount(),
			Description:   rule.ScheduledDescription(),
		}

		if exc, ok := excByDate[scheduled]; ok {
			switch exc.Kind {
			case model.ExceptionSkipped:
				continue
			case model.ExceptionModified:
				occ.IsModified = true
				if exc.OverrideAmount != nil {
					occ.Amount = *exc.OverrideAmount
				}
				if exc.OverrideDescription != nil {
					occ.Description = *exc.OverrideDescription
				}
				if exc.OverrideDate != nil {
					occ.EffectiveDate = model.DateOnly(*exc.OverrideDate)
				}
			}
		}

		occ.IsRealized = realizedDates[scheduled]
		occ.IsPastDue = occ.EffectiveDate.Before(today) && !occ.IsRealized
		out = append(out, occ)
	}

	// Date overrides can move an occurrence out of scheduled order.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EffectiveDate.Before(out[j].EffectiveDate)
	})

	return out, nil
}

// Merge interleaves the projections of several rules into one sequence
// ordered by effective date. Lists must be supplied in rule creation order;
// date ties resolve to the earlier-created rule, then the earlier scheduled
// date.
func Merge(lists ...[]model.ProjectedOccurrence) []model.ProjectedOccurrence {
	type tagged struct {
		occ     model.ProjectedOccurrence
		ruleSeq int
	}

	var all []tagged
	for seq, list := range lists {
		for _, occ := range list {
			all = append(all, tagged{occ: occ, ruleSeq: seq})
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if !a.occ.EffectiveDate.Equal(b.occ.EffectiveDate) {
			return a.occ.EffectiveDate.Before(b.occ.EffectiveDate)
		}
		if a.ruleSeq != b.ruleSeq {
			return a.ruleSeq < b.ruleSeq
		}
		return a.occ.ScheduledDate.Before(b.occ.ScheduledDate)
	})

	out := make([]model.ProjectedOccurrence, len(all))
	for i, t := range all {
		out[i] = t.occ
	}
	return out
}
