package recurrence

import (
	"errors"
	"fmt"

	"github.com/becauseimclever/budgetexperiment/internal/model"
	"github.com/becauseimclever/budgetexperiment/internal/service"
)

// ErrDateCollision is returned when a modified exception would move an
// occurrence onto another occurrence's effective date for the same rule.
var ErrDateCollision = errors.New("override date collides with another occurrence")

// ValidateExceptionOverride checks an exception against the rule and its
// existing overrides before it is persisted: the exception itself must be
// well-formed, and a modified override date must not land on the effective
// date of any other occurrence of the same rule.
func ValidateExceptionOverride(rule model.ProjectableRule, existing []model.OccurrenceException, exc *model.OccurrenceException) error {
	if err := exc.Validate(); err != nil {
		return err
	}
	if exc.RuleID != rule.Recurrence().ID {
		return fmt.Errorf("exception rule id %d does not match rule %d", exc.RuleID, rule.Recurrence().ID)
	}
	if exc.Kind != model.ExceptionModified || exc.OverrideDate == nil {
		return nil
	}

	target := model.DateOnly(*exc.OverrideDate)
	scheduled := model.DateOnly(exc.ScheduledDate)

	// Another exception already landing on the target date.
	for _, other := range existing {
		if model.SameDate(other.ScheduledDate, scheduled) {
			continue
		}
		if other.Kind == model.ExceptionModified && model.SameDate(other.EffectiveDate(), target) {
			return fmt.Errorf("%w: exception on %s already lands on %s", ErrDateCollision,
				model.DateOnly(other.ScheduledDate).Format("2006-01-02"),
				target.Format("2006-01-02"))
		}
	}

	// A natural occurrence on the target date. Projecting the single day
	// with the existing exceptions applied also respects skips and moves.
	projector := NewProjector()
	window := service.DateRange{Start: target, End: target}
	occs, err := projector.Project(rule, existing, nil, window, target)
	if err != nil {
		return err
	}
	for _, occ := range occs {
		if !model.SameDate(occ.ScheduledDate, scheduled) && model.SameDate(occ.EffectiveDate, target) {
			return fmt.Errorf("%w: rule %d already occurs on %s", ErrDateCollision,
				rule.Recurrence().ID, target.Format("2006-01-02"))
		}
	}

	return nil
}
