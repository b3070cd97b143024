package recurrence

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/becauseimclever/budgetexperiment/internal/model"
)

func TestValidateExceptionOverride(t *testing.T) {
	rule := monthlyRule(1, date(2026, time.January, 15))
	amount := decimal.NewFromInt(-1250)

	tests := []struct {
		exc      model.OccurrenceException
		wantErr  error
		name     string
		existing []model.OccurrenceException
	}{
		{
			name: "skip is always collision free",
			exc: model.OccurrenceException{
				RuleID:        1,
				ScheduledDate: date(2026, time.February, 15),
				Kind:          model.ExceptionSkipped,
			},
		},
		{
			name: "amount override has no date to collide",
			exc: model.OccurrenceException{
				RuleID:         1,
				ScheduledDate:  date(2026, time.February, 15),
				Kind:           model.ExceptionModified,
				OverrideAmount: &amount,
			},
		},
		{
			name: "moving onto a free date",
			exc: model.OccurrenceException{
				RuleID:        1,
				ScheduledDate: date(2026, time.February, 15),
				Kind:          model.ExceptionModified,
				OverrideDate:  timePtr(date(2026, time.February, 20)),
			},
		},
		{
			name: "moving onto a natural occurrence collides",
			exc: model.OccurrenceException{
				RuleID:        1,
				ScheduledDate: date(2026, time.February, 15),
				Kind:          model.ExceptionModified,
				OverrideDate:  timePtr(date(2026, time.March, 15)),
			},
			wantErr: ErrDateCollision,
		},
		{
			name: "moving onto another moved occurrence collides",
			exc: model.OccurrenceException{
				RuleID:        1,
				ScheduledDate: date(2026, time.February, 15),
				Kind:          model.ExceptionModified,
				OverrideDate:  timePtr(date(2026, time.April, 1)),
			},
			existing: []model.OccurrenceException{{
				RuleID:        1,
				ScheduledDate: date(2026, time.March, 15),
				Kind:          model.ExceptionModified,
				OverrideDate:  timePtr(date(2026, time.April, 1)),
			}},
			wantErr: ErrDateCollision,
		},
		{
			name: "moving onto a skipped occurrence's date is allowed",
			exc: model.OccurrenceException{
				RuleID:        1,
				ScheduledDate: date(2026, time.February, 15),
				Kind:          model.ExceptionModified,
				OverrideDate:  timePtr(date(2026, time.March, 15)),
			},
			existing: []model.OccurrenceException{{
				RuleID:        1,
				ScheduledDate: date(2026, time.March, 15),
				Kind:          model.ExceptionSkipped,
			}},
		},
		{
			name: "re-editing the same scheduled date never self-collides",
			exc: model.OccurrenceException{
				RuleID:        1,
				ScheduledDate: date(2026, time.February, 15),
				Kind:          model.ExceptionModified,
				OverrideDate:  timePtr(date(2026, time.February, 18)),
			},
			existing: []model.OccurrenceException{{
				RuleID:        1,
				ScheduledDate: date(2026, time.February, 15),
				Kind:          model.ExceptionModified,
				OverrideDate:  timePtr(date(2026, time.February, 20)),
			}},
		},
		{
			name: "malformed exception",
			exc: model.OccurrenceException{
				RuleID:        1,
				ScheduledDate: date(2026, time.February, 15),
				Kind:          model.ExceptionModified,
			},
			wantErr: model.ErrEmptyModification,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExceptionOverride(rule, tt.existing, &tt.exc)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateExceptionOverrideRuleMismatch(t *testing.T) {
	rule := monthlyRule(1, date(2026, time.January, 15))
	exc := model.OccurrenceException{
		RuleID:        2,
		ScheduledDate: date(2026, time.February, 15),
		Kind:          model.ExceptionSkipped,
	}

	err := ValidateExceptionOverride(rule, nil, &exc)
	assert.Error(t, err)
}

func timePtr(t time.Time) *time.Time { return &t }
