package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becauseimclever/budgetexperiment/internal/common"
	"github.com/becauseimclever/budgetexperiment/internal/model"
)

func TestExceptionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := setupStorage(t)

	id, err := store.SaveRule(ctx, testTransactionRule(testDate(2026, time.January, 15)))
	require.NoError(t, err)

	amount := decimal.NewFromInt(-1250)
	desc := "Rent plus parking"
	moved := testDate(2026, time.February, 18)
	require.NoError(t, store.SaveExceptionOverride(ctx, &model.OccurrenceException{
		RuleID:              id,
		ScheduledDate:       testDate(2026, time.February, 15),
		Kind:                model.ExceptionModified,
		OverrideAmount:      &amount,
		OverrideDescription: &desc,
		OverrideDate:        &moved,
	}))
	require.NoError(t, store.SaveExceptionOverride(ctx, &model.OccurrenceException{
		RuleID:        id,
		ScheduledDate: testDate(2026, time.January, 15),
		Kind:          model.ExceptionSkipped,
	}))

	exceptions, err := store.GetExceptions(ctx, id)
	require.NoError(t, err)
	require.Len(t, exceptions, 2)

	// Ordered by scheduled date.
	skip := exceptions[0]
	assert.Equal(t, model.ExceptionSkipped, skip.Kind)
	assert.Equal(t, testDate(2026, time.January, 15), skip.ScheduledDate)
	assert.Nil(t, skip.OverrideAmount)

	mod := exceptions[1]
	assert.Equal(t, model.ExceptionModified, mod.Kind)
	require.NotNil(t, mod.OverrideAmount)
	assert.True(t, mod.OverrideAmount.Equal(amount))
	require.NotNil(t, mod.OverrideDescription)
	assert.Equal(t, desc, *mod.OverrideDescription)
	require.NotNil(t, mod.OverrideDate)
	assert.Equal(t, moved, *mod.OverrideDate)
}

func TestSaveExceptionOverrideReplacesExisting(t *testing.T) {
	ctx := context.Background()
	store := setupStorage(t)

	id, err := store.SaveRule(ctx, testTransactionRule(testDate(2026, time.January, 15)))
	require.NoError(t, err)

	scheduled := testDate(2026, time.February, 15)
	require.NoError(t, store.SaveExceptionOverride(ctx, &model.OccurrenceException{
		RuleID:        id,
		ScheduledDate: scheduled,
		Kind:          model.ExceptionSkipped,
	}))

	amount := decimal.NewFromInt(-1300)
	require.NoError(t, store.SaveExceptionOverride(ctx, &model.OccurrenceException{
		RuleID:         id,
		ScheduledDate:  scheduled,
		Kind:           model.ExceptionModified,
		OverrideAmount: &amount,
	}))

	exceptions, err := store.GetExceptions(ctx, id)
	require.NoError(t, err)

	// One override per (rule, scheduled date); the replacement wins.
	require.Len(t, exceptions, 1)
	assert.Equal(t, model.ExceptionModified, exceptions[0].Kind)
}

func TestSaveExceptionOverrideRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	store := setupStorage(t)

	err := store.SaveExceptionOverride(ctx, &model.OccurrenceException{
		RuleID:        1,
		ScheduledDate: testDate(2026, time.February, 15),
		Kind:          model.ExceptionModified,
	})
	assert.ErrorIs(t, err, model.ErrEmptyModification)
}

func TestDeleteException(t *testing.T) {
	ctx := context.Background()
	store := setupStorage(t)

	id, err := store.SaveRule(ctx, testTransactionRule(testDate(2026, time.January, 15)))
	require.NoError(t, err)

	scheduled := testDate(2026, time.February, 15)
	require.NoError(t, store.SaveExceptionOverride(ctx, &model.OccurrenceException{
		RuleID:        id,
		ScheduledDate: scheduled,
		Kind:          model.ExceptionSkipped,
	}))

	require.NoError(t, store.DeleteException(ctx, id, scheduled))

	exceptions, err := store.GetExceptions(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, exceptions)

	assert.ErrorIs(t, store.DeleteException(ctx, id, scheduled), common.ErrNotFound)
}
