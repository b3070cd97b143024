package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func intPtr(n int) *int { return &n }

func timePtr(t time.Time) *time.Time { return &t }

func TestRecurrenceRuleValidate(t *testing.T) {
	anchor := date(2026, time.January, 15)

	tests := []struct {
		wantErr error
		name    string
		rule    RecurrenceRule
	}{
		{
			name: "valid monthly rule",
			rule: RecurrenceRule{Frequency: FrequencyMonthly, Interval: 1, AnchorDate: anchor},
		},
		{
			name: "valid rule with end date",
			rule: RecurrenceRule{
				Frequency:  FrequencyWeekly,
				Interval:   2,
				AnchorDate: anchor,
				EndDate:    timePtr(date(2026, time.June, 1)),
			},
		},
		{
			name: "valid rule with max occurrences",
			rule: RecurrenceRule{
				Frequency:      FrequencyDaily,
				Interval:       1,
				AnchorDate:     anchor,
				MaxOccurrences: intPtr(10),
			},
		},
		{
			name:    "unknown frequency",
			rule:    RecurrenceRule{Frequency: "fortnightly", Interval: 1, AnchorDate: anchor},
			wantErr: ErrInvalidFrequency,
		},
		{
			name:    "zero interval",
			rule:    RecurrenceRule{Frequency: FrequencyMonthly, Interval: 0, AnchorDate: anchor},
			wantErr: ErrInvalidInterval,
		},
		{
			name:    "negative interval",
			rule:    RecurrenceRule{Frequency: FrequencyMonthly, Interval: -1, AnchorDate: anchor},
			wantErr: ErrInvalidInterval,
		},
		{
			name:    "missing anchor",
			rule:    RecurrenceRule{Frequency: FrequencyMonthly, Interval: 1},
			wantErr: ErrMissingAnchor,
		},
		{
			name: "both end conditions",
			rule: RecurrenceRule{
				Frequency:      FrequencyMonthly,
				Interval:       1,
				AnchorDate:     anchor,
				EndDate:        timePtr(date(2026, time.June, 1)),
				MaxOccurrences: intPtr(5),
			},
			wantErr: ErrConflictingEndings,
		},
		{
			name: "end date before anchor",
			rule: RecurrenceRule{
				Frequency:  FrequencyMonthly,
				Interval:   1,
				AnchorDate: anchor,
				EndDate:    timePtr(date(2026, time.January, 1)),
			},
			wantErr: ErrInvalidEndDate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestTransactionRuleValidate(t *testing.T) {
	base := RecurrenceRule{
		Frequency:  FrequencyMonthly,
		Interval:   1,
		AnchorDate: date(2026, time.January, 15),
	}

	tests := []struct {
		wantErr error
		name    string
		rule    TransactionRule
	}{
		{
			name: "valid",
			rule: TransactionRule{
				AccountID:      "checking",
				Description:    "Rent",
				Amount:         decimal.NewFromInt(-1200),
				RecurrenceRule: base,
			},
		},
		{
			name: "missing account",
			rule: TransactionRule{
				Description:    "Rent",
				Amount:         decimal.NewFromInt(-1200),
				RecurrenceRule: base,
			},
			wantErr: ErrMissingAccount,
		},
		{
			name: "zero amount",
			rule: TransactionRule{
				AccountID:      "checking",
				Description:    "Rent",
				RecurrenceRule: base,
			},
			wantErr: ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestTransferRuleValidate(t *testing.T) {
	base := RecurrenceRule{
		Frequency:  FrequencyMonthly,
		Interval:   1,
		AnchorDate: date(2026, time.January, 15),
	}

	tests := []struct {
		wantErr error
		name    string
		rule    TransferRule
	}{
		{
			name: "valid",
			rule: TransferRule{
				SourceAccountID:      "checking",
				DestinationAccountID: "savings",
				Description:          "Savings sweep",
				Amount:               decimal.NewFromInt(500),
				RecurrenceRule:       base,
			},
		},
		{
			name: "same accounts",
			rule: TransferRule{
				SourceAccountID:      "checking",
				DestinationAccountID: "checking",
				Description:          "Loop",
				Amount:               decimal.NewFromInt(500),
				RecurrenceRule:       base,
			},
			wantErr: ErrSameAccounts,
		},
		{
			name: "missing destination",
			rule: TransferRule{
				SourceAccountID: "checking",
				Description:     "Sweep",
				Amount:          decimal.NewFromInt(500),
				RecurrenceRule:  base,
			},
			wantErr: ErrMissingAccount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDateOnly(t *testing.T) {
	loc := time.FixedZone("somewhere", -5*3600)
	in := time.Date(2026, time.March, 14, 23, 45, 0, 0, loc)

	got := DateOnly(in)

	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 2026, got.Year())
	assert.Equal(t, time.March, got.Month())
	assert.Equal(t, 14, got.Day())
	assert.Zero(t, got.Hour())
}

func TestSameDate(t *testing.T) {
	a := time.Date(2026, time.March, 14, 8, 0, 0, 0, time.UTC)
	b := time.Date(2026, time.March, 14, 22, 30, 0, 0, time.UTC)

	assert.True(t, SameDate(a, b))
	assert.False(t, SameDate(a, b.AddDate(0, 0, 1)))
}
