package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReconciliationMatchValidate(t *testing.T) {
	ref := InstanceRef{RuleID: 1, ScheduledDate: date(2026, time.March, 1)}

	valid := ReconciliationMatch{
		ID:                  "m1",
		ActualTransactionID: "txn1",
		Instance:            ref,
		Kind:                MatchKindSuggested,
		Status:              MatchStatusPending,
		ConfidenceScore:     0.85,
	}

	tests := []struct {
		mutate  func(*ReconciliationMatch)
		wantErr error
		name    string
	}{
		{
			name:   "valid",
			mutate: func(_ *ReconciliationMatch) {},
		},
		{
			name:    "missing transaction",
			mutate:  func(m *ReconciliationMatch) { m.ActualTransactionID = "" },
			wantErr: ErrMissingTransaction,
		},
		{
			name:    "missing instance",
			mutate:  func(m *ReconciliationMatch) { m.Instance = InstanceRef{} },
			wantErr: ErrMissingInstance,
		},
		{
			name:    "unknown kind",
			mutate:  func(m *ReconciliationMatch) { m.Kind = "guessed" },
			wantErr: ErrInvalidMatchKind,
		},
		{
			name:    "unknown status",
			mutate:  func(m *ReconciliationMatch) { m.Status = "limbo" },
			wantErr: ErrInvalidMatchStatus,
		},
		{
			name:    "confidence above one",
			mutate:  func(m *ReconciliationMatch) { m.ConfidenceScore = 1.5 },
			wantErr: ErrInvalidConfidence,
		},
		{
			name:    "negative confidence",
			mutate:  func(m *ReconciliationMatch) { m.ConfidenceScore = -0.1 },
			wantErr: ErrInvalidConfidence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid
			tt.mutate(&m)
			err := m.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestReconciliationMatchResolved(t *testing.T) {
	m := ReconciliationMatch{Status: MatchStatusPending}
	assert.False(t, m.Resolved())

	for _, status := range []MatchStatus{MatchStatusAccepted, MatchStatusRejected, MatchStatusUnlinked} {
		m.Status = status
		assert.True(t, m.Resolved(), string(status))
	}
}
