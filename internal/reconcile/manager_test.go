package reconcile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becauseimclever/budgetexperiment/internal/common"
	"github.com/becauseimclever/budgetexperiment/internal/model"
	"github.com/becauseimclever/budgetexperiment/internal/service"
)

// matchStore is an in-memory service.Storage for manager tests. It mirrors
// the real store's semantics for match state: optimistic transitions and the
// one-accepted-per-side constraint.
type matchStore struct {
	matches map[string]*model.ReconciliationMatch
	order   []string
}

func newMatchStore() *matchStore {
	return &matchStore{matches: make(map[string]*model.ReconciliationMatch)}
}

func (s *matchStore) CreateMatch(_ context.Context, match *model.ReconciliationMatch) error {
	if err := match.Validate(); err != nil {
		return err
	}
	if match.Status == model.MatchStatusAccepted {
		if s.acceptedForTransaction(match.ActualTransactionID) || s.acceptedForInstance(match.Instance) {
			return fmt.Errorf("%w: side already accepted", common.ErrConflict)
		}
	}
	copied := *match
	s.matches[match.ID] = &copied
	s.order = append(s.order, match.ID)
	return nil
}

func (s *matchStore) GetMatch(_ context.Context, id string) (*model.ReconciliationMatch, error) {
	match, ok := s.matches[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := *match
	return &copied, nil
}

func (s *matchStore) TransitionMatch(_ context.Context, id string, from, to model.MatchStatus, resolvedAt *time.Time) error {
	match, ok := s.matches[id]
	if !ok {
		return common.ErrNotFound
	}
	if match.Status != from {
		return fmt.Errorf("%w: match %s is %s", common.ErrInvalidState, id, match.Status)
	}
	if to == model.MatchStatusAccepted {
		if s.acceptedForTransaction(match.ActualTransactionID) || s.acceptedForInstance(match.Instance) {
			return fmt.Errorf("%w: side already accepted", common.ErrConflict)
		}
	}
	match.Status = to
	match.ResolvedAt = resolvedAt
	return nil
}

func (s *matchStore) acceptedForTransaction(txnID string) bool {
	for _, m := range s.matches {
		if m.ActualTransactionID == txnID && m.Status == model.MatchStatusAccepted {
			return true
		}
	}
	return false
}

func (s *matchStore) acceptedForInstance(ref model.InstanceRef) bool {
	for _, m := range s.matches {
		if m.Instance == ref && m.Status == model.MatchStatusAccepted {
			return true
		}
	}
	return false
}

func (s *matchStore) HasAcceptedForTransaction(_ context.Context, txnID string) (bool, error) {
	return s.acceptedForTransaction(txnID), nil
}

func (s *matchStore) HasAcceptedForInstance(_ context.Context, ref model.InstanceRef) (bool, error) {
	return s.acceptedForInstance(ref), nil
}

func (s *matchStore) HasOpenMatch(_ context.Context, txnID string, ref model.InstanceRef) (bool, error) {
	for _, m := range s.matches {
		if m.ActualTransactionID == txnID && m.Instance == ref && m.Status == model.MatchStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (s *matchStore) ListAcceptedMatches(_ context.Context) ([]model.ReconciliationMatch, error) {
	return s.listByStatus(model.MatchStatusAccepted), nil
}

func (s *matchStore) ListPendingMatches(_ context.Context) ([]model.ReconciliationMatch, error) {
	return s.listByStatus(model.MatchStatusPending), nil
}

func (s *matchStore) listByStatus(status model.MatchStatus) []model.ReconciliationMatch {
	var out []model.ReconciliationMatch
	for _, id := range s.order {
		if m := s.matches[id]; m.Status == status {
			out = append(out, *m)
		}
	}
	return out
}

func (s *matchStore) ListMatchesForTransaction(_ context.Context, txnID string) ([]model.ReconciliationMatch, error) {
	var out []model.ReconciliationMatch
	for _, id := range s.order {
		if m := s.matches[id]; m.ActualTransactionID == txnID {
			out = append(out, *m)
		}
	}
	return out, nil
}

// The manager never touches the rest of the interface.

func (s *matchStore) CreateTransaction(_ context.Context, _ string, _ decimal.Decimal, _ time.Time, _ string) (string, error) {
	panic("not used")
}

func (s *matchStore) CreateTransferPair(_ context.Context, _, _ string, _ decimal.Decimal, _ time.Time, _ string) (string, string, error) {
	panic("not used")
}

func (s *matchStore) GetTransactionByID(_ context.Context, _ string) (*model.Transaction, error) {
	panic("not used")
}

func (s *matchStore) FindUnmatched(_ context.Context, _ service.DateRange, _ string) ([]model.Transaction, error) {
	panic("not used")
}

func (s *matchStore) RealizationExists(_ context.Context, _ model.InstanceRef) (bool, error) {
	panic("not used")
}

func (s *matchStore) RecordRealization(_ context.Context, _ model.InstanceRef, _ []string) error {
	panic("not used")
}

func (s *matchStore) GetRealizedDates(_ context.Context, _ int64) ([]time.Time, error) {
	panic("not used")
}

func (s *matchStore) SaveRule(_ context.Context, _ model.ProjectableRule) (int64, error) {
	panic("not used")
}

func (s *matchStore) GetRule(_ context.Context, _ int64) (model.ProjectableRule, error) {
	panic("not used")
}

func (s *matchStore) ListRules(_ context.Context) ([]model.ProjectableRule, error) {
	panic("not used")
}

func (s *matchStore) SetRulePaused(_ context.Context, _ int64, _ bool, _ *time.Time) error {
	panic("not used")
}

func (s *matchStore) GetExceptions(_ context.Context, _ int64) ([]model.OccurrenceException, error) {
	panic("not used")
}

func (s *matchStore) SaveExceptionOverride(_ context.Context, _ *model.OccurrenceException) error {
	panic("not used")
}

func (s *matchStore) DeleteException(_ context.Context, _ int64, _ time.Time) error {
	panic("not used")
}

func (s *matchStore) Migrate(_ context.Context) error { return nil }

func (s *matchStore) Close() error { return nil }

func setupManager(t *testing.T) (*Manager, *matchStore) {
	t.Helper()
	store := newMatchStore()
	clock := service.FixedClock{Time: date(2026, time.April, 1)}
	return NewManager(store, clock, DefaultMinConfidence), store
}

func candidateSetFor(txnID string, ruleID int64, scheduled time.Time, score float64) CandidateSet {
	return CandidateSet{
		txnID: {{
			Occurrence: occurrence(ruleID, scheduled, decimal.NewFromInt(-100)),
			Score:      score,
		}},
	}
}

func TestCreateSuggested(t *testing.T) {
	ctx := context.Background()
	manager, store := setupManager(t)

	created, err := manager.CreateSuggested(ctx, candidateSetFor("t1", 1, date(2026, time.March, 15), 0.9))
	require.NoError(t, err)
	require.Len(t, created, 1)

	match := created[0]
	assert.Equal(t, model.MatchKindSuggested, match.Kind)
	assert.Equal(t, model.MatchStatusPending, match.Status)
	assert.InDelta(t, 0.9, match.ConfidenceScore, 1e-9)
	assert.NotEmpty(t, match.ID)

	pending, err := store.ListPendingMatches(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestCreateSuggestedBelowConfidenceFloor(t *testing.T) {
	ctx := context.Background()
	manager, _ := setupManager(t)

	created, err := manager.CreateSuggested(ctx, candidateSetFor("t1", 1, date(2026, time.March, 15), 0.3))
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestCreateSuggestedSkipsExistingOpenPair(t *testing.T) {
	ctx := context.Background()
	manager, _ := setupManager(t)
	set := candidateSetFor("t1", 1, date(2026, time.March, 15), 0.9)

	first, err := manager.CreateSuggested(ctx, set)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Re-running suggestion does not duplicate the open pair.
	second, err := manager.CreateSuggested(ctx, set)
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestAcceptLifecycle(t *testing.T) {
	ctx := context.Background()
	manager, store := setupManager(t)

	created, err := manager.CreateSuggested(ctx, candidateSetFor("t1", 1, date(2026, time.March, 15), 0.9))
	require.NoError(t, err)
	matchID := created[0].ID

	require.NoError(t, manager.Accept(ctx, matchID))

	match, err := store.GetMatch(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, model.MatchStatusAccepted, match.Status)
	require.NotNil(t, match.ResolvedAt)

	// Accepting twice fails: the match is no longer pending.
	assert.ErrorIs(t, manager.Accept(ctx, matchID), common.ErrInvalidState)
}

func TestAcceptConflictOnSettledSide(t *testing.T) {
	ctx := context.Background()
	manager, _ := setupManager(t)
	ref := date(2026, time.March, 15)

	// Two pending suggestions that share the occurrence.
	first, err := manager.CreateSuggested(ctx, candidateSetFor("t1", 1, ref, 0.9))
	require.NoError(t, err)
	second, err := manager.CreateSuggested(ctx, candidateSetFor("t2", 1, ref, 0.8))
	require.NoError(t, err)

	require.NoError(t, manager.Accept(ctx, first[0].ID))

	err = manager.Accept(ctx, second[0].ID)
	assert.ErrorIs(t, err, common.ErrConflict, "the occurrence side is already settled")
}

func TestRejectLifecycle(t *testing.T) {
	ctx := context.Background()
	manager, store := setupManager(t)

	created, err := manager.CreateSuggested(ctx, candidateSetFor("t1", 1, date(2026, time.March, 15), 0.9))
	require.NoError(t, err)
	matchID := created[0].ID

	require.NoError(t, manager.Reject(ctx, matchID))

	match, err := store.GetMatch(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, model.MatchStatusRejected, match.Status)

	assert.ErrorIs(t, manager.Accept(ctx, matchID), common.ErrInvalidState)
}

func TestAcceptMissingMatch(t *testing.T) {
	ctx := context.Background()
	manager, _ := setupManager(t)

	assert.ErrorIs(t, manager.Accept(ctx, "no-such-match"), common.ErrNotFound)
}

func TestCreateManual(t *testing.T) {
	ctx := context.Background()
	manager, _ := setupManager(t)
	ref := model.InstanceRef{RuleID: 1, ScheduledDate: date(2026, time.March, 15)}

	match, err := manager.CreateManual(ctx, "t1", ref)
	require.NoError(t, err)

	assert.Equal(t, model.MatchKindManual, match.Kind)
	assert.Equal(t, model.MatchStatusAccepted, match.Status, "manual links skip review")
	require.NotNil(t, match.ResolvedAt)

	// Either side being settled blocks another manual link.
	_, err = manager.CreateManual(ctx, "t1", model.InstanceRef{RuleID: 2, ScheduledDate: date(2026, time.March, 20)})
	assert.ErrorIs(t, err, common.ErrConflict)

	_, err = manager.CreateManual(ctx, "t2", ref)
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestBulkAcceptIndependentOutcomes(t *testing.T) {
	ctx := context.Background()
	manager, _ := setupManager(t)
	ref := date(2026, time.March, 15)

	first, err := manager.CreateSuggested(ctx, candidateSetFor("t1", 1, ref, 0.9))
	require.NoError(t, err)
	second, err := manager.CreateSuggested(ctx, candidateSetFor("t2", 1, ref, 0.8))
	require.NoError(t, err)
	third, err := manager.CreateSuggested(ctx, candidateSetFor("t3", 2, ref, 0.7))
	require.NoError(t, err)

	outcomes := manager.BulkAccept(ctx, []string{first[0].ID, second[0].ID, third[0].ID})

	require.Len(t, outcomes, 3)
	assert.NoError(t, outcomes[0].Err)
	assert.ErrorIs(t, outcomes[1].Err, common.ErrConflict, "shares the occurrence with the first")
	assert.NoError(t, outcomes[2].Err, "a conflicting sibling does not abort the batch")
}

func TestUnlink(t *testing.T) {
	ctx := context.Background()
	manager, store := setupManager(t)
	ref := model.InstanceRef{RuleID: 1, ScheduledDate: date(2026, time.March, 15)}

	match, err := manager.CreateManual(ctx, "t1", ref)
	require.NoError(t, err)

	require.NoError(t, manager.Unlink(ctx, match.ID))

	got, err := store.GetMatch(ctx, match.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MatchStatusUnlinked, got.Status)

	// Both sides are free again.
	relinked, err := manager.CreateManual(ctx, "t1", ref)
	require.NoError(t, err)
	assert.NotEqual(t, match.ID, relinked.ID, "re-linking creates a fresh record")
}

func TestUnlinkRequiresAccepted(t *testing.T) {
	ctx := context.Background()
	manager, _ := setupManager(t)

	created, err := manager.CreateSuggested(ctx, candidateSetFor("t1", 1, date(2026, time.March, 15), 0.9))
	require.NoError(t, err)

	err = manager.Unlink(ctx, created[0].ID)
	assert.ErrorIs(t, err, common.ErrInvalidState, "pending matches reject, they do not unlink")
}

func TestHistorySurvivesLifecycle(t *testing.T) {
	ctx := context.Background()
	manager, _ := setupManager(t)
	ref := date(2026, time.March, 15)

	created, err := manager.CreateSuggested(ctx, candidateSetFor("t1", 1, ref, 0.9))
	require.NoError(t, err)
	require.NoError(t, manager.Reject(ctx, created[0].ID))

	recreated, err := manager.CreateSuggested(ctx, candidateSetFor("t1", 1, ref, 0.9))
	require.NoError(t, err)
	require.Len(t, recreated, 1, "a rejected pair may be suggested again")

	history, err := manager.History(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, history, 2, "rejected records remain as history")
}
