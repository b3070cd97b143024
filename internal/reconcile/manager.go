package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/becauseimclever/budgetexperiment/internal/common"
	"github.com/becauseimclever/budgetexperiment/internal/model"
	"github.com/becauseimclever/budgetexperiment/internal/service"
)

// DefaultMinConfidence is the score floor below which the top candidate is
// not turned into a suggestion.
const DefaultMinConfidence = 0.5

// Manager owns the reconciliation match lifecycle. It is the only writer of
// match state; every mutation re-validates the at-most-one-accepted-per-side
// invariant through the store.
type Manager struct {
	storage       service.Storage
	clock         service.Clock
	minConfidence float64
}

// NewManager creates a match manager. A non-positive minConfidence falls
// back to DefaultMinConfidence.
func NewManager(storage service.Storage, clock service.Clock, minConfidence float64) *Manager {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	return &Manager{
		storage:       storage,
		clock:         clock,
		minConfidence: minConfidence,
	}
}

// CreateSuggested turns each transaction's top-scoring candidate into a
// pending match, skipping candidates below the confidence floor, sides that
// already carry an accepted match, and pairs that already have an open
// suggestion. Returns the matches created.
func (m *Manager) CreateSuggested(ctx context.Context, candidates CandidateSet) ([]model.ReconciliationMatch, error) {
	// Deterministic iteration so repeated runs suggest in the same order.
	txnIDs := make([]string, 0, len(candidates))
	for id := range candidates {
		txnIDs = append(txnIDs, id)
	}
	sort.Strings(txnIDs)

	var created []model.ReconciliationMatch
	for _, txnID := range txnIDs {
		ranked := candidates[txnID]
		if len(ranked) == 0 {
			continue
		}
		top := ranked[0]
		if top.Score < m.minConfidence {
			continue
		}

		ref := top.Occurrence.Ref()
		eligible, err := m.pairEligible(ctx, txnID, ref)
		if err != nil {
			return created, err
		}
		if !eligible {
			continue
		}

		match := model.ReconciliationMatch{
			ID:                  uuid.NewString(),
			ActualTransactionID: txnID,
			Instance:            ref,
			Kind:                model.MatchKindSuggested,
			Status:              model.MatchStatusPending,
			ConfidenceScore:     top.Score,
			CreatedAt:           m.clock.Now(),
		}
		if err := m.storage.CreateMatch(ctx, &match); err != nil {
			return created, fmt.Errorf("failed to create suggestion for transaction %s: %w", txnID, err)
		}
		created = append(created, match)
	}

	slog.Info("Created match suggestions", "count", len(created))
	return created, nil
}

// pairEligible reports whether a new match may be proposed for the pair:
// neither side settled, and no open suggestion for the same pair.
func (m *Manager) pairEligible(ctx context.Context, txnID string, ref model.InstanceRef) (bool, error) {
	if settled, err := m.storage.HasAcceptedForTransaction(ctx, txnID); err != nil {
		return false, fmt.Errorf("failed to check transaction %s: %w", txnID, err)
	} else if settled {
		return false, nil
	}
	if settled, err := m.storage.HasAcceptedForInstance(ctx, ref); err != nil {
		return false, fmt.Errorf("failed to check instance %d/%s: %w",
			ref.RuleID, ref.ScheduledDate.Format("2006-01-02"), err)
	} else if settled {
		return false, nil
	}
	if open, err := m.storage.HasOpenMatch(ctx, txnID, ref); err != nil {
		return false, fmt.Errorf("failed to check open matches: %w", err)
	} else if open {
		return false, nil
	}
	return true, nil
}

// CreateManual links a transaction to an occurrence directly, bypassing
// review: the match is created already accepted. Fails with
// common.ErrConflict when either side is already settled.
func (m *Manager) CreateManual(ctx context.Context, transactionID string, ref model.InstanceRef) (*model.ReconciliationMatch, error) {
	ref.ScheduledDate = model.DateOnly(ref.ScheduledDate)

	if settled, err := m.storage.HasAcceptedForTransaction(ctx, transactionID); err != nil {
		return nil, fmt.Errorf("failed to check transaction: %w", err)
	} else if settled {
		return nil, fmt.Errorf("%w: transaction %s already linked", common.ErrConflict, transactionID)
	}
	if settled, err := m.storage.HasAcceptedForInstance(ctx, ref); err != nil {
		return nil, fmt.Errorf("failed to check instance: %w", err)
	} else if settled {
		return nil, fmt.Errorf("%w: occurrence %d/%s already linked", common.ErrConflict,
			ref.RuleID, ref.ScheduledDate.Format("2006-01-02"))
	}

	now := m.clock.Now()
	match := model.ReconciliationMatch{
		ID:                  uuid.NewString(),
		ActualTransactionID: transactionID,
		Instance:            ref,
		Kind:                model.MatchKindManual,
		Status:              model.MatchStatusAccepted,
		CreatedAt:           now,
		ResolvedAt:          &now,
	}
	if err := m.storage.CreateMatch(ctx, &match); err != nil {
		return nil, fmt.Errorf("failed to create manual match: %w", err)
	}

	slog.Info("Created manual match",
		"match_id", match.ID,
		"transaction_id", transactionID,
		"rule_id", ref.RuleID)
	return &match, nil
}

// Accept flips a pending match to accepted. The counterpart sides are
// re-validated at accept time: a side that gained an accepted match since
// the suggestion yields common.ErrConflict, not success.
func (m *Manager) Accept(ctx context.Context, matchID string) error {
	match, err := m.getPending(ctx, matchID)
	if err != nil {
		return err
	}

	if settled, err := m.storage.HasAcceptedForTransaction(ctx, match.ActualTransactionID); err != nil {
		return fmt.Errorf("failed to re-validate transaction: %w", err)
	} else if settled {
		return fmt.Errorf("%w: transaction %s gained an accepted match", common.ErrConflict, match.ActualTransactionID)
	}
	if settled, err := m.storage.HasAcceptedForInstance(ctx, match.Instance); err != nil {
		return fmt.Errorf("failed to re-validate instance: %w", err)
	} else if settled {
		return fmt.Errorf("%w: occurrence %d/%s gained an accepted match", common.ErrConflict,
			match.Instance.RuleID, match.Instance.ScheduledDate.Format("2006-01-02"))
	}

	now := m.clock.Now()
	if err := m.storage.TransitionMatch(ctx, matchID, model.MatchStatusPending, model.MatchStatusAccepted, &now); err != nil {
		return err
	}

	slog.Info("Accepted match", "match_id", matchID)
	return nil
}

// Reject flips a pending match to rejected. The record remains as history.
func (m *Manager) Reject(ctx context.Context, matchID string) error {
	if _, err := m.getPending(ctx, matchID); err != nil {
		return err
	}

	now := m.clock.Now()
	if err := m.storage.TransitionMatch(ctx, matchID, model.MatchStatusPending, model.MatchStatusRejected, &now); err != nil {
		return err
	}

	slog.Info("Rejected match", "match_id", matchID)
	return nil
}

// getPending loads a match and verifies it is still pending.
func (m *Manager) getPending(ctx context.Context, matchID string) (*model.ReconciliationMatch, error) {
	match, err := m.storage.GetMatch(ctx, matchID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("%w: match %s", common.ErrNotFound, matchID)
		}
		return nil, fmt.Errorf("failed to load match %s: %w", matchID, err)
	}
	if match.Status != model.MatchStatusPending {
		return nil, fmt.Errorf("%w: match %s is %s, not pending", common.ErrInvalidState, matchID, match.Status)
	}
	return match, nil
}

// AcceptOutcome is the per-id result of a bulk accept.
type AcceptOutcome struct {
	Err     error
	MatchID string
}

// BulkAccept accepts each match independently, item by item, never holding
// one lock across the whole batch. One conflict does not block the others,
// and partial failure is final.
func (m *Manager) BulkAccept(ctx context.Context, matchIDs []string) []AcceptOutcome {
	outcomes := make([]AcceptOutcome, len(matchIDs))
	for i, id := range matchIDs {
		err := m.Accept(ctx, id)
		outcomes[i] = AcceptOutcome{MatchID: id, Err: err}
		if err != nil {
			slog.Warn("Bulk accept item failed", "match_id", id, "error", err)
		}
	}
	return outcomes
}

// Unlink detaches an accepted match: both sides return to unmatched and the
// pair becomes eligible for re-suggestion. Unlinked is terminal for this
// record; a fresh match may be created later for the same pair.
func (m *Manager) Unlink(ctx context.Context, matchID string) error {
	match, err := m.storage.GetMatch(ctx, matchID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return fmt.Errorf("%w: match %s", common.ErrNotFound, matchID)
		}
		return fmt.Errorf("failed to load match %s: %w", matchID, err)
	}
	if match.Status != model.MatchStatusAccepted {
		return fmt.Errorf("%w: match %s is not currently linked (status %s)",
			common.ErrInvalidState, matchID, match.Status)
	}

	now := m.clock.Now()
	if err := m.storage.TransitionMatch(ctx, matchID, model.MatchStatusAccepted, model.MatchStatusUnlinked, &now); err != nil {
		return err
	}

	slog.Info("Unlinked match", "match_id", matchID)
	return nil
}

// PendingSuggestions lists all pending matches, for review surfaces.
func (m *Manager) PendingSuggestions(ctx context.Context) ([]model.ReconciliationMatch, error) {
	matches, err := m.storage.ListPendingMatches(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending matches: %w", err)
	}
	return matches, nil
}

// History lists every match record ever created for a transaction, resolved
// or not.
func (m *Manager) History(ctx context.Context, transactionID string) ([]model.ReconciliationMatch, error) {
	matches, err := m.storage.ListMatchesForTransaction(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches for transaction %s: %w", transactionID, err)
	}
	return matches, nil
}
