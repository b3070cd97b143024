package reconcile

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/becauseimclever/budgetexperiment/internal/model"
)

// Candidate is one scored pairing of a projected occurrence against an
// actual transaction.
type Candidate struct {
	Occurrence model.ProjectedOccurrence
	// AmountDelta is the absolute amount deviation.
	AmountDelta decimal.Decimal
	// Score is 0-1; equal weight on date and amount proximity with linear
	// falloff to zero at the tolerance boundary.
	Score float64
	// DateDeltaDays is the absolute day deviation between the
	// transaction date and the occurrence's effective date.
	DateDeltaDays int
}

// CandidateSet maps each unmatched transaction id to its ranked candidates.
// A transaction with zero surviving candidates maps to an empty list.
type CandidateSet map[string][]Candidate

// Finder computes scored candidate pairings under configured tolerances.
// It is a pure computation over input snapshots and holds no mutable state.
type Finder struct {
	tolerances MatchingTolerances
}

// NewFinder creates a finder with the given tolerances.
func NewFinder(tolerances MatchingTolerances) *Finder {
	return &Finder{tolerances: tolerances}
}

// FindCandidates scores every projected occurrence against every unmatched
// transaction. Sides that already carry an accepted match are excluded: a
// settled transaction gets no candidates, and a settled occurrence is never
// proposed for a different transaction.
func (f *Finder) FindCandidates(
	transactions []model.Transaction,
	occurrences []model.ProjectedOccurrence,
	accepted []model.ReconciliationMatch,
) CandidateSet {
	settledTxns := make(map[string]bool, len(accepted))
	settledInstances := make(map[model.InstanceRef]bool, len(accepted))
	for _, m := range accepted {
		if m.Status != model.MatchStatusAccepted {
			continue
		}
		settledTxns[m.ActualTransactionID] = true
		settledInstances[m.Instance] = true
	}

	result := make(CandidateSet, len(transactions))

	for _, txn := range transactions {
		if settledTxns[txn.ID] {
			continue
		}

		candidates := []Candidate{}
		for _, occ := range occurrences {
			if settledInstances[occ.Ref()] {
				continue
			}
			if cand, ok := f.score(txn, occ); ok {
				candidates = append(candidates, cand)
			}
		}

		rankCandidates(candidates)
		result[txn.ID] = candidates
	}

	return result
}

// score evaluates one pairing against the tolerances. The boundary is
// inclusive: a delta exactly at the tolerance survives with score zero on
// that axis.
func (f *Finder) score(txn model.Transaction, occ model.ProjectedOccurrence) (Candidate, bool) {
	amountDelta := txn.Amount.Sub(occ.Amount).Abs()
	threshold := f.tolerances.AmountThreshold(occ.Amount)
	if amountDelta.GreaterThan(threshold) {
		return Candidate{}, false
	}

	dateDelta := absDayDelta(txn.Date, occ.EffectiveDate)
	if dateDelta > f.tolerances.DateToleranceDays {
		return Candidate{}, false
	}

	dateScore := 1.0
	if f.tolerances.DateToleranceDays > 0 {
		dateScore = 1.0 - float64(dateDelta)/float64(f.tolerances.DateToleranceDays)
	}

	amountScore := 1.0
	if threshold.IsPositive() {
		ratio, _ := amountDelta.Div(threshold).Float64()
		amountScore = 1.0 - ratio
	}

	return Candidate{
		Occurrence:    occ,
		Score:         0.5*dateScore + 0.5*amountScore,
		DateDeltaDays: dateDelta,
		AmountDelta:   amountDelta,
	}, true
}

// rankCandidates orders candidates best-first: descending score, then
// smaller date delta, smaller amount delta, earlier scheduled date.
func rankCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.DateDeltaDays != b.DateDeltaDays {
			return a.DateDeltaDays < b.DateDeltaDays
		}
		if cmp := a.AmountDelta.Cmp(b.AmountDelta); cmp != 0 {
			return cmp < 0
		}
		return a.Occurrence.ScheduledDate.Before(b.Occurrence.ScheduledDate)
	})
}

// absDayDelta returns the whole-day distance between two calendar dates.
func absDayDelta(a, b time.Time) int {
	delta := int(model.DateOnly(a).Sub(model.DateOnly(b)).Hours() / 24)
	if delta < 0 {
		return -delta
	}
	return delta
}
