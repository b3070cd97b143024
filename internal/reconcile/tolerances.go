// Package reconcile pairs actual transactions with projected recurring
// occurrences and manages the lifecycle of the resulting matches.
package reconcile

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MatchingTolerances configures how far a candidate may deviate from a
// projected occurrence and still be considered. Applied uniformly; there is
// no per-rule override.
type MatchingTolerances struct {
	// AmountTolerancePercent is a fraction of the occurrence amount,
	// e.g. 0.02 for 2%.
	AmountTolerancePercent decimal.Decimal
	// AmountToleranceAbsolute is a currency floor so small amounts still
	// get a workable window.
	AmountToleranceAbsolute decimal.Decimal
	// DateToleranceDays is the allowed deviation in days on either side.
	DateToleranceDays int
}

// DefaultTolerances returns the stock tolerances: 2% with a $0.50 floor,
// three days either way.
func DefaultTolerances() MatchingTolerances {
	return MatchingTolerances{
		AmountTolerancePercent:  decimal.NewFromFloat(0.02),
		AmountToleranceAbsolute: decimal.NewFromFloat(0.50),
		DateToleranceDays:       3,
	}
}

// Validate checks that the tolerances are non-negative.
func (t MatchingTolerances) Validate() error {
	if t.AmountTolerancePercent.IsNegative() {
		return fmt.Errorf("amount tolerance percent must not be negative")
	}
	if t.AmountToleranceAbsolute.IsNegative() {
		return fmt.Errorf("amount tolerance absolute must not be negative")
	}
	if t.DateToleranceDays < 0 {
		return fmt.Errorf("date tolerance days must not be negative")
	}
	return nil
}

// AmountThreshold returns the allowed absolute amount deviation for an
// occurrence amount: the larger of the absolute floor and the percentage of
// the amount.
func (t MatchingTolerances) AmountThreshold(amount decimal.Decimal) decimal.Decimal {
	pct := amount.Abs().Mul(t.AmountTolerancePercent)
	if pct.GreaterThan(t.AmountToleranceAbsolute) {
		return pct
	}
	return t.AmountToleranceAbsolute
}
