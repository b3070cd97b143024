package config

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/becauseimclever/budgetexperiment/internal/reconcile"
)

// DatabasePath returns the configured SQLite database path, with ~ and
// environment variables expanded.
func DatabasePath() string {
	path := viper.GetString("database.path")
	if path == "" {
		path = "~/.local/share/budget/budget.db"
	}
	return ExpandPath(path)
}

// Tolerances returns the configured matching tolerances, falling back to the
// defaults for any unset key.
func Tolerances() (reconcile.MatchingTolerances, error) {
	tolerances := reconcile.DefaultTolerances()

	if viper.IsSet("matching.amount_tolerance_percent") {
		pct, err := decimal.NewFromString(viper.GetString("matching.amount_tolerance_percent"))
		if err != nil {
			return tolerances, fmt.Errorf("invalid matching.amount_tolerance_percent: %w", err)
		}
		tolerances.AmountTolerancePercent = pct
	}
	if viper.IsSet("matching.amount_tolerance_absolute") {
		abs, err := decimal.NewFromString(viper.GetString("matching.amount_tolerance_absolute"))
		if err != nil {
			return tolerances, fmt.Errorf("invalid matching.amount_tolerance_absolute: %w", err)
		}
		tolerances.AmountToleranceAbsolute = abs
	}
	if viper.IsSet("matching.date_tolerance_days") {
		tolerances.DateToleranceDays = viper.GetInt("matching.date_tolerance_days")
	}

	if err := tolerances.Validate(); err != nil {
		return tolerances, fmt.Errorf("invalid matching tolerances: %w", err)
	}
	return tolerances, nil
}

// MinConfidence returns the configured suggestion confidence floor.
func MinConfidence() float64 {
	if viper.IsSet("matching.min_confidence") {
		return viper.GetFloat64("matching.min_confidence")
	}
	return reconcile.DefaultMinConfidence
}
