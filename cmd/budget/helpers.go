package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/becauseimclever/budgetexperiment/internal/common"
	"github.com/becauseimclever/budgetexperiment/internal/config"
	"github.com/becauseimclever/budgetexperiment/internal/model"
	"github.com/becauseimclever/budgetexperiment/internal/service"
	"github.com/becauseimclever/budgetexperiment/internal/storage"
)

const dateLayout = "2006-01-02"

// initStorage opens the configured database and brings the schema current.
// Migration retries briefly: another process may hold the write lock.
func initStorage(ctx context.Context) (service.Storage, error) {
	dbPath := config.DatabasePath()

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}
	common.LogDebug("opened database", common.Fields{"path": dbPath})

	err = common.WithRetry(ctx, func() error {
		return store.Migrate(ctx)
	}, service.RetryOptions{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// parseDate parses a YYYY-MM-DD argument into a calendar date.
func parseDate(arg string) (time.Time, error) {
	t, err := time.Parse(dateLayout, arg)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", arg, err)
	}
	return model.DateOnly(t), nil
}

// parseRuleID parses a numeric rule identifier argument.
func parseRuleID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid rule id %q: %w", arg, err)
	}
	return id, nil
}

// parseAmount parses a decimal amount argument.
func parseAmount(arg string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(arg)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q: %w", arg, err)
	}
	return amount, nil
}
