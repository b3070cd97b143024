package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/becauseimclever/budgetexperiment/internal/common"
	"github.com/becauseimclever/budgetexperiment/internal/model"
	"github.com/becauseimclever/budgetexperiment/internal/service"
)

// CreateTransaction inserts one concrete transaction and returns its id.
func (s *SQLiteStorage) CreateTransaction(ctx context.Context, accountID string, amount decimal.Decimal, date time.Time, description string) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}
	if err := validateString(accountID, "accountID"); err != nil {
		return "", err
	}
	if err := validateDate(date, "date"); err != nil {
		return "", err
	}

	txn := model.Transaction{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Date:        model.DateOnly(date),
		Amount:      amount,
		Description: description,
	}
	txn.Hash = txn.GenerateHash()

	if err := s.insertTransaction(ctx, s.db, &txn); err != nil {
		return "", err
	}

	slog.Info("Created transaction",
		"id", txn.ID,
		"account_id", accountID,
		"amount", amount.String(),
		"date", txn.Date.Format(dateLayout))
	return txn.ID, nil
}

// CreateTransferPair inserts the debit and credit legs of a transfer
// atomically and returns both ids.
func (s *SQLiteStorage) CreateTransferPair(ctx context.Context, sourceAccountID, destinationAccountID string, amount decimal.Decimal, date time.Time, description string) (string, string, error) {
	if err := validateContext(ctx); err != nil {
		return "", "", err
	}
	if err := validateString(sourceAccountID, "sourceAccountID"); err != nil {
		return "", "", err
	}
	if err := validateString(destinationAccountID, "destinationAccountID"); err != nil {
		return "", "", err
	}
	if err := validateDate(date, "date"); err != nil {
		return "", "", err
	}

	date = model.DateOnly(date)
	source := model.Transaction{
		ID:          uuid.NewString(),
		AccountID:   sourceAccountID,
		Date:        date,
		Amount:      amount.Neg(),
		Description: description,
	}
	source.Hash = source.GenerateHash()
	destination := model.Transaction{
		ID:          uuid.NewString(),
		AccountID:   destinationAccountID,
		Date:        date,
		Amount:      amount,
		Description: description,
	}
	destination.Hash = destination.GenerateHash()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.insertTransaction(ctx, tx, &source); err != nil {
		return "", "", err
	}
	if err := s.insertTransaction(ctx, tx, &destination); err != nil {
		return "", "", err
	}
	if err := tx.Commit(); err != nil {
		return "", "", fmt.Errorf("failed to commit transfer pair: %w", err)
	}

	slog.Info("Created transfer pair",
		"source_id", source.ID,
		"destination_id", destination.ID,
		"amount", amount.String())
	return source.ID, destination.ID, nil
}

// execer covers *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStorage) insertTransaction(ctx context.Context, db execer, txn *model.Transaction) error {
	query := `
		INSERT INTO transactions (id, hash, date, account_id, amount, description)
		VALUES (?, ?, ?, ?, ?, ?)`

	if _, err := db.ExecContext(ctx, query,
		txn.ID, txn.Hash, txn.Date.Format(dateLayout),
		txn.AccountID, txn.Amount.String(), txn.Description,
	); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: identical transaction already recorded", common.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
	}
	return nil
}

// GetTransactionByID loads one transaction.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	query := `
		SELECT id, hash, date, account_id, amount, description
		FROM transactions
		WHERE id = ?`

	var (
		txn       model.Transaction
		amountStr string
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&txn.ID, &txn.Hash, &txn.Date, &txn.AccountID, &amountStr, &txn.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction %s: %w", id, err)
	}

	txn.Date = model.DateOnly(txn.Date)
	txn.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amountStr, err)
	}
	return &txn, nil
}

// FindUnmatched returns transactions in the window that carry no accepted
// match, optionally filtered by account. These feed the candidate finder.
func (s *SQLiteStorage) FindUnmatched(ctx context.Context, window service.DateRange, accountID string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT t.id, t.hash, t.date, t.account_id, t.amount, t.description
		FROM transactions t
		WHERE t.date >= ? AND t.date <= ?
			AND NOT EXISTS (
				SELECT 1 FROM reconciliation_matches m
				WHERE m.transaction_id = t.id AND m.status = 'accepted'
			)`
	args := []any{
		model.DateOnly(window.Start).Format(dateLayout),
		model.DateOnly(window.End).Format(dateLayout),
	}
	if accountID != "" {
		query += ` AND t.account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY t.date, t.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query unmatched transactions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Error("failed to close rows", "error", closeErr)
		}
	}()

	var txns []model.Transaction
	for rows.Next() {
		var (
			txn       model.Transaction
			amountStr string
		)
		if err := rows.Scan(&txn.ID, &txn.Hash, &txn.Date, &txn.AccountID, &amountStr, &txn.Description); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txn.Date = model.DateOnly(txn.Date)
		txn.Amount, err = decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("invalid stored amount %q: %w", amountStr, err)
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txns, nil
}
