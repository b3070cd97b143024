package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTransactionGenerateHash(t *testing.T) {
	txn := Transaction{
		Date:        date(2026, time.March, 14),
		AccountID:   "checking",
		Description: "Electric bill",
		Amount:      decimal.NewFromFloat(-84.20),
	}

	first := txn.GenerateHash()
	assert.Equal(t, first, txn.GenerateHash(), "hash must be stable")

	other := txn
	other.Amount = decimal.NewFromFloat(-84.21)
	assert.NotEqual(t, first, other.GenerateHash(), "amount changes the hash")

	other = txn
	other.AccountID = "savings"
	assert.NotEqual(t, first, other.GenerateHash(), "account changes the hash")
}
