package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		d, err := parseDate("2026-01-31")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC), d)
	})

	t.Run("rejects other layouts", func(t *testing.T) {
		for _, arg := range []string{"01/31/2026", "2026-1-31", "tomorrow", ""} {
			_, err := parseDate(arg)
			assert.Error(t, err, "arg %q", arg)
		}
	})
}

func TestParseRuleID(t *testing.T) {
	id, err := parseRuleID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = parseRuleID("rent")
	assert.Error(t, err)
}

func TestParseAmount(t *testing.T) {
	amount, err := parseAmount("-1200.50")
	require.NoError(t, err)
	assert.Equal(t, "-1200.5", amount.String())

	_, err = parseAmount("$12")
	assert.Error(t, err)
}
