package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becauseimclever/budgetexperiment/internal/reconcile"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestDatabasePathDefault(t *testing.T) {
	resetViper(t)

	path := DatabasePath()

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".local", "share", "budget", "budget.db"), path)
}

func TestDatabasePathConfigured(t *testing.T) {
	resetViper(t)
	viper.Set("database.path", "/tmp/custom/budget.db")

	assert.Equal(t, "/tmp/custom/budget.db", DatabasePath())
}

func TestTolerancesDefaults(t *testing.T) {
	resetViper(t)

	tolerances, err := Tolerances()
	require.NoError(t, err)

	assert.Equal(t, reconcile.DefaultTolerances(), tolerances)
}

func TestTolerancesConfigured(t *testing.T) {
	resetViper(t)
	viper.Set("matching.amount_tolerance_percent", "0.05")
	viper.Set("matching.amount_tolerance_absolute", "1.00")
	viper.Set("matching.date_tolerance_days", 5)

	tolerances, err := Tolerances()
	require.NoError(t, err)

	assert.True(t, tolerances.AmountTolerancePercent.Equal(decimal.NewFromFloat(0.05)))
	assert.True(t, tolerances.AmountToleranceAbsolute.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 5, tolerances.DateToleranceDays)
}

func TestTolerancesInvalid(t *testing.T) {
	resetViper(t)
	viper.Set("matching.amount_tolerance_percent", "not-a-number")

	_, err := Tolerances()
	assert.Error(t, err)

	resetViper(t)
	viper.Set("matching.date_tolerance_days", -1)

	_, err = Tolerances()
	assert.Error(t, err)
}

func TestMinConfidence(t *testing.T) {
	resetViper(t)
	assert.InDelta(t, reconcile.DefaultMinConfidence, MinConfidence(), 1e-9)

	viper.Set("matching.min_confidence", 0.75)
	assert.InDelta(t, 0.75, MinConfidence(), 1e-9)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "bare tilde", in: "~", want: home},
		{name: "tilde prefix", in: "~/data/budget.db", want: filepath.Join(home, "data", "budget.db")},
		{name: "absolute untouched", in: "/var/lib/budget.db", want: "/var/lib/budget.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}

	t.Run("environment variables", func(t *testing.T) {
		t.Setenv("BUDGET_TEST_DIR", "/srv/budget")
		got := ExpandPath("$BUDGET_TEST_DIR/budget.db")
		assert.True(t, strings.HasPrefix(got, "/srv/budget"))
	})
}
