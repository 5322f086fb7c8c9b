package main

import (
	"testing"

	"github.com/Criptoruim/jackalmultibuy/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildConfiguration(t *testing.T) {
	pc, err := buildConfiguration("2TB", "1 year", " jkl1a, ,jkl1b ", "friend")
	require.NoError(t, err)

	assert.Equal(t, 2048, pc.Capacity.GB())
	assert.Equal(t, 12, pc.Duration.Months())
	assert.Equal(t, []string{"jkl1a", "jkl1b"}, pc.TargetAddresses)
	assert.Equal(t, "friend", pc.ReferralCode)
	assert.NoError(t, pc.Validate("jkl1"))
}

func TestBuildConfigurationErrors(t *testing.T) {
	tests := []struct {
		name     string
		capacity string
		duration string
	}{
		{"no number", "TB", "1month"},
		{"no unit", "2", "1month"},
		{"bad capacity unit", "2PB", "1month"},
		{"bad duration unit", "2TB", "3weeks"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildConfiguration(tt.capacity, tt.duration, "jkl1a", "")
			assert.Error(t, err)
		})
	}
}

func TestSplitQuantity(t *testing.T) {
	n, unit, err := splitQuantity(" 500GB ")
	require.NoError(t, err)
	assert.Equal(t, 500, n)
	assert.Equal(t, "GB", unit)

	n, unit, err = splitQuantity("6 months")
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, models.DurationMonth, mustDuration(t, unit))
}

func mustDuration(t *testing.T, unit string) models.DurationUnit {
	t.Helper()
	u, err := models.ParseDurationUnit(unit)
	require.NoError(t, err)
	return u
}
