package main

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceHistory/internal/config"
	"PriceHistory/internal/model"
)

func parseUpdateFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "update"}
	addUpdateFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestResolveUpdateSettings(t *testing.T) {
	today := time.Date(2024, 3, 20, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		args         []string
		retries      int
		roundDelay   time.Duration
		attemptDelay time.Duration
		periods      []model.Granularity
		asOf         time.Time
	}{
		{
			name:         "config values",
			retries:      6,
			roundDelay:   2 * time.Minute,
			attemptDelay: 3 * time.Second,
			periods:      []model.Granularity{model.Month, model.Week, model.Day},
			asOf:         time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC),
		},
		{
			name:         "explicit zero flags",
			args:         []string{"--retry", "0", "--round-delay", "0", "--attempt-delay", "0s"},
			retries:      0,
			roundDelay:   0,
			attemptDelay: 0,
			periods:      []model.Granularity{model.Month, model.Week, model.Day},
			asOf:         time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC),
		},
		{
			name:         "overrides",
			args:         []string{"-p", "d", "--retry", "2", "-d", "2024-01-05", "--round-delay", "30s"},
			retries:      2,
			roundDelay:   30 * time.Second,
			attemptDelay: 3 * time.Second,
			periods:      []model.Granularity{model.Day},
			asOf:         time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := resolveUpdateSettings(parseUpdateFlags(t, tt.args...), config.Default(), today)
			require.NoError(t, err)
			assert.Equal(t, tt.retries, st.Retries)
			assert.Equal(t, tt.roundDelay, st.RoundDelay)
			assert.Equal(t, tt.attemptDelay, st.AttemptDelay)
			assert.Equal(t, tt.periods, st.Granularities)
			assert.Equal(t, tt.asOf, st.AsOf)
		})
	}
}

func TestResolveUpdateSettings_ConfigZeroKept(t *testing.T) {
	c := config.Default()
	c.Update.Retry = 0
	c.Update.RoundDelay = 0
	st, err := resolveUpdateSettings(parseUpdateFlags(t), c, time.Now())
	require.NoError(t, err)
	assert.Zero(t, st.Retries)
	assert.Zero(t, st.RoundDelay)
}

func TestResolveUpdateSettings_Invalid(t *testing.T) {
	_, err := resolveUpdateSettings(parseUpdateFlags(t, "--retry", "-1"), config.Default(), time.Now())
	assert.ErrorContains(t, err, "retry")

	_, err = resolveUpdateSettings(parseUpdateFlags(t, "-p", "x"), config.Default(), time.Now())
	assert.ErrorContains(t, err, "period value error")

	_, err = resolveUpdateSettings(parseUpdateFlags(t, "-d", "yesterday"), config.Default(), time.Now())
	assert.Error(t, err)
}
