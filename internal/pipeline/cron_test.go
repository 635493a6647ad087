package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextCronTime(t *testing.T) {
	base := time.Date(2024, 3, 10, 12, 7, 30, 0, time.UTC) // a Sunday

	tests := []struct {
		expr string
		want time.Time
	}{
		{"15 * * * *", time.Date(2024, 3, 10, 12, 15, 0, 0, time.UTC)},
		{"5 * * * *", time.Date(2024, 3, 10, 13, 5, 0, 0, time.UTC)},
		{"*/10 * * * *", time.Date(2024, 3, 10, 12, 10, 0, 0, time.UTC)},
		{"0 3 * * *", time.Date(2024, 3, 11, 3, 0, 0, 0, time.UTC)},
		{"0 0 1 * *", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"30 9 * * 1-5", time.Date(2024, 3, 11, 9, 30, 0, 0, time.UTC)},
		{"0,45 12 * * *", time.Date(2024, 3, 10, 12, 45, 0, 0, time.UTC)},
		{"* * * * *", time.Date(2024, 3, 10, 12, 8, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := nextCronTime(tt.expr, base)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextCronTimeIsStrictlyAfter(t *testing.T) {
	at := time.Date(2024, 3, 10, 12, 15, 0, 0, time.UTC)
	got, err := nextCronTime("15 * * * *", at)
	require.NoError(t, err)
	assert.Equal(t, at.Add(time.Hour), got)
}

func TestParseCronRejects(t *testing.T) {
	for _, expr := range []string{
		"",
		"* * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"* * * 13 *",
		"* * * * 7",
		"*/0 * * * *",
		"a * * * *",
		"5-1 * * * *",
	} {
		assert.Error(t, ParseCron(expr), expr)
	}
	assert.NoError(t, ParseCron("15 * * * *"))
}

func TestNextCronTimeImpossible(t *testing.T) {
	_, err := nextCronTime("0 0 31 2 *", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Error(t, err)
}
