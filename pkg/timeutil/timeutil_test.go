package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatRelative(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Time{}, "never"},
		{now, "just now"},
		{now.Add(-45 * time.Second), "45s ago"},
		{now.Add(-3 * time.Minute), "3m ago"},
		{now.Add(-5 * time.Hour), "5h ago"},
		{now.Add(-50 * time.Hour), "2d ago"},
		{now.Add(90 * time.Second), "in 1m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatRelative(tt.at, now))
	}
}

func TestClocks(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	fixed := Fixed(base)
	assert.Equal(t, base, fixed())
	assert.Equal(t, base, fixed())

	step := Stepper(base, time.Second)
	assert.Equal(t, base, step())
	assert.Equal(t, base.Add(time.Second), step())

	assert.Equal(t, time.UTC, UTC().Location())
	assert.Equal(t, "2024-06-01T00:00:00Z", FormatRFC3339(base))
	assert.Empty(t, FormatRFC3339(time.Time{}))
}
