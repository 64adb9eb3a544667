package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "-", FormatTime(time.Time{}))

	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	// Rendered in local time, so only check the shape.
	assert.NotEmpty(t, FormatTime(ts))
	assert.NotEqual(t, "-", FormatTime(ts))
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{"seconds only", 42 * time.Second, "42s"},
		{"minutes and seconds", 5*time.Minute + 3*time.Second, "5m 3s"},
		{"hours", 2*time.Hour + 15*time.Minute, "2h 15m 0s"},
		{"days", 72*time.Hour + 30*time.Minute + 15*time.Second, "3d 0h 30m 15s"},
		{"zero", 0, "0s"},
		{"negative clamped", -10 * time.Second, "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatAge(tt.d))
		})
	}
}
