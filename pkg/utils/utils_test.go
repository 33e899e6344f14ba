package utils

import (
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Duration
		expected string
	}{
		{"zero", 0, "0ms"},
		{"negative clamps", -time.Second, "0ms"},
		{"milliseconds", 250 * time.Millisecond, "250ms"},
		{"seconds", 1500 * time.Millisecond, "1.50s"},
		{"minutes", 2*time.Minute + 5*time.Second, "2m5s"},
		{"hours", 3*time.Hour + 20*time.Minute, "3h20m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FormatDuration(tt.input)
			if result != tt.expected {
				t.Errorf("FormatDuration(%v) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
