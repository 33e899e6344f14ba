package validation

import (
	"strings"
	"testing"
)

func TestValidateSessionID(t *testing.T) {
	tests := []struct {
		name      string
		sessionID string
		wantErr   bool
	}{
		{"valid id", "session-123", false},
		{"valid uuid", "0b7f4d36-5c1e-4f7a-9f0e-3d2c1b0a9e8d", false},
		{"valid with dots and colons", "room.42:alice", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", MaxSessionIDLength+1), true},
		{"max length", strings.Repeat("a", MaxSessionIDLength), false},
		{"space", "session 1", true},
		{"slash", "a/b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSessionID(tt.sessionID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSessionID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateIntervalMs(t *testing.T) {
	tests := []struct {
		name     string
		interval int
		wantErr  bool
	}{
		{"default", 0, false},
		{"one second", 1000, false},
		{"minimum", MinIntervalMs, false},
		{"too short", 50, true},
		{"negative", -1, true},
		{"too long", MaxIntervalMs + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIntervalMs(tt.interval)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIntervalMs() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid http", "http://localhost:14268/api/traces", false},
		{"valid https", "https://jaeger.example.com/api/traces", false},
		{"empty", "", true},
		{"no scheme", "localhost:14268", true},
		{"bad scheme", "ftp://example.com", true},
		{"no host", "http://", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateStringLength(t *testing.T) {
	if err := ValidateStringLength("héllo", 1, 5, "name"); err != nil {
		t.Errorf("expected rune count to be used, got %v", err)
	}
	if err := ValidateStringLength("", 1, 5, "name"); err == nil {
		t.Error("expected error for empty string")
	}
	if err := ValidateStringLength("toolong", 1, 5, "name"); err == nil {
		t.Error("expected error for long string")
	}
}
