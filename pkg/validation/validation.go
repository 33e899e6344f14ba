package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"unicode/utf8"
)

const (
	MaxSessionIDLength = 128

	// Monitoring interval bounds in milliseconds.
	MinIntervalMs = 100
	MaxIntervalMs = 60_000
)

var (
	// SessionIDRegex validates session ID format
	SessionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)
)

// ValidateSessionID validates session ID
func ValidateSessionID(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}
	if len(sessionID) > MaxSessionIDLength {
		return fmt.Errorf("session ID is too long (max %d characters)", MaxSessionIDLength)
	}
	if !SessionIDRegex.MatchString(sessionID) {
		return fmt.Errorf("invalid session ID format")
	}
	return nil
}

// ValidateIntervalMs validates a sampling interval. Zero selects the default.
func ValidateIntervalMs(intervalMs int) error {
	if intervalMs == 0 {
		return nil
	}
	if intervalMs < MinIntervalMs {
		return fmt.Errorf("interval must be at least %d ms", MinIntervalMs)
	}
	if intervalMs > MaxIntervalMs {
		return fmt.Errorf("interval is too long (max %d ms)", MaxIntervalMs)
	}
	return nil
}

// ValidateURL validates URL format
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid URL scheme (must be http, https, ws, or wss)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
