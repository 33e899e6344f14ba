package domain

import "errors"

var (
	ErrSessionIDRequired   = errors.New("session id is required")
	ErrStatsSourceRequired = errors.New("stats source is required")
	ErrControllerDestroyed = errors.New("monitoring controller destroyed")
	ErrNoMetrics           = errors.New("no metrics recorded for session")
	ErrStatsUnavailable    = errors.New("connection statistics unavailable")
	ErrInvalidThresholds   = errors.New("invalid quality thresholds")
)
