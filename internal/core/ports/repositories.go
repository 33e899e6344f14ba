package ports

import (
	"context"
	"time"

	"qosmon/internal/core/domain"
)

// HistoryRepository is the bounded per-session snapshot buffer. Reads return
// copies so callers can iterate while ticks keep recording.
type HistoryRepository interface {
	Record(sessionID domain.SessionID, snapshot *domain.MetricsSnapshot)
	GetHistory(sessionID domain.SessionID) []*domain.MetricsSnapshot
	GetPrevious(sessionID domain.SessionID) (*domain.MetricsSnapshot, bool)
	Clear(sessionID domain.SessionID)
	ClearAll()
	Capacity() int
}

// RealtimeRepository keeps the latest snapshot per session for a limited time.
type RealtimeRepository interface {
	StoreLatest(ctx context.Context, snapshot *domain.MetricsSnapshot, ttl time.Duration) error
	GetLatest(ctx context.Context, sessionID domain.SessionID) (*domain.MetricsSnapshot, error)
	Delete(ctx context.Context, sessionID domain.SessionID) error
}
