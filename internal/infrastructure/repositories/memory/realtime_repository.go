package memory

import (
	"context"
	"sync"
	"time"

	"qosmon/internal/core/domain"
	"qosmon/internal/core/ports"
)

type realtimeEntry struct {
	snapshot  *domain.MetricsSnapshot
	expiresAt time.Time
}

// sweepInterval spaces out the expiry scans done on writes.
const sweepInterval = 10 * time.Second

// MemoryRealtimeRepository is the in-process fallback for the Redis latest
// snapshot cache. Expired entries are dropped on read and by a periodic sweep
// on write, so sessions nobody queries do not accumulate.
type MemoryRealtimeRepository struct {
	entries   map[domain.SessionID]realtimeEntry
	mu        sync.RWMutex
	now       func() time.Time
	lastSweep time.Time
}

func NewMemoryRealtimeRepository() ports.RealtimeRepository {
	return &MemoryRealtimeRepository{
		entries: make(map[domain.SessionID]realtimeEntry),
		now:     time.Now,
	}
}

func (r *MemoryRealtimeRepository) StoreLatest(ctx context.Context, snapshot *domain.MetricsSnapshot, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.lastSweep) >= sweepInterval {
		r.sweepLocked(now)
		r.lastSweep = now
	}

	entry := realtimeEntry{snapshot: snapshot}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	r.entries[snapshot.SessionID] = entry
	return nil
}

func (r *MemoryRealtimeRepository) sweepLocked(now time.Time) {
	for id, entry := range r.entries {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			delete(r.entries, id)
		}
	}
}

func (r *MemoryRealtimeRepository) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *MemoryRealtimeRepository) GetLatest(ctx context.Context, sessionID domain.SessionID) (*domain.MetricsSnapshot, error) {
	r.mu.RLock()
	entry, exists := r.entries[sessionID]
	r.mu.RUnlock()

	if !exists {
		return nil, domain.ErrNoMetrics
	}
	if !entry.expiresAt.IsZero() && r.now().After(entry.expiresAt) {
		r.mu.Lock()
		delete(r.entries, sessionID)
		r.mu.Unlock()
		return nil, domain.ErrNoMetrics
	}
	return entry.snapshot, nil
}

func (r *MemoryRealtimeRepository) Delete(ctx context.Context, sessionID domain.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, sessionID)
	return nil
}
