package memory

import (
	"sync"

	"qosmon/internal/core/domain"
	"qosmon/internal/core/ports"
)

const DefaultHistoryCapacity = 100

// MemoryHistoryRepository keeps the most recent snapshots of each session in
// insertion order and evicts the oldest once capacity is exceeded.
type MemoryHistoryRepository struct {
	capacity int
	sessions map[domain.SessionID][]*domain.MetricsSnapshot
	mu       sync.RWMutex
}

func NewMemoryHistoryRepository(capacity int) ports.HistoryRepository {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &MemoryHistoryRepository{
		capacity: capacity,
		sessions: make(map[domain.SessionID][]*domain.MetricsSnapshot),
	}
}

func (r *MemoryHistoryRepository) Capacity() int {
	return r.capacity
}

func (r *MemoryHistoryRepository) Record(sessionID domain.SessionID, snapshot *domain.MetricsSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	history := append(r.sessions[sessionID], snapshot)
	if over := len(history) - r.capacity; over > 0 {
		// Copy into a fresh slice so the evicted prefix can be collected.
		trimmed := make([]*domain.MetricsSnapshot, r.capacity, r.capacity+1)
		copy(trimmed, history[over:])
		history = trimmed
	}
	r.sessions[sessionID] = history
}

func (r *MemoryHistoryRepository) GetHistory(sessionID domain.SessionID) []*domain.MetricsSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.sessions[sessionID]
	out := make([]*domain.MetricsSnapshot, len(history))
	copy(out, history)
	return out
}

func (r *MemoryHistoryRepository) GetPrevious(sessionID domain.SessionID) (*domain.MetricsSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.sessions[sessionID]
	if len(history) == 0 {
		return nil, false
	}
	return history[len(history)-1], true
}

func (r *MemoryHistoryRepository) Clear(sessionID domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

func (r *MemoryHistoryRepository) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = make(map[domain.SessionID][]*domain.MetricsSnapshot)
}
