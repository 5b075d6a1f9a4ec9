package history

import (
	"context"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// defaultMemoryCapacity is the per-guild entry limit of a [MemoryStore].
const defaultMemoryCapacity = 100

// MemoryStore keeps the latest entries of each guild in memory. Older
// entries are dropped once a guild exceeds the capacity.
type MemoryStore struct {
	mu       sync.Mutex
	capacity int
	guilds   map[string][]Entry // oldest first
}

// NewMemoryStore creates a MemoryStore holding up to capacity entries per
// guild. A non-positive capacity selects the default of 100.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemoryStore{capacity: capacity, guilds: make(map[string][]Entry)}
}

// Record implements [Store].
func (s *MemoryStore) Record(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := append(s.guilds[e.GuildID], e)
	if over := len(entries) - s.capacity; over > 0 {
		entries = append(entries[:0:0], entries[over:]...)
	}
	s.guilds[e.GuildID] = entries
	return nil
}

// Recent implements [Store].
func (s *MemoryStore) Recent(_ context.Context, guildID string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.guilds[guildID]
	n := len(entries)
	if limit > 0 {
		n = min(n, limit)
	}
	out := make([]Entry, 0, n)
	for i := len(entries) - 1; i >= len(entries)-n; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

// Close implements [Store].
func (s *MemoryStore) Close() {}
