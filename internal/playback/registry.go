package playback

import "sync"

// Registry maps guild ids to their [Session] and stream ids back to guild
// ids. It is constructed once and handed to the [Orchestrator].
//
// Registry is safe for concurrent use. Its lock is never held while a
// session's lock is taken.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	streams  map[string]string // stream id -> guild id
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		streams:  make(map[string]string),
	}
}

// GetOrCreate returns the guild's session, creating a disconnected one if
// absent. Concurrent calls for the same guild return the same instance.
func (r *Registry) GetOrCreate(guildID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[guildID]
	if !ok {
		s = newSession(guildID)
		r.sessions[guildID] = s
	}
	return s
}

// Get returns the guild's session, if any.
func (r *Registry) Get(guildID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[guildID]
	return s, ok
}

// Remove deletes the guild's session unconditionally.
func (r *Registry) Remove(guildID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, guildID)
}

// RemoveIf deletes the guild's session only if it is still s. It reports
// whether s was removed. A newer session for the same guild is left alone.
func (r *Registry) RemoveIf(guildID string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[guildID] != s {
		return false
	}
	delete(r.sessions, guildID)
	return true
}

// IndexStream records that streamID belongs to guildID.
func (r *Registry) IndexStream(streamID, guildID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[streamID] = guildID
}

// ResolveStream maps a stream id back to its guild.
func (r *Registry) ResolveStream(streamID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.streams[streamID]
	return g, ok
}

// UnindexStream forgets streamID.
func (r *Registry) UnindexStream(streamID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.streams, streamID)
}

// Sessions returns a snapshot of all registered sessions.
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
