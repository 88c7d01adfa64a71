package session

import (
	"log/slog"
	"sync"
	"time"
)

// Registry owns all live sessions. Every piece of per-session mutable state
// hangs off a *Session obtained here; there are no ambient session maps
// elsewhere in the process.
type Registry struct {
	mu         sync.RWMutex
	sampleRate int
	sessions   map[string]*Session
}

func NewRegistry(sampleRate int) *Registry {
	return &Registry{
		sampleRate: sampleRate,
		sessions:   make(map[string]*Session),
	}
}

// Start registers a session with an explicit language mode, replacing the
// mode of an existing entry.
func (r *Registry) Start(id string, mode Mode) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.Mode = mode
		return s
	}
	s := &Session{ID: id, Mode: mode, CreatedAt: time.Now(), sampleRate: r.sampleRate}
	r.sessions[id] = s
	return s
}

// GetOrCreate returns the session, creating it in bilingual mode if audio
// arrives before a start control message.
func (r *Registry) GetOrCreate(id string) *Session {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		return s
	}
	return r.Start(id, ModeBilingual)
}

// Get returns the session if it exists.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Mode returns the session's language mode, or bilingual for unknown ids.
func (r *Registry) Mode(id string) Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sessions[id]; ok {
		return s.Mode
	}
	return ModeBilingual
}

// Clear purges all state for a session. Safe to call for unknown or already
// cleared ids; end and disconnect signals may both arrive.
func (r *Registry) Clear(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		delete(r.sessions, id)
		slog.Info("session cleared", "session", id)
	}
}

// ForEach calls fn for every live session. The snapshot is taken under the
// lock; fn runs outside it so drains can block on model calls.
func (r *Registry) ForEach(fn func(*Session)) {
	r.mu.RLock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.RUnlock()

	for _, s := range snapshot {
		fn(s)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
