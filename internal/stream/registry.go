package stream

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Session is the in-flight state of one streamed response. It is created by
// Registry.Create and mutated only by the Controller driving it; concurrent
// readers (status queries, cancellation) go through the accessor methods.
type Session struct {
	ID string

	sink      Sink
	startedAt time.Time

	mu          sync.RWMutex
	phase       Phase
	accumulated []byte
	totalChars  int
	lastEmit    time.Time

	cancelled atomic.Bool
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// setPhase records a phase transition. Terminal phases are sticky: once the
// session has ended, later transitions are ignored.
func (s *Session) setPhase(p Phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.Terminal() {
		return false
	}
	s.phase = p
	return true
}

// forcePhase overwrites the phase unconditionally. Only the Controller uses
// it, to downgrade a completion whose terminal status could not be delivered.
func (s *Session) forcePhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

// Cancel sets the cancellation flag. It reports whether this call was the
// one that flipped it; repeated cancellation is a no-op.
func (s *Session) Cancel() bool {
	return s.cancelled.CompareAndSwap(false, true)
}

// Cancelled reports whether cancellation has been requested.
func (s *Session) Cancelled() bool {
	return s.cancelled.Load()
}

// AccumulatedText returns everything emitted so far. After the session
// reaches PhaseComplete this is the full assistant output, ready for the
// caller to persist.
func (s *Session) AccumulatedText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return string(s.accumulated)
}

// TotalChars returns the running character count of emitted content.
func (s *Session) TotalChars() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalChars
}

// recordChunk appends an emitted chunk to the accumulated output.
func (s *Session) recordChunk(content string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accumulated = append(s.accumulated, content...)
	s.totalChars += len(content)
	s.lastEmit = at
}

// Summary returns a point-in-time snapshot of the session.
func (s *Session) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Summary{
		SessionID:  s.ID,
		Phase:      s.phase,
		TotalChars: s.totalChars,
		Duration:   time.Since(s.startedAt),
		Cancelled:  s.cancelled.Load(),
	}
}

// Registry is the sole place session state lives. It is safe for concurrent
// create/remove of different sessions; sessions themselves never share state.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create registers a new session bound to sink. New sessions start in
// PhaseThinking; there is no reachable idle state after creation.
func (r *Registry) Create(id string, sink Sink) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSession, id)
	}

	now := time.Now()
	s := &Session{
		ID:        id,
		sink:      sink,
		startedAt: now,
		phase:     PhaseThinking,
		lastEmit:  now,
	}
	r.sessions[id] = s
	return s, nil
}

// Get looks up a session. Pure lookup, no side effects.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Remove deletes a session. Idempotent; removing an absent id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// ListActive returns a snapshot of the currently registered session ids.
func (r *Registry) ListActive() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}
