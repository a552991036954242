package tracker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one tracked stream: the running polling task plus the message
// that started it. The task's cancellation handle lives here; stopping a
// session means cancelling it, not just dropping the map entry.
type Session struct {
	Identity  string
	ID        string
	MessageID string
	StartedAt time.Time

	cancel   context.CancelFunc
	done     chan struct{}
	stopping bool // guarded by Registry.mu
}

// Done is closed once the session's task has returned and the session has
// left the registry.
func (s *Session) Done() <-chan struct{} { return s.done }

// SessionInfo is a read-only view of a Session.
type SessionInfo struct {
	Identity  string    `json:"identity"`
	SessionID string    `json:"session_id"`
	MessageID string    `json:"message_id,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Registry maps stream identities to their running tasks. At most one task
// exists per identity at any time, including while a stopped task drains.
type Registry struct {
	// OnChange, if set, is called with the number of active sessions after
	// every start and every task exit.
	OnChange func(active int)

	mu       sync.Mutex
	sessions map[string]*Session
	base     context.Context
	stopAll  context.CancelFunc
	closed   bool
	wg       sync.WaitGroup
	now      func() time.Time
}

// NewRegistry returns an empty registry. now may be nil (time.Now).
func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	base, cancel := context.WithCancel(context.Background())
	return &Registry{
		sessions: make(map[string]*Session),
		base:     base,
		stopAll:  cancel,
		now:      now,
	}
}

// Start creates a session for identity and runs fn in a new goroutine, unless
// a session for identity already exists (or the registry is shut down), in
// which case it does nothing and returns false.
func (r *Registry) Start(identity, messageID string, fn func(ctx context.Context, s *Session)) (*Session, bool) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, false
	}
	if _, exists := r.sessions[identity]; exists {
		r.mu.Unlock()
		return nil, false
	}
	ctx, cancel := context.WithCancel(r.base)
	s := &Session{
		Identity:  identity,
		ID:        uuid.NewString(),
		MessageID: messageID,
		StartedAt: r.now().UTC(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	r.sessions[identity] = s
	n := len(r.sessions)
	r.wg.Add(1)
	r.mu.Unlock()

	r.changed(n)
	go func() {
		defer r.wg.Done()
		defer close(s.done)
		defer r.remove(s)
		fn(ctx, s)
	}()
	return s, true
}

// Stop cancels the session for identity and waits, bounded by ctx, for its
// task to exit. It returns false when nothing is tracked for identity or a
// concurrent Stop already claimed it.
func (r *Registry) Stop(ctx context.Context, identity string) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[identity]
	if !ok || s.stopping {
		r.mu.Unlock()
		return nil, false
	}
	s.stopping = true
	r.mu.Unlock()

	s.cancel()
	select {
	case <-s.done:
	case <-ctx.Done():
	}
	return s, true
}

// FindByMessage returns the identity whose session was started by messageID.
func (r *Registry) FindByMessage(messageID string) (string, bool) {
	if messageID == "" {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.MessageID == messageID && !s.stopping {
			return id, true
		}
	}
	return "", false
}

// active reports whether identity has a session that is not being stopped.
func (r *Registry) active(identity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[identity]
	return ok && !s.stopping
}

// Sessions lists active sessions, oldest first.
func (r *Registry) Sessions() []SessionInfo {
	r.mu.Lock()
	out := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.stopping {
			continue
		}
		out = append(out, SessionInfo{Identity: s.Identity, SessionID: s.ID, MessageID: s.MessageID, StartedAt: s.StartedAt})
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].Identity < out[j].Identity
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Len returns the number of sessions, including ones still draining.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// StopAll cancels every session, refuses new ones, and waits for all tasks
// to exit or ctx to expire.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	for _, s := range r.sessions {
		s.stopping = true
	}
	r.mu.Unlock()
	r.stopAll()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) remove(s *Session) {
	s.cancel()
	r.mu.Lock()
	if cur, ok := r.sessions[s.Identity]; ok && cur == s {
		delete(r.sessions, s.Identity)
	}
	n := len(r.sessions)
	r.mu.Unlock()
	r.changed(n)
}

func (r *Registry) changed(n int) {
	if r.OnChange != nil {
		r.OnChange(n)
	}
}
