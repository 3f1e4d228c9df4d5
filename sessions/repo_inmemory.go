package sessions

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-session-login/internal/errors"
)

var _ Repo = (*InMemoryRepo)(nil)

// entry guards a single session so that unrelated tokens never wait on each other
type entry struct {
	mu      sync.Mutex
	session Session
	removed bool // set once the entry has left the map; writers must not use it
}

// InMemoryRepo is an in-memory implementation of Repo. The map lock is only
// held to find, add or remove entries; reads and writes of a session happen
// under that session's own lock.
type InMemoryRepo struct {
	mu      sync.RWMutex
	entries map[string]*entry
	idle    time.Duration
	now     Clock
}

// NewInMemoryRepo creates a new in-memory session repository whose sessions
// expire after idle without access. A zero idle disables expiry.
func NewInMemoryRepo(idle time.Duration, now Clock) *InMemoryRepo {
	if now == nil {
		now = time.Now
	}
	return &InMemoryRepo{
		entries: make(map[string]*entry),
		idle:    idle,
		now:     now,
	}
}

func (r *InMemoryRepo) lookup(token string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[token]
}

// remove drops e from the map unless it has already been replaced
func (r *InMemoryRepo) remove(token string, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[token] == e {
		delete(r.entries, token)
	}
}

// withLive runs fn on the live session for token while holding its lock
func (r *InMemoryRepo) withLive(token string, fn func(s *Session)) error {
	if token == "" {
		return fmt.Errorf("token is required")
	}

	e := r.lookup(token)
	if e == nil {
		return apperrors.ErrSessionNotFound
	}

	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return apperrors.ErrSessionNotFound
	}
	now := r.now()
	if e.session.Expired(now, r.idle) {
		e.removed = true
		e.mu.Unlock()
		r.remove(token, e)
		return errExpired
	}
	e.session.LastAccess = now
	fn(&e.session)
	e.mu.Unlock()
	return nil
}

// Get retrieves a live session by token
func (r *InMemoryRepo) Get(_ context.Context, token string) (*Session, error) {
	var out Session
	err := r.withLive(token, func(s *Session) {
		out = s.clone()
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Create adds a new session
func (r *InMemoryRepo) Create(_ context.Context, token string, values map[string]any) error {
	if token == "" {
		return fmt.Errorf("token is required")
	}

	s := newSession(token, r.now())
	for k, v := range values {
		s.Values[k] = v
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[token]; ok {
		existing.mu.Lock()
		live := !existing.removed
		existing.mu.Unlock()
		if live {
			return errTokenInUse
		}
	}
	r.entries[token] = &entry{session: s}
	return nil
}

// Update sets a single key on a live session
func (r *InMemoryRepo) Update(_ context.Context, token, key string, value any) error {
	return r.withLive(token, func(s *Session) {
		s.Values[key] = value
	})
}

// Delete removes a session
func (r *InMemoryRepo) Delete(_ context.Context, token string) error {
	r.mu.Lock()
	e, ok := r.entries[token]
	delete(r.entries, token)
	r.mu.Unlock()

	if ok {
		e.mu.Lock()
		e.removed = true
		e.mu.Unlock()
	}
	return nil
}

// DeleteExpired removes every session idle for longer than the window
func (r *InMemoryRepo) DeleteExpired(ctx context.Context) (int, error) {
	if r.idle <= 0 {
		return 0, nil
	}

	r.mu.RLock()
	candidates := make(map[string]*entry, len(r.entries))
	for token, e := range r.entries {
		candidates[token] = e
	}
	r.mu.RUnlock()

	removed := 0
	for token, e := range candidates {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		e.mu.Lock()
		expired := !e.removed && e.session.Expired(r.now(), r.idle)
		if expired {
			e.removed = true
		}
		e.mu.Unlock()

		if expired {
			r.remove(token, e)
			removed++
		}
	}
	return removed, nil
}

// Len reports how many sessions are held, expired ones included until swept
func (r *InMemoryRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Close drops every session
func (r *InMemoryRepo) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for token, e := range r.entries {
		e.mu.Lock()
		e.removed = true
		e.mu.Unlock()
		delete(r.entries, token)
	}
	return nil
}
