package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/go-session-login/internal/errors"
	"github.com/rs/zerolog/log"
)

// maxCreateAttempts bounds retries when a freshly generated token collides
const maxCreateAttempts = 3

// Store maps opaque session tokens to key/value state on top of a Repo and
// issues the cookie that carries the token.
type Store struct {
	repo     Repo
	idle     time.Duration
	cookie   CookieOptions
	newToken func() (string, error)
}

type Option func(*Store)

// WithCookie overrides the session cookie attributes
func WithCookie(opts CookieOptions) Option {
	return func(s *Store) {
		s.cookie = opts
	}
}

// WithTokenGenerator replaces GenerateToken, mainly for tests
func WithTokenGenerator(fn func() (string, error)) Option {
	return func(s *Store) {
		s.newToken = fn
	}
}

// NewStore creates a store whose sessions expire after idle without access.
// idle must match the window the repo was built with; zero disables expiry.
func NewStore(repo Repo, idle time.Duration, opts ...Option) *Store {
	s := &Store{
		repo:     repo,
		idle:     idle,
		newToken: GenerateToken,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cookie = s.cookie.normalize()
	return s
}

// IdleTimeout returns the inactivity window, zero when expiry is disabled
func (s *Store) IdleTimeout() time.Duration {
	return s.idle
}

// CookieName returns the name of the cookie carrying the session token
func (s *Store) CookieName() string {
	return s.cookie.Name
}

// Load returns the live session for token, or nil when there is none.
func (s *Store) Load(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, nil
	}
	session, err := s.repo.Get(ctx, token)
	if errors.Is(err, apperrors.ErrSessionNotFound) {
		if errors.Is(err, apperrors.ErrSessionExpired) {
			log.Debug().Str("token", tokenPrefix(token)).Msg("session expired")
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: load: %w", err)
	}
	return session, nil
}

// Get returns the value stored under key. Unknown or expired tokens and
// missing keys are reported as absent, not as errors.
func (s *Store) Get(ctx context.Context, token, key string) (any, bool, error) {
	session, err := s.Load(ctx, token)
	if err != nil || session == nil {
		return nil, false, err
	}
	v, ok := session.Values[key]
	return v, ok, nil
}

// Set stores value under key and resets the inactivity clock. When token does
// not name a live session a new one is created under a freshly generated
// token; a visitor supplied token is never adopted. The token in use is
// returned.
func (s *Store) Set(ctx context.Context, token, key string, value any) (string, error) {
	if token != "" {
		err := s.repo.Update(ctx, token, key, value)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, apperrors.ErrSessionNotFound) {
			return "", fmt.Errorf("session: set %s: %w", key, err)
		}
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		newToken, err := s.newToken()
		if err != nil {
			return "", err
		}
		err = s.repo.Create(ctx, newToken, map[string]any{key: value})
		if errors.Is(err, errTokenInUse) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("session: create: %w", err)
		}
		log.Debug().Str("token", tokenPrefix(newToken)).Msg("session created")
		return newToken, nil
	}
	return "", fmt.Errorf("session: create: %w", errTokenInUse)
}

// Delete removes the session named by token
func (s *Store) Delete(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.repo.Delete(ctx, token); err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

// Sweep drops every expired session
func (s *Store) Sweep(ctx context.Context) (int, error) {
	n, err := s.repo.DeleteExpired(ctx)
	if err != nil {
		return n, fmt.Errorf("session: sweep: %w", err)
	}
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is done. Sweep failures are
// logged and retried on the next tick.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) error {
	if s.idle <= 0 {
		log.Debug().Msg("session expiry disabled, sweeper not started")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				log.Err(err).Msg("Failed to sweep expired sessions")
				continue
			}
			if n > 0 {
				log.Debug().Int("removed", n).Msg("expired sessions swept")
			}
		}
	}
}

// Close releases the underlying repo
func (s *Store) Close() error {
	return s.repo.Close()
}
