package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/go-session-login/internal/errors"
)

var (
	// errTokenInUse is returned by Create when the token already names a session
	errTokenInUse = errors.New("session token already in use")

	// errExpired matches both ErrSessionNotFound and ErrSessionExpired
	errExpired = fmt.Errorf("%w: %w", apperrors.ErrSessionNotFound, apperrors.ErrSessionExpired)
)

// Repo is a session persistence backend. Implementations own inactivity
// expiry: an expired session must behave exactly like a missing one.
// Operations on a single token are atomic with respect to each other.
type Repo interface {
	// Get returns a copy of a live session and refreshes its last access time.
	// It returns errors.ErrSessionNotFound when the token is unknown or expired.
	Get(ctx context.Context, token string) (*Session, error)

	// Create stores a new session holding values.
	Create(ctx context.Context, token string, values map[string]any) error

	// Update stores value under key in a live session and refreshes its last
	// access time. It never creates a session.
	Update(ctx context.Context, token, key string, value any) error

	// Delete removes a session. Deleting an unknown token is not an error.
	Delete(ctx context.Context, token string) error

	// DeleteExpired removes every expired session and reports how many went.
	DeleteExpired(ctx context.Context) (int, error)

	Close() error
}

// Clock returns the current time. Repos take one so expiry can be tested.
type Clock func() time.Time
