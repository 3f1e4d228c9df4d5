package sessions

import (
	"maps"
	"time"

	"github.com/rs/zerolog"
)

// Session is the per-visitor state correlated to requests by an opaque token.
// Values hold what handlers stored; the timestamps drive inactivity expiry.
type Session struct {
	Token      string         // Opaque identifier carried in the session cookie
	Values     map[string]any // Handler state, e.g. is_login and login_username
	CreatedAt  time.Time      // When the session was created
	LastAccess time.Time      // Last read or write; the idle window slides from here
}

func newSession(token string, now time.Time) Session {
	return Session{
		Token:      token,
		Values:     make(map[string]any),
		CreatedAt:  now,
		LastAccess: now,
	}
}

// Expired reports whether the session has been idle longer than idle.
// An idle window of zero means sessions never expire.
func (s Session) Expired(now time.Time, idle time.Duration) bool {
	return idle > 0 && now.Sub(s.LastAccess) > idle
}

func (s Session) clone() Session {
	c := s
	c.Values = maps.Clone(s.Values)
	if c.Values == nil {
		c.Values = make(map[string]any)
	}
	return c
}

// MarshalZerologObject logs the session without exposing the full token
func (s Session) MarshalZerologObject(e *zerolog.Event) {
	keys := make([]string, 0, len(s.Values))
	for k := range s.Values {
		keys = append(keys, k)
	}
	e.Str("token", tokenPrefix(s.Token)).
		Strs("keys", keys).
		Time("created_at", s.CreatedAt).
		Dur("idle", time.Since(s.LastAccess))
}

func tokenPrefix(token string) string {
	if len(token) <= 6 {
		return token
	}
	return token[:6] + "…"
}
