package sessions

import (
	"net/http"
	"time"
)

const DefaultCookieName = "session_id"

// CookieOptions defines how session cookies are issued.
type CookieOptions struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool // off by default: plain http transport is accepted
	SameSite http.SameSite
}

// normalize applies defaults without breaking callers
func (o CookieOptions) normalize() CookieOptions {
	if o.Name == "" {
		o.Name = DefaultCookieName
	}
	if o.Path == "" {
		o.Path = "/"
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

// setCookie issues the session cookie. Its lifetime is the idle window so the
// browser forgets the token about when the store does; every refresh slides
// it forward. With expiry disabled the cookie lasts for the browser session.
func setCookie(w http.ResponseWriter, token string, idle time.Duration, opts CookieOptions) {
	c := &http.Cookie{
		Name:     opts.Name,
		Value:    token,
		Path:     opts.Path,
		Domain:   opts.Domain,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	}
	if idle > 0 {
		c.MaxAge = int(idle.Round(time.Second) / time.Second)
		if c.MaxAge == 0 {
			c.MaxAge = 1
		}
	}
	http.SetCookie(w, c)
}

// clearCookie removes the session cookie from the client.
func clearCookie(w http.ResponseWriter, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     opts.Name,
		Value:    "",
		Path:     opts.Path,
		Domain:   opts.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}
