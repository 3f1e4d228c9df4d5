package server_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-login/auth"
	"github.com/jrsteele09/go-session-login/internal/config"
	apperrors "github.com/jrsteele09/go-session-login/internal/errors"
	"github.com/jrsteele09/go-session-login/server"
	"github.com/jrsteele09/go-session-login/sessions"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const testIdle = 30 * time.Minute

// fakeClock is a manually advanced clock for expiry tests
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingRepo is a session backend that is down
type failingRepo struct{}

var errBackendDown = fmt.Errorf("%w: dial tcp 10.0.0.1:6379: connection refused", apperrors.ErrStoreUnavailable)

func (failingRepo) Get(context.Context, string) (*sessions.Session, error) {
	return nil, errBackendDown
}

func (failingRepo) Create(context.Context, string, map[string]any) error {
	return errBackendDown
}

func (failingRepo) Update(context.Context, string, string, any) error {
	return errBackendDown
}

func (failingRepo) Delete(context.Context, string) error {
	return errBackendDown
}

func (failingRepo) DeleteExpired(context.Context) (int, error) {
	return 0, errBackendDown
}

func (failingRepo) Close() error {
	return nil
}

// fixture is a server wired to an in-memory store driven by a fake clock
type fixture struct {
	srv   *server.Server
	clock *fakeClock
}

func testConfig() *config.Settings {
	cfg := config.Default()
	cfg.Env = "TEST"
	return cfg
}

func newFixture(t *testing.T, verifier auth.Verifier, opts ...server.Option) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := sessions.NewStore(sessions.NewInMemoryRepo(testIdle, clock.Now), testIdle)
	t.Cleanup(func() { store.Close() })

	srv, err := server.New(testConfig(), store, auth.NewFlow(verifier), opts...)
	require.NoError(t, err)
	return &fixture{srv: srv, clock: clock}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func getRequest(path string, cookie *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	}
	return req
}

func loginRequest(username, password string, cookie *http.Cookie) *http.Request {
	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, server.RouteLogin, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	}
	return req
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// login submits the form and returns the session cookie it was issued
func (f *fixture) login(t *testing.T, username, password string) *http.Cookie {
	t.Helper()
	rec := f.do(loginRequest(username, password, nil))
	require.Equal(t, http.StatusFound, rec.Code)
	cookie := findCookie(rec, sessions.DefaultCookieName)
	require.NotNil(t, cookie)
	return cookie
}

// indexState renders the index page and reads the login state out of the markup
func (f *fixture) indexState(t *testing.T, cookie *http.Cookie) (bool, string) {
	t.Helper()
	rec := f.do(getRequest(server.RouteIndex, cookie))
	require.Equal(t, http.StatusOK, rec.Code)

	doc := parseHTML(t, rec.Body.String())
	status := findByID(doc, "status")
	require.NotNil(t, status, "index page must carry a status element")

	isLogin := attr(status, "data-is-login") == "true"
	var name string
	if n := findByID(doc, "name"); n != nil {
		name = textContent(n)
	}
	return isLogin, name
}

func parseHTML(t *testing.T, body string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(body))
	require.NoError(t, err)
	return doc
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode && attr(n, "id") == id {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
