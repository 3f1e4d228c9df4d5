package server_test

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jrsteele09/go-session-login/auth"
	apperrors "github.com/jrsteele09/go-session-login/internal/errors"
	"github.com/jrsteele09/go-session-login/server"
	"github.com/jrsteele09/go-session-login/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	store := sessions.NewStore(sessions.NewInMemoryRepo(testIdle, nil), testIdle)

	t.Run("routes", func(t *testing.T) {
		srv, err := server.New(testConfig(), store, auth.NewFlow(nil))
		require.NoError(t, err)
		require.Equal(t, []string{
			"GET /{$}",
			"GET /login",
			"POST /login",
			"GET /_assets/{name}",
		}, srv.Routes())
	})

	t.Run("missing template", func(t *testing.T) {
		pages := fstest.MapFS{"index.html": {Data: []byte("<p>index</p>")}}
		_, err := server.New(testConfig(), store, auth.NewFlow(nil), server.WithTemplates(pages))
		require.Error(t, err)
	})

	t.Run("collaborators required", func(t *testing.T) {
		_, err := server.New(testConfig(), nil, auth.NewFlow(nil))
		require.Error(t, err)
		_, err = server.New(testConfig(), store, nil)
		require.Error(t, err)
	})
}

func TestIndex_Anonymous(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(getRequest(server.RouteIndex, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Nil(t, findCookie(rec, sessions.DefaultCookieName), "reading state must not create a session")

	isLogin, name := f.indexState(t, nil)
	require.False(t, isLogin)
	require.Empty(t, name)
	require.NotNil(t, findByID(parseHTML(t, rec.Body.String()), "login-link"))
}

func TestLoginPage(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(getRequest(server.RouteLogin, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, findCookie(rec, sessions.DefaultCookieName))

	doc := parseHTML(t, rec.Body.String())
	require.Equal(t, "User Login", textContent(findElement(doc, "title")))
	require.Equal(t, "User Login", textContent(findByID(doc, "title")))

	form := findByID(doc, "login-form")
	require.NotNil(t, form)
	require.Equal(t, "post", attr(form, "method"))
	require.Equal(t, server.RouteLogin, attr(form, "action"))
	require.NotNil(t, findByID(doc, "username"))
	require.NotNil(t, findByID(doc, "password"))
	require.Nil(t, findByID(doc, "error"))
}

func TestLogin_SetsCookieAndAuthenticates(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(loginRequest("alice", "anything", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, server.RouteIndex, rec.Header().Get("Location"))

	cookie := findCookie(rec, sessions.DefaultCookieName)
	require.NotNil(t, cookie)
	require.NotEmpty(t, cookie.Value)
	require.True(t, cookie.HttpOnly)
	require.False(t, cookie.Secure)
	require.Equal(t, int(testIdle/time.Second), cookie.MaxAge)

	isLogin, name := f.indexState(t, cookie)
	require.True(t, isLogin)
	require.Equal(t, "alice", name)

	// a second submission on the same session keeps the token
	rec = f.do(loginRequest("bob", "", cookie))
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, cookie.Value, findCookie(rec, sessions.DefaultCookieName).Value)

	_, name = f.indexState(t, cookie)
	require.Equal(t, "bob", name)
}

func TestLogin_AnyPasswordIsAccepted(t *testing.T) {
	f := newFixture(t, nil)

	for _, password := range []string{"", "correct horse", "wrong"} {
		cookie := f.login(t, "alice", password)
		isLogin, name := f.indexState(t, cookie)
		require.True(t, isLogin)
		require.Equal(t, "alice", name)
	}
}

func TestLogin_ForgedCookieIsNotAdopted(t *testing.T) {
	f := newFixture(t, nil)
	forged := &http.Cookie{Name: sessions.DefaultCookieName, Value: "chosen-by-attacker"}

	rec := f.do(loginRequest("alice", "", forged))
	require.Equal(t, http.StatusFound, rec.Code)

	issued := findCookie(rec, sessions.DefaultCookieName)
	require.NotNil(t, issued)
	require.NotEqual(t, forged.Value, issued.Value)

	isLogin, _ := f.indexState(t, forged)
	require.False(t, isLogin)
}

func TestLogin_Rejected(t *testing.T) {
	reject := auth.VerifierFunc(func(context.Context, string, string) (bool, error) { return false, nil })
	f := newFixture(t, reject)

	rec := f.do(loginRequest("mallory", "guess", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	require.True(t, strings.HasPrefix(rec.Header().Get("Location"), server.RouteLogin+"?error="))
	require.Nil(t, findCookie(rec, sessions.DefaultCookieName))

	rec = f.do(getRequest(rec.Header().Get("Location"), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	doc := parseHTML(t, rec.Body.String())
	require.Equal(t, "Invalid username or password", textContent(findByID(doc, "error")))
	require.Equal(t, "mallory", attr(findByID(doc, "username"), "value"))
}

func TestLogin_BadForm(t *testing.T) {
	f := newFixture(t, nil)

	req := loginRequest("", "", nil)
	req.Body = io.NopCloser(strings.NewReader("username=%zz"))
	rec := f.do(req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Nil(t, findCookie(rec, sessions.DefaultCookieName))
}

func TestSession_Expiry(t *testing.T) {
	f := newFixture(t, nil)
	cookie := f.login(t, "alice", "pw")

	// activity inside the window slides it forward
	f.clock.Advance(testIdle - time.Minute)
	isLogin, _ := f.indexState(t, cookie)
	require.True(t, isLogin)

	f.clock.Advance(testIdle - time.Minute)
	isLogin, _ = f.indexState(t, cookie)
	require.True(t, isLogin)

	f.clock.Advance(testIdle + time.Second)
	rec := f.do(getRequest(server.RouteIndex, cookie))
	require.Equal(t, http.StatusOK, rec.Code)

	cleared := findCookie(rec, sessions.DefaultCookieName)
	require.NotNil(t, cleared)
	require.Equal(t, -1, cleared.MaxAge)

	isLogin, name := f.indexState(t, cookie)
	require.False(t, isLogin)
	require.Empty(t, name)
}

func TestLogin_ConcurrentVisitorsStayIsolated(t *testing.T) {
	f := newFixture(t, nil)

	const visitors = 40
	cookies := make([]*http.Cookie, visitors)

	var wg sync.WaitGroup
	for i := 0; i < visitors; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := f.do(loginRequest(fmt.Sprintf("user-%d", i), "pw", nil))
			assert.Equal(t, http.StatusFound, rec.Code)
			cookies[i] = findCookie(rec, sessions.DefaultCookieName)
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i, cookie := range cookies {
		require.NotNil(t, cookie)
		require.False(t, seen[cookie.Value], "tokens must be unique")
		seen[cookie.Value] = true

		isLogin, name := f.indexState(t, cookie)
		require.True(t, isLogin)
		require.Equal(t, fmt.Sprintf("user-%d", i), name)
	}
}

func TestAssets(t *testing.T) {
	f := newFixture(t, nil)

	t.Run("stylesheet", func(t *testing.T) {
		want, err := fs.ReadFile(server.StaticFilesFS(), "theme.css")
		require.NoError(t, err)

		rec := f.do(getRequest("/_assets/theme.css", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/css"))
		require.Equal(t, string(want), rec.Body.String())
		require.NotEmpty(t, rec.Header().Get("Cache-Control"))
		require.Nil(t, findCookie(rec, sessions.DefaultCookieName))
	})

	t.Run("favicon", func(t *testing.T) {
		want, err := fs.ReadFile(server.StaticFilesFS(), "favicon.svg")
		require.NoError(t, err)

		rec := f.do(getRequest("/_assets/favicon.svg", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "image/svg+xml"))
		require.Equal(t, string(want), rec.Body.String())
	})

	t.Run("unknown asset is an empty 404", func(t *testing.T) {
		for _, name := range []string{"unknown.txt", "index.html", "theme.css.bak"} {
			rec := f.do(getRequest("/_assets/"+name, nil))
			require.Equal(t, http.StatusNotFound, rec.Code, name)
			require.Empty(t, rec.Body.String(), name)
		}
	})

	t.Run("gzip when accepted", func(t *testing.T) {
		req := getRequest("/_assets/theme.css", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		rec := f.do(req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

		zr, err := gzip.NewReader(rec.Body)
		require.NoError(t, err)
		got, err := io.ReadAll(zr)
		require.NoError(t, err)

		want, err := fs.ReadFile(server.StaticFilesFS(), "theme.css")
		require.NoError(t, err)
		require.Equal(t, string(want), string(got))
	})

	t.Run("gzip never pads a 404", func(t *testing.T) {
		req := getRequest("/_assets/missing.css", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		rec := f.do(req)
		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Empty(t, rec.Body.String())
		require.Empty(t, rec.Header().Get("Content-Encoding"))
	})
}

func TestUnknownPath(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(getRequest("/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMiddleware_Headers(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(getRequest(server.RouteIndex, nil))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	require.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))

	req := getRequest(server.RouteIndex, nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec = f.do(req)
	require.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestRenderFailure(t *testing.T) {
	pages := fstest.MapFS{
		"index.html": {Data: []byte(`<p>{{.NoSuchField}}</p>`)},
		"login.html": {Data: []byte(`<h1>{{.Title}}</h1>`)},
	}
	f := newFixture(t, nil, server.WithTemplates(pages))

	rec := f.do(getRequest(server.RouteIndex, nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "NoSuchField")
	require.NotContains(t, rec.Body.String(), "<p>")

	// the server keeps serving other pages
	rec = f.do(getRequest(server.RouteLogin, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "User Login")
}

func TestRecoverMiddleware(t *testing.T) {
	f := newFixture(t, nil)
	f.srv.RegisterRouteFunc("GET /boom", server.ChainMiddleware(func(http.ResponseWriter, *http.Request) {
		panic("template engine exploded")
	}, f.srv.HTMLMiddleWare()...))

	rec := f.do(getRequest("/boom", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "exploded")

	rec = f.do(getRequest(server.RouteIndex, nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionStoreFailure(t *testing.T) {
	store := sessions.NewStore(failingRepo{}, testIdle)
	srv, err := server.New(testConfig(), store, auth.NewFlow(nil))
	require.NoError(t, err)

	cookie := &http.Cookie{Name: sessions.DefaultCookieName, Value: "tok-1"}
	for _, req := range []*http.Request{
		getRequest(server.RouteIndex, cookie),
		loginRequest("alice", "pw", cookie),
		loginRequest("alice", "pw", nil),
	} {
		rec := (&fixture{srv: srv}).do(req)
		require.Equal(t, http.StatusInternalServerError, rec.Code, req.Method)
		require.NotContains(t, rec.Body.String(), "connection refused")
		require.NotContains(t, rec.Body.String(), "not logged in")
	}
}

func TestRenderer(t *testing.T) {
	pages := fstest.MapFS{"hello.html": {Data: []byte(`<p>{{.}}</p>`)}}
	r, err := server.NewRenderer(pages, "hello.html")
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, r.Render(&sb, "hello.html", "<b>alice</b>"))
	require.Equal(t, "<p>&lt;b&gt;alice&lt;/b&gt;</p>", sb.String())

	err = r.Render(&sb, "missing.html", nil)
	require.ErrorIs(t, err, apperrors.ErrTemplateNotFound)

	_, err = server.NewRenderer(pages, "hello.html", "absent.html")
	require.Error(t, err)
}
