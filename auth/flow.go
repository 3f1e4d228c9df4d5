package auth

import (
	"context"

	apperrors "github.com/jrsteele09/go-session-login/internal/errors"
	"github.com/jrsteele09/go-session-login/internal/utils"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Session keys written by the login flow
const (
	KeyIsLogin       = "is_login"
	KeyLoginUsername = "login_username"
)

// State is the authentication state of one visitor's session.
type State int

const (
	Anonymous State = iota
	Authenticated
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// Session is the per-visitor state the flow reads and writes. Set creates the
// underlying session when the visitor has none. Each Set is applied on its own,
// so SubmitLogin writes KeyLoginUsername before KeyIsLogin: a session that
// reads as logged in always carries a username, and a failure between the two
// writes leaves the visitor anonymous.
type Session interface {
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, value any) error
}

// Flow is the login state machine. Anonymous becomes Authenticated only through
// SubmitLogin; there is no way back other than session expiry.
type Flow struct {
	verifier     Verifier
	logPasswords bool
}

// FlowOption defines a function type to modify the Flow instance.
type FlowOption func(*Flow)

// WithPasswordLogging logs submitted passwords verbatim at debug level.
// Meant for local development only.
func WithPasswordLogging(enabled bool) FlowOption {
	return func(f *Flow) {
		f.logPasswords = enabled
	}
}

// NewFlow creates a Flow. A nil verifier means AcceptAll.
func NewFlow(verifier Verifier, options ...FlowOption) *Flow {
	if verifier == nil {
		verifier = AcceptAll
	}
	f := &Flow{verifier: verifier}
	for _, opt := range options {
		opt(f)
	}
	return f
}

// Index builds the index view from the session without mutating it.
func (f *Flow) Index(ctx context.Context, sess Session) (IndexView, error) {
	isLogin, name, err := readLogin(ctx, sess)
	if err != nil {
		return IndexView{}, errors.Wrap(err, "[Index] reading session")
	}
	return IndexView{IsLogin: isLogin, Name: name}, nil
}

// LoginPage returns the login form view. It never touches the session.
func (f *Flow) LoginPage() LoginView {
	return LoginView{Title: LoginPageTitle}
}

// SubmitLogin verifies the form and marks the session as authenticated,
// creating it if needed. A rejected submission leaves the session untouched
// and returns ErrInvalidCredentials.
func (f *Flow) SubmitLogin(ctx context.Context, sess Session, form LoginForm) error {
	ev := log.Debug().Str("username", form.Username)
	if f.logPasswords {
		ev = ev.Str("password", form.Password)
	} else {
		ev = ev.Int("password_len", len(form.Password))
	}
	ev.Msg("login submitted")

	ok, err := f.verifier.Verify(ctx, form.Username, form.Password)
	if err != nil {
		return errors.Wrap(err, "[SubmitLogin] verifier")
	}
	if !ok {
		return errors.Wrap(apperrors.ErrInvalidCredentials, "[SubmitLogin]")
	}

	// Order matters, see Session.
	if err := sess.Set(ctx, KeyLoginUsername, form.Username); err != nil {
		return errors.Wrap(err, "[SubmitLogin] storing username")
	}
	if err := sess.Set(ctx, KeyIsLogin, true); err != nil {
		return errors.Wrap(err, "[SubmitLogin] storing login flag")
	}
	return nil
}

// StateOf reports the authentication state of the session and, when
// authenticated, the username.
func (f *Flow) StateOf(ctx context.Context, sess Session) (State, string, error) {
	isLogin, name, err := readLogin(ctx, sess)
	if err != nil {
		return Anonymous, "", errors.Wrap(err, "[StateOf] reading session")
	}
	if !isLogin {
		return Anonymous, "", nil
	}
	return Authenticated, name, nil
}

// readLogin reads the login keys; missing or mistyped values take their defaults
func readLogin(ctx context.Context, sess Session) (bool, string, error) {
	v, _, err := sess.Get(ctx, KeyIsLogin)
	if err != nil {
		return false, "", err
	}
	isLogin := utils.ValueAs[bool](v)

	v, _, err = sess.Get(ctx, KeyLoginUsername)
	if err != nil {
		return false, "", err
	}
	return isLogin, utils.ValueAs[string](v), nil
}
