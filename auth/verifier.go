package auth

import "context"

// Verifier decides whether a username and password pair is acceptable.
type Verifier interface {
	Verify(ctx context.Context, username, password string) (bool, error)
}

// VerifierFunc adapts a plain function to the Verifier interface
type VerifierFunc func(ctx context.Context, username, password string) (bool, error)

func (f VerifierFunc) Verify(ctx context.Context, username, password string) (bool, error) {
	return f(ctx, username, password)
}

// AcceptAll is the default policy: every submission is accepted and no
// credential is checked. Swap it for a real Verifier to enforce one.
var AcceptAll Verifier = VerifierFunc(func(context.Context, string, string) (bool, error) {
	return true, nil
})
