package oidc

import (
	"time"
)

// Request basically represents one OIDC authentication flow for a user.  It
// contains the data needed to uniquely represent that one-time flow across the
// multiple interactions needed to complete the OIDC flow the user is
// attempting.
//
// State() is passed throughout the OIDC interactions to uniquely identify the
// flow's request.  Storing a Request between the authentication request and
// the callback (cookie, session, cache) is the caller's responsibility.
type Request interface {
	// State is a unique identifier and an opaque value used to maintain
	// request between the oidc request and the callback.
	State() string

	// RedirectURL is the redirect_uri for this request.  When it's empty the
	// provider's configured redirect URL is used.
	RedirectURL() string

	// OriginalURL is the URL the user originally requested.  It's carried
	// through the flow so the caller can return the user to it after a
	// successful login, and is otherwise not interpreted.
	OriginalURL() string

	// IsExpired returns true if the request has expired.
	IsExpired() bool
}

// Req represents the oidc request used for oidc flows and implements the Request interface.
type Req struct {
	state       string
	redirectURL string
	originalURL string

	// expiration is the expiration time for the Request.
	expiration time.Time
	expirySkew time.Duration

	// nowFunc is an optional function that returns the current time
	nowFunc func() time.Time
}

// ensure that Req implements the Request interface
var _ Request = (*Req)(nil)

// NewRequest creates a new Request (*Req).
//
// Supported options:
//  WithState
//  WithNow
//  WithExpirySkew
func NewRequest(expireIn time.Duration, redirectURL, originalURL string, opt ...Option) (*Req, error) {
	const op = "NewRequest"
	opts := getReqOpts(opt...)
	if expireIn <= 0 {
		return nil, NewError(ErrInvalidParameter, WithOp(op), WithKind(KindConfig), WithMsg("expireIn not greater than zero"))
	}
	state := opts.withState
	if state == "" {
		var err error
		state, err = NewID(WithPrefix("st"))
		if err != nil {
			return nil, NewError(ErrIdGeneratorFailed, WithOp(op), WithMsg("unable to generate a request's state"), WithWrap(err))
		}
	}
	r := &Req{
		state:       state,
		redirectURL: redirectURL,
		originalURL: originalURL,
		expirySkew:  opts.withExpirySkew,
		nowFunc:     opts.withNowFunc,
	}
	r.expiration = r.now().Add(expireIn)
	return r, nil
}

// State implements the Request.State() interface function.
func (r *Req) State() string { return r.state }

// RedirectURL implements the Request.RedirectURL() interface function.
func (r *Req) RedirectURL() string { return r.redirectURL }

// OriginalURL implements the Request.OriginalURL() interface function.
func (r *Req) OriginalURL() string { return r.originalURL }

// DefaultRequestExpirySkew defines a default time skew when checking a Request's
// expiration.
const DefaultRequestExpirySkew = 1 * time.Second

// IsExpired returns true if the request has expired.  It uses the request's
// expiry skew, which defaults to DefaultRequestExpirySkew.
func (r *Req) IsExpired() bool {
	return r.expiration.Before(r.now().Add(r.expirySkew))
}

// now returns the current time using the optional timeFn
func (r *Req) now() time.Time {
	if r.nowFunc != nil {
		return r.nowFunc()
	}
	return time.Now() // fallback to this default
}

// reqOptions is the set of available options for Req functions
type reqOptions struct {
	withState      string
	withExpirySkew time.Duration
	withNowFunc    func() time.Time
}

// reqDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func reqDefaults() reqOptions {
	return reqOptions{
		withExpirySkew: DefaultRequestExpirySkew,
	}
}

// getReqOpts gets the request defaults and applies the opt overrides passed in
func getReqOpts(opt ...Option) reqOptions {
	opts := reqDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithState provides an optional state value for the request, in place of a
// generated one.
func WithState(s string) Option {
	return func(o interface{}) {
		if o, ok := o.(*reqOptions); ok {
			o.withState = s
		}
	}
}
