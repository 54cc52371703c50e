package oidc

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidParameter     = errors.New("invalid parameter")
	ErrNilParameter         = errors.New("nil parameter")
	ErrInvalidCACert        = errors.New("invalid CA certificate")
	ErrInvalidIssuer        = errors.New("invalid issuer")
	ErrIdGeneratorFailed    = errors.New("id generation failed")
	ErrExpiredRequest       = errors.New("request is expired")
	ErrResponseStateInvalid = errors.New("invalid response state")
	ErrNotFound             = errors.New("not found")

	// id_token parsing and claim validation
	ErrMalformedToken          = errors.New("malformed token")
	ErrInvalidSignature        = errors.New("invalid signature")
	ErrMissingClaim            = errors.New("missing claim")
	ErrInvalidClaimType        = errors.New("invalid claim type")
	ErrExpiredToken            = errors.New("token is expired")
	ErrInvalidAudience         = errors.New("invalid audience")
	ErrInvalidAuthorizedParty  = errors.New("invalid authorized party")
	ErrIdTokenVerificationFail = errors.New("id_token verification failed")

	// provider responses
	ErrMissingIdToken       = errors.New("id_token is missing")
	ErrMissingAccessToken   = errors.New("access_token is missing")
	ErrMissingTokenType     = errors.New("token_type is missing")
	ErrUnsupportedTokenType = errors.New("unsupported token type")
	ErrProviderError        = errors.New("provider returned an error")
	ErrInvalidResponse      = errors.New("invalid response")
	ErrMissingLinks         = errors.New("webfinger links are missing")
	ErrUserInfoFailed       = errors.New("user info failed")

	// transport
	ErrHTTPRequestFailed = errors.New("http request failed")

	// configuration
	ErrMissingEndpoint = errors.New("endpoint is not configured")
	ErrInvalidAccount  = errors.New("invalid account name")
)

// Kind classifies an error so callers (and logs/metrics) can tell a failed
// claim check apart from an unreachable provider.
type Kind uint32

const (
	KindUnknown Kind = iota

	// KindParse is a malformed token segment or a JSON value of the wrong
	// shape at the outermost decode step.
	KindParse

	// KindValidation is a failed issuer, audience, azp, expiration,
	// signature or state check.
	KindValidation

	// KindProtocol is well-formed JSON missing a required member (or carrying
	// it with the wrong type), or an explicit error object from the provider.
	KindProtocol

	// KindNetwork is a transport failure, timeout, non-success HTTP status or
	// an unusable response body.
	KindNetwork

	// KindConfig is a malformed account identifier or a missing configuration
	// value that an operation requires.
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindValidation:
		return "validation"
	case KindProtocol:
		return "protocol"
	case KindNetwork:
		return "network"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Err provides the package's error type. Sentinel is the package error it
// matches with errors.Is and Wrapped is an optional underlying cause.
type Err struct {
	Kind     Kind
	Op       string
	Msg      string
	Sentinel error
	Wrapped  error
}

var _ error = (*Err)(nil)

// NewError creates a new Err for the sentinel error. Supported options:
// WithOp, WithKind, WithMsg and WithWrap.
func NewError(sentinel error, opt ...Option) error {
	opts := getErrOpts(opt...)
	return &Err{
		Kind:     opts.withKind,
		Op:       opts.withOp,
		Msg:      opts.withErrMsg,
		Sentinel: sentinel,
		Wrapped:  opts.withErrWrapped,
	}
}

// Error satisfies the error interface and returns a string representation of
// the error: "op: msg: sentinel: wrapped"
func (e *Err) Error() string {
	if e == nil {
		return ""
	}
	var parts []string
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Msg != "" {
		parts = append(parts, e.Msg)
	}
	if e.Sentinel != nil {
		parts = append(parts, e.Sentinel.Error())
	}
	if e.Wrapped != nil {
		parts = append(parts, e.Wrapped.Error())
	}
	return strings.Join(parts, ": ")
}

// Is reports whether target is the error's sentinel.
func (e *Err) Is(target error) bool {
	if e == nil {
		return false
	}
	return e.Sentinel != nil && e.Sentinel == target
}

// Unwrap implements the errors.Unwrap interface and returns the wrapped
// cause, if any.
func (e *Err) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Wrapped
}

// KindOf returns the Kind of the first *Err in err's chain. Errors that were
// not produced by this package are KindUnknown.
func KindOf(err error) Kind {
	var e *Err
	for err != nil {
		if !errors.As(err, &e) {
			return KindUnknown
		}
		if e.Kind != KindUnknown {
			return e.Kind
		}
		err = e.Wrapped
	}
	return KindUnknown
}

// errOptions is the set of available options for NewError
type errOptions struct {
	withKind       Kind
	withOp         string
	withErrMsg     string
	withErrWrapped error
}

func errDefaults() errOptions {
	return errOptions{}
}

func getErrOpts(opt ...Option) errOptions {
	opts := errDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithKind provides an optional Kind for the error.
func WithKind(k Kind) Option {
	return func(o interface{}) {
		if o, ok := o.(*errOptions); ok {
			o.withKind = k
		}
	}
}

// WithOp provides an optional operation name for the error.
func WithOp(op string) Option {
	return func(o interface{}) {
		if o, ok := o.(*errOptions); ok {
			o.withOp = op
		}
	}
}

// WithMsg provides an optional message for the error.
func WithMsg(msg string, args ...interface{}) Option {
	return func(o interface{}) {
		if o, ok := o.(*errOptions); ok {
			if len(args) > 0 {
				msg = fmt.Sprintf(msg, args...)
			}
			o.withErrMsg = msg
		}
	}
}

// WithWrap provides an optional underlying error to wrap.
func WithWrap(e error) Option {
	return func(o interface{}) {
		if o, ok := o.(*errOptions); ok {
			o.withErrWrapped = e
		}
	}
}
