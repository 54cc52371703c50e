package oidc

import (
	"encoding/json"
	"time"

	"golang.org/x/oauth2"
)

// AccessToken is an oauth access_token.
type AccessToken string

// RedactedAccessToken is the redacted string or json for an oauth access_token.
const RedactedAccessToken = "[REDACTED: access_token]"

// String will redact the token.
func (t AccessToken) String() string {
	return RedactedAccessToken
}

// MarshalJSON will redact the token.
func (t AccessToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedAccessToken)
}

// Token interface represents an OIDC token response whose id_token passed
// verification.
type Token interface {
	// AccessToken returns the access_token from the token response.
	AccessToken() AccessToken

	// TokenType returns the token_type from the token response.
	TokenType() string

	// IDToken returns the id_token from the token response.
	IDToken() IDToken

	// Claims returns the verified id_token claims.
	Claims() *IDTokenClaims

	// Subject is the authenticated user: the id_token's "sub" claim.
	Subject() string

	// Expiry returns the id_token's expiration.
	Expiry() time.Time

	// Valid will ensure that the access_token is not empty or expired.
	Valid() bool

	// IsExpired returns true if the token has expired.
	IsExpired() bool
}

// StaticTokenSource is a single function interface that defines a method to
// create a oauth2.TokenSource that always returns the same token.
type StaticTokenSource interface {
	StaticTokenSource() oauth2.TokenSource
}

// Tk satisfies the Token interface and represents an Oauth2 access_token and
// its verified OIDC id_token.
type Tk struct {
	accessToken AccessToken
	tokenType   string
	idToken     IDToken
	claims      *IDTokenClaims

	expirySkew time.Duration
	nowFunc    func() time.Time
}

// ensure that Tk implements the Token interface.
var _ Token = (*Tk)(nil)

// ensure that Tk implements the StaticTokenSource interface.
var _ StaticTokenSource = (*Tk)(nil)

// NewToken creates a new Token (*Tk).  The claims must be the verified claims
// of the id_token.
//
// Supported options:
//  WithNow
//  WithExpirySkew
func NewToken(accessToken AccessToken, tokenType string, idToken IDToken, claims *IDTokenClaims, opt ...Option) (*Tk, error) {
	const op = "NewToken"
	if accessToken == "" {
		return nil, NewError(ErrMissingAccessToken, WithOp(op), WithKind(KindProtocol))
	}
	if idToken == "" {
		return nil, NewError(ErrMissingIdToken, WithOp(op), WithKind(KindProtocol))
	}
	if claims == nil {
		return nil, NewError(ErrNilParameter, WithOp(op), WithMsg("id_token claims are nil"))
	}
	opts := getTokenOpts(opt...)
	return &Tk{
		accessToken: accessToken,
		tokenType:   tokenType,
		idToken:     idToken,
		claims:      claims,
		expirySkew:  opts.withExpirySkew,
		nowFunc:     opts.withNowFunc,
	}, nil
}

// AccessToken implements the Token.AccessToken() interface function.
func (t *Tk) AccessToken() AccessToken { return t.accessToken }

// TokenType implements the Token.TokenType() interface function.
func (t *Tk) TokenType() string { return t.tokenType }

// IDToken implements the Token.IDToken() interface function.
func (t *Tk) IDToken() IDToken { return t.idToken }

// Claims implements the Token.Claims() interface function.
func (t *Tk) Claims() *IDTokenClaims { return t.claims }

// Subject implements the Token.Subject() interface function.
func (t *Tk) Subject() string { return t.claims.Subject }

// Expiry implements the Token.Expiry() interface function.
func (t *Tk) Expiry() time.Time { return t.claims.Expiration }

// DefaultTokenExpirySkew defines a time skew when checking a Token's
// expiration.
const DefaultTokenExpirySkew = 10 * time.Second

// IsExpired will return true if the token has expired.  Implements the
// Token.IsExpired() interface function.
func (t *Tk) IsExpired() bool {
	if t.Expiry().IsZero() {
		return false
	}
	return t.Expiry().Round(0).Before(t.now().Add(t.expirySkew))
}

// Valid will ensure that the access_token is not empty or expired.  It will
// return false if t.AccessToken() is empty.  Implements the Token.Valid()
// interface function.
func (t *Tk) Valid() bool {
	if t == nil {
		return false
	}
	if t.accessToken == "" {
		return false
	}
	return !t.IsExpired()
}

// StaticTokenSource returns a TokenSource that always returns the same token.
// Because the provided token t is never refreshed.  It will return nil, if the
// t.AccessToken() is empty.
func (t *Tk) StaticTokenSource() oauth2.TokenSource {
	if t.accessToken == "" {
		return nil
	}
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: string(t.accessToken),
		TokenType:   t.tokenType,
		Expiry:      t.Expiry(),
	})
}

// now returns the current time using the optional nowFunc.
func (t *Tk) now() time.Time {
	if t.nowFunc != nil {
		return t.nowFunc()
	}
	return time.Now() // fallback to this default
}

// tokenOptions is the set of available options for Token functions
type tokenOptions struct {
	withExpirySkew time.Duration
	withNowFunc    func() time.Time
}

// tokenDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func tokenDefaults() tokenOptions {
	return tokenOptions{
		withExpirySkew: DefaultTokenExpirySkew,
	}
}

// getTokenOpts gets the token defaults and applies the opt overrides passed
// in
func getTokenOpts(opt ...Option) tokenOptions {
	opts := tokenDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
