package oidc

import (
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/openrp/rp/oidc/internal/strutils"
	sdkHttp "github.com/openrp/rp/sdk/http"
)

// ClientSecret is an oauth client Secret.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret.
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret.
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret.
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// TokenEndpointAuth is the method used to authenticate the client to the
// provider's token endpoint.
type TokenEndpointAuth string

const (
	// ClientSecretBasic sends client_id:client_secret as HTTP Basic
	// credentials.
	ClientSecretBasic TokenEndpointAuth = "client_secret_basic"

	// ClientSecretPost sends client_id and client_secret as form parameters
	// in the request body.
	ClientSecretPost TokenEndpointAuth = "client_secret_post"

	// ClientSecretJWT sends a client assertion signed with the client secret.
	// See WithClientAssertionJWT.
	ClientSecretJWT TokenEndpointAuth = "client_secret_jwt"

	// PrivateKeyJWT sends a client assertion signed with a private key the
	// provider knows the public half of.  See WithClientAssertionJWT.
	PrivateKeyJWT TokenEndpointAuth = "private_key_jwt"
)

// ClientAssertionJWT creates the signed client_assertion sent to the token
// endpoint with ClientSecretJWT and PrivateKeyJWT.  Serialize is called once
// per token request.  See the clientassertion package.
type ClientAssertionJWT interface {
	Serialize() (string, error)
}

const (
	// ScopeOpenID is the required scope for every OIDC authentication request.
	ScopeOpenID = "openid"

	// DefaultTimeout is the timeout used for token and userinfo requests when
	// none is configured.
	DefaultTimeout = 60 * time.Second
)

// Config represents the configuration for an OIDC provider used by a relying
// party for the authorization code flow.  A Config is read-only once the
// Provider using it is created.
type Config struct {
	// Issuer is the expected "iss" claim of id_tokens issued by the provider.
	// A single trailing slash difference is tolerated.
	Issuer string

	// ClientID is the relying party id.
	ClientID string

	// ClientSecret is the relying party secret.  It is not required when
	// the client authenticates with a client assertion.
	ClientSecret ClientSecret

	// ClientAssertion creates client assertions for ClientSecretJWT and
	// PrivateKeyJWT token endpoint authentication.
	ClientAssertion ClientAssertionJWT

	// AuthorizationEndpoint is the provider's authorization endpoint.  It may
	// already carry query parameters.
	AuthorizationEndpoint string

	// TokenEndpoint is the provider's token endpoint.
	TokenEndpoint string

	// UserInfoEndpoint is the optional provider userinfo endpoint.  When it is
	// set, token responses must carry a Bearer token_type.
	UserInfoEndpoint string

	// TokenEndpointAuth is the client authentication method used with the
	// token endpoint.  Defaults to ClientSecretBasic.
	TokenEndpointAuth TokenEndpointAuth

	// Scope is the space separated scope value sent in authentication
	// requests.  It always includes "openid".
	Scope string

	// SkipTLSVerify turns off validation of the provider's TLS certificate.
	SkipTLSVerify bool

	// ProviderCA is an optional PEM encoded CA cert to use when sending
	// requests to the provider.
	ProviderCA string

	// RedirectURL is the redirect_uri sent to the provider and the URL whose
	// path identifies authorization responses.
	RedirectURL string

	// Timeout is the budget for token and userinfo requests.
	Timeout time.Duration

	// NowFunc is a time func that returns the current time.
	NowFunc func() time.Time
}

// NewConfig composes a new config for a provider.
//
// Supported options:
//  WithScopes
//  WithUserInfoEndpoint
//  WithTokenEndpointAuth
//  WithClientAssertionJWT
//  WithProviderCA
//  WithSkipTLSVerify
//  WithTimeout
//  WithNow
func NewConfig(issuer, clientID string, clientSecret ClientSecret, authURL, tokenURL, redirectURL string, opt ...Option) (*Config, error) {
	const op = "NewConfig"
	opts := getConfigOpts(opt...)
	scopes := strutils.RemoveDuplicatesStable(append([]string{ScopeOpenID}, opts.withScopes...), false)
	c := &Config{
		Issuer:                issuer,
		ClientID:              clientID,
		ClientSecret:          clientSecret,
		AuthorizationEndpoint: authURL,
		TokenEndpoint:         tokenURL,
		UserInfoEndpoint:      opts.withUserInfoEndpoint,
		TokenEndpointAuth:     opts.withTokenEndpointAuth,
		ClientAssertion:       opts.withClientAssertion,
		Scope:                 strings.Join(scopes, " "),
		SkipTLSVerify:         opts.withSkipTLSVerify,
		ProviderCA:            opts.withProviderCA,
		RedirectURL:           redirectURL,
		Timeout:               opts.withTimeout,
		NowFunc:               opts.withNowFunc,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid provider config: %w", op, err)
	}
	return c, nil
}

// Validate the provider configuration.  Every problem found is reported, not
// just the first.  It doesn't verify the endpoints are reachable.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return NewError(ErrNilParameter, WithOp(op), WithKind(KindConfig), WithMsg("provider config is nil"))
	}
	var result *multierror.Error
	if c.ClientID == "" {
		result = multierror.Append(result, fmt.Errorf("client id is empty: %w", ErrInvalidParameter))
	}
	switch c.tokenEndpointAuth() {
	case ClientSecretBasic, ClientSecretPost:
		if c.ClientSecret == "" {
			result = multierror.Append(result, fmt.Errorf("client secret is empty: %w", ErrInvalidParameter))
		}
	case ClientSecretJWT, PrivateKeyJWT:
		if c.ClientAssertion == nil {
			result = multierror.Append(result, fmt.Errorf("client assertion is required for %s: %w", c.TokenEndpointAuth, ErrInvalidParameter))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unsupported token endpoint auth method %q: %w", c.TokenEndpointAuth, ErrInvalidParameter))
	}
	if err := validateURL("issuer", c.Issuer); err != nil {
		result = multierror.Append(result, err)
	}
	if err := validateURL("authorization endpoint", c.AuthorizationEndpoint); err != nil {
		result = multierror.Append(result, err)
	}
	if err := validateURL("token endpoint", c.TokenEndpoint); err != nil {
		result = multierror.Append(result, err)
	}
	if err := validateURL("redirect URL", c.RedirectURL); err != nil {
		result = multierror.Append(result, err)
	}
	if c.UserInfoEndpoint != "" {
		if err := validateURL("userinfo endpoint", c.UserInfoEndpoint); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if c.Timeout < 0 {
		result = multierror.Append(result, fmt.Errorf("timeout %s is negative: %w", c.Timeout, ErrInvalidParameter))
	}
	if c.ProviderCA != "" {
		if ok := x509.NewCertPool().AppendCertsFromPEM([]byte(c.ProviderCA)); !ok {
			result = multierror.Append(result, fmt.Errorf("could not parse CA PEM value: %w", ErrInvalidCACert))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return NewError(ErrInvalidParameter, WithOp(op), WithKind(KindConfig), WithWrap(err))
	}
	return nil
}

func validateURL(name, u string) error {
	if u == "" {
		return fmt.Errorf("%s is empty: %w", name, ErrInvalidParameter)
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return fmt.Errorf("%s %q is invalid: %w", name, u, ErrInvalidParameter)
	}
	if !strutils.StrListContains([]string{"https", "http"}, parsed.Scheme) {
		return fmt.Errorf("%s %q scheme is not http or https: %w", name, u, ErrInvalidParameter)
	}
	return nil
}

// Now will return the current time which can be overridden by the NowFunc
func (c *Config) Now() time.Time {
	if c.NowFunc != nil {
		return c.NowFunc()
	}
	return time.Now() // fallback to this default
}

// HttpClient is a helper function that creates a new http client for the
// provider configured.  The client uses the config's Timeout, or
// DefaultTimeout when none is set.
func (c *Config) HttpClient() (*http.Client, error) {
	const op = "Config.HttpClient"
	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	client, err := sdkHttp.NewClient(c.ProviderCA, c.SkipTLSVerify, timeout)
	if err != nil {
		if errors.Is(err, sdkHttp.ErrInvalidCertificatePem) {
			return nil, NewError(ErrInvalidCACert, WithOp(op), WithKind(KindConfig), WithMsg("could not parse CA PEM value"))
		}
		return nil, NewError(ErrInvalidParameter, WithOp(op), WithKind(KindConfig), WithMsg("could not get an http client"), WithWrap(err))
	}
	return client, nil
}

// tokenEndpointAuth returns the configured auth method, defaulting to
// ClientSecretBasic.
func (c *Config) tokenEndpointAuth() TokenEndpointAuth {
	if c.TokenEndpointAuth == "" {
		return ClientSecretBasic
	}
	return c.TokenEndpointAuth
}

// configOptions is the set of available options
type configOptions struct {
	withScopes            []string
	withUserInfoEndpoint  string
	withTokenEndpointAuth TokenEndpointAuth
	withClientAssertion   ClientAssertionJWT
	withProviderCA        string
	withSkipTLSVerify     bool
	withTimeout           time.Duration
	withNowFunc           func() time.Time
}

// configDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func configDefaults() configOptions {
	return configOptions{
		withTokenEndpointAuth: ClientSecretBasic,
		withTimeout:           DefaultTimeout,
	}
}

// getConfigOpts gets the defaults and applies the opt overrides passed
// in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithScopes provides an optional list of scopes requested in addition to
// "openid".
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withScopes = scopes
		}
	}
}

// WithUserInfoEndpoint provides an optional userinfo endpoint for the
// provider's config.
func WithUserInfoEndpoint(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withUserInfoEndpoint = u
		}
	}
}

// WithTokenEndpointAuth provides an optional token endpoint auth method.
func WithTokenEndpointAuth(m TokenEndpointAuth) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withTokenEndpointAuth = m
		}
	}
}

// WithClientAssertionJWT provides the client assertion used to authenticate
// to the token endpoint.  Unless WithTokenEndpointAuth is also used, the auth
// method becomes PrivateKeyJWT.
func WithClientAssertionJWT(j ClientAssertionJWT) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withClientAssertion = j
			if o.withTokenEndpointAuth == ClientSecretBasic {
				o.withTokenEndpointAuth = PrivateKeyJWT
			}
		}
	}
}
