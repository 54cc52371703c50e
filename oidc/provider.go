package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/openrp/rp/jwt"
	"github.com/openrp/rp/oidc/clientassertion"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/oauth2"
	"golang.org/x/text/language"
)

// Provider provides integration with an OIDC provider using the 3-legged
// authorization code flow.  A Provider is read-only after NewProvider returns
// and is safe for concurrent use by independent authentication attempts.
//
// The id_token signature is not verified unless a KeySet is provided with
// WithKeySet.  Every id_token claim check is always performed.
type Provider struct {
	config  *Config
	client  *http.Client
	keySet  jwt.KeySet
	logger  hclog.Logger
	metrics *metrics
}

// NewProvider creates and initializes a Provider.  No requests are made to the
// provider.
//
// Supported options:
//  WithLogger
//  WithMeterProvider
//  WithKeySet
func NewProvider(c *Config, opt ...Option) (*Provider, error) {
	const op = "NewProvider"
	if c == nil {
		return nil, NewError(ErrNilParameter, WithOp(op), WithKind(KindConfig), WithMsg("provider config is nil"))
	}
	if err := c.Validate(); err != nil {
		return nil, NewError(ErrInvalidParameter, WithOp(op), WithKind(KindConfig), WithMsg("provider config is invalid"), WithWrap(err))
	}
	opts := getProviderOpts(opt...)

	client, err := c.HttpClient()
	if err != nil {
		return nil, NewError(ErrInvalidParameter, WithOp(op), WithKind(KindConfig), WithMsg("unable to create http client"), WithWrap(err))
	}
	m, err := newMetrics(opts.withMeterProvider)
	if err != nil {
		return nil, NewError(ErrInvalidParameter, WithOp(op), WithKind(KindConfig), WithMsg("unable to create metrics"), WithWrap(err))
	}
	return &Provider{
		config:  c,
		client:  client,
		keySet:  opts.withKeySet,
		logger:  opts.withLogger.Named("oidc"),
		metrics: m,
	}, nil
}

// Config returns the provider's config.  It must not be modified.
func (p *Provider) Config() *Config { return p.config }

// AuthURL will generate a URL the caller can use to kick off an OIDC
// authorization code flow with the provider.  The URL is the provider's
// authorization endpoint with response_type, scope, client_id, state and
// redirect_uri appended.  The Request's RedirectURL is used as the
// redirect_uri, falling back to the config's RedirectURL.
//
// See NewRequest() to create an oidc flow Request with a valid State that
// will uniquely identify the user's authentication attempt throughout the
// flow.
//
// Supported options:
//  WithUILocales
func (p *Provider) AuthURL(ctx context.Context, oidcRequest Request, opt ...Option) (authURL string, e error) {
	const op = "Provider.AuthURL"
	defer func() { p.finish(ctx, opAuthURL, op, e) }()
	if oidcRequest == nil {
		return "", NewError(ErrNilParameter, WithOp(op), WithKind(KindConfig), WithMsg("request is nil"))
	}
	if oidcRequest.State() == "" {
		return "", NewError(ErrInvalidParameter, WithOp(op), WithKind(KindConfig), WithMsg("request state is empty"))
	}
	opts := getAuthURLOpts(opt...)

	var b strings.Builder
	b.WriteString(p.config.AuthorizationEndpoint)
	if strings.Contains(p.config.AuthorizationEndpoint, "?") {
		b.WriteString("&")
	} else {
		b.WriteString("?")
	}
	b.WriteString("response_type=code")
	b.WriteString("&scope=" + escape(p.scope()))
	b.WriteString("&client_id=" + escape(p.config.ClientID))
	b.WriteString("&state=" + escape(oidcRequest.State()))
	b.WriteString("&redirect_uri=" + escape(p.redirectURL(oidcRequest)))
	if len(opts.withUILocales) > 0 {
		locales := make([]string, 0, len(opts.withUILocales))
		for _, tag := range opts.withUILocales {
			locales = append(locales, tag.String())
		}
		b.WriteString("&ui_locales=" + escape(strings.Join(locales, " ")))
	}
	return b.String(), nil
}

// IsAuthorizationResponse reports whether req looks like the provider's
// authorization response for this provider's configured RedirectURL.  See
// the package function IsAuthorizationResponse.
func (p *Provider) IsAuthorizationResponse(req *http.Request) bool {
	return IsAuthorizationResponse(req, p.config.RedirectURL)
}

// IsAuthorizationResponse reports whether req's path equals redirectURL's path
// and req carries both a "code" and a "state" parameter, in its query or its
// POST form.  The parameter values are not interpreted and the state is not
// compared to any Request.
func IsAuthorizationResponse(req *http.Request, redirectURL string) bool {
	if req == nil || req.URL == nil {
		return false
	}
	u, err := url.Parse(redirectURL)
	if err != nil {
		return false
	}
	if normalizePath(req.URL.Path) != normalizePath(u.Path) {
		return false
	}
	if err := req.ParseForm(); err != nil {
		return false
	}
	return req.Form.Has("code") && req.Form.Has("state")
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

// Exchange will request a token from the provider's token endpoint, using the
// authorizationCode and authorizationState it received in an earlier
// successful authorization response.
//
// It first validates the authorizationState against the Request for the
// user's authentication attempt, and that the Request hasn't expired.  The
// returned Token's id_token has been verified with VerifyIDToken.
func (p *Provider) Exchange(ctx context.Context, oidcRequest Request, authorizationState, authorizationCode string) (t *Tk, e error) {
	const op = "Provider.Exchange"
	defer func() { p.finish(ctx, opExchange, op, e) }()
	if oidcRequest == nil {
		return nil, NewError(ErrNilParameter, WithOp(op), WithKind(KindConfig), WithMsg("request is nil"))
	}
	if oidcRequest.State() != authorizationState {
		return nil, NewError(ErrResponseStateInvalid, WithOp(op), WithKind(KindValidation), WithMsg("authentication request state and authorization state are not equal"))
	}
	if oidcRequest.IsExpired() {
		return nil, NewError(ErrExpiredRequest, WithOp(op), WithKind(KindValidation), WithMsg("authentication request is expired"))
	}
	if authorizationCode == "" {
		return nil, NewError(ErrInvalidParameter, WithOp(op), WithKind(KindProtocol), WithMsg("authorization code is empty"))
	}

	resp, err := p.exchangeCode(ctx, authorizationCode, p.redirectURL(oidcRequest))
	if err != nil {
		return nil, err
	}
	claims, err := p.verifyIDToken(ctx, resp.idToken)
	if err != nil {
		return nil, NewError(ErrIdTokenVerificationFail, WithOp(op), WithWrap(err))
	}
	tk, err := NewToken(resp.accessToken, resp.tokenType, resp.idToken, claims, WithNow(p.config.NowFunc))
	if err != nil {
		return nil, NewError(ErrInvalidResponse, WithOp(op), WithWrap(err))
	}
	return tk, nil
}

// tokenResponse is the token endpoint's successful response.
type tokenResponse struct {
	accessToken AccessToken
	tokenType   string
	idToken     IDToken
}

// exchangeCode performs the authorization_code grant.
func (p *Provider) exchangeCode(ctx context.Context, code, redirectURL string) (*tokenResponse, error) {
	const op = "Provider.exchangeCode"
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURL)
	authMethod := p.config.tokenEndpointAuth()
	switch authMethod {
	case ClientSecretPost:
		form.Set("client_id", p.config.ClientID)
		form.Set("client_secret", string(p.config.ClientSecret))
	case ClientSecretJWT, PrivateKeyJWT:
		if p.config.ClientAssertion == nil {
			return nil, NewError(ErrInvalidParameter, WithOp(op), WithKind(KindConfig), WithMsg("client assertion is required for %s", authMethod))
		}
		assertion, err := p.config.ClientAssertion.Serialize()
		if err != nil {
			return nil, NewError(ErrInvalidParameter, WithOp(op), WithKind(KindConfig), WithMsg("unable to create client assertion"), WithWrap(err))
		}
		form.Set("client_id", p.config.ClientID)
		form.Set("client_assertion_type", clientassertion.JWTTypeParam)
		form.Set("client_assertion", assertion)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, NewError(ErrInvalidParameter, WithOp(op), WithKind(KindConfig), WithMsg("unable to create token request"), WithWrap(err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if authMethod == ClientSecretBasic {
		req.SetBasicAuth(p.config.ClientID, string(p.config.ClientSecret))
	}

	obj, _, err := doJSON(p.client, req)
	if err != nil {
		return nil, fmt.Errorf("%s: token request failed: %w", op, err)
	}

	accessToken, err := requiredString(op, obj, "access_token", ErrMissingAccessToken)
	if err != nil {
		return nil, err
	}
	tokenType, err := requiredString(op, obj, "token_type", ErrMissingTokenType)
	if err != nil {
		return nil, err
	}
	idToken, err := requiredString(op, obj, "id_token", ErrMissingIdToken)
	if err != nil {
		return nil, err
	}
	// the token_type only matters when it's used to call userinfo
	if p.config.UserInfoEndpoint != "" && !strings.EqualFold(tokenType, "Bearer") {
		return nil, NewError(ErrUnsupportedTokenType, WithOp(op), WithKind(KindProtocol), WithMsg("token_type %q is not Bearer", tokenType))
	}
	return &tokenResponse{
		accessToken: AccessToken(accessToken),
		tokenType:   tokenType,
		idToken:     IDToken(idToken),
	}, nil
}

// requiredString returns a required string member of a provider response.
func requiredString(op string, obj jsonObject, name string, missing error) (string, error) {
	s, err := obj.stringField(name)
	switch {
	case errors.Is(err, ErrMissingClaim):
		return "", NewError(missing, WithOp(op), WithKind(KindProtocol))
	case err != nil:
		return "", NewError(ErrInvalidResponse, WithOp(op), WithKind(KindProtocol), WithMsg("%s is not a string", name))
	}
	return s, nil
}

// VerifyIDToken will verify the inbound IDToken and return its claims.
//
// The token must be three base64url segments, with a JSON object header and
// payload.  When the provider has a KeySet the signature is verified first.
// Then the claims are checked: "iss" must match the config's Issuer (a single
// trailing slash difference is tolerated), "exp" must not be in the past,
// "azp" when present must equal the ClientID, "aud" must be or contain the
// ClientID, and "sub" must be a string.
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#IDTokenValidation
func (p *Provider) VerifyIDToken(ctx context.Context, t IDToken) (c *IDTokenClaims, e error) {
	const op = "Provider.VerifyIDToken"
	defer func() { p.finish(ctx, opVerifyIDToken, op, e) }()
	return p.verifyIDToken(ctx, t)
}

func (p *Provider) verifyIDToken(ctx context.Context, t IDToken) (*IDTokenClaims, error) {
	const op = "Provider.verifyIDToken"
	if t == "" {
		return nil, NewError(ErrMalformedToken, WithOp(op), WithKind(KindParse), WithMsg("id_token is empty"))
	}
	parsed, err := parseIDToken(string(t))
	if err != nil {
		return nil, err
	}
	if p.keySet != nil {
		if _, err := p.keySet.VerifySignature(ctx, string(t)); err != nil {
			return nil, NewError(ErrInvalidSignature, WithOp(op), WithKind(KindValidation), WithWrap(err))
		}
	}
	claims, err := decodeClaims(parsed.payload, parsed.rawPayload)
	if err != nil {
		return nil, err
	}
	if err := validateClaims(claims, p.config, p.config.Now(), p.logger); err != nil {
		return nil, err
	}
	return claims, nil
}

// UserInfo gets the UserInfo claims from the provider's userinfo endpoint
// using the token produced by the tokenSource, and unmarshals them into
// claims.  The claims are returned as-is, without any validation.
func (p *Provider) UserInfo(ctx context.Context, tokenSource oauth2.TokenSource, claims interface{}) (e error) {
	const op = "Provider.UserInfo"
	defer func() { p.finish(ctx, opUserInfo, op, e) }()
	if p.config.UserInfoEndpoint == "" {
		return NewError(ErrMissingEndpoint, WithOp(op), WithKind(KindConfig), WithMsg("userinfo endpoint is not configured"))
	}
	if tokenSource == nil {
		return NewError(ErrInvalidParameter, WithOp(op), WithKind(KindConfig), WithMsg("token source is nil"))
	}
	if claims == nil {
		return NewError(ErrNilParameter, WithOp(op), WithKind(KindConfig), WithMsg("claims interface is nil"))
	}
	tk, err := tokenSource.Token()
	if err != nil {
		return NewError(ErrUserInfoFailed, WithOp(op), WithMsg("unable to get token"), WithWrap(err))
	}
	if tk.AccessToken == "" {
		return NewError(ErrMissingAccessToken, WithOp(op), WithKind(KindConfig))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.UserInfoEndpoint, nil)
	if err != nil {
		return NewError(ErrUserInfoFailed, WithOp(op), WithKind(KindConfig), WithMsg("unable to create userinfo request"), WithWrap(err))
	}
	req.Header.Set("Authorization", "Bearer "+tk.AccessToken)

	_, body, err := doJSON(p.client, req)
	if err != nil {
		return NewError(ErrUserInfoFailed, WithOp(op), WithWrap(err))
	}
	if err := json.Unmarshal(body, claims); err != nil {
		return NewError(ErrUserInfoFailed, WithOp(op), WithKind(KindProtocol), WithMsg("unable to unmarshal claims"), WithWrap(err))
	}
	return nil
}

// finish logs and records the outcome of an operation.
func (p *Provider) finish(ctx context.Context, operation, op string, err error) {
	p.metrics.record(ctx, operation, err)
	if err != nil {
		p.logger.Error("operation failed", "op", op, "kind", KindOf(err).String(), "error", err)
		return
	}
	p.logger.Debug("operation succeeded", "op", op)
}

func (p *Provider) scope() string {
	if p.config.Scope == "" {
		return ScopeOpenID
	}
	return p.config.Scope
}

func (p *Provider) redirectURL(r Request) string {
	if r.RedirectURL() != "" {
		return r.RedirectURL()
	}
	return p.config.RedirectURL
}

// escape percent-encodes s leaving only unreserved characters as-is, so a
// space is %20 rather than +.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// providerOptions is the set of available options for NewProvider.
type providerOptions struct {
	withLogger        hclog.Logger
	withMeterProvider metric.MeterProvider
	withKeySet        jwt.KeySet
}

// providerDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func providerDefaults() providerOptions {
	return providerOptions{
		withLogger: hclog.NewNullLogger(),
	}
}

// getProviderOpts gets the defaults and applies the opt overrides passed in.
func getProviderOpts(opt ...Option) providerOptions {
	opts := providerDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithKeySet provides an optional KeySet used to verify id_token signatures.
func WithKeySet(ks jwt.KeySet) Option {
	return func(o interface{}) {
		if o, ok := o.(*providerOptions); ok {
			o.withKeySet = ks
		}
	}
}

// authURLOptions is the set of available options for Provider.AuthURL.
type authURLOptions struct {
	withUILocales []language.Tag
}

func authURLDefaults() authURLOptions {
	return authURLOptions{}
}

func getAuthURLOpts(opt ...Option) authURLOptions {
	opts := authURLDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithUILocales provides an optional list of preferred languages and scripts
// for the provider's user interface, sent as the ui_locales parameter.
func WithUILocales(locales ...language.Tag) Option {
	return func(o interface{}) {
		if o, ok := o.(*authURLOptions); ok {
			o.withUILocales = locales
		}
	}
}
