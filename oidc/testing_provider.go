package oidc

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io/ioutil"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openrp/rp/oidc/internal/strutils"
	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"
	josejwt "gopkg.in/square/go-jose.v2/jwt"
)

// TestProvider is a local https server that acts as an OIDC provider for
// tests.  It serves:
//  /authorize                - redirects to the redirect_uri with a code and the state
//  /token                    - the authorization_code grant
//  /userinfo                 - bearer token protected userinfo claims
//  /.well-known/webfinger    - issuer discovery
//  /.well-known/jwks.json    - the keys used to sign id_tokens
//
// Setters allow every reply to be customized so failure modes can be tested.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	jwks *jose.JSONWebKeySet

	mu                  sync.Mutex
	clientID            string
	clientSecret        string
	tokenEndpointAuth   TokenEndpointAuth
	clientAssertionKey  crypto.PublicKey
	expectedAuthCode    string
	allowedRedirectURIs []string

	replySubject     string
	replyAccessToken string
	replyTokenType   string
	replyUserinfo    map[string]interface{}
	replyIDToken     string
	tokenReplyError  *testErrorReply
	customClaims     map[string]interface{}
	customAudience   interface{}
	authorizedParty  string
	issuer           string
	idTokenExpiry    time.Duration
	omitIDToken      bool
	omitAccessToken  bool
	omitTokenType    bool
	disableUserInfo  bool
	webFingerLinks   []interface{}

	webFingerLinksSet bool

	ecdsaPublicKey  string
	ecdsaPrivateKey string

	t *testing.T
}

type testErrorReply struct {
	statusCode int
	code       string
	desc       string
}

// StartTestProvider creates a disposable TestProvider which is stopped when
// the test completes.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	require := require.New(t)

	p := &TestProvider{
		clientID:          "test-client-id",
		clientSecret:      "test-client-secret",
		tokenEndpointAuth: ClientSecretBasic,
		expectedAuthCode:  "test-code",
		replySubject:      "alice@example.com",
		replyAccessToken:  "test-access-token",
		replyTokenType:    "Bearer",
		replyUserinfo: map[string]interface{}{
			"sub":         "alice@example.com",
			"color":       "red",
			"temperature": "76",
			"flavor":      "umami",
		},
		idTokenExpiry: 5 * time.Minute,
		t:             t,
	}
	p.ecdsaPublicKey, p.ecdsaPrivateKey = TestGenerateKeys(t)
	p.jwks = testJWKS(t, p.ecdsaPublicKey)

	p.httpServer = httptest.NewUnstartedServer(p)
	p.httpServer.Config.ErrorLog = log.New(ioutil.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	cert := p.httpServer.Certificate()
	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// Addr returns the current base URL for the test provider's running
// webserver, which is also the issuer of its id_tokens.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// Host returns the test provider's host:port, which can be used as the
// domain of an account for Discover.
func (p *TestProvider) Host() string {
	u, err := url.Parse(p.httpServer.URL)
	require.NoError(p.t, err)
	return u.Host
}

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// HTTPClient returns an http.Client which trusts the test provider's
// certificate and follows redirects.
func (p *TestProvider) HTTPClient() *http.Client { return p.httpServer.Client() }

// SigningKeys returns the test provider's pem-encoded keys used to sign JWTs.
func (p *TestProvider) SigningKeys() (pub, priv string) {
	return p.ecdsaPublicKey, p.ecdsaPrivateKey
}

// ClientCreds returns the client id and secret the provider accepts.
func (p *TestProvider) ClientCreds() (clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clientID, p.clientSecret
}

// SetClientCreds configures the client id and secret the provider accepts.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// SetTokenEndpointAuth configures how the client must authenticate to /token.
func (p *TestProvider) SetTokenEndpointAuth(m TokenEndpointAuth) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenEndpointAuth = m
}

// SetClientAssertionKey configures the public key used to verify
// private_key_jwt client assertions.  client_secret_jwt assertions are
// verified with the client secret.
func (p *TestProvider) SetClientAssertionKey(pub crypto.PublicKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientAssertionKey = pub
}

// ExpectedAuthCode returns the code returned from /authorize and accepted by
// /token.
func (p *TestProvider) ExpectedAuthCode() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.expectedAuthCode
}

// SetExpectedAuthCode configures the auth code to return from /authorize and
// the allowed auth code for /token.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetAllowedRedirectURIs configures the allowed redirect URIs.  When none are
// configured, any redirect_uri is allowed.
func (p *TestProvider) SetAllowedRedirectURIs(uris ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetSubject configures the "sub" claim of issued id_tokens.
func (p *TestProvider) SetSubject(sub string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replySubject = sub
}

// SetCustomClaims lets you set claims to return in the id_token.  They're
// applied last, so they can replace or remove (with a nil value) any of the
// standard claims.
func (p *TestProvider) SetCustomClaims(customClaims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = customClaims
}

// SetCustomAudience configures the "aud" claim of issued id_tokens.  A single
// value is encoded as a string, more than one as an array.
func (p *TestProvider) SetCustomAudience(aud ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch len(aud) {
	case 0:
		p.customAudience = nil
	case 1:
		p.customAudience = aud[0]
	default:
		p.customAudience = aud
	}
}

// SetAuthorizedParty configures the "azp" claim of issued id_tokens.  An
// empty value omits the claim.
func (p *TestProvider) SetAuthorizedParty(azp string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authorizedParty = azp
}

// SetIssuer configures the "iss" claim of issued id_tokens, which defaults to
// Addr().
func (p *TestProvider) SetIssuer(iss string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.issuer = iss
}

// SetIDTokenExpiry configures the "exp" claim of issued id_tokens relative
// to now.  A negative duration issues expired tokens.
func (p *TestProvider) SetIDTokenExpiry(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idTokenExpiry = d
}

// SetIDToken configures a raw id_token to return from /token in place of a
// signed one.
func (p *TestProvider) SetIDToken(raw string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyIDToken = raw
}

// SetAccessToken configures the access_token returned from /token and
// required by /userinfo.
func (p *TestProvider) SetAccessToken(tk string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyAccessToken = tk
}

// SetTokenType configures the token_type returned from /token.
func (p *TestProvider) SetTokenType(typ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyTokenType = typ
}

// SetTokenErrorReply makes /token reply with the status code and an error
// object.
func (p *TestProvider) SetTokenErrorReply(statusCode int, code, desc string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenReplyError = &testErrorReply{statusCode: statusCode, code: code, desc: desc}
}

// OmitIDTokens forces an error state where /token does not return an
// id_token.
func (p *TestProvider) OmitIDTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = true
}

// OmitAccessTokens forces an error state where /token does not return an
// access_token.
func (p *TestProvider) OmitAccessTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitAccessToken = true
}

// OmitTokenType forces an error state where /token does not return a
// token_type.
func (p *TestProvider) OmitTokenType() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitTokenType = true
}

// SetUserInfoReply configures the claims returned from /userinfo.
func (p *TestProvider) SetUserInfoReply(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyUserinfo = claims
}

// DisableUserInfo makes /userinfo return 404.
func (p *TestProvider) DisableUserInfo() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableUserInfo = true
}

// SetWebFingerLinks configures the "links" of the /.well-known/webfinger
// reply.  By default it's a single issuer link to Addr().  A nil value omits
// the member.
func (p *TestProvider) SetWebFingerLinks(links []interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.webFingerLinks = links
	p.webFingerLinksSet = true
}

// IssueIDToken returns a signed id_token built from the provider's current
// settings, the same as /token would return.
func (p *TestProvider) IssueIDToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.issueIDToken()
}

func (p *TestProvider) issueIDToken() string {
	now := time.Now()
	claims := map[string]interface{}{
		"iss": p.Addr(),
		"sub": p.replySubject,
		"aud": p.clientID,
		"iat": now.Unix(),
		"exp": now.Add(p.idTokenExpiry).Unix(),
	}
	if p.issuer != "" {
		claims["iss"] = p.issuer
	}
	if p.customAudience != nil {
		claims["aud"] = p.customAudience
	}
	if p.authorizedParty != "" {
		claims["azp"] = p.authorizedParty
	}
	for k, v := range p.customClaims {
		if v == nil {
			delete(claims, k)
			continue
		}
		claims[k] = v
	}
	return TestSignJWT(p.t, p.ecdsaPrivateKey, claims)
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, errorCode, errorMessage string) {
	qv := req.URL.Query()

	redirectURI := qv.Get("redirect_uri") +
		"?state=" + url.QueryEscape(qv.Get("state")) +
		"&error=" + url.QueryEscape(errorCode)

	if errorMessage != "" {
		redirectURI += "&error_description=" + url.QueryEscape(errorMessage)
	}

	http.Redirect(w, req, redirectURI, http.StatusFound)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) error {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}

	w.WriteHeader(statusCode)
	return p.writeJSON(w, &body)
}

func (p *TestProvider) redirectAllowed(uri string) bool {
	if len(p.allowedRedirectURIs) == 0 {
		return true
	}
	return strutils.StrListContains(p.allowedRedirectURIs, uri)
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch req.URL.Path {
	case "/authorize":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		qv := req.URL.Query()

		redirectURI := qv.Get("redirect_uri")
		if redirectURI == "" || !p.redirectAllowed(redirectURI) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if qv.Get("response_type") != "code" {
			p.writeAuthErrorResponse(w, req, "unsupported_response_type", "")
			return
		}
		if !strutils.StrListContains(strings.Fields(qv.Get("scope")), ScopeOpenID) {
			p.writeAuthErrorResponse(w, req, "invalid_scope", "")
			return
		}
		if qv.Get("client_id") != p.clientID {
			p.writeAuthErrorResponse(w, req, "unauthorized_client", "")
			return
		}
		state := qv.Get("state")
		if state == "" {
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing state parameter")
			return
		}

		sep := "?"
		if strings.Contains(redirectURI, "?") {
			sep = "&"
		}
		redirectURI += sep + "state=" + url.QueryEscape(state) +
			"&code=" + url.QueryEscape(p.expectedAuthCode)

		http.Redirect(w, req, redirectURI, http.StatusFound)

	case "/token":
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := req.ParseForm(); err != nil {
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "unable to parse form")
			return
		}
		if !p.validClientAuth(req) {
			_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
			return
		}
		switch {
		case req.PostForm.Get("grant_type") != "authorization_code":
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "bad grant_type")
			return
		case !p.redirectAllowed(req.PostForm.Get("redirect_uri")):
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "redirect_uri is not allowed")
			return
		case req.PostForm.Get("code") != p.expectedAuthCode:
			_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_grant", "unexpected auth code")
			return
		}
		if p.tokenReplyError != nil {
			_ = p.writeTokenErrorResponse(w, p.tokenReplyError.statusCode, p.tokenReplyError.code, p.tokenReplyError.desc)
			return
		}

		reply := map[string]interface{}{
			"access_token": p.replyAccessToken,
			"token_type":   p.replyTokenType,
			"expires_in":   int(p.idTokenExpiry.Seconds()),
		}
		if p.replyIDToken != "" {
			reply["id_token"] = p.replyIDToken
		} else {
			reply["id_token"] = p.issueIDToken()
		}
		if p.omitIDToken {
			delete(reply, "id_token")
		}
		if p.omitAccessToken {
			delete(reply, "access_token")
		}
		if p.omitTokenType {
			delete(reply, "token_type")
		}
		_ = p.writeJSON(w, reply)

	case "/userinfo":
		if p.disableUserInfo {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if req.Header.Get("Authorization") != "Bearer "+p.replyAccessToken {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_token", "")
			return
		}
		_ = p.writeJSON(w, p.replyUserinfo)

	case "/.well-known/webfinger":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		qv := req.URL.Query()
		resource := qv.Get("resource")
		if !strings.HasPrefix(resource, "acct:") || qv.Get("rel") != IssuerRel {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		reply := map[string]interface{}{
			"subject": resource,
		}
		switch {
		case !p.webFingerLinksSet:
			reply["links"] = []interface{}{
				map[string]interface{}{"rel": IssuerRel, "href": p.Addr()},
			}
		case p.webFingerLinks != nil:
			reply["links"] = p.webFingerLinks
		}
		w.Header().Set("Content-Type", "application/jrd+json")
		_ = p.writeJSON(w, reply)

	case "/.well-known/jwks.json":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = p.writeJSON(w, p.jwks)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// validClientAuth checks the client credentials were sent the configured way,
// and only that way.
func (p *TestProvider) validClientAuth(req *http.Request) bool {
	user, pass, hasBasic := req.BasicAuth()
	formID, formSecret := req.PostForm.Get("client_id"), req.PostForm.Get("client_secret")
	switch p.tokenEndpointAuth {
	case ClientSecretPost:
		return !hasBasic && formID == p.clientID && formSecret == p.clientSecret
	case ClientSecretJWT:
		return !hasBasic && formSecret == "" && formID == p.clientID && p.validClientAssertion(req, []byte(p.clientSecret))
	case PrivateKeyJWT:
		return !hasBasic && formSecret == "" && formID == p.clientID && p.clientAssertionKey != nil && p.validClientAssertion(req, p.clientAssertionKey)
	default:
		return hasBasic && formID == "" && formSecret == "" && user == p.clientID && pass == p.clientSecret
	}
}

// validClientAssertion verifies the request's client_assertion with key.  The
// assertion must identify the client and be intended for the token endpoint.
func (p *TestProvider) validClientAssertion(req *http.Request, key interface{}) bool {
	if req.PostForm.Get("client_assertion_type") != "urn:ietf:params:oauth:client-assertion-type:jwt-bearer" {
		return false
	}
	tk, err := josejwt.ParseSigned(req.PostForm.Get("client_assertion"))
	if err != nil {
		return false
	}
	var claims josejwt.Claims
	if err := tk.Claims(key, &claims); err != nil {
		return false
	}
	err = claims.Validate(josejwt.Expected{
		Issuer:   p.clientID,
		Subject:  p.clientID,
		Audience: josejwt.Audience{p.httpServer.URL + "/token"},
		Time:     time.Now(),
	})
	return err == nil && claims.ID != ""
}

// testJWKS converts a pem-encoded public key into JWKS data suitable for a
// verification endpoint response
func testJWKS(t *testing.T, pubKey string) *jose.JSONWebKeySet {
	t.Helper()
	require := require.New(t)

	block, _ := pem.Decode([]byte(pubKey))
	require.NotNil(block)

	input := block.Bytes

	pub, err := x509.ParsePKIXPublicKey(input)
	require.NoError(err)

	return &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:       pub,
				Algorithm: string(jose.ES256),
				Use:       "sig",
			},
		},
	}
}
