package oidc_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/openrp/rp/oidc"
)

func Example() {
	// Create a new Config
	pc, err := oidc.NewConfig(
		"https://your-issuer.com/",
		"your_client_id",
		"your_client_secret",
		"https://your-issuer.com/authorize",
		"https://your-issuer.com/token",
		"https://your_redirect_url/callback",
		oidc.WithUserInfoEndpoint("https://your-issuer.com/userinfo"),
	)
	if err != nil {
		// handle error
	}

	// Create a provider
	p, err := oidc.NewProvider(pc)
	if err != nil {
		// handle error
	}

	// Create a Request for a user's authentication attempt.
	oidcRequest, err := oidc.NewRequest(2*time.Minute, "", "")
	if err != nil {
		// handle error
	}

	// Create an auth URL
	authURL, err := p.AuthURL(context.Background(), oidcRequest)
	if err != nil {
		// handle error
	}
	fmt.Println("open url to kick-off authentication: ", authURL)

	// Create a http.Handler for OIDC authentication response redirects
	callbackHandler := func(w http.ResponseWriter, r *http.Request) {
		if !p.IsAuthorizationResponse(r) {
			http.Error(w, "not an authorization response", http.StatusBadRequest)
			return
		}
		// Exchange a successful authentication's authorization code and
		// authorization state (received in a callback) for a verified Token.
		t, err := p.Exchange(r.Context(), oidcRequest, r.FormValue("state"), r.FormValue("code"))
		if err != nil {
			// handle error
		}

		// Get the user's claims via the provider's UserInfo endpoint
		var infoClaims map[string]interface{}
		if err := p.UserInfo(r.Context(), t.StaticTokenSource(), &infoClaims); err != nil {
			// handle error
		}
		fmt.Println("subject: ", t.Subject())
		fmt.Println("UserInfo claims: ", infoClaims)
	}
	http.HandleFunc("/callback", callbackHandler)
}

func ExampleNewConfig() {
	// Create a new Config
	pc, err := oidc.NewConfig(
		"https://your_issuer/",
		"your_client_id",
		"your_client_secret",
		"https://your_issuer/authorize",
		"https://your_issuer/token",
		"https://your_redirect_url/callback",
		oidc.WithScopes("email", "profile"),
		oidc.WithTokenEndpointAuth(oidc.ClientSecretPost),
	)
	if err != nil {
		// handle error
	}
	fmt.Println(pc.Scope)
	fmt.Println(pc.ClientSecret)

	// Output:
	// openid email profile
	// [REDACTED: client secret]
}

func ExampleProvider_AuthURL() {
	pc, err := oidc.NewConfig(
		"https://your_issuer/",
		"your_client_id",
		"your_client_secret",
		"https://your_issuer/authorize",
		"https://your_issuer/token",
		"https://your_redirect_url/callback",
	)
	if err != nil {
		// handle error
	}
	p, err := oidc.NewProvider(pc)
	if err != nil {
		// handle error
	}

	// A fixed state is only used here to keep the output stable, the
	// default is a random state.
	oidcRequest, err := oidc.NewRequest(2*time.Minute, "", "", oidc.WithState("st_example"))
	if err != nil {
		// handle error
	}
	authURL, err := p.AuthURL(context.Background(), oidcRequest)
	if err != nil {
		// handle error
	}
	fmt.Println(authURL)

	// Output:
	// https://your_issuer/authorize?response_type=code&scope=openid&client_id=your_client_id&state=st_example&redirect_uri=https%3A%2F%2Fyour_redirect_url%2Fcallback
}

func ExampleIsAuthorizationResponse() {
	r := httptest.NewRequest(http.MethodGet, "/callback?code=abc&state=st_example", nil)
	fmt.Println(oidc.IsAuthorizationResponse(r, "https://your_redirect_url/callback"))

	r = httptest.NewRequest(http.MethodGet, "/callback?error=access_denied&state=st_example", nil)
	fmt.Println(oidc.IsAuthorizationResponse(r, "https://your_redirect_url/callback"))

	// Output:
	// true
	// false
}

func ExampleKindOf() {
	_, err := oidc.Discover(context.Background(), "not-an-account")
	fmt.Println(oidc.KindOf(err))
	fmt.Println(errors.Is(err, oidc.ErrInvalidAccount))

	// Output:
	// config
	// true
}

func ExampleDiscover() {
	issuer, err := oidc.Discover(context.Background(), "alice@example.com")
	if err != nil {
		// handle error
	}
	fmt.Println("issuer: ", issuer)
}
