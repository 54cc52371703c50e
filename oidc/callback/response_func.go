package callback

import (
	"net/http"

	"github.com/openrp/rp/oidc"
)

// SuccessResponseFunc is used by Callbacks to create a http response when the
// callback is successful.
//
// The state parameter is the state of the authorization response. The
// oidc.Token is the result of a successful code exchange and carries the
// verified id_token claims, so t.Subject() is the authenticated user.  The
// function should use the http.ResponseWriter to send back whatever content
// it wishes to the client that originated the oidc flow, typically a redirect
// to the Request's OriginalURL.
type SuccessResponseFunc func(state string, t oidc.Token, w http.ResponseWriter, req *http.Request)

// ErrorResponseFunc is used by Callbacks to create a http response when the
// callback fails.
//
// The function receives the state of the authorization response.  Either
// respErr is set, when the provider returned an error response, or e is set
// with the error raised while processing the callback; oidc.KindOf(e) tells
// a forged or stale response (validation) from an unreachable provider
// (network).
type ErrorResponseFunc func(state string, respErr *AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request)

// AuthenErrorResponse represents Oauth2 error responses.  See:
// https://openid.net/specs/openid-connect-core-1_0.html#AuthError
type AuthenErrorResponse struct {
	Error       string
	Description string
	Uri         string
}
