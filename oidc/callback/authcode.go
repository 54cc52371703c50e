package callback

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openrp/rp/oidc"
)

// AuthCode creates an oidc authorization code callback handler which
// uses a RequestReader to read existing oidc.Request(s) via the request's
// oidc "state" parameter as a key for the lookup.
//
// The handler only acts on requests that p.IsAuthorizationResponse accepts;
// anything else is passed to the ErrorResponseFunc.  The code exchange
// validates the state and the Request's expiration.
//
// The SuccessResponseFunc is used to create a response when callback is
// successful. The ErrorResponseFunc is to create a response when the callback
// fails.
func AuthCode(ctx context.Context, p *oidc.Provider, rr RequestReader, sFn SuccessResponseFunc, eFn ErrorResponseFunc) (http.HandlerFunc, error) {
	const op = "callback.AuthCode"
	switch {
	case p == nil:
		return nil, oidc.NewError(oidc.ErrInvalidParameter, oidc.WithOp(op), oidc.WithKind(oidc.KindConfig), oidc.WithMsg("provider is nil"))
	case rr == nil:
		return nil, oidc.NewError(oidc.ErrInvalidParameter, oidc.WithOp(op), oidc.WithKind(oidc.KindConfig), oidc.WithMsg("request reader is nil"))
	case sFn == nil:
		return nil, oidc.NewError(oidc.ErrInvalidParameter, oidc.WithOp(op), oidc.WithKind(oidc.KindConfig), oidc.WithMsg("success response func is nil"))
	case eFn == nil:
		return nil, oidc.NewError(oidc.ErrInvalidParameter, oidc.WithOp(op), oidc.WithKind(oidc.KindConfig), oidc.WithMsg("error response func is nil"))
	}

	return func(w http.ResponseWriter, req *http.Request) {
		// get parameters from either the body or query parameters.
		// FormValue prioritizes body values, if found
		reqState := req.FormValue("state")

		if err := req.FormValue("error"); err != "" {
			reqError := &AuthenErrorResponse{
				Error:       err,
				Description: req.FormValue("error_description"),
				Uri:         req.FormValue("error_uri"),
			}
			eFn(reqState, reqError, nil, w, req)
			return
		}

		if !p.IsAuthorizationResponse(req) {
			responseErr := oidc.NewError(oidc.ErrInvalidParameter, oidc.WithOp(op), oidc.WithKind(oidc.KindProtocol), oidc.WithMsg("not an authorization response"))
			eFn(reqState, nil, responseErr, w, req)
			return
		}
		reqCode := req.FormValue("code")

		oidcRequest, err := rr.Read(ctx, reqState)
		if err != nil {
			kind := oidc.KindUnknown
			if errors.Is(err, oidc.ErrNotFound) {
				kind = oidc.KindValidation
			}
			responseErr := oidc.NewError(oidc.ErrNotFound, oidc.WithOp(op), oidc.WithKind(kind), oidc.WithMsg("unable to read auth code request"), oidc.WithWrap(err))
			eFn(reqState, nil, responseErr, w, req)
			return
		}
		if oidcRequest == nil {
			// could have expired or it could be invalid... no way to known for sure
			responseErr := oidc.NewError(oidc.ErrNotFound, oidc.WithOp(op), oidc.WithKind(oidc.KindValidation), oidc.WithMsg("auth code request not found"))
			eFn(reqState, nil, responseErr, w, req)
			return
		}

		responseToken, err := p.Exchange(ctx, oidcRequest, reqState, reqCode)
		if err != nil {
			eFn(reqState, nil, fmt.Errorf("%s: unable to exchange authorization code: %w", op, err), w, req)
			return
		}
		sFn(reqState, responseToken, w, req)
	}, nil
}
