package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/openrp/rp/oidc"
	"github.com/openrp/rp/oidc/callback"
	"golang.org/x/text/language"
)

const stateCookie = "rp_state"

func loginHandler(ctx context.Context, p *oidc.Provider, rc *requestCache, timeout time.Duration, locales []language.Tag, logger hclog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		oidcRequest, err := oidc.NewRequest(timeout, "", r.URL.Query().Get("return_to"))
		if err != nil {
			logger.Error("unable to create request", "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		rc.Add(oidcRequest)

		var opts []oidc.Option
		if len(locales) > 0 {
			opts = append(opts, oidc.WithUILocales(locales...))
		}
		authURL, err := p.AuthURL(ctx, oidcRequest, opts...)
		if err != nil {
			logger.Error("unable to build auth url", "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

func callbackHandler(ctx context.Context, p *oidc.Provider, rc *requestCache, logger hclog.Logger) (http.HandlerFunc, error) {
	return callback.AuthCode(ctx, p, rc, successFn(rc, logger), failedFn(rc, logger))
}

func successFn(rc *requestCache, logger hclog.Logger) callback.SuccessResponseFunc {
	return func(state string, t oidc.Token, w http.ResponseWriter, req *http.Request) {
		if err := rc.SetToken(state, t); err != nil {
			logger.Error("unable to store token", "state", state, "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     stateCookie,
			Value:    state,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		logger.Info("login successful", "subject", t.Subject())
		http.Redirect(w, req, "/userinfo", http.StatusFound)
	}
}

func failedFn(rc *requestCache, logger hclog.Logger) callback.ErrorResponseFunc {
	return func(state string, r *callback.AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request) {
		defer rc.Delete(state)
		var status int
		var body interface{}
		switch {
		case r != nil:
			logger.Warn("provider returned an error", "state", state, "error", r.Error, "description", r.Description)
			status, body = http.StatusUnauthorized, r
		case e != nil:
			kind := oidc.KindOf(e)
			logger.Error("callback failed", "state", state, "kind", kind.String(), "error", e)
			status = http.StatusUnauthorized
			if kind == oidc.KindNetwork || kind == oidc.KindConfig {
				status = http.StatusBadGateway
			}
			body = &callback.AuthenErrorResponse{Error: "callback_failed:" + kind.String(), Description: e.Error()}
		default:
			status, body = http.StatusInternalServerError, &callback.AuthenErrorResponse{Error: "unknown"}
		}
		writeJSON(w, status, body)
	}
}

func userInfoHandler(ctx context.Context, p *oidc.Provider, rc *requestCache, logger hclog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(stateCookie)
		if err != nil {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		t, ok := rc.Token(c.Value)
		if !ok {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		resp := map[string]interface{}{
			"sub":    t.Subject(),
			"expiry": t.Expiry(),
		}
		if p.Config().UserInfoEndpoint != "" {
			ts, ok := t.(oidc.StaticTokenSource)
			if !ok {
				http.Error(w, "token is not a token source", http.StatusInternalServerError)
				return
			}
			var info map[string]interface{}
			if err := p.UserInfo(ctx, ts.StaticTokenSource(), &info); err != nil {
				logger.Error("userinfo failed", "kind", oidc.KindOf(err).String(), "error", err)
				http.Error(w, fmt.Sprintf("userinfo: %s", err), http.StatusBadGateway)
				return
			}
			resp["userinfo"] = info
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
