package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/openrp/rp/oidc"
)

type extendedRequest struct {
	oidc.Request
	t oidc.Token
}

// requestCache holds the in-flight authentication attempts keyed by state.
type requestCache struct {
	m sync.Mutex
	c map[string]extendedRequest
}

func newRequestCache() *requestCache {
	return &requestCache{
		c: map[string]extendedRequest{},
	}
}

// Read implements the callback.RequestReader interface.  Expired requests are
// removed and reported as oidc.ErrNotFound.
func (rc *requestCache) Read(_ context.Context, state string) (oidc.Request, error) {
	const op = "requestCache.Read"
	rc.m.Lock()
	defer rc.m.Unlock()
	if oidcRequest, ok := rc.c[state]; ok {
		if oidcRequest.IsExpired() {
			delete(rc.c, state)
			return nil, fmt.Errorf("%s: state %s expired: %w", op, state, oidc.ErrNotFound)
		}
		return oidcRequest.Request, nil
	}
	return nil, fmt.Errorf("%s: state %s: %w", op, state, oidc.ErrNotFound)
}

func (rc *requestCache) Add(r oidc.Request) {
	rc.m.Lock()
	defer rc.m.Unlock()
	rc.c[r.State()] = extendedRequest{Request: r}
}

func (rc *requestCache) SetToken(state string, t oidc.Token) error {
	const op = "requestCache.SetToken"
	rc.m.Lock()
	defer rc.m.Unlock()
	if oidcRequest, ok := rc.c[state]; ok {
		rc.c[state] = extendedRequest{Request: oidcRequest.Request, t: t}
		return nil
	}
	return fmt.Errorf("%s: %s: %w", op, state, oidc.ErrNotFound)
}

// Token returns the token stored for the state, if any.
func (rc *requestCache) Token(state string) (oidc.Token, bool) {
	rc.m.Lock()
	defer rc.m.Unlock()
	r, ok := rc.c[state]
	if !ok || r.t == nil {
		return nil, false
	}
	return r.t, true
}

func (rc *requestCache) Delete(state string) {
	rc.m.Lock()
	defer rc.m.Unlock()
	delete(rc.c, state)
}
