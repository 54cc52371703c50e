package callback

import (
	"context"

	"github.com/openrp/rp/oidc"
)

// RequestReader defines an interface for finding and reading an oidc.Request
//
// Implementations must be concurrently safe, since the reader will likely be
// used within a concurrent http.Handler
type RequestReader interface {
	// Read an existing Request entry.  The returned request's State()
	// must match the state used to look it up. Implementations must be
	// concurrently safe, which likely means returning a deep copy.
	// An unknown state is reported with oidc.ErrNotFound.
	Read(ctx context.Context, state string) (oidc.Request, error)
}

// SingleRequestReader implements the RequestReader interface for a single request.
// It is concurrently safe.
type SingleRequestReader struct {
	Request oidc.Request
}

// Read will return its single request if the state matches its
// Request.State(), otherwise it returns oidc.ErrNotFound.
func (sr *SingleRequestReader) Read(_ context.Context, state string) (oidc.Request, error) {
	if sr.Request == nil || sr.Request.State() != state {
		return nil, oidc.ErrNotFound
	}
	return sr.Request, nil
}
