package callback

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/openrp/rp/oidc"
	"github.com/stretchr/testify/require"
)

// testSuccessFn is a test SuccessResponseFunc
func testSuccessFn(state string, t oidc.Token, w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("login successful: " + t.Subject()))
}

// testFailFn is a test ErrorResponseFunc.  Callback errors are returned with
// their kind as the error code.
func testFailFn(state string, r *AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request) {
	if e != nil {
		w.WriteHeader(http.StatusInternalServerError)
		j, _ := json.Marshal(&AuthenErrorResponse{
			Error:       "internal-callback-error:" + oidc.KindOf(e).String(),
			Description: e.Error(),
		})
		_, _ = w.Write(j)
		return
	}
	if r != nil {
		w.WriteHeader(http.StatusUnauthorized)
		j, _ := json.Marshal(r)
		_, _ = w.Write(j)
		return
	}
	w.WriteHeader(http.StatusInternalServerError)
	j, _ := json.Marshal(&AuthenErrorResponse{
		Error: "unknown-callback-error",
	})
	_, _ = w.Write(j)
}

// testNewProvider creates a new Provider for the TestProvider (tp) which
// redirects to redirectURL.
func testNewProvider(t *testing.T, tp *oidc.TestProvider, redirectURL string) *oidc.Provider {
	t.Helper()
	require := require.New(t)
	clientID, clientSecret := tp.ClientCreds()
	c, err := oidc.NewConfig(
		tp.Addr(),
		clientID,
		oidc.ClientSecret(clientSecret),
		tp.Addr()+"/authorize",
		tp.Addr()+"/token",
		redirectURL,
		oidc.WithProviderCA(tp.CACert()),
	)
	require.NoError(err)
	p, err := oidc.NewProvider(c)
	require.NoError(err)
	return p
}

// testNilRequestReader is a RequestReader which never finds a request.
type testNilRequestReader struct{}

func (*testNilRequestReader) Read(context.Context, string) (oidc.Request, error) {
	return nil, nil
}

// testFailingRequestReader is a RequestReader whose storage is unavailable.
type testFailingRequestReader struct{ err error }

func (r *testFailingRequestReader) Read(context.Context, string) (oidc.Request, error) {
	return nil, r.err
}
