package http

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testServerCA(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	return string(pemEncodeCert(srv.Certificate().Raw))
}

func TestNewClient(t *testing.T) {
	t.Parallel()
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	tests := []struct {
		name       string
		caPEM      string
		skipVerify bool
		timeout    time.Duration
		wantErr    bool
		wantIsErr  error
		wantGetErr bool
	}{
		{
			name:  "valid-ca",
			caPEM: testServerCA(t, srv),
		},
		{
			name:       "skip-verify",
			skipVerify: true,
			timeout:    5 * time.Second,
		},
		{
			name:       "system-roots",
			wantGetErr: true,
		},
		{
			name:      "invalid-ca",
			caPEM:     "not a certificate",
			wantErr:   true,
			wantIsErr: ErrInvalidCertificatePem,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			client, err := NewClient(tt.caPEM, tt.skipVerify, tt.timeout)
			if tt.wantErr {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			assert.Equal(tt.timeout, client.Timeout)

			resp, err := client.Get(srv.URL)
			if tt.wantGetErr {
				require.Error(err)
				return
			}
			require.NoError(err)
			defer resp.Body.Close()
			assert.Equal(http.StatusOK, resp.StatusCode)
		})
	}
	t.Run("skip-verify-config", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		client, err := NewClient("", true, 0)
		require.NoError(err)
		tr, ok := client.Transport.(*http.Transport)
		require.True(ok)
		require.NotNil(tr.TLSClientConfig)
		assert.True(tr.TLSClientConfig.InsecureSkipVerify)
	})
	t.Run("default-has-no-tls-config", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		client, err := NewClient("", false, 0)
		require.NoError(err)
		tr, ok := client.Transport.(*http.Transport)
		require.True(ok)
		assert.Equal((*tls.Config)(nil), tr.TLSClientConfig)
	})
}

func TestOidcClientContext(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	client := &http.Client{}
	ctx := OidcClientContext(context.Background(), client)
	got, ok := ctx.Value(oauth2.HTTPClient).(*http.Client)
	assert.True(ok)
	assert.Equal(client, got)
}
