package http

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-cleanhttp"
)

var (
	ErrInvalidCertificatePem = errors.New("invalid certificate PEM")
)

// NewClient creates a new http client which will use the optional CA certificate PEM
// if provided, otherwise it will use the installed system CA chain. When
// skipVerify is true the server's certificate chain and host name are not
// verified. A timeout of zero means no client side timeout.
func NewClient(caPEM string, skipVerify bool, timeout time.Duration) (*http.Client, error) {
	tr := cleanhttp.DefaultPooledTransport()

	if caPEM != "" || skipVerify {
		tlsConfig := &tls.Config{
			// #nosec G402 -- only set when the operator turned off server validation
			InsecureSkipVerify: skipVerify,
		}
		if caPEM != "" {
			certPool := x509.NewCertPool()
			if ok := certPool.AppendCertsFromPEM([]byte(caPEM)); !ok {
				return nil, ErrInvalidCertificatePem
			}
			tlsConfig.RootCAs = certPool
		}
		tr.TLSClientConfig = tlsConfig
	}

	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

// OidcClientContext is a helper function that returns a new Context that
// carries the provided HTTP client. This method sets the same context key used
// by the github.com/coreos/go-oidc and golang.org/x/oauth2 packages, so the
// returned context works for those packages as well.
func OidcClientContext(ctx context.Context, client *http.Client) context.Context {
	// simple to implement as a wrapper for the coreos package
	return oidc.ClientContext(ctx, client)
}
