package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"go.opentelemetry.io/otel/metric"

	sdkHttp "github.com/openrp/rp/sdk/http"
)

const (
	// IssuerRel is the WebFinger link relation of an OIDC issuer.
	IssuerRel = "http://openid.net/specs/connect/1.0/issuer"

	// DefaultDiscoveryTimeout is the timeout used for WebFinger requests when
	// none is configured.
	DefaultDiscoveryTimeout = 5 * time.Second

	webFingerPath = "/.well-known/webfinger"
)

// Discover resolves the issuer of an account identifier such as
// "alice@example.com" with a WebFinger request to the host after the
// account's last "@".
//
// The issuer is the href of the first link whose rel is IssuerRel.  When no
// link carries that rel, the href of the first link is used.
//
// Supported options:
//  WithProviderCA
//  WithSkipTLSVerify
//  WithTimeout
//  WithLogger
//  WithMeterProvider
func Discover(ctx context.Context, account string, opt ...Option) (issuer string, e error) {
	const op = "Discover"
	opts := getDiscoverOpts(opt...)
	logger := opts.withLogger.Named("oidc")
	if m, err := newMetrics(opts.withMeterProvider); err == nil {
		defer func() { m.record(ctx, opDiscover, e) }()
	}
	defer func() {
		if e != nil {
			logger.Error("issuer discovery failed", "op", op, "kind", KindOf(e).String(), "error", e)
			return
		}
		logger.Debug("issuer discovered", "op", op, "account", account, "issuer", issuer)
	}()

	i := strings.LastIndex(account, "@")
	if i < 0 || i == len(account)-1 {
		return "", NewError(ErrInvalidAccount, WithOp(op), WithKind(KindConfig), WithMsg("no domain in account %q", account))
	}
	domain := account[i+1:]

	client, err := sdkHttp.NewClient(opts.withProviderCA, opts.withSkipTLSVerify, opts.withTimeout)
	if err != nil {
		if errors.Is(err, sdkHttp.ErrInvalidCertificatePem) {
			return "", NewError(ErrInvalidCACert, WithOp(op), WithKind(KindConfig), WithMsg("could not parse CA PEM value"))
		}
		return "", NewError(ErrInvalidParameter, WithOp(op), WithKind(KindConfig), WithMsg("could not get an http client"), WithWrap(err))
	}

	q := url.Values{}
	q.Set("resource", "acct:"+account)
	q.Set("rel", IssuerRel)
	u := url.URL{
		Scheme:   "https",
		Host:     domain,
		Path:     webFingerPath,
		RawQuery: q.Encode(),
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", NewError(ErrInvalidAccount, WithOp(op), WithKind(KindConfig), WithMsg("unable to create webfinger request for domain %q", domain), WithWrap(err))
	}

	obj, _, err := doJSON(client, req)
	if err != nil {
		return "", fmt.Errorf("%s: webfinger request failed: %w", op, err)
	}
	return issuerFromWebFinger(obj)
}

// issuerFromWebFinger selects the issuer href from a WebFinger response.
func issuerFromWebFinger(obj jsonObject) (string, error) {
	const op = "issuerFromWebFinger"
	links, err := obj.arrayField("links")
	if err != nil {
		return "", NewError(ErrMissingLinks, WithOp(op), WithKind(KindProtocol), WithMsg(`"links" is not an array`), WithWrap(err))
	}
	if len(links) == 0 {
		return "", NewError(ErrMissingLinks, WithOp(op), WithKind(KindProtocol), WithMsg(`"links" is empty`))
	}

	selected := links[0]
	for _, l := range links {
		link, err := decodeObject(l)
		if err != nil {
			continue
		}
		if rel, err := link.stringField("rel"); err == nil && rel == IssuerRel {
			selected = l
			break
		}
	}

	link, err := decodeObject(selected)
	if err != nil {
		return "", NewError(ErrInvalidResponse, WithOp(op), WithKind(KindProtocol), WithMsg("issuer link is not an object"))
	}
	href, err := link.stringField("href")
	if err != nil {
		return "", NewError(ErrInvalidResponse, WithOp(op), WithKind(KindProtocol), WithMsg(`issuer link "href"`), WithWrap(err))
	}
	return href, nil
}

// discoverOptions is the set of available options for Discover.
type discoverOptions struct {
	withProviderCA    string
	withSkipTLSVerify bool
	withTimeout       time.Duration
	withLogger        hclog.Logger
	withMeterProvider metric.MeterProvider
}

// discoverDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func discoverDefaults() discoverOptions {
	return discoverOptions{
		withTimeout: DefaultDiscoveryTimeout,
		withLogger:  hclog.NewNullLogger(),
	}
}

// getDiscoverOpts gets the defaults and applies the opt overrides passed in.
func getDiscoverOpts(opt ...Option) discoverOptions {
	opts := discoverDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
