package oidc

import (
	"time"

	"github.com/hashicorp/go-hclog"
	"go.opentelemetry.io/otel/metric"
)

// Option defines a common functional options type
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil {
			continue
		}
		o(opts)
	}
}

// WithExpirySkew provides an optional expiry skew duration for: Request, Tk
func WithExpirySkew(d time.Duration) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *reqOptions:
			v.withExpirySkew = d
		case *tokenOptions:
			v.withExpirySkew = d
		}
	}
}

// WithNow provides an optional func for determining what the current time it
// is for: Config, Request, Tk
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if now == nil {
			return
		}
		switch v := o.(type) {
		case *configOptions:
			v.withNowFunc = now
		case *reqOptions:
			v.withNowFunc = now
		case *tokenOptions:
			v.withNowFunc = now
		}
	}
}

// WithProviderCA provides an optional PEM encoded CA cert used when sending
// requests to the provider for: Config, Discover
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *configOptions:
			v.withProviderCA = cert
		case *discoverOptions:
			v.withProviderCA = cert
		}
	}
}

// WithSkipTLSVerify turns off validation of the provider's TLS certificate
// chain and host name for: Config, Discover
func WithSkipTLSVerify() Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *configOptions:
			v.withSkipTLSVerify = true
		case *discoverOptions:
			v.withSkipTLSVerify = true
		}
	}
}

// WithTimeout provides an optional request timeout for: Config (token and
// userinfo requests), Discover (webfinger requests)
func WithTimeout(d time.Duration) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *configOptions:
			v.withTimeout = d
		case *discoverOptions:
			v.withTimeout = d
		}
	}
}

// WithLogger provides an optional logger for: Provider, Discover
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if l == nil {
			return
		}
		switch v := o.(type) {
		case *providerOptions:
			v.withLogger = l
		case *discoverOptions:
			v.withLogger = l
		}
	}
}

// WithMeterProvider provides an optional otel meter provider used to record
// operation outcomes and failures for: Provider, Discover
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o interface{}) {
		if mp == nil {
			return
		}
		switch v := o.(type) {
		case *providerOptions:
			v.withMeterProvider = mp
		case *discoverOptions:
			v.withMeterProvider = mp
		}
	}
}
