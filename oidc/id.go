package oidc

import "github.com/openrp/rp/sdk/id"

// DefaultIDLength is the length of a generated ID without its prefix.
const DefaultIDLength = 32

// NewID generates a ID with an optional prefix.  The ID generated is suitable
// for a Request's State.
//
// Supported options:
//  WithPrefix
func NewID(opt ...Option) (string, error) {
	const op = "NewID"
	opts := getIDOpts(opt...)
	s, err := id.New(opts.withPrefix)
	if err != nil {
		return "", NewError(ErrIdGeneratorFailed, WithOp(op), WithMsg("unable to generate id"), WithWrap(err))
	}
	return s, nil
}

// idOptions is the set of available options.
type idOptions struct {
	withPrefix string
}

// idDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func idDefaults() idOptions {
	return idOptions{}
}

// getIDOpts gets the defaults and applies the opt overrides passed
// in.
func getIDOpts(opt ...Option) idOptions {
	opts := idDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithPrefix provides an optional prefix for a new ID.  When this options is
// provided, NewID will prepend the prefix and an underscore to the new
// identifier.
func WithPrefix(prefix string) Option {
	return func(o interface{}) {
		if o, ok := o.(*idOptions); ok {
			o.withPrefix = prefix
		}
	}
}
