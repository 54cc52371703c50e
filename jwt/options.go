package jwt

import "time"

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// keySetOptions is the set of available options for the KeySet constructors.
type keySetOptions struct {
	withAllowedAlgorithms []Alg
	withTimeout           time.Duration
}

func keySetDefaults() keySetOptions {
	return keySetOptions{}
}

// getKeySetOpts gets the defaults and applies the opt overrides passed
// in.
func getKeySetOpts(opt ...Option) keySetOptions {
	opts := keySetDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// WithAllowedAlgorithms restricts the signing algorithms a KeySet accepts.
// By default every supported algorithm is accepted.
func WithAllowedAlgorithms(algs ...Alg) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *keySetOptions:
			v.withAllowedAlgorithms = algs
		}
	}
}

// WithTimeout sets the timeout of the http client used to fetch remote keys.
func WithTimeout(d time.Duration) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *keySetOptions:
			v.withTimeout = d
		}
	}
}
