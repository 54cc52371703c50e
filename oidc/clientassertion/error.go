package clientassertion

import "errors"

var (
	ErrMissingClientID    = errors.New("missing client ID")
	ErrMissingAudience    = errors.New("missing audience")
	ErrMissingAlgorithm   = errors.New("missing signing algorithm")
	ErrMissingKeyOrSecret = errors.New("missing private key or client secret")
	ErrBothKeyAndSecret   = errors.New("both private key and client secret provided")
	ErrMissingKeyID       = errors.New("missing key ID")
	ErrReservedHeader     = errors.New("reserved header")

	// only possible when a JWT isn't created with a constructor
	ErrMissingFuncIDGenerator = errors.New("missing ID generator func; please use a constructor")
	ErrMissingFuncNow         = errors.New("missing now func; please use a constructor")
	ErrCreatingSigner         = errors.New("error creating jwt signer")

	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrInvalidSecretLength  = errors.New("invalid secret length for algorithm")
	ErrNilPrivateKey        = errors.New("nil private key")
)
