// Package clientassertion signs the JWTs a relying party sends as its
// client_assertion when it authenticates to a token endpoint with
// client_secret_jwt or private_key_jwt (RFC 7523 section 2.2).
//
// A JWT is accepted by oidc.WithClientAssertionJWT.  Every Serialize call
// produces a fresh assertion with a new "jti" and a five minute lifetime.
package clientassertion

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-uuid"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

const (
	// JWTTypeParam is the client_assertion_type sent with a client assertion.
	JWTTypeParam = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

	// assertionLifetime is how long a serialized assertion is valid.
	assertionLifetime = 5 * time.Minute
)

// NewJWTWithHMAC creates a JWT which is signed with the client secret, for
// client_secret_jwt.  audience is normally the provider's token endpoint or
// issuer.
//
// Supported Options:
//   - WithKeyID
//   - WithHeaders
func NewJWTWithHMAC(clientID string, audience []string, alg HSAlgorithm, secret string, opt ...Option) (*JWT, error) {
	const op = "NewJWTWithHMAC"
	j := newJWT(clientID, audience)
	var errs []error
	if err := alg.Validate(secret); err != nil {
		errs = append(errs, err)
	}
	j.alg = jose.SignatureAlgorithm(alg)
	j.secret = secret
	if err := j.apply(errs, opt...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return j, nil
}

// NewJWTWithRSAKey creates a JWT which is signed with an RSA private key, for
// private_key_jwt.  The provider must already know the key's public half.
//
// Supported Options:
//   - WithKeyID
//   - WithHeaders
func NewJWTWithRSAKey(clientID string, audience []string, alg RSAlgorithm, key *rsa.PrivateKey, opt ...Option) (*JWT, error) {
	const op = "NewJWTWithRSAKey"
	j := newJWT(clientID, audience)
	var errs []error
	if err := alg.Validate(key); err != nil {
		errs = append(errs, err)
	}
	j.alg = jose.SignatureAlgorithm(alg)
	j.key = key
	if err := j.apply(errs, opt...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return j, nil
}

func newJWT(clientID string, audience []string) *JWT {
	return &JWT{
		clientID: clientID,
		audience: audience,
		headers:  make(map[string]string),
		genID:    uuid.GenerateUUID,
		now:      time.Now,
	}
}

// apply runs the options, validates the result and makes sure it can be
// serialized.  errs are any errors already found by the constructor.
func (j *JWT) apply(errs []error, opt ...Option) error {
	for _, o := range opt {
		if err := o(j); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if err := j.validate(); err != nil {
		return err
	}
	if _, err := j.Serialize(); err != nil {
		return err
	}
	return nil
}

// JWT creates client assertions: JWTs an OAuth 2.0 or OIDC client uses to
// authenticate itself to an authorization server.
type JWT struct {
	clientID string
	audience []string
	headers  map[string]string

	alg jose.SignatureAlgorithm
	// exactly one of key and secret is set
	key    *rsa.PrivateKey
	secret string

	genID func() (string, error)
	now   func() time.Time
}

// Serialize returns a newly signed client assertion.
func (j *JWT) Serialize() (string, error) {
	const op = "JWT.Serialize"
	if err := j.validate(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	builder, err := j.builder()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	token, err := builder.CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("%s: failed to serialize token: %w", op, err)
	}
	return token, nil
}

func (j *JWT) validate() error {
	const op = "JWT.validate"
	var errs []error
	if j.genID == nil {
		errs = append(errs, ErrMissingFuncIDGenerator)
	}
	if j.now == nil {
		errs = append(errs, ErrMissingFuncNow)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s: %w", op, errors.Join(errs...))
	}

	if j.clientID == "" {
		errs = append(errs, ErrMissingClientID)
	}
	if len(j.audience) == 0 {
		errs = append(errs, ErrMissingAudience)
	}
	if j.alg == "" {
		errs = append(errs, ErrMissingAlgorithm)
	}
	if j.key == nil && j.secret == "" {
		errs = append(errs, ErrMissingKeyOrSecret)
	}
	if j.key != nil && j.secret != "" {
		errs = append(errs, ErrBothKeyAndSecret)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s: %w", op, errors.Join(errs...))
	}
	return nil
}

func (j *JWT) builder() (jwt.Builder, error) {
	const op = "JWT.builder"
	signer, err := j.signer()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	id, err := j.genID()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to generate token id: %w", op, err)
	}
	return jwt.Signed(signer).Claims(j.claims(id)), nil
}

func (j *JWT) signer() (jose.Signer, error) {
	const op = "JWT.signer"
	sKey := jose.SigningKey{
		Algorithm: j.alg,
	}
	if j.secret != "" {
		sKey.Key = []byte(j.secret)
	}
	if j.key != nil {
		sKey.Key = j.key
	}

	sOpts := &jose.SignerOptions{
		ExtraHeaders: make(map[jose.HeaderKey]interface{}, len(j.headers)),
	}
	for k, v := range j.headers {
		sOpts.ExtraHeaders[jose.HeaderKey(k)] = v
	}

	signer, err := jose.NewSigner(sKey, sOpts.WithType("JWT"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrCreatingSigner, err)
	}
	return signer, nil
}

func (j *JWT) claims(id string) *jwt.Claims {
	now := j.now().UTC()
	return &jwt.Claims{
		Issuer:    j.clientID,
		Subject:   j.clientID,
		Audience:  j.audience,
		Expiry:    jwt.NewNumericDate(now.Add(assertionLifetime)),
		NotBefore: jwt.NewNumericDate(now.Add(-1 * time.Second)),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        id,
	}
}

// serializer is the interface oidc.WithClientAssertionJWT accepts.
type serializer interface {
	Serialize() (string, error)
}

var _ serializer = &JWT{}
