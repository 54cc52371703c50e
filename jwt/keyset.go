package jwt

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"

	sdkHttp "github.com/openrp/rp/sdk/http"
)

// KeySet represents a set of keys that can be used to verify the signatures of JWTs.
// A KeySet is expected to be backed by a set of local or remote keys.
type KeySet interface {

	// VerifySignature parses the given JWT, verifies its signature, and returns the claims in its payload.
	VerifySignature(ctx context.Context, token string) (claims map[string]interface{}, err error)
}

// jsonWebKeySet verifies JWT signatures using keys obtained from a JWKS URL.
type jsonWebKeySet struct {
	remoteJWKS *oidc.RemoteKeySet
	allowed    map[Alg]bool
}

// staticKeySet verifies JWT signatures using local PEM-encoded public keys.
type staticKeySet struct {
	publicKeys []crypto.PublicKey
	allowed    map[Alg]bool
}

// NewJSONWebKeySet returns a KeySet that verifies JWT signatures using keys from the JSON Web
// Key Set (JWKS) at the given jwksURL. The client used to obtain the remote JWKS will verify
// server certificates using the root certificates provided by jwksCAPEM.  The keys
// are fetched on first use and refetched when a token's key id is unknown.
//
// Supported options:
//  WithAllowedAlgorithms
//  WithTimeout
func NewJSONWebKeySet(ctx context.Context, jwksURL string, jwksCAPEM string, opt ...Option) (KeySet, error) {
	if jwksURL == "" {
		return nil, errors.New("jwksURL must not be empty")
	}
	opts := getKeySetOpts(opt...)
	allowed, err := allowedAlgorithms(opts.withAllowedAlgorithms)
	if err != nil {
		return nil, err
	}

	client, err := sdkHttp.NewClient(jwksCAPEM, false, opts.withTimeout)
	if err != nil {
		return nil, fmt.Errorf("could not create a jwks http client: %w", err)
	}
	// the remote key set keeps the context to fetch keys, so it must not be
	// canceled before the key set is done being used.
	caCtx := sdkHttp.OidcClientContext(ctx, client)

	return &jsonWebKeySet{
		remoteJWKS: oidc.NewRemoteKeySet(caCtx, jwksURL),
		allowed:    allowed,
	}, nil
}

// VerifySignature parses the given JWT, verifies its signature using JWKS keys, and returns
// the claims in its payload. The given JWT must be of the JWS compact serialization form.
func (ks *jsonWebKeySet) VerifySignature(ctx context.Context, token string) (map[string]interface{}, error) {
	jws, err := jose.ParseSigned(token)
	if err != nil {
		return nil, fmt.Errorf("malformed jwt: %w", err)
	}
	if len(jws.Signatures) != 1 {
		return nil, errors.New("jwt must have exactly one signature")
	}
	if err := checkAlgorithm(ks.allowed, jws.Signatures[0].Header); err != nil {
		return nil, err
	}

	payload, err := ks.remoteJWKS.VerifySignature(ctx, token)
	if err != nil {
		return nil, err
	}

	// Unmarshal payload into a set of all received claims
	allClaims := map[string]interface{}{}
	if err := json.Unmarshal(payload, &allClaims); err != nil {
		return nil, err
	}

	return allClaims, nil
}

// NewStaticKeySet returns a KeySet that verifies JWT signatures using PEM-encoded public keys.
// The given publicKeys must be of PEM-encoded x509 certificate or PKIX public key forms.
//
// Supported options:
//  WithAllowedAlgorithms
func NewStaticKeySet(publicKeys []string, opt ...Option) (KeySet, error) {
	if len(publicKeys) == 0 {
		return nil, errors.New("publicKeys must not be empty")
	}
	opts := getKeySetOpts(opt...)
	allowed, err := allowedAlgorithms(opts.withAllowedAlgorithms)
	if err != nil {
		return nil, err
	}

	parsedPublicKeys := make([]crypto.PublicKey, 0, len(publicKeys))
	for _, k := range publicKeys {
		key, err := ParsePublicKeyPEM([]byte(k))
		if err != nil {
			return nil, err
		}
		parsedPublicKeys = append(parsedPublicKeys, key)
	}

	return &staticKeySet{
		publicKeys: parsedPublicKeys,
		allowed:    allowed,
	}, nil
}

// VerifySignature parses the given JWT, verifies its signature using local PEM-encoded public keys,
// and returns the claims in its payload. The given JWT must be of the JWS compact serialization form.
func (ks *staticKeySet) VerifySignature(_ context.Context, token string) (map[string]interface{}, error) {
	parsedJWT, err := jwt.ParseSigned(token)
	if err != nil {
		return nil, fmt.Errorf("malformed jwt: %w", err)
	}
	if len(parsedJWT.Headers) != 1 {
		return nil, errors.New("jwt must have exactly one signature")
	}
	if err := checkAlgorithm(ks.allowed, parsedJWT.Headers[0]); err != nil {
		return nil, err
	}

	for _, key := range ks.publicKeys {
		allClaims := map[string]interface{}{}
		if err := parsedJWT.Claims(key, &allClaims); err == nil {
			return allClaims, nil
		}
	}
	return nil, errors.New("no known key successfully validated the token signature")
}

// ParsePublicKeyPEM is used to parse RSA, ECDSA, and Ed25519 public keys from PEMs.
// The given data can be a PKIX public key or an x509 certificate.
//
// It returns a *rsa.PublicKey, *ecdsa.PublicKey, or ed25519.PublicKey.
func ParsePublicKeyPEM(data []byte) (crypto.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("data does not contain any valid public keys")
	}
	rawKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		cert, certErr := x509.ParseCertificate(block.Bytes)
		if certErr != nil {
			return nil, fmt.Errorf("data does not contain any valid public keys: %w", err)
		}
		rawKey = cert.PublicKey
	}

	switch k := rawKey.(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey:
		return k, nil
	default:
		return nil, fmt.Errorf("unsupported public key type %T", rawKey)
	}
}

func allowedAlgorithms(algs []Alg) (map[Alg]bool, error) {
	if len(algs) == 0 {
		return supportedAlgorithms, nil
	}
	if err := SupportedSigningAlgorithm(algs...); err != nil {
		return nil, err
	}
	allowed := make(map[Alg]bool, len(algs))
	for _, a := range algs {
		allowed[a] = true
	}
	return allowed, nil
}

func checkAlgorithm(allowed map[Alg]bool, h jose.Header) error {
	if !allowed[Alg(h.Algorithm)] {
		return fmt.Errorf("jwt signed with unexpected algorithm %q", h.Algorithm)
	}
	return nil
}
