package jwt

import (
	"bytes"
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

const testKeyID = "test-key"

func Test_staticKeySet_VerifySignature(t *testing.T) {
	t.Parallel()
	ecPriv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	rsaPriv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	edPub, edPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	otherPriv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	keys := []string{
		testPublicKeyPEM(t, ecPriv.Public()),
		testPublicKeyPEM(t, rsaPriv.Public()),
		testPublicKeyPEM(t, edPub),
	}

	tests := []struct {
		name    string
		opt     []Option
		token   string
		want    map[string]interface{}
		wantErr bool
	}{
		{
			name:  "ES256",
			token: testSignJWT(t, ecPriv, ES256, testJWTClaims(), testKeyID),
			want:  testJWTClaims(),
		},
		{
			name:  "RS256",
			token: testSignJWT(t, rsaPriv, RS256, testJWTClaims(), ""),
			want:  testJWTClaims(),
		},
		{
			name:  "PS384",
			token: testSignJWT(t, rsaPriv, PS384, testJWTClaims(), ""),
			want:  testJWTClaims(),
		},
		{
			name:  "EdDSA",
			token: testSignJWT(t, edPriv, EdDSA, testJWTClaims(), ""),
			want:  testJWTClaims(),
		},
		{
			name:    "unknown-key",
			token:   testSignJWT(t, otherPriv, ES256, testJWTClaims(), testKeyID),
			wantErr: true,
		},
		{
			name:    "algorithm-not-allowed",
			opt:     []Option{WithAllowedAlgorithms(RS256)},
			token:   testSignJWT(t, ecPriv, ES256, testJWTClaims(), testKeyID),
			wantErr: true,
		},
		{
			name:    "malformed",
			token:   "not-a-jwt",
			wantErr: true,
		},
		{
			name:    "empty",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			ks, err := NewStaticKeySet(keys, tt.opt...)
			require.NoError(err)
			got, err := ks.VerifySignature(context.Background(), tt.token)
			if tt.wantErr {
				require.Error(err)
				assert.Nil(got)
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)
		})
	}
}

func Test_jsonWebKeySet_VerifySignature(t *testing.T) {
	t.Parallel()
	ecPriv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	otherPriv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)

	srv, caPEM := testJWKSServer(t, jose.JSONWebKey{
		Key:       ecPriv.Public(),
		KeyID:     testKeyID,
		Algorithm: string(ES384),
		Use:       "sig",
	})

	tests := []struct {
		name    string
		opt     []Option
		token   string
		want    map[string]interface{}
		wantErr bool
	}{
		{
			name:  "ES384",
			token: testSignJWT(t, ecPriv, ES384, testJWTClaims(), testKeyID),
			want:  testJWTClaims(),
		},
		{
			name:    "unknown-key",
			token:   testSignJWT(t, otherPriv, ES384, testJWTClaims(), testKeyID),
			wantErr: true,
		},
		{
			name:    "algorithm-not-allowed",
			opt:     []Option{WithAllowedAlgorithms(ES256)},
			token:   testSignJWT(t, ecPriv, ES384, testJWTClaims(), testKeyID),
			wantErr: true,
		},
		{
			name:    "malformed",
			token:   "a.b.c",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			ks, err := NewJSONWebKeySet(context.Background(), srv.URL+"/.well-known/jwks.json", caPEM, tt.opt...)
			require.NoError(err)
			got, err := ks.VerifySignature(context.Background(), tt.token)
			if tt.wantErr {
				require.Error(err)
				assert.Nil(got)
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)
		})
	}
}

func TestNewJSONWebKeySet(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		jwksURL string
		caPEM   string
		opt     []Option
		wantErr bool
	}{
		{
			name:    "valid",
			jwksURL: "https://op.example.com/.well-known/jwks.json",
		},
		{
			name:    "valid-with-ca",
			jwksURL: "https://op.example.com/.well-known/jwks.json",
			caPEM:   testCACertPEM(t),
			opt:     []Option{WithTimeout(time.Second)},
		},
		{
			name:    "empty-url",
			wantErr: true,
		},
		{
			name:    "bad-ca",
			jwksURL: "https://op.example.com/.well-known/jwks.json",
			caPEM:   "not a pem",
			wantErr: true,
		},
		{
			name:    "unsupported-algorithm",
			jwksURL: "https://op.example.com/.well-known/jwks.json",
			opt:     []Option{WithAllowedAlgorithms("HS256")},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewJSONWebKeySet(context.Background(), tt.jwksURL, tt.caPEM, tt.opt...)
			if tt.wantErr {
				require.Error(err)
				assert.Nil(got)
				return
			}
			require.NoError(err)
			assert.NotNil(got)
		})
	}
}

func TestNewStaticKeySet(t *testing.T) {
	t.Parallel()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tests := []struct {
		name    string
		keys    []string
		opt     []Option
		wantErr bool
	}{
		{
			name: "valid",
			keys: []string{testPublicKeyPEM(t, priv.Public())},
		},
		{
			name: "valid-certificate",
			keys: []string{testCACertPEM(t)},
		},
		{
			name:    "no-keys",
			wantErr: true,
		},
		{
			name:    "bad-key",
			keys:    []string{testPublicKeyPEM(t, priv.Public()), "not a pem"},
			wantErr: true,
		},
		{
			name:    "unsupported-algorithm",
			keys:    []string{testPublicKeyPEM(t, priv.Public())},
			opt:     []Option{WithAllowedAlgorithms("none")},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewStaticKeySet(tt.keys, tt.opt...)
			if tt.wantErr {
				require.Error(err)
				assert.Nil(got)
				return
			}
			require.NoError(err)
			assert.NotNil(got)
		})
	}
}

func TestParsePublicKeyPEM(t *testing.T) {
	t.Parallel()
	ecPriv, err := ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	require.NoError(t, err)
	rsaPriv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	edPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	ecPrivDER, err := x509.MarshalECPrivateKey(ecPriv)
	require.NoError(t, err)

	tests := []struct {
		name    string
		data    []byte
		want    crypto.PublicKey
		wantErr bool
	}{
		{
			name: "ecdsa",
			data: []byte(testPublicKeyPEM(t, ecPriv.Public())),
			want: ecPriv.Public(),
		},
		{
			name: "rsa",
			data: []byte(testPublicKeyPEM(t, rsaPriv.Public())),
			want: rsaPriv.Public(),
		},
		{
			name: "ed25519",
			data: []byte(testPublicKeyPEM(t, edPub)),
			want: edPub,
		},
		{
			name:    "private-key",
			data:    pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: ecPrivDER}),
			wantErr: true,
		},
		{
			name:    "not-pem",
			data:    []byte("not a pem"),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := ParsePublicKeyPEM(tt.data)
			if tt.wantErr {
				require.Error(err)
				assert.Nil(got)
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)
		})
	}
}

func testJWTClaims() map[string]interface{} {
	return map[string]interface{}{
		"iss": "https://op.example.com",
		"sub": "alice",
		"aud": "client123",
	}
}

func testSignJWT(t *testing.T, key crypto.PrivateKey, alg Alg, claims interface{}, keyID string) string {
	t.Helper()
	opts := (&jose.SignerOptions{}).WithType("JWT")
	if keyID != "" {
		opts = opts.WithHeader(jose.HeaderKey("kid"), keyID)
	}
	sig, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.SignatureAlgorithm(alg), Key: key}, opts)
	require.NoError(t, err)

	raw, err := jwt.Signed(sig).Claims(claims).CompactSerialize()
	require.NoError(t, err)
	return raw
}

func testPublicKeyPEM(t *testing.T, pub crypto.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func testCACertPEM(t *testing.T) string {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Organization: []string{"Acme Co"}},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

// testJWKSServer starts a TLS server publishing the keys at
// /.well-known/jwks.json and returns it with its pem-encoded certificate.
func testJWKSServer(t *testing.T, keys ...jose.JSONWebKey) (*httptest.Server, string) {
	t.Helper()
	var mu sync.Mutex
	jwks := jose.JSONWebKeySet{Keys: keys}
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/jwks.json" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(srv.Close)

	var buf bytes.Buffer
	require.NoError(t, pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw}))
	return srv, buf.String()
}
