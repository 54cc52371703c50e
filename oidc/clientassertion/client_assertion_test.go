package clientassertion

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2/jwt"
)

const testSecret = "0123456789abcdef0123456789abcdef" // 32 bytes

func testRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return k
}

func TestHSAlgorithm_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		alg       HSAlgorithm
		secret    string
		wantIsErr error
	}{
		{"HS256", HS256, testSecret, nil},
		{"HS384", HS384, strings.Repeat("a", 48), nil},
		{"HS512", HS512, strings.Repeat("a", 64), nil},
		{"empty", HS256, "", ErrInvalidSecretLength},
		{"short-256", HS256, "short", ErrInvalidSecretLength},
		{"short-512", HS512, testSecret, ErrInvalidSecretLength},
		{"unsupported", HSAlgorithm("HS1"), testSecret, ErrUnsupportedAlgorithm},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := tt.alg.Validate(tt.secret)
			if tt.wantIsErr != nil {
				assert.ErrorIs(t, err, tt.wantIsErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRSAlgorithm_Validate(t *testing.T) {
	t.Parallel()
	k := testRSAKey(t)
	tests := []struct {
		name      string
		alg       RSAlgorithm
		key       *rsa.PrivateKey
		wantIsErr error
	}{
		{"RS256", RS256, k, nil},
		{"RS512", RS512, k, nil},
		{"nil-key", RS256, nil, ErrNilPrivateKey},
		{"unsupported", RSAlgorithm("PS256"), k, ErrUnsupportedAlgorithm},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := tt.alg.Validate(tt.key)
			if tt.wantIsErr != nil {
				assert.ErrorIs(t, err, tt.wantIsErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewJWTWithHMAC(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		clientID string
		aud      []string
		alg      HSAlgorithm
		secret   string
		opts     []Option
		wantErrs []error
		wantHdrs map[string]string
	}{
		{
			name:     "valid",
			clientID: "client-id",
			aud:      []string{"https://idp.example.com/token"},
			alg:      HS256,
			secret:   testSecret,
			opts:     []Option{WithKeyID("kid-1"), WithHeaders(map[string]string{"xtra": "v"})},
			wantHdrs: map[string]string{"kid": "kid-1", "xtra": "v"},
		},
		{
			name:     "missing-client-id-and-audience",
			alg:      HS256,
			secret:   testSecret,
			wantErrs: []error{ErrMissingClientID, ErrMissingAudience},
		},
		{
			name:     "short-secret",
			clientID: "client-id",
			aud:      []string{"aud"},
			alg:      HS256,
			secret:   "short",
			wantErrs: []error{ErrInvalidSecretLength},
		},
		{
			name:     "empty-key-id",
			clientID: "client-id",
			aud:      []string{"aud"},
			alg:      HS256,
			secret:   testSecret,
			opts:     []Option{WithKeyID("")},
			wantErrs: []error{ErrMissingKeyID},
		},
		{
			name:     "reserved-header",
			clientID: "client-id",
			aud:      []string{"aud"},
			alg:      HS256,
			secret:   testSecret,
			opts:     []Option{WithHeaders(map[string]string{"alg": "none"})},
			wantErrs: []error{ErrReservedHeader},
		},
		{
			name:     "bad-alg-and-option",
			clientID: "client-id",
			aud:      []string{"aud"},
			alg:      HSAlgorithm("none"),
			secret:   testSecret,
			opts:     []Option{WithKeyID("")},
			wantErrs: []error{ErrUnsupportedAlgorithm, ErrMissingKeyID},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			j, err := NewJWTWithHMAC(tt.clientID, tt.aud, tt.alg, tt.secret, tt.opts...)
			if len(tt.wantErrs) > 0 {
				require.Error(err)
				assert.Nil(j)
				for _, want := range tt.wantErrs {
					assert.ErrorIs(err, want)
				}
				return
			}
			require.NoError(err)
			assert.Equal(tt.clientID, j.clientID)
			assert.Equal(tt.aud, j.audience)
			assert.Equal(tt.secret, j.secret)
			assert.Nil(j.key)
			assert.Equal(tt.wantHdrs, j.headers)
		})
	}
}

func TestNewJWTWithRSAKey(t *testing.T) {
	t.Parallel()
	k := testRSAKey(t)
	tests := []struct {
		name     string
		clientID string
		aud      []string
		alg      RSAlgorithm
		key      *rsa.PrivateKey
		wantErrs []error
	}{
		{"valid", "client-id", []string{"aud"}, RS256, k, nil},
		{"nil-key", "client-id", []string{"aud"}, RS256, nil, []error{ErrNilPrivateKey}},
		{"bad-alg", "client-id", []string{"aud"}, RSAlgorithm("HS256"), k, []error{ErrUnsupportedAlgorithm}},
		{"missing-audience", "client-id", nil, RS384, k, []error{ErrMissingAudience}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			j, err := NewJWTWithRSAKey(tt.clientID, tt.aud, tt.alg, tt.key)
			if len(tt.wantErrs) > 0 {
				require.Error(err)
				assert.Nil(j)
				for _, want := range tt.wantErrs {
					assert.ErrorIs(err, want)
				}
				return
			}
			require.NoError(err)
			assert.Equal(tt.key, j.key)
			assert.Empty(j.secret)
		})
	}
}

func TestJWT_Serialize(t *testing.T) {
	t.Parallel()
	k := testRSAKey(t)

	tests := []struct {
		name     string
		newJWT   func() (*JWT, error)
		claimKey interface{}
		wantAlg  string
	}{
		{
			name: "secret",
			newJWT: func() (*JWT, error) {
				return NewJWTWithHMAC("client-id", []string{"https://idp.example.com/token"}, HS256, testSecret,
					WithKeyID("test-key-id"), WithHeaders(map[string]string{"xtra": "headies"}))
			},
			claimKey: []byte(testSecret),
			wantAlg:  "HS256",
		},
		{
			name: "rsa-key",
			newJWT: func() (*JWT, error) {
				return NewJWTWithRSAKey("client-id", []string{"https://idp.example.com/token"}, RS256, k,
					WithKeyID("test-key-id"), WithHeaders(map[string]string{"xtra": "headies"}))
			},
			claimKey: &k.PublicKey,
			wantAlg:  "RS256",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			j, err := tt.newJWT()
			require.NoError(err)

			now := time.Now()
			j.now = func() time.Time { return now }
			j.genID = func() (string, error) { return "test-claim-id", nil }

			signed, err := j.Serialize()
			require.NoError(err)

			token, err := jwt.ParseSigned(signed)
			require.NoError(err)
			require.Len(token.Headers, 1)
			h := token.Headers[0]
			assert.Equal(tt.wantAlg, h.Algorithm)
			assert.Equal("test-key-id", h.KeyID)
			assert.Equal("JWT", h.ExtraHeaders["typ"])
			assert.Equal("headies", h.ExtraHeaders["xtra"])

			var claims jwt.Claims
			require.NoError(token.Claims(tt.claimKey, &claims))
			require.NoError(claims.Validate(jwt.Expected{
				Issuer:   "client-id",
				Subject:  "client-id",
				Audience: jwt.Audience{"https://idp.example.com/token"},
				ID:       "test-claim-id",
				Time:     now,
			}))
			assert.Equal(now.Add(assertionLifetime).Unix(), claims.Expiry.Time().Unix())
		})
	}

	t.Run("fresh-id-per-assertion", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		j, err := NewJWTWithHMAC("client-id", []string{"aud"}, HS256, testSecret)
		require.NoError(err)
		first, err := j.Serialize()
		require.NoError(err)
		second, err := j.Serialize()
		require.NoError(err)
		assert.NotEqual(first, second)
	})

	t.Run("id-generator-fails", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		genIDErr := errors.New("failed to generate test id")
		j, err := NewJWTWithHMAC("client-id", []string{"aud"}, HS256, testSecret)
		require.NoError(err)
		j.genID = func() (string, error) { return "", genIDErr }
		signed, err := j.Serialize()
		assert.ErrorIs(err, genIDErr)
		assert.Empty(signed)
	})

	t.Run("bare", func(t *testing.T) {
		assert := assert.New(t)
		signed, err := (&JWT{}).Serialize()
		assert.ErrorIs(err, ErrMissingFuncIDGenerator)
		assert.ErrorIs(err, ErrMissingFuncNow)
		assert.Empty(signed)
	})
}
