package jwt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSupportedSigningAlgorithm(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		algs    []Alg
		wantErr bool
	}{
		{
			name: "supported",
			algs: []Alg{RS256, RS384, RS512, ES256, ES384, ES512, PS256, PS384, PS512, EdDSA},
		},
		{
			name: "none",
		},
		{
			name:    "alg-none",
			algs:    []Alg{Alg("none")},
			wantErr: true,
		},
		{
			name:    "hmac",
			algs:    []Alg{ES256, Alg("HS256")},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := SupportedSigningAlgorithm(tt.algs...)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}
