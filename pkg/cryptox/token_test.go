package cryptox

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"128-bit token", TokenSize128},
		{"256-bit token", TokenSize256},
		{"custom size", 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := GenerateToken(tt.size)
			require.NoError(t, err)

			raw, err := base64.RawURLEncoding.DecodeString(token)
			require.NoError(t, err)
			require.Len(t, raw, tt.size)

			other, err := GenerateToken(tt.size)
			require.NoError(t, err)
			require.NotEqual(t, token, other)
		})
	}
}

func TestGenerateToken_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		token, err := GenerateToken(size)
		require.Error(t, err)
		require.Empty(t, token)
	}
}

func TestFingerprintToken(t *testing.T) {
	fp := FingerprintToken("refresh-token")
	require.Equal(t, fp, FingerprintToken("refresh-token"))
	require.NotEqual(t, fp, FingerprintToken("refresh-token2"))
	require.Len(t, fp, 43)

	require.True(t, EqualFingerprint("refresh-token", fp))
	require.False(t, EqualFingerprint("other", fp))
}
