//go:build !integration

package security

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptionService(t *testing.T) {
	svc, err := NewEncryptionService("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		ct, err := svc.Encrypt("tok_visa_4242", "vendor-1")
		require.NoError(t, err)
		assert.NotContains(t, ct, "tok_visa")

		pt, err := svc.Decrypt(ct, "vendor-1")
		require.NoError(t, err)
		assert.Equal(t, "tok_visa_4242", pt)
	})

	t.Run("ciphertext is bound to its owner", func(t *testing.T) {
		ct, _ := svc.Encrypt("tok_visa_4242", "vendor-1")

		_, err := svc.Decrypt(ct, "vendor-2")

		assert.Error(t, err)
	})

	t.Run("nonce differs per call", func(t *testing.T) {
		a, _ := svc.Encrypt("same", "v")
		b, _ := svc.Encrypt("same", "v")
		assert.NotEqual(t, a, b)
	})

	t.Run("short input", func(t *testing.T) {
		_, err := svc.Decrypt(base64.StdEncoding.EncodeToString([]byte("abc")), "v")
		assert.ErrorIs(t, err, ErrCiphertextTooShort)
	})
}

func TestNewEncryptionService_Keys(t *testing.T) {
	_, err := NewEncryptionService("short")
	assert.Error(t, err)

	b64 := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef"))
	_, err = NewEncryptionService(b64)
	assert.NoError(t, err)
}
