package bootstrap

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradebench/gradebench/internal/data/cryptoutil"
)

func TestCreateEncryptor(t *testing.T) {
	t.Run("empty key falls back to noop", func(t *testing.T) {
		enc := CreateEncryptor("", nil)
		_, ok := enc.(*cryptoutil.NoopEncryptor)
		assert.True(t, ok)
	})

	t.Run("32-byte hex key is used directly", func(t *testing.T) {
		key := hex.EncodeToString(make([]byte, 32))
		enc := CreateEncryptor(key, nil)
		_, ok := enc.(*cryptoutil.AESGCMEncryptor)
		assert.True(t, ok)
	})

	t.Run("passphrase is hashed to a 32-byte key", func(t *testing.T) {
		enc := CreateEncryptor("not-hex-but-still-a-secret", nil)
		_, ok := enc.(*cryptoutil.AESGCMEncryptor)
		assert.True(t, ok)
	})

	t.Run("round trip through a derived key", func(t *testing.T) {
		enc := CreateEncryptor("passphrase", nil)
		ct, err := enc.Encrypt([]byte("value"))
		require.NoError(t, err)
		pt, err := enc.Decrypt(ct)
		require.NoError(t, err)
		assert.Equal(t, []byte("value"), pt)
	})
}
