package bootstrap

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	"github.com/gradebench/gradebench/internal/data/cryptoutil"
)

// CreateEncryptor creates an AES-GCM encryptor from the provided key. A hex
// string decoding to 32 bytes is used directly; any other non-empty key is
// hashed to 32 bytes. An empty key falls back to the noop encryptor.
//
//nolint:ireturn // Returning the interface is intentional for the encryptor abstraction.
func CreateEncryptor(key string, logger *slog.Logger) cryptoutil.Encryptor {
	if key == "" {
		if logger != nil {
			logger.Warn("encryption key is empty, using noop encryptor")
		}
		return &cryptoutil.NoopEncryptor{}
	}

	var keyBytes []byte
	if decoded, err := hex.DecodeString(key); err == nil && len(decoded) == 32 {
		keyBytes = decoded
	} else {
		hash := sha256.Sum256([]byte(key))
		keyBytes = hash[:]
	}

	enc, err := cryptoutil.NewAESGCMEncryptor(keyBytes)
	if err != nil {
		if logger != nil {
			logger.Warn("failed to create encryptor, using noop encryptor", "error", err)
		}
		return &cryptoutil.NoopEncryptor{}
	}
	return enc
}
