package remote

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// decryptPayload decrypts an encrypted source payload. The wire format is
// base64(nonce || ciphertext) sealed with AES-256-GCM under the SHA-256 of
// the configured key string.
func decryptPayload(payload []byte, key string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(string(payload))
	if err != nil {
		return nil, fmt.Errorf("decoding encrypted payload: %w", err)
	}

	keyHash := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(keyHash[:])
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}

	if len(raw) < gcm.NonceSize() {
		return nil, fmt.Errorf("encrypted payload shorter than nonce")
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("opening encrypted payload: %w", err)
	}
	return plaintext, nil
}

// encryptPayload is the inverse of decryptPayload. It exists for tests and
// for tooling that publishes encrypted sources.
func encryptPayload(plaintext []byte, key string, nonce []byte) ([]byte, error) {
	keyHash := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(keyHash[:])
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes", gcm.NonceSize())
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	out := append(append([]byte{}, nonce...), sealed...)
	return []byte(base64.StdEncoding.EncodeToString(out)), nil
}
