// Package security encrypts broker credentials at rest. Values are sealed
// with AES-GCM under a key derived from BROKER_CREDENTIALS_KEY via PBKDF2 and
// stored base64-encoded with the salt and nonce prepended.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLength = 16
	keyLength  = 32
	pbkdf2Iter = 100_000
)

func deriveKey(salt []byte) []byte {
	config := GetConfig()
	return pbkdf2.Key([]byte(config.BrokerCRKey), salt, pbkdf2Iter, keyLength, sha256.New)
}

// EncryptString seals plaintext and returns base64(salt || nonce || ciphertext).
func EncryptString(plaintext string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt generation failed: %w", err)
	}

	block, err := aes.NewCipher(deriveKey(salt))
	if err != nil {
		return "", fmt.Errorf("cipher init failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("gcm init failed: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce generation failed: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	payload := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	payload = append(payload, salt...)
	payload = append(payload, nonce...)
	payload = append(payload, sealed...)
	return base64.StdEncoding.EncodeToString(payload), nil
}

// DecryptString reverses EncryptString.
func DecryptString(encoded string) (string, error) {
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("credential decode failed: %w", err)
	}
	if len(payload) < saltLength {
		return "", fmt.Errorf("credential payload too short")
	}

	salt, rest := payload[:saltLength], payload[saltLength:]

	block, err := aes.NewCipher(deriveKey(salt))
	if err != nil {
		return "", fmt.Errorf("cipher init failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("gcm init failed: %w", err)
	}
	if len(rest) < gcm.NonceSize() {
		return "", fmt.Errorf("credential payload too short")
	}

	nonce, sealed := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("credential decrypt failed: %w", err)
	}
	return string(plaintext), nil
}

// ResolveCredential returns the decrypted value when an encrypted form is
// set, otherwise the plain value. Lets deployments keep broker keys sealed in
// the environment without forcing it everywhere.
func ResolveCredential(plain, encrypted string) (string, error) {
	if encrypted == "" {
		return plain, nil
	}
	return DecryptString(encrypted)
}
