// Package cryptostore encrypts exchange credential material at rest. It
// keeps the teacher's AES-256-GCM scheme (pkg/crypto/encrypt.go) and adds a
// PBKDF2-derived key so the operator supplies a passphrase rather than a
// raw 32-byte key.
package cryptostore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

var (
	ErrInvalidCiphertext  = errors.New("cryptostore: invalid ciphertext")
	ErrCiphertextTooShort = errors.New("cryptostore: ciphertext too short")
	ErrDecryptionFailed   = errors.New("cryptostore: decryption failed: authentication error")
)

const (
	pbkdf2Iterations = 100_000
	keyLen           = 32 // AES-256
	saltLen          = 16
)

// DeriveKey derives a 32-byte AES key from a passphrase and salt via
// PBKDF2-HMAC-SHA256. The salt must be persisted alongside the ciphertext
// (EncryptWithPassphrase does this automatically).
func DeriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, keyLen, sha256.New)
}

// EncryptWithPassphrase encrypts plaintext (e.g. a PEM-encoded RSA private
// key) under a key derived from passphrase, returning a single
// base64-encoded blob of salt || nonce || ciphertext.
func EncryptWithPassphrase(plaintext, passphrase string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	key := DeriveKey(passphrase, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	blob := append(salt, sealed...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// DecryptWithPassphrase reverses EncryptWithPassphrase.
func DecryptWithPassphrase(blobBase64, passphrase string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(blobBase64)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	if len(blob) < saltLen {
		return "", ErrCiphertextTooShort
	}
	salt, rest := blob[:saltLen], blob[saltLen:]
	key := DeriveKey(passphrase, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonceSize := gcm.NonceSize()
	if len(rest) < nonceSize {
		return "", ErrCiphertextTooShort
	}
	nonce, ciphertext := rest[:nonceSize], rest[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}
