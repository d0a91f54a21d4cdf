// Package crypto encrypts the secrets stored on external system records
// (HTTP passwords and OAuth2 client secrets).
//
// Secrets are sealed with AES-256-GCM. The key is derived from the configured
// passphrase with PBKDF2 so any passphrase length yields a 32-byte key. A fresh
// random nonce is prepended to every ciphertext, so encrypting the same value
// twice gives different results.
//
//	enc, err := crypto.NewConfigEncryptor(os.Getenv("CONFIG_ENCRYPTION_KEY"))
//	sealed, err := enc.Encrypt("s3cret")
//	plain, err := enc.Decrypt(sealed)
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"extsys/internal/common/errors"
)

const (
	keyDerivationIterations = 10000
	keyLength               = 32
)

var keyDerivationSalt = []byte("extsys-config-salt")

// Decrypter reveals a stored secret. Authorization strategies depend on this
// rather than on a concrete encryptor.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// Encrypter seals a secret for storage.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// ConfigEncryptor handles encryption and decryption of stored secrets.
// It is safe for concurrent use.
type ConfigEncryptor struct {
	key []byte
}

// NewConfigEncryptor derives an AES-256 key from passphrase. An empty
// passphrase is rejected.
func NewConfigEncryptor(passphrase string) (*ConfigEncryptor, error) {
	if passphrase == "" {
		return nil, errors.ValidationError("encryption key cannot be empty")
	}

	derivedKey := pbkdf2.Key([]byte(passphrase), keyDerivationSalt, keyDerivationIterations, keyLength, sha256.New)
	return &ConfigEncryptor{key: derivedKey}, nil
}

// Encrypt seals plaintext and returns base64(nonce || ciphertext).
// Empty strings are returned unchanged.
func (e *ConfigEncryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	gcm, err := e.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.InternalError("failed to create nonce", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Tampered input, a wrong key or
// malformed base64 all fail. Empty strings are returned unchanged.
func (e *ConfigEncryptor) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errors.InternalError("failed to decode ciphertext", err)
	}

	gcm, err := e.aead()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.ValidationError("ciphertext too short")
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", errors.InternalError("failed to decrypt", err)
	}

	return string(plaintext), nil
}

func (e *ConfigEncryptor) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, errors.InternalError("failed to create cipher", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.InternalError("failed to create GCM", err)
	}
	return gcm, nil
}

// PlainText is a Decrypter for deployments that store secrets unencrypted.
// Only used when no CONFIG_ENCRYPTION_KEY is configured.
type PlainText struct{}

func (PlainText) Decrypt(ciphertext string) (string, error) { return ciphertext, nil }
func (PlainText) Encrypt(plaintext string) (string, error)  { return plaintext, nil }
