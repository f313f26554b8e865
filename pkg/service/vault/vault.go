// Package vault encrypts OAuth tokens before they reach the repository.
// Only ciphertext is ever persisted; the key lives in process memory.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/crypto/hkdf"
)

var (
	// ErrDecryptionFailed indicates a ciphertext failed authentication,
	// usually a wrong key or tampered data
	ErrDecryptionFailed = goerr.New("token decryption failed")

	// ErrInvalidCiphertext indicates a malformed stored ciphertext
	ErrInvalidCiphertext = goerr.New("invalid token ciphertext")
)

const derivationContext = "flowlens-token-vault"

// Vault is an AES-GCM sealer for token strings. The stored form is
// base64(nonce || ciphertext).
type Vault struct {
	aead cipher.AEAD
}

// New derives the sealing key from the master key with HKDF-SHA256 and
// builds the AEAD. The master key must carry at least 32 bytes of
// entropy.
func New(masterKey []byte) (*Vault, error) {
	if len(masterKey) < 32 {
		return nil, goerr.New("master key must be at least 32 bytes", goerr.V("length", len(masterKey)))
	}

	derived := make([]byte, 32)
	reader := hkdf.New(sha256.New, masterKey, nil, []byte(derivationContext))
	if _, err := io.ReadFull(reader, derived); err != nil {
		return nil, goerr.Wrap(err, "failed to derive sealing key")
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create AEAD")
	}

	return &Vault{aead: aead}, nil
}

// NewFromBase64 builds a Vault from a base64-encoded master key, the
// form the key takes in configuration.
func NewFromBase64(encoded string) (*Vault, error) {
	masterKey, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to decode master key")
	}
	return New(masterKey)
}

// EncryptString seals a plaintext token. Each call draws a fresh
// random nonce, so encrypting the same token twice yields different
// ciphertexts.
func (v *Vault) EncryptString(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", goerr.Wrap(err, "failed to generate nonce")
	}

	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString opens a stored ciphertext produced by EncryptString
func (v *Vault) DecryptString(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", goerr.Wrap(ErrInvalidCiphertext, "not base64", goerr.V("cause", err.Error()))
	}

	nonceSize := v.aead.NonceSize()
	if len(sealed) < nonceSize {
		return "", goerr.Wrap(ErrInvalidCiphertext, "ciphertext shorter than nonce")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", goerr.Wrap(ErrDecryptionFailed, "failed to open ciphertext")
	}

	return string(plaintext), nil
}
