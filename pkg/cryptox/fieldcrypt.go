package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// FieldCipher encrypts individual sensitive fields (MFA secrets, PII) before
// they hit the store, using AES-256-GCM. The key is explicit required startup
// configuration; there is deliberately no lazy env lookup or generated
// development fallback here, the app layer decides where the key comes from
// and refuses to boot without one in production.
type FieldCipher struct {
	aead cipher.AEAD
}

// FieldKeySize is the required key length for AES-256.
const FieldKeySize = 32

var ErrCiphertext = errors.New("cryptox: invalid ciphertext")

// NewFieldCipher builds a FieldCipher from a 32-byte key.
func NewFieldCipher(key []byte) (*FieldCipher, error) {
	if len(key) != FieldKeySize {
		return nil, fmt.Errorf("cryptox: field key must be %d bytes, got %d", FieldKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create GCM: %w", err)
	}

	return &FieldCipher{aead: aead}, nil
}

// EncryptString seals a plaintext field value. Output layout is
// base64url([nonce][ciphertext][tag]) with a random nonce per call.
func (c *FieldCipher) EncryptString(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("cryptox: generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// DecryptString opens a value produced by EncryptString. Decryption only
// happens transiently for verification; callers must not persist the result.
func (c *FieldCipher) DecryptString(encoded string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrCiphertext
	}

	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", ErrCiphertext
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrCiphertext
	}

	return string(plaintext), nil
}
