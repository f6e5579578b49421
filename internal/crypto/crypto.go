// Package crypto encrypts individual financial fields with AES-256-CBC.
//
// A token is base64(IV || ciphertext) with a fresh random 16-byte IV per
// call, so equal plaintexts never produce equal tokens. The AES key is
// derived once from the operator-supplied secret (see KeyDerivation).
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/hkdf"
)

const (
	KeySize = 32
	IVSize  = aes.BlockSize

	hkdfInfo = "lead-finance/financial-fields/aes-256-cbc"
)

var (
	ErrConfiguration = errors.New("encryption key not configured")
	ErrDecryption    = errors.New("failed to decrypt data")
)

// KeyDerivation selects how the configured secret becomes an AES-256 key.
type KeyDerivation string

const (
	// KeyDerivationHKDF runs HKDF-SHA256 over the secret.
	KeyDerivationHKDF KeyDerivation = "hkdf"
	// KeyDerivationLegacy truncates the secret to 32 bytes or right-pads it
	// with '0'. Tokens written by the dashboard's edge functions use it.
	KeyDerivationLegacy KeyDerivation = "legacy"
)

// ParseKeyDerivation maps a config value to a KeyDerivation. Empty means hkdf.
func ParseKeyDerivation(s string) (KeyDerivation, error) {
	switch KeyDerivation(strings.ToLower(strings.TrimSpace(s))) {
	case "", KeyDerivationHKDF:
		return KeyDerivationHKDF, nil
	case KeyDerivationLegacy:
		return KeyDerivationLegacy, nil
	}
	return "", fmt.Errorf("%w: unknown key derivation %q", ErrConfiguration, s)
}

// DeriveKey returns the 32-byte AES key for secret.
func DeriveKey(secret string, kd KeyDerivation) ([]byte, error) {
	if secret == "" {
		return nil, ErrConfiguration
	}
	switch kd {
	case KeyDerivationLegacy:
		return legacyKey(secret), nil
	case KeyDerivationHKDF, "":
		key := make([]byte, KeySize)
		if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo)), key); err != nil {
			return nil, err
		}
		return key, nil
	}
	return nil, fmt.Errorf("%w: unknown key derivation %q", ErrConfiguration, kd)
}

func legacyKey(secret string) []byte {
	key := make([]byte, KeySize)
	n := copy(key, secret)
	for i := n; i < KeySize; i++ {
		key[i] = '0'
	}
	return key
}

// Cipher encrypts and decrypts field tokens under one derived key.
// It is safe for concurrent use.
type Cipher struct {
	block  cipher.Block
	random io.Reader
}

// NewCipher derives the key for secret and prepares the block cipher.
func NewCipher(secret string, kd KeyDerivation) (*Cipher, error) {
	key, err := DeriveKey(secret, kd)
	if err != nil {
		return nil, err
	}
	defer Wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &Cipher{block: block, random: rand.Reader}, nil
}

// EncryptField encrypts plaintext and returns a self-contained token.
func (c *Cipher) EncryptField(plaintext []byte) (string, error) {
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(c.random, iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	defer Wipe(padded)

	out := make([]byte, IVSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out[IVSize:], padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

// DecryptField reverses EncryptField. Malformed tokens and most wrong-key
// or corrupted tokens fail with ErrDecryption.
//
// The token carries no MAC, so PKCS#7 padding is the only check here: about
// one wrong-key token in 256 still unpads and comes back as random bytes
// with a nil error. Callers that know the plaintext format must validate
// it and report a mismatch as ErrDecryption.
func (c *Cipher) DecryptField(token string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed token", ErrDecryption)
	}
	if len(raw) < IVSize+aes.BlockSize || len(raw)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: malformed token", ErrDecryption)
	}

	iv, ct := raw[:IVSize], raw[IVSize:]
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(out, ct)

	plaintext, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		Wipe(out)
		return nil, fmt.Errorf("%w: wrong key or corrupted ciphertext", ErrDecryption)
	}
	return plaintext, nil
}

// DecryptString is DecryptField for text fields: the plaintext must also be
// valid UTF-8.
func (c *Cipher) DecryptString(token string) (string, error) {
	pt, err := c.DecryptField(token)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(pt) {
		Wipe(pt)
		return "", fmt.Errorf("%w: wrong key or corrupted ciphertext", ErrDecryption)
	}
	return string(pt), nil
}

// EncryptField encrypts plaintext under an HKDF-derived key for secret.
// Use NewCipher with KeyDerivationLegacy to produce tokens for deployments
// still on the padded-key scheme.
func EncryptField(plaintext []byte, secret string) (string, error) {
	c, err := NewCipher(secret, KeyDerivationHKDF)
	if err != nil {
		return "", err
	}
	return c.EncryptField(plaintext)
}

// DecryptField decrypts a token produced by EncryptField with the same
// secret. It always derives the key with HKDF and cannot read tokens
// written under KeyDerivationLegacy; use NewCipher for those.
func DecryptField(token, secret string) ([]byte, error) {
	c, err := NewCipher(secret, KeyDerivationHKDF)
	if err != nil {
		return nil, err
	}
	return c.DecryptField(token)
}
