// Package token seals small JSON documents into URL-safe opaque strings.
//
// The same primitive carries session payloads (cookie and bearer bindings)
// and the encrypted device-client request/response bodies.
package token

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalid is returned for every decode failure. Callers never learn why
// a token was rejected.
var ErrInvalid = errors.New("invalid token")

const nonceSize = 12

var encoding = base64.RawURLEncoding

// Codec encrypts and authenticates JSON documents with AES-256-GCM.
// The AES key is SHA-256(secret), derived again on every call.
type Codec struct {
	secret []byte
}

func New(secret string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("token: empty secret")
	}
	return &Codec{secret: []byte(secret)}, nil
}

func (c *Codec) aead() (cipher.AEAD, error) {
	key := sha256.Sum256(c.secret)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, nonceSize)
}

// Seal encrypts plaintext and returns base64url(nonce || ciphertext).
func (c *Codec) Seal(plaintext []byte) (string, error) {
	gcm, err := c.aead()
	if err != nil {
		return "", fmt.Errorf("token: init cipher: %w", err)
	}

	nonce := make([]byte, nonceSize, nonceSize+len(plaintext)+gcm.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("token: nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return encoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Any failure yields ErrInvalid.
func (c *Codec) Open(tok string) ([]byte, error) {
	raw, err := encoding.DecodeString(tok)
	if err != nil || len(raw) < nonceSize {
		return nil, ErrInvalid
	}

	gcm, err := c.aead()
	if err != nil {
		return nil, ErrInvalid
	}

	plaintext, err := gcm.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return nil, ErrInvalid
	}
	return plaintext, nil
}

// EncodeJSON marshals v and seals it.
func (c *Codec) EncodeJSON(v any) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("token: marshal: %w", err)
	}
	return c.Seal(plaintext)
}

// DecodeJSON opens tok and unmarshals the plaintext into v.
func (c *Codec) DecodeJSON(tok string, v any) error {
	plaintext, err := c.Open(tok)
	if err != nil {
		return ErrInvalid
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return ErrInvalid
	}
	return nil
}
