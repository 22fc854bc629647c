package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// SealedPrefix marks values encrypted with AES-256-GCM.
const SealedPrefix = "aes-gcm:"

// ErrDecrypt is returned when a sealed value cannot be opened, usually
// because the secret changed.
var ErrDecrypt = errors.New("decrypt credential")

// sealer encrypts keys at rest. A zero sealer passes values through.
type sealer struct {
	aead cipher.AEAD
}

func newSealer(secret string) *sealer {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return &sealer{}
	}
	sum := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		// 32-byte keys are always accepted.
		panic(err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		panic(err)
	}
	return &sealer{aead: aead}
}

func (s *sealer) enabled() bool {
	return s != nil && s.aead != nil
}

func (s *sealer) seal(plaintext string) (string, error) {
	if plaintext == "" || !s.enabled() {
		return plaintext, nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return SealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// open decrypts a sealed value. Values without the prefix are returned as is.
func (s *sealer) open(stored string) (string, error) {
	if !strings.HasPrefix(stored, SealedPrefix) {
		return stored, nil
	}
	if !s.enabled() {
		return "", fmt.Errorf("%w: value is encrypted but no secret is configured", ErrDecrypt)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, SealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecrypt, err)
	}
	size := s.aead.NonceSize()
	if len(raw) < size {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	plain, err := s.aead.Open(nil, raw[:size], raw[size:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecrypt, err)
	}
	return string(plain), nil
}
