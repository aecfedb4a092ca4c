package adaptive

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"runtime"
)

// CipherType identifies the AEAD algorithm.
type CipherType string

const (
	CipherAESGCM   CipherType = "aes-gcm"
	CipherChaCha20 CipherType = "chacha20-poly1305"
)

// Cipher provides authenticated encryption with associated data.
// Implementations are safe for concurrent use.
type Cipher interface {
	// Type returns the selected algorithm.
	Type() CipherType

	// Encrypt seals plaintext, binding additionalData into the
	// authentication tag. The nonce is prepended to the result.
	Encrypt(plaintext, additionalData []byte) ([]byte, error)

	// Decrypt opens a sealed message produced by Encrypt with the
	// same additionalData.
	Decrypt(sealed, additionalData []byte) ([]byte, error)

	// NonceSize returns the nonce size in bytes.
	NonceSize() int

	// Overhead returns the authentication tag size in bytes.
	Overhead() int
}

// New picks the algorithm for this machine: AES-GCM where the CPU
// accelerates AES, ChaCha20-Poly1305 otherwise.
func New(key []byte) (Cipher, error) {
	if hasAESHardware() {
		return NewAESGCM(key)
	}
	return NewChaCha20(key)
}

// NewWithType builds a cipher of an explicitly chosen algorithm.
func NewWithType(key []byte, t CipherType) (Cipher, error) {
	switch t {
	case CipherAESGCM:
		return NewAESGCM(key)
	case CipherChaCha20:
		return NewChaCha20(key)
	default:
		return nil, fmt.Errorf("unknown cipher type %q", t)
	}
}

// hasAESHardware reports whether Go's crypto/aes runs on dedicated
// instructions here. amd64 uses AES-NI, arm64 the ARM crypto
// extensions; everywhere else ChaCha20 is the faster choice.
func hasAESHardware() bool {
	switch runtime.GOARCH {
	case "amd64", "arm64":
		return true
	default:
		return false
	}
}

type baseCipher struct {
	aead cipher.AEAD
}

func (c *baseCipher) NonceSize() int {
	return c.aead.NonceSize()
}

func (c *baseCipher) Overhead() int {
	return c.aead.Overhead()
}

func (c *baseCipher) encrypt(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

func (c *baseCipher) decrypt(sealed, additionalData []byte) ([]byte, error) {
	if len(sealed) < c.aead.NonceSize() {
		return nil, errors.New("sealed message shorter than nonce")
	}
	nonce := sealed[:c.aead.NonceSize()]
	return c.aead.Open(nil, nonce, sealed[c.aead.NonceSize():], additionalData)
}
