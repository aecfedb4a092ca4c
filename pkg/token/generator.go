package token

import (
	"crypto/rand"
	"encoding/base64"
)

// DefaultLength is the secret length in bytes used by Generate.
const DefaultLength = 32

// Generate returns a fresh random secret, Base64 RawURL encoded for
// safe transmission in headers and config files.
func Generate() (string, error) {
	return GenerateWithLength(DefaultLength)
}

// GenerateWithLength returns a random secret of length bytes.
func GenerateWithLength(length int) (string, error) {
	b, err := GenerateBytes(length)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateBytes returns length random bytes from crypto/rand.
func GenerateBytes(length int) ([]byte, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
