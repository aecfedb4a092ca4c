// Package adaptive provides AEAD encryption with automatic algorithm
// selection. AES-256-GCM is chosen on architectures with hardware AES
// support, ChaCha20-Poly1305 everywhere else.
//
// The server uses it to encrypt stored values at rest. A fresh nonce
// is generated per call and prepended to the ciphertext.
//
//	c, err := adaptive.New(key)
//	sealed, err := c.Encrypt(plaintext, aad)
//	plaintext, err := c.Decrypt(sealed, aad)
package adaptive
