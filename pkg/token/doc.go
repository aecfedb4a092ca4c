// Package token provides secret generation and hashing for admin
// credentials and session tokens.
//
// Secrets are generated from crypto/rand and Base64 RawURL encoded.
// Only SHA-256 hashes of secrets are ever stored or configured; the
// plaintext exists in the issuer's hands alone. Verification uses
// constant-time comparison.
package token
