// Package pkce implements the RFC 7636 code verifier / S256 challenge pair
// used to bind Spotify authorization codes to a server-held secret.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// verifierBytes is the entropy of a generated verifier. 64 random bytes
// encode to 86 URL-safe characters, inside RFC 7636's 43..128 range.
const verifierBytes = 64

// GenerateVerifier returns a new high-entropy URL-safe code verifier.
func GenerateVerifier() string {
	buf := make([]byte, verifierBytes)
	rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}

// DeriveChallenge returns the S256 code challenge for verifier: the
// unpadded URL-safe base64 encoding of its SHA-256 digest.
func DeriveChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
