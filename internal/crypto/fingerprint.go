package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// Fingerprint returns a short hex fingerprint of a public key.
//
// It hashes with SHA-256 and truncates to 10 bytes (20 hex chars).
func Fingerprint(pub []byte) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:10])
}

// FingerprintString fingerprints a key as it travels on the wire. Base64 keys
// are decoded first; anything else is hashed as given.
func FingerprintString(key string) string {
	if raw, err := base64.StdEncoding.DecodeString(key); err == nil {
		return Fingerprint(raw)
	}
	return Fingerprint([]byte(key))
}
