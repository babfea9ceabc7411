package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"

	"github.com/pkg/errors"

	"prekeyd/internal/domain"
)

// GenerateEd25519 returns a new identity signing key pair.
func GenerateEd25519() (priv domain.Ed25519Private, pub domain.Ed25519Public, err error) {
	pk, sk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return priv, pub, errors.Wrap(err, "generate identity key")
	}
	copy(priv[:], sk)
	copy(pub[:], pk)
	Wipe(sk)
	return priv, pub, nil
}

// ParseEd25519Public decodes a base64 identity key.
func ParseEd25519Public(s string) (pub domain.Ed25519Public, err error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return pub, errors.Wrap(err, "identity key encoding")
	}
	if len(raw) != ed25519.PublicKeySize {
		return pub, errors.Errorf("identity key is %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	copy(pub[:], raw)
	return pub, nil
}

// SignEd25519 signs msg with priv.
func SignEd25519(priv domain.Ed25519Private, msg []byte) []byte {
	return ed25519.Sign(ed25519.PrivateKey(priv[:]), msg)
}

// VerifyEd25519 reports whether sig is pub's signature over msg.
func VerifyEd25519(pub domain.Ed25519Public, msg, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig)
}
