package crypto

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/pkg/errors"
	"golang.org/x/crypto/curve25519"

	"prekeyd/internal/domain"
)

// GenerateX25519 returns a fresh prekey pair with the private half clamped.
func GenerateX25519() (priv domain.X25519Private, pub domain.X25519Public, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return priv, pub, errors.Wrap(err, "generate prekey")
	}
	clamp(&priv)
	pb, err := curve25519.X25519(priv.Slice(), curve25519.Basepoint)
	if err != nil {
		return priv, pub, errors.Wrap(err, "derive prekey public half")
	}
	copy(pub[:], pb)
	return priv, pub, nil
}

// ParseX25519Public decodes a base64 prekey public key.
func ParseX25519Public(s string) (pub domain.X25519Public, err error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return pub, errors.Wrap(err, "prekey encoding")
	}
	if len(raw) != curve25519.PointSize {
		return pub, errors.Errorf("prekey is %d bytes, want %d", len(raw), curve25519.PointSize)
	}
	copy(pub[:], raw)
	return pub, nil
}

func clamp(k *domain.X25519Private) {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}
