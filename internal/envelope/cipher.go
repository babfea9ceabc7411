package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"github.com/pkg/errors"

	"prekeyd/internal/util/memzero"
)

// Cipher seals and opens envelopes under per-account signaling keys. The zero
// value is not usable; call New. A Cipher holds no mutable state and is safe
// for concurrent use.
type Cipher struct {
	rand io.Reader
}

// Option configures a Cipher.
type Option func(*Cipher)

// WithRandom sets the IV source. It defaults to crypto/rand.
func WithRandom(r io.Reader) Option {
	return func(c *Cipher) { c.rand = r }
}

// New returns a Cipher.
func New(opts ...Option) *Cipher {
	c := &Cipher{rand: rand.Reader}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var defaultCipher = New()

// Seal encrypts plaintext with the default Cipher.
func Seal(plaintext []byte, signalingKey string) ([]byte, error) {
	return defaultCipher.Seal(plaintext, signalingKey)
}

// Open decrypts sealed with the default Cipher.
func Open(sealed []byte, signalingKey string) ([]byte, error) {
	return defaultCipher.Open(sealed, signalingKey)
}

// Seal returns version || iv || AES-256-CBC(plaintext) || HMAC-SHA256[:10].
//
// Only a malformed or short signaling key is reported as an error. Failures of
// the random source or the block cipher panic.
func (c *Cipher) Seal(plaintext []byte, signalingKey string) ([]byte, error) {
	keys, err := deriveKeys(signalingKey)
	if err != nil {
		return nil, err
	}
	defer keys.wipe()

	block := mustBlock(keys.cipher)
	padded := pad(plaintext, block.BlockSize())

	out := make([]byte, versionSize+IVSize+len(padded), versionSize+IVSize+len(padded)+MACSize)
	out[0] = Version
	iv := out[versionSize : versionSize+IVSize]
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		panic(errors.Wrap(err, "envelope: read iv"))
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[versionSize+IVSize:], padded)

	return append(out, keys.tag(out)...), nil
}

// Open verifies and decrypts an envelope produced by Seal.
func (c *Cipher) Open(sealed []byte, signalingKey string) ([]byte, error) {
	keys, err := deriveKeys(signalingKey)
	if err != nil {
		return nil, err
	}
	defer keys.wipe()

	if len(sealed) < minSealedSize {
		return nil, errors.Wrapf(ErrMalformedEnvelope, "%d bytes", len(sealed))
	}
	if sealed[0] != Version {
		return nil, errors.Wrapf(ErrMalformedEnvelope, "unsupported version %d", sealed[0])
	}
	body, tag := sealed[:len(sealed)-MACSize], sealed[len(sealed)-MACSize:]
	ct := body[versionSize+IVSize:]
	if len(ct)%aes.BlockSize != 0 {
		return nil, errors.Wrap(ErrMalformedEnvelope, "ciphertext is not block aligned")
	}
	if !hmac.Equal(keys.tag(body), tag) {
		return nil, ErrAuthentication
	}

	block := mustBlock(keys.cipher)
	pt := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, body[versionSize:versionSize+IVSize]).CryptBlocks(pt, ct)
	return unpad(pt, block.BlockSize())
}

type subkeys struct {
	cipher []byte
	mac    []byte
	raw    []byte
}

// deriveKeys splits the decoded signaling key into [0,32) and [32,52).
func deriveKeys(signalingKey string) (subkeys, error) {
	raw, err := base64.StdEncoding.DecodeString(signalingKey)
	if err != nil {
		return subkeys{}, errors.Wrap(ErrInvalidSigningKey, err.Error())
	}
	if len(raw) < SignalingKeySize {
		memzero.Zero(raw)
		return subkeys{}, errors.Wrapf(ErrKeyTooShort, "%d bytes, need %d", len(raw), SignalingKeySize)
	}
	return subkeys{
		cipher: raw[:CipherKeySize],
		mac:    raw[CipherKeySize:SignalingKeySize],
		raw:    raw,
	}, nil
}

func (k subkeys) tag(data []byte) []byte {
	h := hmac.New(sha256.New, k.mac)
	h.Write(data)
	return h.Sum(nil)[:MACSize]
}

func (k subkeys) wipe() { memzero.Zero(k.raw) }

func mustBlock(key []byte) cipher.Block {
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(errors.Wrap(err, "envelope: aes"))
	}
	return block
}

// pad applies PKCS#5/PKCS#7 padding.
func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, ErrAuthentication
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size {
		return nil, ErrAuthentication
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, ErrAuthentication
		}
	}
	return b[:len(b)-n], nil
}
