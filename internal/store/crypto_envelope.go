package store

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	// The current supported version of the sealed record format stored in bolt.
	recordFormatVersion = 1

	saltSize = 16
)

var (
	// Returned when the passphrase is incorrect or a record has been modified / corrupted.
	errWrongPassphrase = errors.New("wrong storage passphrase or corrupted record")

	// Plaintext sealed under the derived key at creation, checked at open.
	passphraseVerifier = []byte("prekeyd-store")
)

// sealedRecord is the on-disk JSON structure of an encrypted value.
type sealedRecord struct {
	V      int    `json:"v"`
	Nonce  []byte `json:"nonce"`
	Cipher []byte `json:"cipher"`
}

// recordSealer encrypts bolt values under a key derived once from the storage
// passphrase. Each record gets a random XChaCha20 nonce and is bound to its
// bolt key as associated data.
type recordSealer struct {
	aead cipher.AEAD
}

// newRecordSealer derives the record key from passphrase and salt.
func newRecordSealer(passphrase string, salt []byte) (*recordSealer, error) {
	N, r, p := scryptParamsDefault()
	key, err := scrypt.Key([]byte(passphrase), salt, N, r, p, chacha20poly1305.KeySize)
	if err != nil {
		return nil, errors.Wrap(err, "derive storage key")
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "storage cipher")
	}
	return &recordSealer{aead: aead}, nil
}

func newSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrap(err, "storage salt")
	}
	return salt, nil
}

// seal encrypts raw and binds it to ad.
func (s *recordSealer) seal(raw, ad []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "record nonce")
	}
	return json.Marshal(sealedRecord{
		V:      recordFormatVersion,
		Nonce:  nonce,
		Cipher: s.aead.Seal(nil, nonce, raw, ad),
	})
}

// open reverses seal.
func (s *recordSealer) open(b, ad []byte) ([]byte, error) {
	var rec sealedRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, errors.Wrap(err, "decode sealed record")
	}
	if rec.V > recordFormatVersion {
		return nil, errors.Errorf("unsupported record version %d", rec.V)
	}
	if len(rec.Nonce) != s.aead.NonceSize() {
		return nil, errWrongPassphrase
	}
	pt, err := s.aead.Open(nil, rec.Nonce, rec.Cipher, ad)
	if err != nil {
		return nil, errWrongPassphrase
	}
	return pt, nil
}

// Tunables for scrypt key derivation.
func scryptParamsDefault() (N, r, p int) { return 1 << 15, 8, 1 }
