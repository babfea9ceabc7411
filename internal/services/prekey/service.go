package prekey

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"

	"github.com/pkg/errors"

	"prekeyd/internal/crypto"
	"prekeyd/internal/domain"
)

// maxKeyID bounds generated key ids; ids wrap below it.
const maxKeyID = 0xFFFFFF

var (
	errBadCount     = errors.New("prekey count must be positive")
	errBadSignature = errors.New("signed prekey signature does not verify")
)

// Identity is an account's long-term signing key pair.
type Identity struct {
	Private domain.Ed25519Private
	Public  domain.Ed25519Public
}

// NewIdentity generates a fresh identity.
func NewIdentity() (Identity, error) {
	priv, pub, err := crypto.GenerateEd25519()
	if err != nil {
		return Identity{}, err
	}
	return Identity{Private: priv, Public: pub}, nil
}

// Material is the output of one generation run: the public upload and the
// private halves the client must keep.
type Material struct {
	Upload              domain.KeyUpload
	SignedPreKeyPrivate domain.X25519Private
	PreKeyPrivates      map[uint32]domain.X25519Private
}

// Wipe zeroes every private key in m.
func (m *Material) Wipe() {
	crypto.Wipe(m.SignedPreKeyPrivate[:])
	for id := range m.PreKeyPrivates {
		m.PreKeyPrivates[id] = domain.X25519Private{}
		delete(m.PreKeyPrivates, id)
	}
}

// Service mints signed prekeys and one-time prekeys for upload.
type Service struct {
	nextID uint32
}

// Option configures a Service.
type Option func(*Service)

// WithStartID makes key ids start at id instead of a random offset.
func WithStartID(id uint32) Option {
	return func(s *Service) { s.nextID = id }
}

// New returns a Service.
func New(opts ...Option) (*Service, error) {
	s := &Service{}
	for _, opt := range opts {
		opt(s)
	}
	if s.nextID == 0 {
		var b [4]byte
		if _, err := rand.Read(b[:]); err != nil {
			return nil, errors.Wrap(err, "random key id")
		}
		s.nextID = binary.BigEndian.Uint32(b[:])
	}
	s.nextID = wrapID(s.nextID)
	return s, nil
}

// Generate creates a signed prekey signed by identity and n one-time
// prekeys, all with consecutive ids.
func (s *Service) Generate(identity Identity, n int) (Material, error) {
	if n <= 0 {
		return Material{}, errBadCount
	}

	spkPriv, spkPub, err := crypto.GenerateX25519()
	if err != nil {
		return Material{}, err
	}
	identityKey := identity.Public.Base64()
	m := Material{
		Upload: domain.KeyUpload{
			IdentityKey: &identityKey,
			SignedPreKey: &domain.SignedPreKey{
				KeyID:     s.takeID(),
				PublicKey: spkPub.Base64(),
				Signature: crypto.B64(crypto.SignEd25519(identity.Private, spkPub.Slice())),
			},
			PreKeys: make([]domain.OneTimePreKey, 0, n),
		},
		SignedPreKeyPrivate: spkPriv,
		PreKeyPrivates:      make(map[uint32]domain.X25519Private, n),
	}

	for i := 0; i < n; i++ {
		priv, pub, err := crypto.GenerateX25519()
		if err != nil {
			m.Wipe()
			return Material{}, err
		}
		id := s.takeID()
		m.Upload.PreKeys = append(m.Upload.PreKeys, domain.OneTimePreKey{KeyID: id, PublicKey: pub.Base64()})
		m.PreKeyPrivates[id] = priv
	}
	return m, nil
}

func (s *Service) takeID() uint32 {
	id := s.nextID
	s.nextID = wrapID(s.nextID + 1)
	return id
}

func wrapID(id uint32) uint32 {
	id %= maxKeyID
	if id == 0 {
		return 1
	}
	return id
}

// VerifySignedPreKey checks that key was signed by identityKey. Both are in
// their base64 wire form.
func VerifySignedPreKey(identityKey string, key domain.SignedPreKey) error {
	identity, err := crypto.ParseEd25519Public(identityKey)
	if err != nil {
		return errors.Wrap(errBadSignature, err.Error())
	}
	pub, err := crypto.ParseX25519Public(key.PublicKey)
	if err != nil {
		return errors.Wrapf(errBadSignature, "signed prekey %d: %v", key.KeyID, err)
	}
	sig, err := base64.StdEncoding.DecodeString(key.Signature)
	if err != nil {
		return errors.Wrap(errBadSignature, "signature encoding")
	}
	if !crypto.VerifyEd25519(identity, pub.Slice(), sig) {
		return errors.Wrapf(errBadSignature, "signed prekey %d", key.KeyID)
	}
	return nil
}

// VerifyBundle checks every signed prekey in bundle against its identity key.
func VerifyBundle(bundle domain.KeyBundle) error {
	if bundle.IdentityKey == nil {
		return errors.Wrap(errBadSignature, "bundle has no identity key")
	}
	for _, d := range bundle.Devices {
		if d.SignedPreKey == nil {
			continue
		}
		if err := VerifySignedPreKey(*bundle.IdentityKey, *d.SignedPreKey); err != nil {
			return errors.Wrapf(err, "device %d", d.DeviceID)
		}
	}
	return nil
}
