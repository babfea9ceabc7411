package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"prekeyd/internal/domain"
	"prekeyd/internal/logger"
)

var (
	bucketAccounts = []byte("accounts")
	bucketNumbers  = []byte("numbers")
	bucketPrekeys  = []byte("prekeys")
	bucketMeta     = []byte("meta")

	metaSalt     = []byte("salt")
	metaVerifier = []byte("verifier")
)

// BoltStore is a KeyStore persisted in a bbolt file.
//
// Accounts are JSON records keyed by UUID, with a number index. One-time
// prekeys of a device live in their own nested bucket keyed by big-endian key
// id, so a cursor's first entry is the lowest id. Every mutation is a single
// bbolt write transaction.
type BoltStore struct {
	db         *bbolt.DB
	log        logger.Logger
	passphrase string
	timeout    time.Duration
	noSync     bool
	sealer     *recordSealer
}

// BoltOption configures a BoltStore.
type BoltOption func(*BoltStore)

// WithLogger sets the logger for the store.
func WithLogger(l logger.Logger) BoltOption {
	return func(b *BoltStore) { b.log = l }
}

// WithPassphrase encrypts account records at rest under a key derived from
// passphrase. A store created with a passphrase cannot be opened without it.
func WithPassphrase(passphrase string) BoltOption {
	return func(b *BoltStore) { b.passphrase = passphrase }
}

// WithOpenTimeout bounds how long Open waits for the file lock.
func WithOpenTimeout(d time.Duration) BoltOption {
	return func(b *BoltStore) { b.timeout = d }
}

// WithNoSync disables fsync per transaction. Use only in tests.
func WithNoSync(noSync bool) BoltOption {
	return func(b *BoltStore) { b.noSync = noSync }
}

// OpenBoltStore opens or creates the store at path.
func OpenBoltStore(path string, opts ...BoltOption) (*BoltStore, error) {
	s := &BoltStore{
		log:     logger.NewDiscard(),
		timeout: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: s.timeout, NoSync: s.noSync})
	if err != nil {
		return nil, errors.Wrapf(err, "open bolt store %s", path)
	}
	s.db = db

	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.log.Debugf("opened bolt store %s (sealed=%t)", path, s.sealer != nil)
	return s, nil
}

func (s *BoltStore) init() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketAccounts, bucketNumbers, bucketPrekeys, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return errors.Wrapf(err, "create bucket %s", name)
			}
		}

		meta := tx.Bucket(bucketMeta)
		salt := meta.Get(metaSalt)
		switch {
		case salt == nil && s.passphrase == "":
			return nil
		case salt != nil && s.passphrase == "":
			return errors.New("bolt store is sealed; storage passphrase required")
		case salt == nil:
			if k, _ := tx.Bucket(bucketAccounts).Cursor().First(); k != nil {
				return errors.New("bolt store holds unsealed records; cannot add a passphrase")
			}
			fresh, err := newSalt()
			if err != nil {
				return err
			}
			if s.sealer, err = newRecordSealer(s.passphrase, fresh); err != nil {
				return err
			}
			verifier, err := s.sealer.seal(passphraseVerifier, metaVerifier)
			if err != nil {
				return err
			}
			if err := meta.Put(metaSalt, fresh); err != nil {
				return err
			}
			return meta.Put(metaVerifier, verifier)
		default:
			sealer, err := newRecordSealer(s.passphrase, append([]byte(nil), salt...))
			if err != nil {
				return err
			}
			if _, err := sealer.open(meta.Get(metaVerifier), metaVerifier); err != nil {
				return err
			}
			s.sealer = sealer
			return nil
		}
	})
}

// Close releases the database file.
func (s *BoltStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PutAccount creates or replaces an account.
func (s *BoltStore) PutAccount(ctx context.Context, account domain.Account) error {
	if err := validateAccount(account); err != nil {
		return err
	}
	return s.update(ctx, func(tx *bbolt.Tx) error {
		return s.putAccountTx(tx, account)
	})
}

// GetAccount resolves id to an account.
func (s *BoltStore) GetAccount(
	ctx context.Context,
	id domain.AmbiguousIdentifier,
) (account domain.Account, ok bool, err error) {
	err = s.view(ctx, func(tx *bbolt.Tx) error {
		accountID, found := resolveTx(tx, id)
		if !found {
			return nil
		}
		account, ok, err = s.accountTx(tx, accountID)
		return err
	})
	return account, ok, err
}

// UpdateAccount replaces an existing account.
func (s *BoltStore) UpdateAccount(ctx context.Context, account domain.Account) error {
	return s.update(ctx, func(tx *bbolt.Tx) error {
		if _, ok, err := s.accountTx(tx, account.UUID); err != nil {
			return err
		} else if !ok {
			return errors.Wrapf(domain.ErrNotFound, "account %s", account.UUID)
		}
		return s.putAccountTx(tx, account)
	})
}

// SetIdentityKey replaces the account's identity key and returns the old one.
func (s *BoltStore) SetIdentityKey(ctx context.Context, accountID uuid.UUID, key string) (previous *string, err error) {
	err = s.update(ctx, func(tx *bbolt.Tx) error {
		account, ok, err := s.accountTx(tx, accountID)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(domain.ErrNotFound, "account %s", accountID)
		}
		previous = account.IdentityKey
		account.IdentityKey = &key
		return s.putAccountTx(tx, account)
	})
	return previous, err
}

// CompareAndSwapIdentityKey sets the identity key to next if it equals old.
func (s *BoltStore) CompareAndSwapIdentityKey(
	ctx context.Context,
	accountID uuid.UUID,
	old, next *string,
) (swapped bool, err error) {
	err = s.update(ctx, func(tx *bbolt.Tx) error {
		account, ok, err := s.accountTx(tx, accountID)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(domain.ErrNotFound, "account %s", accountID)
		}
		if !sameIdentityKey(account.IdentityKey, old) {
			return nil
		}
		account.IdentityKey = cloneString(next)
		swapped = true
		return s.putAccountTx(tx, account)
	})
	return swapped && err == nil, err
}

// GetSignedPreKey returns the device's signed prekey if one was uploaded.
func (s *BoltStore) GetSignedPreKey(
	ctx context.Context,
	accountID uuid.UUID,
	deviceID domain.DeviceID,
) (key domain.SignedPreKey, ok bool, err error) {
	err = s.view(ctx, func(tx *bbolt.Tx) error {
		_, device, err := s.deviceTx(tx, accountID, deviceID)
		if err != nil {
			return err
		}
		if device.SignedPreKey != nil {
			key, ok = *device.SignedPreKey, true
		}
		return nil
	})
	return key, ok, err
}

// SetSignedPreKey replaces the device's signed prekey.
func (s *BoltStore) SetSignedPreKey(
	ctx context.Context,
	accountID uuid.UUID,
	deviceID domain.DeviceID,
	key domain.SignedPreKey,
) error {
	return s.update(ctx, func(tx *bbolt.Tx) error {
		account, device, err := s.deviceTx(tx, accountID, deviceID)
		if err != nil {
			return err
		}
		device.SignedPreKey = &key
		account, _ = account.WithDevice(device)
		return s.putAccountTx(tx, account)
	})
}

// CompareAndSwapSignedPreKey sets the device's signed prekey to next if it
// equals old.
func (s *BoltStore) CompareAndSwapSignedPreKey(
	ctx context.Context,
	accountID uuid.UUID,
	deviceID domain.DeviceID,
	old, next *domain.SignedPreKey,
) (swapped bool, err error) {
	err = s.update(ctx, func(tx *bbolt.Tx) error {
		account, device, err := s.deviceTx(tx, accountID, deviceID)
		if err != nil {
			return err
		}
		if !sameSignedPreKey(device.SignedPreKey, old) {
			return nil
		}
		device.SignedPreKey = cloneSignedPreKey(next)
		account, _ = account.WithDevice(device)
		swapped = true
		return s.putAccountTx(tx, account)
	})
	return swapped && err == nil, err
}

// ReplaceAll discards the device's keys and installs keys.
func (s *BoltStore) ReplaceAll(
	ctx context.Context,
	accountID uuid.UUID,
	deviceID domain.DeviceID,
	keys []domain.OneTimePreKey,
) error {
	return s.update(ctx, func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketPrekeys)
		name := deviceBucketKey(accountID, deviceID)
		if root.Bucket(name) != nil {
			if err := root.DeleteBucket(name); err != nil {
				return errors.Wrap(err, "drop prekeys")
			}
		}
		b, err := root.CreateBucket(name)
		if err != nil {
			return errors.Wrap(err, "create prekeys")
		}
		for _, k := range keys {
			if err := b.Put(keyIDBytes(k.KeyID), []byte(k.PublicKey)); err != nil {
				return errors.Wrapf(err, "put prekey %d", k.KeyID)
			}
		}
		return nil
	})
}

// ConsumeOne removes and returns the device's lowest-id key.
func (s *BoltStore) ConsumeOne(
	ctx context.Context,
	accountID uuid.UUID,
	deviceID domain.DeviceID,
) (key domain.OneTimePreKey, err error) {
	err = s.update(ctx, func(tx *bbolt.Tx) error {
		var ok bool
		key, ok, err = popTx(tx, accountID, deviceID)
		if err == nil && !ok {
			return domain.ErrNoKeysAvailable
		}
		return err
	})
	return key, err
}

// ConsumeAll takes at most one key from each device in deviceIDs within a
// single transaction.
func (s *BoltStore) ConsumeAll(
	ctx context.Context,
	accountID uuid.UUID,
	deviceIDs []domain.DeviceID,
) (map[domain.DeviceID]*domain.OneTimePreKey, error) {
	out := make(map[domain.DeviceID]*domain.OneTimePreKey, len(deviceIDs))
	err := s.update(ctx, func(tx *bbolt.Tx) error {
		for _, id := range deviceIDs {
			key, ok, err := popTx(tx, accountID, id)
			if err != nil {
				return err
			}
			if ok {
				out[id] = &key
			} else {
				out[id] = nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountRemaining returns how many keys the device has left.
func (s *BoltStore) CountRemaining(
	ctx context.Context,
	accountID uuid.UUID,
	deviceID domain.DeviceID,
) (n int, err error) {
	err = s.view(ctx, func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPrekeys).Bucket(deviceBucketKey(accountID, deviceID))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func (s *BoltStore) view(ctx context.Context, fn func(*bbolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return domain.Unavailable(err)
	}
	return classify(s.db.View(fn))
}

func (s *BoltStore) update(ctx context.Context, fn func(*bbolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return domain.Unavailable(err)
	}
	return classify(s.db.Update(fn))
}

// classify passes domain outcomes through and tags everything else as an
// engine failure.
func classify(err error) error {
	switch {
	case err == nil,
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrNoKeysAvailable):
		return err
	}
	return domain.Unavailable(err)
}

func (s *BoltStore) accountTx(tx *bbolt.Tx, accountID uuid.UUID) (domain.Account, bool, error) {
	raw := tx.Bucket(bucketAccounts).Get(accountID[:])
	if raw == nil {
		return domain.Account{}, false, nil
	}
	if s.sealer != nil {
		var err error
		if raw, err = s.sealer.open(raw, accountID[:]); err != nil {
			return domain.Account{}, false, err
		}
	}
	var account domain.Account
	if err := json.Unmarshal(raw, &account); err != nil {
		return domain.Account{}, false, errors.Wrapf(err, "decode account %s", accountID)
	}
	return account, true, nil
}

func (s *BoltStore) putAccountTx(tx *bbolt.Tx, account domain.Account) error {
	numbers := tx.Bucket(bucketNumbers)
	if owner := numbers.Get([]byte(account.Number)); owner != nil && !bytesEqualUUID(owner, account.UUID) {
		return errors.Errorf("number %s already belongs to another account", account.Number)
	}
	prev, ok, err := s.accountTx(tx, account.UUID)
	if err != nil {
		return err
	}
	if ok && prev.Number != account.Number {
		if err := numbers.Delete([]byte(prev.Number)); err != nil {
			return err
		}
	}

	raw, err := json.Marshal(account)
	if err != nil {
		return errors.Wrap(err, "encode account")
	}
	if s.sealer != nil {
		if raw, err = s.sealer.seal(raw, account.UUID[:]); err != nil {
			return err
		}
	}
	if err := tx.Bucket(bucketAccounts).Put(account.UUID[:], raw); err != nil {
		return errors.Wrap(err, "put account")
	}
	return numbers.Put([]byte(account.Number), account.UUID[:])
}

func (s *BoltStore) deviceTx(
	tx *bbolt.Tx,
	accountID uuid.UUID,
	deviceID domain.DeviceID,
) (domain.Account, domain.Device, error) {
	account, ok, err := s.accountTx(tx, accountID)
	if err != nil {
		return domain.Account{}, domain.Device{}, err
	}
	if !ok {
		return domain.Account{}, domain.Device{}, errors.Wrapf(domain.ErrNotFound, "account %s", accountID)
	}
	device, ok := account.Device(deviceID)
	if !ok {
		return domain.Account{}, domain.Device{}, errors.Wrapf(domain.ErrNotFound, "device %s.%d", accountID, deviceID)
	}
	return account, device, nil
}

func resolveTx(tx *bbolt.Tx, id domain.AmbiguousIdentifier) (uuid.UUID, bool) {
	if number, ok := id.Number(); ok {
		raw := tx.Bucket(bucketNumbers).Get([]byte(number))
		if raw == nil {
			return uuid.Nil, false
		}
		accountID, err := uuid.FromBytes(raw)
		return accountID, err == nil
	}
	if accountID, ok := id.UUID(); ok {
		return accountID, tx.Bucket(bucketAccounts).Get(accountID[:]) != nil
	}
	return uuid.Nil, false
}

func popTx(tx *bbolt.Tx, accountID uuid.UUID, deviceID domain.DeviceID) (domain.OneTimePreKey, bool, error) {
	b := tx.Bucket(bucketPrekeys).Bucket(deviceBucketKey(accountID, deviceID))
	if b == nil {
		return domain.OneTimePreKey{}, false, nil
	}
	c := b.Cursor()
	k, v := c.First()
	if k == nil {
		return domain.OneTimePreKey{}, false, nil
	}
	key := domain.OneTimePreKey{
		KeyID:     binary.BigEndian.Uint32(k),
		PublicKey: string(v),
	}
	if err := c.Delete(); err != nil {
		return domain.OneTimePreKey{}, false, errors.Wrap(err, "delete prekey")
	}
	return key, true, nil
}

func deviceBucketKey(accountID uuid.UUID, deviceID domain.DeviceID) []byte {
	out := make([]byte, 0, len(accountID)+4)
	out = append(out, accountID[:]...)
	return binary.BigEndian.AppendUint32(out, uint32(deviceID))
}

func keyIDBytes(id uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, id)
}

func bytesEqualUUID(b []byte, id uuid.UUID) bool {
	other, err := uuid.FromBytes(b)
	return err == nil && other == id
}

// Compile-time assertion that BoltStore implements domain.KeyStore.
var _ domain.KeyStore = (*BoltStore)(nil)
