package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"prekeyd/internal/domain"
)

// MemoryStore is a process-local KeyStore. Account aggregates and their signed
// prekeys sit behind one lock; one-time prekeys use PrekeyMemoryStore.
type MemoryStore struct {
	*PrekeyMemoryStore

	mu       sync.RWMutex
	accounts map[uuid.UUID]domain.Account
	numbers  map[string]uuid.UUID
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		PrekeyMemoryStore: NewPrekeyMemoryStore(),
		accounts:          make(map[uuid.UUID]domain.Account),
		numbers:           make(map[string]uuid.UUID),
	}
}

// PutAccount creates or replaces an account.
func (s *MemoryStore) PutAccount(ctx context.Context, account domain.Account) error {
	if err := ctx.Err(); err != nil {
		return domain.Unavailable(err)
	}
	if err := validateAccount(account); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, ok := s.numbers[account.Number]; ok && owner != account.UUID {
		return errors.Errorf("number %s already belongs to %s", account.Number, owner)
	}
	s.putLocked(account)
	return nil
}

// GetAccount resolves id to an account.
func (s *MemoryStore) GetAccount(
	ctx context.Context,
	id domain.AmbiguousIdentifier,
) (domain.Account, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, false, domain.Unavailable(err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.resolveLocked(id)
	if !ok {
		return domain.Account{}, false, nil
	}
	return account.Clone(), true, nil
}

// UpdateAccount replaces an existing account.
func (s *MemoryStore) UpdateAccount(ctx context.Context, account domain.Account) error {
	if err := ctx.Err(); err != nil {
		return domain.Unavailable(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account.UUID]; !ok {
		return errors.Wrapf(domain.ErrNotFound, "account %s", account.UUID)
	}
	if owner, ok := s.numbers[account.Number]; ok && owner != account.UUID {
		return errors.Errorf("number %s already belongs to %s", account.Number, owner)
	}
	s.putLocked(account)
	return nil
}

// SetIdentityKey replaces the account's identity key and returns the old one.
func (s *MemoryStore) SetIdentityKey(ctx context.Context, accountID uuid.UUID, key string) (*string, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Unavailable(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "account %s", accountID)
	}
	previous := account.IdentityKey
	account.IdentityKey = &key
	s.accounts[accountID] = account
	return previous, nil
}

// CompareAndSwapIdentityKey sets the identity key to next if it equals old.
func (s *MemoryStore) CompareAndSwapIdentityKey(
	ctx context.Context,
	accountID uuid.UUID,
	old, next *string,
) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, domain.Unavailable(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return false, errors.Wrapf(domain.ErrNotFound, "account %s", accountID)
	}
	if !sameIdentityKey(account.IdentityKey, old) {
		return false, nil
	}
	account.IdentityKey = cloneString(next)
	s.accounts[accountID] = account
	return true, nil
}

// GetSignedPreKey returns the device's signed prekey if one was uploaded.
func (s *MemoryStore) GetSignedPreKey(
	ctx context.Context,
	accountID uuid.UUID,
	deviceID domain.DeviceID,
) (domain.SignedPreKey, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.SignedPreKey{}, false, domain.Unavailable(err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	device, err := s.deviceLocked(accountID, deviceID)
	if err != nil {
		return domain.SignedPreKey{}, false, err
	}
	if device.SignedPreKey == nil {
		return domain.SignedPreKey{}, false, nil
	}
	return *device.SignedPreKey, true, nil
}

// SetSignedPreKey replaces the device's signed prekey.
func (s *MemoryStore) SetSignedPreKey(
	ctx context.Context,
	accountID uuid.UUID,
	deviceID domain.DeviceID,
	key domain.SignedPreKey,
) error {
	if err := ctx.Err(); err != nil {
		return domain.Unavailable(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	device, err := s.deviceLocked(accountID, deviceID)
	if err != nil {
		return err
	}
	device.SignedPreKey = &key
	account, _ := s.accounts[accountID].WithDevice(device)
	s.accounts[accountID] = account
	return nil
}

// CompareAndSwapSignedPreKey sets the device's signed prekey to next if it
// equals old.
func (s *MemoryStore) CompareAndSwapSignedPreKey(
	ctx context.Context,
	accountID uuid.UUID,
	deviceID domain.DeviceID,
	old, next *domain.SignedPreKey,
) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, domain.Unavailable(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	device, err := s.deviceLocked(accountID, deviceID)
	if err != nil {
		return false, err
	}
	if !sameSignedPreKey(device.SignedPreKey, old) {
		return false, nil
	}
	device.SignedPreKey = cloneSignedPreKey(next)
	account, _ := s.accounts[accountID].WithDevice(device)
	s.accounts[accountID] = account
	return true, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) putLocked(account domain.Account) {
	if prev, ok := s.accounts[account.UUID]; ok && prev.Number != account.Number {
		delete(s.numbers, prev.Number)
	}
	s.accounts[account.UUID] = account.Clone()
	s.numbers[account.Number] = account.UUID
}

func (s *MemoryStore) resolveLocked(id domain.AmbiguousIdentifier) (domain.Account, bool) {
	if number, ok := id.Number(); ok {
		accountID, found := s.numbers[number]
		if !found {
			return domain.Account{}, false
		}
		account, found := s.accounts[accountID]
		return account, found
	}
	if accountID, ok := id.UUID(); ok {
		account, found := s.accounts[accountID]
		return account, found
	}
	return domain.Account{}, false
}

func (s *MemoryStore) deviceLocked(accountID uuid.UUID, deviceID domain.DeviceID) (domain.Device, error) {
	account, ok := s.accounts[accountID]
	if !ok {
		return domain.Device{}, errors.Wrapf(domain.ErrNotFound, "account %s", accountID)
	}
	device, ok := account.Device(deviceID)
	if !ok {
		return domain.Device{}, errors.Wrapf(domain.ErrNotFound, "device %s.%d", accountID, deviceID)
	}
	return device, nil
}

func validateAccount(account domain.Account) error {
	if account.UUID == uuid.Nil {
		return errors.New("account uuid is required")
	}
	if account.Number == "" {
		return errors.New("account number is required")
	}
	return nil
}

// Compile-time assertion that MemoryStore implements domain.KeyStore.
var _ domain.KeyStore = (*MemoryStore)(nil)
