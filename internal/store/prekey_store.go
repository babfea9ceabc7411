package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"prekeyd/internal/domain"
)

type deviceKey struct {
	account uuid.UUID
	device  domain.DeviceID
}

// inventory is one device's one-time prekeys in ascending key id order.
type inventory struct {
	mu   sync.Mutex
	keys []domain.OneTimePreKey
}

// PrekeyMemoryStore keeps one-time prekeys in memory. Replace and consume on
// a device are serialized by that device's lock.
type PrekeyMemoryStore struct {
	mu          sync.RWMutex
	inventories map[deviceKey]*inventory
}

// NewPrekeyMemoryStore returns an empty PrekeyMemoryStore.
func NewPrekeyMemoryStore() *PrekeyMemoryStore {
	return &PrekeyMemoryStore{inventories: make(map[deviceKey]*inventory)}
}

// ReplaceAll discards the device's keys and installs keys.
func (s *PrekeyMemoryStore) ReplaceAll(
	ctx context.Context,
	accountID uuid.UUID,
	deviceID domain.DeviceID,
	keys []domain.OneTimePreKey,
) error {
	if err := ctx.Err(); err != nil {
		return domain.Unavailable(err)
	}
	next := normalizePreKeys(keys)

	k := deviceKey{accountID, deviceID}
	s.mu.Lock()
	inv, ok := s.inventories[k]
	if !ok {
		inv = &inventory{}
		s.inventories[k] = inv
	}
	s.mu.Unlock()

	inv.mu.Lock()
	inv.keys = next
	inv.mu.Unlock()
	return nil
}

// ConsumeOne removes and returns the device's lowest-id key.
func (s *PrekeyMemoryStore) ConsumeOne(
	ctx context.Context,
	accountID uuid.UUID,
	deviceID domain.DeviceID,
) (domain.OneTimePreKey, error) {
	if err := ctx.Err(); err != nil {
		return domain.OneTimePreKey{}, domain.Unavailable(err)
	}
	key, ok := s.take(accountID, deviceID)
	if !ok {
		return domain.OneTimePreKey{}, domain.ErrNoKeysAvailable
	}
	return key, nil
}

// ConsumeAll takes at most one key from each device in deviceIDs. The
// context is checked once up front so a cancellation never discards keys
// already taken.
func (s *PrekeyMemoryStore) ConsumeAll(
	ctx context.Context,
	accountID uuid.UUID,
	deviceIDs []domain.DeviceID,
) (map[domain.DeviceID]*domain.OneTimePreKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Unavailable(err)
	}
	out := make(map[domain.DeviceID]*domain.OneTimePreKey, len(deviceIDs))
	for _, id := range deviceIDs {
		if key, ok := s.take(accountID, id); ok {
			out[id] = &key
		} else {
			out[id] = nil
		}
	}
	return out, nil
}

func (s *PrekeyMemoryStore) take(accountID uuid.UUID, deviceID domain.DeviceID) (domain.OneTimePreKey, bool) {
	inv := s.lookup(accountID, deviceID)
	if inv == nil {
		return domain.OneTimePreKey{}, false
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if len(inv.keys) == 0 {
		return domain.OneTimePreKey{}, false
	}
	key := inv.keys[0]
	inv.keys = inv.keys[1:]
	return key, true
}

// CountRemaining returns how many keys the device has left.
func (s *PrekeyMemoryStore) CountRemaining(
	ctx context.Context,
	accountID uuid.UUID,
	deviceID domain.DeviceID,
) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, domain.Unavailable(err)
	}
	inv := s.lookup(accountID, deviceID)
	if inv == nil {
		return 0, nil
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return len(inv.keys), nil
}

func (s *PrekeyMemoryStore) lookup(accountID uuid.UUID, deviceID domain.DeviceID) *inventory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inventories[deviceKey{accountID, deviceID}]
}

// normalizePreKeys orders keys by id; a repeated id keeps its last value.
func normalizePreKeys(keys []domain.OneTimePreKey) []domain.OneTimePreKey {
	byID := make(map[uint32]domain.OneTimePreKey, len(keys))
	for _, k := range keys {
		byID[k.KeyID] = k
	}
	out := make([]domain.OneTimePreKey, 0, len(byID))
	for _, k := range byID {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].KeyID < out[j].KeyID })
	return out
}

// Compile-time assertion that PrekeyMemoryStore implements domain.OneTimePreKeyStore.
var _ domain.OneTimePreKeyStore = (*PrekeyMemoryStore)(nil)
