package interfaces

import (
	"context"

	"github.com/google/uuid"

	domaintypes "prekeyd/internal/domain/types"
)

// AccountDirectory resolves and persists account aggregates.
type AccountDirectory interface {
	GetAccount(
		ctx context.Context,
		id domaintypes.AmbiguousIdentifier,
	) (domaintypes.Account, bool, error)
	// UpdateAccount replaces the stored aggregate. The account must exist.
	UpdateAccount(ctx context.Context, account domaintypes.Account) error
	// SetIdentityKey replaces only the identity key and returns the key it
	// replaced.
	SetIdentityKey(ctx context.Context, accountID uuid.UUID, key string) (previous *string, err error)
	// CompareAndSwapIdentityKey sets the identity key to next if it currently
	// equals old. A nil key means none is set.
	CompareAndSwapIdentityKey(
		ctx context.Context,
		accountID uuid.UUID,
		old, next *string,
	) (swapped bool, err error)
}

// OneTimePreKeyStore owns the single-use prekey inventory of each device.
type OneTimePreKeyStore interface {
	// ReplaceAll discards every key of the device and installs keys.
	ReplaceAll(
		ctx context.Context,
		accountID uuid.UUID,
		deviceID domaintypes.DeviceID,
		keys []domaintypes.OneTimePreKey,
	) error
	// ConsumeOne removes and returns the lowest-id key, or ErrNoKeysAvailable.
	ConsumeOne(
		ctx context.Context,
		accountID uuid.UUID,
		deviceID domaintypes.DeviceID,
	) (domaintypes.OneTimePreKey, error)
	// ConsumeAll takes at most one key from each listed device. Exhausted
	// devices map to nil.
	ConsumeAll(
		ctx context.Context,
		accountID uuid.UUID,
		deviceIDs []domaintypes.DeviceID,
	) (map[domaintypes.DeviceID]*domaintypes.OneTimePreKey, error)
	CountRemaining(
		ctx context.Context,
		accountID uuid.UUID,
		deviceID domaintypes.DeviceID,
	) (int, error)
}

// SignedPreKeyRegistry owns the one active signed prekey of each device.
type SignedPreKeyRegistry interface {
	GetSignedPreKey(
		ctx context.Context,
		accountID uuid.UUID,
		deviceID domaintypes.DeviceID,
	) (domaintypes.SignedPreKey, bool, error)
	SetSignedPreKey(
		ctx context.Context,
		accountID uuid.UUID,
		deviceID domaintypes.DeviceID,
		key domaintypes.SignedPreKey,
	) error
	// CompareAndSwapSignedPreKey sets the device's signed prekey to next if
	// it currently equals old. A nil key means none is set.
	CompareAndSwapSignedPreKey(
		ctx context.Context,
		accountID uuid.UUID,
		deviceID domaintypes.DeviceID,
		old, next *domaintypes.SignedPreKey,
	) (swapped bool, err error)
}

// KeyStore is a storage engine that provides every key-subsystem capability.
type KeyStore interface {
	AccountDirectory
	OneTimePreKeyStore
	SignedPreKeyRegistry
	Close() error
}
