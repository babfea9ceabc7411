package interfaces

import (
	"context"

	"github.com/google/uuid"

	domaintypes "prekeyd/internal/domain/types"
)

// KeyService is the key-bundle assembler consumed by the transport layer.
type KeyService interface {
	KeyCount(ctx context.Context, accountID uuid.UUID, deviceID domaintypes.DeviceID) (int, error)
	SignedPreKey(
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
	UploadKeys(
		ctx context.Context,
		accountID uuid.UUID,
		deviceID domaintypes.DeviceID,
		upload domaintypes.KeyUpload,
	) error
	FetchBundle(
		ctx context.Context,
		target domaintypes.AmbiguousIdentifier,
		selector domaintypes.DeviceSelector,
		requester domaintypes.Requester,
	) (domaintypes.KeyBundle, error)
}

// Authenticator turns an Authorization header into the calling account and
// device.
type Authenticator interface {
	Authenticate(
		ctx context.Context,
		header string,
	) (domaintypes.Account, domaintypes.Device, error)
}

// RateLimiter is the allow/deny contract of a request limiter.
type RateLimiter interface {
	Allow(key string) bool
}
