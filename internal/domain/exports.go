package domain

import (
	interfaces "prekeyd/internal/domain/interfaces"
	types "prekeyd/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	DeviceID            = types.DeviceID
	AmbiguousIdentifier = types.AmbiguousIdentifier
	DeviceSelector      = types.DeviceSelector
	Account             = types.Account
	Device              = types.Device
	OneTimePreKey       = types.OneTimePreKey
	SignedPreKey        = types.SignedPreKey
	BundleDevice        = types.BundleDevice
	KeyBundle           = types.KeyBundle
	KeyUpload           = types.KeyUpload
	KeyCount            = types.KeyCount
	Requester           = types.Requester
	X25519Public        = types.X25519Public
	X25519Private       = types.X25519Private
	Ed25519Public       = types.Ed25519Public
	Ed25519Private      = types.Ed25519Private
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	AccountDirectory     = interfaces.AccountDirectory
	OneTimePreKeyStore   = interfaces.OneTimePreKeyStore
	SignedPreKeyRegistry = interfaces.SignedPreKeyRegistry
	KeyStore             = interfaces.KeyStore
	KeyService           = interfaces.KeyService
	Authenticator        = interfaces.Authenticator
	RateLimiter          = interfaces.RateLimiter
)

const PrimaryDeviceID = types.PrimaryDeviceID

// Error taxonomy shared by every component.
var (
	ErrNotFound          = types.ErrNotFound
	ErrUnauthorized      = types.ErrUnauthorized
	ErrNoKeysAvailable   = types.ErrNoKeysAvailable
	ErrInvalidKeyState   = types.ErrInvalidKeyState
	ErrRateLimited       = types.ErrRateLimited
	ErrUnavailable       = types.ErrUnavailable
	ErrInvalidIdentifier = types.ErrInvalidIdentifier
)

// Constructors and helpers re-exported from the types subpackage.
var (
	Unavailable         = types.Unavailable
	NumberIdentifier    = types.NumberIdentifier
	UUIDIdentifier      = types.UUIDIdentifier
	ParseIdentifier     = types.ParseIdentifier
	ParseDeviceID       = types.ParseDeviceID
	AllDevices          = types.AllDevices
	SingleDevice        = types.SingleDevice
	ParseDeviceSelector = types.ParseDeviceSelector
)
