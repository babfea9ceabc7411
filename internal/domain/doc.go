// Package domain defines the data model, error taxonomy and capability
// interfaces shared across prekeyd.
//
// It contains plain types (accounts, devices, prekeys, bundles, identifiers)
// in the types subpackage and contracts (directories, stores, services) in the
// interfaces subpackage, re-exported here by alias so callers import a single
// package.
//
// Optional values are pointers or (value, ok) pairs, never zero-valued
// placeholders: a nil SignedPreKey means none was uploaded, a nil PreKey in a
// bundle entry means the device ran out of one-time keys.
//
// Errors
//
//   - ErrNotFound: account or device missing, or a disabled device was
//     requested without an override.
//   - ErrUnauthorized: bad credentials or unidentified-access token.
//   - ErrNoKeysAvailable: the device's one-time prekeys are exhausted. Not
//     fatal; bundles carry an absent slot instead.
//   - ErrInvalidKeyState: an upload violating key invariants.
//   - ErrRateLimited: the requester exceeded its allowance.
//   - ErrUnavailable: a storage collaborator failed, timed out or was
//     cancelled. Use Unavailable to tag such failures.
package domain
