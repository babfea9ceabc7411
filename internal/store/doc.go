// Package store provides the persistence backends for prekeyd.
//
// Two implementations of domain.KeyStore live here:
//   - MemoryStore keeps accounts and one-time prekeys in process memory. It is
//     the default backend and the one tests run against.
//   - BoltStore persists everything in a single bbolt file. When opened with a
//     passphrase, account records are sealed with XChaCha20-Poly1305 under a
//     scrypt-derived key; one-time prekey public halves stay in the clear.
//
// Both backends take one-time prekeys from a device lowest key id first and
// never hand the same key out twice. Replacing a device's inventory is a
// single step: a concurrent claim sees either the old set or the new one.
//
// Engine failures, including a cancelled context, are reported as
// domain.ErrUnavailable. Missing accounts and devices in the signed prekey
// registry are domain.ErrNotFound; an empty inventory is
// domain.ErrNoKeysAvailable.
//
// Seed files (LoadSeed, SaveSeed, ApplySeed) are the JSON form used to
// provision accounts and device credentials before serving.
package store
