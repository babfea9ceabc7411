// Package prekey mints the key material a client uploads to prekeyd.
//
// A run produces one X25519 signed prekey, signed with the account's Ed25519
// identity, and a batch of X25519 one-time prekeys with consecutive ids. The
// public halves form a domain.KeyUpload; the private halves are returned to
// the caller once and should be wiped after they are stored.
//
// VerifySignedPreKey and VerifyBundle check fetched bundles on the receiving
// side.
package prekey
