// Package crypto holds the key primitives behind prekey generation and
// bundle verification.
//
// Contents
//
//   - Prekey pairs on Curve25519 (GenerateX25519, ParseX25519Public)
//   - Identity keys on Ed25519 (GenerateEd25519, ParseEd25519Public,
//     SignEd25519, VerifyEd25519)
//   - Short public-key fingerprints for logs (Fingerprint, FingerprintString)
//   - Best-effort wiping of private halves (Wipe)
//
// # Notes
//
// Key types are the fixed-size arrays from internal/domain. Parse functions
// take the base64 wire form used in uploads and bundles.
package crypto
