// Package envelope protects server-originated message envelopes before they
// are handed to a push channel the server does not fully trust.
//
// Each account shares a signaling key with the server, stored in its base64
// form. The decoded key must be at least 52 bytes: bytes [0,32) are the
// AES-256 key and bytes [32,52) the HMAC-SHA256 key. Anything after byte 52 is
// ignored.
//
// Wire layout
//
//	byte 0          format version (0x01)
//	bytes 1..17     random IV, one per Seal call
//	bytes 17..N-10  AES-256-CBC ciphertext with PKCS#5 padding
//	bytes N-10..N   first 10 bytes of HMAC-SHA256(version || iv || ciphertext)
//
// Errors
//
// A signaling key that is not base64 yields ErrInvalidSigningKey and a short
// one ErrKeyTooShort; these are the only failures Seal reports. Open also
// returns ErrMalformedEnvelope and ErrAuthentication. A failing random source
// or block cipher construction means the runtime is broken and panics.
package envelope
