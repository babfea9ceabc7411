// Package keys assembles X3DH key bundles.
//
// Service is the only component that combines the account directory, the
// one-time prekey store and the signed prekey registry. A bundle carries the
// account identity key and, per device, the registration id, the current
// signed prekey if one was uploaded and at most one freshly consumed one-time
// prekey. An exhausted device still gets an entry; its prekey is simply
// absent.
//
// FetchBundle is the entry point for other accounts. It applies the
// optional-access rules of package auth and the requester's rate limit
// before anything is consumed.
//
// Two counters are exported through OpenTelemetry:
//
//	prekeyd.prekeys.issued     one-time prekeys handed out
//	prekeyd.prekeys.exhausted  bundle entries without a one-time prekey
package keys
