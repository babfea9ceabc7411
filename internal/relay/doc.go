// Package relay is the HTTP face of prekeyd.
//
// Server exposes the key service as JSON over HTTP:
//
//	GET  /v2/keys                        remaining one-time prekey count
//	PUT  /v2/keys                        upload identity, signed and one-time keys
//	GET  /v2/keys/signed                 current signed prekey
//	PUT  /v2/keys/signed                 replace the signed prekey
//	GET  /v2/keys/{identifier}/{device}  fetch a bundle; device may be "*"
//
// Callers authenticate with HTTP Basic credentials. Bundle fetches may
// instead carry an Unidentified-Access-Key header. Domain errors map to
// statuses through StatusFor and are returned as {"error": "..."}.
//
// Client is the matching Go client. Non-2xx replies come back as
// *StatusError, which unwraps to the domain error of the status.
package relay
