// Package commands defines the prekeyd CLI.
//
// Commands
//
//   - serve          Run the key distribution server
//   - seal, open     Encrypt or decrypt an envelope with a signaling key
//   - genkeys        Generate an identity and prekeys as upload JSON
//   - upload         Upload generated keys for the --user device
//   - fetch          Fetch a bundle for a number or uuid
//   - count          Print the --user device's remaining one-time prekeys
//   - signed         Print the --user device's signed prekey
//   - account add    Add an account to the seed file
//
// # Implementation
//
// The root command loads configuration and builds the logger before any
// subcommand runs. Client commands share one relay.Client built from the
// --server, --user and --password flags, each call bounded by a timeout.
package commands
