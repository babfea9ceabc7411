// Package app wires prekeyd's dependencies for the CLI.
//
// Config is read with viper from a yaml file and PREKEYD_ environment
// variables, on top of NewDefaultConfig. NewWire builds the store, the key
// service, the authenticator, the operation policy and the HTTP server from
// it, applying the account seed file when one is configured. App serves the
// result until its context is cancelled.
package app
