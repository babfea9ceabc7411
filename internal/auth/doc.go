// Package auth holds caller identification and authorization for prekeyd.
//
// BasicAuthenticator turns an HTTP Basic header into an account and device.
// CheckAccess applies the optional-access rules to bundle fetches, where a
// caller may present either credentials or an unidentified-access token.
// Policy is a casbin ACL over subject classes and key operations.
package auth
