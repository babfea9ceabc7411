package types

// Requester describes who is asking for key material. Either field may be
// nil; a request with neither is unauthorized.
type Requester struct {
	// Account and Device are set when the caller authenticated.
	Account *Account
	Device  *Device

	// AccessToken is the raw base64 unidentified-access token, if supplied.
	AccessToken *string
}

// Authenticated reports whether the requester presented valid credentials.
func (r Requester) Authenticated() bool { return r.Account != nil }

// Owns reports whether the authenticated requester is the given account.
func (r Requester) Owns(account Account) bool {
	return r.Account != nil && r.Account.UUID == account.UUID
}
