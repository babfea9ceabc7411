package types

// OneTimePreKey is a single-use public prekey published by a device.
type OneTimePreKey struct {
	KeyID     uint32 `json:"keyId"`
	PublicKey string `json:"publicKey"`
}

// SignedPreKey is a medium-lived public prekey endorsed by the identity key.
type SignedPreKey struct {
	KeyID     uint32 `json:"keyId"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
}

// BundleDevice is one device entry of a KeyBundle. A nil SignedPreKey means
// none was ever uploaded; a nil PreKey means the inventory is exhausted.
type BundleDevice struct {
	DeviceID       DeviceID       `json:"deviceId"`
	RegistrationID uint32         `json:"registrationId"`
	SignedPreKey   *SignedPreKey  `json:"signedPreKey,omitempty"`
	PreKey         *OneTimePreKey `json:"preKey,omitempty"`
}

// KeyBundle is everything a peer needs to start sessions with an account.
type KeyBundle struct {
	IdentityKey *string        `json:"identityKey"`
	Devices     []BundleDevice `json:"devices"`
}

// Device returns the entry for id.
func (b KeyBundle) Device(id DeviceID) (BundleDevice, bool) {
	for _, d := range b.Devices {
		if d.DeviceID == id {
			return d, true
		}
	}
	return BundleDevice{}, false
}

// KeyUpload is the payload a device publishes to replace its key material.
type KeyUpload struct {
	IdentityKey  *string         `json:"identityKey,omitempty"`
	SignedPreKey *SignedPreKey   `json:"signedPreKey"`
	PreKeys      []OneTimePreKey `json:"preKeys"`
}

// KeyCount reports how many one-time prekeys a device has left.
type KeyCount struct {
	Count int `json:"count"`
}
