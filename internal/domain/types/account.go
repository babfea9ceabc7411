package types

import (
	"sort"

	"github.com/google/uuid"
)

// Account is the aggregate the key subsystem reads and conditionally mutates.
type Account struct {
	UUID                           uuid.UUID `json:"uuid"`
	Number                         string    `json:"number"`
	IdentityKey                    *string   `json:"identityKey,omitempty"`
	UnidentifiedAccessKey          []byte    `json:"unidentifiedAccessKey,omitempty"`
	UnrestrictedUnidentifiedAccess bool      `json:"unrestrictedUnidentifiedAccess,omitempty"`
	Enabled                        bool      `json:"enabled"`
	Devices                        []Device  `json:"devices"`
}

// Device is one client installation of an account.
type Device struct {
	ID             DeviceID      `json:"id"`
	RegistrationID uint32        `json:"registrationId"`
	Enabled        bool          `json:"enabled"`
	SignedPreKey   *SignedPreKey `json:"signedPreKey,omitempty"`
	AuthTokenHash  string        `json:"authToken,omitempty"`
}

// Device returns the device with the given id.
func (a Account) Device(id DeviceID) (Device, bool) {
	for _, d := range a.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}

// EnabledDevices returns the enabled devices ordered by id.
func (a Account) EnabledDevices() []Device {
	out := make([]Device, 0, len(a.Devices))
	for _, d := range a.Devices {
		if d.Enabled {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// WithDevice returns a copy of the account with d replacing the device of the
// same id. The second result is false if no such device exists.
func (a Account) WithDevice(d Device) (Account, bool) {
	out := a.Clone()
	for i := range out.Devices {
		if out.Devices[i].ID == d.ID {
			out.Devices[i] = d.Clone()
			return out, true
		}
	}
	return a, false
}

// Clone returns a deep copy so callers may mutate the result freely.
func (a Account) Clone() Account {
	out := a
	if a.IdentityKey != nil {
		k := *a.IdentityKey
		out.IdentityKey = &k
	}
	if a.UnidentifiedAccessKey != nil {
		out.UnidentifiedAccessKey = append([]byte(nil), a.UnidentifiedAccessKey...)
	}
	if a.Devices != nil {
		out.Devices = make([]Device, len(a.Devices))
		for i, d := range a.Devices {
			out.Devices[i] = d.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the device.
func (d Device) Clone() Device {
	out := d
	if d.SignedPreKey != nil {
		k := *d.SignedPreKey
		out.SignedPreKey = &k
	}
	return out
}
