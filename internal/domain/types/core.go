package types

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// DeviceID identifies a device within an account.
type DeviceID uint32

// PrimaryDeviceID is the id of an account's primary device.
const PrimaryDeviceID DeviceID = 1

// String returns the decimal form of the device id.
func (id DeviceID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParseDeviceID parses a decimal device id.
func ParseDeviceID(s string) (DeviceID, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 0 {
		return 0, errors.Wrapf(ErrInvalidIdentifier, "device id %q", s)
	}
	return DeviceID(n), nil
}

type identifierKind uint8

const (
	numberIdentifier identifierKind = iota + 1
	uuidIdentifier
)

// AmbiguousIdentifier names an account either by its number or by its UUID.
type AmbiguousIdentifier struct {
	kind   identifierKind
	number string
	uuid   uuid.UUID
}

// NumberIdentifier builds an identifier from an account number.
func NumberIdentifier(number string) AmbiguousIdentifier {
	return AmbiguousIdentifier{kind: numberIdentifier, number: number}
}

// UUIDIdentifier builds an identifier from an account UUID.
func UUIDIdentifier(id uuid.UUID) AmbiguousIdentifier {
	return AmbiguousIdentifier{kind: uuidIdentifier, uuid: id}
}

// ParseIdentifier treats s as a UUID when it parses as one and as a number
// otherwise.
func ParseIdentifier(s string) (AmbiguousIdentifier, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return AmbiguousIdentifier{}, errors.Wrap(ErrInvalidIdentifier, "empty account identifier")
	}
	if id, err := uuid.Parse(s); err == nil {
		return UUIDIdentifier(id), nil
	}
	return NumberIdentifier(s), nil
}

// Number returns the account number if this is a number identifier.
func (a AmbiguousIdentifier) Number() (string, bool) {
	return a.number, a.kind == numberIdentifier
}

// UUID returns the account UUID if this is a UUID identifier.
func (a AmbiguousIdentifier) UUID() (uuid.UUID, bool) {
	return a.uuid, a.kind == uuidIdentifier
}

// IsZero reports whether the identifier was never set.
func (a AmbiguousIdentifier) IsZero() bool { return a.kind == 0 }

func (a AmbiguousIdentifier) String() string {
	switch a.kind {
	case numberIdentifier:
		return a.number
	case uuidIdentifier:
		return a.uuid.String()
	}
	return ""
}

// DeviceSelector picks either one device or every enabled device of an
// account.
type DeviceSelector struct {
	all bool
	id  DeviceID
}

// AllDevices selects every enabled device.
func AllDevices() DeviceSelector { return DeviceSelector{all: true} }

// SingleDevice selects one device by id.
func SingleDevice(id DeviceID) DeviceSelector { return DeviceSelector{id: id} }

// ParseDeviceSelector accepts "*" or a decimal device id.
func ParseDeviceSelector(s string) (DeviceSelector, error) {
	if s == "*" {
		return AllDevices(), nil
	}
	id, err := ParseDeviceID(s)
	if err != nil {
		return DeviceSelector{}, err
	}
	return SingleDevice(id), nil
}

// Device returns the selected device id unless every device is selected.
func (d DeviceSelector) Device() (DeviceID, bool) { return d.id, !d.all }

func (d DeviceSelector) String() string {
	if d.all {
		return "*"
	}
	return d.id.String()
}
