package types

import "github.com/pkg/errors"

var (
	// ErrNotFound is returned when an account or device does not exist, or a
	// disabled device is requested without an override.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when credentials or an unidentified-access
	// token do not check out.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoKeysAvailable is returned when a device has no one-time prekeys left.
	ErrNoKeysAvailable = errors.New("no one-time prekeys available")

	// ErrInvalidKeyState is returned when an upload violates a key invariant.
	ErrInvalidKeyState = errors.New("invalid key state")

	// ErrRateLimited is returned when the requester exceeded its allowance.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrUnavailable is returned when a storage collaborator fails, times out
	// or is cancelled.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrInvalidIdentifier is returned for unparseable account or device ids.
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

type unavailableError struct {
	cause error
}

func (e *unavailableError) Error() string { return ErrUnavailable.Error() + ": " + e.cause.Error() }

func (e *unavailableError) Unwrap() []error { return []error{ErrUnavailable, e.cause} }

// Unavailable tags err as a storage failure. The result matches both
// ErrUnavailable and err under errors.Is. Nil stays nil and errors already
// tagged are returned as is.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	return &unavailableError{cause: err}
}
