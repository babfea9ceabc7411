package envelope

import "github.com/pkg/errors"

var (
	// ErrInvalidSigningKey is returned when the signaling key is not valid base64.
	ErrInvalidSigningKey = errors.New("envelope: invalid signaling key")

	// ErrKeyTooShort is returned when the decoded signaling key is under
	// SignalingKeySize bytes.
	ErrKeyTooShort = errors.New("envelope: signaling key too short")

	// ErrMalformedEnvelope is returned when sealed bytes cannot be parsed.
	ErrMalformedEnvelope = errors.New("envelope: malformed envelope")

	// ErrAuthentication is returned when the tag or padding does not verify.
	ErrAuthentication = errors.New("envelope: authentication failed")
)

// IsKeyError reports whether err is one of the signaling key failures.
func IsKeyError(err error) bool {
	return errors.Is(err, ErrInvalidSigningKey) || errors.Is(err, ErrKeyTooShort)
}
