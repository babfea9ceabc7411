package envelope

import "crypto/aes"

const (
	// Version is the format byte leading every sealed envelope.
	Version byte = 0x01

	// CipherKeySize is the AES-256 subkey length taken from the signaling key.
	CipherKeySize = 32

	// MACKeySize is the HMAC-SHA256 subkey length taken after the cipher key.
	MACKeySize = 20

	// MACSize is the length of the truncated authentication tag.
	MACSize = 10

	// IVSize is the CBC initialization vector length.
	IVSize = aes.BlockSize

	// SignalingKeySize is the minimum decoded signaling key length.
	SignalingKeySize = CipherKeySize + MACKeySize

	versionSize = 1

	// minSealedSize covers version, IV, one padded block and the tag.
	minSealedSize = versionSize + IVSize + aes.BlockSize + MACSize
)
