package crypto

import (
	"encoding/base64"

	"prekeyd/internal/util/memzero"
)

// B64 returns standard base64 encoding without newlines.
func B64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// Wipe zeroes b. Best effort only.
func Wipe(b []byte) { memzero.Zero(b) }
