package memzero

import "runtime"

// Zero clears b in place. The compiler may still have copied the contents
// elsewhere; this only scrubs the slice it is given.
func Zero(b []byte) {
	clear(b)
	runtime.KeepAlive(b)
}
