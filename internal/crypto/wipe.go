package crypto

import (
	"runtime"

	"healthvault/internal/util/memzero"
)

// Wipe zeroes the provided buffer. This is best-effort and aims to
// reduce the chance of the compiler eliding the write.
//
//go:noinline
func Wipe(b []byte) {
	memzero.Zero(b)
	// Ensure b is considered live until after the copy.
	runtime.KeepAlive(&b)
}
