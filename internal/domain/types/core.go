package types

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// SessionID is the ledger-assigned identifier of a health session.
type SessionID uint64

// String returns the decimal form of the identifier.
func (id SessionID) String() string { return strconv.FormatUint(uint64(id), 10) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// Handle is an opaque 32-byte reference to a ciphertext held by the encryption engine.
type Handle [32]byte

// IsZero reports whether the handle is unset.
func (h Handle) IsZero() bool { return h == Handle{} }

// Hex returns the 0x-prefixed hex form of the handle.
func (h Handle) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

// String implements fmt.Stringer.
func (h Handle) String() string { return h.Hex() }

// Slice returns the handle as a []byte.
func (h Handle) Slice() []byte { return h[:] }

// ParseHandle decodes a 0x-prefixed (or bare) 64 character hex string.
func ParseHandle(s string) (Handle, error) {
	var h Handle
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return h, fmt.Errorf("parse handle: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("parse handle: want %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// MarshalText encodes the handle as hex for JSON and YAML.
func (h Handle) MarshalText() ([]byte, error) { return []byte(h.Hex()), nil }

// UnmarshalText mirrors MarshalText.
func (h *Handle) UnmarshalText(b []byte) error {
	parsed, err := ParseHandle(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
