package types

// X25519Public is a Curve25519 public key.
type X25519Public [32]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// X25519Private is a Curve25519 private key.
//
// Printing verbs never reveal the key material.
type X25519Private [32]byte

// Slice returns the key as a []byte.
func (k *X25519Private) Slice() []byte { return k[:] }

// String implements fmt.Stringer.
func (X25519Private) String() string { return "X25519Private(redacted)" }

// GoString implements fmt.GoStringer.
func (X25519Private) GoString() string { return "X25519Private(redacted)" }

// Keypair is a single-use X25519 key pair for one decryption call.
type Keypair struct {
	Public  X25519Public
	Private X25519Private
}
