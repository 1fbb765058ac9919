// Package identity manages creation, encryption and loading of the owner's
// signing key.
//
// It enforces passphrase policy, generates or imports secp256k1 keys, and
// persists them via the domain.IdentityStore. Loaded keys are returned as a
// domain.Signer so callers never handle raw key bytes.
package identity
