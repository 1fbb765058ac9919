package crypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/nacl/box"

	"healthvault/internal/domain"
)

// ErrOpen is returned when a sealed box fails authentication.
var ErrOpen = errors.New("sealed box: authentication failed")

// Seal encrypts msg to recipient with an anonymous sender.
func Seal(recipient domain.X25519Public, msg []byte) ([]byte, error) {
	pub := [32]byte(recipient)
	return box.SealAnonymous(nil, msg, &pub, rand.Reader)
}

// Open decrypts a box produced by Seal for the key pair (pub, priv).
func Open(priv *domain.X25519Private, pub domain.X25519Public, sealed []byte) ([]byte, error) {
	p := [32]byte(pub)
	out, ok := box.OpenAnonymous(nil, sealed, &p, (*[32]byte)(priv))
	if !ok {
		return nil, ErrOpen
	}
	return out, nil
}
