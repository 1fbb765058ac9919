package crypto

import (
	"crypto/rand"

	"golang.org/x/crypto/curve25519"

	"healthvault/internal/domain"
)

// GenerateX25519 returns a fresh Curve25519 key pair.
// The private key is clamped per RFC 7748.
func GenerateX25519() (priv domain.X25519Private, pub domain.X25519Public, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return
	}
	clamp(&priv)
	pb, err := curve25519.X25519(priv.Slice(), curve25519.Basepoint)
	if err != nil {
		Wipe(priv.Slice())
		return
	}
	copy(pub[:], pb)
	return
}

// GenerateKeypair returns a single-use key pair for one decryption call.
func GenerateKeypair() (domain.Keypair, error) {
	priv, pub, err := GenerateX25519()
	if err != nil {
		return domain.Keypair{}, err
	}
	return domain.Keypair{Public: pub, Private: priv}, nil
}

// WipeKeypair zeroes the private half of kp.
func WipeKeypair(kp *domain.Keypair) {
	if kp == nil {
		return
	}
	Wipe(kp.Private.Slice())
}

func clamp(k *domain.X25519Private) {
	kb := k[:]
	kb[0] &= 248
	kb[31] &= 127
	kb[31] |= 64
}
