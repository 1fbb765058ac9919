package store

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	// The current supported version of the encrypted key format stored on disk.
	keystoreFormatVersion = 1
)

var (
	// ErrWrongPassphrase is returned when the passphrase is incorrect or the
	// ciphertext has been modified.
	ErrWrongPassphrase = errors.New("wrong passphrase or corrupted key file")
)

// keyBlob is the on-disk JSON structure holding the sealed key and KDF parameters.
type keyBlob struct {
	V       int            `json:"v"`
	Address common.Address `json:"address"`
	Salt    []byte         `json:"salt"`
	N       int            `json:"scrypt_N"`
	R       int            `json:"scrypt_r"`
	P       int            `json:"scrypt_p"`
	Cipher  []byte         `json:"cipher"`
}

// associatedData binds the clear address header to the ciphertext.
func (b keyBlob) associatedData() []byte {
	return append(append([]byte(nil), b.Salt...), b.Address.Bytes()...)
}

// seal derives a key from passphrase and seals raw into a JSON blob.
func seal(passphrase string, addr common.Address, raw []byte, params kdfParams) ([]byte, error) {
	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, err
	}
	key, err := scrypt.Key([]byte(passphrase), salt[:], params.N, params.R, params.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	defer wipe(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	b := keyBlob{
		V:       keystoreFormatVersion,
		Address: addr,
		Salt:    salt[:],
		N:       params.N,
		R:       params.R,
		P:       params.P,
	}
	var nonce [chacha20poly1305.NonceSize]byte // zero nonce; salt-bound key is never reused
	b.Cipher = aead.Seal(nil, nonce[:], raw, b.associatedData())
	return json.MarshalIndent(b, "", "  ")
}

// parseBlob decodes the JSON blob without opening it.
func parseBlob(data []byte) (keyBlob, error) {
	var b keyBlob
	if err := json.Unmarshal(data, &b); err != nil {
		return keyBlob{}, fmt.Errorf("decode key file: %w", err)
	}
	if b.V > keystoreFormatVersion {
		return keyBlob{}, fmt.Errorf("unsupported key file version %d", b.V)
	}
	return b, nil
}

// open decrypts b using a key derived from passphrase.
func open(passphrase string, b keyBlob) ([]byte, error) {
	key, err := scrypt.Key([]byte(passphrase), b.Salt, b.N, b.R, b.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	defer wipe(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	pt, err := aead.Open(nil, nonce[:], b.Cipher, b.associatedData())
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}

// kdfParams are the scrypt tunables.
type kdfParams struct{ N, R, P int }

// defaultKDF is used for new key files.
var defaultKDF = kdfParams{N: 1 << 15, R: 8, P: 1}
