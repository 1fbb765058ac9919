package identity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/ethereum/go-ethereum/common"

	"healthvault/internal/crypto"
	"healthvault/internal/domain"
)

const (
	// minPassphraseLength defines the minimum number of characters required for a passphrase.
	minPassphraseLength = 12
)

var (
	// ErrWeakPassphrase is returned when the passphrase fails the strength policy.
	ErrWeakPassphrase = fmt.Errorf(
		"passphrase is too weak (must be at least %d characters and include upper, lower, "+
			"number, and symbol)",
		minPassphraseLength,
	)

	// ErrIdentityExists is returned when init would overwrite an existing key.
	ErrIdentityExists = errors.New("an owner key already exists")
)

// Service manages owner key creation and access using a backing store.
type Service struct {
	store domain.IdentityStore
}

// New returns an identity service backed by the given store.
func New(s domain.IdentityStore) *Service { return &Service{store: s} }

// GenerateIdentity creates a new owner key, saves it encrypted with the
// passphrase, and returns its address plus a short fingerprint of the public key.
func (s *Service) GenerateIdentity(passphrase string) (common.Address, domain.Fingerprint, error) {
	if !isSecurePassphrase(passphrase) {
		return common.Address{}, "", ErrWeakPassphrase
	}
	if err := s.ensureEmpty(); err != nil {
		return common.Address{}, "", err
	}

	id, err := crypto.GenerateOwnerKey()
	if err != nil {
		return common.Address{}, "", err
	}
	defer crypto.Wipe(id.PrivateKey)

	signer, err := crypto.NewKeySigner(id.PrivateKey)
	if err != nil {
		return common.Address{}, "", err
	}
	if err := s.store.SaveIdentity(passphrase, id); err != nil {
		return common.Address{}, "", err
	}
	return id.Address, domain.Fingerprint(crypto.Fingerprint(signer.PublicKeyBytes())), nil
}

// ImportIdentity stores an existing hex-encoded private key.
func (s *Service) ImportIdentity(passphrase, hexKey string) (common.Address, error) {
	if !isSecurePassphrase(passphrase) {
		return common.Address{}, ErrWeakPassphrase
	}
	if err := s.ensureEmpty(); err != nil {
		return common.Address{}, err
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("decode private key: %w", err)
	}
	defer crypto.Wipe(raw)

	signer, err := crypto.NewKeySigner(raw)
	if err != nil {
		return common.Address{}, err
	}
	id := domain.Identity{Address: signer.Address(), PrivateKey: raw}
	if err := s.store.SaveIdentity(passphrase, id); err != nil {
		return common.Address{}, err
	}
	return id.Address, nil
}

// LoadSigner decrypts the owner key and returns a signer for it.
func (s *Service) LoadSigner(passphrase string) (domain.Signer, error) {
	id, err := s.store.LoadIdentity(passphrase)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(id.PrivateKey)

	signer, err := crypto.NewKeySigner(id.PrivateKey)
	if err != nil {
		return nil, err
	}
	if signer.Address() != id.Address {
		return nil, fmt.Errorf("stored key does not match address %s", id.Address.Hex())
	}
	return signer, nil
}

// Address returns the owner address without decrypting the key.
func (s *Service) Address() (common.Address, error) {
	return s.store.StoredAddress()
}

func (s *Service) ensureEmpty() error {
	ok, err := s.store.HasIdentity()
	if err != nil {
		return err
	}
	if ok {
		return ErrIdentityExists
	}
	return nil
}

// isSecurePassphrase enforces a basic strength policy.
func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}

// Compile-time assertion that Service implements domain.IdentityService.
var _ domain.IdentityService = (*Service)(nil)
