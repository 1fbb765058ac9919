package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"healthvault/internal/domain"
)

const idFilename = "owner.key.json"

// ErrNoIdentity is returned when no key file exists yet.
var ErrNoIdentity = errors.New("no owner key found; run `healthctl init`")

// IdentityFileStore persists the owner key to disk.
type IdentityFileStore struct {
	dir string
	kdf kdfParams
	mu  sync.Mutex
}

// NewIdentityFileStore returns an IdentityFileStore rooted at dir.
func NewIdentityFileStore(dir string) *IdentityFileStore {
	return &IdentityFileStore{dir: dir, kdf: defaultKDF}
}

// NewFastIdentityFileStore uses cheap scrypt parameters. Tests only.
func NewFastIdentityFileStore(dir string) *IdentityFileStore {
	return &IdentityFileStore{dir: dir, kdf: kdfParams{N: 1 << 10, R: 8, P: 1}}
}

func (s *IdentityFileStore) path() string { return filepath.Join(s.dir, idFilename) }

// SaveIdentity writes the encrypted identity to disk, replacing any previous one.
func (s *IdentityFileStore) SaveIdentity(passphrase string, id domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}
	defer wipe(raw)

	blob, err := seal(passphrase, id.Address, raw, s.kdf)
	if err != nil {
		return fmt.Errorf("seal owner key: %w", err)
	}
	return writeFile(s.path(), blob, 0o600)
}

// LoadIdentity reads and decrypts the identity.
func (s *IdentityFileStore) LoadIdentity(passphrase string) (domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.readBlob()
	if err != nil {
		return domain.Identity{}, err
	}
	pt, err := open(passphrase, b)
	if err != nil {
		return domain.Identity{}, err
	}
	defer wipe(pt)

	var id domain.Identity
	if err := json.Unmarshal(pt, &id); err != nil {
		return domain.Identity{}, err
	}
	if id.Address != b.Address {
		return domain.Identity{}, ErrWrongPassphrase
	}
	return id, nil
}

// HasIdentity reports whether a key file exists.
func (s *IdentityFileStore) HasIdentity() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := readFile(s.path())
	if err != nil {
		return false, err
	}
	return data != nil, nil
}

// StoredAddress returns the owner address from the key file header.
func (s *IdentityFileStore) StoredAddress() (common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.readBlob()
	if err != nil {
		return common.Address{}, err
	}
	return b.Address, nil
}

func (s *IdentityFileStore) readBlob() (keyBlob, error) {
	data, err := readFile(s.path())
	if err != nil {
		return keyBlob{}, err
	}
	if data == nil {
		return keyBlob{}, ErrNoIdentity
	}
	return parseBlob(data)
}

// Compile-time assertion that IdentityFileStore implements domain.IdentityStore.
var _ domain.IdentityStore = (*IdentityFileStore)(nil)
