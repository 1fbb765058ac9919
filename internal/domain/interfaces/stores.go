package interfaces

import (
	"github.com/ethereum/go-ethereum/common"

	domaintypes "healthvault/internal/domain/types"
)

// IdentityStore persists the owner's long-term signing key.
type IdentityStore interface {
	SaveIdentity(passphrase string, id domaintypes.Identity) error
	LoadIdentity(passphrase string) (domaintypes.Identity, error)
	HasIdentity() (bool, error)
	// StoredAddress returns the address recorded next to the encrypted key,
	// without decrypting it.
	StoredAddress() (common.Address, error)
}
