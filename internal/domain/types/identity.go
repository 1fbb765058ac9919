package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Identity holds the owner's long-term secp256k1 key as stored locally.
type Identity struct {
	Address    common.Address `json:"address"`
	PrivateKey []byte         `json:"private_key"`
}

// Signer is the owner's persistent signing identity.
type Signer interface {
	// Address is the account the signer acts for.
	Address() common.Address
	// SignTypedData signs an EIP-712 structured message and returns a 65-byte
	// [R || S || V] signature with V in {27, 28}.
	SignTypedData(data apitypes.TypedData) ([]byte, error)
	// SignTx signs a ledger transaction for the given chain.
	SignTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error)
}

// Caller is the explicit account context passed to every client operation.
//
// Read-only operations only need Address. Operations that send transactions or
// sign authorization grants also need Signer.
type Caller struct {
	Address common.Address
	Signer  Signer
}

// NewCaller returns a Caller acting through s.
func NewCaller(s Signer) Caller {
	return Caller{Address: s.Address(), Signer: s}
}

// ReadOnly returns a Caller that can only read ledger state.
func ReadOnly(addr common.Address) Caller {
	return Caller{Address: addr}
}

// CanSign reports whether the caller carries a signer matching its address.
func (c Caller) CanSign() bool {
	return c.Signer != nil && c.Signer.Address() == c.Address
}
