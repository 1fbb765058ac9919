package interfaces

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	domaintypes "healthvault/internal/domain/types"
)

// EncryptionEngine is the external capability that turns plaintext integers
// into ciphertext handles and reveals them to authorized users.
//
// Key pair generation and grant construction are local operations (see
// internal/crypto) and are not part of this interface.
type EncryptionEngine interface {
	// Encrypt encrypts values as one batch bound to (contract, owner) and
	// returns one handle per value plus a proof covering the batch.
	Encrypt(
		ctx context.Context,
		contract, owner common.Address,
		values []domaintypes.EncryptValue,
	) (domaintypes.EncryptedInput, error)

	// UserDecrypt reveals the requested handles to req.User. Handles the grant
	// does not cover are absent from the result.
	UserDecrypt(
		ctx context.Context,
		req domaintypes.DecryptRequest,
	) (map[domaintypes.Handle]domaintypes.ClearValue, error)
}
