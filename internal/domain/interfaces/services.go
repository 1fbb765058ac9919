package interfaces

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	domaintypes "healthvault/internal/domain/types"
)

// IdentityService creates and loads the owner's signing identity.
type IdentityService interface {
	GenerateIdentity(passphrase string) (common.Address, domaintypes.Fingerprint, error)
	ImportIdentity(passphrase string, hexKey string) (common.Address, error)
	LoadSigner(passphrase string) (domaintypes.Signer, error)
	Address() (common.Address, error)
}

// SessionService is the client-side session protocol.
type SessionService interface {
	CreateSessionAndSubmit(
		ctx context.Context,
		caller domaintypes.Caller,
		input domaintypes.HealthInput,
	) (*domaintypes.CreatedSession, error)
	SubmitInputs(
		ctx context.Context,
		caller domaintypes.Caller,
		id domaintypes.SessionID,
		input domaintypes.HealthInput,
	) (domaintypes.Receipt, error)
	FetchMySessions(ctx context.Context, caller domaintypes.Caller) (*domaintypes.Listing, error)
	DecryptResult(
		ctx context.Context,
		caller domaintypes.Caller,
		id domaintypes.SessionID,
	) (domaintypes.Result, error)
	WatchCreated(
		ctx context.Context,
		sink chan<- domaintypes.SessionCreatedEvent,
	) (Subscription, error)
}

// AdminService is the ledger owner's console.
type AdminService interface {
	Info(ctx context.Context) (domaintypes.LedgerInfo, error)
	Stats(ctx context.Context) (domaintypes.Stats, error)
	WithdrawFees(ctx context.Context, caller domaintypes.Caller, to common.Address) (domaintypes.Receipt, error)
	SetBackendOracle(
		ctx context.Context,
		caller domaintypes.Caller,
		oracle common.Address,
	) (domaintypes.Receipt, error)
}
