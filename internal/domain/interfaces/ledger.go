package interfaces

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	domaintypes "healthvault/internal/domain/types"
)

// Subscription is a live event feed. Unsubscribe is idempotent and closes Err.
type Subscription interface {
	Unsubscribe()
	Err() <-chan error
}

// SessionLedger is the append-only store of health sessions.
//
// State-mutating methods send a transaction and block until it is included or
// ctx ends. A reverted transaction is reported as *domain.ChainError.
type SessionLedger interface {
	// Address is the ledger contract the sessions and ciphertexts are bound to.
	Address() common.Address

	CreateSession(ctx context.Context, from domaintypes.Caller) (domaintypes.CreateReceipt, error)
	SubmitEncryptedInput(
		ctx context.Context,
		from domaintypes.Caller,
		id domaintypes.SessionID,
		weight, height, exercise, diet domaintypes.Handle,
		proof []byte,
	) (domaintypes.Receipt, error)

	Session(ctx context.Context, id domaintypes.SessionID) (domaintypes.Session, error)
	EncryptedResult(ctx context.Context, id domaintypes.SessionID) (domaintypes.Handle, error)
	NextSessionID(ctx context.Context) (uint64, error)

	// SessionCreatedEvents returns the historical creation logs for id.
	SessionCreatedEvents(
		ctx context.Context,
		id domaintypes.SessionID,
	) ([]domaintypes.SessionCreatedEvent, error)
	// BlockTime returns the timestamp of block number.
	BlockTime(ctx context.Context, number uint64) (time.Time, error)
	// WatchSessionCreated streams new creation logs into sink until the
	// subscription ends.
	WatchSessionCreated(
		ctx context.Context,
		sink chan<- domaintypes.SessionCreatedEvent,
	) (Subscription, error)
}

// AdminLedger exposes the owner-only surface of the session ledger.
type AdminLedger interface {
	Owner(ctx context.Context) (common.Address, error)
	BackendOracle(ctx context.Context) (common.Address, error)
	ContractBalance(ctx context.Context) (*big.Int, error)
	VisitFee(ctx context.Context) (*big.Int, error)
	WithdrawFees(ctx context.Context, from domaintypes.Caller, to common.Address) (domaintypes.Receipt, error)
	SetBackendOracle(ctx context.Context, from domaintypes.Caller, oracle common.Address) (domaintypes.Receipt, error)
}

// OracleLedger is the write-back entry point reserved to the backend oracle.
type OracleLedger interface {
	SubmitEncryptedResult(
		ctx context.Context,
		from domaintypes.Caller,
		id domaintypes.SessionID,
		result domaintypes.Handle,
		proof []byte,
	) (domaintypes.Receipt, error)
}

// FeeGateway is the allowance-based token the visit fee is paid in.
type FeeGateway interface {
	Address() common.Address
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	Approve(
		ctx context.Context,
		from domaintypes.Caller,
		spender common.Address,
		amount *big.Int,
	) (domaintypes.Receipt, error)
}
