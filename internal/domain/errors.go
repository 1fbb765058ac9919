package domain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Sentinels for the error taxonomy. Every typed error below matches exactly one
// of them through errors.Is.
var (
	ErrValidation        = errors.New("invalid input")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrChain             = errors.New("transaction failed")
	ErrTimeout           = errors.New("timed out waiting for inclusion")
	ErrProtocol          = errors.New("protocol error")
	ErrEncryption        = errors.New("encryption failed")

	// ErrNoSigner is returned when an operation that must sign is given a
	// read-only caller.
	ErrNoSigner = errors.New("caller has no signer for its address")
)

// ValidationError reports a plaintext value outside its domain.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %s: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InsufficientFundsError reports a fee balance below the visit fee.
type InsufficientFundsError struct {
	Balance  *big.Int
	Required *big.Int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient fee balance: have %s, need %s", e.Balance, e.Required)
}

func (e *InsufficientFundsError) Is(target error) bool { return target == ErrInsufficientFunds }

// ChainError reports a transaction that was rejected, reverted or never sent.
type ChainError struct {
	Op     string
	TxHash common.Hash
	Err    error
}

func (e *ChainError) Error() string {
	if e.TxHash != (common.Hash{}) {
		return fmt.Sprintf("%s: tx %s: %v", e.Op, e.TxHash.Hex(), e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ChainError) Unwrap() error { return e.Err }

func (e *ChainError) Is(target error) bool { return target == ErrChain }

// TimeoutError reports an inclusion wait that exceeded its bound. The
// transaction may still be included later.
type TimeoutError struct {
	Op     string
	TxHash common.Hash
	After  time.Duration
}

func (e *TimeoutError) Error() string {
	if e.TxHash != (common.Hash{}) {
		return fmt.Sprintf("%s: tx %s not included after %s", e.Op, e.TxHash.Hex(), e.After)
	}
	return fmt.Sprintf("%s: not included after %s", e.Op, e.After)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout || target == context.DeadlineExceeded
}

// ProtocolError reports an expected event or handle missing despite a success
// signal from the ledger.
type ProtocolError struct {
	Op     string
	Reason string
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("%s: %s", e.Op, e.Reason) }

func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

// EncryptionError reports a failure of the encryption engine.
type EncryptionError struct {
	Op  string
	Err error
}

func (e *EncryptionError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *EncryptionError) Unwrap() error { return e.Err }

func (e *EncryptionError) Is(target error) bool { return target == ErrEncryption }

// Remedy is the user-facing action a failure calls for.
type Remedy int

const (
	RemedyNone Remedy = iota
	RemedyFixInput
	RemedyAddFunds
	RemedyRetry
	RemedyTryLater
	RemedyInternal
)

// String implements fmt.Stringer.
func (r Remedy) String() string {
	switch r {
	case RemedyNone:
		return "none"
	case RemedyFixInput:
		return "fix your input"
	case RemedyAddFunds:
		return "add funds or approve the fee"
	case RemedyRetry:
		return "transaction failed, retry"
	case RemedyTryLater:
		return "try again later"
	default:
		return "internal protocol error"
	}
}

// RemedyFor classifies err into the action a user interface should offer.
func RemedyFor(err error) Remedy {
	switch {
	case err == nil:
		return RemedyNone
	case errors.Is(err, ErrValidation):
		return RemedyFixInput
	case errors.Is(err, ErrInsufficientFunds):
		return RemedyAddFunds
	case errors.Is(err, ErrTimeout):
		return RemedyTryLater
	case errors.Is(err, ErrChain), errors.Is(err, ErrEncryption), errors.Is(err, context.Canceled):
		return RemedyRetry
	default:
		return RemedyInternal
	}
}
