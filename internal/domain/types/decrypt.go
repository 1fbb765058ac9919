package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// HandleContract names a ciphertext and the contract it is bound to.
type HandleContract struct {
	Handle   Handle         `json:"handle"`
	Contract common.Address `json:"contractAddress"`
}

// DecryptRequest carries everything the engine needs for one user decryption.
//
// PrivateKey never leaves the process: engines use it to open the re-encrypted
// values they receive. Callers wipe it after the call returns.
type DecryptRequest struct {
	Pairs        []HandleContract
	PrivateKey   X25519Private
	PublicKey    X25519Public
	Signature    string // hex, no 0x prefix
	Contracts    []common.Address
	User         common.Address
	Start        int64 // unix seconds
	DurationDays int
}

// ClearValue is one decrypted value. Bool is set when the engine answered with
// a boolean sentinel instead of a number.
type ClearValue struct {
	Int  *big.Int
	Bool *bool
}

// Grant is a signed authorization to decrypt ciphertexts bound to Contracts.
type Grant struct {
	PublicKey    X25519Public
	Contracts    []common.Address
	Start        time.Time
	DurationDays int
	Signature    string // hex, no 0x prefix
}

// Expires returns the end of the grant's validity window.
func (g Grant) Expires() time.Time {
	return g.Start.Add(time.Duration(g.DurationDays) * 24 * time.Hour)
}

// Result is the outcome of a decryption attempt.
//
// A pending result is not an error: the ledger has no result yet, or the engine
// has not authorized the caller yet.
type Result struct {
	Pending bool
	Value   *big.Int
}

// PendingResult is the "try again later" outcome.
var PendingResult = Result{Pending: true}

// String returns the decimal cleartext, or "pending".
func (r Result) String() string {
	if r.Pending || r.Value == nil {
		return "pending"
	}
	return r.Value.String()
}

// RiskTier is the consumer-facing classification of a decrypted result.
type RiskTier int

const (
	RiskUnknown RiskTier = iota - 1
	RiskLow
	RiskModerate
	RiskHigh
)

// String implements fmt.Stringer.
func (t RiskTier) String() string {
	switch t {
	case RiskLow:
		return "low"
	case RiskModerate:
		return "moderate"
	case RiskHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Advice returns the guidance shown next to a tier.
func (t RiskTier) Advice() string {
	switch t {
	case RiskLow:
		return "You're in great shape. Keep up your current routine and stay active every day."
	case RiskModerate:
		return "Your health is generally fine, but there's room for improvement. Exercise more regularly and eat balanced meals."
	case RiskHigh:
		return "Your health level needs attention. Consider consulting a doctor or nutritionist for a personalized plan."
	default:
		return ""
	}
}

// ClassifyRisk maps a decrypted result to its tier.
func ClassifyRisk(r Result) RiskTier {
	if r.Pending || r.Value == nil || !r.Value.IsInt64() {
		return RiskUnknown
	}
	switch r.Value.Int64() {
	case 0:
		return RiskLow
	case 1:
		return RiskModerate
	case 2:
		return RiskHigh
	default:
		return RiskUnknown
	}
}
