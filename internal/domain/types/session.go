package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Session mirrors one record of the session ledger.
type Session struct {
	ID          SessionID      `json:"id"`
	Owner       common.Address `json:"owner"`
	Exists      bool           `json:"exists"`
	Weight      Handle         `json:"weight"`
	Height      Handle         `json:"height"`
	Exercise    Handle         `json:"exercise"`
	Diet        Handle         `json:"diet"`
	Result      Handle         `json:"result"`
	ResultReady bool           `json:"result_ready"`
}

// InputsSubmitted reports whether all four input handles are set.
func (s Session) InputsSubmitted() bool {
	return !s.Weight.IsZero() && !s.Height.IsZero() && !s.Exercise.IsZero() && !s.Diet.IsZero()
}

// SessionSummary is one entry of a caller's session history.
type SessionSummary struct {
	ID          SessionID  `json:"id"`
	ResultReady bool       `json:"result_ready"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// SkippedSession records an id dropped from a listing and why.
type SkippedSession struct {
	ID     SessionID `json:"id"`
	Reason error     `json:"-"`
}

// Listing is a best-effort snapshot of a caller's sessions.
//
// Sessions is sorted by descending id. Skipped lists ids whose reads failed;
// they are neither retained nor retried.
type Listing struct {
	Sessions []SessionSummary
	Skipped  []SkippedSession
	Scanned  uint64
}

// CreatedSession is returned once a session exists on the ledger.
type CreatedSession struct {
	ID        SessionID
	CreatedAt *time.Time
	CreateTx  common.Hash
	SubmitTx  common.Hash
	Approved  bool
}

// SessionCreatedEvent is one SessionCreated log of the ledger.
type SessionCreatedEvent struct {
	SessionID   SessionID   `json:"session_id"`
	BlockNumber uint64      `json:"block_number"`
	TxHash      common.Hash `json:"tx_hash"`
	Removed     bool        `json:"removed,omitempty"`
}

// Receipt identifies an included transaction.
type Receipt struct {
	TxHash      common.Hash `json:"tx_hash"`
	BlockNumber uint64      `json:"block_number"`
}

// CreateReceipt is the outcome of a createSession transaction.
//
// Events holds the decoded SessionCreated logs of the transaction. Returned is
// set only when the ledger adapter could simulate the call before sending it.
type CreateReceipt struct {
	Receipt
	Events   []SessionCreatedEvent
	Returned *SessionID
}

// LedgerInfo is the administrative view of the session ledger.
type LedgerInfo struct {
	Owner         common.Address `json:"owner"`
	BackendOracle common.Address `json:"backend_oracle"`
	FeeBalance    string         `json:"fee_balance"`
	VisitFee      string         `json:"visit_fee"`
	NextSessionID uint64         `json:"next_session_id"`
}

// Stats counts sessions by observable state.
type Stats struct {
	Total     uint64 `json:"total"`
	Completed uint64 `json:"completed"`
	Pending   uint64 `json:"pending"`
	Skipped   uint64 `json:"skipped"`
}
