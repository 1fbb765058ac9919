package domain

import (
	interfaces "healthvault/internal/domain/interfaces"
	types "healthvault/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	SessionID           = types.SessionID
	Fingerprint         = types.Fingerprint
	Handle              = types.Handle
	X25519Public        = types.X25519Public
	X25519Private       = types.X25519Private
	Keypair             = types.Keypair
	Identity            = types.Identity
	Signer              = types.Signer
	Caller              = types.Caller
	Session             = types.Session
	SessionSummary      = types.SessionSummary
	SkippedSession      = types.SkippedSession
	Listing             = types.Listing
	CreatedSession      = types.CreatedSession
	SessionCreatedEvent = types.SessionCreatedEvent
	Receipt             = types.Receipt
	CreateReceipt       = types.CreateReceipt
	LedgerInfo          = types.LedgerInfo
	Stats               = types.Stats
	HealthInput         = types.HealthInput
	EncodedInput        = types.EncodedInput
	EncryptValue        = types.EncryptValue
	EncryptedInput      = types.EncryptedInput
	HandleContract      = types.HandleContract
	DecryptRequest      = types.DecryptRequest
	ClearValue          = types.ClearValue
	Grant               = types.Grant
	Result              = types.Result
	RiskTier            = types.RiskTier
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	Subscription     = interfaces.Subscription
	SessionLedger    = interfaces.SessionLedger
	AdminLedger      = interfaces.AdminLedger
	OracleLedger     = interfaces.OracleLedger
	FeeGateway       = interfaces.FeeGateway
	EncryptionEngine = interfaces.EncryptionEngine
	IdentityStore    = interfaces.IdentityStore
	IdentityService  = interfaces.IdentityService
	SessionService   = interfaces.SessionService
	AdminService     = interfaces.AdminService
)

// Risk tiers, re-exported.
const (
	RiskUnknown  = types.RiskUnknown
	RiskLow      = types.RiskLow
	RiskModerate = types.RiskModerate
	RiskHigh     = types.RiskHigh
)

var (
	// PendingResult is the "try again later" decryption outcome.
	PendingResult = types.PendingResult

	NewCaller    = types.NewCaller
	ReadOnly     = types.ReadOnly
	ParseHandle  = types.ParseHandle
	ClassifyRisk = types.ClassifyRisk
)
