package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"healthvault/internal/crypto"
	"healthvault/internal/domain"
)

const (
	// DefaultVisitFee is 10.0 units of a 6-decimal fee token.
	DefaultVisitFee = 10_000_000

	DefaultInclusionTimeout = 2 * time.Minute
	DefaultScanConcurrency  = 8
	DefaultGrantDays        = 10
)

// Config tunes the session client.
type Config struct {
	// VisitFee is the per-session fee in the token's smallest unit.
	VisitFee *big.Int
	// InclusionTimeout bounds every wait for a transaction to be included.
	InclusionTimeout time.Duration
	// ScanConcurrency caps in-flight reads during discovery.
	ScanConcurrency int
	// GrantDays is the validity window of decryption grants.
	GrantDays int
	// GrantDomain is the EIP-712 domain grants are signed under.
	GrantDomain crypto.GrantDomain
}

func (c Config) withDefaults() Config {
	if c.VisitFee == nil {
		c.VisitFee = big.NewInt(DefaultVisitFee)
	}
	if c.InclusionTimeout <= 0 {
		c.InclusionTimeout = DefaultInclusionTimeout
	}
	if c.ScanConcurrency <= 0 {
		c.ScanConcurrency = DefaultScanConcurrency
	}
	if c.GrantDays <= 0 {
		c.GrantDays = DefaultGrantDays
	}
	return c
}

// Service orchestrates fee preflight, session creation, encrypted submission,
// discovery and decryption against the external ledger, fee token and
// encryption engine.
type Service struct {
	ledger domain.SessionLedger
	fees   domain.FeeGateway
	engine domain.EncryptionEngine
	cfg    Config
	log    *logrus.Logger
	now    func() time.Time
}

// New constructs a session Service. A nil logger discards output.
func New(
	ledger domain.SessionLedger,
	fees domain.FeeGateway,
	engine domain.EncryptionEngine,
	cfg Config,
	log *logrus.Logger,
) *Service {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	return &Service{
		ledger: ledger,
		fees:   fees,
		engine: engine,
		cfg:    cfg.withDefaults(),
		log:    log,
		now:    time.Now,
	}
}

// WithClock replaces the time source used for grant start timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

// inclusionCtx bounds a state-mutating ledger call.
func (s *Service) inclusionCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.InclusionTimeout)
}

// classify maps a failed state-mutating call onto the error taxonomy. A
// deadline there is an inclusion wait running out. Errors that already belong
// to the taxonomy pass through unchanged.
func (s *Service) classify(op string, err error) error {
	var (
		te *domain.TimeoutError
		ce *domain.ChainError
		pe *domain.ProtocolError
	)
	switch {
	case err == nil:
		return nil
	case errors.As(err, &te), errors.As(err, &ce), errors.As(err, &pe):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return &domain.TimeoutError{Op: op, After: s.cfg.InclusionTimeout}
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return &domain.ChainError{Op: op, Err: err}
	}
}

// classifyRead maps a failed read-only call. A deadline on a read is a
// ChainError, never a TimeoutError, and still matches context.DeadlineExceeded.
func classifyRead(op string, err error) error {
	var (
		ce *domain.ChainError
		pe *domain.ProtocolError
	)
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ce), errors.As(err, &pe):
		return err
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return &domain.ChainError{Op: op, Err: err}
	}
}

// Compile-time assertion that Service implements domain.SessionService.
var _ domain.SessionService = (*Service)(nil)
