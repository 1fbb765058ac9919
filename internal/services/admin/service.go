package admin

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"healthvault/internal/domain"
	sessionsvc "healthvault/internal/services/session"
)

var (
	// ErrNotOwner is returned when a non-owner calls an owner-only operation.
	ErrNotOwner = errors.New("caller is not the ledger owner")

	// ErrZeroAddress is returned for a zero recipient or oracle address.
	ErrZeroAddress = errors.New("address must not be zero")
)

// Ledger is the ledger surface the console needs.
type Ledger interface {
	domain.SessionLedger
	domain.AdminLedger
}

// Service implements domain.AdminService.
type Service struct {
	ledger      Ledger
	concurrency int
	log         *logrus.Logger
}

// New returns an admin service. A nil logger discards output.
func New(ledger Ledger, scanConcurrency int, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	return &Service{ledger: ledger, concurrency: scanConcurrency, log: log}
}

// Info reads the ledger's administrative state.
func (s *Service) Info(ctx context.Context) (domain.LedgerInfo, error) {
	owner, err := s.ledger.Owner(ctx)
	if err != nil {
		return domain.LedgerInfo{}, &domain.ChainError{Op: "read owner", Err: err}
	}
	oracle, err := s.ledger.BackendOracle(ctx)
	if err != nil {
		return domain.LedgerInfo{}, &domain.ChainError{Op: "read backend oracle", Err: err}
	}
	balance, err := s.ledger.ContractBalance(ctx)
	if err != nil {
		return domain.LedgerInfo{}, &domain.ChainError{Op: "read fee balance", Err: err}
	}
	fee, err := s.ledger.VisitFee(ctx)
	if err != nil {
		return domain.LedgerInfo{}, &domain.ChainError{Op: "read visit fee", Err: err}
	}
	next, err := s.ledger.NextSessionID(ctx)
	if err != nil {
		return domain.LedgerInfo{}, &domain.ChainError{Op: "read next session id", Err: err}
	}
	return domain.LedgerInfo{
		Owner:         owner,
		BackendOracle: oracle,
		FeeBalance:    balance.String(),
		VisitFee:      fee.String(),
		NextSessionID: next,
	}, nil
}

// Stats counts existing sessions by whether their result is ready.
func (s *Service) Stats(ctx context.Context) (domain.Stats, error) {
	scan, err := sessionsvc.Scan(ctx, s.ledger, s.concurrency)
	if err != nil {
		return domain.Stats{}, err
	}
	st := domain.Stats{Skipped: uint64(len(scan.Skipped))}
	for _, sess := range scan.Sessions {
		if !sess.Exists {
			continue
		}
		st.Total++
		if sess.ResultReady {
			st.Completed++
		} else {
			st.Pending++
		}
	}
	return st, nil
}

// WithdrawFees sends the collected fees to `to`.
func (s *Service) WithdrawFees(
	ctx context.Context,
	caller domain.Caller,
	to common.Address,
) (domain.Receipt, error) {
	if to == (common.Address{}) {
		return domain.Receipt{}, ErrZeroAddress
	}
	if err := s.requireOwner(ctx, caller); err != nil {
		return domain.Receipt{}, err
	}
	rcpt, err := s.ledger.WithdrawFees(ctx, caller, to)
	if err != nil {
		return domain.Receipt{}, wrapChain("withdraw fees", err)
	}
	s.log.WithFields(logrus.Fields{"to": to.Hex(), "tx": rcpt.TxHash.Hex()}).Info("fees withdrawn")
	return rcpt, nil
}

// SetBackendOracle rotates the account allowed to write results.
func (s *Service) SetBackendOracle(
	ctx context.Context,
	caller domain.Caller,
	oracle common.Address,
) (domain.Receipt, error) {
	if oracle == (common.Address{}) {
		return domain.Receipt{}, ErrZeroAddress
	}
	if err := s.requireOwner(ctx, caller); err != nil {
		return domain.Receipt{}, err
	}
	rcpt, err := s.ledger.SetBackendOracle(ctx, caller, oracle)
	if err != nil {
		return domain.Receipt{}, wrapChain("set backend oracle", err)
	}
	s.log.WithFields(logrus.Fields{"oracle": oracle.Hex(), "tx": rcpt.TxHash.Hex()}).Info("backend oracle updated")
	return rcpt, nil
}

func (s *Service) requireOwner(ctx context.Context, caller domain.Caller) error {
	if !caller.CanSign() {
		return domain.ErrNoSigner
	}
	owner, err := s.ledger.Owner(ctx)
	if err != nil {
		return &domain.ChainError{Op: "read owner", Err: err}
	}
	if owner != caller.Address {
		return fmt.Errorf("%w: owner is %s", ErrNotOwner, owner.Hex())
	}
	return nil
}

func wrapChain(op string, err error) error {
	var ce *domain.ChainError
	if errors.As(err, &ce) || errors.Is(err, domain.ErrTimeout) {
		return err
	}
	return &domain.ChainError{Op: op, Err: err}
}

// Compile-time assertion that Service implements domain.AdminService.
var _ domain.AdminService = (*Service)(nil)
