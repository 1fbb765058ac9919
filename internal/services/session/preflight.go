package session

import (
	"context"

	"github.com/sirupsen/logrus"

	"healthvault/internal/domain"
)

// EnsureFee checks that caller can pay the visit fee and approves the ledger
// to collect it when the current allowance is short. It reports whether an
// approval transaction was sent.
//
// Steps:
//  1. Read the fee balance; below the fee fails with InsufficientFundsError
//     and nothing else is attempted.
//  2. Read the allowance granted to the ledger.
//  3. If short, send approve(ledger, fee) and wait for inclusion.
func (s *Service) EnsureFee(ctx context.Context, caller domain.Caller) (bool, error) {
	fee := s.cfg.VisitFee

	balance, err := s.fees.BalanceOf(ctx, caller.Address)
	if err != nil {
		return false, classifyRead("read fee balance", err)
	}
	if balance.Cmp(fee) < 0 {
		return false, &domain.InsufficientFundsError{Balance: balance, Required: fee}
	}

	spender := s.ledger.Address()
	allowance, err := s.fees.Allowance(ctx, caller.Address, spender)
	if err != nil {
		return false, classifyRead("read fee allowance", err)
	}
	if allowance.Cmp(fee) >= 0 {
		return false, nil
	}
	if !caller.CanSign() {
		return false, domain.ErrNoSigner
	}

	wctx, cancel := s.inclusionCtx(ctx)
	defer cancel()
	rcpt, err := s.fees.Approve(wctx, caller, spender, fee)
	if err != nil {
		return false, s.classify("approve visit fee", err)
	}
	s.log.WithFields(logrus.Fields{
		"owner":   caller.Address.Hex(),
		"tx":      rcpt.TxHash.Hex(),
		"block":   rcpt.BlockNumber,
		"amount":  fee.String(),
		"spender": spender.Hex(),
	}).Info("visit fee approved")
	return true, nil
}
