package session

import (
	"context"

	"github.com/sirupsen/logrus"

	"healthvault/internal/domain"
	"healthvault/internal/encoding"
)

// CreateSessionAndSubmit pays for, creates and fills a new session.
//
// Steps:
//  1. Validate and encode input locally; nothing is sent on failure.
//  2. Ensure the visit fee can be collected (balance, then allowance).
//  3. Send createSession and recover the new id from the receipt.
//  4. Encrypt the inputs bound to (ledger, owner) and submit them in one
//     transaction.
//
// When step 4 fails the created session is returned together with the error
// so the caller can finish it with SubmitInputs.
func (s *Service) CreateSessionAndSubmit(
	ctx context.Context,
	caller domain.Caller,
	input domain.HealthInput,
) (*domain.CreatedSession, error) {
	enc, err := encoding.Encode(input)
	if err != nil {
		return nil, err
	}
	if !caller.CanSign() {
		return nil, domain.ErrNoSigner
	}

	approved, err := s.EnsureFee(ctx, caller)
	if err != nil {
		return nil, err
	}

	created, err := s.createSession(ctx, caller)
	if err != nil {
		return nil, err
	}
	created.Approved = approved

	rcpt, err := s.submit(ctx, caller, created.ID, enc)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"session": created.ID,
		}).WithError(err).Warn("session created but inputs were not submitted")
		return created, err
	}
	created.SubmitTx = rcpt.TxHash
	return created, nil
}

// createSession sends createSession, waits for it and resolves the new id.
func (s *Service) createSession(ctx context.Context, caller domain.Caller) (*domain.CreatedSession, error) {
	wctx, cancel := s.inclusionCtx(ctx)
	defer cancel()

	rcpt, err := s.ledger.CreateSession(wctx, caller)
	if err != nil {
		return nil, s.classify("create session", err)
	}
	id, err := s.recoverID(rcpt)
	if err != nil {
		return nil, err
	}

	created := &domain.CreatedSession{ID: id, CreateTx: rcpt.TxHash}
	if ts, err := s.ledger.BlockTime(ctx, rcpt.BlockNumber); err == nil {
		created.CreatedAt = &ts
	} else {
		s.log.WithField("block", rcpt.BlockNumber).WithError(err).Debug("creation time unavailable")
	}

	s.log.WithFields(logrus.Fields{
		"session": id,
		"tx":      rcpt.TxHash.Hex(),
		"block":   rcpt.BlockNumber,
	}).Info("session created")
	return created, nil
}

// recoverID picks the session id out of a createSession receipt.
//
// The SessionCreated event is authoritative. A simulated return value is
// used only when the receipt carries no event.
func (s *Service) recoverID(rcpt domain.CreateReceipt) (domain.SessionID, error) {
	for _, ev := range rcpt.Events {
		if ev.Removed {
			continue
		}
		if rcpt.Returned != nil && *rcpt.Returned != ev.SessionID {
			s.log.WithFields(logrus.Fields{
				"event":     ev.SessionID,
				"simulated": *rcpt.Returned,
				"tx":        rcpt.TxHash.Hex(),
			}).Warn("simulated session id differs from event, using event")
		}
		return ev.SessionID, nil
	}
	if rcpt.Returned != nil {
		return *rcpt.Returned, nil
	}
	return 0, &domain.ProtocolError{
		Op:     "create session",
		Reason: "receipt " + rcpt.TxHash.Hex() + " has no SessionCreated event",
	}
}
