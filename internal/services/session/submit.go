package session

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"healthvault/internal/domain"
	"healthvault/internal/encoding"
)

const inputCount = 4

// SubmitInputs encrypts input and submits it for an existing session.
//
// Whether a session accepts a second submission is decided by the ledger.
func (s *Service) SubmitInputs(
	ctx context.Context,
	caller domain.Caller,
	id domain.SessionID,
	input domain.HealthInput,
) (domain.Receipt, error) {
	enc, err := encoding.Encode(input)
	if err != nil {
		return domain.Receipt{}, err
	}
	if !caller.CanSign() {
		return domain.Receipt{}, domain.ErrNoSigner
	}
	return s.submit(ctx, caller, id, enc)
}

func (s *Service) submit(
	ctx context.Context,
	caller domain.Caller,
	id domain.SessionID,
	enc domain.EncodedInput,
) (domain.Receipt, error) {
	batch, err := s.engine.Encrypt(ctx, s.ledger.Address(), caller.Address, enc.Values())
	if err != nil {
		return domain.Receipt{}, &domain.EncryptionError{Op: "encrypt inputs", Err: err}
	}
	if len(batch.Handles) != inputCount {
		return domain.Receipt{}, &domain.EncryptionError{
			Op:  "encrypt inputs",
			Err: fmt.Errorf("engine returned %d handles, want %d", len(batch.Handles), inputCount),
		}
	}
	if len(batch.Proof) == 0 {
		return domain.Receipt{}, &domain.EncryptionError{Op: "encrypt inputs", Err: fmt.Errorf("empty proof")}
	}

	wctx, cancel := s.inclusionCtx(ctx)
	defer cancel()
	h := batch.Handles
	rcpt, err := s.ledger.SubmitEncryptedInput(wctx, caller, id, h[0], h[1], h[2], h[3], batch.Proof)
	if err != nil {
		return domain.Receipt{}, s.classify("submit inputs", err)
	}

	s.log.WithFields(logrus.Fields{
		"session": id,
		"tx":      rcpt.TxHash.Hex(),
		"block":   rcpt.BlockNumber,
	}).Info("encrypted inputs submitted")
	return rcpt, nil
}
