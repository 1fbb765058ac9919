package session

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"healthvault/internal/crypto"
	"healthvault/internal/domain"
)

// DecryptResult reveals the result of session id to its owner.
//
// A session whose result is not ready yields domain.PendingResult without
// contacting the engine. So does an engine answer that omits the handle or
// carries a boolean sentinel.
//
// Steps:
//  1. Read the session; not ready means pending.
//  2. Read the result handle; a zero handle is a protocol error.
//  3. Generate a single-use key pair.
//  4. Sign a grant naming only the ledger, starting now.
//  5. Ask the engine to decrypt the one handle under that grant.
//
// The ephemeral private key is wiped before returning on every path.
func (s *Service) DecryptResult(
	ctx context.Context,
	caller domain.Caller,
	id domain.SessionID,
) (domain.Result, error) {
	sess, err := s.ledger.Session(ctx, id)
	if err != nil {
		return domain.Result{}, classifyRead("read session", err)
	}
	if !sess.ResultReady {
		return domain.PendingResult, nil
	}
	if !caller.CanSign() {
		return domain.Result{}, domain.ErrNoSigner
	}

	handle, err := s.ledger.EncryptedResult(ctx, id)
	if err != nil {
		return domain.Result{}, classifyRead("read result handle", err)
	}
	if handle.IsZero() {
		return domain.Result{}, &domain.ProtocolError{
			Op:     "read result handle",
			Reason: "session " + id.String() + " is ready but has no result handle",
		}
	}

	kp, err := crypto.GenerateKeypair()
	if err != nil {
		return domain.Result{}, &domain.EncryptionError{Op: "generate key pair", Err: err}
	}
	defer crypto.WipeKeypair(&kp)

	contract := s.ledger.Address()
	grant, err := crypto.BuildGrant(
		caller.Signer,
		s.cfg.GrantDomain,
		kp.Public,
		[]common.Address{contract},
		s.now(),
		s.cfg.GrantDays,
	)
	if err != nil {
		return domain.Result{}, &domain.EncryptionError{Op: "sign decryption grant", Err: err}
	}

	req := domain.DecryptRequest{
		Pairs:        []domain.HandleContract{{Handle: handle, Contract: contract}},
		PrivateKey:   kp.Private,
		PublicKey:    kp.Public,
		Signature:    grant.Signature,
		Contracts:    grant.Contracts,
		User:         caller.Address,
		Start:        grant.Start.Unix(),
		DurationDays: grant.DurationDays,
	}
	defer crypto.Wipe(req.PrivateKey.Slice())

	values, err := s.engine.UserDecrypt(ctx, req)
	if err != nil {
		return domain.Result{}, &domain.EncryptionError{Op: "user decrypt", Err: err}
	}

	v, ok := values[handle]
	if !ok || v.Bool != nil || v.Int == nil {
		s.log.WithFields(logrus.Fields{
			"session": id,
			"present": ok,
		}).Debug("result not yet decryptable")
		return domain.PendingResult, nil
	}
	s.log.WithField("session", id).Info("result decrypted")
	return domain.Result{Value: new(big.Int).Set(v.Int)}, nil
}
