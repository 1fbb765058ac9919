package devnet

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"healthvault/internal/devnet/state"
	"healthvault/internal/domain"
	"healthvault/internal/encoding"
)

var (
	// ErrNoInputs is returned when a session has nothing to process yet.
	ErrNoInputs = errors.New("session has no inputs")
	// ErrAlreadyProcessed is returned for a session whose result is ready.
	ErrAlreadyProcessed = errors.New("session already has a result")
	// ErrNoSession is returned for an id the ledger never allocated.
	ErrNoSession = errors.New("session does not exist")
)

// Oracle is the sandbox backend oracle: it reads submitted inputs with its
// privileged access, scores them, and writes an encrypted tier back.
type Oracle struct{ d *Devnet }

// Process scores session id and writes the result back.
func (o *Oracle) Process(ctx context.Context, id domain.SessionID) (uint8, domain.Receipt, error) {
	ledger := o.d.Ledger()
	sess, err := ledger.Session(ctx, id)
	if err != nil {
		return 0, domain.Receipt{}, err
	}
	switch {
	case !sess.Exists:
		return 0, domain.Receipt{}, fmt.Errorf("%w: %s", ErrNoSession, id)
	case !sess.InputsSubmitted():
		return 0, domain.Receipt{}, ErrNoInputs
	case sess.ResultReady:
		return 0, domain.Receipt{}, ErrAlreadyProcessed
	}

	var in domain.EncodedInput
	engine := o.d.Engine()
	oracle := o.d.oracle.Address()
	err = o.d.db.View(func(txn state.Txn) error {
		vals := make([]uint64, 4)
		for i, h := range []domain.Handle{sess.Weight, sess.Height, sess.Exercise, sess.Diet} {
			v, err := engine.decryptAs(txn, oracle, o.d.ledger, h)
			if err != nil {
				return fmt.Errorf("read input %d: %w", i, err)
			}
			vals[i] = v
		}
		in = domain.EncodedInput{
			Weight:   vals[0],
			Height:   vals[1],
			Exercise: uint8(vals[2]),
			Diet:     uint8(vals[3]),
		}
		return nil
	})
	if err != nil {
		return 0, domain.Receipt{}, err
	}

	tier := RiskScore(in)
	rcpt, err := o.SetResult(ctx, id, tier)
	if err != nil {
		return 0, domain.Receipt{}, err
	}
	o.d.log.WithFields(logrus.Fields{"session": id, "block": rcpt.BlockNumber}).Info("devnet: session processed")
	return tier, rcpt, nil
}

// SetResult encrypts value for the ledger and submits it as the result of id.
func (o *Oracle) SetResult(ctx context.Context, id domain.SessionID, value uint8) (domain.Receipt, error) {
	caller := domain.NewCaller(o.d.oracle)
	batch, err := o.d.Engine().Encrypt(ctx, o.d.ledger, caller.Address,
		[]domain.EncryptValue{{Bits: 8, Value: uint64(value)}})
	if err != nil {
		return domain.Receipt{}, err
	}
	return o.d.Ledger().SubmitEncryptedResult(ctx, caller, id, batch.Handles[0], batch.Proof)
}

// RiskScore maps encoded inputs to a tier: 0 low, 1 moderate, 2 high.
//
// BMI below 18.5 or at least 30 scores 2, 25 to 30 scores 1; exercise of 2
// or less and diet of 4 or less score 1 each. Totals of 0-1, 2 and 3+ map to
// the three tiers.
func RiskScore(in domain.EncodedInput) uint8 {
	plain := encoding.Decode(in)
	score := 0
	if plain.Height > 0 {
		m := plain.Height / 100
		bmi := plain.Weight / (m * m)
		switch {
		case bmi < 18.5 || bmi >= 30:
			score += 2
		case bmi >= 25:
			score++
		}
	}
	if plain.Exercise <= 2 {
		score++
	}
	if plain.Diet <= 4 {
		score++
	}
	switch {
	case score <= 1:
		return 0
	case score == 2:
		return 1
	default:
		return 2
	}
}
