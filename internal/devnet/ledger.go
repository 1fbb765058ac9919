package devnet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"healthvault/internal/devnet/state"
	"healthvault/internal/domain"
)

// ledgerMeta is the ledger's scalar state.
type ledgerMeta struct {
	Owner  common.Address `json:"owner"`
	Oracle common.Address `json:"oracle"`
	NextID uint64         `json:"next_id"`
}

// Ledger is the sandbox session ledger.
type Ledger struct{ d *Devnet }

// Address implements domain.SessionLedger.
func (l *Ledger) Address() common.Address { return l.d.ledger }

// CreateSession implements domain.SessionLedger. It collects the visit fee
// from the caller through the token allowance.
func (l *Ledger) CreateSession(ctx context.Context, from domain.Caller) (domain.CreateReceipt, error) {
	const op = "createSession"
	if err := live(ctx); err != nil {
		return domain.CreateReceipt{}, err
	}
	if err := authorize(op, from); err != nil {
		return domain.CreateReceipt{}, err
	}

	l.d.mu.Lock()
	var out domain.CreateReceipt
	err := l.d.db.Update(func(txn state.Txn) error {
		meta, err := l.meta(txn)
		if err != nil {
			return err
		}
		if err := transferFrom(txn, op, l.d.ledger, from.Address, l.d.ledger, l.d.fee); err != nil {
			return err
		}
		id := domain.SessionID(meta.NextID)
		meta.NextID++
		if err := putJSON(txn, keyLedgerMeta, meta); err != nil {
			return err
		}
		sess := domain.Session{ID: id, Owner: from.Address, Exists: true}
		if err := putJSON(txn, sessionKey(id), sess); err != nil {
			return err
		}
		rcpt, err := l.d.mine(txn, from.Address, fmt.Sprintf("%s/%d", op, id))
		if err != nil {
			return err
		}
		ev := domain.SessionCreatedEvent{SessionID: id, BlockNumber: rcpt.BlockNumber, TxHash: rcpt.TxHash}
		if err := putJSON(txn, createdKey(id), ev); err != nil {
			return err
		}
		returned := id
		out = domain.CreateReceipt{Receipt: rcpt, Events: []domain.SessionCreatedEvent{ev}, Returned: &returned}
		return nil
	})
	l.d.mu.Unlock()
	if err != nil {
		return domain.CreateReceipt{}, err
	}

	l.d.log.WithFields(logrus.Fields{
		"session": out.Events[0].SessionID,
		"owner":   from.Address.Hex(),
		"block":   out.BlockNumber,
	}).Info("devnet: session created")
	l.d.createdFeed.Send(out.Events[0])
	return out, nil
}

// SubmitEncryptedInput implements domain.SessionLedger. Only the session
// owner may submit, only once, and only handles the engine bound to this
// ledger and the owner.
func (l *Ledger) SubmitEncryptedInput(
	ctx context.Context,
	from domain.Caller,
	id domain.SessionID,
	weight, height, exercise, diet domain.Handle,
	proof []byte,
) (domain.Receipt, error) {
	const op = "submitEncryptedInput"
	if err := live(ctx); err != nil {
		return domain.Receipt{}, err
	}
	if err := authorize(op, from); err != nil {
		return domain.Receipt{}, err
	}
	handles := []domain.Handle{weight, height, exercise, diet}
	engine := l.d.Engine()

	l.d.mu.Lock()
	defer l.d.mu.Unlock()

	var rcpt domain.Receipt
	err := l.d.db.Update(func(txn state.Txn) error {
		sess, err := l.session(txn, id)
		if err != nil {
			return err
		}
		meta, err := l.meta(txn)
		if err != nil {
			return err
		}
		switch {
		case !sess.Exists:
			return revert(op, "session does not exist")
		case sess.Owner != from.Address:
			return revert(op, "not session owner")
		case sess.InputsSubmitted():
			return revert(op, "inputs already submitted")
		case !engine.verifyProof(l.d.ledger, from.Address, handles, proof):
			return revert(op, "invalid input proof")
		}
		if err := engine.checkBinding(txn, l.d.ledger, from.Address, handles); err != nil {
			return revert(op, err.Error())
		}
		for _, h := range handles {
			if err := engine.allow(txn, h, meta.Oracle); err != nil {
				return err
			}
		}
		sess.Weight, sess.Height, sess.Exercise, sess.Diet = weight, height, exercise, diet
		if err := putJSON(txn, sessionKey(id), sess); err != nil {
			return err
		}
		rcpt, err = l.d.mine(txn, from.Address, fmt.Sprintf("%s/%d", op, id))
		return err
	})
	if err != nil {
		return domain.Receipt{}, err
	}
	l.d.log.WithFields(logrus.Fields{"session": id, "block": rcpt.BlockNumber}).Info("devnet: inputs submitted")
	return rcpt, nil
}

// SubmitEncryptedResult implements domain.OracleLedger. Only the backend
// oracle may write, only once per session, and only after inputs exist.
func (l *Ledger) SubmitEncryptedResult(
	ctx context.Context,
	from domain.Caller,
	id domain.SessionID,
	result domain.Handle,
	proof []byte,
) (domain.Receipt, error) {
	const op = "submitEncryptedResult"
	if err := live(ctx); err != nil {
		return domain.Receipt{}, err
	}
	if err := authorize(op, from); err != nil {
		return domain.Receipt{}, err
	}
	engine := l.d.Engine()

	l.d.mu.Lock()
	defer l.d.mu.Unlock()

	var rcpt domain.Receipt
	err := l.d.db.Update(func(txn state.Txn) error {
		meta, err := l.meta(txn)
		if err != nil {
			return err
		}
		sess, err := l.session(txn, id)
		if err != nil {
			return err
		}
		handles := []domain.Handle{result}
		switch {
		case from.Address != meta.Oracle:
			return revert(op, "caller is not the backend oracle")
		case !sess.Exists:
			return revert(op, "session does not exist")
		case !sess.InputsSubmitted():
			return revert(op, "inputs not submitted")
		case sess.ResultReady:
			return revert(op, "result already submitted")
		case !engine.verifyProof(l.d.ledger, from.Address, handles, proof):
			return revert(op, "invalid result proof")
		}
		if err := engine.checkBinding(txn, l.d.ledger, from.Address, handles); err != nil {
			return revert(op, err.Error())
		}
		if err := engine.allow(txn, result, sess.Owner); err != nil {
			return err
		}
		sess.Result = result
		sess.ResultReady = true
		if err := putJSON(txn, sessionKey(id), sess); err != nil {
			return err
		}
		rcpt, err = l.d.mine(txn, from.Address, fmt.Sprintf("%s/%d", op, id))
		return err
	})
	if err != nil {
		return domain.Receipt{}, err
	}
	l.d.log.WithFields(logrus.Fields{"session": id, "block": rcpt.BlockNumber}).Info("devnet: result submitted")
	return rcpt, nil
}

// Session implements domain.SessionLedger. Unallocated ids read as the zero
// record with Exists false.
func (l *Ledger) Session(ctx context.Context, id domain.SessionID) (domain.Session, error) {
	if err := live(ctx); err != nil {
		return domain.Session{}, err
	}
	var sess domain.Session
	err := l.d.db.View(func(txn state.Txn) error {
		var err error
		sess, err = l.session(txn, id)
		return err
	})
	return sess, err
}

// EncryptedResult implements domain.SessionLedger.
func (l *Ledger) EncryptedResult(ctx context.Context, id domain.SessionID) (domain.Handle, error) {
	sess, err := l.Session(ctx, id)
	if err != nil {
		return domain.Handle{}, err
	}
	return sess.Result, nil
}

// NextSessionID implements domain.SessionLedger.
func (l *Ledger) NextSessionID(ctx context.Context) (uint64, error) {
	meta, err := l.readMeta(ctx)
	return meta.NextID, err
}

// SessionCreatedEvents implements domain.SessionLedger.
func (l *Ledger) SessionCreatedEvents(
	ctx context.Context,
	id domain.SessionID,
) ([]domain.SessionCreatedEvent, error) {
	if err := live(ctx); err != nil {
		return nil, err
	}
	var out []domain.SessionCreatedEvent
	err := l.d.db.View(func(txn state.Txn) error {
		var ev domain.SessionCreatedEvent
		found, err := getJSON(txn, createdKey(id), &ev)
		if found {
			out = append(out, ev)
		}
		return err
	})
	return out, err
}

// BlockTime implements domain.SessionLedger.
func (l *Ledger) BlockTime(ctx context.Context, number uint64) (time.Time, error) {
	if err := live(ctx); err != nil {
		return time.Time{}, err
	}
	var b block
	err := l.d.db.View(func(txn state.Txn) error {
		found, err := getJSON(txn, blockKey(number), &b)
		if err == nil && !found {
			return fmt.Errorf("%w %d", ErrUnknownBlock, number)
		}
		return err
	})
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(b.Time, 0), nil
}

// WatchSessionCreated implements domain.SessionLedger. Events are delivered
// synchronously after each creation commits, so sink should be buffered and
// drained until the subscription is released.
func (l *Ledger) WatchSessionCreated(
	ctx context.Context,
	sink chan<- domain.SessionCreatedEvent,
) (domain.Subscription, error) {
	if err := live(ctx); err != nil {
		return nil, err
	}
	return l.d.createdFeed.Subscribe(sink), nil
}

// Owner implements domain.AdminLedger.
func (l *Ledger) Owner(ctx context.Context) (common.Address, error) {
	meta, err := l.readMeta(ctx)
	return meta.Owner, err
}

// BackendOracle implements domain.AdminLedger.
func (l *Ledger) BackendOracle(ctx context.Context) (common.Address, error) {
	meta, err := l.readMeta(ctx)
	return meta.Oracle, err
}

// ContractBalance implements domain.AdminLedger.
func (l *Ledger) ContractBalance(ctx context.Context) (*big.Int, error) {
	return l.d.Token().BalanceOf(ctx, l.d.ledger)
}

// VisitFee implements domain.AdminLedger.
func (l *Ledger) VisitFee(context.Context) (*big.Int, error) { return l.d.VisitFee(), nil }

// WithdrawFees implements domain.AdminLedger.
func (l *Ledger) WithdrawFees(
	ctx context.Context,
	from domain.Caller,
	to common.Address,
) (domain.Receipt, error) {
	const op = "withdrawFees"
	return l.ownerTx(ctx, op, from, func(txn state.Txn, _ *ledgerMeta) error {
		bal, err := readAmount(txn, balanceKey(l.d.ledger))
		if err != nil {
			return err
		}
		if bal.Sign() == 0 {
			return revert(op, "no fees to withdraw")
		}
		return transfer(txn, op, l.d.ledger, to, bal)
	})
}

// SetBackendOracle implements domain.AdminLedger.
func (l *Ledger) SetBackendOracle(
	ctx context.Context,
	from domain.Caller,
	oracle common.Address,
) (domain.Receipt, error) {
	const op = "setBackendOracle"
	return l.ownerTx(ctx, op, from, func(_ state.Txn, meta *ledgerMeta) error {
		if oracle == (common.Address{}) {
			return revert(op, "zero oracle address")
		}
		meta.Oracle = oracle
		return nil
	})
}

func (l *Ledger) ownerTx(
	ctx context.Context,
	op string,
	from domain.Caller,
	apply func(state.Txn, *ledgerMeta) error,
) (domain.Receipt, error) {
	if err := live(ctx); err != nil {
		return domain.Receipt{}, err
	}
	if err := authorize(op, from); err != nil {
		return domain.Receipt{}, err
	}

	l.d.mu.Lock()
	defer l.d.mu.Unlock()

	var rcpt domain.Receipt
	err := l.d.db.Update(func(txn state.Txn) error {
		meta, err := l.meta(txn)
		if err != nil {
			return err
		}
		if meta.Owner != from.Address {
			return revert(op, "caller is not the owner")
		}
		if err := apply(txn, &meta); err != nil {
			return err
		}
		if err := putJSON(txn, keyLedgerMeta, meta); err != nil {
			return err
		}
		rcpt, err = l.d.mine(txn, from.Address, op)
		return err
	})
	return rcpt, err
}

func (l *Ledger) readMeta(ctx context.Context) (ledgerMeta, error) {
	if err := live(ctx); err != nil {
		return ledgerMeta{}, err
	}
	var meta ledgerMeta
	err := l.d.db.View(func(txn state.Txn) error {
		var err error
		meta, err = l.meta(txn)
		return err
	})
	return meta, err
}

func (l *Ledger) meta(txn state.Txn) (ledgerMeta, error) {
	var meta ledgerMeta
	found, err := getJSON(txn, keyLedgerMeta, &meta)
	if err == nil && !found {
		err = errors.New("ledger not initialised")
	}
	return meta, err
}

func (l *Ledger) session(txn state.Txn, id domain.SessionID) (domain.Session, error) {
	var sess domain.Session
	if _, err := getJSON(txn, sessionKey(id), &sess); err != nil {
		return domain.Session{}, err
	}
	sess.ID = id
	return sess, nil
}

// Compile-time assertions for the ledger views.
var (
	_ domain.SessionLedger = (*Ledger)(nil)
	_ domain.AdminLedger   = (*Ledger)(nil)
	_ domain.OracleLedger  = (*Ledger)(nil)
)
