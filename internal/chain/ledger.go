package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/sirupsen/logrus"

	"healthvault/internal/domain"
)

// Ledger is a deployed session ledger.
type Ledger struct {
	c *contract
	// FromBlock bounds log queries from below; nil scans from genesis.
	FromBlock *big.Int
}

// NewLedger binds the ledger at address.
func NewLedger(b Backend, address common.Address, chainID *big.Int, log *logrus.Logger) *Ledger {
	return &Ledger{c: newContract(b, address, LedgerABI, chainID, log)}
}

// Address implements domain.SessionLedger.
func (l *Ledger) Address() common.Address { return l.c.address }

// CreateSession implements domain.SessionLedger.
//
// The call is simulated first so the returned id is available even if the
// node drops logs; the SessionCreated log stays authoritative.
func (l *Ledger) CreateSession(ctx context.Context, from domain.Caller) (domain.CreateReceipt, error) {
	const op = "createSession"
	var returned *domain.SessionID
	if out, err := l.c.call(ctx, from.Address, "createSession"); err == nil {
		if id, err := uintOut(out, 0); err == nil {
			sid := domain.SessionID(id)
			returned = &sid
		}
	} else {
		l.c.log.WithError(err).Debug("createSession simulation failed")
	}

	rcpt, err := l.c.send(ctx, op, from, "createSession")
	if err != nil {
		return domain.CreateReceipt{}, err
	}
	var events []domain.SessionCreatedEvent
	for _, lg := range rcpt.Logs {
		if ev, ok := l.parseCreated(*lg); ok {
			events = append(events, ev)
		}
	}
	return domain.CreateReceipt{Receipt: receipt(rcpt), Events: events, Returned: returned}, nil
}

// SubmitEncryptedInput implements domain.SessionLedger.
func (l *Ledger) SubmitEncryptedInput(
	ctx context.Context,
	from domain.Caller,
	id domain.SessionID,
	weight, height, exercise, diet domain.Handle,
	proof []byte,
) (domain.Receipt, error) {
	rcpt, err := l.c.send(ctx, "submitEncryptedInput", from, "submitEncryptedInput",
		new(big.Int).SetUint64(uint64(id)),
		[32]byte(weight), [32]byte(height), [32]byte(exercise), [32]byte(diet),
		proof)
	if err != nil {
		return domain.Receipt{}, err
	}
	return receipt(rcpt), nil
}

// SubmitEncryptedResult implements domain.OracleLedger.
func (l *Ledger) SubmitEncryptedResult(
	ctx context.Context,
	from domain.Caller,
	id domain.SessionID,
	result domain.Handle,
	proof []byte,
) (domain.Receipt, error) {
	rcpt, err := l.c.send(ctx, "submitEncryptedResult", from, "submitEncryptedResult",
		new(big.Int).SetUint64(uint64(id)), [32]byte(result), proof)
	if err != nil {
		return domain.Receipt{}, err
	}
	return receipt(rcpt), nil
}

// Session implements domain.SessionLedger.
func (l *Ledger) Session(ctx context.Context, id domain.SessionID) (domain.Session, error) {
	out, err := l.c.call(ctx, common.Address{}, "sessions", new(big.Int).SetUint64(uint64(id)))
	if err != nil {
		return domain.Session{}, err
	}
	return decodeSession(id, out)
}

// EncryptedResult implements domain.SessionLedger.
func (l *Ledger) EncryptedResult(ctx context.Context, id domain.SessionID) (domain.Handle, error) {
	out, err := l.c.call(ctx, common.Address{}, "getEncryptedResult", new(big.Int).SetUint64(uint64(id)))
	if err != nil {
		return domain.Handle{}, err
	}
	return handleOut(out, 0)
}

// NextSessionID implements domain.SessionLedger.
func (l *Ledger) NextSessionID(ctx context.Context) (uint64, error) {
	out, err := l.c.call(ctx, common.Address{}, "nextSessionId")
	if err != nil {
		return 0, err
	}
	return uintOut(out, 0)
}

// SessionCreatedEvents implements domain.SessionLedger.
func (l *Ledger) SessionCreatedEvents(
	ctx context.Context,
	id domain.SessionID,
) ([]domain.SessionCreatedEvent, error) {
	logs, err := l.c.backend.FilterLogs(ctx, l.createdQuery(&id))
	if err != nil {
		return nil, err
	}
	var out []domain.SessionCreatedEvent
	for _, lg := range logs {
		if ev, ok := l.parseCreated(lg); ok && ev.SessionID == id {
			out = append(out, ev)
		}
	}
	return out, nil
}

// BlockTime implements domain.SessionLedger.
func (l *Ledger) BlockTime(ctx context.Context, number uint64) (time.Time, error) {
	h, err := l.c.backend.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(h.Time), 0), nil
}

// WatchSessionCreated implements domain.SessionLedger over a log
// subscription. Logs that fail to parse are dropped.
func (l *Ledger) WatchSessionCreated(
	ctx context.Context,
	sink chan<- domain.SessionCreatedEvent,
) (domain.Subscription, error) {
	logs := make(chan ethtypes.Log, 16)
	q := l.createdQuery(nil)
	q.FromBlock = nil
	inner, err := l.c.backend.SubscribeFilterLogs(ctx, q, logs)
	if err != nil {
		return nil, err
	}
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer inner.Unsubscribe()
		for {
			select {
			case lg := <-logs:
				ev, ok := l.parseCreated(lg)
				if !ok {
					continue
				}
				select {
				case sink <- ev:
				case <-quit:
					return nil
				}
			case err := <-inner.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

// Owner implements domain.AdminLedger.
func (l *Ledger) Owner(ctx context.Context) (common.Address, error) {
	return l.addressCall(ctx, "owner")
}

// BackendOracle implements domain.AdminLedger.
func (l *Ledger) BackendOracle(ctx context.Context) (common.Address, error) {
	return l.addressCall(ctx, "backendOracle")
}

// ContractBalance implements domain.AdminLedger.
func (l *Ledger) ContractBalance(ctx context.Context) (*big.Int, error) {
	out, err := l.c.call(ctx, common.Address{}, "contractBalance")
	if err != nil {
		return nil, err
	}
	return bigOut(out, 0)
}

// VisitFee implements domain.AdminLedger.
func (l *Ledger) VisitFee(ctx context.Context) (*big.Int, error) {
	out, err := l.c.call(ctx, common.Address{}, "VISIT_FEE")
	if err != nil {
		return nil, err
	}
	return bigOut(out, 0)
}

// WithdrawFees implements domain.AdminLedger.
func (l *Ledger) WithdrawFees(ctx context.Context, from domain.Caller, to common.Address) (domain.Receipt, error) {
	rcpt, err := l.c.send(ctx, "withdrawFees", from, "withdrawFees", to)
	if err != nil {
		return domain.Receipt{}, err
	}
	return receipt(rcpt), nil
}

// SetBackendOracle implements domain.AdminLedger.
func (l *Ledger) SetBackendOracle(
	ctx context.Context,
	from domain.Caller,
	oracle common.Address,
) (domain.Receipt, error) {
	rcpt, err := l.c.send(ctx, "setBackendOracle", from, "setBackendOracle", oracle)
	if err != nil {
		return domain.Receipt{}, err
	}
	return receipt(rcpt), nil
}

func (l *Ledger) addressCall(ctx context.Context, method string) (common.Address, error) {
	out, err := l.c.call(ctx, common.Address{}, method)
	if err != nil {
		return common.Address{}, err
	}
	if len(out) == 0 {
		return common.Address{}, fmt.Errorf("%s: empty result", method)
	}
	a, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: unexpected type %T", method, out[0])
	}
	return a, nil
}

// createdQuery filters SessionCreated logs, for one id when id is set.
func (l *Ledger) createdQuery(id *domain.SessionID) ethereum.FilterQuery {
	topics := [][]common.Hash{{LedgerABI.Events["SessionCreated"].ID}}
	if id != nil {
		topics = append(topics, []common.Hash{common.BigToHash(new(big.Int).SetUint64(uint64(*id)))})
	}
	return ethereum.FilterQuery{
		FromBlock: l.FromBlock,
		Addresses: []common.Address{l.c.address},
		Topics:    topics,
	}
}

// parseCreated decodes a SessionCreated log emitted by this ledger.
func (l *Ledger) parseCreated(lg ethtypes.Log) (domain.SessionCreatedEvent, bool) {
	if lg.Address != l.c.address || len(lg.Topics) < 2 || lg.Topics[0] != LedgerABI.Events["SessionCreated"].ID {
		return domain.SessionCreatedEvent{}, false
	}
	id := new(big.Int).SetBytes(lg.Topics[1].Bytes())
	if !id.IsUint64() {
		return domain.SessionCreatedEvent{}, false
	}
	return domain.SessionCreatedEvent{
		SessionID:   domain.SessionID(id.Uint64()),
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash,
		Removed:     lg.Removed,
	}, true
}

func decodeSession(id domain.SessionID, out []any) (domain.Session, error) {
	if len(out) != 8 {
		return domain.Session{}, fmt.Errorf("sessions(%s): want 8 outputs, got %d", id, len(out))
	}
	owner, ok1 := out[0].(common.Address)
	exists, ok2 := out[1].(bool)
	ready, ok3 := out[7].(bool)
	if !ok1 || !ok2 || !ok3 {
		return domain.Session{}, fmt.Errorf("sessions(%s): unexpected output types", id)
	}
	var hs [5]domain.Handle
	for i := range hs {
		h, err := handleOut(out, i+2)
		if err != nil {
			return domain.Session{}, err
		}
		hs[i] = h
	}
	return domain.Session{
		ID:          id,
		Owner:       owner,
		Exists:      exists,
		Weight:      hs[0],
		Height:      hs[1],
		Exercise:    hs[2],
		Diet:        hs[3],
		Result:      hs[4],
		ResultReady: ready,
	}, nil
}

func handleOut(out []any, i int) (domain.Handle, error) {
	if i >= len(out) {
		return domain.Handle{}, fmt.Errorf("output %d missing", i)
	}
	b, ok := out[i].([32]byte)
	if !ok {
		return domain.Handle{}, fmt.Errorf("output %d: want bytes32, got %T", i, out[i])
	}
	return domain.Handle(b), nil
}

func bigOut(out []any, i int) (*big.Int, error) {
	if i >= len(out) {
		return nil, fmt.Errorf("output %d missing", i)
	}
	v, ok := out[i].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("output %d: want uint256, got %T", i, out[i])
	}
	return v, nil
}

func uintOut(out []any, i int) (uint64, error) {
	v, err := bigOut(out, i)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("output %d: %s overflows uint64", i, v)
	}
	return v.Uint64(), nil
}

// Compile-time assertions for the ledger adapter.
var (
	_ domain.SessionLedger = (*Ledger)(nil)
	_ domain.AdminLedger   = (*Ledger)(nil)
	_ domain.OracleLedger  = (*Ledger)(nil)
)
