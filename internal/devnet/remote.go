package devnet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/sirupsen/logrus"

	"healthvault/internal/crypto"
	"healthvault/internal/domain"
	"healthvault/internal/relayer"
)

// DefaultPollInterval is how often a remote watch asks for new sessions.
const DefaultPollInterval = time.Second

// Remote is a client for a sandbox served by Server.
type Remote struct {
	c       *relayer.Client
	net     NetworkInfo
	chainID *big.Int
	fee     *big.Int
	nonce   atomic.Uint64

	// PollInterval paces WatchSessionCreated.
	PollInterval time.Duration
}

// Dial connects to the sandbox at base and reads its network parameters.
func Dial(ctx context.Context, base string, httpClient *http.Client, log *logrus.Logger) (*Remote, error) {
	c := relayer.NewClient(base, httpClient, log)
	r := &Remote{c: c, PollInterval: DefaultPollInterval}
	if err := c.GetJSON(ctx, "/v1/network", &r.net); err != nil {
		return nil, fmt.Errorf("dial devnet: %w", err)
	}
	var ok bool
	if r.chainID, ok = new(big.Int).SetString(r.net.ChainID, 10); !ok {
		return nil, fmt.Errorf("dial devnet: bad chain id %q", r.net.ChainID)
	}
	if r.fee, ok = new(big.Int).SetString(r.net.VisitFee, 10); !ok {
		return nil, fmt.Errorf("dial devnet: bad visit fee %q", r.net.VisitFee)
	}
	return r, nil
}

// Network returns the parameters read at dial time.
func (r *Remote) Network() NetworkInfo { return r.net }

// ChainID returns the sandbox chain id.
func (r *Remote) ChainID() *big.Int { return new(big.Int).Set(r.chainID) }

// GrantDomain is the EIP-712 domain decryption grants are signed under.
func (r *Remote) GrantDomain() crypto.GrantDomain {
	return crypto.GrantDomain{ChainID: r.ChainID(), Verifier: r.net.Verifier}
}

// Ledger returns the remote session ledger.
func (r *Remote) Ledger() *RemoteLedger { return &RemoteLedger{r: r} }

// Token returns the remote fee token.
func (r *Remote) Token() *RemoteToken { return &RemoteToken{r: r} }

// Engine returns the remote encryption engine.
func (r *Remote) Engine() *relayer.Engine { return relayer.NewEngine(r.c) }

// Faucet mints amount fee tokens to `to`.
func (r *Remote) Faucet(ctx context.Context, to common.Address, amount *big.Int) (domain.Receipt, error) {
	var out domain.Receipt
	err := r.c.Post(ctx, "/v1/faucet", FaucetRequest{Address: to, Amount: amount.String()}, &out, false)
	return out, r.mapErr("mint", err)
}

// Process asks the sandbox oracle to score session id.
func (r *Remote) Process(ctx context.Context, id domain.SessionID) (uint8, domain.Receipt, error) {
	var out ProcessResponse
	err := r.c.Post(ctx, "/v1/oracle/sessions/"+id.String()+"/process", struct{}{}, &out, false)
	if err != nil {
		return 0, domain.Receipt{}, r.mapErr("process", err)
	}
	return out.Tier, out.Receipt, nil
}

// send signs call as a transaction to `to` and submits it.
func (r *Remote) send(
	ctx context.Context,
	op string,
	from domain.Caller,
	to common.Address,
	call TxCall,
) (domain.CreateReceipt, error) {
	if !from.CanSign() {
		return domain.CreateReceipt{}, &domain.ChainError{Op: op, Err: domain.ErrNoSigner}
	}
	data, err := json.Marshal(call)
	if err != nil {
		return domain.CreateReceipt{}, err
	}
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    r.nextNonce(),
		To:       &to,
		Data:     data,
		GasPrice: new(big.Int),
	})
	signed, err := from.Signer.SignTx(tx, r.chainID)
	if err != nil {
		return domain.CreateReceipt{}, &domain.ChainError{Op: op, Err: err}
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return domain.CreateReceipt{}, &domain.ChainError{Op: op, Err: err}
	}

	var out domain.CreateReceipt
	if err := r.c.Post(ctx, "/v1/tx", TxRequest{Raw: raw}, &out, false); err != nil {
		return domain.CreateReceipt{}, r.mapErr(op, err)
	}
	return out, nil
}

// nextNonce returns a clock-based nonce, strictly increasing per process.
func (r *Remote) nextNonce() uint64 {
	for {
		last := r.nonce.Load()
		n := uint64(time.Now().UnixNano())
		if n <= last {
			n = last + 1
		}
		if r.nonce.CompareAndSwap(last, n) {
			return n
		}
	}
}

// mapErr turns server error codes back into the local error taxonomy.
func (r *Remote) mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *relayer.StatusError
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code {
	case CodeReverted:
		return &domain.ChainError{Op: op, Err: fmt.Errorf("%w: %s", ErrReverted, se.Message)}
	case CodeUnauthorized:
		return &domain.ChainError{Op: op, Err: fmt.Errorf("%w: %s", domain.ErrNoSigner, se.Message)}
	case CodeGrantRejected:
		return fmt.Errorf("%s: %w: %s", op, ErrBadGrant, se.Message)
	case CodeNotFound:
		return fmt.Errorf("%s: %w: %s", op, ErrUnknownBlock, se.Message)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// RemoteLedger is the session ledger of a remote sandbox.
type RemoteLedger struct{ r *Remote }

// Address implements domain.SessionLedger.
func (l *RemoteLedger) Address() common.Address { return l.r.net.Ledger }

// CreateSession implements domain.SessionLedger.
func (l *RemoteLedger) CreateSession(ctx context.Context, from domain.Caller) (domain.CreateReceipt, error) {
	return l.r.send(ctx, MethodCreateSession, from, l.r.net.Ledger, TxCall{Method: MethodCreateSession})
}

// SubmitEncryptedInput implements domain.SessionLedger.
func (l *RemoteLedger) SubmitEncryptedInput(
	ctx context.Context,
	from domain.Caller,
	id domain.SessionID,
	weight, height, exercise, diet domain.Handle,
	proof []byte,
) (domain.Receipt, error) {
	out, err := l.r.send(ctx, MethodSubmitInput, from, l.r.net.Ledger, TxCall{
		Method:  MethodSubmitInput,
		Session: &id,
		Handles: []domain.Handle{weight, height, exercise, diet},
		Proof:   proof,
	})
	return out.Receipt, err
}

// SubmitEncryptedResult implements domain.OracleLedger.
func (l *RemoteLedger) SubmitEncryptedResult(
	ctx context.Context,
	from domain.Caller,
	id domain.SessionID,
	result domain.Handle,
	proof []byte,
) (domain.Receipt, error) {
	out, err := l.r.send(ctx, MethodSubmitResult, from, l.r.net.Ledger, TxCall{
		Method:  MethodSubmitResult,
		Session: &id,
		Handles: []domain.Handle{result},
		Proof:   proof,
	})
	return out.Receipt, err
}

// Session implements domain.SessionLedger.
func (l *RemoteLedger) Session(ctx context.Context, id domain.SessionID) (domain.Session, error) {
	var out domain.Session
	err := l.r.c.GetJSON(ctx, "/v1/ledger/sessions/"+id.String(), &out)
	return out, l.r.mapErr("session", err)
}

// EncryptedResult implements domain.SessionLedger.
func (l *RemoteLedger) EncryptedResult(ctx context.Context, id domain.SessionID) (domain.Handle, error) {
	sess, err := l.Session(ctx, id)
	return sess.Result, err
}

// NextSessionID implements domain.SessionLedger.
func (l *RemoteLedger) NextSessionID(ctx context.Context) (uint64, error) {
	info, err := l.info(ctx)
	return info.NextSessionID, err
}

// SessionCreatedEvents implements domain.SessionLedger.
func (l *RemoteLedger) SessionCreatedEvents(
	ctx context.Context,
	id domain.SessionID,
) ([]domain.SessionCreatedEvent, error) {
	var out []domain.SessionCreatedEvent
	err := l.r.c.GetJSON(ctx, "/v1/ledger/sessions/"+id.String()+"/events", &out)
	return out, l.r.mapErr("events", err)
}

// BlockTime implements domain.SessionLedger.
func (l *RemoteLedger) BlockTime(ctx context.Context, number uint64) (time.Time, error) {
	var out BlockResponse
	if err := l.r.c.GetJSON(ctx, fmt.Sprintf("/v1/blocks/%d", number), &out); err != nil {
		return time.Time{}, l.r.mapErr("block", err)
	}
	return time.Unix(out.Time, 0), nil
}

// WatchSessionCreated implements domain.SessionLedger by polling the
// session counter. Only sessions created after the call are delivered.
func (l *RemoteLedger) WatchSessionCreated(
	ctx context.Context,
	sink chan<- domain.SessionCreatedEvent,
) (domain.Subscription, error) {
	next, err := l.NextSessionID(ctx)
	if err != nil {
		return nil, err
	}
	interval := l.r.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return event.NewSubscription(func(quit <-chan struct{}) error {
		pollCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-quit:
				cancel()
			case <-pollCtx.Done():
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return nil
			case <-ticker.C:
			}
			head, err := l.NextSessionID(pollCtx)
			if err != nil {
				if pollCtx.Err() != nil {
					return nil
				}
				return err
			}
			for ; next < head; next++ {
				evs, err := l.SessionCreatedEvents(pollCtx, domain.SessionID(next))
				if err != nil {
					if pollCtx.Err() != nil {
						return nil
					}
					return err
				}
				for _, ev := range evs {
					select {
					case sink <- ev:
					case <-quit:
						return nil
					}
				}
			}
		}
	}), nil
}

// Owner implements domain.AdminLedger.
func (l *RemoteLedger) Owner(ctx context.Context) (common.Address, error) {
	info, err := l.info(ctx)
	return info.Owner, err
}

// BackendOracle implements domain.AdminLedger.
func (l *RemoteLedger) BackendOracle(ctx context.Context) (common.Address, error) {
	info, err := l.info(ctx)
	return info.BackendOracle, err
}

// ContractBalance implements domain.AdminLedger.
func (l *RemoteLedger) ContractBalance(ctx context.Context) (*big.Int, error) {
	info, err := l.info(ctx)
	if err != nil {
		return nil, err
	}
	return parseAmount("fee balance", info.FeeBalance)
}

// VisitFee implements domain.AdminLedger.
func (l *RemoteLedger) VisitFee(context.Context) (*big.Int, error) {
	return new(big.Int).Set(l.r.fee), nil
}

// WithdrawFees implements domain.AdminLedger.
func (l *RemoteLedger) WithdrawFees(ctx context.Context, from domain.Caller, to common.Address) (domain.Receipt, error) {
	out, err := l.r.send(ctx, MethodWithdrawFees, from, l.r.net.Ledger, TxCall{Method: MethodWithdrawFees, Address: &to})
	return out.Receipt, err
}

// SetBackendOracle implements domain.AdminLedger.
func (l *RemoteLedger) SetBackendOracle(
	ctx context.Context,
	from domain.Caller,
	oracle common.Address,
) (domain.Receipt, error) {
	out, err := l.r.send(ctx, MethodSetBackendOracle, from, l.r.net.Ledger,
		TxCall{Method: MethodSetBackendOracle, Address: &oracle})
	return out.Receipt, err
}

func (l *RemoteLedger) info(ctx context.Context) (domain.LedgerInfo, error) {
	var out domain.LedgerInfo
	err := l.r.c.GetJSON(ctx, "/v1/ledger", &out)
	return out, l.r.mapErr("ledger info", err)
}

// RemoteToken is the fee token of a remote sandbox.
type RemoteToken struct{ r *Remote }

// Address implements domain.FeeGateway.
func (t *RemoteToken) Address() common.Address { return t.r.net.Token }

// BalanceOf implements domain.FeeGateway.
func (t *RemoteToken) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	var out AmountResponse
	if err := t.r.c.GetJSON(ctx, "/v1/token/balances/"+owner.Hex(), &out); err != nil {
		return nil, t.r.mapErr("balanceOf", err)
	}
	return parseAmount("balance", out.Amount)
}

// Allowance implements domain.FeeGateway.
func (t *RemoteToken) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	var out AmountResponse
	if err := t.r.c.GetJSON(ctx, "/v1/token/allowances/"+owner.Hex()+"/"+spender.Hex(), &out); err != nil {
		return nil, t.r.mapErr("allowance", err)
	}
	return parseAmount("allowance", out.Amount)
}

// Approve implements domain.FeeGateway.
func (t *RemoteToken) Approve(
	ctx context.Context,
	from domain.Caller,
	spender common.Address,
	amount *big.Int,
) (domain.Receipt, error) {
	out, err := t.r.send(ctx, MethodApprove, from, t.r.net.Token,
		TxCall{Method: MethodApprove, Address: &spender, Amount: amount.String()})
	return out.Receipt, err
}

func parseAmount(what, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, &domain.ProtocolError{Op: "read " + what, Reason: fmt.Sprintf("not a decimal amount: %q", s)}
	}
	return v, nil
}

// Compile-time assertions for the remote views.
var (
	_ domain.SessionLedger = (*RemoteLedger)(nil)
	_ domain.AdminLedger   = (*RemoteLedger)(nil)
	_ domain.OracleLedger  = (*RemoteLedger)(nil)
	_ domain.FeeGateway    = (*RemoteToken)(nil)
)
