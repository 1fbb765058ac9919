package chain_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthvault/internal/chain"
	"healthvault/internal/crypto"
	"healthvault/internal/domain"
)

var (
	chainID     = big.NewInt(1337)
	ledgerAddr  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tokenAddr   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	createdID   = chain.LedgerABI.Events["SessionCreated"].ID
	errNotMined = errors.New("not mined")
)

// fakeBackend answers calls from canned outputs and mines every sent
// transaction with the receipt produced by mine.
type fakeBackend struct {
	mu      sync.Mutex
	outputs map[string][]byte
	sent    []*ethtypes.Transaction
	mine    func(tx *ethtypes.Transaction) *ethtypes.Receipt
	logs    []ethtypes.Log
	query   ethereum.FilterQuery
	now     uint64
	// stall makes header reads block until the caller's context ends.
	stall   bool
}

func newFake() *fakeBackend {
	return &fakeBackend{outputs: map[string][]byte{}, now: 1_700_000_000}
}

func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{1}, nil
}

func (f *fakeBackend) PendingCodeAt(context.Context, common.Address) ([]byte, error) {
	return []byte{1}, nil
}

func (f *fakeBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	m, err := chain.LedgerABI.MethodById(call.Data[:4])
	if err != nil {
		if m, err = chain.ERC20ABI.MethodById(call.Data[:4]); err != nil {
			return nil, err
		}
	}
	out, ok := f.outputs[m.Name]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return out, nil
}

func (f *fakeBackend) HeaderByNumber(ctx context.Context, n *big.Int) (*ethtypes.Header, error) {
	if f.stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	num := big.NewInt(1)
	if n != nil {
		num = n
	}
	return &ethtypes.Header{Number: num, Time: f.now}, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 0, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *ethtypes.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.sent {
		if tx.Hash() == hash && f.mine != nil {
			if r := f.mine(tx); r != nil {
				return r, nil
			}
		}
	}
	return nil, ethereum.NotFound
}

func (f *fakeBackend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error) {
	f.query = q
	return f.logs, nil
}

func (f *fakeBackend) SubscribeFilterLogs(
	_ context.Context,
	_ ethereum.FilterQuery,
	ch chan<- ethtypes.Log,
) (ethereum.Subscription, error) {
	logs := f.logs
	return event.NewSubscription(func(quit <-chan struct{}) error {
		for _, lg := range logs {
			select {
			case ch <- lg:
			case <-quit:
				return nil
			}
		}
		<-quit
		return nil
	}), nil
}

func newUser(t *testing.T) domain.Caller {
	t.Helper()
	id, err := crypto.GenerateOwnerKey()
	require.NoError(t, err)
	s, err := crypto.NewKeySigner(id.PrivateKey)
	require.NoError(t, err)
	return domain.NewCaller(s)
}

func createdLog(id uint64, block uint64) ethtypes.Log {
	return ethtypes.Log{
		Address:     ledgerAddr,
		Topics:      []common.Hash{createdID, common.BigToHash(new(big.Int).SetUint64(id))},
		BlockNumber: block,
	}
}

func successReceipt(logs ...ethtypes.Log) func(*ethtypes.Transaction) *ethtypes.Receipt {
	return func(tx *ethtypes.Transaction) *ethtypes.Receipt {
		r := &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful, TxHash: tx.Hash(), BlockNumber: big.NewInt(7)}
		for i := range logs {
			lg := logs[i]
			lg.TxHash = tx.Hash()
			r.Logs = append(r.Logs, &lg)
		}
		return r
	}
}

func TestCreateSession_ParsesEventAndSimulation(t *testing.T) {
	f := newFake()
	out, err := chain.LedgerABI.Methods["createSession"].Outputs.Pack(big.NewInt(5))
	require.NoError(t, err)
	f.outputs["createSession"] = out
	f.mine = successReceipt(createdLog(5, 7))
	u := newUser(t)

	l := chain.NewLedger(f, ledgerAddr, chainID, nil)
	rcpt, err := l.CreateSession(context.Background(), u)
	require.NoError(t, err)
	require.Len(t, rcpt.Events, 1)
	assert.Equal(t, domain.SessionID(5), rcpt.Events[0].SessionID)
	require.NotNil(t, rcpt.Returned)
	assert.Equal(t, domain.SessionID(5), *rcpt.Returned)
	assert.Equal(t, uint64(7), rcpt.BlockNumber)

	require.Len(t, f.sent, 1)
	sender, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(chainID), f.sent[0])
	require.NoError(t, err)
	assert.Equal(t, u.Address, sender)
	assert.Equal(t, ledgerAddr, *f.sent[0].To())
}

func TestCreateSession_RevertedReceipt(t *testing.T) {
	f := newFake()
	f.mine = func(tx *ethtypes.Transaction) *ethtypes.Receipt {
		return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusFailed, TxHash: tx.Hash(), BlockNumber: big.NewInt(3)}
	}
	l := chain.NewLedger(f, ledgerAddr, chainID, nil)

	_, err := l.CreateSession(context.Background(), newUser(t))
	var ce *domain.ChainError
	require.True(t, errors.As(err, &ce))
	assert.ErrorIs(t, err, chain.ErrReverted)
	assert.Equal(t, f.sent[0].Hash(), ce.TxHash)
}

func TestSend_ReadOnlyCallerSendsNothing(t *testing.T) {
	f := newFake()
	l := chain.NewLedger(f, ledgerAddr, chainID, nil)
	_, err := l.WithdrawFees(context.Background(), domain.ReadOnly(common.Address{1}), common.Address{2})
	assert.ErrorIs(t, err, domain.ErrNoSigner)
	assert.Empty(t, f.sent)
}

func TestSend_TimeoutKeepsTxHash(t *testing.T) {
	f := newFake()
	l := chain.NewLedger(f, ledgerAddr, chainID, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := l.SetBackendOracle(ctx, newUser(t), common.Address{9})
	var te *domain.TimeoutError
	require.True(t, errors.As(err, &te), "got %v", err)
	require.Len(t, f.sent, 1)
	assert.Equal(t, f.sent[0].Hash(), te.TxHash)
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestSend_TimeoutBeforeSendingRecordsElapsed(t *testing.T) {
	f := newFake()
	f.stall = true
	l := chain.NewLedger(f, ledgerAddr, chainID, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := l.SetBackendOracle(ctx, newUser(t), common.Address{9})
	var te *domain.TimeoutError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Empty(t, f.sent)
	assert.Equal(t, common.Hash{}, te.TxHash)
	assert.GreaterOrEqual(t, te.After, 40*time.Millisecond)
	assert.NotContains(t, err.Error(), "after 0s")
}

func TestSession_Decodes(t *testing.T) {
	f := newFake()
	owner := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	w, r := [32]byte{1}, [32]byte{5}
	out, err := chain.LedgerABI.Methods["sessions"].Outputs.Pack(
		owner, true, w, [32]byte{2}, [32]byte{3}, [32]byte{4}, r, true)
	require.NoError(t, err)
	f.outputs["sessions"] = out
	next, err := chain.LedgerABI.Methods["nextSessionId"].Outputs.Pack(big.NewInt(12))
	require.NoError(t, err)
	f.outputs["nextSessionId"] = next

	l := chain.NewLedger(f, ledgerAddr, chainID, nil)
	sess, err := l.Session(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionID(3), sess.ID)
	assert.Equal(t, owner, sess.Owner)
	assert.True(t, sess.Exists)
	assert.Equal(t, domain.Handle(w), sess.Weight)
	assert.Equal(t, domain.Handle(r), sess.Result)
	assert.True(t, sess.ResultReady)
	assert.True(t, sess.InputsSubmitted())

	n, err := l.NextSessionID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(12), n)
}

func TestSessionCreatedEvents_FiltersByID(t *testing.T) {
	f := newFake()
	stray := createdLog(3, 9)
	stray.Address = tokenAddr
	removed := createdLog(3, 10)
	removed.Removed = true
	f.logs = []ethtypes.Log{createdLog(3, 8), stray, removed, createdLog(4, 11)}

	l := chain.NewLedger(f, ledgerAddr, chainID, nil)
	l.FromBlock = big.NewInt(2)
	evs, err := l.SessionCreatedEvents(context.Background(), 3)
	require.NoError(t, err)

	require.Len(t, evs, 2)
	assert.Equal(t, uint64(8), evs[0].BlockNumber)
	assert.False(t, evs[0].Removed)
	assert.True(t, evs[1].Removed)

	assert.Equal(t, []common.Address{ledgerAddr}, f.query.Addresses)
	require.Len(t, f.query.Topics, 2)
	assert.Equal(t, createdID, f.query.Topics[0][0])
	assert.Equal(t, common.BigToHash(big.NewInt(3)), f.query.Topics[1][0])
	assert.Equal(t, big.NewInt(2), f.query.FromBlock)

	ts, err := l.BlockTime(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, int64(f.now), ts.Unix())
}

func TestWatchSessionCreated(t *testing.T) {
	f := newFake()
	f.logs = []ethtypes.Log{createdLog(1, 2), createdLog(2, 3)}
	l := chain.NewLedger(f, ledgerAddr, chainID, nil)

	sink := make(chan domain.SessionCreatedEvent, 2)
	sub, err := l.WatchSessionCreated(context.Background(), sink)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	for want := domain.SessionID(1); want <= 2; want++ {
		select {
		case ev := <-sink:
			assert.Equal(t, want, ev.SessionID)
		case <-time.After(time.Second):
			t.Fatal(errNotMined)
		}
	}
}

func TestToken(t *testing.T) {
	f := newFake()
	bal, err := chain.ERC20ABI.Methods["balanceOf"].Outputs.Pack(big.NewInt(25_000_000))
	require.NoError(t, err)
	f.outputs["balanceOf"] = bal
	f.mine = successReceipt()
	u := newUser(t)

	tok := chain.NewToken(f, tokenAddr, chainID, nil)
	got, err := tok.BalanceOf(context.Background(), u.Address)
	require.NoError(t, err)
	assert.Equal(t, "25000000", got.String())

	_, err = tok.Approve(context.Background(), u, ledgerAddr, big.NewInt(10_000_000))
	require.NoError(t, err)
	require.Len(t, f.sent, 1)
	data := f.sent[0].Data()
	m, err := chain.ERC20ABI.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "approve", m.Name)
	args, err := m.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, ledgerAddr, args[0])
	assert.Equal(t, "10000000", args[1].(*big.Int).String())
}
