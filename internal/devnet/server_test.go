package devnet_test

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthvault/internal/crypto"
	"healthvault/internal/devnet"
	"healthvault/internal/domain"
)

func serve(t *testing.T) (*devnet.Devnet, *devnet.Remote, *httptest.Server) {
	t.Helper()
	d := newDevnet(t)
	ts := httptest.NewServer(devnet.NewServer(d, nil).Routes())
	t.Cleanup(ts.Close)
	r, err := devnet.Dial(context.Background(), ts.URL, ts.Client(), nil)
	require.NoError(t, err)
	return d, r, ts
}

func TestRemote_NetworkMatchesSandbox(t *testing.T) {
	d, r, _ := serve(t)
	assert.Equal(t, d.Ledger().Address(), r.Ledger().Address())
	assert.Equal(t, d.Token().Address(), r.Token().Address())
	assert.Equal(t, d.ChainID().String(), r.ChainID().String())
	assert.Equal(t, d.GrantDomain(), r.GrantDomain())
}

func TestRemote_FullSession(t *testing.T) {
	_, r, _ := serve(t)
	ctx := context.Background()
	u := newUser(t)
	l, tok, eng := r.Ledger(), r.Token(), r.Engine()

	_, err := r.Faucet(ctx, u.Address, fee)
	require.NoError(t, err)
	bal, err := tok.BalanceOf(ctx, u.Address)
	require.NoError(t, err)
	assert.Equal(t, fee.String(), bal.String())

	_, err = l.CreateSession(ctx, u)
	require.ErrorIs(t, err, devnet.ErrReverted, "no allowance yet")
	require.ErrorIs(t, err, domain.ErrChain)

	_, err = tok.Approve(ctx, u, l.Address(), fee)
	require.NoError(t, err)
	allowance, err := tok.Allowance(ctx, u.Address, l.Address())
	require.NoError(t, err)
	assert.Equal(t, fee.String(), allowance.String())

	rcpt, err := l.CreateSession(ctx, u)
	require.NoError(t, err)
	require.Len(t, rcpt.Events, 1)
	id := rcpt.Events[0].SessionID

	batch, err := eng.Encrypt(ctx, l.Address(), u.Address, reference.Values())
	require.NoError(t, err)
	h := batch.Handles
	_, err = l.SubmitEncryptedInput(ctx, u, id, h[0], h[1], h[2], h[3], batch.Proof)
	require.NoError(t, err)

	tier, _, err := r.Process(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, devnet.RiskScore(reference), tier)

	sess, err := l.Session(ctx, id)
	require.NoError(t, err)
	require.True(t, sess.ResultReady)

	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	g, err := crypto.BuildGrant(u.Signer, r.GrantDomain(), kp.Public, []common.Address{l.Address()}, time.Now(), 10)
	require.NoError(t, err)
	got, err := eng.UserDecrypt(ctx, domain.DecryptRequest{
		Pairs:        []domain.HandleContract{{Handle: sess.Result, Contract: l.Address()}},
		PrivateKey:   kp.Private,
		PublicKey:    kp.Public,
		Signature:    g.Signature,
		Contracts:    g.Contracts,
		User:         u.Address,
		Start:        g.Start.Unix(),
		DurationDays: g.DurationDays,
	})
	require.NoError(t, err)
	require.Contains(t, got, sess.Result)
	assert.Equal(t, int64(tier), got[sess.Result].Int.Int64())

	evs, err := l.SessionCreatedEvents(ctx, id)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	ts, err := l.BlockTime(ctx, evs[0].BlockNumber)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ts, time.Minute)
}

func TestRemote_ReadOnlyCallerNeverSends(t *testing.T) {
	_, r, _ := serve(t)
	u := newUser(t)
	_, err := r.Ledger().CreateSession(context.Background(), domain.ReadOnly(u.Address))
	assert.ErrorIs(t, err, domain.ErrNoSigner)
}

func TestRemote_AdminViews(t *testing.T) {
	d, r, _ := serve(t)
	ctx := context.Background()
	l := r.Ledger()

	owner, err := l.Owner(ctx)
	require.NoError(t, err)
	assert.Equal(t, d.OwnerSigner().Address(), owner)

	oracle, err := l.BackendOracle(ctx)
	require.NoError(t, err)
	assert.Equal(t, d.OracleSigner().Address(), oracle)

	u := newUser(t)
	_, err = l.SetBackendOracle(ctx, u, u.Address)
	assert.ErrorIs(t, err, devnet.ErrReverted)

	_, err = l.SetBackendOracle(ctx, domain.NewCaller(d.OwnerSigner()), u.Address)
	require.NoError(t, err)
	oracle, err = l.BackendOracle(ctx)
	require.NoError(t, err)
	assert.Equal(t, u.Address, oracle)
}

func TestRemote_BlockNotFound(t *testing.T) {
	_, r, _ := serve(t)
	_, err := r.Ledger().BlockTime(context.Background(), 1_000)
	assert.ErrorIs(t, err, devnet.ErrUnknownBlock)
}

func TestRemote_WatchPollsNewSessions(t *testing.T) {
	d, r, _ := serve(t)
	r.PollInterval = 10 * time.Millisecond
	u := newUser(t)
	fund(t, d, u, 1)
	ctx := context.Background()

	sink := make(chan domain.SessionCreatedEvent, 1)
	sub, err := r.Ledger().WatchSessionCreated(ctx, sink)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	rcpt, err := d.Ledger().CreateSession(ctx, u)
	require.NoError(t, err)
	select {
	case ev := <-sink:
		assert.Equal(t, rcpt.Events[0].SessionID, ev.SessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event polled")
	}
}

func postTx(t *testing.T, ts *httptest.Server, tx *ethtypes.Transaction) *http.Response {
	t.Helper()
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	body, err := json.Marshal(devnet.TxRequest{Raw: hexutil.Bytes(raw)})
	require.NoError(t, err)
	resp, err := ts.Client().Post(ts.URL+"/v1/tx", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var eb struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&eb))
	return eb.Error.Code
}

func TestServer_TxAuthentication(t *testing.T) {
	d, _, ts := serve(t)
	u := newUser(t)
	fund(t, d, u, 2)
	to := d.Ledger().Address()
	data, err := json.Marshal(devnet.TxCall{Method: devnet.MethodCreateSession})
	require.NoError(t, err)

	sign := func(nonce uint64, chainID *big.Int) *ethtypes.Transaction {
		tx := ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: nonce, To: &to, Data: data, GasPrice: new(big.Int)})
		signed, err := u.Signer.SignTx(tx, chainID)
		require.NoError(t, err)
		return signed
	}

	t.Run("wrong chain", func(t *testing.T) {
		resp := postTx(t, ts, sign(1, big.NewInt(1)))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, devnet.CodeUnauthorized, errorCode(t, resp))
	})

	first := sign(5, d.ChainID())
	resp := postTx(t, ts, first)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out domain.CreateReceipt
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Events, 1)

	t.Run("replay", func(t *testing.T) {
		resp := postTx(t, ts, first)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown method", func(t *testing.T) {
		bad, err := json.Marshal(devnet.TxCall{Method: "selfDestruct"})
		require.NoError(t, err)
		tx := ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: 9, To: &to, Data: bad, GasPrice: new(big.Int)})
		signed, err := u.Signer.SignTx(tx, d.ChainID())
		require.NoError(t, err)
		resp := postTx(t, ts, signed)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, devnet.CodeBadRequest, errorCode(t, resp))
	})
}

func TestServer_Health(t *testing.T) {
	_, _, ts := serve(t)
	resp, err := ts.Client().Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
