package session_test

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthvault/internal/crypto"
	"healthvault/internal/devnet"
	"healthvault/internal/domain"
	"healthvault/internal/services/session"
)

var reference = domain.HealthInput{Weight: 70.5, Height: 175, Exercise: 3, Diet: 7}

// hookedLedger delegates to a real ledger unless a hook is set, and counts
// state-changing calls.
type hookedLedger struct {
	domain.SessionLedger

	creates atomic.Int32
	submits atomic.Int32

	onCreate  func(ctx context.Context, from domain.Caller) (domain.CreateReceipt, error)
	onSession func(ctx context.Context, id domain.SessionID) (domain.Session, error)
	onResult  func(ctx context.Context, id domain.SessionID) (domain.Handle, error)
	onNext    func(ctx context.Context) (uint64, error)
}

func (h *hookedLedger) NextSessionID(ctx context.Context) (uint64, error) {
	if h.onNext != nil {
		return h.onNext(ctx)
	}
	return h.SessionLedger.NextSessionID(ctx)
}

func (h *hookedLedger) CreateSession(ctx context.Context, from domain.Caller) (domain.CreateReceipt, error) {
	h.creates.Add(1)
	if h.onCreate != nil {
		return h.onCreate(ctx, from)
	}
	return h.SessionLedger.CreateSession(ctx, from)
}

func (h *hookedLedger) SubmitEncryptedInput(
	ctx context.Context,
	from domain.Caller,
	id domain.SessionID,
	w, ht, ex, di domain.Handle,
	proof []byte,
) (domain.Receipt, error) {
	h.submits.Add(1)
	return h.SessionLedger.SubmitEncryptedInput(ctx, from, id, w, ht, ex, di, proof)
}

func (h *hookedLedger) Session(ctx context.Context, id domain.SessionID) (domain.Session, error) {
	if h.onSession != nil {
		return h.onSession(ctx, id)
	}
	return h.SessionLedger.Session(ctx, id)
}

func (h *hookedLedger) EncryptedResult(ctx context.Context, id domain.SessionID) (domain.Handle, error) {
	if h.onResult != nil {
		return h.onResult(ctx, id)
	}
	return h.SessionLedger.EncryptedResult(ctx, id)
}

type fixture struct {
	d      *devnet.Devnet
	ledger *hookedLedger
	fees   *hookedFees
	engine *hookedEngine
	svc    *session.Service
}

func newFixture(t *testing.T, mutate ...func(*session.Config)) *fixture {
	t.Helper()
	d, err := devnet.New(devnet.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	cfg := session.Config{VisitFee: d.VisitFee(), GrantDomain: d.GrantDomain()}
	for _, m := range mutate {
		m(&cfg)
	}
	l := &hookedLedger{SessionLedger: d.Ledger()}
	fees := &hookedFees{FeeGateway: d.Token()}
	eng := &hookedEngine{EncryptionEngine: d.Engine()}
	return &fixture{d: d, ledger: l, fees: fees, engine: eng, svc: session.New(l, fees, eng, cfg, nil)}
}

func newUser(t *testing.T) domain.Caller {
	t.Helper()
	id, err := crypto.GenerateOwnerKey()
	require.NoError(t, err)
	s, err := crypto.NewKeySigner(id.PrivateKey)
	require.NoError(t, err)
	return domain.NewCaller(s)
}

func (f *fixture) mint(t *testing.T, u domain.Caller, sessions int64) {
	t.Helper()
	_, err := f.d.Token().Mint(context.Background(), u.Address, new(big.Int).Mul(f.d.VisitFee(), big.NewInt(sessions)))
	require.NoError(t, err)
}

func TestCreateSessionAndSubmit_EndToEnd(t *testing.T) {
	f := newFixture(t)
	u := newUser(t)
	f.mint(t, u, 1)
	ctx := context.Background()

	created, err := f.svc.CreateSessionAndSubmit(ctx, u, reference)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionID(0), created.ID)
	assert.True(t, created.Approved, "allowance was zero so an approval is sent")
	assert.NotNil(t, created.CreatedAt)
	assert.NotEqual(t, created.CreateTx, created.SubmitTx)

	res, err := f.svc.DecryptResult(ctx, u, created.ID)
	require.NoError(t, err)
	assert.True(t, res.Pending)
	assert.Equal(t, "pending", res.String())

	_, err = f.d.Oracle().SetResult(ctx, created.ID, 1)
	require.NoError(t, err)

	res, err = f.svc.DecryptResult(ctx, u, created.ID)
	require.NoError(t, err)
	assert.False(t, res.Pending)
	assert.Equal(t, "1", res.String())
	assert.Equal(t, domain.RiskModerate, domain.ClassifyRisk(res))

	bal, err := f.d.Token().BalanceOf(ctx, u.Address)
	require.NoError(t, err)
	assert.Zero(t, bal.Sign(), "exactly one visit fee was collected")
}

func TestCreateSessionAndSubmit_IDsIncrease(t *testing.T) {
	f := newFixture(t)
	u := newUser(t)
	f.mint(t, u, 3)
	ctx := context.Background()

	var last *domain.CreatedSession
	for i := 0; i < 3; i++ {
		created, err := f.svc.CreateSessionAndSubmit(ctx, u, reference)
		require.NoError(t, err)
		if last != nil {
			assert.Greater(t, created.ID, last.ID)
		}
		last = created
	}
}

func TestCreateSessionAndSubmit_InsufficientFunds(t *testing.T) {
	f := newFixture(t)
	u := newUser(t)

	_, err := f.svc.CreateSessionAndSubmit(context.Background(), u, reference)
	var ife *domain.InsufficientFundsError
	require.True(t, errors.As(err, &ife))
	assert.Equal(t, "0", ife.Balance.String())
	assert.Equal(t, f.d.VisitFee().String(), ife.Required.String())
	assert.Equal(t, domain.RemedyAddFunds, domain.RemedyFor(err))

	assert.Zero(t, f.ledger.creates.Load(), "no ledger transaction after a failed preflight")
	assert.Zero(t, f.ledger.submits.Load())
	allowance, err := f.d.Token().Allowance(context.Background(), u.Address, f.ledger.Address())
	require.NoError(t, err)
	assert.Zero(t, allowance.Sign(), "no approval after a failed preflight")
}

func TestCreateSessionAndSubmit_SkipsApprovalWhenCovered(t *testing.T) {
	f := newFixture(t)
	u := newUser(t)
	f.mint(t, u, 1)
	ctx := context.Background()
	_, err := f.d.Token().Approve(ctx, u, f.ledger.Address(), f.d.VisitFee())
	require.NoError(t, err)

	created, err := f.svc.CreateSessionAndSubmit(ctx, u, reference)
	require.NoError(t, err)
	assert.False(t, created.Approved)
}

func TestCreateSessionAndSubmit_ValidatesBeforeIO(t *testing.T) {
	f := newFixture(t)
	u := newUser(t)
	f.mint(t, u, 1)

	_, err := f.svc.CreateSessionAndSubmit(context.Background(), u, domain.HealthInput{Weight: 0, Height: 175, Exercise: 3, Diet: 7})
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "weight", ve.Field)
	assert.Zero(t, f.ledger.creates.Load())
}

func TestCreateSessionAndSubmit_RequiresSigner(t *testing.T) {
	f := newFixture(t)
	u := newUser(t)
	f.mint(t, u, 1)

	_, err := f.svc.CreateSessionAndSubmit(context.Background(), domain.ReadOnly(u.Address), reference)
	assert.ErrorIs(t, err, domain.ErrNoSigner)
	assert.Zero(t, f.ledger.creates.Load())
}

func TestCreateSessionAndSubmit_Timeout(t *testing.T) {
	f := newFixture(t, func(c *session.Config) { c.InclusionTimeout = 20 * time.Millisecond })
	u := newUser(t)
	f.mint(t, u, 1)
	f.ledger.onCreate = func(ctx context.Context, _ domain.Caller) (domain.CreateReceipt, error) {
		<-ctx.Done()
		return domain.CreateReceipt{}, ctx.Err()
	}

	_, err := f.svc.CreateSessionAndSubmit(context.Background(), u, reference)
	var te *domain.TimeoutError
	require.True(t, errors.As(err, &te))
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, domain.RemedyTryLater, domain.RemedyFor(err))
}

func TestCreateSessionAndSubmit_IDRecovery(t *testing.T) {
	id := func(v domain.SessionID) *domain.SessionID { return &v }

	cases := []struct {
		name    string
		receipt domain.CreateReceipt
		want    domain.SessionID
		wantErr error
	}{
		{
			name: "event wins over simulation",
			receipt: domain.CreateReceipt{
				Events:   []domain.SessionCreatedEvent{{SessionID: 9, Removed: true}, {SessionID: 3}},
				Returned: id(4),
			},
			want: 3,
		},
		{
			name:    "simulation when no event",
			receipt: domain.CreateReceipt{Returned: id(7)},
			want:    7,
		},
		{
			name:    "neither",
			receipt: domain.CreateReceipt{},
			wantErr: domain.ErrProtocol,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			u := newUser(t)
			f.mint(t, u, 1)
			f.ledger.onCreate = func(context.Context, domain.Caller) (domain.CreateReceipt, error) {
				return tc.receipt, nil
			}

			created, err := f.svc.CreateSessionAndSubmit(context.Background(), u, reference)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Nil(t, created)
				return
			}
			// The recovered id was never allocated, so the submit reverts,
			// but the created session is still reported.
			require.NotNil(t, created)
			assert.Equal(t, tc.want, created.ID)
			assert.ErrorIs(t, err, domain.ErrChain)
		})
	}
}

func TestSubmitInputs_FinishesAndRejectsResubmission(t *testing.T) {
	f := newFixture(t)
	u := newUser(t)
	f.mint(t, u, 1)
	ctx := context.Background()
	_, err := f.d.Token().Approve(ctx, u, f.ledger.Address(), f.d.VisitFee())
	require.NoError(t, err)
	rcpt, err := f.d.Ledger().CreateSession(ctx, u)
	require.NoError(t, err)
	id := rcpt.Events[0].SessionID

	_, err = f.svc.SubmitInputs(ctx, u, id, reference)
	require.NoError(t, err)

	_, err = f.svc.SubmitInputs(ctx, u, id, reference)
	assert.ErrorIs(t, err, domain.ErrChain)
	assert.ErrorIs(t, err, devnet.ErrReverted)
	assert.Equal(t, domain.RemedyRetry, domain.RemedyFor(err))
}

func TestFetchMySessions(t *testing.T) {
	f := newFixture(t)
	alice, bob := newUser(t), newUser(t)
	f.mint(t, alice, 2)
	f.mint(t, bob, 1)
	ctx := context.Background()

	a0, err := f.svc.CreateSessionAndSubmit(ctx, alice, reference)
	require.NoError(t, err)
	_, err = f.svc.CreateSessionAndSubmit(ctx, bob, reference)
	require.NoError(t, err)
	a2, err := f.svc.CreateSessionAndSubmit(ctx, alice, reference)
	require.NoError(t, err)
	_, err = f.d.Oracle().SetResult(ctx, a0.ID, 0)
	require.NoError(t, err)

	listing, err := f.svc.FetchMySessions(ctx, domain.ReadOnly(alice.Address))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), listing.Scanned)
	assert.Empty(t, listing.Skipped)
	require.Len(t, listing.Sessions, 2)
	assert.Equal(t, a2.ID, listing.Sessions[0].ID)
	assert.False(t, listing.Sessions[0].ResultReady)
	assert.Equal(t, a0.ID, listing.Sessions[1].ID)
	assert.True(t, listing.Sessions[1].ResultReady)
	for _, s := range listing.Sessions {
		assert.NotNil(t, s.CreatedAt)
	}

	empty, err := f.svc.FetchMySessions(ctx, domain.ReadOnly(newUser(t).Address))
	require.NoError(t, err)
	assert.Empty(t, empty.Sessions)
}

func TestFetchMySessions_SkipsFailedReads(t *testing.T) {
	f := newFixture(t)
	u := newUser(t)
	f.mint(t, u, 3)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.svc.CreateSessionAndSubmit(ctx, u, reference)
		require.NoError(t, err)
	}

	boom := errors.New("rpc unavailable")
	inner := f.d.Ledger()
	f.ledger.onSession = func(ctx context.Context, id domain.SessionID) (domain.Session, error) {
		if id == 1 {
			return domain.Session{}, boom
		}
		return inner.Session(ctx, id)
	}

	listing, err := f.svc.FetchMySessions(ctx, u)
	require.NoError(t, err)
	require.Len(t, listing.Skipped, 1)
	assert.Equal(t, domain.SessionID(1), listing.Skipped[0].ID)
	assert.ErrorIs(t, listing.Skipped[0].Reason, boom)
	require.Len(t, listing.Sessions, 2)
	assert.Equal(t, domain.SessionID(2), listing.Sessions[0].ID)
	assert.Equal(t, domain.SessionID(0), listing.Sessions[1].ID)
}

func TestDecryptResult_OnlyOwnerSeesValue(t *testing.T) {
	f := newFixture(t)
	alice, bob := newUser(t), newUser(t)
	f.mint(t, alice, 1)
	ctx := context.Background()

	created, err := f.svc.CreateSessionAndSubmit(ctx, alice, reference)
	require.NoError(t, err)
	_, err = f.d.Oracle().SetResult(ctx, created.ID, 2)
	require.NoError(t, err)

	res, err := f.svc.DecryptResult(ctx, bob, created.ID)
	require.NoError(t, err)
	assert.True(t, res.Pending, "the engine releases nothing to a non-owner")

	res, err = f.svc.DecryptResult(ctx, alice, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RiskHigh, domain.ClassifyRisk(res))
}

func TestDecryptResult_PendingBeforeSignerCheck(t *testing.T) {
	f := newFixture(t)
	u := newUser(t)
	f.mint(t, u, 1)
	ctx := context.Background()
	created, err := f.svc.CreateSessionAndSubmit(ctx, u, reference)
	require.NoError(t, err)

	res, err := f.svc.DecryptResult(ctx, domain.ReadOnly(u.Address), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PendingResult, res)

	_, err = f.d.Oracle().SetResult(ctx, created.ID, 0)
	require.NoError(t, err)
	_, err = f.svc.DecryptResult(ctx, domain.ReadOnly(u.Address), created.ID)
	assert.ErrorIs(t, err, domain.ErrNoSigner)
}

func TestDecryptResult_ZeroHandleIsProtocolError(t *testing.T) {
	f := newFixture(t)
	u := newUser(t)
	f.ledger.onSession = func(context.Context, domain.SessionID) (domain.Session, error) {
		return domain.Session{Exists: true, Owner: u.Address, ResultReady: true}, nil
	}
	f.ledger.onResult = func(context.Context, domain.SessionID) (domain.Handle, error) {
		return domain.Handle{}, nil
	}

	_, err := f.svc.DecryptResult(context.Background(), u, 0)
	assert.ErrorIs(t, err, domain.ErrProtocol)
	assert.Equal(t, domain.RemedyInternal, domain.RemedyFor(err))
}

func TestWatchCreated(t *testing.T) {
	f := newFixture(t)
	u := newUser(t)
	f.mint(t, u, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := make(chan domain.SessionCreatedEvent, 4)
	sub, err := f.svc.WatchCreated(ctx, sink)
	require.NoError(t, err)

	created, err := f.svc.CreateSessionAndSubmit(context.Background(), u, reference)
	require.NoError(t, err)
	select {
	case ev := <-sink:
		assert.Equal(t, created.ID, ev.SessionID)
	case <-time.After(time.Second):
		t.Fatal("no event")
	}

	cancel()
	select {
	case _, ok := <-sub.Err():
		assert.False(t, ok, "subscription ends without error on cancel")
	case <-time.After(time.Second):
		t.Fatal("subscription did not stop")
	}
	sub.Unsubscribe()

	_, err = f.svc.CreateSessionAndSubmit(context.Background(), u, reference)
	require.NoError(t, err)
	select {
	case ev := <-sink:
		t.Fatalf("event %s delivered after teardown", ev.SessionID)
	case <-time.After(50 * time.Millisecond):
	}
}
