package admin_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthvault/internal/crypto"
	"healthvault/internal/devnet"
	"healthvault/internal/domain"
	"healthvault/internal/services/admin"
)

func newUser(t *testing.T) domain.Caller {
	t.Helper()
	id, err := crypto.GenerateOwnerKey()
	require.NoError(t, err)
	s, err := crypto.NewKeySigner(id.PrivateKey)
	require.NoError(t, err)
	return domain.NewCaller(s)
}

// seed creates n sessions for u, submits inputs for all and results for the
// first `done`.
func seed(t *testing.T, d *devnet.Devnet, u domain.Caller, n, done int) {
	t.Helper()
	ctx := context.Background()
	l := d.Ledger()
	total := new(big.Int).Mul(d.VisitFee(), big.NewInt(int64(n)))
	_, err := d.Token().Mint(ctx, u.Address, total)
	require.NoError(t, err)
	_, err = d.Token().Approve(ctx, u, l.Address(), total)
	require.NoError(t, err)

	in := domain.EncodedInput{Weight: 7050, Height: 17500, Exercise: 3, Diet: 7}
	for i := 0; i < n; i++ {
		rcpt, err := l.CreateSession(ctx, u)
		require.NoError(t, err)
		id := rcpt.Events[0].SessionID
		batch, err := d.Engine().Encrypt(ctx, l.Address(), u.Address, in.Values())
		require.NoError(t, err)
		h := batch.Handles
		_, err = l.SubmitEncryptedInput(ctx, u, id, h[0], h[1], h[2], h[3], batch.Proof)
		require.NoError(t, err)
		if i < done {
			_, _, err = d.Oracle().Process(ctx, id)
			require.NoError(t, err)
		}
	}
}

func newService(t *testing.T) (*devnet.Devnet, *admin.Service) {
	t.Helper()
	d, err := devnet.New(devnet.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d, admin.New(d.Ledger(), 4, nil)
}

func TestInfo(t *testing.T) {
	d, svc := newService(t)
	seed(t, d, newUser(t), 2, 0)

	info, err := svc.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, d.OwnerSigner().Address(), info.Owner)
	assert.Equal(t, d.OracleSigner().Address(), info.BackendOracle)
	assert.Equal(t, uint64(2), info.NextSessionID)
	assert.Equal(t, "20000000", info.FeeBalance)
	assert.Equal(t, "10000000", info.VisitFee)
}

func TestStats(t *testing.T) {
	d, svc := newService(t)
	seed(t, d, newUser(t), 5, 2)

	st, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Stats{Total: 5, Completed: 2, Pending: 3}, st)
}

func TestWithdrawFees(t *testing.T) {
	d, svc := newService(t)
	u := newUser(t)
	seed(t, d, u, 1, 0)
	ctx := context.Background()
	owner := domain.NewCaller(d.OwnerSigner())
	to := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	_, err := svc.WithdrawFees(ctx, u, to)
	assert.ErrorIs(t, err, admin.ErrNotOwner)

	_, err = svc.WithdrawFees(ctx, owner, common.Address{})
	assert.ErrorIs(t, err, admin.ErrZeroAddress)

	_, err = svc.WithdrawFees(ctx, domain.ReadOnly(owner.Address), to)
	assert.ErrorIs(t, err, domain.ErrNoSigner)

	_, err = svc.WithdrawFees(ctx, owner, to)
	require.NoError(t, err)
	bal, err := d.Token().BalanceOf(ctx, to)
	require.NoError(t, err)
	assert.Equal(t, d.VisitFee().String(), bal.String())

	_, err = svc.WithdrawFees(ctx, owner, to)
	assert.ErrorIs(t, err, domain.ErrChain, "empty balance reverts")
}

func TestSetBackendOracle(t *testing.T) {
	d, svc := newService(t)
	ctx := context.Background()
	owner := domain.NewCaller(d.OwnerSigner())
	next := newUser(t)

	_, err := svc.SetBackendOracle(ctx, next, next.Address)
	assert.ErrorIs(t, err, admin.ErrNotOwner)

	_, err = svc.SetBackendOracle(ctx, owner, next.Address)
	require.NoError(t, err)
	info, err := svc.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, next.Address, info.BackendOracle)
}
