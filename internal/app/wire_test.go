package app_test

import (
	"context"
	"math/big"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthvault/internal/app"
	"healthvault/internal/devnet"
	"healthvault/internal/domain"
)

const pass = "Correct-Horse-9"

var input = domain.HealthInput{Weight: 70.5, Height: 175, Exercise: 3, Diet: 7}

// runSession drives one full session through a wired graph.
func runSession(t *testing.T, w *app.Wire) {
	t.Helper()
	ctx := context.Background()

	addr, _, err := w.Identity.GenerateIdentity(pass)
	require.NoError(t, err)
	caller, err := w.Signer(pass)
	require.NoError(t, err)
	assert.Equal(t, addr, caller.Address)

	sb, err := w.RequireSandbox()
	require.NoError(t, err)
	_, err = sb.Faucet(ctx, addr, big.NewInt(10_000_000))
	require.NoError(t, err)

	created, err := w.Sessions.CreateSessionAndSubmit(ctx, caller, input)
	require.NoError(t, err)

	tier, _, err := sb.Process(ctx, created.ID)
	require.NoError(t, err)

	res, err := w.Sessions.DecryptResult(ctx, caller, created.ID)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(int64(tier)).String(), res.String())

	viewer, err := w.Viewer()
	require.NoError(t, err)
	list, err := w.Sessions.FetchMySessions(ctx, viewer)
	require.NoError(t, err)
	require.Len(t, list.Sessions, 1)
	assert.True(t, list.Sessions[0].ResultReady)

	st, err := w.Admin.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.Completed)
}

func TestNewWire_InMemoryDevnet(t *testing.T) {
	cfg := app.DefaultConfig(t.TempDir())
	cfg.Devnet.InMemory = true
	w, err := app.NewWire(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	runSession(t, w)
}

func TestNewWire_BadgerDevnetPersists(t *testing.T) {
	home := t.TempDir()
	cfg := app.DefaultConfig(home)
	ctx := context.Background()

	w, err := app.NewWire(ctx, cfg)
	require.NoError(t, err)
	runSession(t, w)
	require.NoError(t, w.Close())

	w, err = app.NewWire(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	next, err := w.Ledger.NextSessionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next)
}

func TestNewWire_RemoteDevnet(t *testing.T) {
	d, err := devnet.New(devnet.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	ts := httptest.NewServer(devnet.NewServer(d, nil).Routes())
	t.Cleanup(ts.Close)

	cfg := app.DefaultConfig(t.TempDir())
	cfg.RelayerURL = ts.URL
	cfg.HTTP = ts.Client()
	w, err := app.NewWire(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	assert.Equal(t, d.Ledger().Address(), w.Ledger.Address())
	runSession(t, w)
}

func TestNewWire_InvalidConfig(t *testing.T) {
	cfg := app.DefaultConfig(t.TempDir())
	cfg.Network = app.NetworkRPC
	_, err := app.NewWire(context.Background(), cfg)
	assert.ErrorContains(t, err, "rpc_url")

	cfg = app.DefaultConfig(t.TempDir())
	cfg.LogLevel = "loud"
	_, err = app.NewWire(context.Background(), cfg)
	assert.ErrorContains(t, err, "log_level")
}
