package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"healthvault/internal/chain"
	"healthvault/internal/crypto"
	"healthvault/internal/devnet"
	"healthvault/internal/devnet/state"
	"healthvault/internal/domain"
	"healthvault/internal/relayer"
	adminsvc "healthvault/internal/services/admin"
	identitysvc "healthvault/internal/services/identity"
	sessionsvc "healthvault/internal/services/session"
	"healthvault/internal/store"
)

// ErrNoSandbox is returned by sandbox-only commands on the rpc network.
var ErrNoSandbox = errors.New("sandbox operations need the devnet network")

// Ledger is every ledger role the CLI drives.
type Ledger interface {
	domain.SessionLedger
	domain.AdminLedger
}

// Sandbox exposes the privileged devnet operations: minting fee credits and
// running the backend oracle.
type Sandbox interface {
	Faucet(ctx context.Context, to common.Address, amount *big.Int) (domain.Receipt, error)
	Process(ctx context.Context, id domain.SessionID) (uint8, domain.Receipt, error)
}

// Wire bundles all stores, services, and clients for the CLI.
type Wire struct {
	Config   Config
	Log      *logrus.Logger
	Identity *identitysvc.Service
	Sessions *sessionsvc.Service
	Admin    *adminsvc.Service
	Ledger   Ledger
	Fees     domain.FeeGateway
	Engine   domain.EncryptionEngine
	// Sandbox is nil on the rpc network.
	Sandbox Sandbox

	closers []func() error
}

// NewWire constructs the dependency graph from cfg.
func NewWire(ctx context.Context, cfg Config) (*Wire, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	fee, _ := cfg.fee()

	w := &Wire{
		Config:   cfg,
		Log:      log,
		Identity: identitysvc.New(store.NewIdentityFileStore(cfg.Home)),
	}

	var gd crypto.GrantDomain
	switch {
	case cfg.Network == NetworkRPC:
		gd, err = w.wireRPC(ctx)
	case cfg.RelayerURL != "":
		gd, err = w.wireRemoteDevnet(ctx)
	default:
		gd, err = w.wireLocalDevnet(fee)
	}
	if err != nil {
		_ = w.Close()
		return nil, err
	}

	w.Sessions = sessionsvc.New(w.Ledger, w.Fees, w.Engine, sessionsvc.Config{
		VisitFee:         fee,
		InclusionTimeout: cfg.InclusionTimeout,
		ScanConcurrency:  cfg.ScanConcurrency,
		GrantDays:        cfg.GrantDays,
		GrantDomain:      gd,
	}, log)
	w.Admin = adminsvc.New(w.Ledger, cfg.ScanConcurrency, log)
	return w, nil
}

// wireRPC binds the deployed contracts and the remote encryption engine.
func (w *Wire) wireRPC(ctx context.Context) (crypto.GrantDomain, error) {
	cfg := w.Config
	chainID := big.NewInt(cfg.ChainID)
	client, err := chain.Dial(ctx, cfg.RPCURL, chainID)
	if err != nil {
		return crypto.GrantDomain{}, err
	}
	w.closers = append(w.closers, func() error { client.Close(); return nil })

	w.Ledger = chain.NewLedger(client, common.HexToAddress(cfg.LedgerAddress), chainID, w.Log)
	w.Fees = chain.NewToken(client, common.HexToAddress(cfg.TokenAddress), chainID, w.Log)
	w.Engine = relayer.NewEngine(relayer.NewClient(cfg.RelayerURL, cfg.httpClient(), w.Log))
	return crypto.GrantDomain{ChainID: chainID, Verifier: common.HexToAddress(cfg.DecryptionVerifier)}, nil
}

// wireRemoteDevnet talks to a sandbox served by cmd/devnet.
func (w *Wire) wireRemoteDevnet(ctx context.Context) (crypto.GrantDomain, error) {
	r, err := devnet.Dial(ctx, w.Config.RelayerURL, w.Config.httpClient(), w.Log)
	if err != nil {
		return crypto.GrantDomain{}, err
	}
	w.Ledger = r.Ledger()
	w.Fees = r.Token()
	w.Engine = r.Engine()
	w.Sandbox = r
	return r.GrantDomain(), nil
}

// wireLocalDevnet runs the sandbox in process.
func (w *Wire) wireLocalDevnet(fee *big.Int) (crypto.GrantDomain, error) {
	cfg := state.Config{Backend: "badger", Path: w.Config.Devnet.Path}
	if w.Config.Devnet.InMemory {
		cfg = state.Config{Backend: "mem"}
	}
	db, err := state.Open(cfg)
	if err != nil {
		return crypto.GrantDomain{}, fmt.Errorf("open devnet state: %w", err)
	}
	w.closers = append(w.closers, db.Close)

	d, err := devnet.New(devnet.Options{
		ChainID:  big.NewInt(w.Config.ChainID),
		VisitFee: fee,
		Store:    db,
		Log:      w.Log,
	})
	if err != nil {
		return crypto.GrantDomain{}, err
	}
	w.closers = append(w.closers, d.Close)

	w.Ledger = d.Ledger()
	w.Fees = d.Token()
	w.Engine = d.Engine()
	w.Sandbox = localSandbox{d}
	return d.GrantDomain(), nil
}

// Close releases the wired resources in reverse order.
func (w *Wire) Close() error {
	var errs []error
	for i := len(w.closers) - 1; i >= 0; i-- {
		errs = append(errs, w.closers[i]())
	}
	w.closers = nil
	return errors.Join(errs...)
}

// Signer unlocks the owner key and returns a signing caller.
func (w *Wire) Signer(passphrase string) (domain.Caller, error) {
	s, err := w.Identity.LoadSigner(passphrase)
	if err != nil {
		return domain.Caller{}, err
	}
	return domain.NewCaller(s), nil
}

// Viewer returns a read-only caller for the stored owner address.
func (w *Wire) Viewer() (domain.Caller, error) {
	addr, err := w.Identity.Address()
	if err != nil {
		return domain.Caller{}, err
	}
	return domain.ReadOnly(addr), nil
}

// RequireSandbox returns the sandbox or ErrNoSandbox.
func (w *Wire) RequireSandbox() (Sandbox, error) {
	if w.Sandbox == nil {
		return nil, ErrNoSandbox
	}
	return w.Sandbox, nil
}

// localSandbox adapts an in-process devnet to Sandbox.
type localSandbox struct{ d *devnet.Devnet }

func (s localSandbox) Faucet(ctx context.Context, to common.Address, amount *big.Int) (domain.Receipt, error) {
	return s.d.Token().Mint(ctx, to, amount)
}

func (s localSandbox) Process(ctx context.Context, id domain.SessionID) (uint8, domain.Receipt, error) {
	return s.d.Oracle().Process(ctx, id)
}

// Compile-time assertions for the sandbox adapters.
var (
	_ Sandbox = localSandbox{}
	_ Sandbox = (*devnet.Remote)(nil)
)
