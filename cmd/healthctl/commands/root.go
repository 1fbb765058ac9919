package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"healthvault/internal/app"
	"healthvault/internal/domain"
)

var (
	home       string
	passphrase string
	wire       *app.Wire

	network  string
	relayURL string
	rpcURL   string
	logLevel string
	inMemory bool
)

// Execute runs the CLI against os.Args.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := run(ctx, NewRootCmd(), os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if r := domain.RemedyFor(err); r != domain.RemedyNone && r != domain.RemedyInternal {
			fmt.Fprintf(os.Stderr, "hint: %s\n", r)
		}
	}
	return err
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "healthctl",
		Short:         "Confidential health-metrics sessions on an encrypted ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".healthvault")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}

			cfg, err := app.LoadConfig(home)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("network") {
				cfg.Network = network
			}
			if flags.Changed("relayer") {
				cfg.RelayerURL = relayURL
			}
			if flags.Changed("rpc") {
				cfg.RPCURL = rpcURL
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("in-memory") {
				cfg.Devnet.InMemory = inMemory
			}

			wire, err = app.NewWire(cmd.Context(), cfg)
			return err
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&home, "home", "", "config dir (default ~/.healthvault)")
	pf.StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the owner key")
	pf.StringVar(&network, "network", "", "ledger backend: devnet or rpc")
	pf.StringVar(&relayURL, "relayer", "", "encryption engine / remote devnet base URL")
	pf.StringVar(&rpcURL, "rpc", "", "Ethereum JSON-RPC endpoint (rpc network)")
	pf.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.BoolVar(&inMemory, "in-memory", false, "keep devnet state in memory only")

	root.AddCommand(
		initCmd(), addressCmd(),
		createCmd(), submitCmd(), listCmd(), resultCmd(), watchCmd(),
		faucetCmd(), processCmd(), adminCmd(),
	)
	return root
}

// run executes root with args and releases the wired resources even when the
// command fails.
func run(ctx context.Context, root *cobra.Command, args []string) error {
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if wire != nil {
		if cerr := wire.Close(); err == nil {
			err = cerr
		}
		wire = nil
	}
	return err
}

// signer unlocks the owner key with --passphrase.
func signer() (domain.Caller, error) {
	if passphrase == "" {
		return domain.Caller{}, fmt.Errorf("passphrase required (-p)")
	}
	return wire.Signer(passphrase)
}

func parseSessionID(s string) (domain.SessionID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid session id %q", s)
	}
	return domain.SessionID(n), nil
}
