package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"healthvault/internal/app"
	"healthvault/internal/devnet"
	"healthvault/internal/devnet/state"
)

type options struct {
	addr     string
	path     string
	inMemory bool
	chainID  int64
	visitFee string
	logLevel string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:          "devnet",
		Short:        "Serve the sandbox ledger, fee token and encryption engine over HTTP",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.addr, "addr", ":8080", "listen address")
	f.StringVar(&o.path, "path", "devnet-data", "badger directory")
	f.BoolVar(&o.inMemory, "in-memory", false, "keep state in memory only")
	f.Int64Var(&o.chainID, "chain-id", devnet.DefaultChainID, "chain id")
	f.StringVar(&o.visitFee, "visit-fee", "10000000", "visit fee in token base units")
	f.StringVar(&o.logLevel, "log-level", "info", "log level")
	return cmd
}

func serve(ctx context.Context, o options) error {
	log, err := app.NewLogger(o.logLevel)
	if err != nil {
		return err
	}
	fee, ok := new(big.Int).SetString(o.visitFee, 10)
	if !ok || fee.Sign() <= 0 {
		return fmt.Errorf("invalid visit fee %q", o.visitFee)
	}

	cfg := state.Config{Backend: "badger", Path: o.path}
	if o.inMemory {
		cfg = state.Config{Backend: "mem"}
	}
	db, err := state.Open(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	d, err := devnet.New(devnet.Options{
		ChainID:  big.NewInt(o.chainID),
		VisitFee: fee,
		Store:    db,
		Log:      log,
	})
	if err != nil {
		return err
	}
	defer d.Close()

	srv := &http.Server{
		Addr:              o.addr,
		Handler:           devnet.NewServer(d, log).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	log.WithFields(logrus.Fields{
		"addr":     o.addr,
		"chain_id": o.chainID,
		"ledger":   d.Ledger().Address().Hex(),
		"token":    d.Token().Address().Hex(),
		"owner":    d.OwnerSigner().Address().Hex(),
	}).Info("devnet listening")

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
