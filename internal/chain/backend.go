package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"healthvault/internal/domain"
)

// ErrReverted marks a transaction included with a failed status.
var ErrReverted = errors.New("transaction reverted")

// Backend is the part of an RPC client the adapters use. *ethclient.Client
// satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Dial connects to an RPC endpoint and checks it serves chainID.
func Dial(ctx context.Context, url string, chainID *big.Int) (*ethclient.Client, error) {
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	got, err := c.ChainID(ctx)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("read chain id: %w", err)
	}
	if chainID != nil && got.Cmp(chainID) != 0 {
		c.Close()
		return nil, fmt.Errorf("endpoint serves chain %s, configured %s", got, chainID)
	}
	return c, nil
}

// contract bundles a bound contract with what it needs to send transactions.
type contract struct {
	address common.Address
	bound   *bind.BoundContract
	backend Backend
	chainID *big.Int
	log     *logrus.Logger
}

func newContract(b Backend, address common.Address, parsed abi.ABI, chainID *big.Int, log *logrus.Logger) *contract {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	return &contract{
		address: address,
		bound:   bind.NewBoundContract(address, parsed, b, b, b),
		backend: b,
		chainID: chainID,
		log:     log,
	}
}

// call runs a read-only method and returns its outputs.
func (c *contract) call(ctx context.Context, from common.Address, method string, args ...any) ([]any, error) {
	var out []any
	err := c.bound.Call(&bind.CallOpts{Context: ctx, From: from}, &out, method, args...)
	return out, err
}

// transactOpts signs with the caller's key.
func (c *contract) transactOpts(ctx context.Context, from domain.Caller) *bind.TransactOpts {
	return &bind.TransactOpts{
		From:    from.Address,
		Context: ctx,
		Signer: func(addr common.Address, tx *ethtypes.Transaction) (*ethtypes.Transaction, error) {
			if addr != from.Address {
				return nil, bind.ErrNotAuthorized
			}
			return from.Signer.SignTx(tx, c.chainID)
		},
	}
}

// send signs and submits method, then waits for its receipt.
//
// Steps:
//  1. Reject callers without a signer; nothing is sent.
//  2. Build, sign and send the transaction (gas is estimated by the node).
//  3. Wait for the receipt until ctx ends; a timeout keeps the tx hash.
//  4. A failed receipt status is a revert.
func (c *contract) send(
	ctx context.Context,
	op string,
	from domain.Caller,
	method string,
	args ...any,
) (*ethtypes.Receipt, error) {
	if !from.CanSign() {
		return nil, &domain.ChainError{Op: op, Err: domain.ErrNoSigner}
	}
	start := time.Now()
	tx, err := c.bound.Transact(c.transactOpts(ctx, from), method, args...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &domain.TimeoutError{Op: op, After: time.Since(start).Round(time.Millisecond)}
		}
		return nil, &domain.ChainError{Op: op, Err: err}
	}
	c.log.WithFields(logrus.Fields{
		"op":   op,
		"tx":   tx.Hash().Hex(),
		"from": from.Address.Hex(),
	}).Debug("transaction sent")

	rcpt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &domain.TimeoutError{Op: op, TxHash: tx.Hash(), After: time.Since(start).Round(time.Millisecond)}
		}
		return nil, &domain.ChainError{Op: op, TxHash: tx.Hash(), Err: err}
	}
	if rcpt.Status != ethtypes.ReceiptStatusSuccessful {
		return nil, &domain.ChainError{Op: op, TxHash: tx.Hash(), Err: ErrReverted}
	}
	return rcpt, nil
}

func receipt(r *ethtypes.Receipt) domain.Receipt {
	out := domain.Receipt{TxHash: r.TxHash}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	return out
}
