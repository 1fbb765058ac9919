package devnet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"healthvault/internal/devnet/state"
	"healthvault/internal/domain"
)

// Token is the sandbox fee token: 6 decimals, free minting.
type Token struct{ d *Devnet }

// Address implements domain.FeeGateway.
func (t *Token) Address() common.Address { return t.d.token }

// BalanceOf implements domain.FeeGateway.
func (t *Token) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	if err := live(ctx); err != nil {
		return nil, err
	}
	var out *big.Int
	err := t.d.db.View(func(txn state.Txn) error {
		var err error
		out, err = readAmount(txn, balanceKey(owner))
		return err
	})
	return out, err
}

// Allowance implements domain.FeeGateway.
func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	if err := live(ctx); err != nil {
		return nil, err
	}
	var out *big.Int
	err := t.d.db.View(func(txn state.Txn) error {
		var err error
		out, err = readAmount(txn, allowanceKey(owner, spender))
		return err
	})
	return out, err
}

// Approve implements domain.FeeGateway. The new allowance replaces the old one.
func (t *Token) Approve(
	ctx context.Context,
	from domain.Caller,
	spender common.Address,
	amount *big.Int,
) (domain.Receipt, error) {
	const op = "approve"
	if err := live(ctx); err != nil {
		return domain.Receipt{}, err
	}
	if err := authorize(op, from); err != nil {
		return domain.Receipt{}, err
	}
	if amount == nil || amount.Sign() < 0 {
		return domain.Receipt{}, revert(op, "negative amount")
	}

	t.d.mu.Lock()
	defer t.d.mu.Unlock()

	var rcpt domain.Receipt
	err := t.d.db.Update(func(txn state.Txn) error {
		if err := writeAmount(txn, allowanceKey(from.Address, spender), amount); err != nil {
			return err
		}
		var err error
		rcpt, err = t.d.mine(txn, from.Address, op)
		return err
	})
	if err != nil {
		return domain.Receipt{}, err
	}
	t.d.log.WithFields(logrus.Fields{
		"owner":   from.Address.Hex(),
		"spender": spender.Hex(),
		"amount":  amount.String(),
		"block":   rcpt.BlockNumber,
	}).Debug("devnet: approve")
	return rcpt, nil
}

// Mint credits amount to `to`. Anyone may mint on the sandbox.
func (t *Token) Mint(ctx context.Context, to common.Address, amount *big.Int) (domain.Receipt, error) {
	const op = "mint"
	if err := live(ctx); err != nil {
		return domain.Receipt{}, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return domain.Receipt{}, revert(op, "amount must be positive")
	}
	if to == (common.Address{}) {
		return domain.Receipt{}, revert(op, "mint to zero address")
	}

	t.d.mu.Lock()
	defer t.d.mu.Unlock()

	var rcpt domain.Receipt
	err := t.d.db.Update(func(txn state.Txn) error {
		bal, err := readAmount(txn, balanceKey(to))
		if err != nil {
			return err
		}
		if err := writeAmount(txn, balanceKey(to), bal.Add(bal, amount)); err != nil {
			return err
		}
		rcpt, err = t.d.mine(txn, to, op)
		return err
	})
	return rcpt, err
}

// transferFrom moves amount from `from` to `to` on behalf of spender.
func transferFrom(txn state.Txn, op string, spender, from, to common.Address, amount *big.Int) error {
	allowance, err := readAmount(txn, allowanceKey(from, spender))
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return revert(op, "fee allowance too low")
	}
	if err := transfer(txn, op, from, to, amount); err != nil {
		return err
	}
	return writeAmount(txn, allowanceKey(from, spender), allowance.Sub(allowance, amount))
}

func transfer(txn state.Txn, op string, from, to common.Address, amount *big.Int) error {
	fromBal, err := readAmount(txn, balanceKey(from))
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return revert(op, "fee balance too low")
	}
	toBal, err := readAmount(txn, balanceKey(to))
	if err != nil {
		return err
	}
	if from == to {
		return nil
	}
	if err := writeAmount(txn, balanceKey(from), fromBal.Sub(fromBal, amount)); err != nil {
		return err
	}
	return writeAmount(txn, balanceKey(to), toBal.Add(toBal, amount))
}

func readAmount(txn state.Txn, key string) (*big.Int, error) {
	var s string
	found, err := getJSON(txn, key, &s)
	if err != nil || !found {
		return new(big.Int), err
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, &domain.ProtocolError{Op: "read " + key, Reason: "corrupt amount " + s}
	}
	return v, nil
}

func writeAmount(txn state.Txn, key string, v *big.Int) error {
	return putJSON(txn, key, v.String())
}

// Compile-time assertion that Token implements domain.FeeGateway.
var _ domain.FeeGateway = (*Token)(nil)
