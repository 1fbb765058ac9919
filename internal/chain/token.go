package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"healthvault/internal/domain"
)

// Token is a deployed ERC-20 fee token.
type Token struct{ c *contract }

// NewToken binds the token at address.
func NewToken(b Backend, address common.Address, chainID *big.Int, log *logrus.Logger) *Token {
	return &Token{c: newContract(b, address, ERC20ABI, chainID, log)}
}

// Address implements domain.FeeGateway.
func (t *Token) Address() common.Address { return t.c.address }

// BalanceOf implements domain.FeeGateway.
func (t *Token) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	out, err := t.c.call(ctx, common.Address{}, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return bigOut(out, 0)
}

// Allowance implements domain.FeeGateway.
func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	out, err := t.c.call(ctx, common.Address{}, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return bigOut(out, 0)
}

// Approve implements domain.FeeGateway.
func (t *Token) Approve(
	ctx context.Context,
	from domain.Caller,
	spender common.Address,
	amount *big.Int,
) (domain.Receipt, error) {
	rcpt, err := t.c.send(ctx, "approve", from, "approve", spender, amount)
	if err != nil {
		return domain.Receipt{}, err
	}
	return receipt(rcpt), nil
}

// Compile-time assertion that Token implements domain.FeeGateway.
var _ domain.FeeGateway = (*Token)(nil)
