package erc20

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/juno-intents/token-transfer/internal/eth"
)

// ErrNoContract is returned when the token address has no deployed code.
var ErrNoContract = errors.New("erc20: no contract code at address")

// Token is a read-only binding for the view methods of a token contract.
type Token struct {
	address  common.Address
	contract *bind.BoundContract
}

func NewToken(address common.Address, caller bind.ContractCaller) (*Token, error) {
	if caller == nil {
		return nil, fmt.Errorf("%w: nil caller", ErrInvalidInput)
	}
	if (address == common.Address{}) {
		return nil, fmt.Errorf("%w: zero token address", ErrInvalidInput)
	}
	if err := initABI(); err != nil {
		return nil, err
	}
	return &Token{
		address:  address,
		contract: bind.NewBoundContract(address, tokenABI, caller, nil, nil),
	}, nil
}

func (t *Token) Address() common.Address { return t.address }

func (t *Token) Decimals(ctx context.Context) (uint8, error) {
	out, err := t.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	v, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("erc20: decimals: unexpected type %T", out[0])
	}
	return v, nil
}

func (t *Token) Symbol(ctx context.Context) (string, error) {
	out, err := t.call(ctx, "symbol")
	if err != nil {
		return "", err
	}
	v, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("erc20: symbol: unexpected type %T", out[0])
	}
	return v, nil
}

func (t *Token) BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error) {
	out, err := t.call(ctx, "balanceOf", holder)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("erc20: balanceOf: unexpected type %T", out[0])
	}
	return v, nil
}

func (t *Token) call(ctx context.Context, method string, params ...interface{}) ([]interface{}, error) {
	var out []interface{}
	err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, params...)
	if err != nil {
		if errors.Is(err, bind.ErrNoCode) {
			return nil, fmt.Errorf("%w: %s", ErrNoContract, t.address)
		}
		return nil, fmt.Errorf("erc20: %s: %w", method, eth.Classify(err))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("erc20: %s: empty result", method)
	}
	return out, nil
}
