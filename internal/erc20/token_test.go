package erc20

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

type fakeCaller struct {
	code     []byte
	decimals uint8
	symbol   string
	balances map[common.Address]*big.Int
	err      error
	calls    int
}

func (c *fakeCaller) CodeAt(_ context.Context, _ common.Address, _ *big.Int) ([]byte, error) {
	return c.code, nil
}

func (c *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	if len(c.code) == 0 {
		return nil, nil
	}
	parsed, err := ABI()
	if err != nil {
		return nil, err
	}
	switch {
	case bytes.HasPrefix(msg.Data, parsed.Methods["decimals"].ID):
		return parsed.Methods["decimals"].Outputs.Pack(c.decimals)
	case bytes.HasPrefix(msg.Data, parsed.Methods["symbol"].ID):
		return parsed.Methods["symbol"].Outputs.Pack(c.symbol)
	case bytes.HasPrefix(msg.Data, parsed.Methods["balanceOf"].ID):
		args, err := parsed.Methods["balanceOf"].Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		bal := c.balances[args[0].(common.Address)]
		if bal == nil {
			bal = new(big.Int)
		}
		return parsed.Methods["balanceOf"].Outputs.Pack(bal)
	}
	return nil, errors.New("unknown selector")
}

func TestToken_ReadsViews(t *testing.T) {
	ctx := context.Background()
	holder := common.HexToAddress("0x97293CeAB815896883e8200AEf5a4581a70504b2")
	caller := &fakeCaller{
		code:     []byte{0x60, 0x80},
		decimals: 18,
		symbol:   "STAKE",
		balances: map[common.Address]*big.Int{holder: big.NewInt(777)},
	}

	tok, err := NewToken(common.HexToAddress("0xcd6A51559254030cA30C2FB2cbdf5c492e8Caf9c"), caller)
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}

	dec, err := tok.Decimals(ctx)
	if err != nil {
		t.Fatalf("Decimals: %v", err)
	}
	if dec != 18 {
		t.Fatalf("decimals: got %d want 18", dec)
	}
	sym, err := tok.Symbol(ctx)
	if err != nil {
		t.Fatalf("Symbol: %v", err)
	}
	if sym != "STAKE" {
		t.Fatalf("symbol: got %q", sym)
	}
	bal, err := tok.BalanceOf(ctx, holder)
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	if bal.Cmp(big.NewInt(777)) != 0 {
		t.Fatalf("balance: got %s want 777", bal)
	}
}

func TestToken_NoCode(t *testing.T) {
	tok, err := NewToken(common.Address{1}, &fakeCaller{})
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	if _, err := tok.Decimals(context.Background()); !errors.Is(err, ErrNoContract) {
		t.Fatalf("expected ErrNoContract, got %v", err)
	}
}

func TestNewToken_RejectsZeroAddress(t *testing.T) {
	if _, err := NewToken(common.Address{}, &fakeCaller{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
