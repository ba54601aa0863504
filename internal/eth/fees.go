package eth

import (
	"errors"
	"math/big"
)

var ErrInvalidFeeArgs = errors.New("eth: invalid fee args")

// Calc1559Fees returns EIP-1559 fee caps based on the latest block base fee.
//
// Policy:
// - tipCap = max(suggestedTipCap, minTipCap)
// - feeCap = 2*baseFee + tipCap
func Calc1559Fees(baseFee, suggestedTipCap, minTipCap *big.Int) (tipCap, feeCap *big.Int, err error) {
	if baseFee == nil || suggestedTipCap == nil || minTipCap == nil {
		return nil, nil, ErrInvalidFeeArgs
	}
	if baseFee.Sign() < 0 || suggestedTipCap.Sign() < 0 || minTipCap.Sign() < 0 {
		return nil, nil, ErrInvalidFeeArgs
	}

	tip := maxBig(suggestedTipCap, minTipCap)
	fee := new(big.Int).Mul(baseFee, big.NewInt(2))
	fee.Add(fee, tip)
	return tip, fee, nil
}

// CalcLegacyGasPrice is used on chains whose headers carry no base fee.
//
// The node's suggestion is floored at minGasPrice.
func CalcLegacyGasPrice(suggested, minGasPrice *big.Int) (*big.Int, error) {
	if suggested == nil || minGasPrice == nil || suggested.Sign() < 0 || minGasPrice.Sign() < 0 {
		return nil, ErrInvalidFeeArgs
	}
	return maxBig(suggested, minGasPrice), nil
}

func maxBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		return new(big.Int).Set(b)
	}
	return new(big.Int).Set(a)
}
