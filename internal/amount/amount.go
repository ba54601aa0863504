// Package amount converts human-readable token amounts to and from integer base units.
//
// All arithmetic is exact decimal arithmetic; a literal that cannot be represented in base
// units without rounding is rejected.
package amount

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("amount: invalid amount")
	ErrPrecisionLoss = errors.New("amount: precision loss")
)

// MaxBaseUnitBits is the width of the on-chain amount argument (uint256).
const MaxBaseUnitBits = 256

// Parse validates a decimal literal such as "10.0" or "0.25".
//
// Negative values are rejected. Scientific notation ("1e3") is accepted.
func Parse(literal string) (decimal.Decimal, error) {
	s := strings.TrimSpace(literal)
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidAmount, s)
	}
	if d.Sign() < 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}
	return d, nil
}

// maxBaseUnitDigits is the digit count of the largest uint256.
const maxBaseUnitDigits = 78

// ToBaseUnits scales d by 10^decimals.
func ToBaseUnits(d decimal.Decimal, decimals uint8) (*big.Int, error) {
	if d.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative", ErrInvalidAmount)
	}
	if d.IsZero() {
		return new(big.Int), nil
	}
	// Integer digits of the scaled value, computed without materialising it.
	if int64(d.NumDigits())+int64(d.Exponent())+int64(decimals) > maxBaseUnitDigits {
		return nil, fmt.Errorf("%w: exceeds uint256 at %d decimals", ErrInvalidAmount, decimals)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: more than %d fractional digits", ErrPrecisionLoss, decimals)
	}
	out := scaled.BigInt()
	if out.BitLen() > MaxBaseUnitBits {
		return nil, fmt.Errorf("%w: exceeds uint256 at %d decimals", ErrInvalidAmount, decimals)
	}
	return out, nil
}

// ParseUnits is Parse followed by ToBaseUnits.
//
//	ParseUnits("10.0", 18) == 10000000000000000000
func ParseUnits(literal string, decimals uint8) (*big.Int, error) {
	d, err := Parse(literal)
	if err != nil {
		return nil, err
	}
	out, err := ToBaseUnits(d, decimals)
	if err != nil {
		return nil, fmt.Errorf("%w (amount %q)", err, strings.TrimSpace(literal))
	}
	return out, nil
}

// FormatUnits renders base units as a whole-unit decimal string without trailing zeros.
func FormatUnits(base *big.Int, decimals uint8) string {
	if base == nil {
		return "0"
	}
	return decimal.NewFromBigInt(base, -int32(decimals)).String()
}
