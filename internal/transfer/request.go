package transfer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/juno-intents/token-transfer/internal/amount"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidRecipient    = errors.New("transfer: invalid recipient")
	ErrInvalidToken        = errors.New("transfer: invalid token address")
	ErrInvalidDecimals     = errors.New("transfer: invalid decimals")
	ErrDecimalsMismatch    = errors.New("transfer: decimals mismatch")
	ErrInsufficientBalance = errors.New("transfer: insufficient token balance")
)

// DecimalsFromChain asks the token contract for its decimals.
const DecimalsFromChain = -1

// Request is a transfer as configured by the caller, before any network access.
type Request struct {
	Token     string
	Recipient string
	// Amount is a decimal literal in whole token units, e.g. "10.0".
	Amount string
	// Decimals is the expected token precision, or DecimalsFromChain.
	Decimals int
}

type parsedRequest struct {
	token     common.Address
	recipient common.Address
	amount    decimal.Decimal
	decimals  int
}

// Validate checks everything that can be checked without a network call.
func (r Request) Validate() error {
	_, err := parseRequest(r)
	return err
}

func parseRequest(r Request) (parsedRequest, error) {
	token, err := ParseAddress(r.Token)
	if err != nil {
		return parsedRequest{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	recipient, err := ParseAddress(r.Recipient)
	if err != nil {
		return parsedRequest{}, fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
	}
	amt, err := amount.Parse(r.Amount)
	if err != nil {
		return parsedRequest{}, err
	}
	if r.Decimals < DecimalsFromChain || r.Decimals > 255 {
		return parsedRequest{}, fmt.Errorf("%w: %d", ErrInvalidDecimals, r.Decimals)
	}
	return parsedRequest{
		token:     token,
		recipient: recipient,
		amount:    amt,
		decimals:  r.Decimals,
	}, nil
}

// ParseAddress accepts a 0x-prefixed 20-byte hex address.
//
// Mixed-case input must carry a valid EIP-55 checksum. The zero address is rejected.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return common.Address{}, fmt.Errorf("%q is missing the 0x prefix", s)
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%q is not a 20-byte hex address", s)
	}
	addr := common.HexToAddress(s)
	body := s[2:]
	if strings.ToLower(body) != body && strings.ToUpper(body) != body && addr.Hex()[2:] != body {
		return common.Address{}, fmt.Errorf("%q has an invalid checksum", s)
	}
	if (addr == common.Address{}) {
		return common.Address{}, fmt.Errorf("zero address")
	}
	return addr, nil
}
