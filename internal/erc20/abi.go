package erc20

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var ErrInvalidInput = errors.New("erc20: invalid input")

var (
	initOnce sync.Once
	initErr  error

	tokenABI abi.ABI
)

func initABI() error {
	initOnce.Do(func() {
		var err error
		tokenABI, err = abi.JSON(strings.NewReader(tokenABIJSON))
		if err != nil {
			initErr = fmt.Errorf("erc20: parse token ABI: %w", err)
		}
	})
	return initErr
}

// ABI returns the parsed minimal token ABI (transfer, decimals, symbol, balanceOf, Transfer).
func ABI() (abi.ABI, error) {
	if err := initABI(); err != nil {
		return abi.ABI{}, err
	}
	return tokenABI, nil
}

// PackTransfer encodes calldata for transfer(address,uint256).
func PackTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	if err := initABI(); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: amount must be >= 0", ErrInvalidInput)
	}
	if amount.BitLen() > 256 {
		return nil, fmt.Errorf("%w: amount exceeds uint256", ErrInvalidInput)
	}
	b, err := tokenABI.Pack("transfer", to, amount)
	if err != nil {
		return nil, fmt.Errorf("erc20: pack transfer calldata: %w", err)
	}
	return b, nil
}

// TransferEvent mirrors `event Transfer(address indexed from, address indexed to, uint256 value)`.
type TransferEvent struct {
	Token    common.Address
	From     common.Address
	To       common.Address
	Value    *big.Int
	LogIndex uint
}

// ParseTransferLogs extracts Transfer events emitted by token from logs; other logs are skipped.
func ParseTransferLogs(token common.Address, logs []*types.Log) ([]TransferEvent, error) {
	if err := initABI(); err != nil {
		return nil, err
	}
	topic := tokenABI.Events["Transfer"].ID

	var out []TransferEvent
	for _, l := range logs {
		if l == nil || l.Address != token || len(l.Topics) != 3 || l.Topics[0] != topic {
			continue
		}
		vals, err := tokenABI.Unpack("Transfer", l.Data)
		if err != nil {
			return nil, fmt.Errorf("erc20: unpack Transfer log %d: %w", l.Index, err)
		}
		if len(vals) != 1 {
			return nil, fmt.Errorf("erc20: Transfer log %d: got %d values", l.Index, len(vals))
		}
		value, ok := vals[0].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("erc20: Transfer log %d: unexpected value type %T", l.Index, vals[0])
		}
		out = append(out, TransferEvent{
			Token:    l.Address,
			From:     common.BytesToAddress(l.Topics[1].Bytes()),
			To:       common.BytesToAddress(l.Topics[2].Bytes()),
			Value:    value,
			LogIndex: l.Index,
		})
	}
	return out, nil
}

const tokenABIJSON = `[
  {
    "inputs": [
      {"internalType":"address","name":"recipient","type":"address"},
      {"internalType":"uint256","name":"amount","type":"uint256"}
    ],
    "name":"transfer",
    "outputs":[{"internalType":"bool","name":"","type":"bool"}],
    "stateMutability":"nonpayable",
    "type":"function"
  },
  {
    "inputs": [],
    "name":"decimals",
    "outputs":[{"internalType":"uint8","name":"","type":"uint8"}],
    "stateMutability":"view",
    "type":"function"
  },
  {
    "inputs": [],
    "name":"symbol",
    "outputs":[{"internalType":"string","name":"","type":"string"}],
    "stateMutability":"view",
    "type":"function"
  },
  {
    "inputs": [{"internalType":"address","name":"account","type":"address"}],
    "name":"balanceOf",
    "outputs":[{"internalType":"uint256","name":"","type":"uint256"}],
    "stateMutability":"view",
    "type":"function"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed":true,"internalType":"address","name":"from","type":"address"},
      {"indexed":true,"internalType":"address","name":"to","type":"address"},
      {"indexed":false,"internalType":"uint256","name":"value","type":"uint256"}
    ],
    "name":"Transfer",
    "type":"event"
  }
]`
