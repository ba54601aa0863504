package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/juno-intents/token-transfer/internal/erc20"
)

// fakeNode is a minimal JSON-RPC node: token views, fee quotes, nonces and receipts.
// Transactions are mined on the first receipt poll.
type fakeNode struct {
	mu sync.Mutex

	chainID  int64
	decimals uint8
	symbol   string
	balance  *big.Int
	reverted bool
	reason   string

	nonce    uint64
	sent     []*types.Transaction
	requests int
}

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		chainID:  100,
		decimals: 18,
		symbol:   "STAKE",
		balance:  new(big.Int).Mul(big.NewInt(1000), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)),
	}
}

func (n *fakeNode) start(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(n.serveHTTP))
	t.Cleanup(srv.Close)
	return srv
}

func (n *fakeNode) requestCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.requests
}

func (n *fakeNode) sentTxs() []*types.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*types.Transaction(nil), n.sent...)
}

func (n *fakeNode) serveHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.requests++
	result, rpcErr := n.handle(req)
	n.mu.Unlock()

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result, Error: rpcErr}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (n *fakeNode) handle(req rpcRequest) (any, *rpcError) {
	switch req.Method {
	case "eth_chainId":
		return hexutil.EncodeBig(big.NewInt(n.chainID)), nil
	case "eth_getCode":
		return "0x6080", nil
	case "eth_call":
		return n.call(req.Params)
	case "eth_estimateGas":
		return hexutil.EncodeUint64(50_000), nil
	case "eth_getBlockByNumber":
		return &types.Header{
			Number:     big.NewInt(41),
			Difficulty: big.NewInt(0),
			GasLimit:   30_000_000,
			BaseFee:    big.NewInt(1_000_000_000),
		}, nil
	case "eth_maxPriorityFeePerGas":
		return hexutil.EncodeBig(big.NewInt(1_000_000_000)), nil
	case "eth_gasPrice":
		return hexutil.EncodeBig(big.NewInt(2_000_000_000)), nil
	case "eth_getTransactionCount":
		return hexutil.EncodeUint64(n.nonce), nil
	case "eth_sendRawTransaction":
		return n.sendRaw(req.Params)
	case "eth_getTransactionReceipt":
		return n.receipt(req.Params)
	default:
		return nil, &rpcError{Code: -32601, Message: "the method " + req.Method + " does not exist"}
	}
}

func (n *fakeNode) call(params []json.RawMessage) (any, *rpcError) {
	if len(params) == 0 {
		return nil, &rpcError{Code: -32602, Message: "missing call object"}
	}
	var msg struct {
		Input hexutil.Bytes `json:"input"`
		Data  hexutil.Bytes `json:"data"`
	}
	if err := json.Unmarshal(params[0], &msg); err != nil {
		return nil, &rpcError{Code: -32602, Message: err.Error()}
	}
	data := []byte(msg.Input)
	if len(data) == 0 {
		data = msg.Data
	}

	parsed, err := erc20.ABI()
	if err != nil {
		return nil, &rpcError{Code: -32603, Message: err.Error()}
	}

	var out []byte
	switch {
	case bytes.HasPrefix(data, parsed.Methods["transfer"].ID):
		revert, err := encodeRevert(n.reason)
		if err != nil {
			return nil, &rpcError{Code: -32603, Message: err.Error()}
		}
		return nil, &rpcError{Code: 3, Message: "execution reverted: " + n.reason, Data: hexutil.Encode(revert)}
	case bytes.HasPrefix(data, parsed.Methods["decimals"].ID):
		out, err = parsed.Methods["decimals"].Outputs.Pack(n.decimals)
	case bytes.HasPrefix(data, parsed.Methods["symbol"].ID):
		out, err = parsed.Methods["symbol"].Outputs.Pack(n.symbol)
	case bytes.HasPrefix(data, parsed.Methods["balanceOf"].ID):
		out, err = parsed.Methods["balanceOf"].Outputs.Pack(n.balance)
	default:
		return nil, &rpcError{Code: 3, Message: "execution reverted"}
	}
	if err != nil {
		return nil, &rpcError{Code: -32603, Message: err.Error()}
	}
	return hexutil.Encode(out), nil
}

func (n *fakeNode) sendRaw(params []json.RawMessage) (any, *rpcError) {
	var raw hexutil.Bytes
	if len(params) == 0 || json.Unmarshal(params[0], &raw) != nil {
		return nil, &rpcError{Code: -32602, Message: "invalid raw transaction"}
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, &rpcError{Code: -32602, Message: err.Error()}
	}
	if tx.Nonce() != n.nonce {
		return nil, &rpcError{Code: -32000, Message: "nonce too low"}
	}
	n.sent = append(n.sent, tx)
	n.nonce++
	return tx.Hash().Hex(), nil
}

func (n *fakeNode) receipt(params []json.RawMessage) (any, *rpcError) {
	var h common.Hash
	if len(params) == 0 || json.Unmarshal(params[0], &h) != nil {
		return nil, &rpcError{Code: -32602, Message: "invalid tx hash"}
	}
	for i, tx := range n.sent {
		if tx.Hash() != h {
			continue
		}
		block := big.NewInt(int64(42 + i))
		r := &types.Receipt{
			Type:              tx.Type(),
			Status:            types.ReceiptStatusSuccessful,
			CumulativeGasUsed: 51_234,
			Logs:              []*types.Log{},
			TxHash:            h,
			GasUsed:           51_234,
			EffectiveGasPrice: big.NewInt(2_000_000_000),
			BlockHash:         common.BigToHash(block),
			BlockNumber:       block,
		}
		if n.reverted {
			r.Status = types.ReceiptStatusFailed
			return r, nil
		}
		log, err := transferLogFor(tx, block)
		if err != nil {
			return nil, &rpcError{Code: -32603, Message: err.Error()}
		}
		r.Logs = []*types.Log{log}
		return r, nil
	}
	// JSON null: not yet mined.
	return nil, nil
}

func transferLogFor(tx *types.Transaction, block *big.Int) (*types.Log, error) {
	parsed, err := erc20.ABI()
	if err != nil {
		return nil, err
	}
	args, err := parsed.Methods["transfer"].Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		return nil, err
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return nil, err
	}
	data, err := parsed.Events["Transfer"].Inputs.NonIndexed().Pack(args[1].(*big.Int))
	if err != nil {
		return nil, err
	}
	return &types.Log{
		Address: *tx.To(),
		Topics: []common.Hash{
			parsed.Events["Transfer"].ID,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(args[0].(common.Address).Bytes()),
		},
		Data:        data,
		BlockNumber: block.Uint64(),
		TxHash:      tx.Hash(),
	}, nil
}

// encodeRevert builds Error(string) revert data.
func encodeRevert(reason string) ([]byte, error) {
	stringTy, err := abi.NewType("string", "", nil)
	if err != nil {
		return nil, err
	}
	packed, err := abi.Arguments{{Type: stringTy}}.Pack(reason)
	if err != nil {
		return nil, fmt.Errorf("pack revert reason: %w", err)
	}
	return append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...), nil
}
