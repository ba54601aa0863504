package eth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	// ErrConnectivity marks failures to reach the JSON-RPC endpoint.
	ErrConnectivity = errors.New("eth: endpoint unreachable")
	// ErrRejected marks transactions or calls refused by the node.
	ErrRejected = errors.New("eth: rejected by node")
	// ErrInsufficientFunds is returned alongside ErrRejected when the sender cannot cover value plus fees.
	ErrInsufficientFunds = errors.New("eth: insufficient funds for gas * price + value")
	// ErrReverted marks execution reverts, either during estimation/replay or in a mined receipt.
	ErrReverted = errors.New("eth: execution reverted")
)

// RevertError carries the decoded revert reason, if the node returned one.
type RevertError struct {
	Reason string
	Data   []byte
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return ErrReverted.Error()
	}
	return ErrReverted.Error() + ": " + e.Reason
}

func (e *RevertError) Is(target error) bool { return target == ErrReverted }

// Classify maps transport and JSON-RPC failures onto ErrConnectivity, ErrRejected and ErrReverted.
//
// Errors that are already classified, and context errors, are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConnectivity) || errors.Is(err, ErrRejected) || errors.Is(err, ErrReverted) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if rev := revertFromError(err); rev != nil {
		return rev
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		msg := rpcErr.Error()
		if strings.Contains(strings.ToLower(msg), "insufficient funds") {
			return fmt.Errorf("%w: %w: %s", ErrRejected, ErrInsufficientFunds, msg)
		}
		return fmt.Errorf("%w: %s", ErrRejected, msg)
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return fmt.Errorf("%w: %w", ErrConnectivity, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return fmt.Errorf("%w: %w", ErrConnectivity, err)
	}
	return err
}

func revertFromError(err error) *RevertError {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if s, ok := dataErr.ErrorData().(string); ok {
			if data, decErr := hexutil.Decode(s); decErr == nil && len(data) > 0 {
				reason, _ := abi.UnpackRevert(data)
				return &RevertError{Reason: reason, Data: data}
			}
		}
	}

	msg := err.Error()
	const marker = "execution reverted"
	idx := strings.Index(msg, marker)
	if idx < 0 {
		return nil
	}
	reason := strings.TrimSpace(strings.TrimPrefix(msg[idx+len(marker):], ":"))
	return &RevertError{Reason: reason}
}
