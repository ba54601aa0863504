package eth

import (
	"context"
	"errors"
	"net"
	"net/url"
	"syscall"
	"testing"

	"github.com/ethereum/go-ethereum/rpc"
)

func TestClassify_Connectivity(t *testing.T) {
	refused := &url.Error{
		Op:  "Post",
		URL: "http://127.0.0.1:1",
		Err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED},
	}
	if err := Classify(refused); !errors.Is(err, ErrConnectivity) {
		t.Fatalf("refused: expected ErrConnectivity, got %v", err)
	}
	if err := Classify(rpc.HTTPError{StatusCode: 502, Status: "502 Bad Gateway"}); !errors.Is(err, ErrConnectivity) {
		t.Fatalf("http 502: expected ErrConnectivity, got %v", err)
	}
	if err := Classify(refused); !errors.Is(err, syscall.ECONNREFUSED) {
		t.Fatalf("classification must keep the cause: %v", err)
	}
}

func TestClassify_RejectedAndReverted(t *testing.T) {
	err := Classify(&fakeRPCError{msg: "nonce too low", code: -32000})
	if !errors.Is(err, ErrRejected) || errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("nonce too low: got %v", err)
	}

	err = Classify(&fakeRPCError{msg: "execution reverted: Pausable: paused", code: 3})
	var rev *RevertError
	if !errors.As(err, &rev) || rev.Reason != "Pausable: paused" {
		t.Fatalf("revert: got %v", err)
	}
	if !errors.Is(err, ErrReverted) {
		t.Fatalf("revert must match ErrReverted")
	}

	bare := Classify(&fakeRPCError{msg: "execution reverted", code: 3})
	if !errors.As(bare, &rev) || rev.Reason != "" {
		t.Fatalf("bare revert: got %v", bare)
	}
	if bare.Error() != ErrReverted.Error() {
		t.Fatalf("bare revert message: %q", bare.Error())
	}
}

func TestClassify_PassesThrough(t *testing.T) {
	if Classify(nil) != nil {
		t.Fatalf("Classify(nil) must be nil")
	}
	if err := Classify(context.Canceled); err != context.Canceled {
		t.Fatalf("context errors must pass through unchanged, got %v", err)
	}
	already := Classify(&fakeRPCError{msg: "underpriced", code: -32000})
	if Classify(already) != already {
		t.Fatalf("classified errors must not be re-wrapped")
	}
}
