package eth

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

type fakeNoncer struct {
	mu    sync.Mutex
	nonce uint64
	calls int
	err   error
}

func (f *fakeNoncer) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.nonce, f.err
}

func TestNonceManager_Next_InitializesFromBackendOnce(t *testing.T) {
	ctx := context.Background()
	addr := common.HexToAddress("0x97293CeAB815896883e8200AEf5a4581a70504b2")
	backend := &fakeNoncer{nonce: 5}

	m := NewNonceManager(backend, addr)

	for want := uint64(5); want < 8; want++ {
		n, err := m.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if n != want {
			t.Fatalf("nonce: got %d want %d", n, want)
		}
	}
	if backend.calls != 1 {
		t.Fatalf("backend calls: got %d want %d", backend.calls, 1)
	}
}

func TestNonceManager_Next_RetriesBackendAfterFailure(t *testing.T) {
	ctx := context.Background()
	backend := &fakeNoncer{nonce: 2, err: errors.New("boom")}
	m := NewNonceManager(backend, common.Address{1})

	if _, err := m.Next(ctx); err == nil {
		t.Fatalf("expected error")
	}
	backend.err = nil
	n, err := m.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if n != 2 {
		t.Fatalf("nonce: got %d want 2", n)
	}
}
