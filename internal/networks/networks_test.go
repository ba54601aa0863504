package networks

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name, network, rpc string
		wantURL            string
		wantChain          uint64
		wantErr            error
	}{
		{name: "default", wantURL: "https://rpc.gnosischain.com", wantChain: 100},
		{name: "preset", network: "Sepolia", wantURL: "https://ethereum-sepolia-rpc.publicnode.com", wantChain: 11155111},
		{name: "override keeps chain", network: "gnosis", rpc: "http://127.0.0.1:8545", wantURL: "http://127.0.0.1:8545", wantChain: 100},
		{name: "custom endpoint", rpc: "http://127.0.0.1:8545", wantURL: "http://127.0.0.1:8545"},
		{name: "unknown", network: "ropsten", wantErr: ErrUnknownNetwork},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			n, err := Resolve(tc.network, tc.rpc)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if n.URL != tc.wantURL || n.ChainID != tc.wantChain {
				t.Fatalf("got %+v want url=%s chain=%d", n, tc.wantURL, tc.wantChain)
			}
		})
	}
}

func TestTxURL(t *testing.T) {
	t.Parallel()

	n, err := Lookup("gnosis")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	h := common.HexToHash("0x01")
	if got, want := n.TxURL(h), "https://gnosisscan.io/tx/"+h.Hex(); got != want {
		t.Fatalf("TxURL: got %q want %q", got, want)
	}
	local, _ := Lookup("localhost")
	if local.TxURL(h) != "" {
		t.Fatalf("localhost should have no explorer url")
	}
}

func TestNamesSorted(t *testing.T) {
	t.Parallel()

	got := Names()
	want := []string{"ethereum", "gnosis", "localhost", "sepolia"}
	if len(got) != len(want) {
		t.Fatalf("Names: got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Names: got %v want %v", got, want)
		}
	}
}
