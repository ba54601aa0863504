package transferevent

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

func testTransfer() Transfer {
	return Transfer{
		ID:      common.HexToHash("0x01"),
		ChainID: 100,
		Token:   common.HexToAddress("0xcd6A51559254030cA30C2FB2cbdf5c492e8Caf9c"),
		From:    common.HexToAddress("0x1111111111111111111111111111111111111111"),
		To:      common.HexToAddress("0x97293CeAB815896883e8200AEf5a4581a70504b2"),
		Amount:  new(big.Int).Mul(big.NewInt(10), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)),
		Nonce:   4,
		TxHash:  common.HexToHash("0xbeef"),
	}
}

func TestBuildPayload_Submitted(t *testing.T) {
	t.Parallel()

	id := uuid.MustParse("6f1c2d4e-8a9b-4c3d-9e8f-0a1b2c3d4e5f")
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	p, err := BuildPayload(KindSubmitted, testTransfer(), nil, id, at)
	if err != nil {
		t.Fatalf("BuildPayload: %v", err)
	}
	if p.Version != "token.transfer.v1" {
		t.Fatalf("version: got=%q", p.Version)
	}
	if p.EventID != id.String() {
		t.Fatalf("event id: got=%q", p.EventID)
	}
	if p.Amount != "10000000000000000000" {
		t.Fatalf("amount: got=%q", p.Amount)
	}
	if p.To != "0x97293CeAB815896883e8200AEf5a4581a70504b2" {
		t.Fatalf("to: got=%q", p.To)
	}
	if p.OccurredAt != "2024-01-02T03:04:05Z" {
		t.Fatalf("occurred at: got=%q", p.OccurredAt)
	}

	key, body, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(key) != p.TransferID {
		t.Fatalf("key: got=%q want=%q", key, p.TransferID)
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["kind"] != "submitted" {
		t.Fatalf("kind: got=%v", raw["kind"])
	}
	if _, ok := raw["blockNumber"]; ok {
		t.Fatalf("submitted payload should omit blockNumber")
	}
}

func TestBuildPayload_Reverted(t *testing.T) {
	t.Parallel()

	p, err := BuildPayload(KindReverted, testTransfer(), &Receipt{BlockNumber: 9, GasUsed: 21000, RevertReason: "paused"}, uuid.New(), time.Now())
	if err != nil {
		t.Fatalf("BuildPayload: %v", err)
	}
	if p.BlockNumber != 9 || p.RevertReason != "paused" {
		t.Fatalf("payload: got=%+v", p)
	}
}

func TestBuildPayload_Rejects(t *testing.T) {
	t.Parallel()

	tr := testTransfer()
	cases := []struct {
		name    string
		kind    Kind
		receipt *Receipt
		id      uuid.UUID
		mutate  func(*Transfer)
	}{
		{name: "unknown kind", kind: "queued", id: uuid.New()},
		{name: "mined without receipt", kind: KindMined, id: uuid.New()},
		{name: "submitted with receipt", kind: KindSubmitted, receipt: &Receipt{}, id: uuid.New()},
		{name: "nil event id", kind: KindSubmitted, id: uuid.Nil},
		{name: "nil amount", kind: KindSubmitted, id: uuid.New(), mutate: func(t *Transfer) { t.Amount = nil }},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			in := tr
			if tc.mutate != nil {
				tc.mutate(&in)
			}
			_, err := BuildPayload(tc.kind, in, tc.receipt, tc.id, time.Now())
			if !errors.Is(err, ErrInvalidPayload) {
				t.Fatalf("expected ErrInvalidPayload, got %v", err)
			}
		})
	}
}

func TestReplayEventID_StablePerTransferAndKind(t *testing.T) {
	t.Parallel()

	id := common.HexToHash("0x01")
	a := ReplayEventID(id, KindMined)
	if a != ReplayEventID(id, KindMined) {
		t.Fatalf("replay id not stable")
	}
	if a == ReplayEventID(id, KindSubmitted) {
		t.Fatalf("kinds share a replay id")
	}
	if a == ReplayEventID(common.HexToHash("0x02"), KindMined) {
		t.Fatalf("transfers share a replay id")
	}
}
