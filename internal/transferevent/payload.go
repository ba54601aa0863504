// Package transferevent builds the lifecycle events published for each transfer.
package transferevent

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

const (
	Version = "token.transfer.v1"
	// Topic is the default queue topic for transfer events.
	Topic = "token.transfer.v1"
)

type Kind string

const (
	KindSubmitted Kind = "submitted"
	KindMined     Kind = "mined"
	KindReverted  Kind = "reverted"
)

var ErrInvalidPayload = errors.New("transferevent: invalid payload")

type Payload struct {
	Version      string `json:"version"`
	EventID      string `json:"eventId"`
	Kind         Kind   `json:"kind"`
	TransferID   string `json:"transferId"`
	ChainID      uint64 `json:"chainId"`
	Token        string `json:"token"`
	From         string `json:"from"`
	To           string `json:"to"`
	Amount       string `json:"amount"`
	Nonce        uint64 `json:"nonce"`
	TxHash       string `json:"txHash"`
	BlockNumber  uint64 `json:"blockNumber,omitempty"`
	GasUsed      uint64 `json:"gasUsed,omitempty"`
	RevertReason string `json:"revertReason,omitempty"`
	OccurredAt   string `json:"occurredAt"`
}

// Transfer identifies the broadcast a payload is about.
type Transfer struct {
	ID      common.Hash
	ChainID uint64
	Token   common.Address
	From    common.Address
	To      common.Address
	Amount  *big.Int
	Nonce   uint64
	TxHash  common.Hash
}

// Receipt is the mined part of mined and reverted payloads.
type Receipt struct {
	BlockNumber  uint64
	GasUsed      uint64
	RevertReason string
}

func BuildPayload(kind Kind, t Transfer, r *Receipt, eventID uuid.UUID, at time.Time) (Payload, error) {
	switch kind {
	case KindSubmitted:
		if r != nil {
			return Payload{}, fmt.Errorf("%w: submitted event carries no receipt", ErrInvalidPayload)
		}
	case KindMined, KindReverted:
		if r == nil {
			return Payload{}, fmt.Errorf("%w: %s event requires a receipt", ErrInvalidPayload, kind)
		}
	default:
		return Payload{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidPayload, kind)
	}
	if t.Amount == nil {
		return Payload{}, fmt.Errorf("%w: nil amount", ErrInvalidPayload)
	}
	if eventID == uuid.Nil {
		return Payload{}, fmt.Errorf("%w: nil event id", ErrInvalidPayload)
	}

	p := Payload{
		Version:    Version,
		EventID:    eventID.String(),
		Kind:       kind,
		TransferID: t.ID.Hex(),
		ChainID:    t.ChainID,
		Token:      t.Token.Hex(),
		From:       t.From.Hex(),
		To:         t.To.Hex(),
		Amount:     t.Amount.String(),
		Nonce:      t.Nonce,
		TxHash:     t.TxHash.Hex(),
		OccurredAt: at.UTC().Format(time.RFC3339Nano),
	}
	if r != nil {
		p.BlockNumber = r.BlockNumber
		p.GasUsed = r.GasUsed
		p.RevertReason = r.RevertReason
	}
	return p, nil
}

// Encode returns the message key (the transfer id) and JSON body.
func (p Payload) Encode() (key []byte, body []byte, err error) {
	body, err = json.Marshal(p)
	if err != nil {
		return nil, nil, fmt.Errorf("transferevent: encode: %w", err)
	}
	return []byte(p.TransferID), body, nil
}

var replayNamespace = uuid.MustParse("6f1c43c5-2a59-4c1e-9a3b-0d7f0b6b9a21")

// ReplayEventID is the event id used when a payload is rebuilt from the journal. It is
// stable per (transfer, kind) so consumers can drop duplicates.
func ReplayEventID(transferID common.Hash, kind Kind) uuid.UUID {
	return uuid.NewSHA1(replayNamespace, append(transferID.Bytes(), []byte(kind)...))
}
