// Package journal records every broadcast transfer and its final outcome.
package journal

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNotFound          = errors.New("journal: not found")
	ErrTransferMismatch  = errors.New("journal: transfer mismatch")
	ErrInvalidTransition = errors.New("journal: invalid transition")
	ErrInvalidTransfer   = errors.New("journal: invalid transfer")
)

type State uint8

const (
	StateUnknown State = iota
	StateSubmitted
	StateMined
	StateReverted
)

func (s State) String() string {
	switch s {
	case StateSubmitted:
		return "submitted"
	case StateMined:
		return "mined"
	case StateReverted:
		return "reverted"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Transfer is the immutable part of a journal entry, known once the node accepted the tx.
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

// Outcome is what the receipt said about a transfer.
type Outcome struct {
	State        State
	BlockNumber  uint64
	GasUsed      uint64
	RevertReason string
}

type Record struct {
	Transfer Transfer
	State    State

	BlockNumber  uint64
	GasUsed      uint64
	RevertReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Store interface {
	// Insert records a submitted transfer. Inserting the same transfer twice is a no-op;
	// a different transfer under an existing id fails with ErrTransferMismatch.
	Insert(ctx context.Context, t Transfer) (Record, error)
	MarkOutcome(ctx context.Context, id common.Hash, o Outcome) error
	Get(ctx context.Context, id common.Hash) (Record, error)
	ListByState(ctx context.Context, state State, limit int) ([]Record, error)
}

func (t Transfer) Validate() error {
	if (t.ID == common.Hash{}) {
		return fmt.Errorf("%w: zero id", ErrInvalidTransfer)
	}
	if t.ChainID == 0 {
		return fmt.Errorf("%w: zero chain id", ErrInvalidTransfer)
	}
	if (t.TxHash == common.Hash{}) {
		return fmt.Errorf("%w: zero tx hash", ErrInvalidTransfer)
	}
	if t.Amount == nil || t.Amount.Sign() < 0 {
		return fmt.Errorf("%w: amount must be >= 0", ErrInvalidTransfer)
	}
	return nil
}

func (o Outcome) Validate() error {
	if o.State != StateMined && o.State != StateReverted {
		return fmt.Errorf("%w: outcome state %s", ErrInvalidTransition, o.State)
	}
	return nil
}

// SameTransfer reports whether a and b describe the same broadcast.
func SameTransfer(a, b Transfer) bool {
	if a.ID != b.ID || a.ChainID != b.ChainID || a.Token != b.Token || a.From != b.From ||
		a.To != b.To || a.Nonce != b.Nonce || a.TxHash != b.TxHash {
		return false
	}
	if a.Amount == nil || b.Amount == nil {
		return a.Amount == b.Amount
	}
	return a.Amount.Cmp(b.Amount) == 0
}

func (r Record) sameOutcome(o Outcome) bool {
	return r.State == o.State && r.BlockNumber == o.BlockNumber && r.GasUsed == o.GasUsed && r.RevertReason == o.RevertReason
}

// CheckOutcome decides whether o may be applied to r. It returns applied=true when r
// already carries o.
func CheckOutcome(r Record, o Outcome) (applied bool, err error) {
	if err := o.Validate(); err != nil {
		return false, err
	}
	switch r.State {
	case StateSubmitted:
		return false, nil
	case StateMined, StateReverted:
		if r.sameOutcome(o) {
			return true, nil
		}
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.State, o.State)
	default:
		return false, fmt.Errorf("%w: from %s", ErrInvalidTransition, r.State)
	}
}
