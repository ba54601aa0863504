package journal

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	records map[common.Hash]Record
	order   []common.Hash
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:     time.Now,
		records: make(map[common.Hash]Record),
	}
}

func (s *MemoryStore) Insert(_ context.Context, t Transfer) (Record, error) {
	if err := t.Validate(); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.records[t.ID]; ok {
		if !SameTransfer(r.Transfer, t) {
			return Record{}, ErrTransferMismatch
		}
		return copyRecord(r), nil
	}

	now := s.now().UTC()
	t.Amount = new(big.Int).Set(t.Amount)
	r := Record{
		Transfer:  t,
		State:     StateSubmitted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.records[t.ID] = r
	s.order = append(s.order, t.ID)
	return copyRecord(r), nil
}

func (s *MemoryStore) MarkOutcome(_ context.Context, id common.Hash, o Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	applied, err := CheckOutcome(r, o)
	if err != nil || applied {
		return err
	}

	r.State = o.State
	r.BlockNumber = o.BlockNumber
	r.GasUsed = o.GasUsed
	r.RevertReason = o.RevertReason
	r.UpdatedAt = s.now().UTC()
	s.records[id] = r
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id common.Hash) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return copyRecord(r), nil
}

func (s *MemoryStore) ListByState(_ context.Context, state State, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		return nil, nil
	}

	out := make([]Record, 0, limit)
	for _, id := range s.order {
		r := s.records[id]
		if r.State != state {
			continue
		}
		out = append(out, copyRecord(r))
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func copyRecord(r Record) Record {
	if r.Transfer.Amount != nil {
		r.Transfer.Amount = new(big.Int).Set(r.Transfer.Amount)
	}
	return r
}

var _ Store = (*MemoryStore)(nil)
