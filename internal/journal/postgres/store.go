package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juno-intents/token-transfer/internal/journal"
)

var ErrInvalidConfig = errors.New("journal/postgres: invalid config")

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: nil pool", ErrInvalidConfig)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	_, err := s.pool.Exec(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("journal/postgres: ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, t journal.Transfer) (journal.Record, error) {
	if s == nil || s.pool == nil {
		return journal.Record{}, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if err := t.Validate(); err != nil {
		return journal.Record{}, err
	}
	if t.ChainID > math.MaxInt64 || t.Nonce > math.MaxInt64 {
		return journal.Record{}, fmt.Errorf("%w: chain id or nonce too large", journal.ErrInvalidTransfer)
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO transfer_journal (
			transfer_id,
			chain_id,
			token,
			from_address,
			to_address,
			amount,
			nonce,
			tx_hash,
			state,
			created_at,
			updated_at
		) VALUES ($1,$2,$3,$4,$5,$6::text::numeric,$7,$8,$9,now(),now())
		ON CONFLICT (transfer_id) DO NOTHING
	`, t.ID[:], int64(t.ChainID), t.Token[:], t.From[:], t.To[:], t.Amount.String(), int64(t.Nonce), t.TxHash[:], int16(journal.StateSubmitted))
	if err != nil {
		return journal.Record{}, fmt.Errorf("journal/postgres: insert: %w", err)
	}

	r, err := s.Get(ctx, t.ID)
	if err != nil {
		return journal.Record{}, err
	}
	if tag.RowsAffected() == 0 && !journal.SameTransfer(r.Transfer, t) {
		return journal.Record{}, journal.ErrTransferMismatch
	}
	return r, nil
}

func (s *Store) MarkOutcome(ctx context.Context, id common.Hash, o journal.Outcome) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if err := o.Validate(); err != nil {
		return err
	}
	if o.BlockNumber > math.MaxInt64 || o.GasUsed > math.MaxInt64 {
		return fmt.Errorf("%w: block number or gas used too large", journal.ErrInvalidTransition)
	}

	var reason *string
	if o.RevertReason != "" {
		reason = &o.RevertReason
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE transfer_journal
		SET
			state = $2,
			block_number = $3,
			gas_used = $4,
			revert_reason = $5,
			updated_at = now()
		WHERE transfer_id = $1 AND state = $6
	`, id[:], int16(o.State), int64(o.BlockNumber), int64(o.GasUsed), reason, int16(journal.StateSubmitted))
	if err != nil {
		return fmt.Errorf("journal/postgres: mark outcome: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	_, err = journal.CheckOutcome(r, o)
	return err
}

const selectColumns = `
	transfer_id,
	chain_id,
	token,
	from_address,
	to_address,
	amount::text,
	nonce,
	tx_hash,
	state,
	block_number,
	gas_used,
	revert_reason,
	created_at,
	updated_at
`

func (s *Store) Get(ctx context.Context, id common.Hash) (journal.Record, error) {
	if s == nil || s.pool == nil {
		return journal.Record{}, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}

	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM transfer_journal WHERE transfer_id = $1`, id[:])
	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return journal.Record{}, journal.ErrNotFound
		}
		return journal.Record{}, fmt.Errorf("journal/postgres: get: %w", err)
	}
	return r, nil
}

func (s *Store) ListByState(ctx context.Context, state journal.State, limit int) ([]journal.Record, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+selectColumns+`
		FROM transfer_journal
		WHERE state = $1
		ORDER BY created_at ASC, transfer_id ASC
		LIMIT $2
	`, int16(state), limit)
	if err != nil {
		return nil, fmt.Errorf("journal/postgres: list by state: %w", err)
	}
	defer rows.Close()

	out := make([]journal.Record, 0, limit)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("journal/postgres: scan list row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal/postgres: list by state rows: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (journal.Record, error) {
	var (
		idRaw     []byte
		chainID   int64
		tokenRaw  []byte
		fromRaw   []byte
		toRaw     []byte
		amountStr string
		nonce     int64
		txHashRaw []byte
		state     int16

		blockNumber  *int64
		gasUsed      *int64
		revertReason *string

		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(
		&idRaw,
		&chainID,
		&tokenRaw,
		&fromRaw,
		&toRaw,
		&amountStr,
		&nonce,
		&txHashRaw,
		&state,
		&blockNumber,
		&gasUsed,
		&revertReason,
		&createdAt,
		&updatedAt,
	); err != nil {
		return journal.Record{}, err
	}

	id, err := to32(idRaw)
	if err != nil {
		return journal.Record{}, err
	}
	txHash, err := to32(txHashRaw)
	if err != nil {
		return journal.Record{}, err
	}
	token, err := to20(tokenRaw)
	if err != nil {
		return journal.Record{}, err
	}
	from, err := to20(fromRaw)
	if err != nil {
		return journal.Record{}, err
	}
	to, err := to20(toRaw)
	if err != nil {
		return journal.Record{}, err
	}
	amount, ok := new(big.Int).SetString(amountStr, 10)
	if !ok {
		return journal.Record{}, fmt.Errorf("journal/postgres: invalid amount %q in db", amountStr)
	}
	if chainID <= 0 || nonce < 0 {
		return journal.Record{}, fmt.Errorf("journal/postgres: negative values in db")
	}

	r := journal.Record{
		Transfer: journal.Transfer{
			ID:      id,
			ChainID: uint64(chainID),
			Token:   token,
			From:    from,
			To:      to,
			Amount:  amount,
			Nonce:   uint64(nonce),
			TxHash:  txHash,
		},
		State:     journal.State(state),
		CreatedAt: createdAt.UTC(),
		UpdatedAt: updatedAt.UTC(),
	}
	if blockNumber != nil && *blockNumber >= 0 {
		r.BlockNumber = uint64(*blockNumber)
	}
	if gasUsed != nil && *gasUsed >= 0 {
		r.GasUsed = uint64(*gasUsed)
	}
	if revertReason != nil {
		r.RevertReason = *revertReason
	}
	return r, nil
}

func to32(b []byte) (common.Hash, error) {
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("journal/postgres: expected 32 bytes, got %d", len(b))
	}
	return common.BytesToHash(b), nil
}

func to20(b []byte) (common.Address, error) {
	if len(b) != common.AddressLength {
		return common.Address{}, fmt.Errorf("journal/postgres: expected 20 bytes, got %d", len(b))
	}
	return common.BytesToAddress(b), nil
}

var _ journal.Store = (*Store)(nil)
