// Package transfer performs a single token transfer: validate, price, submit, confirm.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/juno-intents/token-transfer/internal/amount"
	"github.com/juno-intents/token-transfer/internal/erc20"
	"github.com/juno-intents/token-transfer/internal/eth"
	"github.com/juno-intents/token-transfer/internal/journal"
	"github.com/juno-intents/token-transfer/internal/queue"
	"github.com/juno-intents/token-transfer/internal/receiptarchive"
	"github.com/juno-intents/token-transfer/internal/transferevent"
	"github.com/juno-intents/token-transfer/internal/transferid"
	"github.com/shopspring/decimal"
)

var ErrInvalidConfig = errors.New("transfer: invalid config")

// Submitter broadcasts transactions for one account. *eth.Sender implements it.
type Submitter interface {
	Address() common.Address
	ChainID() *big.Int
	Submit(ctx context.Context, req eth.TxRequest) (eth.Submission, error)
	WaitMined(ctx context.Context, sub eth.Submission) (*types.Receipt, error)
}

type Config struct {
	// CheckBalance compares the sender's token balance against the amount before submitting.
	CheckBalance bool
	// SkipDecimalsCheck trusts an explicit Request.Decimals without reading the contract.
	SkipDecimalsCheck bool
	// GasLimit fixes the gas limit; 0 estimates.
	GasLimit uint64
	// WaitTimeout bounds the wait for the receipt; 0 waits until ctx ends.
	WaitTimeout time.Duration
	// SinkTimeout bounds each journal, event and archive write. Defaults to 5s.
	SinkTimeout time.Duration

	EventsTopic string

	Now        func() time.Time
	NewEventID func() uuid.UUID
}

// Submitted is reported once the node accepted the transaction, before waiting for a receipt.
type Submitted struct {
	ID     common.Hash
	TxHash common.Hash
	From   common.Address
	Nonce  uint64
}

type Result struct {
	ID      common.Hash
	ChainID uint64

	Token     common.Address
	From      common.Address
	To        common.Address
	Amount    decimal.Decimal
	BaseUnits *big.Int
	Decimals  uint8
	Symbol    string

	Nonce  uint64
	TxHash common.Hash

	// Receipt is nil when the wait did not complete.
	Receipt   *types.Receipt
	Transfers []erc20.TransferEvent
}

// Unit is the token symbol, or "tokens" when the contract has none.
func (r Result) Unit() string {
	if r.Symbol == "" {
		return "tokens"
	}
	return r.Symbol
}

// Summary renders the confirmation line, e.g. "Transferred 10 GNO to 0x…".
func (r Result) Summary() string {
	return fmt.Sprintf("Transferred %s %s to %s", amount.FormatUnits(r.BaseUnits, r.Decimals), r.Unit(), r.To.Hex())
}

type Service struct {
	cfg    Config
	caller bind.ContractCaller
	sub    Submitter

	journal journal.Store
	events  queue.Producer
	archive receiptarchive.Archive

	log *slog.Logger
}

func New(cfg Config, caller bind.ContractCaller, sub Submitter) (*Service, error) {
	if caller == nil || sub == nil {
		return nil, fmt.Errorf("%w: nil caller/submitter", ErrInvalidConfig)
	}
	if cfg.WaitTimeout < 0 {
		return nil, fmt.Errorf("%w: negative wait timeout", ErrInvalidConfig)
	}
	if cfg.SinkTimeout < 0 {
		return nil, fmt.Errorf("%w: negative sink timeout", ErrInvalidConfig)
	}
	if cfg.SinkTimeout == 0 {
		cfg.SinkTimeout = 5 * time.Second
	}
	if cfg.EventsTopic == "" {
		cfg.EventsTopic = transferevent.Topic
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewEventID == nil {
		cfg.NewEventID = uuid.New
	}
	return &Service{
		cfg:    cfg,
		caller: caller,
		sub:    sub,
		log:    slog.Default(),
	}, nil
}

func (s *Service) WithLogger(log *slog.Logger) {
	if s == nil || log == nil {
		return
	}
	s.log = log
}

// WithJournal records each broadcast and its outcome in j.
func (s *Service) WithJournal(j journal.Store) { s.journal = j }

// WithEvents publishes lifecycle events to p.
func (s *Service) WithEvents(p queue.Producer) { s.events = p }

// WithArchive stores a receipt summary in a once mined.
func (s *Service) WithArchive(a receiptarchive.Archive) { s.archive = a }

// Transfer submits exactly one transfer(recipient, amount) transaction and waits for it to be mined.
//
// onSubmitted, when non-nil, is called as soon as the node accepted the transaction. The
// returned Result is populated as far as the flow got; after a revert it carries the receipt.
// Journal, event and archive failures are logged and do not fail the transfer; each write is
// bounded by Config.SinkTimeout.
func (s *Service) Transfer(ctx context.Context, req Request, onSubmitted func(Submitted)) (Result, error) {
	p, err := parseRequest(req)
	if err != nil {
		return Result{}, err
	}

	token, err := erc20.NewToken(p.token, s.caller)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	decimals, err := s.resolveDecimals(ctx, token, p.decimals)
	if err != nil {
		return Result{}, err
	}
	base, err := amount.ToBaseUnits(p.amount, decimals)
	if err != nil {
		return Result{}, err
	}

	from := s.sub.Address()
	res := Result{
		ChainID:   s.sub.ChainID().Uint64(),
		Token:     p.token,
		From:      from,
		To:        p.recipient,
		Amount:    p.amount,
		BaseUnits: base,
		Decimals:  decimals,
	}

	res.Symbol, err = token.Symbol(ctx)
	if err != nil {
		s.log.Debug("token symbol unavailable", "token", p.token, "err", err)
		res.Symbol = ""
	}

	if s.cfg.CheckBalance {
		bal, err := token.BalanceOf(ctx, from)
		if err != nil {
			return res, err
		}
		if bal.Cmp(base) < 0 {
			return res, fmt.Errorf("%w: have %s, need %s %s", ErrInsufficientBalance,
				amount.FormatUnits(bal, decimals), amount.FormatUnits(base, decimals), res.Unit())
		}
	}

	data, err := erc20.PackTransfer(p.recipient, base)
	if err != nil {
		return res, err
	}

	sub, err := s.sub.Submit(ctx, eth.TxRequest{
		To:       p.token,
		Data:     data,
		GasLimit: s.cfg.GasLimit,
	})
	if err != nil {
		return res, fmt.Errorf("transfer: submit: %w", err)
	}

	res.Nonce = sub.Nonce
	res.TxHash = sub.TxHash
	res.ID = transferid.V1(s.sub.ChainID(), p.token, from, sub.Nonce)

	s.log.Info("transfer submitted",
		"transfer_id", res.ID,
		"tx_hash", res.TxHash,
		"from", from,
		"to", p.recipient,
		"amount", base,
		"nonce", sub.Nonce,
	)
	if onSubmitted != nil {
		onSubmitted(Submitted{ID: res.ID, TxHash: res.TxHash, From: from, Nonce: sub.Nonce})
	}

	s.recordSubmitted(ctx, res)

	waitCtx := ctx
	if s.cfg.WaitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.cfg.WaitTimeout)
		defer cancel()
	}
	receipt, waitErr := s.sub.WaitMined(waitCtx, sub)
	if receipt == nil {
		if waitErr == nil {
			waitErr = errors.New("transfer: nil receipt")
		}
		return res, fmt.Errorf("transfer: wait mined %s: %w", res.TxHash, waitErr)
	}
	res.Receipt = receipt

	if waitErr != nil {
		var reason string
		var rev *eth.RevertError
		if errors.As(waitErr, &rev) {
			reason = rev.Reason
		}
		s.log.Warn("transfer reverted", "tx_hash", res.TxHash, "block", receipt.BlockNumber, "reason", reason)
		s.recordOutcome(ctx, res, journal.StateReverted, reason)
		return res, fmt.Errorf("transfer: %s: %w", res.TxHash, waitErr)
	}

	res.Transfers, err = erc20.ParseTransferLogs(p.token, receipt.Logs)
	if err != nil {
		s.log.Warn("decode transfer logs", "tx_hash", res.TxHash, "err", err)
	}

	s.log.Info("transfer mined",
		"tx_hash", res.TxHash,
		"block", receipt.BlockNumber,
		"gas_used", receipt.GasUsed,
		"transfer_events", len(res.Transfers),
	)
	s.recordOutcome(ctx, res, journal.StateMined, "")
	return res, nil
}

func (s *Service) resolveDecimals(ctx context.Context, token *erc20.Token, want int) (uint8, error) {
	if want >= 0 && s.cfg.SkipDecimalsCheck {
		return uint8(want), nil
	}
	got, err := token.Decimals(ctx)
	if err != nil {
		return 0, err
	}
	if want >= 0 && int(got) != want {
		return 0, fmt.Errorf("%w: configured %d, contract reports %d", ErrDecimalsMismatch, want, got)
	}
	return got, nil
}

func (s *Service) recordSubmitted(ctx context.Context, res Result) {
	if s.journal != nil {
		sctx, cancel := s.sinkContext(ctx)
		_, err := s.journal.Insert(sctx, journalTransfer(res))
		cancel()
		if err != nil {
			s.log.Warn("journal insert", "transfer_id", res.ID, "err", err)
		}
	}
	s.publish(ctx, transferevent.KindSubmitted, res, nil)
}

func (s *Service) recordOutcome(ctx context.Context, res Result, state journal.State, reason string) {
	r := res.Receipt
	blockNumber := blockNumberOf(r)

	if s.journal != nil {
		sctx, cancel := s.sinkContext(ctx)
		err := s.journal.MarkOutcome(sctx, res.ID, journal.Outcome{
			State:        state,
			BlockNumber:  blockNumber,
			GasUsed:      r.GasUsed,
			RevertReason: reason,
		})
		cancel()
		if err != nil {
			s.log.Warn("journal mark outcome", "transfer_id", res.ID, "state", state, "err", err)
		}
	}

	kind := transferevent.KindMined
	if state == journal.StateReverted {
		kind = transferevent.KindReverted
	}
	s.publish(ctx, kind, res, &transferevent.Receipt{
		BlockNumber:  blockNumber,
		GasUsed:      r.GasUsed,
		RevertReason: reason,
	})

	if s.archive != nil {
		rec := receiptarchive.Record{
			TransferID:   res.ID,
			ChainID:      res.ChainID,
			Token:        res.Token,
			From:         res.From,
			To:           res.To,
			Amount:       res.BaseUnits.String(),
			Nonce:        res.Nonce,
			TxHash:       res.TxHash,
			Status:       r.Status,
			BlockNumber:  blockNumber,
			BlockHash:    r.BlockHash,
			GasUsed:      r.GasUsed,
			RevertReason: reason,
			ArchivedAt:   s.cfg.Now().UTC(),
		}
		for _, ev := range res.Transfers {
			rec.Transfers = append(rec.Transfers, receiptarchive.TransferLog{
				From:     ev.From,
				To:       ev.To,
				Value:    ev.Value.String(),
				LogIndex: ev.LogIndex,
			})
		}
		sctx, cancel := s.sinkContext(ctx)
		err := s.archive.Put(sctx, rec)
		cancel()
		if err != nil {
			s.log.Warn("archive receipt", "tx_hash", res.TxHash, "err", err)
		}
	}
}

func (s *Service) publish(ctx context.Context, kind transferevent.Kind, res Result, r *transferevent.Receipt) {
	if s.events == nil {
		return
	}
	payload, err := transferevent.BuildPayload(kind, transferevent.Transfer{
		ID:      res.ID,
		ChainID: res.ChainID,
		Token:   res.Token,
		From:    res.From,
		To:      res.To,
		Amount:  res.BaseUnits,
		Nonce:   res.Nonce,
		TxHash:  res.TxHash,
	}, r, s.cfg.NewEventID(), s.cfg.Now())
	if err == nil {
		var key, body []byte
		key, body, err = payload.Encode()
		if err == nil {
			sctx, cancel := s.sinkContext(ctx)
			err = s.events.Publish(sctx, s.cfg.EventsTopic, key, body)
			cancel()
		}
	}
	if err != nil {
		s.log.Warn("publish transfer event", "kind", kind, "tx_hash", res.TxHash, "err", err)
	}
}

func (s *Service) sinkContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.SinkTimeout)
}

func journalTransfer(res Result) journal.Transfer {
	return journal.Transfer{
		ID:      res.ID,
		ChainID: res.ChainID,
		Token:   res.Token,
		From:    res.From,
		To:      res.To,
		Amount:  res.BaseUnits,
		Nonce:   res.Nonce,
		TxHash:  res.TxHash,
	}
}

func blockNumberOf(r *types.Receipt) uint64 {
	if r == nil || r.BlockNumber == nil || !r.BlockNumber.IsUint64() {
		return 0
	}
	return r.BlockNumber.Uint64()
}
