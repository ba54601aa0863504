package eth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var ErrInvalidSenderConfig = errors.New("eth: invalid sender config")

// Backend is the subset of *ethclient.Client used to build, submit and confirm transactions.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type SenderConfig struct {
	ChainID            *big.Int
	GasLimitMultiplier float64
	// MinTipCap floors the priority fee (EIP-1559) or the gas price (legacy chains).
	MinTipCap *big.Int

	ReceiptPollInterval time.Duration

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Sender submits signed transactions for a single account and waits for their receipts.
//
// Each Submit broadcasts exactly one transaction. Nothing is retried or replaced.
type Sender struct {
	backend Backend
	signer  Signer
	nonces  *NonceManager
	cfg     SenderConfig
	log     *slog.Logger
}

type TxRequest struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64 // optional; 0 => estimate
}

// Submission describes a transaction accepted by the node's mempool.
type Submission struct {
	From        common.Address
	Nonce       uint64
	TxHash      common.Hash
	Tx          *types.Transaction
	SubmittedAt time.Time
}

func NewSender(backend Backend, signer Signer, cfg SenderConfig) (*Sender, error) {
	if backend == nil || signer == nil {
		return nil, ErrInvalidSenderConfig
	}
	if (signer.Address() == common.Address{}) {
		return nil, fmt.Errorf("%w: zero signer address", ErrInvalidSenderConfig)
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("%w: chain id must be > 0", ErrInvalidSenderConfig)
	}
	if cfg.GasLimitMultiplier <= 0 {
		return nil, fmt.Errorf("%w: gas limit multiplier must be > 0", ErrInvalidSenderConfig)
	}
	if cfg.MinTipCap == nil || cfg.MinTipCap.Sign() < 0 {
		return nil, fmt.Errorf("%w: min tip cap must be >= 0", ErrInvalidSenderConfig)
	}
	if cfg.ReceiptPollInterval <= 0 {
		return nil, fmt.Errorf("%w: receipt poll interval must be > 0", ErrInvalidSenderConfig)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}

	return &Sender{
		backend: backend,
		signer:  signer,
		nonces:  NewNonceManager(backend, signer.Address()),
		cfg:     cfg,
		log:     slog.Default(),
	}, nil
}

func (s *Sender) WithLogger(log *slog.Logger) {
	if s == nil || log == nil {
		return
	}
	s.log = log
}

func (s *Sender) Address() common.Address { return s.signer.Address() }

func (s *Sender) ChainID() *big.Int { return new(big.Int).Set(s.cfg.ChainID) }

// Submit estimates gas, prices fees, signs and broadcasts one transaction.
//
// It returns as soon as the node accepts the transaction; use WaitMined for the receipt.
func (s *Sender) Submit(ctx context.Context, req TxRequest) (Submission, error) {
	from := s.signer.Address()

	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}

	gasLimit := req.GasLimit
	if gasLimit == 0 {
		est, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{
			From:  from,
			To:    &req.To,
			Value: value,
			Data:  req.Data,
		})
		if err != nil {
			return Submission{}, fmt.Errorf("eth: estimate gas: %w", Classify(err))
		}
		gasLimit = applyGasMultiplier(est, s.cfg.GasLimitMultiplier)
	}

	fees, err := s.quoteFees(ctx)
	if err != nil {
		return Submission{}, err
	}

	nonce, err := s.nonces.Next(ctx)
	if err != nil {
		return Submission{}, fmt.Errorf("eth: pending nonce: %w", err)
	}

	to := req.To
	var inner types.TxData
	if fees.legacy {
		inner = &types.LegacyTx{
			Nonce:    nonce,
			GasPrice: fees.gasPrice,
			Gas:      gasLimit,
			To:       &to,
			Value:    value,
			Data:     req.Data,
		}
	} else {
		inner = &types.DynamicFeeTx{
			ChainID:   s.cfg.ChainID,
			Nonce:     nonce,
			GasTipCap: fees.tipCap,
			GasFeeCap: fees.feeCap,
			Gas:       gasLimit,
			To:        &to,
			Value:     value,
			Data:      req.Data,
		}
	}

	signed, err := s.signer.SignTx(types.NewTx(inner), s.cfg.ChainID)
	if err != nil {
		return Submission{}, err
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return Submission{}, fmt.Errorf("eth: send transaction: %w", Classify(err))
	}

	s.log.Debug("transaction broadcast",
		"from", from,
		"nonce", nonce,
		"gas", gasLimit,
		"legacy", fees.legacy,
		"tx_hash", signed.Hash(),
	)

	return Submission{
		From:        from,
		Nonce:       nonce,
		TxHash:      signed.Hash(),
		Tx:          signed,
		SubmittedAt: s.cfg.Now(),
	}, nil
}

// WaitMined polls for the receipt of sub until it is mined or ctx ends.
//
// A mined receipt with a failed status is returned together with a *RevertError. The
// revert reason is recovered by replaying the call on the state the tx executed against,
// the parent of the receipt's block.
func (s *Sender) WaitMined(ctx context.Context, sub Submission) (*types.Receipt, error) {
	if sub.Tx == nil {
		return nil, fmt.Errorf("%w: nil submission tx", ErrInvalidSenderConfig)
	}
	for {
		receipt, err := s.backend.TransactionReceipt(ctx, sub.TxHash)
		if err == nil {
			if receipt.Status == types.ReceiptStatusFailed {
				return receipt, s.revertReason(ctx, sub, receipt)
			}
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("eth: transaction receipt: %w", Classify(err))
		}
		if err := s.cfg.Sleep(ctx, s.cfg.ReceiptPollInterval); err != nil {
			return nil, err
		}
	}
}

func (s *Sender) revertReason(ctx context.Context, sub Submission, receipt *types.Receipt) error {
	msg := ethereum.CallMsg{
		From:  sub.From,
		To:    sub.Tx.To(),
		Gas:   sub.Tx.Gas(),
		Value: sub.Tx.Value(),
		Data:  sub.Tx.Data(),
	}
	_, err := s.backend.CallContract(ctx, msg, replayBlock(receipt))
	if err == nil {
		return &RevertError{}
	}
	classified := Classify(err)
	var rev *RevertError
	if errors.As(classified, &rev) {
		return rev
	}
	s.log.Warn("revert reason unavailable", "tx_hash", sub.TxHash, "err", err)
	return &RevertError{}
}

// replayBlock is the block whose post-state the receipt's tx executed against. A nil result
// means latest.
func replayBlock(receipt *types.Receipt) *big.Int {
	if receipt.BlockNumber == nil {
		return nil
	}
	if receipt.BlockNumber.Sign() <= 0 {
		return new(big.Int)
	}
	return new(big.Int).Sub(receipt.BlockNumber, big.NewInt(1))
}

type feeQuote struct {
	legacy   bool
	gasPrice *big.Int
	tipCap   *big.Int
	feeCap   *big.Int
}

func (s *Sender) quoteFees(ctx context.Context) (feeQuote, error) {
	header, err := s.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return feeQuote{}, fmt.Errorf("eth: latest header: %w", Classify(err))
	}

	if header.BaseFee == nil {
		suggested, err := s.backend.SuggestGasPrice(ctx)
		if err != nil {
			return feeQuote{}, fmt.Errorf("eth: suggest gas price: %w", Classify(err))
		}
		price, err := CalcLegacyGasPrice(suggested, s.cfg.MinTipCap)
		if err != nil {
			return feeQuote{}, err
		}
		return feeQuote{legacy: true, gasPrice: price}, nil
	}

	suggestedTip, err := s.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return feeQuote{}, fmt.Errorf("eth: suggest gas tip cap: %w", Classify(err))
	}
	tipCap, feeCap, err := Calc1559Fees(header.BaseFee, suggestedTip, s.cfg.MinTipCap)
	if err != nil {
		return feeQuote{}, err
	}
	return feeQuote{tipCap: tipCap, feeCap: feeCap}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func applyGasMultiplier(est uint64, mult float64) uint64 {
	if mult <= 1 {
		return est
	}
	out := uint64(math.Ceil(float64(est) * mult))
	if out < est {
		// overflow or float error; fall back to the estimate.
		return est
	}
	return out
}
