// Package receiptarchive persists a JSON summary of every mined transfer, keyed by chain and
// transaction hash.
package receiptarchive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/ethereum/go-ethereum/common"
)

const (
	DriverNone   = "none"
	DriverMemory = "memory"
	DriverS3     = "s3"

	contentTypeJSON = "application/json"

	defaultMaxGetSize int64 = 1 << 20
)

var (
	ErrInvalidConfig = errors.New("receiptarchive: invalid config")
	ErrNotFound      = errors.New("receiptarchive: not found")
	ErrTooLarge      = errors.New("receiptarchive: object too large")
)

// Record is the archived form of a transfer after it was mined.
type Record struct {
	TransferID common.Hash    `json:"transferId"`
	ChainID    uint64         `json:"chainId"`
	Token      common.Address `json:"token"`
	From       common.Address `json:"from"`
	To         common.Address `json:"to"`
	// Amount is in base units, base 10.
	Amount string      `json:"amount"`
	Nonce  uint64      `json:"nonce"`
	TxHash common.Hash `json:"txHash"`

	Status       uint64      `json:"status"`
	BlockNumber  uint64      `json:"blockNumber"`
	BlockHash    common.Hash `json:"blockHash"`
	GasUsed      uint64      `json:"gasUsed"`
	RevertReason string      `json:"revertReason,omitempty"`

	Transfers []TransferLog `json:"transfers,omitempty"`

	ArchivedAt time.Time `json:"archivedAt"`
}

// TransferLog is one decoded Transfer event from the receipt.
type TransferLog struct {
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Value    string         `json:"value"`
	LogIndex uint           `json:"logIndex"`
}

type Archive interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, chainID uint64, txHash common.Hash) (Record, error)
}

type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Config struct {
	Driver string
	Prefix string

	// MaxGetSize bounds bytes read by Get. Defaults to 1 MiB when <= 0.
	MaxGetSize int64

	// S3 fields.
	Bucket   string
	S3Client S3Client
}

func New(cfg Config) (Archive, error) {
	switch normalizeDriver(cfg.Driver) {
	case DriverNone:
		return nopArchive{}, nil
	case DriverMemory:
		return NewMemory(cfg.Prefix), nil
	case DriverS3:
		return newS3Archive(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrInvalidConfig, cfg.Driver)
	}
}

// Key returns the object key of a record, relative to the configured prefix.
func Key(chainID uint64, txHash common.Hash) string {
	return "receipts/" + strconv.FormatUint(chainID, 10) + "/" + txHash.Hex() + ".json"
}

func normalizeDriver(v string) string {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return DriverNone
	}
	return v
}

func normalizePrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), "/")
}

func joinPrefix(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

func validate(rec Record) error {
	if rec.ChainID == 0 {
		return fmt.Errorf("%w: chain id must be non-zero", ErrInvalidConfig)
	}
	if (rec.TxHash == common.Hash{}) {
		return fmt.Errorf("%w: tx hash must be non-zero", ErrInvalidConfig)
	}
	return nil
}

type nopArchive struct{}

func (nopArchive) Put(context.Context, Record) error { return nil }

func (nopArchive) Get(_ context.Context, chainID uint64, txHash common.Hash) (Record, error) {
	return Record{}, fmt.Errorf("%w: %s", ErrNotFound, Key(chainID, txHash))
}

// Memory keeps encoded records in process memory.
type Memory struct {
	mu      sync.RWMutex
	prefix  string
	objects map[string][]byte
}

func NewMemory(prefix string) *Memory {
	return &Memory{
		prefix:  normalizePrefix(prefix),
		objects: make(map[string][]byte),
	}
}

func (m *Memory) Put(_ context.Context, rec Record) error {
	if err := validate(rec); err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("receiptarchive: encode: %w", err)
	}
	m.mu.Lock()
	m.objects[joinPrefix(m.prefix, Key(rec.ChainID, rec.TxHash))] = payload
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, chainID uint64, txHash common.Hash) (Record, error) {
	key := Key(chainID, txHash)
	m.mu.RLock()
	payload, ok := m.objects[joinPrefix(m.prefix, key)]
	m.mu.RUnlock()
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return decode(key, payload)
}

// Len reports the number of archived records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

type s3Archive struct {
	client     S3Client
	bucket     string
	prefix     string
	maxGetSize int64
}

func newS3Archive(cfg Config) (Archive, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket is required", ErrInvalidConfig)
	}
	if cfg.S3Client == nil {
		return nil, fmt.Errorf("%w: s3 client is required", ErrInvalidConfig)
	}

	maxGet := cfg.MaxGetSize
	if maxGet <= 0 {
		maxGet = defaultMaxGetSize
	}

	return &s3Archive{
		client:     cfg.S3Client,
		bucket:     bucket,
		prefix:     normalizePrefix(cfg.Prefix),
		maxGetSize: maxGet,
	}, nil
}

func (s *s3Archive) Put(ctx context.Context, rec Record) error {
	if err := validate(rec); err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("receiptarchive: encode: %w", err)
	}
	key := Key(rec.ChainID, rec.TxHash)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(joinPrefix(s.prefix, key)),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(contentTypeJSON),
		Metadata: map[string]string{
			"chain-id": strconv.FormatUint(rec.ChainID, 10),
			"tx-hash":  rec.TxHash.Hex(),
			"status":   strconv.FormatUint(rec.Status, 10),
		},
	})
	if err != nil {
		return fmt.Errorf("receiptarchive/s3: put %q: %w", key, err)
	}
	return nil
}

func (s *s3Archive) Get(ctx context.Context, chainID uint64, txHash common.Hash) (Record, error) {
	key := Key(chainID, txHash)

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(joinPrefix(s.prefix, key)),
	})
	if err != nil {
		if isNotFound(err) {
			return Record{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return Record{}, fmt.Errorf("receiptarchive/s3: get %q: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(out.Body, s.maxGetSize+1))
	if err != nil {
		return Record{}, fmt.Errorf("receiptarchive/s3: read %q: %w", key, err)
	}
	if int64(len(data)) > s.maxGetSize {
		return Record{}, fmt.Errorf("%w: key %q exceeds max %d bytes", ErrTooLarge, key, s.maxGetSize)
	}
	return decode(key, data)
}

func decode(key string, payload []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Record{}, fmt.Errorf("receiptarchive: decode %q: %w", key, err)
	}
	return rec, nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NotFound", "404":
		return true
	default:
		return false
	}
}
