package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juno-intents/token-transfer/internal/amount"
	"github.com/juno-intents/token-transfer/internal/erc20"
	"github.com/juno-intents/token-transfer/internal/eth"
	"github.com/juno-intents/token-transfer/internal/journal"
	journalpg "github.com/juno-intents/token-transfer/internal/journal/postgres"
	"github.com/juno-intents/token-transfer/internal/networks"
	"github.com/juno-intents/token-transfer/internal/queue"
	"github.com/juno-intents/token-transfer/internal/receiptarchive"
	"github.com/juno-intents/token-transfer/internal/secrets"
	"github.com/juno-intents/token-transfer/internal/transfer"
	"github.com/juno-intents/token-transfer/internal/transferevent"
)

const (
	defaultToken     = "0xcd6A51559254030cA30C2FB2cbdf5c492e8Caf9c"
	defaultRecipient = "0x97293CeAB815896883e8200AEf5a4581a70504b2"
	defaultAmount    = "10.0"
	defaultKeyEnv    = "PRIVATE_KEY"

	journalNone     = "none"
	journalMemory   = "memory"
	journalPostgres = "postgres"
)

var errInvalidFlags = errors.New("invalid flags")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func runMain(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("token-transfer", flag.ContinueOnError)
	fs.SetOutput(stderr)

	network := fs.String("network", "", "network preset: "+strings.Join(networks.Names(), "|")+" (default gnosis unless --rpc-url is set)")
	rpcURL := fs.String("rpc-url", "", "JSON-RPC endpoint (overrides the preset endpoint)")
	chainIDFlag := fs.Uint64("chain-id", 0, "expected chain id (0 => preset chain id, if any)")

	tokenAddr := fs.String("token", defaultToken, "token contract address")
	recipient := fs.String("to", defaultRecipient, "recipient address")
	amountLit := fs.String("amount", defaultAmount, "amount in whole token units, e.g. 10.0")
	decimals := fs.Int("decimals", transfer.DecimalsFromChain, "token decimals (-1 => read from the contract)")
	skipDecimalsCheck := fs.Bool("skip-decimals-check", false, "trust --decimals without reading the contract")
	checkBalance := fs.Bool("check-balance", true, "fail before submitting when the token balance is too low")

	keyEnv := fs.String("key-env", defaultKeyEnv, "env var holding the hex private key")
	keySecret := fs.String("key-secret", "", "secret reference holding the hex private key (env:NAME or aws:SECRET_ID)")
	keystorePath := fs.String("keystore", "", "keystore v3 JSON file (overrides --key-env)")
	keystorePassEnv := fs.String("keystore-password-env", "KEYSTORE_PASSWORD", "env var holding the keystore password")

	gasLimit := fs.Uint64("gas-limit", 0, "fixed gas limit (0 => estimate)")
	gasMult := fs.Float64("gas-mult", 1.2, "multiplier applied to the gas estimate")
	minTipGwei := fs.Int64("min-tip-gwei", 1, "minimum priority fee (or legacy gas price) in gwei")
	pollInterval := fs.Duration("poll-interval", 2*time.Second, "receipt poll interval")
	waitTimeout := fs.Duration("wait-timeout", 0, "max time to wait for the receipt (0 => no limit)")
	sinkTimeout := fs.Duration("sink-timeout", 5*time.Second, "max time for each journal, event or archive write")

	journalDriver := fs.String("journal-driver", journalNone, "transfer journal: none|memory|postgres (memory is a dry run, discarded at exit)")
	postgresDSN := fs.String("postgres-dsn", "", "Postgres DSN (required when --journal-driver=postgres)")

	eventsDriver := fs.String("events-driver", queue.DriverNone, "lifecycle events: none|stdio|kafka")
	eventsBrokers := fs.String("events-brokers", "", "comma-separated kafka brokers (required for kafka)")
	eventsTopic := fs.String("events-topic", transferevent.Topic, "lifecycle events topic")

	archiveDriver := fs.String("archive-driver", receiptarchive.DriverNone, "receipt archive: none|memory|s3 (memory is a dry run, discarded at exit)")
	archiveBucket := fs.String("archive-bucket", "", "S3 bucket (required when --archive-driver=s3)")
	archivePrefix := fs.String("archive-prefix", "", "key prefix inside the archive")

	logLevel := fs.String("log-level", "info", "log level: debug|info|warn|error")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: %v", errInvalidFlags, err)
	}
	if fs.NArg() != 0 {
		return fmt.Errorf("%w: unexpected arguments %q", errInvalidFlags, fs.Args())
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		return fmt.Errorf("%w: --log-level: %v", errInvalidFlags, err)
	}
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	req := transfer.Request{
		Token:     *tokenAddr,
		Recipient: *recipient,
		Amount:    *amountLit,
		Decimals:  *decimals,
	}
	if err := req.Validate(); err != nil {
		return err
	}
	if *skipDecimalsCheck && *decimals < 0 {
		return fmt.Errorf("%w: --skip-decimals-check requires --decimals", errInvalidFlags)
	}
	if *gasMult <= 0 {
		return fmt.Errorf("%w: --gas-mult must be > 0", errInvalidFlags)
	}
	if *minTipGwei < 0 {
		return fmt.Errorf("%w: --min-tip-gwei must be >= 0", errInvalidFlags)
	}
	if *pollInterval <= 0 {
		return fmt.Errorf("%w: --poll-interval must be > 0", errInvalidFlags)
	}
	if *waitTimeout < 0 {
		return fmt.Errorf("%w: --wait-timeout must be >= 0", errInvalidFlags)
	}
	if *sinkTimeout <= 0 {
		return fmt.Errorf("%w: --sink-timeout must be > 0", errInvalidFlags)
	}
	if *keystorePath != "" && *keySecret != "" {
		return fmt.Errorf("%w: --keystore and --key-secret are mutually exclusive", errInvalidFlags)
	}

	net, err := networks.Resolve(*network, *rpcURL)
	if err != nil {
		return err
	}
	wantChainID := net.ChainID
	if *chainIDFlag != 0 {
		wantChainID = *chainIDFlag
	}

	signer, err := loadSigner(ctx, *keystorePath, *keystorePassEnv, *keySecret, *keyEnv)
	if err != nil {
		return err
	}

	producer, err := queue.NewProducer(queue.ProducerConfig{
		Driver:  *eventsDriver,
		Brokers: queue.SplitCommaList(*eventsBrokers),
		Writer:  stderr,
	})
	if err != nil {
		return err
	}
	defer func() { _ = producer.Close() }()

	archive, err := newArchive(ctx, *archiveDriver, *archiveBucket, *archivePrefix)
	if err != nil {
		return err
	}

	store, closeStore, err := newJournal(ctx, *journalDriver, *postgresDSN)
	if err != nil {
		return err
	}
	defer closeStore()
	if dry := memorySinks(*journalDriver, *archiveDriver); len(dry) > 0 {
		log.Warn("in-memory sinks are discarded at exit", "sinks", strings.Join(dry, ","))
	}

	client, err := ethclient.DialContext(ctx, net.URL)
	if err != nil {
		return fmt.Errorf("dial rpc: %w", eth.Classify(err))
	}
	defer client.Close()

	gotChainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("fetch chain id: %w", eth.Classify(err))
	}
	if wantChainID != 0 && (!gotChainID.IsUint64() || gotChainID.Uint64() != wantChainID) {
		return fmt.Errorf("%w: chain id mismatch: want %d, endpoint reports %s", errInvalidFlags, wantChainID, gotChainID)
	}
	log.Debug("connected", "network", net.Name, "chain_id", gotChainID)

	sender, err := eth.NewSender(client, signer, eth.SenderConfig{
		ChainID:             gotChainID,
		GasLimitMultiplier:  *gasMult,
		MinTipCap:           new(big.Int).Mul(big.NewInt(*minTipGwei), big.NewInt(1_000_000_000)),
		ReceiptPollInterval: *pollInterval,
	})
	if err != nil {
		return err
	}
	sender.WithLogger(log)

	svc, err := transfer.New(transfer.Config{
		CheckBalance:      *checkBalance,
		SkipDecimalsCheck: *skipDecimalsCheck,
		GasLimit:          *gasLimit,
		WaitTimeout:       *waitTimeout,
		SinkTimeout:       *sinkTimeout,
		EventsTopic:       *eventsTopic,
	}, client, sender)
	if err != nil {
		return err
	}
	svc.WithLogger(log)
	if store != nil {
		svc.WithJournal(store)
	}
	svc.WithEvents(producer)
	svc.WithArchive(archive)

	res, err := svc.Transfer(ctx, req, func(s transfer.Submitted) {
		fmt.Fprintf(stdout, "Transaction hash: %s\n", s.TxHash.Hex())
		if u := net.TxURL(s.TxHash); u != "" {
			log.Info("explorer", "url", u)
		}
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, res.Summary())
	return nil
}

func loadSigner(ctx context.Context, keystorePath, keystorePassEnv, keySecret, keyEnv string) (*eth.LocalSigner, error) {
	var keyHex string
	switch {
	case keystorePath != "":
		keyJSON, err := os.ReadFile(keystorePath)
		if err != nil {
			return nil, fmt.Errorf("%w: read keystore: %v", errInvalidFlags, err)
		}
		pass, err := secrets.NewEnv().Get(ctx, keystorePassEnv)
		if err != nil {
			return nil, err
		}
		key, err := eth.LoadKeystoreKey(keyJSON, pass)
		if err != nil {
			return nil, err
		}
		return eth.NewLocalSigner(key), nil
	case keySecret != "":
		ref, err := secrets.ParseRef(keySecret)
		if err != nil {
			return nil, err
		}
		keyHex, err = secrets.Resolve(ctx, ref, func(ctx context.Context) (secrets.Provider, error) {
			return secrets.NewAWS(ctx)
		})
		if err != nil {
			return nil, err
		}
	default:
		v, err := secrets.NewEnv().Get(ctx, keyEnv)
		if err != nil {
			return nil, err
		}
		keyHex = v
	}

	key, err := eth.ParsePrivateKeyHex(keyHex)
	if err != nil {
		return nil, err
	}
	return eth.NewLocalSigner(key), nil
}

func newArchive(ctx context.Context, driver, bucket, prefix string) (receiptarchive.Archive, error) {
	cfg := receiptarchive.Config{
		Driver: strings.ToLower(strings.TrimSpace(driver)),
		Bucket: strings.TrimSpace(bucket),
		Prefix: strings.TrimSpace(prefix),
	}
	if cfg.Driver == receiptarchive.DriverS3 {
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("%w: --archive-bucket is required when --archive-driver=s3", receiptarchive.ErrInvalidConfig)
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		cfg.S3Client = awss3.NewFromConfig(awsCfg)
	}
	return receiptarchive.New(cfg)
}

// memorySinks names the sinks configured with the memory driver. They only exercise the
// write path of a single run.
func memorySinks(journalDriver, archiveDriver string) []string {
	var out []string
	if strings.EqualFold(strings.TrimSpace(journalDriver), journalMemory) {
		out = append(out, "journal")
	}
	if strings.EqualFold(strings.TrimSpace(archiveDriver), receiptarchive.DriverMemory) {
		out = append(out, "archive")
	}
	return out
}

func newJournal(ctx context.Context, driver, dsn string) (journal.Store, func(), error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", journalNone:
		return nil, func() {}, nil
	case journalMemory:
		return journal.NewMemoryStore(), func() {}, nil
	case journalPostgres:
		if strings.TrimSpace(dsn) == "" {
			return nil, nil, fmt.Errorf("%w: --postgres-dsn is required when --journal-driver=postgres", errInvalidFlags)
		}
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: init pgx pool: %v", errInvalidFlags, err)
		}
		store, err := journalpg.New(pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: unsupported --journal-driver %q", errInvalidFlags, driver)
	}
}

// configErrors are failures the operator fixes by changing flags or environment.
var configErrors = []error{
	errInvalidFlags,
	transfer.ErrInvalidRecipient,
	transfer.ErrInvalidToken,
	transfer.ErrInvalidDecimals,
	transfer.ErrDecimalsMismatch,
	amount.ErrInvalidAmount,
	amount.ErrPrecisionLoss,
	erc20.ErrNoContract,
	eth.ErrInvalidPrivateKey,
	eth.ErrInvalidSenderConfig,
	secrets.ErrInvalidConfig,
	secrets.ErrNotFound,
	networks.ErrUnknownNetwork,
	queue.ErrInvalidConfig,
	receiptarchive.ErrInvalidConfig,
}

// exitCode is 2 for configuration errors and 1 for everything else.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	for _, target := range configErrors {
		if errors.Is(err, target) {
			return 2
		}
	}
	return 1
}
