package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juno-intents/token-transfer/internal/journal"
	journalpg "github.com/juno-intents/token-transfer/internal/journal/postgres"
	"github.com/juno-intents/token-transfer/internal/queue"
	"github.com/juno-intents/token-transfer/internal/transferevent"
)

type stringListFlag []string

func (f *stringListFlag) String() string {
	if f == nil {
		return ""
	}
	return strings.Join(*f, ",")
}

func (f *stringListFlag) Set(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return errors.New("value must not be empty")
	}
	*f = append(*f, v)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runMain(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var states stringListFlag
	fs := flag.NewFlagSet("transfer-replay", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	postgresDSN := fs.String("postgres-dsn", "", "Postgres DSN of the transfer journal (required)")
	eventsDriver := fs.String("events-driver", queue.DriverKafka, "events driver: kafka|stdio")
	eventsBrokers := fs.String("events-brokers", "", "comma-separated Kafka brokers (required for kafka)")
	eventsTopic := fs.String("events-topic", transferevent.Topic, "events topic")
	fs.Var(&states, "state", "journal state to replay: submitted|mined|reverted (repeatable, default mined and reverted)")
	limit := fs.Int("limit", 1000, "max records per state")
	logLevel := fs.String("log-level", "info", "log level: debug|info|warn|error")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*postgresDSN) == "" {
		return errors.New("--postgres-dsn is required")
	}
	if *limit <= 0 {
		return errors.New("--limit must be > 0")
	}
	if len(states) == 0 {
		states = stringListFlag{"mined", "reverted"}
	}
	parsed, err := parseStates(states)
	if err != nil {
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	producer, err := queue.NewProducer(queue.ProducerConfig{
		Driver:  *eventsDriver,
		Brokers: queue.SplitCommaList(*eventsBrokers),
		Writer:  stdout,
	})
	if err != nil {
		return err
	}
	defer func() { _ = producer.Close() }()

	pool, err := pgxpool.New(ctx, *postgresDSN)
	if err != nil {
		return fmt.Errorf("init pgx pool: %w", err)
	}
	defer pool.Close()

	store, err := journalpg.New(pool)
	if err != nil {
		return err
	}

	n, err := replay(ctx, store, producer, *eventsTopic, parsed, *limit)
	if err != nil {
		return err
	}
	log.Info("replayed transfer events", "count", n, "topic", *eventsTopic)
	return nil
}

func parseStates(names []string) ([]journal.State, error) {
	out := make([]journal.State, 0, len(names))
	for _, name := range names {
		switch strings.ToLower(name) {
		case "submitted":
			out = append(out, journal.StateSubmitted)
		case "mined":
			out = append(out, journal.StateMined)
		case "reverted":
			out = append(out, journal.StateReverted)
		default:
			return nil, fmt.Errorf("--state: unknown state %q", name)
		}
	}
	return out, nil
}

// replay republishes the latest event of every journal record in the given states.
func replay(ctx context.Context, store journal.Store, producer queue.Producer, topic string, states []journal.State, limit int) (int, error) {
	published := 0
	for _, state := range states {
		recs, err := store.ListByState(ctx, state, limit)
		if err != nil {
			return published, fmt.Errorf("list %s transfers: %w", state, err)
		}
		for _, rec := range recs {
			payload, err := payloadFor(rec)
			if err != nil {
				return published, err
			}
			key, body, err := payload.Encode()
			if err != nil {
				return published, err
			}
			if err := producer.Publish(ctx, topic, key, body); err != nil {
				return published, fmt.Errorf("publish %s: %w", rec.Transfer.ID.Hex(), err)
			}
			published++
		}
	}
	return published, nil
}

// payloadFor rebuilds the event for rec's current state, stamped with the time it was recorded.
func payloadFor(rec journal.Record) (transferevent.Payload, error) {
	t := transferevent.Transfer{
		ID:      rec.Transfer.ID,
		ChainID: rec.Transfer.ChainID,
		Token:   rec.Transfer.Token,
		From:    rec.Transfer.From,
		To:      rec.Transfer.To,
		Amount:  rec.Transfer.Amount,
		Nonce:   rec.Transfer.Nonce,
		TxHash:  rec.Transfer.TxHash,
	}

	var (
		kind    transferevent.Kind
		receipt *transferevent.Receipt
		at      time.Time
	)
	switch rec.State {
	case journal.StateSubmitted:
		kind = transferevent.KindSubmitted
		at = rec.CreatedAt
	case journal.StateMined, journal.StateReverted:
		kind = transferevent.KindMined
		if rec.State == journal.StateReverted {
			kind = transferevent.KindReverted
		}
		receipt = &transferevent.Receipt{
			BlockNumber:  rec.BlockNumber,
			GasUsed:      rec.GasUsed,
			RevertReason: rec.RevertReason,
		}
		at = rec.UpdatedAt
	default:
		return transferevent.Payload{}, fmt.Errorf("transfer %s: unexpected state %s", rec.Transfer.ID.Hex(), rec.State)
	}
	return transferevent.BuildPayload(kind, t, receipt, transferevent.ReplayEventID(t.ID, kind), at)
}
