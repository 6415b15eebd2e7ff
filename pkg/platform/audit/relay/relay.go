// Package relay moves audit events from the Postgres outbox to Kafka.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"qualtrack/pkg/platform/audit/store/postgres"
	txcontext "qualtrack/pkg/platform/tx"
)

// Source is the outbox side of the relay.
type Source interface {
	Pending(ctx context.Context, limit int) ([]postgres.OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Producer is the subset of *kgo.Client the relay needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type Relay struct {
	source    Source
	producer  Producer
	topic     string
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
	tx        txcontext.Runner
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithTx runs each batch (lock, produce, mark) in one transaction so
// concurrent relays never publish the same entries.
func WithTx(runner txcontext.Runner) Option {
	return func(r *Relay) {
		if runner != nil {
			r.tx = runner
		}
	}
}

type noTx struct{}

func (noTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func New(source Source, producer Producer, topic string, opts ...Option) *Relay {
	r := &Relay{
		source:    source,
		producer:  producer,
		topic:     topic,
		batchSize: 100,
		interval:  time.Second,
		logger:    slog.Default(),
		tx:        noTx{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays batches until ctx is cancelled. Failed batches are retried on
// the next tick; entries are only marked after Kafka acknowledged them.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		n, err := r.RelayOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			r.logger.ErrorContext(ctx, "audit relay batch failed", "error", err)
		}
		if n == r.batchSize {
			// Full batch: keep draining without waiting.
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RelayOnce publishes one batch and returns how many entries were relayed.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	var relayed int
	err := r.tx.RunInTx(ctx, func(ctx context.Context) error {
		n, err := r.relayBatch(ctx)
		relayed = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return relayed, nil
}

func (r *Relay) relayBatch(ctx context.Context) (int, error) {
	entries, err := r.source.Pending(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("load outbox: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	records := make([]*kgo.Record, len(entries))
	for i, e := range entries {
		records[i] = &kgo.Record{
			Topic: r.topic,
			Key:   []byte(e.AggregateID),
			Value: e.Payload,
			Headers: []kgo.RecordHeader{
				{Key: "event_type", Value: []byte(e.EventType)},
				{Key: "event_id", Value: []byte(e.ID.String())},
			},
		}
	}
	if err := r.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return 0, fmt.Errorf("produce audit events: %w", err)
	}

	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	if err := r.source.MarkPublished(ctx, ids, time.Now()); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// NewClient builds a franz-go client for the relay.
func NewClient(brokers []string) (*kgo.Client, error) {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(10*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return cl, nil
}

// EnsureTopic creates the audit topic when it does not exist.
func EnsureTopic(ctx context.Context, cl *kgo.Client, topic string, partitions int32, replicationFactor int16) error {
	admin := kadm.NewClient(cl)
	resp, err := admin.CreateTopics(ctx, partitions, replicationFactor, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, t := range resp {
		if t.Err != nil && !errors.Is(t.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", t.Topic, t.Err)
		}
	}
	return nil
}
