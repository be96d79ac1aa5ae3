// Package stream publishes verity lifecycle events to Kafka.
//
// Every state transition becomes one JSON message keyed by the record it
// concerns (event ID for results and disputes, producer ID for registry
// changes, consumer for billing), so a topic partitioned by key preserves
// per-record order.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/xraph/verity/billing"
	"github.com/xraph/verity/dispute"
	"github.com/xraph/verity/params"
	"github.com/xraph/verity/plugin"
	"github.com/xraph/verity/producer"
	"github.com/xraph/verity/result"
	"github.com/xraph/verity/types"
)

var (
	_ plugin.Plugin                  = (*Publisher)(nil)
	_ plugin.OnShutdown              = (*Publisher)(nil)
	_ plugin.OnProducerRegistered    = (*Publisher)(nil)
	_ plugin.OnProducerStatusChanged = (*Publisher)(nil)
	_ plugin.OnStakeSlashed          = (*Publisher)(nil)
	_ plugin.OnEventScheduled        = (*Publisher)(nil)
	_ plugin.OnResultSubmitted       = (*Publisher)(nil)
	_ plugin.OnResultFinalized       = (*Publisher)(nil)
	_ plugin.OnResultInvalidated     = (*Publisher)(nil)
	_ plugin.OnDisputeCreated        = (*Publisher)(nil)
	_ plugin.OnDisputeResolved       = (*Publisher)(nil)
	_ plugin.OnQueryCharged          = (*Publisher)(nil)
	_ plugin.OnWithdrawal            = (*Publisher)(nil)
	_ plugin.OnParamsUpdated         = (*Publisher)(nil)
)

// Message types.
const (
	TypeProducerRegistered = "producer.registered"
	TypeProducerStatus     = "producer.status_changed"
	TypeStakeSlashed       = "producer.stake_slashed"
	TypeEventScheduled     = "event.scheduled"
	TypeResultSubmitted    = "result.submitted"
	TypeResultFinalized    = "result.finalized"
	TypeResultInvalidated  = "result.invalidated"
	TypeDisputeCreated     = "dispute.created"
	TypeDisputeResolved    = "dispute.resolved"
	TypeQueryCharged       = "billing.query_charged"
	TypeWithdrawal         = "billing.withdrawal"
	TypeParamsUpdated      = "params.updated"
)

// Writer is the slice of *kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Envelope is the JSON body of every message.
type Envelope struct {
	Type string          `json:"type"`
	Key  string          `json:"key"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Publisher is a plugin that writes lifecycle events to Kafka. Write
// failures are retried with backoff, then logged; they never fail the
// operation that produced the event.
type Publisher struct {
	w           Writer
	logger      *slog.Logger
	now         func() time.Time
	maxAttempts int
	backoff     time.Duration
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(p *Publisher) { p.logger = l } }

// WithMaxAttempts sets how many times a write is tried.
func WithMaxAttempts(n int) Option { return func(p *Publisher) { p.maxAttempts = n } }

// WithBackoff sets the initial delay between attempts.
func WithBackoff(d time.Duration) Option { return func(p *Publisher) { p.backoff = d } }

// New creates a publisher writing through w.
func New(w Writer, opts ...Option) *Publisher {
	p := &Publisher{
		w:           w,
		logger:      slog.Default(),
		now:         time.Now,
		maxAttempts: 3,
		backoff:     100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = 1
	}
	return p
}

// KafkaConfig configures NewKafkaWriter.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// NewKafkaWriter builds a synchronous key-hashed writer.
func NewKafkaWriter(cfg KafkaConfig) (*kafka.Writer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("stream: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("stream: topic required")
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireAll,
	}, nil
}

func (p *Publisher) Name() string { return "kafka-stream" }

// OnShutdown closes the writer.
func (p *Publisher) OnShutdown(context.Context) error { return p.w.Close() }

func (p *Publisher) OnProducerRegistered(ctx context.Context, pr *producer.Producer) error {
	return p.publish(ctx, TypeProducerRegistered, pr.ID.String(), pr)
}

func (p *Publisher) OnProducerStatusChanged(ctx context.Context, pr *producer.Producer, reason string) error {
	return p.publish(ctx, TypeProducerStatus, pr.ID.String(), map[string]any{
		"producer": pr,
		"reason":   reason,
	})
}

func (p *Publisher) OnStakeSlashed(ctx context.Context, pr *producer.Producer, slashed types.Money, reason string) error {
	return p.publish(ctx, TypeStakeSlashed, pr.ID.String(), map[string]any{
		"producer_id": pr.ID.String(),
		"slashed":     slashed,
		"stake":       pr.Stake,
		"reason":      reason,
	})
}

func (p *Publisher) OnEventScheduled(ctx context.Context, ev *producer.Event) error {
	return p.publish(ctx, TypeEventScheduled, ev.ID.String(), ev)
}

// Result messages carry the status and fingerprint only; the payload is
// paid content and never leaves through the stream.
func (p *Publisher) OnResultSubmitted(ctx context.Context, r *result.Result) error {
	return p.publish(ctx, TypeResultSubmitted, r.EventID.String(), resultSummary(r))
}

func (p *Publisher) OnResultFinalized(ctx context.Context, r *result.Result) error {
	return p.publish(ctx, TypeResultFinalized, r.EventID.String(), resultSummary(r))
}

func (p *Publisher) OnResultInvalidated(ctx context.Context, r *result.Result) error {
	return p.publish(ctx, TypeResultInvalidated, r.EventID.String(), resultSummary(r))
}

func (p *Publisher) OnDisputeCreated(ctx context.Context, d *dispute.Dispute) error {
	return p.publish(ctx, TypeDisputeCreated, d.EventID.String(), d)
}

func (p *Publisher) OnDisputeResolved(ctx context.Context, d *dispute.Dispute) error {
	return p.publish(ctx, TypeDisputeResolved, d.EventID.String(), d)
}

func (p *Publisher) OnQueryCharged(ctx context.Context, c *billing.Charge) error {
	return p.publish(ctx, TypeQueryCharged, string(c.Consumer), c)
}

func (p *Publisher) OnWithdrawal(ctx context.Context, w *billing.Withdrawal) error {
	return p.publish(ctx, TypeWithdrawal, w.ProducerID.String(), w)
}

func (p *Publisher) OnParamsUpdated(ctx context.Context, pp *params.Params) error {
	return p.publish(ctx, TypeParamsUpdated, "params", pp)
}

func resultSummary(r *result.Result) map[string]any {
	return map[string]any{
		"event_id":          r.EventID.String(),
		"producer_id":       r.ProducerID.String(),
		"status":            r.Status,
		"fingerprint":       r.Fingerprint,
		"finalize_deadline": r.FinalizeDeadline,
	}
}

func (p *Publisher) publish(ctx context.Context, typ, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		p.logger.Warn("stream: marshal failed", "type", typ, "key", key, "error", err)
		return nil
	}
	body, err := json.Marshal(Envelope{Type: typ, Key: key, At: p.now().UTC(), Data: data})
	if err != nil {
		p.logger.Warn("stream: marshal failed", "type", typ, "key", key, "error", err)
		return nil
	}
	msg := kafka.Message{
		Key:     []byte(key),
		Value:   body,
		Headers: []kafka.Header{{Key: "type", Value: []byte(typ)}},
	}

	backoff := p.backoff
	for attempt := 1; ; attempt++ {
		err = p.w.WriteMessages(ctx, msg)
		if err == nil {
			return nil
		}
		if attempt >= p.maxAttempts || ctx.Err() != nil {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
	p.logger.Warn("stream: publish failed",
		"type", typ,
		"key", key,
		"attempts", p.maxAttempts,
		"error", err,
	)
	return nil
}
