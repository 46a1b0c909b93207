// Package notify publishes order events to Kafka.
package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/order"
)

var _ order.Notifier = (*Publisher)(nil)

// Writer is the subset of *kafka.Writer used by Publisher.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config holds broker settings.
type Config struct {
	Brokers      []string      `usage:"Kafka broker addresses"`
	Topic        string        `default:"order-events" usage:"Topic for order events"`
	Buffer       int           `default:"256" usage:"Events queued before new ones are dropped"`
	WriteTimeout time.Duration `default:"5s" usage:"Timeout for a single publish"`
}

// NewWriter creates a Kafka writer for cfg.
func NewWriter(cfg Config) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           cfg.WriteTimeout,
	}
}

// Publisher queues order events and writes them from a single goroutine
// started with Run. Notify never blocks: when the queue is full the event is
// dropped and counted.
type Publisher struct {
	w       Writer
	lg      *zap.Logger
	queue   chan kafka.Message
	timeout time.Duration

	published metric.Int64Counter
	dropped   metric.Int64Counter
	failed    metric.Int64Counter
}

// NewPublisher creates a Publisher.
func NewPublisher(w Writer, lg *zap.Logger, mp metric.MeterProvider, cfg Config) (*Publisher, error) {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	meter := mp.Meter("storefront/notify")
	p := &Publisher{
		w:       w,
		lg:      lg,
		queue:   make(chan kafka.Message, cfg.Buffer),
		timeout: cfg.WriteTimeout,
	}
	var err error
	if p.published, err = meter.Int64Counter("order_events.published"); err != nil {
		return nil, errors.Wrap(err, "published counter")
	}
	if p.dropped, err = meter.Int64Counter("order_events.dropped"); err != nil {
		return nil, errors.Wrap(err, "dropped counter")
	}
	if p.failed, err = meter.Int64Counter("order_events.failed"); err != nil {
		return nil, errors.Wrap(err, "failed counter")
	}
	return p, nil
}

// Notify implements order.Notifier.
func (p *Publisher) Notify(ctx context.Context, e order.Event) {
	msg := kafka.Message{
		Key:   []byte(e.OrderID),
		Value: encodeEvent(e),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
		Time: e.At,
	}
	select {
	case p.queue <- msg:
	default:
		p.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(e.Type))))
		p.lg.Warn("Event queue full, dropping event",
			zap.String("type", string(e.Type)),
			zap.String("order_id", e.OrderID),
		)
	}
}

// Run writes queued events until ctx is done, then flushes what is left
// and closes the writer.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case msg := <-p.queue:
			p.write(ctx, msg)
		case <-ctx.Done():
			p.flush()
			return p.w.Close()
		}
	}
}

func (p *Publisher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	for {
		select {
		case msg := <-p.queue:
			p.write(ctx, msg)
		default:
			return
		}
	}
}

func (p *Publisher) write(ctx context.Context, msg kafka.Message) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	attrs := metric.WithAttributes(attribute.String("type", eventType(msg)))
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		p.failed.Add(ctx, 1, attrs)
		p.lg.Warn("Publish order event",
			zap.String("type", eventType(msg)),
			zap.ByteString("order_id", msg.Key),
			zap.Error(err),
		)
		return
	}
	p.published.Add(ctx, 1, attrs)
}

func eventType(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == "event_type" {
			return string(h.Value)
		}
	}
	return ""
}

func encodeEvent(e order.Event) []byte {
	var enc jx.Encoder
	enc.ObjStart()
	enc.FieldStart("type")
	enc.Str(string(e.Type))
	enc.FieldStart("order_id")
	enc.Str(e.OrderID)
	enc.FieldStart("user_id")
	enc.Str(e.UserID)
	if e.DetailID != 0 {
		enc.FieldStart("detail_id")
		enc.Int64(e.DetailID)
	}
	if e.Status != "" {
		enc.FieldStart("status")
		enc.Str(e.Status)
	}
	if !e.Amount.IsZero() {
		enc.FieldStart("amount")
		enc.Str(e.Amount.StringFixed(2))
	}
	enc.FieldStart("at")
	enc.Str(e.At.UTC().Format(time.RFC3339))
	enc.ObjEnd()
	return enc.Bytes()
}
