package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	goIAM "github.com/MrEthical07/goIAM"
	"github.com/MrEthical07/goIAM/internal/logging"
)

// Topics names the destinations for each kind of message. An empty topic
// disables that kind.
type Topics struct {
	Audit string
	Reuse string
}

// Config configures [NewPublisher].
type Config struct {
	Brokers  []string
	ClientID string
	Topics   Topics
	Timeout  time.Duration
}

// Message is the JSON envelope written to Kafka.
type Message struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// ReusePayload is the body of a refresh_reuse message.
type ReusePayload struct {
	AccountID  string    `json:"account_id"`
	Email      string    `json:"email,omitempty"`
	IP         string    `json:"ip,omitempty"`
	DetectedAt time.Time `json:"detected_at"`
}

// Publisher forwards audit events and refresh-token reuse signals to Kafka.
// It implements goIAM.AuditSink and goIAM.SecurityResponder. Publish
// failures are logged, never returned, so a broker outage cannot fail an
// authentication flow.
type Publisher struct {
	producer sarama.SyncProducer
	topics   Topics
	logger   *slog.Logger
	now      func() time.Time
}

var (
	_ goIAM.AuditSink         = (*Publisher)(nil)
	_ goIAM.SecurityResponder = (*Publisher)(nil)
)

// NewPublisher dials the brokers with an idempotent synchronous producer.
func NewPublisher(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.Topics.Audit == "" && cfg.Topics.Reuse == "" {
		return nil, errors.New("at least one kafka topic is required")
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, producerConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewPublisherWithProducer(producer, cfg.Topics, logger), nil
}

// NewPublisherWithProducer wraps an existing producer.
func NewPublisherWithProducer(producer sarama.SyncProducer, topics Topics, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Publisher{
		producer: producer,
		topics:   topics,
		logger:   logger,
		now:      time.Now,
	}
}

func producerConfig(cfg Config) *sarama.Config {
	c := sarama.NewConfig()
	c.Version = sarama.V3_7_0_0
	if cfg.ClientID != "" {
		c.ClientID = cfg.ClientID
	}
	c.Producer.RequiredAcks = sarama.WaitForAll
	c.Producer.Return.Successes = true
	c.Producer.Return.Errors = true
	c.Producer.Idempotent = true
	c.Net.MaxOpenRequests = 1
	c.Producer.Retry.Max = 5
	c.Producer.Retry.Backoff = 250 * time.Millisecond
	if cfg.Timeout > 0 {
		c.Producer.Timeout = cfg.Timeout
		c.Net.DialTimeout = cfg.Timeout
	}
	return c
}

// Emit publishes an audit event keyed by account id.
func (p *Publisher) Emit(ctx context.Context, event goIAM.AuditEvent) {
	if p.topics.Audit == "" {
		return
	}
	if err := p.publish(p.topics.Audit, event.AccountID, event.EventType, event.Timestamp, event); err != nil {
		p.logger.WarnContext(ctx, "audit publish failed",
			slog.String("topic", p.topics.Audit),
			slog.String("event_type", event.EventType),
			logging.Err(err),
		)
	}
}

// OnRefreshReuse publishes a refresh_reuse message so downstream consumers
// can notify the account owner or lock the account.
func (p *Publisher) OnRefreshReuse(ctx context.Context, ev goIAM.ReuseEvent) {
	if p.topics.Reuse == "" {
		return
	}
	payload := ReusePayload{
		AccountID:  ev.AccountID,
		Email:      ev.Email,
		IP:         ev.IP,
		DetectedAt: ev.DetectedAt,
	}
	if err := p.publish(p.topics.Reuse, ev.AccountID, goIAM.AuditEventRefreshReuse, ev.DetectedAt, payload); err != nil {
		p.logger.ErrorContext(ctx, "reuse publish failed",
			slog.String("topic", p.topics.Reuse),
			slog.String("account_id", ev.AccountID),
			logging.Err(err),
		)
	}
}

func (p *Publisher) publish(topic, key, eventType string, ts time.Time, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if ts.IsZero() {
		ts = p.now()
	}
	value, err := json.Marshal(Message{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: ts.UTC(),
		Payload:   body,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(value),
	}
	if key = strings.TrimSpace(key); key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("send to %s: %w", topic, err)
	}
	return nil
}

// Close flushes and closes the producer.
func (p *Publisher) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
