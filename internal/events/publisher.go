package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"coin-wallet-go/internal/models"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// TransactionEvent is the message published for every completed transaction.
type TransactionEvent struct {
	Id           string                   `json:"id"`
	UserId       string                   `json:"userId"`
	Type         models.TransactionType   `json:"type"`
	Amount       string                   `json:"amount"`
	Status       models.TransactionStatus `json:"status"`
	LockId       string                   `json:"lockId,omitempty"`
	BalanceAfter string                   `json:"balanceAfter"`
	LockedAfter  string                   `json:"lockedAfter"`
	CreatedAt    time.Time                `json:"createdAt"`
	CompletedAt  *time.Time               `json:"completedAt,omitempty"`
}

func NewTransactionEvent(t models.Transaction) TransactionEvent {
	return TransactionEvent{
		Id:           t.Id,
		UserId:       t.UserId,
		Type:         t.Type,
		Amount:       t.Amount.String(),
		Status:       t.Status,
		LockId:       t.LockId,
		BalanceAfter: t.BalanceAfter.String(),
		LockedAfter:  t.LockedAfter.String(),
		CreatedAt:    t.CreatedAt,
		CompletedAt:  t.CompletedAt,
	}
}

// Publisher delivers ledger events to downstream consumers.
type Publisher interface {
	PublishTransaction(ctx context.Context, transaction models.Transaction) error
	Close() error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishTransaction(context.Context, models.Transaction) error { return nil }
func (NopPublisher) Close() error { return nil }

// KafkaPublisher writes events to a Kafka topic keyed by user id, so each
// user's events stay ordered within a partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// New returns a Kafka publisher when brokers are configured and a
// NopPublisher otherwise.
func New(cfg models.KafkaConfig, logger *zap.Logger) (Publisher, error) {
	if !cfg.Enabled() {
		logger.Info("Kafka not configured, transaction events disabled")
		return NopPublisher{}, nil
	}

	config := sarama.NewConfig()
	config.ClientID = cfg.ClientId
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create kafka producer: %w", err)
	}

	logger.Info("Kafka publisher initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic))
	return NewKafkaPublisher(producer, cfg.Topic, logger), nil
}

func NewKafkaPublisher(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, logger: logger}
}

func (p *KafkaPublisher) PublishTransaction(ctx context.Context, transaction models.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(NewTransactionEvent(transaction))
	if err != nil {
		return fmt.Errorf("failed to encode transaction event: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(transaction.UserId),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("failed to publish transaction event: %w", err)
	}

	p.logger.Debug("Transaction event published",
		zap.String("transaction_id", transaction.Id),
		zap.String("topic", p.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
