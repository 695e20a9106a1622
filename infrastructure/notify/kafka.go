// Package notify implements the audit/notification sink boundary. The Kafka
// sink is fire-and-forget from the core's perspective: publish failures are
// returned to the caller, which logs and continues.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/steiner385/MachShop-sub017/config"
	"github.com/steiner385/MachShop-sub017/domain/repository"
)

// KafkaNotifier publishes integration events to a Kafka topic keyed by the
// subject id, so events for one job or conflict stay ordered within a
// partition.
type KafkaNotifier struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaNotifier creates a notifier over the configured brokers.
func NewKafkaNotifier(cfg config.NotifyConfig, logger *zap.Logger) *KafkaNotifier {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}
	logger.Info("Kafka notifier initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
	)
	return &KafkaNotifier{writer: writer, logger: logger}
}

// Notify publishes one event.
func (n *KafkaNotifier) Notify(ctx context.Context, event repository.IntegrationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}
	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.SubjectID),
		Value: payload,
	})
	return errors.Wrap(err, "failed to publish event")
}

// Close flushes and closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
