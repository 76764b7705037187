package kafka

import (
	"fmt"
	"sync"

	"github.com/IBM/sarama"

	"ledgercore/internal/config"
	"ledgercore/internal/pkg/logging"
)

// Producer wraps a sarama sync producer for raw-payload publishing. The
// outbox already marshals each event to JSON before appending it (spec
// §4.8), so Publish sends the bytes as-is rather than re-marshaling.
type Producer struct {
	producer sarama.SyncProducer
	mu       sync.RWMutex
	closed   bool
	log      *logging.Logger
}

func NewProducer(cfg config.KafkaConfig, log *logging.Logger) (*Producer, error) {
	saramaConfig, err := ToSaramaConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build sarama config: %w", err)
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	log.Info("kafka producer initialized", map[string]interface{}{
		"brokers":   cfg.Brokers,
		"client_id": cfg.ClientID,
	})

	return &Producer{producer: producer, log: log}, nil
}

// Publish sends payload (already-marshaled JSON) to topic, keyed by id.
func (p *Producer) Publish(topic, id string, payload []byte) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("producer is closed")
	}
	p.mu.RUnlock()

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(id),
		Value: sarama.ByteEncoder(payload),
	}

	_, _, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send message to kafka: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	p.log.Info("kafka producer closed", nil)
	return nil
}
