// Package kafka publishes outbox rows to Kafka, adapted from the
// teacher's internal/infrastructure/messaging/kafka producer: a
// sync producer wrapping IBM/sarama, driven here by the outbox's
// poll-then-delete loop (spec §4.8) rather than an inline
// publish-on-request call.
package kafka

import (
	"fmt"

	"github.com/IBM/sarama"

	"ledgercore/internal/config"
)

// ToSaramaConfig builds a sarama.Config from the ledger's Kafka settings,
// grounded on the teacher's Config.ToSaramaConfig.
func ToSaramaConfig(cfg config.KafkaConfig) (*sarama.Config, error) {
	sc := sarama.NewConfig()

	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Idempotent = cfg.EnableIdempotence
	sc.Producer.Retry.Max = cfg.MaxRetries
	sc.Producer.Retry.Backoff = cfg.RetryBackoff

	if cfg.EnableIdempotence {
		sc.Net.MaxOpenRequests = 1
	} else {
		sc.Net.MaxOpenRequests = 10
	}

	switch cfg.RequiredAcks {
	case "all", "-1":
		sc.Producer.RequiredAcks = sarama.WaitForAll
	case "1":
		sc.Producer.RequiredAcks = sarama.WaitForLocal
	case "0":
		sc.Producer.RequiredAcks = sarama.NoResponse
	default:
		return nil, fmt.Errorf("invalid required acks value: %s", cfg.RequiredAcks)
	}

	switch cfg.CompressionType {
	case "none":
		sc.Producer.Compression = sarama.CompressionNone
	case "gzip":
		sc.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		sc.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		sc.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		sc.Producer.Compression = sarama.CompressionZSTD
	default:
		return nil, fmt.Errorf("invalid compression type: %s", cfg.CompressionType)
	}

	sc.ClientID = cfg.ClientID
	sc.Version = sarama.V3_0_0_0
	return sc, nil
}
