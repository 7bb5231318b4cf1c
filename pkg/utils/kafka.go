package utils

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig controls the event-log writer. Kept config-driven like
// the Postgres and Redis bootstraps in this package.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	RequiredAcks kafka.RequiredAcks
}

func (c KafkaConfig) withDefaults() KafkaConfig {
	out := c
	if out.BatchTimeout <= 0 {
		out.BatchTimeout = 50 * time.Millisecond
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 5 * time.Second
	}
	if out.RequiredAcks == 0 {
		out.RequiredAcks = kafka.RequireAll
	}
	return out
}

// OpenKafkaWriter builds a *kafka.Writer bound to the event-log topic.
// The writer is safe for concurrent use by the outbox relay.
func OpenKafkaWriter(cfg KafkaConfig) *kafka.Writer {
	cfg = cfg.withDefaults()
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: cfg.RequiredAcks,
	}
}
