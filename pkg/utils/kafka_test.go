package utils

import "testing"

func TestKafkaConfig_WithDefaults(t *testing.T) {
	cfg := KafkaConfig{}.withDefaults()
	if cfg.BatchTimeout <= 0 || cfg.WriteTimeout <= 0 {
		t.Fatalf("expected non-zero timeouts, got %+v", cfg)
	}
}

func TestOpenKafkaWriter_BindsTopicAndBrokers(t *testing.T) {
	w := OpenKafkaWriter(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "wallet-events"})
	defer w.Close()
	if w.Topic != "wallet-events" {
		t.Fatalf("expected topic to be bound, got %q", w.Topic)
	}
}
