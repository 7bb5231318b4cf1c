package outbox

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Publisher appends outbox payloads to the event log under a configured
// stream name (spec §4.3 "Publish"). Kept as an interface so the relay
// can be exercised against a fake in tests without a live broker.
//
// Publish reports per-entry outcome: failedIDs names the entries that
// were not delivered (the relay leaves these unmarked for retry on the
// next tick); every other entry in the batch is assumed delivered. err
// is reserved for a total failure of the call (e.g. the broker is
// unreachable), in which case failedIDs is ignored and nothing in the
// batch is marked published (spec §4.3: "a single failure does not
// block other entries in the batch").
type Publisher interface {
	Publish(ctx context.Context, entries []Entry) (failedIDs []int64, err error)
}

// KafkaWriter is the subset of *kafka.Writer the publisher needs,
// narrowed for substitution in tests.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher publishes outbox entries to a single Kafka topic via
// segmentio/kafka-go, grounded on the producer wiring in
// Kmassidik-Backend-Mercuria's wallet service.
type KafkaPublisher struct {
	writer KafkaWriter
	topic  string
}

// NewKafkaPublisher builds a KafkaPublisher writing to topic.
func NewKafkaPublisher(writer KafkaWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, topic: topic}
}

// Publish writes each entry as one Kafka message keyed by its aggregate
// id, in the order given (the relay passes entries in creation
// sequence). The aggregate id is the wallet id only for wallet.created;
// deposit and withdrawal events are keyed by their journal-entry id and
// transfer events by the transfer id, so the events of one wallet can
// land on different partitions. A partial batch failure is reported
// per-message via kafka.WriteErrors rather than failing the whole batch.
func (p *KafkaPublisher) Publish(ctx context.Context, entries []Entry) ([]int64, error) {
	msgs := make([]kafka.Message, len(entries))
	for i, e := range entries {
		msgs[i] = kafka.Message{
			Topic: p.topic,
			Key:   []byte(e.AggregateID),
			Value: e.Payload,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(e.EventType)},
			},
		}
	}

	err := p.writer.WriteMessages(ctx, msgs...)
	if err == nil {
		return nil, nil
	}

	if writeErrs, ok := err.(kafka.WriteErrors); ok {
		var failed []int64
		for i, werr := range writeErrs {
			if werr != nil {
				failed = append(failed, entries[i].ID)
			}
		}
		return failed, nil
	}

	// Not a per-message error: treat as total failure, nothing delivered.
	return nil, err
}
