// Package outbox implements the transactional outbox pattern (spec §4.3):
// money-moving writes co-commit an event row in the same database
// transaction as the journal write, and a separate relay drains
// unpublished rows to the event log at least once.
package outbox

import "time"

// Entry is a single outbox row, written inside the same transaction as
// the journal entry it describes.
type Entry struct {
	ID          int64     `db:"id"`
	EventType   string    `db:"event_type"`
	AggregateID string    `db:"aggregate_id"`
	Payload     []byte    `db:"payload"`
	Published   bool      `db:"published"`
	CreatedAt   time.Time `db:"created_at"`
}

// NewEntry builds an unpublished outbox row ready for insertion alongside
// a journal write.
func NewEntry(eventType, aggregateID string, payload []byte, now time.Time) Entry {
	return Entry{
		EventType:   eventType,
		AggregateID: aggregateID,
		Payload:     payload,
		Published:   false,
		CreatedAt:   now,
	}
}
