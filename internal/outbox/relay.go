package outbox

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

// Relay is the single long-lived background worker that drains the
// outbox into the event log at least once (spec §4.3).
type Relay struct {
	db        *sql.DB
	publisher Publisher
	logger    *slog.Logger

	pollInterval time.Duration
	batchSize    int
}

// NewRelay builds a Relay. pollInterval and batchSize come from
// OutboxConfig; both must be positive.
func NewRelay(db *sql.DB, publisher Publisher, logger *slog.Logger, pollInterval time.Duration, batchSize int) *Relay {
	return &Relay{
		db:           db,
		publisher:    publisher,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
	}
}

// Run polls on a fixed interval until ctx is cancelled, finishing any
// in-flight batch before returning (spec §4.3 shutdown, §5 stop order).
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopping")
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				continue
			}
			// The batch runs on a context that is not cancelled with ctx,
			// so a shutdown lets it publish and mark before Run returns.
			r.tick(context.WithoutCancel(ctx))
		}
	}
}

// tick publishes one batch. A per-entry failure only holds back the
// entries the publisher reports as undelivered; everything else in the
// batch is marked published, so one bad entry never blocks or
// redelivers entries that would otherwise have succeeded (spec §4.3:
// "a single failure does not block other entries in the batch"). A
// total failure of the Publish call (broker unreachable, etc.) leaves
// the whole batch unmarked for retry on the next tick.
func (r *Relay) tick(ctx context.Context) {
	entries, err := FetchUnpublishedBatch(ctx, r.db, r.batchSize)
	if err != nil {
		r.logger.Error("outbox relay: fetch batch failed", "error", err)
		return
	}
	if len(entries) == 0 {
		return
	}

	failedIDs, err := r.publisher.Publish(ctx, entries)
	if err != nil {
		r.logger.Error("outbox relay: publish failed, will retry next tick", "error", err, "batch_size", len(entries))
		return
	}

	failed := make(map[int64]struct{}, len(failedIDs))
	for _, id := range failedIDs {
		failed[id] = struct{}{}
	}

	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		if _, ok := failed[e.ID]; !ok {
			ids = append(ids, e.ID)
		}
	}

	if len(ids) > 0 {
		if err := MarkPublished(ctx, r.db, ids); err != nil {
			r.logger.Error("outbox relay: mark published failed", "error", err, "batch_size", len(ids))
			return
		}
	}

	if len(failedIDs) > 0 {
		r.logger.Error("outbox relay: some entries failed to publish, will retry next tick",
			"failed_count", len(failedIDs), "published_count", len(ids))
		return
	}
	r.logger.Info("outbox relay: published batch", "batch_size", len(ids))
}
