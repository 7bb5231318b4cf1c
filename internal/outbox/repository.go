package outbox

import (
	"context"
	"database/sql"
)

// FetchUnpublishedBatch reads up to limit unpublished outbox rows in
// creation order (spec §4.1, §4.3 polling loop).
func FetchUnpublishedBatch(ctx context.Context, db *sql.DB, limit int) ([]Entry, error) {
	const q = `
SELECT id, event_type, aggregate_id, payload, published, created_at
FROM outbox_entries
WHERE published = false
ORDER BY id ASC
LIMIT $1
`
	rows, err := db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.EventType, &e.AggregateID, &e.Payload, &e.Published, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkPublished flips a set of rows to published=true in one bulk
// update (spec §4.1: "mark a set of outbox rows published by id in
// bulk"). Rows not present in ids are left untouched, so a partial
// batch failure only advances the entries that actually succeeded.
func MarkPublished(ctx context.Context, db *sql.DB, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	const q = `
UPDATE outbox_entries
SET published = true, published_at = now()
WHERE id = ANY($1)
`
	_, err := db.ExecContext(ctx, q, toInt64Array(ids))
	return err
}

func toInt64Array(ids []int64) []int64 {
	// pgx's stdlib driver accepts []int64 directly for = ANY($1); kept as
	// a named helper so the call site reads as an explicit conversion
	// rather than a bare slice.
	return ids
}
