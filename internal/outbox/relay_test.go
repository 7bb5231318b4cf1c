package outbox

import (
	"context"
	"database/sql/driver"
	"errors"
	"log/slog"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	published [][]Entry
	err       error
	failIDs   map[int64]struct{}
}

func (f *fakePublisher) Publish(_ context.Context, entries []Entry) ([]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.published = append(f.published, entries)

	var failed []int64
	for _, e := range entries {
		if _, ok := f.failIDs[e.ID]; ok {
			failed = append(failed, e.ID)
		}
	}
	return failed, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// int64SliceConverter lets sqlmock accept the []int64 argument that
// MarkPublished passes; sqlmock's default converter rejects any slice
// other than []byte.
type int64SliceConverter struct{}

func (int64SliceConverter) ConvertValue(v any) (driver.Value, error) {
	if ids, ok := v.([]int64); ok {
		return ids, nil
	}
	return driver.DefaultParameterConverter.ConvertValue(v)
}

func TestRelay_Tick_PublishesAndMarksBatch(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(int64SliceConverter{}))
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "event_type", "aggregate_id", "payload", "published", "created_at"}).
		AddRow(int64(1), "funds.deposited", "wallet-1", []byte(`{}`), false, now).
		AddRow(int64(2), "funds.deposited", "wallet-1", []byte(`{}`), false, now)

	mock.ExpectQuery("SELECT id, event_type, aggregate_id, payload, published, created_at").
		WillReturnRows(rows)
	mock.ExpectExec("UPDATE outbox_entries").
		WithArgs([]int64{1, 2}).
		WillReturnResult(sqlmock.NewResult(0, 2))

	pub := &fakePublisher{}
	relay := NewRelay(db, pub, discardLogger(), time.Millisecond, 10)
	relay.tick(context.Background())

	require.Len(t, pub.published, 1)
	require.Len(t, pub.published[0], 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRelay_Tick_PublishFailureLeavesBatchUnmarked(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "event_type", "aggregate_id", "payload", "published", "created_at"}).
		AddRow(int64(1), "funds.deposited", "wallet-1", []byte(`{}`), false, now)

	mock.ExpectQuery("SELECT id, event_type, aggregate_id, payload, published, created_at").
		WillReturnRows(rows)
	// No ExpectExec: a publish failure must never issue the mark-published update.

	pub := &fakePublisher{err: errors.New("broker unreachable")}
	relay := NewRelay(db, pub, discardLogger(), time.Millisecond, 10)
	relay.tick(context.Background())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRelay_Tick_PartialPublishFailureMarksOnlySucceededEntries(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(int64SliceConverter{}))
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "event_type", "aggregate_id", "payload", "published", "created_at"}).
		AddRow(int64(1), "funds.deposited", "wallet-1", []byte(`{}`), false, now).
		AddRow(int64(2), "funds.deposited", "wallet-2", []byte(`{}`), false, now).
		AddRow(int64(3), "funds.deposited", "wallet-3", []byte(`{}`), false, now)

	mock.ExpectQuery("SELECT id, event_type, aggregate_id, payload, published, created_at").
		WillReturnRows(rows)
	// Only the entries the publisher didn't report as failed get marked.
	mock.ExpectExec("UPDATE outbox_entries").
		WithArgs([]int64{1, 3}).
		WillReturnResult(sqlmock.NewResult(0, 2))

	pub := &fakePublisher{failIDs: map[int64]struct{}{2: {}}}
	relay := NewRelay(db, pub, discardLogger(), time.Millisecond, 10)
	relay.tick(context.Background())

	require.Len(t, pub.published, 1)
	require.Len(t, pub.published[0], 3)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRelay_Tick_EmptyBatchIsANoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "event_type", "aggregate_id", "payload", "published", "created_at"})
	mock.ExpectQuery("SELECT id, event_type, aggregate_id, payload, published, created_at").
		WillReturnRows(rows)

	pub := &fakePublisher{}
	relay := NewRelay(db, pub, discardLogger(), time.Millisecond, 10)
	relay.tick(context.Background())

	require.Empty(t, pub.published)
	require.NoError(t, mock.ExpectationsWereMet())
}
