package wallet

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"walletledger/internal/outbox"
)

// querier is satisfied by both *sql.DB and *sql.Tx, following the
// teacher's free-function repository style generalized to work both
// inside and outside a transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Postgres constraint names, matched against pgconn.PgError.ConstraintName
// to translate store-level violations into the engine's error taxonomy
// (spec §9: "replace exception-based error returns with a sum type").
const (
	constraintWalletUserCurrency  = "wallets_user_id_currency_key"
	constraintJournalIdempotency  = "journal_entries_idempotency_key_key"
	constraintWalletBalanceNonNeg = "wallets_balance_check"
)

func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			switch pgErr.ConstraintName {
			case constraintWalletUserCurrency:
				return errConflict("a wallet already exists for this (user, currency) pair")
			case constraintJournalIdempotency:
				return errConflict("idempotency key already used by another journal entry")
			}
			return errConflict("unique constraint violated")
		case "23514": // check_violation
			if pgErr.ConstraintName == constraintWalletBalanceNonNeg {
				return errInsufficientFunds("", "")
			}
			return errValidation("check constraint violated")
		}
	}
	return errInternal(err.Error())
}

func scanWallet(row *sql.Row) (Wallet, error) {
	var w Wallet
	if err := row.Scan(
		&w.ID, &w.UserID, &w.Currency, &w.Balance, &w.Status,
		&w.CreatedAt, &w.UpdatedAt, &w.Version,
	); err != nil {
		return Wallet{}, err
	}
	return w, nil
}

func lockWallet(ctx context.Context, tx *sql.Tx, walletID string) (Wallet, error) {
	// Lock the wallet row to serialize concurrent money operations against it.
	const q = `
SELECT id, user_id, currency, balance, status, created_at, updated_at, version
FROM wallets
WHERE id = $1
FOR UPDATE
`
	return scanWallet(tx.QueryRowContext(ctx, q, walletID))
}

// lockWalletsOrdered locks a set of wallet rows in ascending id order, the
// deterministic sort spec §9 requires before a multi-row SELECT ... FOR
// UPDATE so two concurrent transfers never deadlock against each other.
func lockWalletsOrdered(ctx context.Context, tx *sql.Tx, ids []string) (map[string]Wallet, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	placeholders := make([]string, len(sorted))
	args := make([]any, len(sorted))
	for i, id := range sorted {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	q := fmt.Sprintf(`
SELECT id, user_id, currency, balance, status, created_at, updated_at, version
FROM wallets
WHERE id IN (%s)
ORDER BY id
FOR UPDATE
`, strings.Join(placeholders, ","))

	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Wallet, len(sorted))
	for rows.Next() {
		var w Wallet
		if err := rows.Scan(&w.ID, &w.UserID, &w.Currency, &w.Balance, &w.Status,
			&w.CreatedAt, &w.UpdatedAt, &w.Version); err != nil {
			return nil, err
		}
		out[w.ID] = w
	}
	return out, rows.Err()
}

func getWallet(ctx context.Context, q querier, walletID string) (Wallet, error) {
	const query = `
SELECT id, user_id, currency, balance, status, created_at, updated_at, version
FROM wallets
WHERE id = $1
`
	return scanWallet(q.QueryRowContext(ctx, query, walletID))
}

func insertWallet(ctx context.Context, tx *sql.Tx, w Wallet) error {
	const q = `
INSERT INTO wallets (id, user_id, currency, balance, status, created_at, updated_at, version)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`
	_, err := tx.ExecContext(ctx, q, w.ID, w.UserID, w.Currency, w.Balance, w.Status,
		w.CreatedAt, w.UpdatedAt, w.Version)
	return err
}

func updateWalletBalance(ctx context.Context, tx *sql.Tx, walletID, newBalance string, now time.Time) error {
	const q = `
UPDATE wallets SET balance = $2, updated_at = $3
WHERE id = $1
`
	_, err := tx.ExecContext(ctx, q, walletID, newBalance, now)
	return err
}

func insertJournal(ctx context.Context, tx *sql.Tx, j JournalEntry) error {
	const q = `
INSERT INTO journal_entries (
  id, wallet_id, related_wallet_id, type, amount, currency,
  balance_before, balance_after, status, idempotency_key, metadata, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
`
	var relatedWalletID *string
	if j.RelatedWalletID != "" {
		relatedWalletID = &j.RelatedWalletID
	}
	var idempotencyKey *string
	if j.IdempotencyKey != "" {
		idempotencyKey = &j.IdempotencyKey
	}
	metaBytes, err := encodeMetadata(j.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, q,
		j.ID, j.WalletID, relatedWalletID, j.Type, j.Amount, j.Currency,
		j.BalanceBefore, j.BalanceAfter, j.Status, idempotencyKey, metaBytes, j.CreatedAt,
	)
	return err
}

func insertOutboxEntry(ctx context.Context, tx *sql.Tx, e outbox.Entry) error {
	const q = `
INSERT INTO outbox_entries (event_type, aggregate_id, payload, published, created_at)
VALUES ($1,$2,$3,false,$4)
`
	_, err := tx.ExecContext(ctx, q, e.EventType, e.AggregateID, e.Payload, e.CreatedAt)
	return err
}

func findJournalByIdempotencyKey(ctx context.Context, q querier, key string) (JournalEntry, bool, error) {
	const query = `
SELECT id, wallet_id, related_wallet_id, type, amount, currency,
       balance_before, balance_after, status, idempotency_key, metadata, created_at
FROM journal_entries
WHERE idempotency_key = $1
LIMIT 1
`
	j, err := scanJournalRow(q.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return JournalEntry{}, false, nil
	}
	if err != nil {
		return JournalEntry{}, false, err
	}
	return j, true, nil
}

// findJournalByTransferID returns both legs of a transfer, looked up by
// the transfer_id carried in metadata rather than related_wallet_id
// (spec §9 open-question decision, see DESIGN.md).
func findJournalByTransferID(ctx context.Context, q querier, transferID string) ([]JournalEntry, error) {
	const query = `
SELECT id, wallet_id, related_wallet_id, type, amount, currency,
       balance_before, balance_after, status, idempotency_key, metadata, created_at
FROM journal_entries
WHERE metadata->>'transfer_id' = $1
ORDER BY type
`
	rows, err := q.QueryContext(ctx, query, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		j, err := scanJournalRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// HistoryFilter narrows a journal history read (spec §4.2 read operations).
type HistoryFilter struct {
	Type     JournalType // exact match, empty = any
	From, To time.Time   // half-open [From, To); zero value = unbounded
	Page     int         // 1-indexed
	PageSize int         // capped by the caller before reaching here
}

func listJournal(ctx context.Context, q querier, walletID string, f HistoryFilter) ([]JournalEntry, int, error) {
	var where strings.Builder
	where.WriteString("WHERE wallet_id = $1")
	args := []any{walletID}

	if f.Type != "" {
		args = append(args, f.Type)
		fmt.Fprintf(&where, " AND type = $%d", len(args))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		fmt.Fprintf(&where, " AND created_at >= $%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		fmt.Fprintf(&where, " AND created_at < $%d", len(args))
	}

	var total int
	countQ := "SELECT count(*) FROM journal_entries " + where.String()
	if err := q.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	pageArgs := append(append([]any(nil), args...), f.PageSize, (f.Page-1)*f.PageSize)
	listQ := fmt.Sprintf(`
SELECT id, wallet_id, related_wallet_id, type, amount, currency,
       balance_before, balance_after, status, idempotency_key, metadata, created_at
FROM journal_entries
%s
ORDER BY created_at DESC, id DESC
LIMIT $%d OFFSET $%d
`, where.String(), len(pageArgs)-1, len(pageArgs))

	rows, err := q.QueryContext(ctx, listQ, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]JournalEntry, 0, f.PageSize)
	for rows.Next() {
		j, err := scanJournalRow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, j)
	}
	return out, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJournalRow(row rowScanner) (JournalEntry, error) {
	var j JournalEntry
	var relatedWalletID, idempotencyKey sql.NullString
	var metadata []byte
	if err := row.Scan(
		&j.ID, &j.WalletID, &relatedWalletID, &j.Type, &j.Amount, &j.Currency,
		&j.BalanceBefore, &j.BalanceAfter, &j.Status, &idempotencyKey, &metadata, &j.CreatedAt,
	); err != nil {
		return JournalEntry{}, err
	}
	j.RelatedWalletID = relatedWalletID.String
	j.IdempotencyKey = idempotencyKey.String
	j.Metadata = decodeMetadata(metadata)
	return j, nil
}

func encodeMetadata(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func decodeMetadata(raw []byte) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
