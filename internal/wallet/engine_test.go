package wallet

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

// These exercise Engine against a mocked driver (spec §8 testable
// properties 1, 3, 4, 6, 10). engine_unit_test.go covers the pure
// helpers; this file covers the transactional paths that need a
// database round trip to observe: locking, mutation, and idempotency
// replay.

var fixedNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func walletRows() []string {
	return []string{"id", "user_id", "currency", "balance", "status", "created_at", "updated_at", "version"}
}

func journalRows() []string {
	return []string{
		"id", "wallet_id", "related_wallet_id", "type", "amount", "currency",
		"balance_before", "balance_after", "status", "idempotency_key", "metadata", "created_at",
	}
}

func TestEngine_Deposit_CreditsWalletAndWritesJournalAndOutbox(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM wallets").
		WithArgs("wallet-1").
		WillReturnRows(sqlmock.NewRows(walletRows()).
			AddRow("wallet-1", "user-1", "USD", "10.0000", "active", fixedNow, fixedNow, 1))
	mock.ExpectExec("UPDATE wallets SET balance").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO journal_entries").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO outbox_entries").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	e := NewEngine(db, Limits{}, fixedClock)
	entry, err := e.Deposit(context.Background(), MutationRequest{
		WalletID:     "wallet-1",
		CallerUserID: "user-1",
		Amount:       "5.00",
	})
	require.NoError(t, err)
	require.Equal(t, "10.0000", entry.BalanceBefore)
	require.Equal(t, "15.0000", entry.BalanceAfter)
	require.Equal(t, JournalTypeDeposit, entry.Type)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Deposit_ForbiddenWhenCallerIsNotOwner(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM wallets").
		WithArgs("wallet-1").
		WillReturnRows(sqlmock.NewRows(walletRows()).
			AddRow("wallet-1", "someone-else", "USD", "10.0000", "active", fixedNow, fixedNow, 1))
	mock.ExpectRollback()

	e := NewEngine(db, Limits{}, fixedClock)
	_, err = e.Deposit(context.Background(), MutationRequest{
		WalletID:     "wallet-1",
		CallerUserID: "user-1",
		Amount:       "5.00",
	})
	require.True(t, IsKind(err, KindForbidden), "expected forbidden, got %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Withdraw_InsufficientFundsRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM wallets").
		WithArgs("wallet-1").
		WillReturnRows(sqlmock.NewRows(walletRows()).
			AddRow("wallet-1", "user-1", "USD", "5.0000", "active", fixedNow, fixedNow, 1))
	mock.ExpectRollback()

	e := NewEngine(db, Limits{}, fixedClock)
	_, err = e.Withdraw(context.Background(), MutationRequest{
		WalletID:     "wallet-1",
		CallerUserID: "user-1",
		Amount:       "10.00",
	})
	require.True(t, IsKind(err, KindInsufficientFunds), "expected insufficient_funds, got %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Transfer_ConservesTotalBetweenLegs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// "wallet-dst" sorts before "wallet-src"; the engine must lock in
	// ascending id order regardless of request field order (spec §9
	// deadlock-freedom requirement).
	mock.ExpectBegin()
	mock.ExpectQuery("FROM wallets").
		WithArgs("wallet-dst", "wallet-src").
		WillReturnRows(sqlmock.NewRows(walletRows()).
			AddRow("wallet-dst", "user-2", "USD", "50.0000", "active", fixedNow, fixedNow, 1).
			AddRow("wallet-src", "user-1", "USD", "100.0000", "active", fixedNow, fixedNow, 1))
	mock.ExpectExec("UPDATE wallets SET balance").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE wallets SET balance").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO journal_entries").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO journal_entries").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec("INSERT INTO outbox_entries").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO outbox_entries").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	e := NewEngine(db, Limits{}, fixedClock)
	debit, credit, err := e.Transfer(context.Background(), TransferRequest{
		SourceWalletID: "wallet-src",
		DestWalletID:   "wallet-dst",
		CallerUserID:   "user-1",
		Amount:         "30.00",
	})
	require.NoError(t, err)

	require.Equal(t, JournalTypeTransferDebit, debit.Type)
	require.Equal(t, JournalTypeTransferCredit, credit.Type)
	require.Equal(t, "100.0000", debit.BalanceBefore)
	require.Equal(t, "70.0000", debit.BalanceAfter)
	require.Equal(t, "50.0000", credit.BalanceBefore)
	require.Equal(t, "80.0000", credit.BalanceAfter)
	require.Equal(t, debit.Amount, credit.Amount)
	require.NotEmpty(t, debit.TransferID())
	require.Equal(t, debit.TransferID(), credit.TransferID())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Transfer_ForbiddenWhenCallerDoesNotOwnSourceWallet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM wallets").
		WithArgs("wallet-dst", "wallet-src").
		WillReturnRows(sqlmock.NewRows(walletRows()).
			AddRow("wallet-dst", "user-2", "USD", "50.0000", "active", fixedNow, fixedNow, 1).
			AddRow("wallet-src", "someone-else", "USD", "100.0000", "active", fixedNow, fixedNow, 1))
	mock.ExpectRollback()

	e := NewEngine(db, Limits{}, fixedClock)
	_, _, err = e.Transfer(context.Background(), TransferRequest{
		SourceWalletID: "wallet-src",
		DestWalletID:   "wallet-dst",
		CallerUserID:   "user-1",
		Amount:         "30.00",
	})
	require.True(t, IsKind(err, KindForbidden), "expected forbidden, got %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Deposit_IdempotentReplayReturnsExistingEntryWithoutWritingAgain(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// Fast-path idempotency lookup happens outside any transaction; no
	// Begin/Commit should be issued at all when a replay is found.
	mock.ExpectQuery("FROM journal_entries").
		WithArgs("dep-key-1").
		WillReturnRows(sqlmock.NewRows(journalRows()).
			AddRow("journal-1", "wallet-1", nil, "deposit", "5.0000", "USD",
				"10.0000", "15.0000", "completed", "dep-key-1", []byte(`{}`), fixedNow))

	e := NewEngine(db, Limits{}, fixedClock)
	entry, err := e.Deposit(context.Background(), MutationRequest{
		WalletID:       "wallet-1",
		CallerUserID:   "user-1",
		Amount:         "5.00",
		IdempotencyKey: "dep-key-1",
	})
	require.NoError(t, err)
	require.Equal(t, "journal-1", entry.ID)
	require.Equal(t, "15.0000", entry.BalanceAfter)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Transfer_IdempotentReplayReturnsSameLegsWithoutWritingAgain(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM journal_entries").
		WithArgs("xfer-key-1").
		WillReturnRows(sqlmock.NewRows(journalRows()).
			AddRow("debit-1", "wallet-src", "wallet-dst", "transfer_debit", "30.0000", "USD",
				"100.0000", "70.0000", "completed", "xfer-key-1", []byte(`{"transfer_id":"transfer-1"}`), fixedNow))
	mock.ExpectQuery("FROM journal_entries").
		WithArgs("transfer-1").
		WillReturnRows(sqlmock.NewRows(journalRows()).
			AddRow("debit-1", "wallet-src", "wallet-dst", "transfer_debit", "30.0000", "USD",
				"100.0000", "70.0000", "completed", "xfer-key-1", []byte(`{"transfer_id":"transfer-1"}`), fixedNow).
			AddRow("credit-1", "wallet-dst", "wallet-src", "transfer_credit", "30.0000", "USD",
				"50.0000", "80.0000", "completed", "", []byte(`{"transfer_id":"transfer-1"}`), fixedNow))

	e := NewEngine(db, Limits{}, fixedClock)
	debit, credit, err := e.Transfer(context.Background(), TransferRequest{
		SourceWalletID: "wallet-src",
		DestWalletID:   "wallet-dst",
		CallerUserID:   "user-1",
		Amount:         "30.00",
		IdempotencyKey: "xfer-key-1",
	})
	require.NoError(t, err)
	require.Equal(t, "debit-1", debit.ID)
	require.Equal(t, "credit-1", credit.ID)
	require.Equal(t, "transfer-1", debit.TransferID())
	require.NoError(t, mock.ExpectationsWereMet())
}
