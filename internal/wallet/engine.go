package wallet

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"walletledger/internal/money"
	"walletledger/internal/outbox"
	"walletledger/pkg/utils"
)

// Limits holds the per-currency caps the engine enforces on every
// mutation (spec §6 configuration surface). A currency with no entry (or
// a zero Amount) is treated as uncapped.
type Limits struct {
	MaxTransactionAmount map[Currency]money.Amount
	MaxWalletBalance     map[Currency]money.Amount
}

func (l Limits) maxTransaction(c Currency) (money.Amount, bool) {
	a, ok := l.MaxTransactionAmount[c]
	return a, ok && a.IsPositive()
}

func (l Limits) maxBalance(c Currency) (money.Amount, bool) {
	a, ok := l.MaxWalletBalance[c]
	return a, ok && a.IsPositive()
}

// Engine is the transactional money engine (spec §4.2): the sole writer
// of wallet balances and journal entries, and the co-writer of outbox
// entries inside the same transaction.
type Engine struct {
	db     *sql.DB
	limits Limits
	clock  func() time.Time
}

// NewEngine builds an Engine bound to a connection pool and a fixed set
// of currency limits. clock is injectable for deterministic tests,
// mirroring the teacher's service clock field.
func NewEngine(db *sql.DB, limits Limits, clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{db: db, limits: limits, clock: clock}
}

// MutationRequest carries the inputs common to deposit and withdraw
// (spec §4.2.1, §4.2.2).
type MutationRequest struct {
	WalletID       string
	CallerUserID   string
	Amount         string
	IdempotencyKey string
	CorrelationID  string
	Metadata       map[string]string
}

// TransferRequest carries the inputs for a two-wallet transfer (spec
// §4.2.3).
type TransferRequest struct {
	SourceWalletID string
	DestWalletID   string
	CallerUserID   string
	Amount         string
	IdempotencyKey string
	CorrelationID  string
	Metadata       map[string]string
}

// CreateWallet opens a new (user, currency) wallet at a zero balance and
// co-commits a wallet.created outbox entry (spec §3, §6, scenario 1).
func (e *Engine) CreateWallet(ctx context.Context, userID string, currency Currency, correlationID string) (Wallet, error) {
	if userID == "" || len(userID) > 255 {
		return Wallet{}, errValidation("user id must be non-empty and at most 255 characters")
	}
	if !currency.Valid() {
		return Wallet{}, errValidation("unsupported currency")
	}

	now := e.clock().UTC()
	w := Wallet{
		ID:        uuid.NewString(),
		UserID:    userID,
		Currency:  currency,
		Balance:   money.Zero.String(),
		Status:    WalletStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}

	err := utils.WithTx(ctx, e.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		if err := insertWallet(ctx, tx, w); err != nil {
			return mapStoreError(err)
		}
		event, err := buildWalletCreatedEvent(w, correlationID, now)
		if err != nil {
			return errInternal(err.Error())
		}
		if err := insertOutboxEntry(ctx, tx, event); err != nil {
			return mapStoreError(err)
		}
		return nil
	})
	if err != nil {
		return Wallet{}, err
	}
	return w, nil
}

// Deposit credits a wallet (spec §4.2.1).
func (e *Engine) Deposit(ctx context.Context, req MutationRequest) (JournalEntry, error) {
	return e.mutateSingle(ctx, JournalTypeDeposit, eventFundsDeposited, req)
}

// Withdraw debits a wallet, failing with insufficient_funds if the
// balance would go negative (spec §4.2.2).
func (e *Engine) Withdraw(ctx context.Context, req MutationRequest) (JournalEntry, error) {
	return e.mutateSingle(ctx, JournalTypeWithdrawal, eventFundsWithdrawn, req)
}

func (e *Engine) mutateSingle(ctx context.Context, journalType JournalType, eventType string, req MutationRequest) (JournalEntry, error) {
	if req.WalletID == "" {
		return JournalEntry{}, errValidation("wallet id is required")
	}
	amt, err := money.ParsePositive(req.Amount)
	if err != nil {
		return JournalEntry{}, errValidation(err.Error())
	}

	if req.IdempotencyKey != "" {
		if existing, ok, err := findJournalByIdempotencyKey(ctx, e.db, req.IdempotencyKey); err != nil {
			return JournalEntry{}, errInternal(err.Error())
		} else if ok {
			return existing, nil
		}
	}

	now := e.clock().UTC()
	journalID := uuid.NewString()
	var out JournalEntry

	err = utils.WithTx(ctx, e.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		w, err := lockWallet(ctx, tx, req.WalletID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errNotFound(req.WalletID)
			}
			return errInternal(err.Error())
		}
		if w.UserID != req.CallerUserID {
			return errForbidden()
		}
		if w.Status != WalletStatusActive {
			return errInvalidState(w.Status)
		}

		if limit, capped := e.limits.maxTransaction(w.Currency); capped && amt.GreaterThan(limit) {
			return errAmountExceedsLimit(amt.String(), limit.String())
		}

		balanceBefore, err := money.Parse(w.Balance)
		if err != nil {
			return errInternal(err.Error())
		}

		var balanceAfter money.Amount
		switch journalType {
		case JournalTypeDeposit:
			balanceAfter = balanceBefore.Add(amt)
		case JournalTypeWithdrawal:
			if amt.GreaterThan(balanceBefore) {
				return errInsufficientFunds(amt.String(), balanceBefore.String())
			}
			balanceAfter = balanceBefore.Sub(amt)
		}

		if journalType == JournalTypeDeposit {
			if limit, capped := e.limits.maxBalance(w.Currency); capped && balanceAfter.GreaterThan(limit) {
				return errBalanceExceedsLimit(balanceAfter.String(), limit.String())
			}
		}

		if err := updateWalletBalance(ctx, tx, w.ID, balanceAfter.String(), now); err != nil {
			return mapStoreError(err)
		}

		entry := JournalEntry{
			ID:             journalID,
			WalletID:       w.ID,
			Type:           journalType,
			Amount:         amt.String(),
			Currency:       w.Currency,
			BalanceBefore:  balanceBefore.String(),
			BalanceAfter:   balanceAfter.String(),
			Status:         JournalStatusCompleted,
			IdempotencyKey: req.IdempotencyKey,
			Metadata:       req.Metadata,
			CreatedAt:      now,
		}
		if err := insertJournal(ctx, tx, entry); err != nil {
			return mapStoreError(err)
		}

		event, err := buildFundsMovedEvent(eventType, entry, req.CorrelationID, now)
		if err != nil {
			return errInternal(err.Error())
		}
		if err := insertOutboxEntry(ctx, tx, event); err != nil {
			return mapStoreError(err)
		}

		out = entry
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return out, nil
}

// Transfer moves funds between two wallets of the same currency in one
// transaction, producing a linked debit/credit journal pair (spec
// §4.2.3).
func (e *Engine) Transfer(ctx context.Context, req TransferRequest) (debit JournalEntry, credit JournalEntry, err error) {
	if req.SourceWalletID == "" || req.DestWalletID == "" {
		return JournalEntry{}, JournalEntry{}, errValidation("source and destination wallet ids are required")
	}
	if req.SourceWalletID == req.DestWalletID {
		return JournalEntry{}, JournalEntry{}, errInvalidTransfer("cannot transfer to the same wallet")
	}
	amt, perr := money.ParsePositive(req.Amount)
	if perr != nil {
		return JournalEntry{}, JournalEntry{}, errValidation(perr.Error())
	}

	if req.IdempotencyKey != "" {
		if existing, ok, ferr := findJournalByIdempotencyKey(ctx, e.db, req.IdempotencyKey); ferr != nil {
			return JournalEntry{}, JournalEntry{}, errInternal(ferr.Error())
		} else if ok {
			legs, ferr := findJournalByTransferID(ctx, e.db, existing.TransferID())
			if ferr != nil {
				return JournalEntry{}, JournalEntry{}, errInternal(ferr.Error())
			}
			return splitTransferLegs(legs)
		}
	}

	now := e.clock().UTC()
	transferID := uuid.NewString()
	debitID := uuid.NewString()
	creditID := uuid.NewString()

	err = utils.WithTx(ctx, e.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		wallets, lerr := lockWalletsOrdered(ctx, tx, []string{req.SourceWalletID, req.DestWalletID})
		if lerr != nil {
			return errInternal(lerr.Error())
		}
		src, ok := wallets[req.SourceWalletID]
		if !ok {
			return errNotFound(req.SourceWalletID)
		}
		dst, ok := wallets[req.DestWalletID]
		if !ok {
			return errNotFound(req.DestWalletID)
		}
		if src.UserID != req.CallerUserID {
			return errForbidden()
		}
		if src.Status != WalletStatusActive {
			return errInvalidState(src.Status)
		}
		if dst.Status != WalletStatusActive {
			return errInvalidState(dst.Status)
		}
		if src.Currency != dst.Currency {
			return errCurrencyMismatch()
		}

		if limit, capped := e.limits.maxTransaction(src.Currency); capped && amt.GreaterThan(limit) {
			return errAmountExceedsLimit(amt.String(), limit.String())
		}

		srcBefore, perr := money.Parse(src.Balance)
		if perr != nil {
			return errInternal(perr.Error())
		}
		if amt.GreaterThan(srcBefore) {
			return errInsufficientFunds(amt.String(), srcBefore.String())
		}
		srcAfter := srcBefore.Sub(amt)

		dstBefore, perr := money.Parse(dst.Balance)
		if perr != nil {
			return errInternal(perr.Error())
		}
		dstAfter := dstBefore.Add(amt)

		if limit, capped := e.limits.maxBalance(dst.Currency); capped && dstAfter.GreaterThan(limit) {
			return errBalanceExceedsLimit(dstAfter.String(), limit.String())
		}

		if err := updateWalletBalance(ctx, tx, src.ID, srcAfter.String(), now); err != nil {
			return mapStoreError(err)
		}
		if err := updateWalletBalance(ctx, tx, dst.ID, dstAfter.String(), now); err != nil {
			return mapStoreError(err)
		}

		meta := withTransferID(req.Metadata, transferID)

		debitEntry := JournalEntry{
			ID:              debitID,
			WalletID:        src.ID,
			RelatedWalletID: dst.ID,
			Type:            JournalTypeTransferDebit,
			Amount:          amt.String(),
			Currency:        src.Currency,
			BalanceBefore:   srcBefore.String(),
			BalanceAfter:    srcAfter.String(),
			Status:          JournalStatusCompleted,
			IdempotencyKey:  req.IdempotencyKey,
			Metadata:        meta,
			CreatedAt:       now,
		}
		creditEntry := JournalEntry{
			ID:              creditID,
			WalletID:        dst.ID,
			RelatedWalletID: src.ID,
			Type:            JournalTypeTransferCredit,
			Amount:          amt.String(),
			Currency:        dst.Currency,
			BalanceBefore:   dstBefore.String(),
			BalanceAfter:    dstAfter.String(),
			Status:          JournalStatusCompleted,
			Metadata:        meta,
			CreatedAt:       now,
		}

		if err := insertJournal(ctx, tx, debitEntry); err != nil {
			return mapStoreError(err)
		}
		if err := insertJournal(ctx, tx, creditEntry); err != nil {
			return mapStoreError(err)
		}

		debitEvent, eerr := buildTransferLegEvent(eventTransferDebited, debitEntry, src.ID, dst.ID, transferID, req.CorrelationID, now)
		if eerr != nil {
			return errInternal(eerr.Error())
		}
		creditEvent, eerr := buildTransferLegEvent(eventTransferCredited, creditEntry, src.ID, dst.ID, transferID, req.CorrelationID, now)
		if eerr != nil {
			return errInternal(eerr.Error())
		}
		if err := insertOutboxEntry(ctx, tx, debitEvent); err != nil {
			return mapStoreError(err)
		}
		if err := insertOutboxEntry(ctx, tx, creditEvent); err != nil {
			return mapStoreError(err)
		}

		debit = debitEntry
		credit = creditEntry
		return nil
	})
	if err != nil {
		return JournalEntry{}, JournalEntry{}, err
	}
	return debit, credit, nil
}

func splitTransferLegs(legs []JournalEntry) (JournalEntry, JournalEntry, error) {
	var debit, credit JournalEntry
	for _, leg := range legs {
		switch leg.Type {
		case JournalTypeTransferDebit:
			debit = leg
		case JournalTypeTransferCredit:
			credit = leg
		}
	}
	if debit.ID == "" || credit.ID == "" {
		return JournalEntry{}, JournalEntry{}, errInternal("transfer replay could not locate both legs")
	}
	return debit, credit, nil
}

// GetBalance returns a wallet's current balance for its owner (spec
// §4.2.4).
func (e *Engine) GetBalance(ctx context.Context, walletID, callerUserID string) (Wallet, time.Time, error) {
	w, err := getWallet(ctx, e.db, walletID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Wallet{}, time.Time{}, errNotFound(walletID)
		}
		return Wallet{}, time.Time{}, errInternal(err.Error())
	}
	if w.UserID != callerUserID {
		return Wallet{}, time.Time{}, errForbidden()
	}
	return w, e.clock().UTC(), nil
}

// History is a single paginated page of journal history (spec §4.2.4).
type History struct {
	Entries    []JournalEntry
	TotalItems int
	TotalPages int
}

// ListHistory returns a paginated, filtered journal read for a wallet's
// owner.
func (e *Engine) ListHistory(ctx context.Context, walletID, callerUserID string, f HistoryFilter) (History, error) {
	w, err := getWallet(ctx, e.db, walletID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return History{}, errNotFound(walletID)
		}
		return History{}, errInternal(err.Error())
	}
	if w.UserID != callerUserID {
		return History{}, errForbidden()
	}
	if f.Page < 1 {
		return History{}, errValidation("page must be >= 1")
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		return History{}, errValidation("page size must be between 1 and 100")
	}

	entries, total, err := listJournal(ctx, e.db, walletID, f)
	if err != nil {
		return History{}, errInternal(err.Error())
	}
	totalPages := int(math.Ceil(float64(total) / float64(f.PageSize)))
	return History{Entries: entries, TotalItems: total, TotalPages: totalPages}, nil
}
