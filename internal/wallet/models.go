package wallet

import "time"

// Wallet owns funds for a single (user, currency) pair.
//
// Invariant: balance >= 0 always, enforced by the repository's CHECK
// constraint and re-validated by the engine before every mutation.
// Invariant: (user_id, currency) is globally unique.
type Wallet struct {
	ID        string       `json:"id" db:"id"`
	UserID    string       `json:"user_id" db:"user_id"`
	Currency  Currency     `json:"currency" db:"currency"`
	Balance   string       `json:"balance" db:"balance"` // decimal(19,4) string
	Status    WalletStatus `json:"status" db:"status"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`

	// Version is reserved for optimistic-locking schema compatibility.
	// The engine never reads or compares it (spec open question).
	Version int `json:"version" db:"version"`
}

// WalletStatus is the wallet lifecycle state (spec §4.5).
type WalletStatus string

const (
	WalletStatusActive WalletStatus = "active"
	WalletStatusFrozen WalletStatus = "frozen"
	WalletStatusClosed WalletStatus = "closed"
)

// Currency is restricted to the fixed 3-letter set spec.md names.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

func (c Currency) Valid() bool {
	switch c {
	case CurrencyUSD, CurrencyEUR, CurrencyGBP:
		return true
	default:
		return false
	}
}

// JournalType tags the kind of balance movement a journal entry records.
type JournalType string

const (
	JournalTypeDeposit        JournalType = "deposit"
	JournalTypeWithdrawal     JournalType = "withdrawal"
	JournalTypeTransferDebit  JournalType = "transfer_debit"
	JournalTypeTransferCredit JournalType = "transfer_credit"
)

// JournalStatus tracks the lifecycle of a single journal row. Every row
// this engine writes commits at `completed`; `pending`/`failed` exist for
// schema completeness (spec §3) but nothing here leaves a row pending
// past its own transaction.
type JournalStatus string

const (
	JournalStatusPending   JournalStatus = "pending"
	JournalStatusCompleted JournalStatus = "completed"
	JournalStatusFailed    JournalStatus = "failed"
)

// JournalEntry is an immutable record of one balance movement on one
// wallet. A transfer produces two, linked by TransferID in Metadata.
type JournalEntry struct {
	ID              string            `json:"id" db:"id"`
	WalletID        string            `json:"wallet_id" db:"wallet_id"`
	RelatedWalletID string            `json:"related_wallet_id,omitempty" db:"related_wallet_id"`
	Type            JournalType       `json:"type" db:"type"`
	Amount          string            `json:"amount" db:"amount"`
	Currency        Currency          `json:"currency" db:"currency"`
	BalanceBefore   string            `json:"balance_before" db:"balance_before"`
	BalanceAfter    string            `json:"balance_after" db:"balance_after"`
	Status          JournalStatus     `json:"status" db:"status"`
	IdempotencyKey  string            `json:"idempotency_key,omitempty" db:"idempotency_key"`
	Metadata        map[string]string `json:"metadata,omitempty" db:"metadata"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
}

// metaTransferID is the metadata key holding the synthesized transfer id
// shared by a transfer's debit and credit legs (spec §4.2.3; §9 open
// question: replay looks legs up via this key, not related_wallet_id).
const metaTransferID = "transfer_id"

// TransferID returns the transfer id carried in metadata, or "" if this
// entry is not a transfer leg.
func (j JournalEntry) TransferID() string {
	if j.Metadata == nil {
		return ""
	}
	return j.Metadata[metaTransferID]
}

func withTransferID(meta map[string]string, transferID string) map[string]string {
	out := make(map[string]string, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out[metaTransferID] = transferID
	return out
}
