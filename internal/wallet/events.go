package wallet

import (
	"encoding/json"
	"time"

	"walletledger/internal/money"
	"walletledger/internal/outbox"
)

// eventAmountString reformats a persisted 4-decimal amount string to the
// 2-decimal form event payloads use (spec §6).
func eventAmountString(s string) string {
	a, err := money.Parse(s)
	if err != nil {
		return s
	}
	return a.EventString()
}

// Event kinds published to the outbox (spec §6).
const (
	eventWalletCreated     = "wallet.created"
	eventFundsDeposited    = "funds.deposited"
	eventFundsWithdrawn    = "funds.withdrawn"
	eventTransferDebited   = "funds.transfer.debited"
	eventTransferCredited  = "funds.transfer.credited"
)

type walletCreatedPayload struct {
	EventType      string    `json:"event_type"`
	Timestamp      time.Time `json:"timestamp"`
	Correlation    string    `json:"correlation_id"`
	WalletID       string    `json:"wallet_id"`
	UserID         string    `json:"user_id"`
	Currency       string    `json:"currency"`
	InitialBalance string    `json:"initial_balance"`
}

type fundsMovedPayload struct {
	EventType       string    `json:"event_type"`
	Timestamp       time.Time `json:"timestamp"`
	Correlation     string    `json:"correlation_id"`
	WalletID        string    `json:"wallet_id"`
	TransactionID   string    `json:"transaction_id"`
	Amount          string    `json:"amount"`
	Currency        string    `json:"currency"`
	PreviousBalance string    `json:"previous_balance"`
	NewBalance      string    `json:"new_balance"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type transferLegPayload struct {
	EventType         string            `json:"event_type"`
	Timestamp         time.Time         `json:"timestamp"`
	Correlation       string            `json:"correlation_id"`
	SourceWalletID    string            `json:"source_wallet_id"`
	DestWalletID      string            `json:"destination_wallet_id"`
	TransferID        string            `json:"transfer_id"`
	TransactionID     string            `json:"transaction_id"`
	Amount            string            `json:"amount"`
	Currency          string            `json:"currency"`
	PreviousBalance   string            `json:"previous_balance"`
	NewBalance        string            `json:"new_balance"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

func buildWalletCreatedEvent(w Wallet, correlationID string, now time.Time) (outbox.Entry, error) {
	p := walletCreatedPayload{
		EventType:      eventWalletCreated,
		Timestamp:      now,
		Correlation:    correlationID,
		WalletID:       w.ID,
		UserID:         w.UserID,
		Currency:       string(w.Currency),
		InitialBalance: w.Balance,
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return outbox.Entry{}, err
	}
	return outbox.NewEntry(eventWalletCreated, w.ID, payload, now), nil
}

func buildFundsMovedEvent(eventType string, j JournalEntry, correlationID string, now time.Time) (outbox.Entry, error) {
	p := fundsMovedPayload{
		EventType:       eventType,
		Timestamp:       now,
		Correlation:     correlationID,
		WalletID:        j.WalletID,
		TransactionID:   j.ID,
		Amount:          eventAmountString(j.Amount),
		Currency:        string(j.Currency),
		PreviousBalance: eventAmountString(j.BalanceBefore),
		NewBalance:      eventAmountString(j.BalanceAfter),
		Metadata:        j.Metadata,
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return outbox.Entry{}, err
	}
	return outbox.NewEntry(eventType, j.ID, payload, now), nil
}

func buildTransferLegEvent(eventType string, leg JournalEntry, sourceWalletID, destWalletID, transferID, correlationID string, now time.Time) (outbox.Entry, error) {
	p := transferLegPayload{
		EventType:       eventType,
		Timestamp:       now,
		Correlation:     correlationID,
		SourceWalletID:  sourceWalletID,
		DestWalletID:    destWalletID,
		TransferID:      transferID,
		TransactionID:   leg.ID,
		Amount:          eventAmountString(leg.Amount),
		Currency:        string(leg.Currency),
		PreviousBalance: eventAmountString(leg.BalanceBefore),
		NewBalance:      eventAmountString(leg.BalanceAfter),
		Metadata:        leg.Metadata,
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return outbox.Entry{}, err
	}
	return outbox.NewEntry(eventType, transferID, payload, now), nil
}
