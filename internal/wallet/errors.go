package wallet

import "fmt"

// Kind is the closed error taxonomy the engine surfaces across its
// boundary (spec §7). Nothing from the store or driver leaks past it.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindUnauthorized       Kind = "unauthorized"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindInsufficientFunds  Kind = "insufficient_funds"
	KindCurrencyMismatch   Kind = "currency_mismatch"
	KindAmountExceedsLimit Kind = "amount_exceeds_limit"
	KindBalanceExceedsLimit Kind = "balance_exceeds_limit"
	KindInvalidTransfer    Kind = "invalid_transfer"
	KindInvalidState       Kind = "invalid_state"
	KindRateLimitExceeded  Kind = "rate_limit_exceeded"
	KindInternal           Kind = "internal"
)

// Error is the single sum type every public engine operation returns in
// its failure case (spec §9: "model the error taxonomy as a single sum
// type; never leak store-specific errors").
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func newErr(kind Kind, msg string, details map[string]any) *Error {
	return &Error{Kind: kind, Message: msg, Details: details}
}

func errValidation(msg string) *Error { return newErr(KindValidation, msg, nil) }

func errForbidden() *Error {
	return newErr(KindForbidden, "caller does not own this wallet", nil)
}

func errNotFound(walletID string) *Error {
	return newErr(KindNotFound, "wallet not found", map[string]any{"wallet_id": walletID})
}

func errConflict(msg string) *Error { return newErr(KindConflict, msg, nil) }

func errInsufficientFunds(requested, available string) *Error {
	return newErr(KindInsufficientFunds, "requested amount exceeds available balance", map[string]any{
		"requested": requested,
		"available": available,
	})
}

func errCurrencyMismatch() *Error {
	return newErr(KindCurrencyMismatch, "wallets do not share a currency", nil)
}

func errAmountExceedsLimit(amount, limit string) *Error {
	return newErr(KindAmountExceedsLimit, "amount exceeds the configured per-transaction limit", map[string]any{
		"amount": amount,
		"limit":  limit,
	})
}

func errBalanceExceedsLimit(newBalance, limit string) *Error {
	return newErr(KindBalanceExceedsLimit, "resulting balance exceeds the configured maximum", map[string]any{
		"new_balance": newBalance,
		"limit":       limit,
	})
}

func errInvalidTransfer(msg string) *Error { return newErr(KindInvalidTransfer, msg, nil) }

func errInvalidState(status WalletStatus) *Error {
	return newErr(KindInvalidState, "wallet is not active", map[string]any{"status": string(status)})
}

func errInternal(msg string) *Error { return newErr(KindInternal, msg, nil) }

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
