package credits

import "errors"

var (
	// ErrAccountNotFound means no durable credit record exists for the user.
	ErrAccountNotFound = errors.New("credit account not found")

	// ErrInsufficientCredits means the balance cannot cover the requested deduction.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrStoreUnavailable means the durable store could not serve the request.
	// The condition is transient; callers may retry.
	ErrStoreUnavailable = errors.New("credit store unavailable")

	// ErrCacheUnavailable means the fast-path cache could not be reached.
	// Deductions fail closed on this error; reads fall back to the durable
	// store and never return it.
	ErrCacheUnavailable = errors.New("credit cache unavailable")

	// ErrLedgerWriteFailed means the durable deduction did not commit after the
	// cached balance was already decremented. The cache is rolled back before
	// this error is returned.
	ErrLedgerWriteFailed = errors.New("ledger write failed")
)
