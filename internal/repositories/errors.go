package repositories

import "errors"

var (
	// ErrConflict means a compare-and-set update lost: the row was no longer
	// in the expected state. The caller re-reads and decides.
	ErrConflict = errors.New("concurrent update conflict")

	// ErrInsufficientFunds is a validation outcome of Reserve; nothing was
	// written.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrLedgerConflict means the requested operation contradicts entries
	// already recorded for the trade (e.g. release after settle).
	ErrLedgerConflict = errors.New("conflicting ledger entries for trade")
)
