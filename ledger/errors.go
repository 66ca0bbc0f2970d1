package ledger

import "errors"

var (
	// ErrInvalidTransaction rejects a transaction that fails the construction
	// rules or the validity check at submission time.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrUnsignedTransaction rejects a non-system transaction with an empty
	// signature.
	ErrUnsignedTransaction = errors.New("transaction is not signed")

	// ErrAuthorization is returned when a signer's identity does not match
	// the transaction sender.
	ErrAuthorization = errors.New("signing key does not match sender")

	// ErrNoPendingTransactions is returned when mining is requested with an
	// empty pending pool.
	ErrNoPendingTransactions = errors.New("no pending transactions to mine")
)
