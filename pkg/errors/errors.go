// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// Conflict: the transaction hash was already processed.
	ErrDuplicateTransaction = errors.New("transaction already processed")

	// Invalid: the payment network rejected or could not validate the transaction.
	ErrInvalidTransaction = errors.New("transaction invalid or not found on network")

	// NotFound
	ErrSplitNotFound       = errors.New("split not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrSuggestionNotFound  = errors.New("no active settlement suggestion")
	ErrStepNotFound        = errors.New("settlement step not found")

	// Forbidden: caller is not the step's from-address.
	ErrStepForbidden = errors.New("step does not belong to caller")

	// BadRequest: verified transaction details don't match the expected
	// sender, receiver, or amount.
	ErrTransactionMismatch = errors.New("transaction details do not match settlement step")

	ErrInvalidAmount     = errors.New("amount must be greater than zero")
	ErrSharesMismatch    = errors.New("participant shares do not sum to split total")
	ErrDuplicateJoin     = errors.New("wallet already participates in split")
	ErrSuggestionExpired = errors.New("settlement suggestion has expired")

	// Retryable: the oracle could not be reached; resubmitting the same
	// transaction hash is safe because of the duplicate check.
	ErrOracleUnavailable = errors.New("payment network temporarily unavailable")
)

// IsRetryable reports whether the caller may safely resubmit the same request.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrOracleUnavailable)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
