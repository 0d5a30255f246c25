package domain

import (
	"errors"
	"fmt"
)

// Domain errors returned by the ledger core. Validation failures detected
// before any row is locked are returned without an audit record; failures
// after acquisition are additionally recorded as failed operation-log
// entries before the unit of work rolls back.
var (
	// ErrInvalidAmount indicates a non-positive operation amount or a
	// negative opening balance.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrAccountNotFound indicates the account does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrSourceNotFound indicates the transfer source does not exist.
	ErrSourceNotFound = fmt.Errorf("source %w", ErrAccountNotFound)
	// ErrTargetNotFound indicates the transfer target does not exist.
	ErrTargetNotFound = fmt.Errorf("target %w", ErrAccountNotFound)
	// ErrAccountNotActive indicates the account status forbids the
	// operation. Matched by NotActiveError via errors.Is.
	ErrAccountNotActive = errors.New("account is not active")
	// ErrInsufficientBalance indicates the source balance cannot cover the
	// requested amount.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrSelfTransfer indicates source and target are the same account.
	ErrSelfTransfer = errors.New("cannot transfer to the same account")
	// ErrDuplicateIdentity indicates the national id is already registered.
	ErrDuplicateIdentity = errors.New("national id already registered")
	// ErrDeletionForbidden indicates an account deletion request, which is
	// never permitted.
	ErrDeletionForbidden = errors.New("account deletion is forbidden")
	// ErrInvalidStatus indicates an unknown account status value.
	ErrInvalidStatus = errors.New("invalid account status")
	// ErrStorage matches any StorageError via errors.Is.
	ErrStorage = errors.New("storage failure")
)

// NotActiveError reports the actual status of an account that refused an
// operation. Role distinguishes the two sides of a transfer.
type NotActiveError struct {
	AccountID int64
	Status    AccountStatus
	Role      string // "account", "source" or "target"
}

func (e *NotActiveError) Error() string {
	role := e.Role
	if role == "" {
		role = "account"
	}
	return fmt.Sprintf("%s %d is %s", role, e.AccountID, e.Status)
}

// Is lets callers classify the error with errors.Is(err, ErrAccountNotActive).
func (e *NotActiveError) Is(target error) bool {
	return target == ErrAccountNotActive
}

// StorageError wraps a lower-level store failure. The operation that hit it
// has been rolled back with no partial side effects.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("storage failure: %v", e.Err)
	}
	return fmt.Sprintf("storage failure in %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is lets callers classify the error with errors.Is(err, ErrStorage).
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// WrapStorage wraps err as a StorageError unless it already is one or is a
// domain validation error that must keep its identity.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsValidation reports whether err belongs to the caller-correctable part
// of the taxonomy (as opposed to storage failures).
func IsValidation(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrAccountNotActive),
		errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrSelfTransfer),
		errors.Is(err, ErrDuplicateIdentity),
		errors.Is(err, ErrDeletionForbidden),
		errors.Is(err, ErrInvalidStatus):
		return true
	}
	return false
}
