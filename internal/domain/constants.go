package domain

import "github.com/shopspring/decimal"

// AccountStatus is the lifecycle state of an account. Accounts are never
// deleted; they only move between these states.
type AccountStatus string

const (
	StatusActive AccountStatus = "active"
	StatusLocked AccountStatus = "locked"
	StatusClosed AccountStatus = "closed"
)

// Valid reports whether s is one of the known account states.
func (s AccountStatus) Valid() bool {
	switch s {
	case StatusActive, StatusLocked, StatusClosed:
		return true
	}
	return false
}

// TransactionKind classifies a ledger movement.
type TransactionKind string

const (
	KindDeposit     TransactionKind = "deposit"
	KindWithdraw    TransactionKind = "withdraw"
	KindTransferIn  TransactionKind = "transfer_in"
	KindTransferOut TransactionKind = "transfer_out"
)

// RecordStatus marks an audit row as a successful or failed attempt.
type RecordStatus string

const (
	RecordSuccess RecordStatus = "success"
	RecordFailed  RecordStatus = "failed"
)

// OperationType tags operation-log entries. The set is wider than
// TransactionKind: lifecycle and alert events are logged too.
type OperationType string

const (
	OpDeposit               OperationType = "deposit"
	OpWithdraw              OperationType = "withdraw"
	OpTransferIn            OperationType = "transfer_in"
	OpTransferOut           OperationType = "transfer_out"
	OpCreateUser            OperationType = "create_user"
	OpStatusChange          OperationType = "status_change"
	OpDeleteAccount         OperationType = "delete_account"
	OpLargeTransactionAlert OperationType = "large_transaction_alert"
)

// DefaultAlertThreshold is the large-transaction alert cutoff used when the
// deployment does not configure one.
var DefaultAlertThreshold = decimal.NewFromInt(10_000)
