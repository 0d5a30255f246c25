package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ayo6706/bank-ledger/internal/domain"
)

// Account is a ledger account row. CredentialHash is opaque to the core:
// it is stored and returned verbatim for the excluded auth layer.
type Account struct {
	ID             int64                `json:"id"`
	Username       string               `json:"username"`
	CredentialHash string               `json:"-"`
	NationalID     string               `json:"national_id"`
	Balance        decimal.Decimal      `json:"balance"`
	Status         domain.AccountStatus `json:"status"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// TransactionRecord is one append-only ledger movement. BalanceBefore and
// BalanceAfter are the account balance around this record; RelatedAccountID
// is set for transfers and points at the opposite side.
type TransactionRecord struct {
	ID               int64                  `json:"id"`
	AccountID        int64                  `json:"account_id"`
	Kind             domain.TransactionKind `json:"kind"`
	Amount           decimal.Decimal        `json:"amount"`
	BalanceBefore    decimal.Decimal        `json:"balance_before"`
	BalanceAfter     decimal.Decimal        `json:"balance_after"`
	RelatedAccountID *int64                 `json:"related_account_id,omitempty"`
	Timestamp        time.Time              `json:"timestamp"`
	Status           domain.RecordStatus    `json:"status"`
	Remark           string                 `json:"remark,omitempty"`
}

// Details is the opaque key/value payload attached to operation-log
// entries. Stored as JSONB in Postgres.
type Details map[string]any

// Clone returns a shallow copy so append-only entries cannot be mutated
// through a shared map.
func (d Details) Clone() Details {
	if d == nil {
		return nil
	}
	out := make(Details, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// OperationLogEntry is one append-only audit row. Exactly one entry is
// written per operation attempt that touched an account row, success or
// failure.
type OperationLogEntry struct {
	ID        int64                `json:"id"`
	AccountID int64                `json:"account_id"`
	Operation domain.OperationType `json:"operation"`
	Timestamp time.Time            `json:"timestamp"`
	Details   Details              `json:"details,omitempty"`
	Origin    string               `json:"origin,omitempty"`
	Status    domain.RecordStatus  `json:"status"`
	Error     string               `json:"error,omitempty"`
}

// LogFilter narrows operation-log listings. Zero fields match everything;
// From/To bound the entry timestamp inclusively.
type LogFilter struct {
	AccountID *int64
	Operation domain.OperationType
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// TransferResult carries both sides of a committed transfer.
type TransferResult struct {
	Outgoing *TransactionRecord `json:"outgoing"`
	Incoming *TransactionRecord `json:"incoming"`
}
