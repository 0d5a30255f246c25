// Package ledger defines the storage contract of the transactional core:
// exclusive read-for-update access to account rows, atomic multi-row
// commit, and append-only audit rows written in the same unit of work.
package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ayo6706/bank-ledger/internal/domain"
	"github.com/ayo6706/bank-ledger/internal/models"
)

// Tx is one unit of work over a fixed set of account rows. The rows were
// locked by Begin and stay locked until Commit or Rollback; no other unit
// of work can observe this one's writes before Commit.
//
// Append ids are assigned immediately, with sequence semantics: ids handed
// out by a unit that rolls back are burned, never reused.
type Tx interface {
	// Account returns the locked row for id, or domain.ErrAccountNotFound
	// if no such row existed at acquisition time. The returned value is a
	// snapshot reflecting staged writes within this unit of work.
	Account(id int64) (*models.Account, error)

	// UpdateBalance stages a new balance for a locked row.
	UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal, at time.Time) error

	// UpdateStatus stages a new status for a locked row.
	UpdateStatus(ctx context.Context, id int64, status domain.AccountStatus, at time.Time) error

	// AppendTransaction stages a ledger record and fills rec.ID.
	AppendTransaction(ctx context.Context, rec *models.TransactionRecord) error

	// AppendLog stages an operation-log entry and fills entry.ID.
	AppendLog(ctx context.Context, entry *models.OperationLogEntry) error

	// Commit atomically applies every staged write and releases the locks.
	Commit(ctx context.Context) error

	// Rollback discards staged writes and releases the locks. Safe to call
	// after Commit (no-op), which keeps the deferred-rollback idiom usable.
	Rollback(ctx context.Context) error
}

// CreateHook runs inside CreateAccount after the opening record has been
// assigned its id. A non-nil returned entry joins the same atomic batch.
type CreateHook func(opening *models.TransactionRecord) *models.OperationLogEntry

// Store is the durable ledger. Implementations must guarantee that two
// concurrent units of work touching the same account serialize on it, and
// that Begin acquires rows in ascending id order regardless of the order
// requested, so opposing lock sets cannot deadlock.
type Store interface {
	// Begin opens a unit of work holding exclusive access to every listed
	// account. Missing ids do not fail Begin; they surface later as
	// domain.ErrAccountNotFound from Tx.Account.
	Begin(ctx context.Context, ids ...int64) (Tx, error)

	// CreateAccount atomically inserts a new account together with its
	// optional opening transaction record and its creation log entry.
	// When hook is non-nil and an opening record was written, any entry it
	// returns is committed in the same batch; nothing of the batch survives
	// if any part fails. A national-id collision fails with
	// domain.ErrDuplicateIdentity and writes nothing. Fills acct.ID and the
	// ids of the audit rows.
	CreateAccount(ctx context.Context, acct *models.Account, opening *models.TransactionRecord, entry *models.OperationLogEntry, hook CreateHook) error

	// AppendLog durably appends a single operation-log entry outside any
	// unit of work. Used for failed attempts whose audit trail must
	// survive the rollback of the operation that produced them.
	AppendLog(ctx context.Context, entry *models.OperationLogEntry) error

	// GetAccount returns the current committed row.
	GetAccount(ctx context.Context, id int64) (*models.Account, error)

	// ListAccounts pages through accounts in ascending id order.
	ListAccounts(ctx context.Context, limit, offset int) ([]models.Account, error)

	// CountAccounts returns the total number of accounts.
	CountAccounts(ctx context.Context) (int64, error)

	// ListTransactions pages an account's ledger records, newest first.
	ListTransactions(ctx context.Context, accountID int64, limit, offset int) ([]models.TransactionRecord, error)

	// ListLogs pages operation-log entries matching filter, newest first.
	ListLogs(ctx context.Context, filter models.LogFilter) ([]models.OperationLogEntry, error)

	// Ping reports whether the store is reachable. Used by readiness checks.
	Ping(ctx context.Context) error
}

// LockOrder returns ids deduplicated and sorted ascending, the one
// acquisition order every implementation must use.
func LockOrder(ids ...int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
