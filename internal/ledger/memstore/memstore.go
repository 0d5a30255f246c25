// Package memstore is an in-memory ledger.Store. Every account row carries
// its own mutex; units of work lock their row set in ascending id order,
// stage writes on private copies, and publish them only at commit. It backs
// tests and single-node deployments that opt out of Postgres.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ayo6706/bank-ledger/internal/domain"
	"github.com/ayo6706/bank-ledger/internal/ledger"
	"github.com/ayo6706/bank-ledger/internal/models"
)

// Store implements ledger.Store in memory.
type Store struct {
	mu      sync.RWMutex // guards accounts and natIDs, not row contents
	accounts map[int64]*row
	natIDs   map[string]int64

	tableMu      sync.RWMutex // guards the append-only tables
	transactions []models.TransactionRecord
	logs         []models.OperationLogEntry

	accountSeq int64
	txSeq      int64
	logSeq     int64
}

type row struct {
	mu   sync.Mutex
	acct models.Account
}

var _ ledger.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		accounts: make(map[int64]*row),
		natIDs:   make(map[string]int64),
	}
}

// Begin locks the listed rows in ascending id order. Ids without a row are
// noted as absent and reported by Tx.Account; rows are never deleted, so an
// id observed absent here stays absent for the lifetime of the unit.
func (s *Store) Begin(ctx context.Context, ids ...int64) (ledger.Tx, error) {
	order := ledger.LockOrder(ids...)
	t := &memTx{
		store:  s,
		staged: make(map[int64]*models.Account, len(order)),
		rows:   make(map[int64]*row, len(order)),
	}
	for _, id := range order {
		s.mu.RLock()
		r := s.accounts[id]
		s.mu.RUnlock()
		if r == nil {
			t.rows[id] = nil
			continue
		}
		r.mu.Lock()
		t.rows[id] = r
		t.locked = append(t.locked, r)
		cp := r.acct
		t.staged[id] = &cp
	}
	return t, nil
}

type memTx struct {
	store  *Store
	rows   map[int64]*row            // requested set; nil value = absent id
	locked []*row                    // acquisition order, for release
	staged map[int64]*models.Account // working copies of locked rows
	recs   []models.TransactionRecord
	logs   []models.OperationLogEntry
	done   bool
}

func (t *memTx) Account(id int64) (*models.Account, error) {
	r, requested := t.rows[id]
	if !requested {
		return nil, domain.WrapStorage("account read", fmt.Errorf("account %d is not part of this unit of work", id))
	}
	if r == nil {
		return nil, domain.ErrAccountNotFound
	}
	cp := *t.staged[id]
	return &cp, nil
}

func (t *memTx) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal, at time.Time) error {
	st, err := t.stagedRow(id)
	if err != nil {
		return err
	}
	st.Balance = balance
	st.UpdatedAt = at
	return nil
}

func (t *memTx) UpdateStatus(ctx context.Context, id int64, status domain.AccountStatus, at time.Time) error {
	st, err := t.stagedRow(id)
	if err != nil {
		return err
	}
	st.Status = status
	st.UpdatedAt = at
	return nil
}

func (t *memTx) stagedRow(id int64) (*models.Account, error) {
	r, requested := t.rows[id]
	if !requested {
		return nil, domain.WrapStorage("account write", fmt.Errorf("account %d is not part of this unit of work", id))
	}
	if r == nil {
		return nil, domain.ErrAccountNotFound
	}
	return t.staged[id], nil
}

func (t *memTx) AppendTransaction(ctx context.Context, rec *models.TransactionRecord) error {
	if t.done {
		return domain.WrapStorage("append transaction", fmt.Errorf("unit of work already finished"))
	}
	rec.ID = atomic.AddInt64(&t.store.txSeq, 1)
	t.recs = append(t.recs, *rec)
	return nil
}

func (t *memTx) AppendLog(ctx context.Context, entry *models.OperationLogEntry) error {
	if t.done {
		return domain.WrapStorage("append log", fmt.Errorf("unit of work already finished"))
	}
	entry.ID = atomic.AddInt64(&t.store.logSeq, 1)
	cp := *entry
	cp.Details = entry.Details.Clone()
	t.logs = append(t.logs, cp)
	return nil
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return domain.WrapStorage("commit", fmt.Errorf("unit of work already finished"))
	}
	for id, st := range t.staged {
		t.rows[id].acct = *st
	}
	t.store.tableMu.Lock()
	t.store.transactions = append(t.store.transactions, t.recs...)
	t.store.logs = append(t.store.logs, t.logs...)
	t.store.tableMu.Unlock()
	t.release()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.release()
	return nil
}

func (t *memTx) release() {
	for i := len(t.locked) - 1; i >= 0; i-- {
		t.locked[i].mu.Unlock()
	}
	t.locked = nil
	t.done = true
}

// CreateAccount inserts the account, its optional opening record, its
// creation log entry and any entry produced by hook as one atomic step.
// National-id collisions write nothing and fail with
// domain.ErrDuplicateIdentity.
func (s *Store) CreateAccount(ctx context.Context, acct *models.Account, opening *models.TransactionRecord, entry *models.OperationLogEntry, hook ledger.CreateHook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.natIDs[acct.NationalID]; dup {
		return domain.ErrDuplicateIdentity
	}
	acct.ID = atomic.AddInt64(&s.accountSeq, 1)
	s.accounts[acct.ID] = &row{acct: *acct}
	s.natIDs[acct.NationalID] = acct.ID

	s.tableMu.Lock()
	defer s.tableMu.Unlock()
	if opening != nil {
		opening.AccountID = acct.ID
		opening.ID = atomic.AddInt64(&s.txSeq, 1)
		s.transactions = append(s.transactions, *opening)
	}
	if entry != nil {
		entry.AccountID = acct.ID
		entry.ID = atomic.AddInt64(&s.logSeq, 1)
		cp := *entry
		cp.Details = entry.Details.Clone()
		s.logs = append(s.logs, cp)
	}
	if opening != nil && hook != nil {
		if extra := hook(opening); extra != nil {
			extra.AccountID = acct.ID
			extra.ID = atomic.AddInt64(&s.logSeq, 1)
			cp := *extra
			cp.Details = extra.Details.Clone()
			s.logs = append(s.logs, cp)
		}
	}
	return nil
}

// AppendLog durably appends one entry outside any unit of work.
func (s *Store) AppendLog(ctx context.Context, entry *models.OperationLogEntry) error {
	entry.ID = atomic.AddInt64(&s.logSeq, 1)
	cp := *entry
	cp.Details = entry.Details.Clone()
	s.tableMu.Lock()
	s.logs = append(s.logs, cp)
	s.tableMu.Unlock()
	return nil
}

// GetAccount returns the committed row. The read takes the row lock, so it
// serializes after any unit of work currently holding the account.
func (s *Store) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	s.mu.RLock()
	r := s.accounts[id]
	s.mu.RUnlock()
	if r == nil {
		return nil, domain.ErrAccountNotFound
	}
	r.mu.Lock()
	cp := r.acct
	r.mu.Unlock()
	return &cp, nil
}

// ListAccounts pages accounts in ascending id order.
func (s *Store) ListAccounts(ctx context.Context, limit, offset int) ([]models.Account, error) {
	s.mu.RLock()
	ids := make([]int64, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	ids = ledger.LockOrder(ids...)

	if offset > 0 {
		if offset >= len(ids) {
			return nil, nil
		}
		ids = ids[offset:]
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]models.Account, 0, len(ids))
	for _, id := range ids {
		acct, err := s.GetAccount(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, *acct)
	}
	return out, nil
}

// CountAccounts returns the number of accounts.
func (s *Store) CountAccounts(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.accounts)), nil
}

// Ping always succeeds: the store lives in process memory.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// ListTransactions pages an account's records, newest first. A limit of
// zero or less means no limit.
func (s *Store) ListTransactions(ctx context.Context, accountID int64, limit, offset int) ([]models.TransactionRecord, error) {
	s.tableMu.RLock()
	defer s.tableMu.RUnlock()
	var out []models.TransactionRecord
	skipped := 0
	for i := len(s.transactions) - 1; i >= 0; i-- {
		rec := s.transactions[i]
		if rec.AccountID != accountID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ListLogs pages operation-log entries matching filter, newest first.
func (s *Store) ListLogs(ctx context.Context, filter models.LogFilter) ([]models.OperationLogEntry, error) {
	s.tableMu.RLock()
	defer s.tableMu.RUnlock()
	var out []models.OperationLogEntry
	skipped := 0
	for i := len(s.logs) - 1; i >= 0; i-- {
		e := s.logs[i]
		if !matches(&e, filter) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		cp := e
		cp.Details = e.Details.Clone()
		out = append(out, cp)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func matches(e *models.OperationLogEntry, f models.LogFilter) bool {
	if f.AccountID != nil && e.AccountID != *f.AccountID {
		return false
	}
	if f.Operation != "" && e.Operation != f.Operation {
		return false
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	return true
}
