package memstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ayo6706/bank-ledger/internal/domain"
	"github.com/ayo6706/bank-ledger/internal/ledger"
	"github.com/ayo6706/bank-ledger/internal/models"
)

const snapshotVersion = 1

// persistAccount mirrors models.Account for snapshots. The API model hides
// the credential hash from JSON, the snapshot must keep it.
type persistAccount struct {
	ID             int64                `json:"id"`
	Username       string               `json:"username"`
	CredentialHash string               `json:"credential_hash"`
	NationalID     string               `json:"national_id"`
	Balance        decimal.Decimal      `json:"balance"`
	Status         domain.AccountStatus `json:"status"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

type snapshot struct {
	Version      int                        `json:"version"`
	SavedAt      time.Time                  `json:"saved_at"`
	AccountSeq   int64                      `json:"account_seq"`
	TxSeq        int64                      `json:"transaction_seq"`
	LogSeq       int64                      `json:"log_seq"`
	Accounts     []persistAccount           `json:"accounts"`
	Transactions []models.TransactionRecord `json:"transactions"`
	Logs         []models.OperationLogEntry `json:"logs"`
}

// Save writes the whole store to path, via a temp file and rename so a
// crash mid-write never truncates the previous snapshot. It waits for
// in-flight units of work by taking every row lock in ascending order and
// holds the whole set until rows, tables and sequence counters are copied,
// so the snapshot is one consistent point in time. File IO happens after
// the locks are released.
func (s *Store) Save(path string) error {
	s.mu.Lock()

	ids := make([]int64, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	snap := snapshot{
		Version: snapshotVersion,
		SavedAt: time.Now().UTC(),
	}
	locked := make([]*row, 0, len(ids))
	for _, id := range ledger.LockOrder(ids...) {
		r := s.accounts[id]
		r.mu.Lock()
		locked = append(locked, r)
		a := r.acct
		snap.Accounts = append(snap.Accounts, persistAccount{
			ID:             a.ID,
			Username:       a.Username,
			CredentialHash: a.CredentialHash,
			NationalID:     a.NationalID,
			Balance:        a.Balance,
			Status:         a.Status,
			CreatedAt:      a.CreatedAt,
			UpdatedAt:      a.UpdatedAt,
		})
	}

	s.tableMu.RLock()
	snap.Transactions = append(snap.Transactions, s.transactions...)
	snap.Logs = append(snap.Logs, s.logs...)
	// Counters are read after the table copy, so no id in the copy can
	// exceed them.
	snap.AccountSeq = atomic.LoadInt64(&s.accountSeq)
	snap.TxSeq = atomic.LoadInt64(&s.txSeq)
	snap.LogSeq = atomic.LoadInt64(&s.logSeq)
	s.tableMu.RUnlock()

	for i := len(locked) - 1; i >= 0; i-- {
		locked[i].mu.Unlock()
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return domain.WrapStorage("snapshot encode", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return domain.WrapStorage("snapshot dir", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return domain.WrapStorage("snapshot write", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return domain.WrapStorage("snapshot rename", err)
	}
	return nil
}

// Load reads a snapshot written by Save. A missing file is not an error
// and yields an empty store, so first boot needs no special casing.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, domain.WrapStorage("snapshot read", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, domain.WrapStorage("snapshot decode", err)
	}
	if snap.Version != snapshotVersion {
		return nil, domain.WrapStorage("snapshot decode", fmt.Errorf("unsupported snapshot version %d", snap.Version))
	}

	s := New()
	s.accountSeq = snap.AccountSeq
	s.txSeq = snap.TxSeq
	s.logSeq = snap.LogSeq
	for _, p := range snap.Accounts {
		s.accounts[p.ID] = &row{acct: models.Account{
			ID:             p.ID,
			Username:       p.Username,
			CredentialHash: p.CredentialHash,
			NationalID:     p.NationalID,
			Balance:        p.Balance,
			Status:         p.Status,
			CreatedAt:      p.CreatedAt,
			UpdatedAt:      p.UpdatedAt,
		}}
		s.natIDs[p.NationalID] = p.ID
		if p.ID > s.accountSeq {
			s.accountSeq = p.ID
		}
	}
	s.transactions = append(s.transactions, snap.Transactions...)
	s.logs = append(s.logs, snap.Logs...)
	// Sequences restart at the snapshotted counters or the highest id on
	// record, whichever is larger, so no restored table row is ever shadowed
	// by a reissued id.
	for i := range s.transactions {
		if s.transactions[i].ID > s.txSeq {
			s.txSeq = s.transactions[i].ID
		}
	}
	for i := range s.logs {
		if s.logs[i].ID > s.logSeq {
			s.logSeq = s.logs[i].ID
		}
	}
	return s, nil
}
