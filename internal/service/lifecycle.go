package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ayo6706/bank-ledger/internal/domain"
	"github.com/ayo6706/bank-ledger/internal/ledger"
	"github.com/ayo6706/bank-ledger/internal/models"
)

// LifecycleService creates accounts and changes their status. Accounts are
// never deleted.
type LifecycleService struct {
	store ledger.Store
	audit *Recorder
	now   func() time.Time
}

func NewLifecycleService(store ledger.Store, audit *Recorder) *LifecycleService {
	return &LifecycleService{store: store, audit: audit, now: time.Now}
}

// CreateAccount registers a new active account. A positive initial balance
// becomes an opening deposit record; the creation log entry is written in
// the same atomic step. Duplicate national ids write nothing at all.
func (s *LifecycleService) CreateAccount(ctx context.Context, username, credentialHash, nationalID string, initialBalance decimal.Decimal, origin string) (acct *models.Account, err error) {
	defer func() { trackOperation(domain.OpCreateUser, err) }()

	if err := domain.CheckOpeningBalance(initialBalance); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	acct = &models.Account{
		Username:       username,
		CredentialHash: credentialHash,
		NationalID:     nationalID,
		Balance:        initialBalance,
		Status:         domain.StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var opening *models.TransactionRecord
	if initialBalance.IsPositive() {
		opening = &models.TransactionRecord{
			Kind:          domain.KindDeposit,
			Amount:        initialBalance,
			BalanceBefore: decimal.Zero,
			BalanceAfter:  initialBalance,
			Timestamp:     now,
			Status:        domain.RecordSuccess,
			Remark:        "opening balance",
		}
	}
	entry := &models.OperationLogEntry{
		Operation: domain.OpCreateUser,
		Timestamp: now,
		Details: models.Details{
			"username":        username,
			"initial_balance": domain.FormatAmount(initialBalance),
		},
		Origin: origin,
		Status: domain.RecordSuccess,
	}

	// Opening deposits pass through the large-transaction hook too; the
	// alert commits with the creation batch.
	if err := s.store.CreateAccount(ctx, acct, opening, entry, s.audit.CreationAlert()); err != nil {
		return nil, err
	}
	return acct, nil
}

// SetStatus moves the account to newStatus. Setting the current status
// again commits without writing a log entry.
func (s *LifecycleService) SetStatus(ctx context.Context, accountID int64, newStatus domain.AccountStatus, origin string) (acct *models.Account, err error) {
	defer func() { trackOperation(domain.OpStatusChange, err) }()

	if !newStatus.Valid() {
		return nil, domain.ErrInvalidStatus
	}

	now := s.now().UTC()
	tx, err := s.store.Begin(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	cur, err := tx.Account(accountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			tx.Rollback(ctx)
			details := models.Details{"requested_status": string(newStatus)}
			s.audit.Failure(ctx, failedEntry(domain.OpStatusChange, accountID, now, details, origin, err))
		}
		return nil, err
	}

	if cur.Status == newStatus {
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return cur, nil
	}

	if err := tx.UpdateStatus(ctx, accountID, newStatus, now); err != nil {
		return nil, err
	}
	if err := s.audit.Log(ctx, tx, &models.OperationLogEntry{
		AccountID: accountID,
		Operation: domain.OpStatusChange,
		Timestamp: now,
		Details: models.Details{
			"old_status": string(cur.Status),
			"new_status": string(newStatus),
		},
		Origin: origin,
		Status: domain.RecordSuccess,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	cur.Status = newStatus
	cur.UpdatedAt = now
	return cur, nil
}

// DeleteAccount always refuses. The refusal happens before any store
// access; the row, its records and its log entries stay untouched.
func (s *LifecycleService) DeleteAccount(ctx context.Context, accountID int64, origin string) (err error) {
	defer func() { trackOperation(domain.OpDeleteAccount, err) }()
	return domain.ErrDeletionForbidden
}
