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

// AccountService moves money on a single account.
type AccountService struct {
	store ledger.Store
	audit *Recorder
	now   func() time.Time
}

func NewAccountService(store ledger.Store, audit *Recorder) *AccountService {
	return &AccountService{store: store, audit: audit, now: time.Now}
}

// Deposit credits amount to the account and returns the committed record.
func (s *AccountService) Deposit(ctx context.Context, accountID int64, amount decimal.Decimal, origin string) (rec *models.TransactionRecord, err error) {
	defer func() { trackOperation(domain.OpDeposit, err) }()
	return s.move(ctx, accountID, amount, origin, domain.KindDeposit)
}

// Withdraw debits amount from the account and returns the committed
// record. The balance never goes below zero.
func (s *AccountService) Withdraw(ctx context.Context, accountID int64, amount decimal.Decimal, origin string) (rec *models.TransactionRecord, err error) {
	defer func() { trackOperation(domain.OpWithdraw, err) }()
	return s.move(ctx, accountID, amount, origin, domain.KindWithdraw)
}

func (s *AccountService) move(ctx context.Context, accountID int64, amount decimal.Decimal, origin string, kind domain.TransactionKind) (*models.TransactionRecord, error) {
	op := domain.OpDeposit
	if kind == domain.KindWithdraw {
		op = domain.OpWithdraw
	}

	// Argument failures are refused before the row is touched and leave
	// no trace in the operation log.
	if err := domain.CheckAmount(amount); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	details := models.Details{"amount": domain.FormatAmount(amount)}

	tx, err := s.store.Begin(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Failures from here on happened under the row acquisition: each one
	// is recorded as a failed attempt that survives the rollback. The
	// rollback runs before the append, so the out-of-band write never
	// waits on the row or the connection this unit of work holds.
	acct, err := tx.Account(accountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			tx.Rollback(ctx)
			s.audit.Failure(ctx, failedEntry(op, accountID, now, details, origin, err))
		}
		return nil, err
	}
	if acct.Status != domain.StatusActive {
		nerr := &domain.NotActiveError{AccountID: accountID, Status: acct.Status}
		tx.Rollback(ctx)
		s.audit.Failure(ctx, failedEntry(op, accountID, now, details, origin, nerr))
		return nil, nerr
	}

	var next decimal.Decimal
	switch kind {
	case domain.KindDeposit:
		next = acct.Balance.Add(amount)
	default:
		if acct.Balance.LessThan(amount) {
			details["balance"] = domain.FormatAmount(acct.Balance)
			tx.Rollback(ctx)
			s.audit.Failure(ctx, failedEntry(op, accountID, now, details, origin, domain.ErrInsufficientBalance))
			return nil, domain.ErrInsufficientBalance
		}
		next = acct.Balance.Sub(amount)
	}

	if err := tx.UpdateBalance(ctx, accountID, next, now); err != nil {
		return nil, err
	}

	rec := &models.TransactionRecord{
		AccountID:     accountID,
		Kind:          kind,
		Amount:        amount,
		BalanceBefore: acct.Balance,
		BalanceAfter:  next,
		Timestamp:     now,
		Status:        domain.RecordSuccess,
	}
	if err := s.audit.Transaction(ctx, tx, rec); err != nil {
		return nil, err
	}

	details["transaction_id"] = rec.ID
	if err := s.audit.Log(ctx, tx, &models.OperationLogEntry{
		AccountID: accountID,
		Operation: op,
		Timestamp: now,
		Details:   details,
		Origin:    origin,
		Status:    domain.RecordSuccess,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return rec, nil
}
