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

// TransferService moves money between two accounts in one atomic unit.
type TransferService struct {
	store ledger.Store
	audit *Recorder
	now   func() time.Time
}

func NewTransferService(store ledger.Store, audit *Recorder) *TransferService {
	return &TransferService{store: store, audit: audit, now: time.Now}
}

// Transfer debits fromID and credits toID with amount. Either both sides
// commit or neither does; a reader can never observe the debit without the
// credit. Failures after lock acquisition are logged on the source side.
func (s *TransferService) Transfer(ctx context.Context, fromID, toID int64, amount decimal.Decimal, origin string) (res *models.TransferResult, err error) {
	defer func() { trackOperation(domain.OpTransferOut, err) }()

	// 1. Argument checks, refused before any lock and never logged.
	if err := domain.CheckAmount(amount); err != nil {
		return nil, err
	}
	if fromID == toID {
		return nil, domain.ErrSelfTransfer
	}

	now := s.now().UTC()

	// 2. Lock both rows in ascending id order regardless of direction.
	tx, err := s.store.Begin(ctx, fromID, toID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// The failed attempt is logged on the source side, with the source
	// balance at attempt time when the row was readable. The rollback runs
	// before the append, so the out-of-band write never waits on the rows
	// or the connection this unit of work holds.
	fail := func(cause error, acct *models.Account) error {
		tx.Rollback(ctx)
		details := models.Details{
			"amount":        domain.FormatAmount(amount),
			"to_account_id": toID,
		}
		if acct != nil {
			details["balance"] = domain.FormatAmount(acct.Balance)
		}
		s.audit.Failure(ctx, failedEntry(domain.OpTransferOut, fromID, now, details, origin, cause))
		return cause
	}

	// 3. Validate both sides under the locks.
	src, err := tx.Account(fromID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, fail(domain.ErrSourceNotFound, nil)
		}
		return nil, err
	}
	dst, err := tx.Account(toID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, fail(domain.ErrTargetNotFound, src)
		}
		return nil, err
	}
	if src.Status != domain.StatusActive {
		return nil, fail(&domain.NotActiveError{AccountID: fromID, Status: src.Status, Role: "source"}, src)
	}
	if dst.Status != domain.StatusActive {
		return nil, fail(&domain.NotActiveError{AccountID: toID, Status: dst.Status, Role: "target"}, src)
	}
	if src.Balance.LessThan(amount) {
		return nil, fail(domain.ErrInsufficientBalance, src)
	}

	// 4. Stage both balance movements.
	srcNext := src.Balance.Sub(amount)
	dstNext := dst.Balance.Add(amount)
	if err := tx.UpdateBalance(ctx, fromID, srcNext, now); err != nil {
		return nil, err
	}
	if err := tx.UpdateBalance(ctx, toID, dstNext, now); err != nil {
		return nil, err
	}

	// 5. Append both ledger records, each pointing at the opposite side.
	outRec := &models.TransactionRecord{
		AccountID:        fromID,
		Kind:             domain.KindTransferOut,
		Amount:           amount,
		BalanceBefore:    src.Balance,
		BalanceAfter:     srcNext,
		RelatedAccountID: &toID,
		Timestamp:        now,
		Status:           domain.RecordSuccess,
	}
	if err := s.audit.Transaction(ctx, tx, outRec); err != nil {
		return nil, err
	}
	inRec := &models.TransactionRecord{
		AccountID:        toID,
		Kind:             domain.KindTransferIn,
		Amount:           amount,
		BalanceBefore:    dst.Balance,
		BalanceAfter:     dstNext,
		RelatedAccountID: &fromID,
		Timestamp:        now,
		Status:           domain.RecordSuccess,
	}
	if err := s.audit.Transaction(ctx, tx, inRec); err != nil {
		return nil, err
	}

	// 6. Log both sides and commit once.
	if err := s.audit.Log(ctx, tx, &models.OperationLogEntry{
		AccountID: fromID,
		Operation: domain.OpTransferOut,
		Timestamp: now,
		Details: models.Details{
			"amount":         domain.FormatAmount(amount),
			"to_account_id":  toID,
			"transaction_id": outRec.ID,
		},
		Origin: origin,
		Status: domain.RecordSuccess,
	}); err != nil {
		return nil, err
	}
	if err := s.audit.Log(ctx, tx, &models.OperationLogEntry{
		AccountID: toID,
		Operation: domain.OpTransferIn,
		Timestamp: now,
		Details: models.Details{
			"amount":          domain.FormatAmount(amount),
			"from_account_id": fromID,
			"transaction_id":  inRec.ID,
		},
		Origin: origin,
		Status: domain.RecordSuccess,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &models.TransferResult{Outgoing: outRec, Incoming: inRec}, nil
}
