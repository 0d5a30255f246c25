package service

import (
	"context"
	"time"

	"github.com/ayo6706/bank-ledger/internal/domain"
	"github.com/ayo6706/bank-ledger/internal/ledger"
	"github.com/ayo6706/bank-ledger/internal/models"
)

// QueryService is the read-only surface over the ledger.
type QueryService struct {
	store ledger.Store
}

func NewQueryService(store ledger.Store) *QueryService {
	return &QueryService{store: store}
}

// Account returns the committed account row.
func (s *QueryService) Account(ctx context.Context, id int64) (*models.Account, error) {
	return s.store.GetAccount(ctx, id)
}

// Accounts pages all accounts in ascending id order and returns the total
// count for the pager.
func (s *QueryService) Accounts(ctx context.Context, page, pageSize int) ([]models.Account, int64, error) {
	limit, offset := normalizePaging(page, pageSize)
	accounts, err := s.store.ListAccounts(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.CountAccounts(ctx)
	if err != nil {
		return nil, 0, err
	}
	return accounts, total, nil
}

// Transactions pages an account's ledger records, newest first. Unknown
// accounts yield domain.ErrAccountNotFound rather than an empty page.
func (s *QueryService) Transactions(ctx context.Context, accountID int64, page, pageSize int) ([]models.TransactionRecord, error) {
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	limit, offset := normalizePaging(page, pageSize)
	return s.store.ListTransactions(ctx, accountID, limit, offset)
}

// LogQuery narrows an operation-log listing.
type LogQuery struct {
	AccountID *int64
	Operation string
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}

// Logs pages operation-log entries, newest first.
func (s *QueryService) Logs(ctx context.Context, q LogQuery) ([]models.OperationLogEntry, error) {
	limit, offset := normalizePaging(q.Page, q.PageSize)
	filter := models.LogFilter{
		AccountID: q.AccountID,
		Operation: domain.OperationType(q.Operation),
		From:      q.From,
		To:        q.To,
		Limit:     limit,
		Offset:    offset,
	}
	return s.store.ListLogs(ctx, filter)
}
