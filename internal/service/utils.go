package service

import (
	"time"

	"github.com/ayo6706/bank-ledger/internal/domain"
	"github.com/ayo6706/bank-ledger/internal/models"
	"github.com/ayo6706/bank-ledger/internal/observability"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func normalizePaging(page, pageSize int) (limit, offset int) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if page <= 0 {
		page = 1
	}
	return pageSize, (page - 1) * pageSize
}

func trackOperation(op domain.OperationType, err error) {
	result := "success"
	if err != nil {
		result = "failed"
	}
	observability.IncrementOperation(string(op), result)
}

func failedEntry(op domain.OperationType, accountID int64, at time.Time, details models.Details, origin string, cause error) *models.OperationLogEntry {
	return &models.OperationLogEntry{
		AccountID: accountID,
		Operation: op,
		Timestamp: at,
		Details:   details,
		Origin:    origin,
		Status:    domain.RecordFailed,
		Error:     cause.Error(),
	}
}
