package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ayo6706/bank-ledger/internal/domain"
	"github.com/ayo6706/bank-ledger/internal/ledger"
	"github.com/ayo6706/bank-ledger/internal/models"
	"github.com/ayo6706/bank-ledger/internal/observability"
)

// Recorder writes the audit trail. Successful operations append their rows
// inside the owning unit of work; failed attempts are appended outside it
// so the trail survives the rollback.
type Recorder struct {
	store     ledger.Store
	threshold decimal.Decimal
}

// NewRecorder creates a recorder. A non-positive threshold falls back to
// domain.DefaultAlertThreshold.
func NewRecorder(store ledger.Store, threshold decimal.Decimal) *Recorder {
	if !threshold.IsPositive() {
		threshold = domain.DefaultAlertThreshold
	}
	return &Recorder{store: store, threshold: threshold}
}

// Transaction appends rec in the unit of work and runs the post-insert
// hook: amounts at or above the threshold get a large_transaction_alert
// entry referencing the new record, committed atomically with it.
func (r *Recorder) Transaction(ctx context.Context, tx ledger.Tx, rec *models.TransactionRecord) error {
	if err := tx.AppendTransaction(ctx, rec); err != nil {
		return err
	}
	if rec.Amount.LessThan(r.threshold) {
		return nil
	}
	if err := tx.AppendLog(ctx, r.alertFor(rec)); err != nil {
		return err
	}
	r.noteAlert(rec)
	return nil
}

// Log appends an operation-log entry in the unit of work.
func (r *Recorder) Log(ctx context.Context, tx ledger.Tx, entry *models.OperationLogEntry) error {
	return tx.AppendLog(ctx, entry)
}

// Failure durably records a failed attempt outside any unit of work. The
// caller's rollback does not erase it. Append errors are logged, not
// returned: the domain error that caused the failure must not be masked.
func (r *Recorder) Failure(ctx context.Context, entry *models.OperationLogEntry) {
	if err := r.store.AppendLog(ctx, entry); err != nil {
		zap.L().Error("failed to record failed attempt",
			zap.Int64("account_id", entry.AccountID),
			zap.String("operation", string(entry.Operation)),
			zap.Error(err))
	}
}

// CreationAlert returns the large-transaction hook for store-level account
// creation, where no unit of work is available. The store runs it once the
// opening record has its id; the alert it returns lands in the creation
// batch itself, so account, opening record and alert commit or fail as one.
func (r *Recorder) CreationAlert() ledger.CreateHook {
	return func(opening *models.TransactionRecord) *models.OperationLogEntry {
		if opening == nil || opening.Amount.LessThan(r.threshold) {
			return nil
		}
		entry := r.alertFor(opening)
		r.noteAlert(opening)
		return entry
	}
}

func (r *Recorder) alertFor(rec *models.TransactionRecord) *models.OperationLogEntry {
	return &models.OperationLogEntry{
		AccountID: rec.AccountID,
		Operation: domain.OpLargeTransactionAlert,
		Timestamp: rec.Timestamp,
		Details: models.Details{
			"transaction_id": rec.ID,
			"kind":           string(rec.Kind),
			"amount":         domain.FormatAmount(rec.Amount),
			"threshold":      domain.FormatAmount(r.threshold),
		},
		Status: domain.RecordSuccess,
	}
}

func (r *Recorder) noteAlert(rec *models.TransactionRecord) {
	observability.IncrementLargeTransactionAlert()
	zap.L().Warn("large transaction recorded",
		zap.Int64("account_id", rec.AccountID),
		zap.Int64("transaction_id", rec.ID),
		zap.String("amount", domain.FormatAmount(rec.Amount)))
}
