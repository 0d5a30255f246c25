package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ayo6706/bank-ledger/internal/domain"
	"github.com/ayo6706/bank-ledger/internal/ledger"
	"github.com/ayo6706/bank-ledger/internal/models"
	"github.com/ayo6706/bank-ledger/internal/observability"
)

// ReconciliationService verifies ledger integrity invariants. It only
// reads; drift is reported, never repaired.
type ReconciliationService struct {
	store ledger.Store
}

// NewReconciliationService creates a reconciliation service.
func NewReconciliationService(store ledger.Store) *ReconciliationService {
	return &ReconciliationService{store: store}
}

// Drift describes one account whose state diverged from its history.
type Drift struct {
	AccountID int64
	Balance   decimal.Decimal
	Expected  decimal.Decimal
	Reason    string
}

// ReconciliationReport summarizes one sweep.
type ReconciliationReport struct {
	Checked int
	Drifted []Drift
}

// Run checks every account: the balance must equal the signed sum of its
// successful records, and every successful record must advance its
// balance_before by exactly the signed amount.
func (s *ReconciliationService) Run(ctx context.Context) (*ReconciliationReport, error) {
	report := &ReconciliationReport{}
	const batch = 100
	for offset := 0; ; offset += batch {
		accounts, err := s.store.ListAccounts(ctx, batch, offset)
		if err != nil {
			return nil, fmt.Errorf("list accounts: %w", err)
		}
		for i := range accounts {
			drift, err := s.checkAccount(ctx, accounts[i].ID)
			if err != nil {
				return nil, err
			}
			report.Checked++
			if drift != nil {
				report.Drifted = append(report.Drifted, *drift)
				observability.IncrementReconciliationDrift()
				zap.L().Error("CRITICAL: ledger drift detected",
					zap.Int64("account_id", drift.AccountID),
					zap.String("balance", domain.FormatAmount(drift.Balance)),
					zap.String("expected", domain.FormatAmount(drift.Expected)),
					zap.String("reason", drift.Reason))
			}
		}
		if len(accounts) < batch {
			break
		}
	}

	if len(report.Drifted) == 0 {
		zap.L().Info("ledger reconciled", zap.Int("accounts", report.Checked))
	}
	return report, nil
}

func (s *ReconciliationService) checkAccount(ctx context.Context, id int64) (*Drift, error) {
	drift, err := s.compareOnce(ctx, id)
	if err != nil || drift == nil {
		return drift, err
	}
	// An operation may have committed between the balance read and the
	// record read. One re-read settles whether the drift is real.
	return s.compareOnce(ctx, id)
}

func (s *ReconciliationService) compareOnce(ctx context.Context, id int64) (*Drift, error) {
	acct, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reconcile account %d: %w", id, err)
	}
	recs, err := s.store.ListTransactions(ctx, id, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("reconcile records of %d: %w", id, err)
	}

	sum := decimal.Zero
	for i := range recs {
		rec := &recs[i]
		if rec.Status != domain.RecordSuccess {
			continue
		}
		signed := signedAmount(rec)
		if !rec.BalanceAfter.Equal(rec.BalanceBefore.Add(signed)) {
			return &Drift{
				AccountID: id,
				Balance:   rec.BalanceAfter,
				Expected:  rec.BalanceBefore.Add(signed),
				Reason:    fmt.Sprintf("record %d does not advance balance_before by its amount", rec.ID),
			}, nil
		}
		sum = sum.Add(signed)
	}

	if !acct.Balance.Equal(sum) {
		return &Drift{
			AccountID: id,
			Balance:   acct.Balance,
			Expected:  sum,
			Reason:    "balance does not match the signed sum of successful records",
		}, nil
	}
	return nil, nil
}

func signedAmount(rec *models.TransactionRecord) decimal.Decimal {
	switch rec.Kind {
	case domain.KindDeposit, domain.KindTransferIn:
		return rec.Amount
	default:
		return rec.Amount.Neg()
	}
}
