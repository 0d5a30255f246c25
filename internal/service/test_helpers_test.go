package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ayo6706/bank-ledger/internal/domain"
	"github.com/ayo6706/bank-ledger/internal/ledger/memstore"
	"github.com/ayo6706/bank-ledger/internal/models"
)

const testOrigin = "10.1.2.3"

var testClock = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	store     *memstore.Store
	audit     *Recorder
	accounts  *AccountService
	transfers *TransferService
	lifecycle *LifecycleService
	query     *QueryService
	reconcile *ReconciliationService
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithThreshold(t, decimal.Zero)
}

func newTestEnvWithThreshold(t *testing.T, threshold decimal.Decimal) *testEnv {
	t.Helper()
	store := memstore.New()
	audit := NewRecorder(store, threshold)
	env := &testEnv{
		store:     store,
		audit:     audit,
		accounts:  NewAccountService(store, audit),
		transfers: NewTransferService(store, audit),
		lifecycle: NewLifecycleService(store, audit),
		query:     NewQueryService(store),
		reconcile: NewReconciliationService(store),
	}
	env.accounts.now = func() time.Time { return testClock }
	env.transfers.now = func() time.Time { return testClock }
	env.lifecycle.now = func() time.Time { return testClock }
	return env
}

func (e *testEnv) createAccount(t *testing.T, username, nationalID, balance string) *models.Account {
	t.Helper()
	acct, err := e.lifecycle.CreateAccount(context.Background(), username, "hash-"+username, nationalID, decimal.RequireFromString(balance), testOrigin)
	require.NoError(t, err)
	return acct
}

func (e *testEnv) countLogs(t *testing.T) int {
	t.Helper()
	logs, err := e.store.ListLogs(context.Background(), models.LogFilter{})
	require.NoError(t, err)
	return len(logs)
}

func (e *testEnv) accountLogs(t *testing.T, accountID int64, op domain.OperationType) []models.OperationLogEntry {
	t.Helper()
	logs, err := e.store.ListLogs(context.Background(), models.LogFilter{AccountID: &accountID, Operation: op})
	require.NoError(t, err)
	return logs
}

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, got.Equal(decimal.RequireFromString(want)), "want %s, got %s", want, got)
}
