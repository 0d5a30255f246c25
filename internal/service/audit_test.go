package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayo6706/bank-ledger/internal/domain"
	"github.com/ayo6706/bank-ledger/internal/ledger"
	"github.com/ayo6706/bank-ledger/internal/ledger/memstore"
	"github.com/ayo6706/bank-ledger/internal/models"
)

func TestLargeTransactionAlertThreshold(t *testing.T) {
	env := newTestEnvWithThreshold(t, decimal.NewFromInt(100))
	ctx := context.Background()
	acct := env.createAccount(t, "alice", "N-100", "0.00")

	_, err := env.accounts.Deposit(ctx, acct.ID, decimal.RequireFromString("99.99"), testOrigin)
	require.NoError(t, err)
	assert.Empty(t, env.accountLogs(t, acct.ID, domain.OpLargeTransactionAlert))

	rec, err := env.accounts.Deposit(ctx, acct.ID, decimal.RequireFromString("100.00"), testOrigin)
	require.NoError(t, err)

	alerts := env.accountLogs(t, acct.ID, domain.OpLargeTransactionAlert)
	require.Len(t, alerts, 1, "the threshold is inclusive")
	assert.Equal(t, domain.RecordSuccess, alerts[0].Status)
	assert.Equal(t, rec.ID, alerts[0].Details["transaction_id"])
	assert.Equal(t, "100.00", alerts[0].Details["amount"])
	assert.Equal(t, "deposit", alerts[0].Details["kind"])
}

func TestLargeTransferAlertsBothRecords(t *testing.T) {
	env := newTestEnvWithThreshold(t, decimal.NewFromInt(100))
	ctx := context.Background()
	a := env.createAccount(t, "alice", "N-100", "500.00")
	b := env.createAccount(t, "bob", "N-200", "0.00")

	res, err := env.transfers.Transfer(ctx, a.ID, b.ID, decimal.NewFromInt(150), testOrigin)
	require.NoError(t, err)

	// alice's 500.00 opening balance crossed the threshold as well, so
	// she carries that alert plus the transfer one, newest first
	outAlerts := env.accountLogs(t, a.ID, domain.OpLargeTransactionAlert)
	require.Len(t, outAlerts, 2)
	assert.Equal(t, res.Outgoing.ID, outAlerts[0].Details["transaction_id"])
	assert.Equal(t, "transfer_out", outAlerts[0].Details["kind"])
	assert.Equal(t, "deposit", outAlerts[1].Details["kind"])

	inAlerts := env.accountLogs(t, b.ID, domain.OpLargeTransactionAlert)
	require.Len(t, inAlerts, 1)
	assert.Equal(t, res.Incoming.ID, inAlerts[0].Details["transaction_id"])
	assert.Equal(t, "transfer_in", inAlerts[0].Details["kind"])
}

func TestLargeOpeningBalanceAlert(t *testing.T) {
	env := newTestEnvWithThreshold(t, decimal.NewFromInt(1000))
	ctx := context.Background()

	acct := env.createAccount(t, "whale", "N-900", "2500.00")

	alerts := env.accountLogs(t, acct.ID, domain.OpLargeTransactionAlert)
	require.Len(t, alerts, 1)
	assert.Equal(t, "2500.00", alerts[0].Details["amount"])

	recs, err := env.store.ListTransactions(ctx, acct.ID, 1, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, recs[0].ID, alerts[0].Details["transaction_id"])
}

// noOutOfBandStore refuses every append that is not part of a unit of work
// or a creation batch.
type noOutOfBandStore struct {
	ledger.Store
}

func (s noOutOfBandStore) AppendLog(ctx context.Context, entry *models.OperationLogEntry) error {
	return domain.WrapStorage("append log", errors.New("out-of-band appends disabled"))
}

func TestOpeningAlertCommitsWithTheCreation(t *testing.T) {
	mem := memstore.New()
	store := noOutOfBandStore{Store: mem}
	audit := NewRecorder(store, decimal.NewFromInt(1000))
	lifecycle := NewLifecycleService(store, audit)
	ctx := context.Background()

	acct, err := lifecycle.CreateAccount(ctx, "whale", "hash-whale", "N-900", decimal.RequireFromString("2500.00"), testOrigin)
	require.NoError(t, err, "the alert rides the creation batch, not the out-of-band path")

	alerts, err := mem.ListLogs(ctx, models.LogFilter{AccountID: &acct.ID, Operation: domain.OpLargeTransactionAlert})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "2500.00", alerts[0].Details["amount"])

	recs, err := mem.ListTransactions(ctx, acct.ID, 1, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, recs[0].ID, alerts[0].Details["transaction_id"])
}

func TestAlertSharesTheOperationCommit(t *testing.T) {
	env := newTestEnvWithThreshold(t, decimal.NewFromInt(100))
	ctx := context.Background()
	acct := env.createAccount(t, "alice", "N-100", "50.00")

	// a failing withdrawal above the threshold must not leave an alert:
	// the hook only fires on records that actually commit
	_, err := env.accounts.Withdraw(ctx, acct.ID, decimal.NewFromInt(500), testOrigin)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Empty(t, env.accountLogs(t, acct.ID, domain.OpLargeTransactionAlert))
}

func TestFailureEntriesCarryTheCause(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acct := env.createAccount(t, "alice", "N-100", "10.00")
	_, err := env.lifecycle.SetStatus(ctx, acct.ID, domain.StatusClosed, testOrigin)
	require.NoError(t, err)

	_, err = env.accounts.Withdraw(ctx, acct.ID, decimal.NewFromInt(5), testOrigin)
	require.ErrorIs(t, err, domain.ErrAccountNotActive)

	logs := env.accountLogs(t, acct.ID, domain.OpWithdraw)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.RecordFailed, logs[0].Status)
	assert.Contains(t, logs[0].Error, "closed")
	assert.Equal(t, testOrigin, logs[0].Origin)
}

// releaseTrackingStore counts out-of-band appends made while a unit of
// work opened through it still holds its rows.
type releaseTrackingStore struct {
	ledger.Store
	mu         sync.Mutex
	open       int
	heldDuring int
}

func (s *releaseTrackingStore) Begin(ctx context.Context, ids ...int64) (ledger.Tx, error) {
	tx, err := s.Store.Begin(ctx, ids...)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.open++
	s.mu.Unlock()
	return &releaseTrackingTx{Tx: tx, store: s}, nil
}

func (s *releaseTrackingStore) AppendLog(ctx context.Context, entry *models.OperationLogEntry) error {
	s.mu.Lock()
	if s.open > 0 {
		s.heldDuring++
	}
	s.mu.Unlock()
	return s.Store.AppendLog(ctx, entry)
}

type releaseTrackingTx struct {
	ledger.Tx
	store    *releaseTrackingStore
	finished bool
}

func (t *releaseTrackingTx) Commit(ctx context.Context) error {
	err := t.Tx.Commit(ctx)
	if err == nil {
		t.finish()
	}
	return err
}

func (t *releaseTrackingTx) Rollback(ctx context.Context) error {
	err := t.Tx.Rollback(ctx)
	if err == nil {
		t.finish()
	}
	return err
}

func (t *releaseTrackingTx) finish() {
	if t.finished {
		return
	}
	t.finished = true
	t.store.mu.Lock()
	t.store.open--
	t.store.mu.Unlock()
}

// a failed attempt is written outside its unit of work, and only once
// that unit has released its rows and its store connection
func TestFailureAppendsAfterRelease(t *testing.T) {
	mem := memstore.New()
	store := &releaseTrackingStore{Store: mem}
	audit := NewRecorder(store, decimal.Zero)
	accounts := NewAccountService(store, audit)
	transfers := NewTransferService(store, audit)
	lifecycle := NewLifecycleService(store, audit)
	ctx := context.Background()

	acct, err := lifecycle.CreateAccount(ctx, "alice", "hash-alice", "N-100", decimal.RequireFromString("10.00"), testOrigin)
	require.NoError(t, err)

	_, err = accounts.Withdraw(ctx, acct.ID, decimal.NewFromInt(50), testOrigin)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = accounts.Deposit(ctx, 999, decimal.NewFromInt(5), testOrigin)
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = transfers.Transfer(ctx, acct.ID, 998, decimal.NewFromInt(5), testOrigin)
	require.ErrorIs(t, err, domain.ErrTargetNotFound)

	_, err = lifecycle.SetStatus(ctx, 997, domain.StatusClosed, testOrigin)
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	assert.Zero(t, store.heldDuring, "no append ran while its unit of work held rows")
	assert.Zero(t, store.open, "every unit of work was released")

	logs, err := mem.ListLogs(ctx, models.LogFilter{})
	require.NoError(t, err)
	failed := 0
	for _, e := range logs {
		if e.Status == domain.RecordFailed {
			failed++
		}
	}
	assert.Equal(t, 4, failed, "each refusal left its failed-attempt entry")
}
