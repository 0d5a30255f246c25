// Package pgstore is the Postgres ledger.Store. Units of work map onto
// database transactions: Begin issues SELECT ... FOR UPDATE on the lock
// set in ascending id order, so row locks are taken the same way by every
// competing operation and opposing transfers cannot deadlock.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ayo6706/bank-ledger/internal/domain"
	"github.com/ayo6706/bank-ledger/internal/ledger"
	"github.com/ayo6706/bank-ledger/internal/models"
)

// Store implements ledger.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ ledger.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Numeric columns come back as text so decimals never pass through binary
// float conversion.
const accountColumns = `id, username, credential_hash, national_id, balance::text, status, created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var (
		a       models.Account
		balance string
		status  string
	)
	if err := row.Scan(&a.ID, &a.Username, &a.CredentialHash, &a.NationalID, &balance, &status, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	b, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("parse balance %q: %w", balance, err)
	}
	a.Balance = b
	a.Status = domain.AccountStatus(status)
	return &a, nil
}

// Begin opens a database transaction and locks the requested rows in
// ascending id order. Ids without a row do not fail Begin; Tx.Account
// reports them as domain.ErrAccountNotFound.
func (s *Store) Begin(ctx context.Context, ids ...int64) (ledger.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, domain.WrapStorage("begin unit of work", err)
	}
	t := &pgTx{
		tx:        tx,
		requested: make(map[int64]bool, len(ids)),
		staged:    make(map[int64]*models.Account, len(ids)),
	}
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	for _, id := range ledger.LockOrder(ids...) {
		t.requested[id] = true
		acct, err := scanAccount(tx.QueryRow(ctx, query, id))
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			tx.Rollback(ctx)
			return nil, domain.WrapStorage("lock account", err)
		}
		t.staged[id] = acct
	}
	return t, nil
}

type pgTx struct {
	tx        pgx.Tx
	requested map[int64]bool
	staged    map[int64]*models.Account
}

func (t *pgTx) Account(id int64) (*models.Account, error) {
	if !t.requested[id] {
		return nil, domain.WrapStorage("account read", fmt.Errorf("account %d is not part of this unit of work", id))
	}
	acct, ok := t.staged[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *acct
	return &cp, nil
}

func (t *pgTx) lockedRow(id int64) (*models.Account, error) {
	if !t.requested[id] {
		return nil, domain.WrapStorage("account write", fmt.Errorf("account %d is not part of this unit of work", id))
	}
	acct, ok := t.staged[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return acct, nil
}

func (t *pgTx) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal, at time.Time) error {
	acct, err := t.lockedRow(id)
	if err != nil {
		return err
	}
	query := `UPDATE accounts SET balance = $2, updated_at = $3 WHERE id = $1`
	if _, err := t.tx.Exec(ctx, query, id, balance.String(), at); err != nil {
		return domain.WrapStorage("update balance", err)
	}
	acct.Balance = balance
	acct.UpdatedAt = at
	return nil
}

func (t *pgTx) UpdateStatus(ctx context.Context, id int64, status domain.AccountStatus, at time.Time) error {
	acct, err := t.lockedRow(id)
	if err != nil {
		return err
	}
	query := `UPDATE accounts SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := t.tx.Exec(ctx, query, id, string(status), at); err != nil {
		return domain.WrapStorage("update status", err)
	}
	acct.Status = status
	acct.UpdatedAt = at
	return nil
}

const insertTransaction = `
	INSERT INTO transactions (account_id, kind, amount, balance_before, balance_after, related_account_id, occurred_at, status, remark)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING id
`

func (t *pgTx) AppendTransaction(ctx context.Context, rec *models.TransactionRecord) error {
	err := t.tx.QueryRow(ctx, insertTransaction,
		rec.AccountID,
		string(rec.Kind),
		rec.Amount.String(),
		rec.BalanceBefore.String(),
		rec.BalanceAfter.String(),
		rec.RelatedAccountID,
		rec.Timestamp,
		string(rec.Status),
		rec.Remark,
	).Scan(&rec.ID)
	if err != nil {
		return domain.WrapStorage("append transaction", err)
	}
	return nil
}

const insertLog = `
	INSERT INTO operation_log (account_id, operation, occurred_at, details, origin, status, error)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id
`

func insertLogArgs(entry *models.OperationLogEntry) ([]any, error) {
	details := []byte(`{}`)
	if len(entry.Details) > 0 {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return nil, fmt.Errorf("encode details: %w", err)
		}
	}
	return []any{
		entry.AccountID,
		string(entry.Operation),
		entry.Timestamp,
		details,
		entry.Origin,
		string(entry.Status),
		entry.Error,
	}, nil
}

func (t *pgTx) AppendLog(ctx context.Context, entry *models.OperationLogEntry) error {
	args, err := insertLogArgs(entry)
	if err != nil {
		return domain.WrapStorage("append log", err)
	}
	if err := t.tx.QueryRow(ctx, insertLog, args...).Scan(&entry.ID); err != nil {
		return domain.WrapStorage("append log", err)
	}
	return nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return domain.WrapStorage("commit unit of work", err)
	}
	return nil
}

func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err == nil || errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return domain.WrapStorage("rollback unit of work", err)
}

// CreateAccount inserts the account with its opening record, creation
// log entry and any hook-produced entry in one transaction. National-id
// collisions map the unique violation to domain.ErrDuplicateIdentity.
func (s *Store) CreateAccount(ctx context.Context, acct *models.Account, opening *models.TransactionRecord, entry *models.OperationLogEntry, hook ledger.CreateHook) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.WrapStorage("begin create account", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO accounts (username, credential_hash, national_id, balance, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err = tx.QueryRow(ctx, query,
		acct.Username,
		acct.CredentialHash,
		acct.NationalID,
		acct.Balance.String(),
		string(acct.Status),
		acct.CreatedAt,
		acct.UpdatedAt,
	).Scan(&acct.ID)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateIdentity
	}
	if err != nil {
		return domain.WrapStorage("insert account", err)
	}

	if opening != nil {
		opening.AccountID = acct.ID
		err = tx.QueryRow(ctx, insertTransaction,
			opening.AccountID,
			string(opening.Kind),
			opening.Amount.String(),
			opening.BalanceBefore.String(),
			opening.BalanceAfter.String(),
			opening.RelatedAccountID,
			opening.Timestamp,
			string(opening.Status),
			opening.Remark,
		).Scan(&opening.ID)
		if err != nil {
			return domain.WrapStorage("insert opening record", err)
		}
	}

	if entry != nil {
		entry.AccountID = acct.ID
		args, err := insertLogArgs(entry)
		if err != nil {
			return domain.WrapStorage("insert creation log", err)
		}
		if err := tx.QueryRow(ctx, insertLog, args...).Scan(&entry.ID); err != nil {
			return domain.WrapStorage("insert creation log", err)
		}
	}

	if opening != nil && hook != nil {
		if extra := hook(opening); extra != nil {
			extra.AccountID = acct.ID
			args, err := insertLogArgs(extra)
			if err != nil {
				return domain.WrapStorage("insert alert log", err)
			}
			if err := tx.QueryRow(ctx, insertLog, args...).Scan(&extra.ID); err != nil {
				return domain.WrapStorage("insert alert log", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.WrapStorage("commit create account", err)
	}
	return nil
}

// AppendLog writes one entry in its own implicit transaction, outside any
// unit of work, so the entry persists even when the operation that
// produced it rolled back.
func (s *Store) AppendLog(ctx context.Context, entry *models.OperationLogEntry) error {
	args, err := insertLogArgs(entry)
	if err != nil {
		return domain.WrapStorage("append log", err)
	}
	if err := s.pool.QueryRow(ctx, insertLog, args...).Scan(&entry.ID); err != nil {
		return domain.WrapStorage("append log", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	acct, err := scanAccount(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, domain.WrapStorage("get account", err)
	}
	return acct, nil
}

func (s *Store) ListAccounts(ctx context.Context, limit, offset int) ([]models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY id`
	var args []any
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, domain.WrapStorage("list accounts", err)
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, domain.WrapStorage("scan account", err)
		}
		out = append(out, *acct)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapStorage("list accounts", err)
	}
	return out, nil
}

func (s *Store) CountAccounts(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, domain.WrapStorage("count accounts", err)
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return domain.WrapStorage("ping", err)
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, accountID int64, limit, offset int) ([]models.TransactionRecord, error) {
	query := `
		SELECT id, account_id, kind, amount::text, balance_before::text, balance_after::text, related_account_id, occurred_at, status, remark
		FROM transactions
		WHERE account_id = $1
		ORDER BY id DESC
	`
	args := []any{accountID}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, domain.WrapStorage("list transactions", err)
	}
	defer rows.Close()

	var out []models.TransactionRecord
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, domain.WrapStorage("scan transaction", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapStorage("list transactions", err)
	}
	return out, nil
}

func scanTransaction(row pgx.Row) (*models.TransactionRecord, error) {
	var (
		rec           models.TransactionRecord
		kind, status  string
		amount        string
		before, after string
	)
	err := row.Scan(&rec.ID, &rec.AccountID, &kind, &amount, &before, &after, &rec.RelatedAccountID, &rec.Timestamp, &status, &rec.Remark)
	if err != nil {
		return nil, err
	}
	if rec.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if rec.BalanceBefore, err = decimal.NewFromString(before); err != nil {
		return nil, fmt.Errorf("parse balance_before %q: %w", before, err)
	}
	if rec.BalanceAfter, err = decimal.NewFromString(after); err != nil {
		return nil, fmt.Errorf("parse balance_after %q: %w", after, err)
	}
	rec.Kind = domain.TransactionKind(kind)
	rec.Status = domain.RecordStatus(status)
	return &rec, nil
}

func (s *Store) ListLogs(ctx context.Context, filter models.LogFilter) ([]models.OperationLogEntry, error) {
	query := `SELECT id, account_id, operation, occurred_at, details, origin, status, error FROM operation_log`
	var (
		conds []string
		args  []any
	)
	if filter.AccountID != nil {
		args = append(args, *filter.AccountID)
		conds = append(conds, fmt.Sprintf("account_id = $%d", len(args)))
	}
	if filter.Operation != "" {
		args = append(args, string(filter.Operation))
		conds = append(conds, fmt.Sprintf("operation = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conds = append(conds, fmt.Sprintf("occurred_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conds = append(conds, fmt.Sprintf("occurred_at <= $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, domain.WrapStorage("list logs", err)
	}
	defer rows.Close()

	var out []models.OperationLogEntry
	for rows.Next() {
		var (
			e         models.OperationLogEntry
			operation string
			status    string
			details   []byte
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &operation, &e.Timestamp, &details, &e.Origin, &status, &e.Error); err != nil {
			return nil, domain.WrapStorage("scan log", err)
		}
		if len(details) > 0 && string(details) != "null" {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, domain.WrapStorage("decode log details", err)
			}
		}
		e.Operation = domain.OperationType(operation)
		e.Status = domain.RecordStatus(status)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapStorage("list logs", err)
	}
	return out, nil
}
