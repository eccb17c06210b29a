package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"casacore/internal/core"
)

var ErrNotFound = errors.New("record not found")

// SQLiteRepository is the local source of truth. Every mutation commits the
// record change and its sync queue entry in the same SQL transaction, so a
// crash can never produce a mutation the mirror will not eventually see.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// enqueueSync adds a sync queue row inside the caller's transaction.
func enqueueSync(ctx context.Context, tx *sql.Tx, table, recordID, op string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sync payload: %w", err)
	}
	now := fmtTime(time.Now())
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_queue (table_name, record_id, operation, payload, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'pending', ?, ?)`,
		table, recordID, op, string(body), now, now)
	if err != nil {
		return fmt.Errorf("enqueue sync item: %w", err)
	}
	return nil
}

// CreateTransaction inserts the transaction and applies its balance effect,
// if any, to the referenced bank account. Both rows land on the sync queue.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertTransaction(ctx, tx, t); err != nil {
			return err
		}

		accountID, delta := core.BalanceEffect(t)
		if accountID != "" {
			account, err := adjustAccountBalance(ctx, tx, accountID, delta)
			if err != nil {
				return err
			}
			if err := enqueueSync(ctx, tx, TableBankAccounts, account.ID, SyncOpUpsert, accountRow(account)); err != nil {
				return err
			}
		}

		return enqueueSync(ctx, tx, TableTransactions, t.ID, SyncOpUpsert, transactionRow(t))
	})
}

// DeleteTransaction removes the transaction row. Account balances are left
// untouched: deleting a record never reverses its past balance effect.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return enqueueSync(ctx, tx, TableTransactions, id, SyncOpDelete, map[string]any{"id": id})
	})
}

// Withdraw applies a cash withdrawal atomically: the bank balance is
// debited, cash on hand is credited, and the audit transfer is recorded.
func (r *SQLiteRepository) Withdraw(ctx context.Context, w core.Withdrawal) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		account, err := adjustAccountBalance(ctx, tx, w.AccountID, w.Amount.Neg())
		if err != nil {
			return err
		}

		var cashStr string
		if err := tx.QueryRowContext(ctx, `SELECT cash_on_hand FROM ledger_state WHERE id = 1`).Scan(&cashStr); err != nil {
			return fmt.Errorf("read cash on hand: %w", err)
		}
		newCash := parseDecimal(cashStr).Add(w.Amount)
		if _, err := tx.ExecContext(ctx, `UPDATE ledger_state SET cash_on_hand = ? WHERE id = 1`, newCash.String()); err != nil {
			return fmt.Errorf("update cash on hand: %w", err)
		}

		if err := insertTransaction(ctx, tx, w.Audit); err != nil {
			return err
		}

		if err := enqueueSync(ctx, tx, TableBankAccounts, account.ID, SyncOpUpsert, accountRow(account)); err != nil {
			return err
		}
		return enqueueSync(ctx, tx, TableTransactions, w.Audit.ID, SyncOpUpsert, transactionRow(w.Audit))
	})
}

// ReconcileAccount overwrites the account balance with an externally
// verified figure and stamps the reconciliation date.
func (r *SQLiteRepository) ReconcileAccount(ctx context.Context, accountID string, balance decimal.Decimal, at time.Time) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE bank_accounts SET balance = ?, last_reconciled_date = ?, synced = 0 WHERE id = ?`,
			balance.String(), fmtTime(at), accountID)
		if err != nil {
			return fmt.Errorf("reconcile account: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return core.ErrUnknownAccount
		}
		account, err := getAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}
		return enqueueSync(ctx, tx, TableBankAccounts, accountID, SyncOpUpsert, accountRow(account))
	})
}

func (r *SQLiteRepository) CreateAccount(ctx context.Context, a core.BankAccount) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bank_accounts (id, name, balance, currency, last_reconciled_date, synced)
			VALUES (?, ?, ?, ?, ?, 0)`,
			a.ID, a.Name, a.Balance.String(), string(a.Currency), fmtTime(a.LastReconciledDate))
		if err != nil {
			return fmt.Errorf("insert account: %w", err)
		}
		return enqueueSync(ctx, tx, TableBankAccounts, a.ID, SyncOpUpsert, accountRow(a))
	})
}

func (r *SQLiteRepository) DeleteAccount(ctx context.Context, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM bank_accounts WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete account: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return enqueueSync(ctx, tx, TableBankAccounts, id, SyncOpDelete, map[string]any{"id": id})
	})
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, id string) (core.BankAccount, error) {
	return getAccount(ctx, r.db, id)
}

func (r *SQLiteRepository) ListAccounts(ctx context.Context) ([]core.BankAccount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, balance, currency, last_reconciled_date FROM bank_accounts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.BankAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, date, amount, currency, description, category, type, payment_method,
		       is_accrual, tax_amount, from_account_id, to_account_id
		FROM transactions ORDER BY date DESC`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, date, amount, currency, description, category, type, payment_method,
		       is_accrual, tax_amount, from_account_id, to_account_id
		FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ErrNotFound
	}
	return t, err
}

func (r *SQLiteRepository) CashOnHand(ctx context.Context) (decimal.Decimal, error) {
	var s string
	if err := r.db.QueryRowContext(ctx, `SELECT cash_on_hand FROM ledger_state WHERE id = 1`).Scan(&s); err != nil {
		return decimal.Zero, fmt.Errorf("read cash on hand: %w", err)
	}
	return parseDecimal(s), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t                           core.Transaction
		date, amount, currency, typ string
		method, taxAmount           string
	)
	err := row.Scan(&t.ID, &date, &amount, &currency, &t.Description, &t.Category,
		&typ, &method, &t.IsAccrual, &taxAmount, &t.FromAccountID, &t.ToAccountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Transaction{}, err
		}
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	t.Date = parseTime(date)
	t.Amount = parseDecimal(amount)
	t.Currency = core.Currency(currency)
	t.Type = core.TransactionType(typ)
	t.PaymentMethod = core.PaymentMethod(method)
	t.TaxAmount = parseDecimal(taxAmount)
	return t, nil
}

func scanAccount(row rowScanner) (core.BankAccount, error) {
	var (
		a                             core.BankAccount
		balance, currency, reconciled string
	)
	if err := row.Scan(&a.ID, &a.Name, &balance, &currency, &reconciled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.BankAccount{}, err
		}
		return core.BankAccount{}, fmt.Errorf("scan account: %w", err)
	}
	a.Balance = parseDecimal(balance)
	a.Currency = core.Currency(currency)
	a.LastReconciledDate = parseTime(reconciled)
	return a, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getAccount(ctx context.Context, q querier, id string) (core.BankAccount, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, name, balance, currency, last_reconciled_date FROM bank_accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.BankAccount{}, core.ErrUnknownAccount
	}
	return a, err
}

func insertTransaction(ctx context.Context, tx *sql.Tx, t core.Transaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, date, amount, currency, description, category, type,
		                          payment_method, is_accrual, tax_amount, from_account_id, to_account_id, synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		t.ID, fmtTime(t.Date), t.Amount.String(), string(t.Currency), t.Description, t.Category,
		string(t.Type), string(t.PaymentMethod), t.IsAccrual, t.TaxAmount.String(),
		t.FromAccountID, t.ToAccountID)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// adjustAccountBalance reads, shifts and writes back a balance inside the
// caller's transaction, returning the updated account.
func adjustAccountBalance(ctx context.Context, tx *sql.Tx, accountID string, delta decimal.Decimal) (core.BankAccount, error) {
	account, err := getAccount(ctx, tx, accountID)
	if err != nil {
		return core.BankAccount{}, err
	}
	account.Balance = account.Balance.Add(delta)
	if _, err := tx.ExecContext(ctx, `UPDATE bank_accounts SET balance = ?, synced = 0 WHERE id = ?`,
		account.Balance.String(), accountID); err != nil {
		return core.BankAccount{}, fmt.Errorf("update account balance: %w", err)
	}
	return account, nil
}
