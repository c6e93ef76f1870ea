package accounting

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arunika-erp/arunika-erp/internal/platform/db"
)

// Repository persists opening balances in PostgreSQL. The accounting module
// never touches the stock ledger, so its transactions carry no ledger wrapper.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("accounting repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (t *txRepository) YearHasApproved(ctx context.Context, year int) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM initial_balances WHERE year=$1 AND status='approved')`, year).Scan(&exists)
	return exists, err
}

func (t *txRepository) MissingAccounts(ctx context.Context, ids []int64) ([]int64, error) {
	rows, err := t.tx.Query(ctx, `SELECT candidate FROM unnest($1::bigint[]) AS candidate
WHERE NOT EXISTS (SELECT 1 FROM chart_of_accounts WHERE id=candidate AND deleted_at IS NULL)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	missing := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		missing = append(missing, id)
	}
	return missing, rows.Err()
}

func (t *txRepository) DeleteDraftYear(ctx context.Context, year int) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM initial_balances WHERE year=$1 AND status='draft'`, year)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txRepository) InsertBalances(ctx context.Context, balances []InitialBalance) error {
	for _, bal := range balances {
		if _, err := t.tx.Exec(ctx, `INSERT INTO initial_balances (year, account_id, debit, credit, budget, status, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())`,
			bal.Year, bal.AccountID, bal.Debit, bal.Credit, bal.Budget, string(bal.Status), nullInt(bal.CreatedBy)); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) ListYearForUpdate(ctx context.Context, year int, status BalanceStatus) ([]InitialBalance, error) {
	rows, err := t.tx.Query(ctx, balanceSelect+` WHERE year=$1 AND status=$2 ORDER BY account_id FOR UPDATE`, year, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBalances(rows)
}

func (t *txRepository) ApproveYear(ctx context.Context, year int, actorID int64, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE initial_balances SET status='approved', approved_by=$2, approved_at=$3 WHERE year=$1 AND status='draft'`,
		year, nullInt(actorID), at)
	return err
}

const balanceSelect = `SELECT id, year, account_id, debit, credit, budget, status, created_by, approved_by, approved_at FROM initial_balances`

func (r *Repository) ListYear(ctx context.Context, year int) ([]InitialBalance, error) {
	rows, err := r.pool.Query(ctx, balanceSelect+` WHERE year=$1 ORDER BY account_id`, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBalances(rows)
}

func (r *Repository) ListYears(ctx context.Context) ([]YearInfo, error) {
	rows, err := r.pool.Query(ctx, `SELECT year, MIN(status) FROM initial_balances GROUP BY year ORDER BY year DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	years := []YearInfo{}
	for rows.Next() {
		var info YearInfo
		var status string
		if err := rows.Scan(&info.Year, &status); err != nil {
			return nil, err
		}
		info.Status = BalanceStatus(status)
		years = append(years, info)
	}
	return years, rows.Err()
}

const accountSelect = `SELECT id, code, name, type, category, is_cash, is_active FROM chart_of_accounts`

func (r *Repository) GetAccount(ctx context.Context, id int64) (Account, error) {
	var acc Account
	err := r.pool.QueryRow(ctx, accountSelect+` WHERE id=$1 AND deleted_at IS NULL`, id).
		Scan(&acc.ID, &acc.Code, &acc.Name, &acc.Type, &acc.Category, &acc.IsCash, &acc.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	return acc, err
}

func (r *Repository) ListAccounts(ctx context.Context, filter AccountFilter) ([]Account, error) {
	query := accountSelect + ` WHERE deleted_at IS NULL`
	args := []any{}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += ` AND type=$1`
	}
	if filter.CashOnly {
		query += ` AND is_cash`
	}
	if filter.ActiveOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY code`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	accounts := []Account{}
	for rows.Next() {
		var acc Account
		if err := rows.Scan(&acc.ID, &acc.Code, &acc.Name, &acc.Type, &acc.Category, &acc.IsCash, &acc.IsActive); err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

func collectBalances(rows pgx.Rows) ([]InitialBalance, error) {
	balances := []InitialBalance{}
	for rows.Next() {
		var bal InitialBalance
		var status string
		var createdBy, approvedBy *int64
		var approvedAt *time.Time
		if err := rows.Scan(&bal.ID, &bal.Year, &bal.AccountID, &bal.Debit, &bal.Credit, &bal.Budget,
			&status, &createdBy, &approvedBy, &approvedAt); err != nil {
			return nil, err
		}
		bal.Status = BalanceStatus(status)
		bal.CreatedBy = deref(createdBy)
		bal.ApprovedBy = deref(approvedBy)
		bal.ApprovedAt = derefTime(approvedAt)
		balances = append(balances, bal)
	}
	return balances, rows.Err()
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
