package rawmaterial

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arunika-erp/arunika-erp/internal/platform/db"
	"github.com/arunika-erp/arunika-erp/internal/stock"
)

// Repository persists raw-material documents in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	*stock.TxLedger
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("rawmaterial repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxLedger: stock.NewTxLedger(tx), tx: tx})
	})
}

func (t *txRepository) InsertStockIn(ctx context.Context, doc StockIn) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO raw_material_stock_ins (code, warehouse_id, in_date, notes, status, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW()) RETURNING id`,
		doc.Code, doc.WarehouseID, doc.Date, doc.Note, string(doc.Status), nullInt(doc.CreatedBy)).Scan(&id)
	return id, err
}

func (t *txRepository) InsertStockInItems(ctx context.Context, stockInID int64, items []StockInItem) error {
	for _, item := range items {
		if _, err := t.tx.Exec(ctx, `INSERT INTO raw_material_stock_in_items (stock_in_id, raw_material_id, quantity)
VALUES ($1,$2,$3)`, stockInID, item.RawMaterialID, item.Qty); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) GetStockInForUpdate(ctx context.Context, id int64) (StockIn, error) {
	doc, err := scanStockIn(t.tx.QueryRow(ctx, stockInSelect+` WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return StockIn{}, err
	}
	doc.Items, err = queryStockInItems(ctx, t.tx, id)
	return doc, err
}

func (t *txRepository) UpdateStockInHeader(ctx context.Context, doc StockIn) error {
	_, err := t.tx.Exec(ctx, `UPDATE raw_material_stock_ins SET warehouse_id=$2, in_date=$3, notes=$4 WHERE id=$1`,
		doc.ID, doc.WarehouseID, doc.Date, doc.Note)
	return err
}

func (t *txRepository) ReplaceStockInItems(ctx context.Context, stockInID int64, items []StockInItem) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM raw_material_stock_in_items WHERE stock_in_id=$1`, stockInID); err != nil {
		return err
	}
	return t.InsertStockInItems(ctx, stockInID, items)
}

func (t *txRepository) SetStockInStatus(ctx context.Context, id int64, status DocStatus, actorID int64, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE raw_material_stock_ins SET status=$2, posted_by=$3, posted_at=$4 WHERE id=$1`,
		id, string(status), nullInt(actorID), at)
	return err
}

func (t *txRepository) SetStockInDeleted(ctx context.Context, id int64, deleted bool) error {
	return setDeleted(ctx, t.tx, "raw_material_stock_ins", id, deleted)
}

func (t *txRepository) InsertStockOut(ctx context.Context, doc StockOut) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO raw_material_stock_outs (code, warehouse_id, out_date, notes, status, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW()) RETURNING id`,
		doc.Code, doc.WarehouseID, doc.Date, doc.Note, string(doc.Status), nullInt(doc.CreatedBy)).Scan(&id)
	return id, err
}

func (t *txRepository) InsertStockOutItems(ctx context.Context, stockOutID int64, items []StockOutItem) error {
	for _, item := range items {
		if _, err := t.tx.Exec(ctx, `INSERT INTO raw_material_stock_out_items (stock_out_id, raw_material_id, quantity)
VALUES ($1,$2,$3)`, stockOutID, item.RawMaterialID, item.Qty); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) GetStockOutForUpdate(ctx context.Context, id int64) (StockOut, error) {
	doc, err := scanStockOut(t.tx.QueryRow(ctx, stockOutSelect+` WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return StockOut{}, err
	}
	doc.Items, err = queryStockOutItems(ctx, t.tx, id)
	return doc, err
}

func (t *txRepository) UpdateStockOutHeader(ctx context.Context, doc StockOut) error {
	_, err := t.tx.Exec(ctx, `UPDATE raw_material_stock_outs SET warehouse_id=$2, out_date=$3, notes=$4 WHERE id=$1`,
		doc.ID, doc.WarehouseID, doc.Date, doc.Note)
	return err
}

func (t *txRepository) ReplaceStockOutItems(ctx context.Context, stockOutID int64, items []StockOutItem) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM raw_material_stock_out_items WHERE stock_out_id=$1`, stockOutID); err != nil {
		return err
	}
	return t.InsertStockOutItems(ctx, stockOutID, items)
}

func (t *txRepository) SetStockOutStatus(ctx context.Context, id int64, status DocStatus, actorID int64, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE raw_material_stock_outs SET status=$2, posted_by=$3, posted_at=$4 WHERE id=$1`,
		id, string(status), nullInt(actorID), at)
	return err
}

func (t *txRepository) SetStockOutDeleted(ctx context.Context, id int64, deleted bool) error {
	return setDeleted(ctx, t.tx, "raw_material_stock_outs", id, deleted)
}

func (t *txRepository) InsertAdjustment(ctx context.Context, rec Adjustment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO raw_material_stock_adjustments (raw_material_id, warehouse_id, qty_before, qty_after, difference, reason, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		rec.RawMaterialID, rec.WarehouseID, rec.QtyBefore, rec.QtyAfter, rec.Difference, rec.Reason, nullInt(rec.CreatedBy), rec.CreatedAt).Scan(&id)
	return id, err
}

func (t *txRepository) SetAdjustmentDeleted(ctx context.Context, id int64, deleted bool) error {
	return setDeleted(ctx, t.tx, "raw_material_stock_adjustments", id, deleted)
}

const stockInSelect = `SELECT id, code, warehouse_id, in_date, notes, status, created_by, posted_by, posted_at, deleted_at FROM raw_material_stock_ins`

func (r *Repository) GetStockIn(ctx context.Context, id int64) (StockIn, error) {
	doc, err := scanStockIn(r.pool.QueryRow(ctx, stockInSelect+` WHERE id=$1`, id))
	if err != nil {
		return StockIn{}, err
	}
	doc.Items, err = queryStockInItems(ctx, r.pool, id)
	return doc, err
}

func (r *Repository) ListStockIns(ctx context.Context, filter ListFilter) ([]StockIn, error) {
	rows, err := r.pool.Query(ctx, stockInSelect+listClause(filter), listLimit(filter))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := []StockIn{}
	for rows.Next() {
		doc, err := scanStockIn(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

const stockOutSelect = `SELECT id, code, warehouse_id, out_date, notes, status, created_by, posted_by, posted_at, deleted_at FROM raw_material_stock_outs`

func (r *Repository) GetStockOut(ctx context.Context, id int64) (StockOut, error) {
	doc, err := scanStockOut(r.pool.QueryRow(ctx, stockOutSelect+` WHERE id=$1`, id))
	if err != nil {
		return StockOut{}, err
	}
	doc.Items, err = queryStockOutItems(ctx, r.pool, id)
	return doc, err
}

func (r *Repository) ListStockOuts(ctx context.Context, filter ListFilter) ([]StockOut, error) {
	rows, err := r.pool.Query(ctx, stockOutSelect+listClause(filter), listLimit(filter))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := []StockOut{}
	for rows.Next() {
		doc, err := scanStockOut(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

const adjustmentSelect = `SELECT id, raw_material_id, warehouse_id, qty_before, qty_after, difference, reason, created_by, created_at, deleted_at FROM raw_material_stock_adjustments`

func (r *Repository) GetAdjustment(ctx context.Context, id int64) (Adjustment, error) {
	return scanAdjustment(r.pool.QueryRow(ctx, adjustmentSelect+` WHERE id=$1`, id))
}

func (r *Repository) ListAdjustments(ctx context.Context, filter ListFilter) ([]Adjustment, error) {
	rows, err := r.pool.Query(ctx, adjustmentSelect+listClause(filter), listLimit(filter))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	recs := []Adjustment{}
	for rows.Next() {
		rec, err := scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStockIn(row rowScanner) (StockIn, error) {
	var doc StockIn
	var status string
	var createdBy, postedBy *int64
	var postedAt, deletedAt *time.Time
	if err := row.Scan(&doc.ID, &doc.Code, &doc.WarehouseID, &doc.Date, &doc.Note, &status, &createdBy, &postedBy, &postedAt, &deletedAt); err != nil {
		return StockIn{}, mapNoRows(err)
	}
	doc.Status = DocStatus(status)
	doc.CreatedBy = deref(createdBy)
	doc.PostedBy = deref(postedBy)
	doc.PostedAt = derefTime(postedAt)
	doc.DeletedAt = derefTime(deletedAt)
	return doc, nil
}

func scanStockOut(row rowScanner) (StockOut, error) {
	var doc StockOut
	var status string
	var createdBy, postedBy *int64
	var postedAt, deletedAt *time.Time
	if err := row.Scan(&doc.ID, &doc.Code, &doc.WarehouseID, &doc.Date, &doc.Note, &status, &createdBy, &postedBy, &postedAt, &deletedAt); err != nil {
		return StockOut{}, mapNoRows(err)
	}
	doc.Status = DocStatus(status)
	doc.CreatedBy = deref(createdBy)
	doc.PostedBy = deref(postedBy)
	doc.PostedAt = derefTime(postedAt)
	doc.DeletedAt = derefTime(deletedAt)
	return doc, nil
}

func scanAdjustment(row rowScanner) (Adjustment, error) {
	var rec Adjustment
	var createdBy *int64
	var deletedAt *time.Time
	if err := row.Scan(&rec.ID, &rec.RawMaterialID, &rec.WarehouseID, &rec.QtyBefore, &rec.QtyAfter, &rec.Difference, &rec.Reason, &createdBy, &rec.CreatedAt, &deletedAt); err != nil {
		return Adjustment{}, mapNoRows(err)
	}
	rec.CreatedBy = deref(createdBy)
	rec.DeletedAt = derefTime(deletedAt)
	return rec, nil
}

func queryStockInItems(ctx context.Context, q querier, stockInID int64) ([]StockInItem, error) {
	rows, err := q.Query(ctx, `SELECT id, stock_in_id, raw_material_id, quantity
FROM raw_material_stock_in_items WHERE stock_in_id=$1 ORDER BY id`, stockInID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []StockInItem{}
	for rows.Next() {
		var item StockInItem
		if err := rows.Scan(&item.ID, &item.StockInID, &item.RawMaterialID, &item.Qty); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func queryStockOutItems(ctx context.Context, q querier, stockOutID int64) ([]StockOutItem, error) {
	rows, err := q.Query(ctx, `SELECT id, stock_out_id, raw_material_id, quantity
FROM raw_material_stock_out_items WHERE stock_out_id=$1 ORDER BY id`, stockOutID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []StockOutItem{}
	for rows.Next() {
		var item StockOutItem
		if err := rows.Scan(&item.ID, &item.StockOutID, &item.RawMaterialID, &item.Qty); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func setDeleted(ctx context.Context, tx pgx.Tx, table string, id int64, deleted bool) error {
	query := `UPDATE ` + table + ` SET deleted_at=NOW() WHERE id=$1`
	if !deleted {
		query = `UPDATE ` + table + ` SET deleted_at=NULL WHERE id=$1`
	}
	_, err := tx.Exec(ctx, query, id)
	return err
}

func listClause(filter ListFilter) string {
	if filter.IncludeDeleted {
		return ` ORDER BY id DESC LIMIT $1`
	}
	return ` WHERE deleted_at IS NULL ORDER BY id DESC LIMIT $1`
}

func listLimit(filter ListFilter) int {
	if filter.Limit <= 0 {
		return 100
	}
	return filter.Limit
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
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
