package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arunika-erp/arunika-erp/internal/platform/db"
	"github.com/arunika-erp/arunika-erp/internal/stock"
)

// Repository persists inventory documents in PostgreSQL.
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

// WithTx executes the callback inside a repeatable-read transaction. Document
// writes and ledger mutations share the transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxLedger: stock.NewTxLedger(tx), tx: tx})
	})
}

func (t *txRepository) InsertAdjustment(ctx context.Context, doc StockAdjustment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO stock_adjustments (code, warehouse_id, adjustment_date, notes, status, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW()) RETURNING id`,
		doc.Code, doc.WarehouseID, doc.Date, doc.Note, string(doc.Status), nullInt(doc.CreatedBy)).Scan(&id)
	return id, err
}

func (t *txRepository) InsertAdjustmentItems(ctx context.Context, adjustmentID int64, items []StockAdjustmentItem) error {
	for _, item := range items {
		if _, err := t.tx.Exec(ctx, `INSERT INTO stock_adjustment_items (stock_adjustment_id, product_id, system_qty, actual_qty, difference)
VALUES ($1,$2,$3,$4,$5)`, adjustmentID, item.ProductID, item.SystemQty, item.ActualQty, item.Difference); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) GetAdjustmentForUpdate(ctx context.Context, id int64) (StockAdjustment, error) {
	doc, err := scanAdjustment(t.tx.QueryRow(ctx, adjustmentSelect+` WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return StockAdjustment{}, err
	}
	doc.Items, err = queryAdjustmentItems(ctx, t.tx, id)
	return doc, err
}

func (t *txRepository) UpdateAdjustmentHeader(ctx context.Context, doc StockAdjustment) error {
	_, err := t.tx.Exec(ctx, `UPDATE stock_adjustments SET warehouse_id=$2, adjustment_date=$3, notes=$4 WHERE id=$1`,
		doc.ID, doc.WarehouseID, doc.Date, doc.Note)
	return err
}

func (t *txRepository) ReplaceAdjustmentItems(ctx context.Context, adjustmentID int64, items []StockAdjustmentItem) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM stock_adjustment_items WHERE stock_adjustment_id=$1`, adjustmentID); err != nil {
		return err
	}
	return t.InsertAdjustmentItems(ctx, adjustmentID, items)
}

func (t *txRepository) SetAdjustmentStatus(ctx context.Context, id int64, status AdjustmentStatus, actorID int64, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE stock_adjustments SET status=$2, posted_by=$3, posted_at=$4 WHERE id=$1`,
		id, string(status), nullInt(actorID), at)
	return err
}

func (t *txRepository) SetAdjustmentDeleted(ctx context.Context, id int64, deleted bool) error {
	return setDeleted(ctx, t.tx, "stock_adjustments", id, deleted)
}

func (t *txRepository) InsertRequest(ctx context.Context, doc StockRequest) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO stock_requests (code, warehouse_id, request_date, notes, status, completed, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,false,$6,NOW()) RETURNING id`,
		doc.Code, doc.WarehouseID, doc.Date, doc.Note, string(doc.Status), nullInt(doc.CreatedBy)).Scan(&id)
	return id, err
}

func (t *txRepository) InsertRequestItems(ctx context.Context, requestID int64, items []StockRequestItem) error {
	for _, item := range items {
		if _, err := t.tx.Exec(ctx, `INSERT INTO stock_request_items (stock_request_id, product_id, quantity)
VALUES ($1,$2,$3)`, requestID, item.ProductID, item.Qty); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) GetRequestForUpdate(ctx context.Context, id int64) (StockRequest, error) {
	doc, err := scanRequest(t.tx.QueryRow(ctx, requestSelect+` WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return StockRequest{}, err
	}
	doc.Items, err = queryRequestItems(ctx, t.tx, id)
	return doc, err
}

func (t *txRepository) UpdateRequestHeader(ctx context.Context, doc StockRequest) error {
	_, err := t.tx.Exec(ctx, `UPDATE stock_requests SET warehouse_id=$2, request_date=$3, notes=$4 WHERE id=$1`,
		doc.ID, doc.WarehouseID, doc.Date, doc.Note)
	return err
}

func (t *txRepository) ReplaceRequestItems(ctx context.Context, requestID int64, items []StockRequestItem) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM stock_request_items WHERE stock_request_id=$1`, requestID); err != nil {
		return err
	}
	return t.InsertRequestItems(ctx, requestID, items)
}

func (t *txRepository) SetRequestStatus(ctx context.Context, id int64, status RequestStatus, actorID int64, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE stock_requests SET status=$2, decided_by=$3, decided_at=$4 WHERE id=$1`,
		id, string(status), nullInt(actorID), at)
	return err
}

func (t *txRepository) SetRequestCompleted(ctx context.Context, id int64, completed bool) error {
	_, err := t.tx.Exec(ctx, `UPDATE stock_requests SET completed=$2 WHERE id=$1`, id, completed)
	return err
}

func (t *txRepository) SetRequestDeleted(ctx context.Context, id int64, deleted bool) error {
	return setDeleted(ctx, t.tx, "stock_requests", id, deleted)
}

func (t *txRepository) InsertStockOut(ctx context.Context, doc StockOut) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO stock_outs (code, stock_request_id, warehouse_id, out_date, notes, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		doc.Code, doc.RequestID, doc.WarehouseID, doc.Date, doc.Note, nullInt(doc.CreatedBy), doc.CreatedAt).Scan(&id)
	return id, err
}

func (t *txRepository) InsertStockOutItems(ctx context.Context, stockOutID int64, items []StockOutItem) error {
	for _, item := range items {
		if _, err := t.tx.Exec(ctx, `INSERT INTO stock_out_items (stock_out_id, product_id, quantity)
VALUES ($1,$2,$3)`, stockOutID, item.ProductID, item.Qty); err != nil {
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

func (t *txRepository) SetStockOutDeleted(ctx context.Context, id int64, deleted bool) error {
	return setDeleted(ctx, t.tx, "stock_outs", id, deleted)
}

func (t *txRepository) InsertTransfer(ctx context.Context, doc StockTransfer) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO stock_transfers (code, from_warehouse_id, to_warehouse_id, transfer_date, notes, status, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW()) RETURNING id`,
		doc.Code, doc.FromWarehouseID, doc.ToWarehouseID, doc.Date, doc.Note, string(doc.Status), nullInt(doc.CreatedBy)).Scan(&id)
	return id, err
}

func (t *txRepository) InsertTransferItems(ctx context.Context, transferID int64, items []StockTransferItem) error {
	for _, item := range items {
		if _, err := t.tx.Exec(ctx, `INSERT INTO stock_transfer_items (stock_transfer_id, itemable_type, itemable_id, quantity)
VALUES ($1,$2,$3,$4)`, transferID, string(item.Item.Kind), item.Item.ID, item.Qty); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) GetTransferForUpdate(ctx context.Context, id int64) (StockTransfer, error) {
	doc, err := scanTransfer(t.tx.QueryRow(ctx, transferSelect+` WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return StockTransfer{}, err
	}
	doc.Items, err = queryTransferItems(ctx, t.tx, id)
	return doc, err
}

func (t *txRepository) UpdateTransferHeader(ctx context.Context, doc StockTransfer) error {
	_, err := t.tx.Exec(ctx, `UPDATE stock_transfers SET from_warehouse_id=$2, to_warehouse_id=$3, transfer_date=$4, notes=$5 WHERE id=$1`,
		doc.ID, doc.FromWarehouseID, doc.ToWarehouseID, doc.Date, doc.Note)
	return err
}

func (t *txRepository) ReplaceTransferItems(ctx context.Context, transferID int64, items []StockTransferItem) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM stock_transfer_items WHERE stock_transfer_id=$1`, transferID); err != nil {
		return err
	}
	return t.InsertTransferItems(ctx, transferID, items)
}

func (t *txRepository) SetTransferStatus(ctx context.Context, id int64, status TransferStatus, actorID int64, at time.Time) error {
	if status == TransferStatusExecuted {
		_, err := t.tx.Exec(ctx, `UPDATE stock_transfers SET status=$2, executed_by=$3, executed_at=$4 WHERE id=$1`,
			id, string(status), nullInt(actorID), at)
		return err
	}
	_, err := t.tx.Exec(ctx, `UPDATE stock_transfers SET status=$2, decided_by=$3 WHERE id=$1`,
		id, string(status), nullInt(actorID))
	return err
}

func (t *txRepository) SetTransferDeleted(ctx context.Context, id int64, deleted bool) error {
	return setDeleted(ctx, t.tx, "stock_transfers", id, deleted)
}

func (t *txRepository) InsertInitialStock(ctx context.Context, rec InitialStock) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO stock_initials (product_id, warehouse_id, quantity, created_by, created_at)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		rec.ProductID, rec.WarehouseID, rec.Qty, nullInt(rec.CreatedBy), rec.CreatedAt).Scan(&id)
	return id, err
}

const adjustmentSelect = `SELECT id, code, warehouse_id, adjustment_date, notes, status, created_by, posted_by, posted_at, deleted_at FROM stock_adjustments`

func (r *Repository) GetAdjustment(ctx context.Context, id int64) (StockAdjustment, error) {
	doc, err := scanAdjustment(r.pool.QueryRow(ctx, adjustmentSelect+` WHERE id=$1`, id))
	if err != nil {
		return StockAdjustment{}, err
	}
	doc.Items, err = queryAdjustmentItems(ctx, r.pool, id)
	return doc, err
}

func (r *Repository) ListAdjustments(ctx context.Context, filter ListFilter) ([]StockAdjustment, error) {
	rows, err := r.pool.Query(ctx, adjustmentSelect+listClause(filter), listLimit(filter))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := []StockAdjustment{}
	for rows.Next() {
		doc, err := scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

const requestSelect = `SELECT id, code, warehouse_id, request_date, notes, status, completed, created_by, decided_by, decided_at, deleted_at FROM stock_requests`

func (r *Repository) GetRequest(ctx context.Context, id int64) (StockRequest, error) {
	doc, err := scanRequest(r.pool.QueryRow(ctx, requestSelect+` WHERE id=$1`, id))
	if err != nil {
		return StockRequest{}, err
	}
	doc.Items, err = queryRequestItems(ctx, r.pool, id)
	return doc, err
}

func (r *Repository) ListRequests(ctx context.Context, filter ListFilter) ([]StockRequest, error) {
	rows, err := r.pool.Query(ctx, requestSelect+listClause(filter), listLimit(filter))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := []StockRequest{}
	for rows.Next() {
		doc, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

const stockOutSelect = `SELECT id, code, stock_request_id, warehouse_id, out_date, notes, created_by, created_at, deleted_at FROM stock_outs`

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

const transferSelect = `SELECT id, code, from_warehouse_id, to_warehouse_id, transfer_date, notes, status, created_by, decided_by, executed_by, executed_at, deleted_at FROM stock_transfers`

func (r *Repository) GetTransfer(ctx context.Context, id int64) (StockTransfer, error) {
	doc, err := scanTransfer(r.pool.QueryRow(ctx, transferSelect+` WHERE id=$1`, id))
	if err != nil {
		return StockTransfer{}, err
	}
	doc.Items, err = queryTransferItems(ctx, r.pool, id)
	return doc, err
}

func (r *Repository) ListTransfers(ctx context.Context, filter ListFilter) ([]StockTransfer, error) {
	rows, err := r.pool.Query(ctx, transferSelect+listClause(filter), listLimit(filter))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := []StockTransfer{}
	for rows.Next() {
		doc, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAdjustment(row rowScanner) (StockAdjustment, error) {
	var doc StockAdjustment
	var status string
	var createdBy, postedBy *int64
	var postedAt, deletedAt *time.Time
	if err := row.Scan(&doc.ID, &doc.Code, &doc.WarehouseID, &doc.Date, &doc.Note, &status, &createdBy, &postedBy, &postedAt, &deletedAt); err != nil {
		return StockAdjustment{}, mapNoRows(err)
	}
	doc.Status = AdjustmentStatus(status)
	doc.CreatedBy = deref(createdBy)
	doc.PostedBy = deref(postedBy)
	doc.PostedAt = derefTime(postedAt)
	doc.DeletedAt = derefTime(deletedAt)
	return doc, nil
}

func scanRequest(row rowScanner) (StockRequest, error) {
	var doc StockRequest
	var status string
	var createdBy, decidedBy *int64
	var decidedAt, deletedAt *time.Time
	if err := row.Scan(&doc.ID, &doc.Code, &doc.WarehouseID, &doc.Date, &doc.Note, &status, &doc.Completed, &createdBy, &decidedBy, &decidedAt, &deletedAt); err != nil {
		return StockRequest{}, mapNoRows(err)
	}
	doc.Status = RequestStatus(status)
	doc.CreatedBy = deref(createdBy)
	doc.DecidedBy = deref(decidedBy)
	doc.DecidedAt = derefTime(decidedAt)
	doc.DeletedAt = derefTime(deletedAt)
	return doc, nil
}

func scanStockOut(row rowScanner) (StockOut, error) {
	var doc StockOut
	var createdBy *int64
	var deletedAt *time.Time
	if err := row.Scan(&doc.ID, &doc.Code, &doc.RequestID, &doc.WarehouseID, &doc.Date, &doc.Note, &createdBy, &doc.CreatedAt, &deletedAt); err != nil {
		return StockOut{}, mapNoRows(err)
	}
	doc.CreatedBy = deref(createdBy)
	doc.DeletedAt = derefTime(deletedAt)
	return doc, nil
}

func scanTransfer(row rowScanner) (StockTransfer, error) {
	var doc StockTransfer
	var status string
	var createdBy, decidedBy, executedBy *int64
	var executedAt, deletedAt *time.Time
	if err := row.Scan(&doc.ID, &doc.Code, &doc.FromWarehouseID, &doc.ToWarehouseID, &doc.Date, &doc.Note, &status, &createdBy, &decidedBy, &executedBy, &executedAt, &deletedAt); err != nil {
		return StockTransfer{}, mapNoRows(err)
	}
	doc.Status = TransferStatus(status)
	doc.CreatedBy = deref(createdBy)
	doc.DecidedBy = deref(decidedBy)
	doc.ExecutedBy = deref(executedBy)
	doc.ExecutedAt = derefTime(executedAt)
	doc.DeletedAt = derefTime(deletedAt)
	return doc, nil
}

func queryAdjustmentItems(ctx context.Context, q querier, adjustmentID int64) ([]StockAdjustmentItem, error) {
	rows, err := q.Query(ctx, `SELECT id, stock_adjustment_id, product_id, system_qty, actual_qty, difference
FROM stock_adjustment_items WHERE stock_adjustment_id=$1 ORDER BY id`, adjustmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []StockAdjustmentItem{}
	for rows.Next() {
		var item StockAdjustmentItem
		if err := rows.Scan(&item.ID, &item.AdjustmentID, &item.ProductID, &item.SystemQty, &item.ActualQty, &item.Difference); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func queryRequestItems(ctx context.Context, q querier, requestID int64) ([]StockRequestItem, error) {
	rows, err := q.Query(ctx, `SELECT id, stock_request_id, product_id, quantity
FROM stock_request_items WHERE stock_request_id=$1 ORDER BY id`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []StockRequestItem{}
	for rows.Next() {
		var item StockRequestItem
		if err := rows.Scan(&item.ID, &item.RequestID, &item.ProductID, &item.Qty); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func queryStockOutItems(ctx context.Context, q querier, stockOutID int64) ([]StockOutItem, error) {
	rows, err := q.Query(ctx, `SELECT id, stock_out_id, product_id, quantity
FROM stock_out_items WHERE stock_out_id=$1 ORDER BY id`, stockOutID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []StockOutItem{}
	for rows.Next() {
		var item StockOutItem
		if err := rows.Scan(&item.ID, &item.StockOutID, &item.ProductID, &item.Qty); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func queryTransferItems(ctx context.Context, q querier, transferID int64) ([]StockTransferItem, error) {
	rows, err := q.Query(ctx, `SELECT id, stock_transfer_id, itemable_type, itemable_id, quantity
FROM stock_transfer_items WHERE stock_transfer_id=$1 ORDER BY id`, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []StockTransferItem{}
	for rows.Next() {
		var item StockTransferItem
		var kind string
		if err := rows.Scan(&item.ID, &item.TransferID, &kind, &item.Item.ID, &item.Qty); err != nil {
			return nil, err
		}
		item.Item.Kind = stock.ItemKind(kind)
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
