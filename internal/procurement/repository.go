package procurement

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arunika-erp/arunika-erp/internal/platform/db"
	"github.com/shopspring/decimal"

	"github.com/arunika-erp/arunika-erp/internal/stock"
)

// Repository persists procurement documents in PostgreSQL.
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
		return errors.New("procurement repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxLedger: stock.NewTxLedger(tx), tx: tx})
	})
}

func (t *txRepository) InsertPR(ctx context.Context, doc PurchaseRequest) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_requests (code, supplier_id, request_date, notes, status, completed, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,false,$6,NOW()) RETURNING id`,
		doc.Code, doc.SupplierID, doc.Date, doc.Note, string(doc.Status), nullInt(doc.CreatedBy)).Scan(&id)
	return id, err
}

func (t *txRepository) InsertPRItems(ctx context.Context, requestID int64, items []PurchaseRequestItem) error {
	for _, item := range items {
		if _, err := t.tx.Exec(ctx, `INSERT INTO purchase_request_items (purchase_request_id, itemable_type, itemable_id, quantity, notes)
VALUES ($1,$2,$3,$4,$5)`, requestID, string(item.Item.Kind), item.Item.ID, item.Qty, item.Note); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) GetPRForUpdate(ctx context.Context, id int64) (PurchaseRequest, error) {
	doc, err := scanPR(t.tx.QueryRow(ctx, prSelect+` WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return PurchaseRequest{}, err
	}
	doc.Items, err = queryPRItems(ctx, t.tx, id)
	return doc, err
}

func (t *txRepository) UpdatePRHeader(ctx context.Context, doc PurchaseRequest) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_requests SET supplier_id=$2, request_date=$3, notes=$4 WHERE id=$1`,
		doc.ID, doc.SupplierID, doc.Date, doc.Note)
	return err
}

func (t *txRepository) ReplacePRItems(ctx context.Context, requestID int64, items []PurchaseRequestItem) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM purchase_request_items WHERE purchase_request_id=$1`, requestID); err != nil {
		return err
	}
	return t.InsertPRItems(ctx, requestID, items)
}

func (t *txRepository) SetPRStatus(ctx context.Context, id int64, status PRStatus, actorID int64, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_requests SET status=$2, decided_by=$3, decided_at=$4 WHERE id=$1`,
		id, string(status), nullInt(actorID), at)
	return err
}

func (t *txRepository) SetPRCompleted(ctx context.Context, id int64, completed bool) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_requests SET completed=$2 WHERE id=$1`, id, completed)
	return err
}

func (t *txRepository) SetPRDeleted(ctx context.Context, id int64, deleted bool) error {
	return setDeleted(ctx, t.tx, "purchase_requests", id, deleted)
}

func (t *txRepository) InsertPO(ctx context.Context, doc PurchaseOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_orders (code, purchase_request_id, supplier_id, order_date, expected_date, notes, status, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING id`,
		doc.Code, doc.RequestID, doc.SupplierID, doc.Date, nullTime(doc.ExpectedDate), doc.Note, string(doc.Status), nullInt(doc.CreatedBy)).Scan(&id)
	return id, err
}

func (t *txRepository) InsertPOItems(ctx context.Context, orderID int64, items []PurchaseOrderItem) error {
	for _, item := range items {
		if _, err := t.tx.Exec(ctx, `INSERT INTO purchase_order_items (purchase_order_id, itemable_type, itemable_id, quantity, price, subtotal)
VALUES ($1,$2,$3,$4,$5,$6)`, orderID, string(item.Item.Kind), item.Item.ID, item.Qty, item.Price, item.Subtotal); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	doc, err := scanPO(t.tx.QueryRow(ctx, poSelect+` WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return PurchaseOrder{}, err
	}
	doc.Items, err = queryPOItems(ctx, t.tx, id)
	return doc, err
}

func (t *txRepository) UpdatePOHeader(ctx context.Context, doc PurchaseOrder) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET order_date=$2, expected_date=$3, notes=$4 WHERE id=$1`,
		doc.ID, doc.Date, nullTime(doc.ExpectedDate), doc.Note)
	return err
}

func (t *txRepository) UpdatePOItemPrice(ctx context.Context, orderID, itemID int64, price, subtotal decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_order_items SET price=$3, subtotal=$4 WHERE purchase_order_id=$1 AND id=$2`,
		orderID, itemID, price, subtotal)
	return err
}

func (t *txRepository) SetPOStatus(ctx context.Context, id int64, status POStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET status=$2 WHERE id=$1`, id, string(status))
	return err
}

func (t *txRepository) SetPODeleted(ctx context.Context, id int64, deleted bool) error {
	return setDeleted(ctx, t.tx, "purchase_orders", id, deleted)
}

func (t *txRepository) ExistsLivePO(ctx context.Context, requestID, excludeOrderID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM purchase_orders
WHERE purchase_request_id=$1 AND id<>$2 AND deleted_at IS NULL)`, requestID, excludeOrderID).Scan(&exists)
	return exists, err
}

func (t *txRepository) InsertGR(ctx context.Context, doc GoodsReceipt) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO goods_receipts (code, purchase_order_id, warehouse_id, receipt_date, notes, status, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW()) RETURNING id`,
		doc.Code, doc.OrderID, doc.WarehouseID, doc.Date, doc.Note, string(doc.Status), nullInt(doc.CreatedBy)).Scan(&id)
	return id, err
}

func (t *txRepository) InsertGRItems(ctx context.Context, receiptID int64, items []GoodsReceiptItem) error {
	for _, item := range items {
		if _, err := t.tx.Exec(ctx, `INSERT INTO goods_receipt_items (goods_receipt_id, purchase_order_item_id, itemable_type, itemable_id, qty_ordered, qty_actual, unit_price)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, receiptID, item.OrderItem, string(item.Item.Kind), item.Item.ID, item.QtyOrdered, item.QtyActual, item.UnitPrice); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) GetGRForUpdate(ctx context.Context, id int64) (GoodsReceipt, error) {
	doc, err := scanGR(t.tx.QueryRow(ctx, grSelect+` WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return GoodsReceipt{}, err
	}
	doc.Items, err = queryGRItems(ctx, t.tx, id)
	return doc, err
}

func (t *txRepository) UpdateGRHeader(ctx context.Context, doc GoodsReceipt) error {
	_, err := t.tx.Exec(ctx, `UPDATE goods_receipts SET receipt_date=$2, notes=$3 WHERE id=$1`,
		doc.ID, doc.Date, doc.Note)
	return err
}

func (t *txRepository) ReplaceGRItems(ctx context.Context, receiptID int64, items []GoodsReceiptItem) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM goods_receipt_items WHERE goods_receipt_id=$1`, receiptID); err != nil {
		return err
	}
	return t.InsertGRItems(ctx, receiptID, items)
}

func (t *txRepository) SetGRStatus(ctx context.Context, id int64, status GRStatus, actorID int64, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE goods_receipts SET status=$2, posted_by=$3, posted_at=$4 WHERE id=$1`,
		id, string(status), nullInt(actorID), at)
	return err
}

func (t *txRepository) SetGRDeleted(ctx context.Context, id int64, deleted bool) error {
	return setDeleted(ctx, t.tx, "goods_receipts", id, deleted)
}

func (t *txRepository) UpdateRawMaterialLastPrice(ctx context.Context, rawMaterialID int64, price decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE raw_materials SET last_purchase_price=$2 WHERE id=$1`, rawMaterialID, price)
	return err
}

func (t *txRepository) InsertReturn(ctx context.Context, doc PurchaseReturn) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_returns (code, purchase_order_id, warehouse_id, return_date, reason, status, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW()) RETURNING id`,
		doc.Code, doc.OrderID, doc.WarehouseID, doc.Date, doc.Reason, string(doc.Status), nullInt(doc.CreatedBy)).Scan(&id)
	return id, err
}

func (t *txRepository) InsertReturnItems(ctx context.Context, returnID int64, items []PurchaseReturnItem) error {
	for _, item := range items {
		if _, err := t.tx.Exec(ctx, `INSERT INTO purchase_return_items (purchase_return_id, itemable_type, itemable_id, quantity)
VALUES ($1,$2,$3,$4)`, returnID, string(item.Item.Kind), item.Item.ID, item.Qty); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) GetReturnForUpdate(ctx context.Context, id int64) (PurchaseReturn, error) {
	doc, err := scanReturn(t.tx.QueryRow(ctx, returnSelect+` WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return PurchaseReturn{}, err
	}
	doc.Items, err = queryReturnItems(ctx, t.tx, id)
	return doc, err
}

func (t *txRepository) UpdateReturnHeader(ctx context.Context, doc PurchaseReturn) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_returns SET return_date=$2, reason=$3 WHERE id=$1`,
		doc.ID, doc.Date, doc.Reason)
	return err
}

func (t *txRepository) ReplaceReturnItems(ctx context.Context, returnID int64, items []PurchaseReturnItem) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM purchase_return_items WHERE purchase_return_id=$1`, returnID); err != nil {
		return err
	}
	return t.InsertReturnItems(ctx, returnID, items)
}

func (t *txRepository) SetReturnStatus(ctx context.Context, id int64, status ReturnStatus, actorID int64, at time.Time) error {
	if status == ReturnStatusRealized {
		_, err := t.tx.Exec(ctx, `UPDATE purchase_returns SET status=$2, realized_by=$3, realized_at=$4 WHERE id=$1`,
			id, string(status), nullInt(actorID), at)
		return err
	}
	_, err := t.tx.Exec(ctx, `UPDATE purchase_returns SET status=$2, decided_by=$3 WHERE id=$1`,
		id, string(status), nullInt(actorID))
	return err
}

func (t *txRepository) SetReturnDeleted(ctx context.Context, id int64, deleted bool) error {
	return setDeleted(ctx, t.tx, "purchase_returns", id, deleted)
}

func (t *txRepository) InsertInvoiceReceipt(ctx context.Context, doc InvoiceReceipt) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO invoice_receipts (code, purchase_order_id, notes, status, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,NOW()) RETURNING id`,
		doc.Code, doc.OrderID, doc.Note, string(doc.Status), nullInt(doc.CreatedBy)).Scan(&id)
	return id, err
}

func (t *txRepository) GetInvoiceReceiptForUpdate(ctx context.Context, id int64) (InvoiceReceipt, error) {
	doc, err := scanInvoiceReceipt(t.tx.QueryRow(ctx, invoiceReceiptSelect+` WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return InvoiceReceipt{}, err
	}
	doc.Invoices, err = queryInvoices(ctx, t.tx, id)
	return doc, err
}

func (t *txRepository) UpdateInvoiceReceiptHeader(ctx context.Context, doc InvoiceReceipt) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoice_receipts SET notes=$2 WHERE id=$1`, doc.ID, doc.Note)
	return err
}

func (t *txRepository) SetInvoiceReceiptStatus(ctx context.Context, id int64, status InvoiceStatus, actorID int64, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoice_receipts SET status=$2, decided_by=$3, decided_at=$4 WHERE id=$1`,
		id, string(status), nullInt(actorID), at)
	return err
}

func (t *txRepository) SetInvoiceReceiptDeleted(ctx context.Context, id int64, deleted bool) error {
	return setDeleted(ctx, t.tx, "invoice_receipts", id, deleted)
}

func (t *txRepository) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO invoices (invoice_receipt_id, number, invoice_date, amount, notes)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		inv.ReceiptID, inv.Number, inv.Date, inv.Amount, inv.Note).Scan(&id)
	return id, err
}

func (t *txRepository) UpdateInvoice(ctx context.Context, inv Invoice) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET number=$2, invoice_date=$3, amount=$4, notes=$5 WHERE id=$1`,
		inv.ID, inv.Number, inv.Date, inv.Amount, inv.Note)
	return err
}

func (t *txRepository) DeleteInvoice(ctx context.Context, invoiceID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM invoices WHERE id=$1`, invoiceID)
	return err
}

const prSelect = `SELECT id, code, supplier_id, request_date, notes, status, completed, created_by, decided_by, decided_at, deleted_at FROM purchase_requests`

func (r *Repository) GetPR(ctx context.Context, id int64) (PurchaseRequest, error) {
	doc, err := scanPR(r.pool.QueryRow(ctx, prSelect+` WHERE id=$1`, id))
	if err != nil {
		return PurchaseRequest{}, err
	}
	doc.Items, err = queryPRItems(ctx, r.pool, id)
	return doc, err
}

func (r *Repository) ListPRs(ctx context.Context, filter ListFilter) ([]PurchaseRequest, error) {
	rows, err := r.pool.Query(ctx, prSelect+listClause(filter), listLimit(filter))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := []PurchaseRequest{}
	for rows.Next() {
		doc, err := scanPR(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

const poSelect = `SELECT id, code, purchase_request_id, supplier_id, order_date, expected_date, notes, status, created_by, deleted_at FROM purchase_orders`

func (r *Repository) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	doc, err := scanPO(r.pool.QueryRow(ctx, poSelect+` WHERE id=$1`, id))
	if err != nil {
		return PurchaseOrder{}, err
	}
	doc.Items, err = queryPOItems(ctx, r.pool, id)
	return doc, err
}

func (r *Repository) ListPOs(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error) {
	rows, err := r.pool.Query(ctx, poSelect+listClause(filter), listLimit(filter))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := []PurchaseOrder{}
	for rows.Next() {
		doc, err := scanPO(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ListReturnablePOs lists received orders; only those can take a return.
func (r *Repository) ListReturnablePOs(ctx context.Context) ([]PurchaseOrder, error) {
	rows, err := r.pool.Query(ctx, poSelect+` WHERE status=$1 AND deleted_at IS NULL ORDER BY id DESC`, string(POStatusReceived))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := []PurchaseOrder{}
	for rows.Next() {
		doc, err := scanPO(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

const grSelect = `SELECT id, code, purchase_order_id, warehouse_id, receipt_date, notes, status, created_by, posted_by, posted_at, deleted_at FROM goods_receipts`

func (r *Repository) GetGR(ctx context.Context, id int64) (GoodsReceipt, error) {
	doc, err := scanGR(r.pool.QueryRow(ctx, grSelect+` WHERE id=$1`, id))
	if err != nil {
		return GoodsReceipt{}, err
	}
	doc.Items, err = queryGRItems(ctx, r.pool, id)
	return doc, err
}

func (r *Repository) ListGRs(ctx context.Context, filter ListFilter) ([]GoodsReceipt, error) {
	rows, err := r.pool.Query(ctx, grSelect+listClause(filter), listLimit(filter))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := []GoodsReceipt{}
	for rows.Next() {
		doc, err := scanGR(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

const returnSelect = `SELECT id, code, purchase_order_id, warehouse_id, return_date, reason, status, created_by, decided_by, realized_by, realized_at, deleted_at FROM purchase_returns`

func (r *Repository) GetReturn(ctx context.Context, id int64) (PurchaseReturn, error) {
	doc, err := scanReturn(r.pool.QueryRow(ctx, returnSelect+` WHERE id=$1`, id))
	if err != nil {
		return PurchaseReturn{}, err
	}
	doc.Items, err = queryReturnItems(ctx, r.pool, id)
	return doc, err
}

func (r *Repository) ListReturns(ctx context.Context, filter ListFilter) ([]PurchaseReturn, error) {
	rows, err := r.pool.Query(ctx, returnSelect+listClause(filter), listLimit(filter))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := []PurchaseReturn{}
	for rows.Next() {
		doc, err := scanReturn(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

const invoiceReceiptSelect = `SELECT id, code, purchase_order_id, notes, status, created_by, decided_by, decided_at, deleted_at FROM invoice_receipts`

func (r *Repository) GetInvoiceReceipt(ctx context.Context, id int64) (InvoiceReceipt, error) {
	doc, err := scanInvoiceReceipt(r.pool.QueryRow(ctx, invoiceReceiptSelect+` WHERE id=$1`, id))
	if err != nil {
		return InvoiceReceipt{}, err
	}
	doc.Invoices, err = queryInvoices(ctx, r.pool, id)
	return doc, err
}

func (r *Repository) ListInvoiceReceipts(ctx context.Context, filter ListFilter) ([]InvoiceReceipt, error) {
	rows, err := r.pool.Query(ctx, invoiceReceiptSelect+listClause(filter), listLimit(filter))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := []InvoiceReceipt{}
	for rows.Next() {
		doc, err := scanInvoiceReceipt(rows)
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

func scanPR(row rowScanner) (PurchaseRequest, error) {
	var doc PurchaseRequest
	var status string
	var createdBy, decidedBy *int64
	var decidedAt, deletedAt *time.Time
	if err := row.Scan(&doc.ID, &doc.Code, &doc.SupplierID, &doc.Date, &doc.Note, &status, &doc.Completed, &createdBy, &decidedBy, &decidedAt, &deletedAt); err != nil {
		return PurchaseRequest{}, mapNoRows(err)
	}
	doc.Status = PRStatus(status)
	doc.CreatedBy = deref(createdBy)
	doc.DecidedBy = deref(decidedBy)
	doc.DecidedAt = derefTime(decidedAt)
	doc.DeletedAt = derefTime(deletedAt)
	return doc, nil
}

func scanPO(row rowScanner) (PurchaseOrder, error) {
	var doc PurchaseOrder
	var status string
	var createdBy *int64
	var expectedDate, deletedAt *time.Time
	if err := row.Scan(&doc.ID, &doc.Code, &doc.RequestID, &doc.SupplierID, &doc.Date, &expectedDate, &doc.Note, &status, &createdBy, &deletedAt); err != nil {
		return PurchaseOrder{}, mapNoRows(err)
	}
	doc.Status = POStatus(status)
	doc.ExpectedDate = derefTime(expectedDate)
	doc.CreatedBy = deref(createdBy)
	doc.DeletedAt = derefTime(deletedAt)
	return doc, nil
}

func scanGR(row rowScanner) (GoodsReceipt, error) {
	var doc GoodsReceipt
	var status string
	var createdBy, postedBy *int64
	var postedAt, deletedAt *time.Time
	if err := row.Scan(&doc.ID, &doc.Code, &doc.OrderID, &doc.WarehouseID, &doc.Date, &doc.Note, &status, &createdBy, &postedBy, &postedAt, &deletedAt); err != nil {
		return GoodsReceipt{}, mapNoRows(err)
	}
	doc.Status = GRStatus(status)
	doc.CreatedBy = deref(createdBy)
	doc.PostedBy = deref(postedBy)
	doc.PostedAt = derefTime(postedAt)
	doc.DeletedAt = derefTime(deletedAt)
	return doc, nil
}

func scanReturn(row rowScanner) (PurchaseReturn, error) {
	var doc PurchaseReturn
	var status string
	var createdBy, decidedBy, realizedBy *int64
	var realizedAt, deletedAt *time.Time
	if err := row.Scan(&doc.ID, &doc.Code, &doc.OrderID, &doc.WarehouseID, &doc.Date, &doc.Reason, &status, &createdBy, &decidedBy, &realizedBy, &realizedAt, &deletedAt); err != nil {
		return PurchaseReturn{}, mapNoRows(err)
	}
	doc.Status = ReturnStatus(status)
	doc.CreatedBy = deref(createdBy)
	doc.DecidedBy = deref(decidedBy)
	doc.RealizedBy = deref(realizedBy)
	doc.RealizedAt = derefTime(realizedAt)
	doc.DeletedAt = derefTime(deletedAt)
	return doc, nil
}

func scanInvoiceReceipt(row rowScanner) (InvoiceReceipt, error) {
	var doc InvoiceReceipt
	var status string
	var createdBy, decidedBy *int64
	var decidedAt, deletedAt *time.Time
	if err := row.Scan(&doc.ID, &doc.Code, &doc.OrderID, &doc.Note, &status, &createdBy, &decidedBy, &decidedAt, &deletedAt); err != nil {
		return InvoiceReceipt{}, mapNoRows(err)
	}
	doc.Status = InvoiceStatus(status)
	doc.CreatedBy = deref(createdBy)
	doc.DecidedBy = deref(decidedBy)
	doc.DecidedAt = derefTime(decidedAt)
	doc.DeletedAt = derefTime(deletedAt)
	return doc, nil
}

func queryPRItems(ctx context.Context, q querier, requestID int64) ([]PurchaseRequestItem, error) {
	rows, err := q.Query(ctx, `SELECT id, purchase_request_id, itemable_type, itemable_id, quantity, notes
FROM purchase_request_items WHERE purchase_request_id=$1 ORDER BY id`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []PurchaseRequestItem{}
	for rows.Next() {
		var item PurchaseRequestItem
		var kind string
		if err := rows.Scan(&item.ID, &item.RequestID, &kind, &item.Item.ID, &item.Qty, &item.Note); err != nil {
			return nil, err
		}
		item.Item.Kind = stock.ItemKind(kind)
		items = append(items, item)
	}
	return items, rows.Err()
}

func queryPOItems(ctx context.Context, q querier, orderID int64) ([]PurchaseOrderItem, error) {
	rows, err := q.Query(ctx, `SELECT id, purchase_order_id, itemable_type, itemable_id, quantity, price, subtotal
FROM purchase_order_items WHERE purchase_order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []PurchaseOrderItem{}
	for rows.Next() {
		var item PurchaseOrderItem
		var kind string
		if err := rows.Scan(&item.ID, &item.OrderID, &kind, &item.Item.ID, &item.Qty, &item.Price, &item.Subtotal); err != nil {
			return nil, err
		}
		item.Item.Kind = stock.ItemKind(kind)
		items = append(items, item)
	}
	return items, rows.Err()
}

func queryGRItems(ctx context.Context, q querier, receiptID int64) ([]GoodsReceiptItem, error) {
	rows, err := q.Query(ctx, `SELECT id, goods_receipt_id, purchase_order_item_id, itemable_type, itemable_id, qty_ordered, qty_actual, unit_price
FROM goods_receipt_items WHERE goods_receipt_id=$1 ORDER BY id`, receiptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []GoodsReceiptItem{}
	for rows.Next() {
		var item GoodsReceiptItem
		var kind string
		if err := rows.Scan(&item.ID, &item.ReceiptID, &item.OrderItem, &kind, &item.Item.ID, &item.QtyOrdered, &item.QtyActual, &item.UnitPrice); err != nil {
			return nil, err
		}
		item.Item.Kind = stock.ItemKind(kind)
		items = append(items, item)
	}
	return items, rows.Err()
}

func queryReturnItems(ctx context.Context, q querier, returnID int64) ([]PurchaseReturnItem, error) {
	rows, err := q.Query(ctx, `SELECT id, purchase_return_id, itemable_type, itemable_id, quantity
FROM purchase_return_items WHERE purchase_return_id=$1 ORDER BY id`, returnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []PurchaseReturnItem{}
	for rows.Next() {
		var item PurchaseReturnItem
		var kind string
		if err := rows.Scan(&item.ID, &item.ReturnID, &kind, &item.Item.ID, &item.Qty); err != nil {
			return nil, err
		}
		item.Item.Kind = stock.ItemKind(kind)
		items = append(items, item)
	}
	return items, rows.Err()
}

func queryInvoices(ctx context.Context, q querier, receiptID int64) ([]Invoice, error) {
	rows, err := q.Query(ctx, `SELECT id, invoice_receipt_id, number, invoice_date, amount, notes
FROM invoices WHERE invoice_receipt_id=$1 ORDER BY id`, receiptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	invoices := []Invoice{}
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.ID, &inv.ReceiptID, &inv.Number, &inv.Date, &inv.Amount, &inv.Note); err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
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

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
