package production

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

// Repository persists BOMs and production orders in PostgreSQL.
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
		return errors.New("production repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxLedger: stock.NewTxLedger(tx), tx: tx})
	})
}

func (t *txRepository) InsertBOM(ctx context.Context, bom BillOfMaterial) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO bill_of_materials (code, product_id, name, batch_size, active, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW()) RETURNING id`,
		bom.Code, bom.ProductID, bom.Name, bom.BatchSize, bom.Active, nullInt(bom.CreatedBy)).Scan(&id)
	return id, err
}

func (t *txRepository) InsertBOMLines(ctx context.Context, bomID int64, lines []BOMLine) error {
	for _, line := range lines {
		if _, err := t.tx.Exec(ctx, `INSERT INTO bill_of_material_lines (bill_of_material_id, raw_material_id, quantity)
VALUES ($1,$2,$3)`, bomID, line.RawMaterialID, line.Qty); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) GetBOMForUpdate(ctx context.Context, id int64) (BillOfMaterial, error) {
	bom, err := scanBOM(t.tx.QueryRow(ctx, bomSelect+` WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return BillOfMaterial{}, err
	}
	bom.Lines, err = queryBOMLines(ctx, t.tx, id)
	return bom, err
}

func (t *txRepository) UpdateBOMHeader(ctx context.Context, bom BillOfMaterial) error {
	_, err := t.tx.Exec(ctx, `UPDATE bill_of_materials SET name=$2, batch_size=$3 WHERE id=$1`,
		bom.ID, bom.Name, bom.BatchSize)
	return err
}

func (t *txRepository) ReplaceBOMLines(ctx context.Context, bomID int64, lines []BOMLine) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM bill_of_material_lines WHERE bill_of_material_id=$1`, bomID); err != nil {
		return err
	}
	return t.InsertBOMLines(ctx, bomID, lines)
}

func (t *txRepository) SetBOMActive(ctx context.Context, id int64, active bool) error {
	_, err := t.tx.Exec(ctx, `UPDATE bill_of_materials SET active=$2 WHERE id=$1`, id, active)
	return err
}

func (t *txRepository) SetBOMDeleted(ctx context.Context, id int64, deleted bool) error {
	return setDeleted(ctx, t.tx, "bill_of_materials", id, deleted)
}

func (t *txRepository) InsertOrder(ctx context.Context, doc ProductionOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO production_orders (code, product_id, bill_of_material_id, warehouse_id, order_date, quantity_plan, notes, status, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW()) RETURNING id`,
		doc.Code, doc.ProductID, doc.BOMID, doc.WarehouseID, doc.Date, doc.QuantityPlan, doc.Note, string(doc.Status), nullInt(doc.CreatedBy)).Scan(&id)
	return id, err
}

func (t *txRepository) GetOrderForUpdate(ctx context.Context, id int64) (ProductionOrder, error) {
	return scanOrder(t.tx.QueryRow(ctx, orderSelect+` WHERE id=$1 FOR UPDATE`, id))
}

func (t *txRepository) UpdateOrderHeader(ctx context.Context, doc ProductionOrder) error {
	_, err := t.tx.Exec(ctx, `UPDATE production_orders SET order_date=$2, quantity_plan=$3, notes=$4 WHERE id=$1`,
		doc.ID, doc.Date, doc.QuantityPlan, doc.Note)
	return err
}

func (t *txRepository) SetOrderStatus(ctx context.Context, id int64, status OrderStatus, at time.Time) error {
	column := ""
	switch status {
	case OrderStatusReleased:
		column = "released_at"
	case OrderStatusInProgress:
		column = "started_at"
	case OrderStatusCompleted:
		column = "completed_at"
	}
	if column == "" {
		_, err := t.tx.Exec(ctx, `UPDATE production_orders SET status=$2 WHERE id=$1`, id, string(status))
		return err
	}
	_, err := t.tx.Exec(ctx, `UPDATE production_orders SET status=$2, `+column+`=$3 WHERE id=$1`, id, string(status), at)
	return err
}

func (t *txRepository) SetOrderMaterialCost(ctx context.Context, id int64, cost decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE production_orders SET material_cost=$2 WHERE id=$1`, id, cost)
	return err
}

func (t *txRepository) SetOrderCompletion(ctx context.Context, doc ProductionOrder) error {
	_, err := t.tx.Exec(ctx, `UPDATE production_orders
SET status=$2, quantity_actual=$3, waste=$4, labor_cost=$5, overhead_cost=$6, total_cost=$7, unit_cost=$8, completed_at=$9
WHERE id=$1`,
		doc.ID, string(doc.Status), doc.QuantityActual, doc.Waste, doc.LaborCost, doc.OverheadCost, doc.TotalCost, doc.UnitCost, doc.CompletedAt)
	return err
}

func (t *txRepository) SetOrderDeleted(ctx context.Context, id int64, deleted bool) error {
	return setDeleted(ctx, t.tx, "production_orders", id, deleted)
}

func (t *txRepository) InsertMaterialUsage(ctx context.Context, usage MaterialUsage) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO production_material_usages (production_order_id, raw_material_id, quantity, unit_cost, total_cost)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		usage.OrderID, usage.RawMaterialID, usage.Qty, usage.UnitCost, usage.TotalCost).Scan(&id)
	return id, err
}

func (t *txRepository) GetRawMaterialLastPrice(ctx context.Context, rawMaterialID int64) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(last_purchase_price, 0) FROM raw_materials WHERE id=$1`, rawMaterialID).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	return price, err
}

const bomSelect = `SELECT id, code, product_id, name, batch_size, active, created_by, deleted_at FROM bill_of_materials`

func (r *Repository) GetBOM(ctx context.Context, id int64) (BillOfMaterial, error) {
	bom, err := scanBOM(r.pool.QueryRow(ctx, bomSelect+` WHERE id=$1`, id))
	if err != nil {
		return BillOfMaterial{}, err
	}
	bom.Lines, err = queryBOMLines(ctx, r.pool, id)
	return bom, err
}

func (r *Repository) ListBOMs(ctx context.Context, filter ListFilter) ([]BillOfMaterial, error) {
	rows, err := r.pool.Query(ctx, bomSelect+listClause(filter), listLimit(filter))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	boms := []BillOfMaterial{}
	for rows.Next() {
		bom, err := scanBOM(rows)
		if err != nil {
			return nil, err
		}
		boms = append(boms, bom)
	}
	return boms, rows.Err()
}

const orderSelect = `SELECT id, code, product_id, bill_of_material_id, warehouse_id, order_date, quantity_plan, quantity_actual, waste,
material_cost, labor_cost, overhead_cost, total_cost, unit_cost, notes, status, created_by, released_at, started_at, completed_at, deleted_at
FROM production_orders`

func (r *Repository) GetOrder(ctx context.Context, id int64) (ProductionOrder, error) {
	return scanOrder(r.pool.QueryRow(ctx, orderSelect+` WHERE id=$1`, id))
}

func (r *Repository) ListOrders(ctx context.Context, filter ListFilter) ([]ProductionOrder, error) {
	rows, err := r.pool.Query(ctx, orderSelect+listClause(filter), listLimit(filter))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := []ProductionOrder{}
	for rows.Next() {
		doc, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *Repository) ListUsages(ctx context.Context, orderID int64) ([]MaterialUsage, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, production_order_id, raw_material_id, quantity, unit_cost, total_cost
FROM production_material_usages WHERE production_order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	usages := []MaterialUsage{}
	for rows.Next() {
		var usage MaterialUsage
		if err := rows.Scan(&usage.ID, &usage.OrderID, &usage.RawMaterialID, &usage.Qty, &usage.UnitCost, &usage.TotalCost); err != nil {
			return nil, err
		}
		usages = append(usages, usage)
	}
	return usages, rows.Err()
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBOM(row rowScanner) (BillOfMaterial, error) {
	var bom BillOfMaterial
	var createdBy *int64
	var deletedAt *time.Time
	if err := row.Scan(&bom.ID, &bom.Code, &bom.ProductID, &bom.Name, &bom.BatchSize, &bom.Active, &createdBy, &deletedAt); err != nil {
		return BillOfMaterial{}, mapNoRows(err)
	}
	bom.CreatedBy = deref(createdBy)
	bom.DeletedAt = derefTime(deletedAt)
	return bom, nil
}

func scanOrder(row rowScanner) (ProductionOrder, error) {
	var doc ProductionOrder
	var status string
	var createdBy *int64
	var releasedAt, startedAt, completedAt, deletedAt *time.Time
	if err := row.Scan(&doc.ID, &doc.Code, &doc.ProductID, &doc.BOMID, &doc.WarehouseID, &doc.Date,
		&doc.QuantityPlan, &doc.QuantityActual, &doc.Waste,
		&doc.MaterialCost, &doc.LaborCost, &doc.OverheadCost, &doc.TotalCost, &doc.UnitCost,
		&doc.Note, &status, &createdBy, &releasedAt, &startedAt, &completedAt, &deletedAt); err != nil {
		return ProductionOrder{}, mapNoRows(err)
	}
	doc.Status = OrderStatus(status)
	doc.CreatedBy = deref(createdBy)
	doc.ReleasedAt = derefTime(releasedAt)
	doc.StartedAt = derefTime(startedAt)
	doc.CompletedAt = derefTime(completedAt)
	doc.DeletedAt = derefTime(deletedAt)
	return doc, nil
}

func queryBOMLines(ctx context.Context, q querier, bomID int64) ([]BOMLine, error) {
	rows, err := q.Query(ctx, `SELECT id, bill_of_material_id, raw_material_id, quantity
FROM bill_of_material_lines WHERE bill_of_material_id=$1 ORDER BY id`, bomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []BOMLine{}
	for rows.Next() {
		var line BOMLine
		if err := rows.Scan(&line.ID, &line.BOMID, &line.RawMaterialID, &line.Qty); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
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
