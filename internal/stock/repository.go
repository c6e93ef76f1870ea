package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Table pairs per item kind. Two balance tables and two movement tables; the
// kind switch lives here and nowhere else.
func balanceTable(kind ItemKind) (table, itemCol string, err error) {
	switch kind {
	case KindProduct:
		return "product_stocks", "product_id", nil
	case KindRawMaterial:
		return "raw_material_stocks", "raw_material_id", nil
	default:
		return "", "", fmt.Errorf("stock: unknown item kind %q", kind)
	}
}

func movementTable(kind ItemKind) (table, itemCol string, err error) {
	switch kind {
	case KindProduct:
		return "stock_movements", "product_id", nil
	case KindRawMaterial:
		return "raw_material_stock_movements", "raw_material_id", nil
	default:
		return "", "", fmt.Errorf("stock: unknown item kind %q", kind)
	}
}

// TxLedger implements LedgerTx over an open pgx transaction.
type TxLedger struct {
	tx pgx.Tx
}

// NewTxLedger binds the ledger to a transaction owned by a document repository.
func NewTxLedger(tx pgx.Tx) *TxLedger {
	return &TxLedger{tx: tx}
}

// GetBalanceForUpdate reads a balance row with SELECT ... FOR UPDATE.
func (l *TxLedger) GetBalanceForUpdate(ctx context.Context, item ItemRef, warehouseID int64) (Balance, error) {
	table, col, err := balanceTable(item.Kind)
	if err != nil {
		return Balance{}, err
	}
	bal := Balance{Item: item, WarehouseID: warehouseID}
	query := fmt.Sprintf(`SELECT quantity, updated_at FROM %s WHERE %s=$1 AND warehouse_id=$2 FOR UPDATE`, table, col)
	if err := l.tx.QueryRow(ctx, query, item.ID, warehouseID).Scan(&bal.Qty, &bal.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return bal, nil
}

// UpsertBalance writes the mutated quantity back.
func (l *TxLedger) UpsertBalance(ctx context.Context, balance Balance) error {
	table, col, err := balanceTable(balance.Item.Kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s, warehouse_id, quantity, updated_at)
VALUES ($1,$2,$3,NOW())
ON CONFLICT (%s, warehouse_id) DO UPDATE SET quantity=EXCLUDED.quantity, updated_at=NOW()`, table, col, col)
	_, err = l.tx.Exec(ctx, query, balance.Item.ID, balance.WarehouseID, balance.Qty)
	return err
}

// InsertMovement appends one ledger row. There is no update or delete path.
func (l *TxLedger) InsertMovement(ctx context.Context, mv Movement) (int64, error) {
	table, col, err := movementTable(mv.Item.Kind)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s, warehouse_id, movement_type, quantity, reference_type, reference_id, notes, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING id`, table, col)
	var id int64
	err = l.tx.QueryRow(ctx, query,
		mv.Item.ID, mv.WarehouseID, string(mv.Type), mv.Qty,
		mv.Ref.DocType, mv.Ref.DocID, mv.Note, nullInt(mv.CreatedBy)).Scan(&id)
	return id, err
}

// Repository serves the read side: balance and movement listings.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListBalances returns balances of one kind, optionally filtered by warehouse.
func (r *Repository) ListBalances(ctx context.Context, kind ItemKind, warehouseID int64) ([]Balance, error) {
	table, col, err := balanceTable(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s, warehouse_id, quantity, updated_at FROM %s
WHERE ($1 = 0 OR warehouse_id = $1) ORDER BY warehouse_id, %s`, col, table, col)
	rows, err := r.pool.Query(ctx, query, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	balances := []Balance{}
	for rows.Next() {
		bal := Balance{Item: ItemRef{Kind: kind}}
		if err := rows.Scan(&bal.Item.ID, &bal.WarehouseID, &bal.Qty, &bal.UpdatedAt); err != nil {
			return nil, err
		}
		balances = append(balances, bal)
	}
	return balances, rows.Err()
}

// ListMovements returns ledger rows matching the filter, oldest first.
func (r *Repository) ListMovements(ctx context.Context, f MovementFilter) ([]Movement, error) {
	table, col, err := movementTable(f.Kind)
	if err != nil {
		return nil, err
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}
	query := fmt.Sprintf(`SELECT id, %s, warehouse_id, movement_type, quantity, reference_type, reference_id, notes, created_by, created_at
FROM %s
WHERE ($1 = 0 OR %s = $1)
  AND ($2 = 0 OR warehouse_id = $2)
  AND created_at BETWEEN COALESCE($3, '-infinity') AND COALESCE($4, 'infinity')
ORDER BY created_at ASC, id ASC
LIMIT $5`, col, table, col)
	rows, err := r.pool.Query(ctx, query, f.ItemID, f.WarehouseID, nullTime(f.From), nullTime(f.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		mv := Movement{Item: ItemRef{Kind: f.Kind}}
		var movementType string
		var createdBy *int64
		if err := rows.Scan(&mv.ID, &mv.Item.ID, &mv.WarehouseID, &movementType, &mv.Qty,
			&mv.Ref.DocType, &mv.Ref.DocID, &mv.Note, &createdBy, &mv.CreatedAt); err != nil {
			return nil, err
		}
		mv.Type = MovementType(movementType)
		if createdBy != nil {
			mv.CreatedBy = *createdBy
		}
		movements = append(movements, mv)
	}
	return movements, rows.Err()
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
