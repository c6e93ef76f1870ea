// Package stocktest provides an in-memory LedgerTx for service tests.
package stocktest

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/arunika-erp/arunika-erp/internal/stock"
)

// Ledger keeps balances and movements in maps. It is not safe for concurrent
// use; tests drive it from one goroutine.
type Ledger struct {
	Balances  map[string]stock.Balance
	Movements []stock.Movement
	nextID    int64
}

// NewLedger constructs an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{Balances: make(map[string]stock.Balance)}
}

// Seed sets a balance directly, bypassing the movement log.
func (l *Ledger) Seed(item stock.ItemRef, warehouseID int64, qty decimal.Decimal) {
	l.Balances[key(item, warehouseID)] = stock.Balance{Item: item, WarehouseID: warehouseID, Qty: qty}
}

// Qty returns the current balance quantity, zero when absent.
func (l *Ledger) Qty(item stock.ItemRef, warehouseID int64) decimal.Decimal {
	if bal, ok := l.Balances[key(item, warehouseID)]; ok {
		return bal.Qty
	}
	return decimal.Zero
}

// MovementsFor filters recorded movements by item and warehouse.
func (l *Ledger) MovementsFor(item stock.ItemRef, warehouseID int64) []stock.Movement {
	var out []stock.Movement
	for _, mv := range l.Movements {
		if mv.Item == item && mv.WarehouseID == warehouseID {
			out = append(out, mv)
		}
	}
	return out
}

func (l *Ledger) GetBalanceForUpdate(ctx context.Context, item stock.ItemRef, warehouseID int64) (stock.Balance, error) {
	if bal, ok := l.Balances[key(item, warehouseID)]; ok {
		return bal, nil
	}
	return stock.Balance{}, stock.ErrBalanceNotFound
}

func (l *Ledger) UpsertBalance(ctx context.Context, balance stock.Balance) error {
	l.Balances[key(balance.Item, balance.WarehouseID)] = balance
	return nil
}

func (l *Ledger) InsertMovement(ctx context.Context, mv stock.Movement) (int64, error) {
	l.nextID++
	mv.ID = l.nextID
	l.Movements = append(l.Movements, mv)
	return mv.ID, nil
}

func key(item stock.ItemRef, warehouseID int64) string {
	return fmt.Sprintf("%s:%d:%d", item.Kind, item.ID, warehouseID)
}
