package stock

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerTx is the transactional surface every stock mutation rides on. The pgx
// repositories implement it on top of an open transaction; tests implement it
// with maps. GetBalanceForUpdate must acquire a row lock held until the
// enclosing transaction commits or rolls back.
type LedgerTx interface {
	GetBalanceForUpdate(ctx context.Context, item ItemRef, warehouseID int64) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	InsertMovement(ctx context.Context, mv Movement) (int64, error)
}

// Entry describes one prospective stock mutation within a posting transaction.
type Entry struct {
	Item        ItemRef
	WarehouseID int64
	Qty         decimal.Decimal
	Type        MovementType
	Ref         DocRef
	Note        string
	ActorID     int64
}

// Credit increases a balance, creating the row lazily, and records the inbound
// movement.
func Credit(ctx context.Context, tx LedgerTx, e Entry) (Balance, error) {
	if !e.Item.Valid() || e.WarehouseID == 0 {
		return Balance{}, ErrInvalidItem
	}
	if e.Qty.Sign() <= 0 {
		return Balance{}, ErrInvalidQuantity
	}
	bal, err := tx.GetBalanceForUpdate(ctx, e.Item, e.WarehouseID)
	if err != nil && !errors.Is(err, ErrBalanceNotFound) {
		return Balance{}, err
	}
	if errors.Is(err, ErrBalanceNotFound) {
		bal = Balance{Item: e.Item, WarehouseID: e.WarehouseID, Qty: decimal.Zero}
	}
	bal.Qty = bal.Qty.Add(e.Qty)
	if err := tx.UpsertBalance(ctx, bal); err != nil {
		return Balance{}, err
	}
	if _, err := tx.InsertMovement(ctx, movementFromEntry(e, e.Qty)); err != nil {
		return Balance{}, err
	}
	return bal, nil
}

// Debit decreases a balance under the row lock. The sufficiency check happens
// after the lock is acquired; a shortfall fails the whole entry with an
// InsufficientError and leaves nothing written.
func Debit(ctx context.Context, tx LedgerTx, e Entry) (Balance, error) {
	if !e.Item.Valid() || e.WarehouseID == 0 {
		return Balance{}, ErrInvalidItem
	}
	if e.Qty.Sign() <= 0 {
		return Balance{}, ErrInvalidQuantity
	}
	bal, err := tx.GetBalanceForUpdate(ctx, e.Item, e.WarehouseID)
	if err != nil {
		if errors.Is(err, ErrBalanceNotFound) {
			return Balance{}, &InsufficientError{Shortfalls: []Shortfall{{
				Item:        e.Item,
				WarehouseID: e.WarehouseID,
				Required:    e.Qty,
				Available:   decimal.Zero,
				Shortage:    e.Qty,
			}}}
		}
		return Balance{}, err
	}
	if bal.Qty.LessThan(e.Qty) {
		return Balance{}, &InsufficientError{Shortfalls: []Shortfall{{
			Item:        e.Item,
			WarehouseID: e.WarehouseID,
			Required:    e.Qty,
			Available:   bal.Qty,
			Shortage:    e.Qty.Sub(bal.Qty),
		}}}
	}
	bal.Qty = bal.Qty.Sub(e.Qty)
	if err := tx.UpsertBalance(ctx, bal); err != nil {
		return Balance{}, err
	}
	if _, err := tx.InsertMovement(ctx, movementFromEntry(e, e.Qty)); err != nil {
		return Balance{}, err
	}
	return bal, nil
}

// Apply shifts a balance by a signed delta. Used by adjustments; a resulting
// negative balance is rejected at this layer in addition to the caller's guard.
func Apply(ctx context.Context, tx LedgerTx, e Entry, delta decimal.Decimal) (Balance, error) {
	if !e.Item.Valid() || e.WarehouseID == 0 {
		return Balance{}, ErrInvalidItem
	}
	if delta.IsZero() {
		return Balance{}, ErrInvalidQuantity
	}
	bal, err := tx.GetBalanceForUpdate(ctx, e.Item, e.WarehouseID)
	if err != nil && !errors.Is(err, ErrBalanceNotFound) {
		return Balance{}, err
	}
	if errors.Is(err, ErrBalanceNotFound) {
		bal = Balance{Item: e.Item, WarehouseID: e.WarehouseID, Qty: decimal.Zero}
	}
	next := bal.Qty.Add(delta)
	if next.Sign() < 0 {
		return Balance{}, ErrNegativeBalance
	}
	bal.Qty = next
	if err := tx.UpsertBalance(ctx, bal); err != nil {
		return Balance{}, err
	}
	if _, err := tx.InsertMovement(ctx, movementFromEntry(e, delta)); err != nil {
		return Balance{}, err
	}
	return bal, nil
}

func movementFromEntry(e Entry, qty decimal.Decimal) Movement {
	return Movement{
		Item:        e.Item,
		WarehouseID: e.WarehouseID,
		Type:        e.Type,
		Qty:         qty,
		Ref:         e.Ref,
		Note:        e.Note,
		CreatedBy:   e.ActorID,
		CreatedAt:   time.Now().UTC(),
	}
}

// Line pairs an item with the warehouse its lock lives at.
type Line struct {
	Item        ItemRef
	WarehouseID int64
}

// SortLines orders balance locks deterministically by (kind, item id,
// warehouse id) so concurrent multi-line postings cannot deadlock.
func SortLines[T any](lines []T, key func(T) Line) {
	sort.SliceStable(lines, func(i, j int) bool {
		a, b := key(lines[i]), key(lines[j])
		if a.Item.Kind != b.Item.Kind {
			return a.Item.Kind < b.Item.Kind
		}
		if a.Item.ID != b.Item.ID {
			return a.Item.ID < b.Item.ID
		}
		return a.WarehouseID < b.WarehouseID
	})
}
