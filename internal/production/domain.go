// Package production implements bill-of-material management and the
// production order cost engine.
package production

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Production order lifecycle statuses.
type OrderStatus string

const (
	OrderStatusDraft      OrderStatus = "draft"
	OrderStatusReleased   OrderStatus = "released"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusCompleted  OrderStatus = "completed"
)

// BillOfMaterial lists the raw materials consumed per batch of a product.
type BillOfMaterial struct {
	ID        int64
	Code      string
	ProductID int64
	Name      string
	BatchSize decimal.Decimal
	Active    bool
	Lines     []BOMLine
	CreatedBy int64
	DeletedAt time.Time
}

// BOMLine is the raw material quantity needed per batch.
type BOMLine struct {
	ID            int64
	BOMID         int64
	RawMaterialID int64
	Qty           decimal.Decimal
}

// ProductionOrder runs one production batch through the cost engine. Costs
// fill in as the order advances: material at start, labor and overhead at
// completion.
type ProductionOrder struct {
	ID             int64
	Code           string
	ProductID      int64
	BOMID          int64
	WarehouseID    int64
	Date           time.Time
	QuantityPlan   decimal.Decimal
	QuantityActual decimal.Decimal
	Waste          decimal.Decimal
	MaterialCost   decimal.Decimal
	LaborCost      decimal.Decimal
	OverheadCost   decimal.Decimal
	TotalCost      decimal.Decimal
	UnitCost       decimal.Decimal
	Note           string
	Status         OrderStatus
	CreatedBy      int64
	ReleasedAt     time.Time
	StartedAt      time.Time
	CompletedAt    time.Time
	DeletedAt      time.Time
}

// MaterialUsage records one raw material draw of an order, priced at the
// material's last purchase price when the order started.
type MaterialUsage struct {
	ID            int64
	OrderID       int64
	RawMaterialID int64
	Qty           decimal.Decimal
	UnitCost      decimal.Decimal
	TotalCost     decimal.Decimal
}

// Report summarises a completed order.
type Report struct {
	Order      ProductionOrder
	Efficiency decimal.Decimal
	Usages     []MaterialUsage
}

var (
	// ErrNotFound indicates a missing record.
	ErrNotFound = errors.New("production: not found")
	// ErrInvalidState occurs when an action violates the order workflow.
	ErrInvalidState = errors.New("production: invalid state transition")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("production: invalid input")
	// ErrBOMMismatch indicates the BOM does not belong to the ordered product.
	ErrBOMMismatch = errors.New("production: bom does not belong to product")
	// ErrDeleted indicates the record is soft deleted.
	ErrDeleted = errors.New("production: record deleted")
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusDraft:      {OrderStatusReleased},
	OrderStatusReleased:   {OrderStatusInProgress},
	OrderStatusInProgress: {OrderStatusCompleted},
}

func canOrderTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
