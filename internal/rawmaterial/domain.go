// Package rawmaterial holds the raw-material stock documents: inbound
// receipts, outbound issues, and set-to-actual adjustments.
package rawmaterial

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Document lifecycle statuses shared by stock in and stock out.
type DocStatus string

const (
	DocStatusDraft  DocStatus = "draft"
	DocStatusPosted DocStatus = "posted"
)

// StockIn receives raw materials into a warehouse.
type StockIn struct {
	ID          int64
	Code        string
	WarehouseID int64
	Date        time.Time
	Note        string
	Status      DocStatus
	Items       []StockInItem
	CreatedBy   int64
	PostedBy    int64
	PostedAt    time.Time
	DeletedAt   time.Time
}

// StockInItem is one received line.
type StockInItem struct {
	ID            int64
	StockInID     int64
	RawMaterialID int64
	Qty           decimal.Decimal
}

// StockOut issues raw materials out of a warehouse.
type StockOut struct {
	ID          int64
	Code        string
	WarehouseID int64
	Date        time.Time
	Note        string
	Status      DocStatus
	Items       []StockOutItem
	CreatedBy   int64
	PostedBy    int64
	PostedAt    time.Time
	DeletedAt   time.Time
}

// StockOutItem is one issued line.
type StockOutItem struct {
	ID            int64
	StockOutID    int64
	RawMaterialID int64
	Qty           decimal.Decimal
}

// Adjustment is a single-step correction that sets a raw-material balance to
// the counted quantity. It posts on creation; there is no draft state.
type Adjustment struct {
	ID            int64
	RawMaterialID int64
	WarehouseID   int64
	QtyBefore     decimal.Decimal
	QtyAfter      decimal.Decimal
	Difference    decimal.Decimal
	Reason        string
	CreatedBy     int64
	CreatedAt     time.Time
	DeletedAt     time.Time
}

var (
	// ErrNotFound indicates a missing document.
	ErrNotFound = errors.New("rawmaterial: not found")
	// ErrInvalidState occurs when an action violates the document workflow.
	ErrInvalidState = errors.New("rawmaterial: invalid state transition")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("rawmaterial: invalid input")
	// ErrDeleted indicates the document is soft deleted.
	ErrDeleted = errors.New("rawmaterial: document deleted")
)
