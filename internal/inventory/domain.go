package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arunika-erp/arunika-erp/internal/stock"
)

// Stock adjustment lifecycle statuses.
type AdjustmentStatus string

const (
	AdjustmentStatusDraft  AdjustmentStatus = "draft"
	AdjustmentStatusPosted AdjustmentStatus = "posted"
)

// Stock request lifecycle statuses.
type RequestStatus string

const (
	RequestStatusDraft    RequestStatus = "draft"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
)

// Stock transfer lifecycle statuses.
type TransferStatus string

const (
	TransferStatusDraft    TransferStatus = "draft"
	TransferStatusApproved TransferStatus = "approved"
	TransferStatusRejected TransferStatus = "rejected"
	TransferStatusExecuted TransferStatus = "executed"
)

// StockAdjustment reconciles recorded balances against a physical count.
type StockAdjustment struct {
	ID          int64
	Code        string
	WarehouseID int64
	Date        time.Time
	Note        string
	Status      AdjustmentStatus
	Items       []StockAdjustmentItem
	CreatedBy   int64
	PostedBy    int64
	PostedAt    time.Time
	DeletedAt   time.Time
}

// StockAdjustmentItem holds the counted quantity next to the system snapshot.
type StockAdjustmentItem struct {
	ID           int64
	AdjustmentID int64
	ProductID    int64
	SystemQty    decimal.Decimal
	ActualQty    decimal.Decimal
	Difference   decimal.Decimal
}

// StockRequest asks the warehouse to issue finished products.
type StockRequest struct {
	ID          int64
	Code        string
	WarehouseID int64
	Date        time.Time
	Note        string
	Status      RequestStatus
	Completed   bool
	Items       []StockRequestItem
	CreatedBy   int64
	DecidedBy   int64
	DecidedAt   time.Time
	DeletedAt   time.Time
}

// StockRequestItem is one requested product line.
type StockRequestItem struct {
	ID        int64
	RequestID int64
	ProductID int64
	Qty       decimal.Decimal
}

// StockOut fulfils an approved stock request.
type StockOut struct {
	ID          int64
	Code        string
	RequestID   int64
	WarehouseID int64
	Date        time.Time
	Note        string
	Items       []StockOutItem
	CreatedBy   int64
	CreatedAt   time.Time
	DeletedAt   time.Time
}

// StockOutItem is one issued product line.
type StockOutItem struct {
	ID         int64
	StockOutID int64
	ProductID  int64
	Qty        decimal.Decimal
}

// StockTransfer moves items between warehouses. Lines may reference
// finished products or raw materials.
type StockTransfer struct {
	ID              int64
	Code            string
	FromWarehouseID int64
	ToWarehouseID   int64
	Date            time.Time
	Note            string
	Status          TransferStatus
	Items           []StockTransferItem
	CreatedBy       int64
	DecidedBy       int64
	ExecutedBy      int64
	ExecutedAt      time.Time
	DeletedAt       time.Time
}

// StockTransferItem carries a polymorphic item reference.
type StockTransferItem struct {
	ID         int64
	TransferID int64
	Item       stock.ItemRef
	Qty        decimal.Decimal
}

// InitialStock seeds the opening balance of a product in a warehouse.
type InitialStock struct {
	ID          int64
	ProductID   int64
	WarehouseID int64
	Qty         decimal.Decimal
	CreatedBy   int64
	CreatedAt   time.Time
}

var (
	// ErrNotFound indicates a missing document.
	ErrNotFound = errors.New("inventory: not found")
	// ErrInvalidState occurs when an action violates the document workflow.
	ErrInvalidState = errors.New("inventory: invalid state transition")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("inventory: invalid input")
	// ErrRequestCompleted indicates the stock request already has a stock out.
	ErrRequestCompleted = errors.New("inventory: stock request already completed")
	// ErrDeleted indicates the document is soft deleted.
	ErrDeleted = errors.New("inventory: document deleted")
)

var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusDraft: {RequestStatusApproved, RequestStatusRejected},
}

var transferTransitions = map[TransferStatus][]TransferStatus{
	TransferStatusDraft:    {TransferStatusApproved, TransferStatusRejected},
	TransferStatusApproved: {TransferStatusExecuted},
}

func canRequestTransition(from, to RequestStatus) bool {
	for _, next := range requestTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func canTransferTransition(from, to TransferStatus) bool {
	for _, next := range transferTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
