// Package procurement implements the purchasing chain: purchase request,
// purchase order, goods receipt, purchase return, and invoice receipt.
package procurement

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arunika-erp/arunika-erp/internal/stock"
)

// Purchase request lifecycle statuses.
type PRStatus string

const (
	PRStatusDraft     PRStatus = "draft"
	PRStatusSubmitted PRStatus = "submitted"
	PRStatusApproved  PRStatus = "approved"
	PRStatusRejected  PRStatus = "rejected"
)

// Purchase order lifecycle statuses.
type POStatus string

const (
	POStatusDraft    POStatus = "draft"
	POStatusSent     POStatus = "sent"
	POStatusReceived POStatus = "received"
)

// Goods receipt lifecycle statuses.
type GRStatus string

const (
	GRStatusDraft  GRStatus = "draft"
	GRStatusPosted GRStatus = "posted"
)

// Purchase return lifecycle statuses.
type ReturnStatus string

const (
	ReturnStatusDraft     ReturnStatus = "draft"
	ReturnStatusPending   ReturnStatus = "pending"
	ReturnStatusApproved  ReturnStatus = "approved"
	ReturnStatusRejected  ReturnStatus = "rejected"
	ReturnStatusRealized  ReturnStatus = "realized"
	ReturnStatusCompleted ReturnStatus = "completed"
)

// Invoice receipt lifecycle statuses.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSubmitted InvoiceStatus = "submitted"
	InvoiceStatusApproved  InvoiceStatus = "approved"
	InvoiceStatusRejected  InvoiceStatus = "rejected"
)

// PurchaseRequest asks for items to be bought. Completed marks that a live
// purchase order exists for it.
type PurchaseRequest struct {
	ID         int64
	Code       string
	SupplierID int64
	Date       time.Time
	Note       string
	Status     PRStatus
	Completed  bool
	Items      []PurchaseRequestItem
	CreatedBy  int64
	DecidedBy  int64
	DecidedAt  time.Time
	DeletedAt  time.Time
}

// PurchaseRequestItem is one requested line; items may be finished products
// or raw materials.
type PurchaseRequestItem struct {
	ID        int64
	RequestID int64
	Item      stock.ItemRef
	Qty       decimal.Decimal
	Note      string
}

// PurchaseOrder is generated from an approved purchase request.
type PurchaseOrder struct {
	ID           int64
	Code         string
	RequestID    int64
	SupplierID   int64
	Date         time.Time
	ExpectedDate time.Time
	Note         string
	Status       POStatus
	Items        []PurchaseOrderItem
	CreatedBy    int64
	DeletedAt    time.Time
}

// PurchaseOrderItem carries the ordered quantity and the negotiated price.
type PurchaseOrderItem struct {
	ID       int64
	OrderID  int64
	Item     stock.ItemRef
	Qty      decimal.Decimal
	Price    decimal.Decimal
	Subtotal decimal.Decimal
}

// Total sums the line subtotals.
func (po PurchaseOrder) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range po.Items {
		total = total.Add(item.Subtotal)
	}
	return total
}

// GoodsReceipt records what actually arrived against a sent purchase order.
type GoodsReceipt struct {
	ID          int64
	Code        string
	OrderID     int64
	WarehouseID int64
	Date        time.Time
	Note        string
	Status      GRStatus
	Items       []GoodsReceiptItem
	CreatedBy   int64
	PostedBy    int64
	PostedAt    time.Time
	DeletedAt   time.Time
}

// GoodsReceiptItem references the ordered line and the received quantity.
type GoodsReceiptItem struct {
	ID         int64
	ReceiptID  int64
	OrderItem  int64
	Item       stock.ItemRef
	QtyOrdered decimal.Decimal
	QtyActual  decimal.Decimal
	UnitPrice  decimal.Decimal
}

// PurchaseReturn sends received goods back to the supplier.
type PurchaseReturn struct {
	ID          int64
	Code        string
	OrderID     int64
	WarehouseID int64
	Date        time.Time
	Reason      string
	Status      ReturnStatus
	Items       []PurchaseReturnItem
	CreatedBy   int64
	DecidedBy   int64
	RealizedBy  int64
	RealizedAt  time.Time
	DeletedAt   time.Time
}

// PurchaseReturnItem is one returned line.
type PurchaseReturnItem struct {
	ID       int64
	ReturnID int64
	Item     stock.ItemRef
	Qty      decimal.Decimal
}

// InvoiceReceipt collects supplier invoices against a purchase order.
type InvoiceReceipt struct {
	ID        int64
	Code      string
	OrderID   int64
	Note      string
	Status    InvoiceStatus
	Invoices  []Invoice
	CreatedBy int64
	DecidedBy int64
	DecidedAt time.Time
	DeletedAt time.Time
}

// Invoice is one supplier invoice attached to a receipt.
type Invoice struct {
	ID        int64
	ReceiptID int64
	Number    string
	Date      time.Time
	Amount    decimal.Decimal
	Note      string
}

// InvoiceSummary aggregates the invoices of one receipt.
type InvoiceSummary struct {
	ReceiptID   int64
	Count       int
	TotalAmount decimal.Decimal
}

var (
	// ErrNotFound indicates a missing document.
	ErrNotFound = errors.New("procurement: not found")
	// ErrInvalidState occurs when an action violates the document workflow.
	ErrInvalidState = errors.New("procurement: invalid state transition")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("procurement: invalid input")
	// ErrPOExists indicates the purchase request already has a live purchase order.
	ErrPOExists = errors.New("procurement: purchase request already has a purchase order")
	// ErrDeleted indicates the document is soft deleted.
	ErrDeleted = errors.New("procurement: document deleted")
)

var prTransitions = map[PRStatus][]PRStatus{
	PRStatusDraft:     {PRStatusSubmitted},
	PRStatusSubmitted: {PRStatusApproved, PRStatusRejected},
}

var poTransitions = map[POStatus][]POStatus{
	POStatusDraft: {POStatusSent},
	POStatusSent:  {POStatusReceived},
}

var returnTransitions = map[ReturnStatus][]ReturnStatus{
	ReturnStatusDraft:    {ReturnStatusPending},
	ReturnStatusPending:  {ReturnStatusApproved, ReturnStatusRejected},
	ReturnStatusApproved: {ReturnStatusRealized},
	ReturnStatusRealized: {ReturnStatusCompleted},
}

var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft:     {InvoiceStatusSubmitted},
	InvoiceStatusSubmitted: {InvoiceStatusApproved, InvoiceStatusRejected},
}

func canPRTransition(from, to PRStatus) bool {
	for _, next := range prTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func canPOTransition(from, to POStatus) bool {
	for _, next := range poTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func canReturnTransition(from, to ReturnStatus) bool {
	for _, next := range returnTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func canInvoiceTransition(from, to InvoiceStatus) bool {
	for _, next := range invoiceTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
