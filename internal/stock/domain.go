package stock

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ItemKind discriminates the two stock-bearing item families.
type ItemKind string

const (
	// KindProduct marks finished goods.
	KindProduct ItemKind = "product"
	// KindRawMaterial marks production inputs.
	KindRawMaterial ItemKind = "raw_material"
)

// ItemRef is a tagged reference to either a product or a raw material.
type ItemRef struct {
	Kind ItemKind
	ID   int64
}

// ProductRef builds a finished-good reference.
func ProductRef(id int64) ItemRef {
	return ItemRef{Kind: KindProduct, ID: id}
}

// RawMaterialRef builds a raw-material reference.
func RawMaterialRef(id int64) ItemRef {
	return ItemRef{Kind: KindRawMaterial, ID: id}
}

// Valid reports whether the reference carries a known kind and a positive id.
func (r ItemRef) Valid() bool {
	return (r.Kind == KindProduct || r.Kind == KindRawMaterial) && r.ID > 0
}

func (r ItemRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// MovementType enumerates ledger entry directions. Casing is uniform across
// both item kinds.
type MovementType string

const (
	MovementIn          MovementType = "IN"
	MovementOut         MovementType = "OUT"
	MovementAdjustment  MovementType = "ADJUSTMENT"
	MovementTransferIn  MovementType = "TRANSFER_IN"
	MovementTransferOut MovementType = "TRANSFER_OUT"
)

// DocRef points a movement back at the document that caused it.
type DocRef struct {
	DocType string
	DocID   int64
}

// Balance is the current on-hand quantity for an item at a warehouse. Rows are
// created lazily on first inbound movement and never deleted.
type Balance struct {
	Item        ItemRef
	WarehouseID int64
	Qty         decimal.Decimal
	UpdatedAt   time.Time
}

// Movement is an immutable ledger fact. Quantity is a non-negative magnitude
// for directional types; adjustments carry the signed difference so the log
// stays reconstructible.
type Movement struct {
	ID          int64
	Item        ItemRef
	WarehouseID int64
	Type        MovementType
	Qty         decimal.Decimal
	Ref         DocRef
	Note        string
	CreatedBy   int64
	CreatedAt   time.Time
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	Kind        ItemKind
	ItemID      int64
	WarehouseID int64
	From        time.Time
	To          time.Time
	Limit       int
}

// Shortfall describes one line that could not be satisfied.
type Shortfall struct {
	Item        ItemRef
	WarehouseID int64
	Required    decimal.Decimal
	Available   decimal.Decimal
	Shortage    decimal.Decimal
}

// InsufficientError carries the full shortfall list for a rejected posting.
type InsufficientError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, fmt.Sprintf("%s at warehouse %d: required %s, available %s",
			s.Item, s.WarehouseID, s.Required, s.Available))
	}
	return "stock: insufficient balance: " + strings.Join(parts, "; ")
}

// AsInsufficient unwraps an InsufficientError if err carries one.
func AsInsufficient(err error) (*InsufficientError, bool) {
	var ie *InsufficientError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

var (
	// ErrBalanceNotFound indicates a missing balance row.
	ErrBalanceNotFound = errors.New("stock: balance not found")
	// ErrInvalidQuantity indicates a non-positive magnitude.
	ErrInvalidQuantity = errors.New("stock: quantity must be positive")
	// ErrInvalidItem indicates a malformed item reference.
	ErrInvalidItem = errors.New("stock: invalid item reference")
	// ErrNegativeBalance indicates a mutation that would drive a balance below zero.
	ErrNegativeBalance = errors.New("stock: negative balance not allowed")
)
