package procurement

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arunika-erp/arunika-erp/internal/stock"
)

// GRItemInput sets the received quantity for one ordered line.
type GRItemInput struct {
	OrderItemID int64
	QtyActual   decimal.Decimal
}

// CreateGRInput describes a goods receipt draft.
type CreateGRInput struct {
	Code        string
	OrderID     int64
	WarehouseID int64
	Date        time.Time
	Note        string
	ActorID     int64
	Items       []GRItemInput
}

// CreateGR drafts a receipt against a sent purchase order. Lines copy the
// item and unit price from the order; when no lines are given every ordered
// line is received in full.
func (s *Service) CreateGR(ctx context.Context, input CreateGRInput) (GoodsReceipt, error) {
	if input.OrderID == 0 || input.WarehouseID == 0 {
		return GoodsReceipt{}, fmt.Errorf("%w: order and warehouse required", ErrValidation)
	}
	var doc GoodsReceipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if !po.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if po.Status != POStatusSent {
			return ErrInvalidState
		}
		items, err := receiptItems(po, input.Items)
		if err != nil {
			return err
		}
		doc = GoodsReceipt{
			Code:        defaultCode(input.Code, "GR"),
			OrderID:     po.ID,
			WarehouseID: input.WarehouseID,
			Date:        defaultDate(input.Date),
			Note:        input.Note,
			Status:      GRStatusDraft,
			CreatedBy:   input.ActorID,
		}
		id, err := tx.InsertGR(ctx, doc)
		if err != nil {
			return err
		}
		if err := tx.InsertGRItems(ctx, id, items); err != nil {
			return err
		}
		doc.ID = id
		doc.Items = items
		return nil
	})
	if err != nil {
		return GoodsReceipt{}, err
	}
	s.recordAudit(ctx, input.ActorID, "gr.create", doc.ID, map[string]any{"code": doc.Code, "order_id": doc.OrderID})
	return doc, nil
}

// UpdateGRInput changes draft header fields and received quantities.
type UpdateGRInput struct {
	Date    time.Time
	Note    string
	ActorID int64
	Items   []GRItemInput
}

// UpdateGR adjusts a draft receipt.
func (s *Service) UpdateGR(ctx context.Context, id int64, input UpdateGRInput) (GoodsReceipt, error) {
	var updated GoodsReceipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetGRForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if doc.Status != GRStatusDraft {
			return ErrInvalidState
		}
		if len(input.Items) > 0 {
			po, err := tx.GetPOForUpdate(ctx, doc.OrderID)
			if err != nil {
				return err
			}
			items, err := receiptItems(po, input.Items)
			if err != nil {
				return err
			}
			if err := tx.ReplaceGRItems(ctx, id, items); err != nil {
				return err
			}
			doc.Items = items
		}
		if !input.Date.IsZero() {
			doc.Date = input.Date
		}
		doc.Note = input.Note
		if err := tx.UpdateGRHeader(ctx, doc); err != nil {
			return err
		}
		updated = doc
		return nil
	})
	if err != nil {
		return GoodsReceipt{}, err
	}
	s.recordAudit(ctx, input.ActorID, "gr.update", id, nil)
	return updated, nil
}

// PostGR credits every received line into stock, refreshes the last purchase
// price of raw material lines, and moves the order to received. One
// transaction covers all of it.
func (s *Service) PostGR(ctx context.Context, id int64, actorID int64) error {
	now := time.Now().UTC()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetGRForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if doc.Status != GRStatusDraft {
			return ErrInvalidState
		}
		items := doc.Items
		stock.SortLines(items, func(it GoodsReceiptItem) stock.Line {
			return stock.Line{Item: it.Item, WarehouseID: doc.WarehouseID}
		})
		for _, item := range items {
			if item.QtyActual.Sign() <= 0 {
				continue
			}
			_, err := stock.Credit(ctx, tx, stock.Entry{
				Item:        item.Item,
				WarehouseID: doc.WarehouseID,
				Qty:         item.QtyActual,
				Type:        stock.MovementIn,
				Ref:         stock.DocRef{DocType: "goods_receipt", DocID: doc.ID},
				Note:        doc.Code,
				ActorID:     actorID,
			})
			if err != nil {
				return err
			}
			if item.Item.Kind == stock.KindRawMaterial && item.UnitPrice.Sign() > 0 {
				if err := tx.UpdateRawMaterialLastPrice(ctx, item.Item.ID, item.UnitPrice); err != nil {
					return err
				}
			}
		}
		if err := tx.SetGRStatus(ctx, id, GRStatusPosted, actorID, now); err != nil {
			return err
		}
		po, err := tx.GetPOForUpdate(ctx, doc.OrderID)
		if err != nil {
			return err
		}
		if canPOTransition(po.Status, POStatusReceived) {
			return tx.SetPOStatus(ctx, po.ID, POStatusReceived)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "gr.post", id, nil)
	return nil
}

// DeleteGR soft deletes a draft receipt.
func (s *Service) DeleteGR(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetGRForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if doc.Status != GRStatusDraft {
			return ErrInvalidState
		}
		return tx.SetGRDeleted(ctx, id, true)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "gr.delete", id, nil)
	return nil
}

// RestoreGR clears the soft-delete marker.
func (s *Service) RestoreGR(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetGRDeleted(ctx, id, false)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "gr.restore", id, nil)
	return nil
}

// GetGR loads one receipt with items.
func (s *Service) GetGR(ctx context.Context, id int64) (GoodsReceipt, error) {
	return s.repo.GetGR(ctx, id)
}

// ListGRs lists receipts.
func (s *Service) ListGRs(ctx context.Context, filter ListFilter) ([]GoodsReceipt, error) {
	return s.repo.ListGRs(ctx, filter)
}

func receiptItems(po PurchaseOrder, inputs []GRItemInput) ([]GoodsReceiptItem, error) {
	byID := make(map[int64]PurchaseOrderItem, len(po.Items))
	for _, line := range po.Items {
		byID[line.ID] = line
	}
	if len(inputs) == 0 {
		items := make([]GoodsReceiptItem, 0, len(po.Items))
		for _, line := range po.Items {
			items = append(items, GoodsReceiptItem{
				OrderItem:  line.ID,
				Item:       line.Item,
				QtyOrdered: line.Qty,
				QtyActual:  line.Qty,
				UnitPrice:  line.Price,
			})
		}
		return items, nil
	}
	items := make([]GoodsReceiptItem, 0, len(inputs))
	for _, in := range inputs {
		line, ok := byID[in.OrderItemID]
		if !ok {
			return nil, fmt.Errorf("%w: order item %d not on order", ErrValidation, in.OrderItemID)
		}
		if in.QtyActual.Sign() < 0 {
			return nil, fmt.Errorf("%w: received qty must not be negative", ErrValidation)
		}
		items = append(items, GoodsReceiptItem{
			OrderItem:  line.ID,
			Item:       line.Item,
			QtyOrdered: line.Qty,
			QtyActual:  in.QtyActual,
			UnitPrice:  line.Price,
		})
	}
	return items, nil
}
