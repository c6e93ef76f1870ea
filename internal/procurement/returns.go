package procurement

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arunika-erp/arunika-erp/internal/shared"
	"github.com/arunika-erp/arunika-erp/internal/stock"
)

// ReturnItemInput is one returned line.
type ReturnItemInput struct {
	Item stock.ItemRef
	Qty  decimal.Decimal
}

// CreateReturnInput describes a purchase return draft.
type CreateReturnInput struct {
	Code        string
	OrderID     int64
	WarehouseID int64
	Date        time.Time
	Reason      string
	ActorID     int64
	Items       []ReturnItemInput
}

// CreateReturn drafts a return against a received purchase order.
func (s *Service) CreateReturn(ctx context.Context, input CreateReturnInput) (PurchaseReturn, error) {
	if input.OrderID == 0 || input.WarehouseID == 0 {
		return PurchaseReturn{}, fmt.Errorf("%w: order and warehouse required", ErrValidation)
	}
	items, err := returnItems(input.Items)
	if err != nil {
		return PurchaseReturn{}, err
	}
	var doc PurchaseReturn
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if !po.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if po.Status != POStatusReceived {
			return ErrInvalidState
		}
		doc = PurchaseReturn{
			Code:        defaultCode(input.Code, "RET"),
			OrderID:     po.ID,
			WarehouseID: input.WarehouseID,
			Date:        defaultDate(input.Date),
			Reason:      input.Reason,
			Status:      ReturnStatusDraft,
			CreatedBy:   input.ActorID,
		}
		id, err := tx.InsertReturn(ctx, doc)
		if err != nil {
			return err
		}
		if err := tx.InsertReturnItems(ctx, id, items); err != nil {
			return err
		}
		doc.ID = id
		doc.Items = items
		return nil
	})
	if err != nil {
		return PurchaseReturn{}, err
	}
	s.recordAudit(ctx, input.ActorID, "return.create", doc.ID, map[string]any{"code": doc.Code, "order_id": doc.OrderID})
	return doc, nil
}

// UpdateReturnInput changes a draft return.
type UpdateReturnInput struct {
	Date    time.Time
	Reason  string
	ActorID int64
	Items   []ReturnItemInput
}

// UpdateReturn replaces the header and lines of a draft return.
func (s *Service) UpdateReturn(ctx context.Context, id int64, input UpdateReturnInput) (PurchaseReturn, error) {
	var updated PurchaseReturn
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetReturnForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if doc.Status != ReturnStatusDraft {
			return ErrInvalidState
		}
		if len(input.Items) > 0 {
			items, err := returnItems(input.Items)
			if err != nil {
				return err
			}
			if err := tx.ReplaceReturnItems(ctx, id, items); err != nil {
				return err
			}
			doc.Items = items
		}
		if !input.Date.IsZero() {
			doc.Date = input.Date
		}
		doc.Reason = input.Reason
		if err := tx.UpdateReturnHeader(ctx, doc); err != nil {
			return err
		}
		updated = doc
		return nil
	})
	if err != nil {
		return PurchaseReturn{}, err
	}
	s.recordAudit(ctx, input.ActorID, "return.update", id, nil)
	return updated, nil
}

// SubmitReturn moves a draft return to pending approval.
func (s *Service) SubmitReturn(ctx context.Context, id int64, actorID int64) error {
	err := s.transitionReturn(ctx, id, actorID, ReturnStatusPending)
	if err != nil {
		return err
	}
	if s.approvals != nil {
		_ = s.approvals.EnsureSubmit(ctx, "procurement.return", shared.DocApprovalRef("procurement.return", id), actorID, "purchase return submitted")
	}
	s.recordAudit(ctx, actorID, "return.submit", id, nil)
	return nil
}

// ApproveReturn approves a pending return.
func (s *Service) ApproveReturn(ctx context.Context, id int64, actorID int64) error {
	return s.decideReturn(ctx, id, actorID, ReturnStatusApproved, shared.ApprovalApprove)
}

// RejectReturn rejects a pending return.
func (s *Service) RejectReturn(ctx context.Context, id int64, actorID int64) error {
	return s.decideReturn(ctx, id, actorID, ReturnStatusRejected, shared.ApprovalReject)
}

func (s *Service) decideReturn(ctx context.Context, id int64, actorID int64, to ReturnStatus, action shared.ApprovalAction) error {
	if err := s.transitionReturn(ctx, id, actorID, to); err != nil {
		return err
	}
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  "procurement.return",
			RefID:   shared.DocApprovalRef("procurement.return", id),
			ActorID: actorID,
			Action:  action,
			Note:    fmt.Sprintf("purchase return %s", to),
		})
	}
	s.recordAudit(ctx, actorID, "return."+string(to), id, nil)
	return nil
}

// RealizeReturn ships the approved goods back: every line debits stock with
// its own OUT movement, all or nothing.
func (s *Service) RealizeReturn(ctx context.Context, id int64, actorID int64) error {
	now := time.Now().UTC()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetReturnForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if !canReturnTransition(doc.Status, ReturnStatusRealized) {
			return ErrInvalidState
		}
		items := doc.Items
		stock.SortLines(items, func(it PurchaseReturnItem) stock.Line {
			return stock.Line{Item: it.Item, WarehouseID: doc.WarehouseID}
		})
		for _, item := range items {
			_, err := stock.Debit(ctx, tx, stock.Entry{
				Item:        item.Item,
				WarehouseID: doc.WarehouseID,
				Qty:         item.Qty,
				Type:        stock.MovementOut,
				Ref:         stock.DocRef{DocType: "purchase_return", DocID: doc.ID},
				Note:        doc.Code,
				ActorID:     actorID,
			})
			if err != nil {
				return err
			}
		}
		return tx.SetReturnStatus(ctx, id, ReturnStatusRealized, actorID, now)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "return.realize", id, nil)
	return nil
}

// CompleteReturn closes out a realized return once the supplier settles it.
func (s *Service) CompleteReturn(ctx context.Context, id int64, actorID int64) error {
	if err := s.transitionReturn(ctx, id, actorID, ReturnStatusCompleted); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "return.complete", id, nil)
	return nil
}

// DeleteReturn soft deletes a return that has not touched stock yet.
func (s *Service) DeleteReturn(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetReturnForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if doc.Status == ReturnStatusRealized || doc.Status == ReturnStatusCompleted {
			return ErrInvalidState
		}
		return tx.SetReturnDeleted(ctx, id, true)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "return.delete", id, nil)
	return nil
}

// RestoreReturn clears the soft-delete marker.
func (s *Service) RestoreReturn(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetReturnDeleted(ctx, id, false)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "return.restore", id, nil)
	return nil
}

// GetReturn loads one return with items.
func (s *Service) GetReturn(ctx context.Context, id int64) (PurchaseReturn, error) {
	return s.repo.GetReturn(ctx, id)
}

// ListReturns lists returns.
func (s *Service) ListReturns(ctx context.Context, filter ListFilter) ([]PurchaseReturn, error) {
	return s.repo.ListReturns(ctx, filter)
}

// ListReturnablePOs lists received orders a return can reference.
func (s *Service) ListReturnablePOs(ctx context.Context) ([]PurchaseOrder, error) {
	return s.repo.ListReturnablePOs(ctx)
}

// ListReturnableGRItems lists the lines of a posted goods receipt that a
// return may send back.
func (s *Service) ListReturnableGRItems(ctx context.Context, receiptID int64) ([]GoodsReceiptItem, error) {
	doc, err := s.repo.GetGR(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	if !doc.DeletedAt.IsZero() {
		return nil, ErrNotFound
	}
	if doc.Status != GRStatusPosted {
		return nil, ErrInvalidState
	}
	return doc.Items, nil
}

func (s *Service) transitionReturn(ctx context.Context, id int64, actorID int64, to ReturnStatus) error {
	now := time.Now().UTC()
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetReturnForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if !canReturnTransition(doc.Status, to) {
			return ErrInvalidState
		}
		return tx.SetReturnStatus(ctx, id, to, actorID, now)
	})
}

func returnItems(inputs []ReturnItemInput) ([]PurchaseReturnItem, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: minimal 1 line", ErrValidation)
	}
	items := make([]PurchaseReturnItem, 0, len(inputs))
	for _, in := range inputs {
		if !in.Item.Valid() || in.Qty.Sign() <= 0 {
			return nil, fmt.Errorf("%w: line requires a valid item and positive qty", ErrValidation)
		}
		items = append(items, PurchaseReturnItem{Item: in.Item, Qty: in.Qty})
	}
	return items, nil
}
