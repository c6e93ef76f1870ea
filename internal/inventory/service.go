package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arunika-erp/arunika-erp/internal/shared"
	"github.com/arunika-erp/arunika-erp/internal/stock"
)

// TxRepository exposes transactional operations used by the service. Every
// document write shares one transaction with the ledger mutations.
type TxRepository interface {
	stock.LedgerTx

	InsertAdjustment(ctx context.Context, doc StockAdjustment) (int64, error)
	InsertAdjustmentItems(ctx context.Context, adjustmentID int64, items []StockAdjustmentItem) error
	GetAdjustmentForUpdate(ctx context.Context, id int64) (StockAdjustment, error)
	UpdateAdjustmentHeader(ctx context.Context, doc StockAdjustment) error
	ReplaceAdjustmentItems(ctx context.Context, adjustmentID int64, items []StockAdjustmentItem) error
	SetAdjustmentStatus(ctx context.Context, id int64, status AdjustmentStatus, actorID int64, at time.Time) error
	SetAdjustmentDeleted(ctx context.Context, id int64, deleted bool) error

	InsertRequest(ctx context.Context, doc StockRequest) (int64, error)
	InsertRequestItems(ctx context.Context, requestID int64, items []StockRequestItem) error
	GetRequestForUpdate(ctx context.Context, id int64) (StockRequest, error)
	UpdateRequestHeader(ctx context.Context, doc StockRequest) error
	ReplaceRequestItems(ctx context.Context, requestID int64, items []StockRequestItem) error
	SetRequestStatus(ctx context.Context, id int64, status RequestStatus, actorID int64, at time.Time) error
	SetRequestCompleted(ctx context.Context, id int64, completed bool) error
	SetRequestDeleted(ctx context.Context, id int64, deleted bool) error

	InsertStockOut(ctx context.Context, doc StockOut) (int64, error)
	InsertStockOutItems(ctx context.Context, stockOutID int64, items []StockOutItem) error
	GetStockOutForUpdate(ctx context.Context, id int64) (StockOut, error)
	SetStockOutDeleted(ctx context.Context, id int64, deleted bool) error

	InsertTransfer(ctx context.Context, doc StockTransfer) (int64, error)
	InsertTransferItems(ctx context.Context, transferID int64, items []StockTransferItem) error
	GetTransferForUpdate(ctx context.Context, id int64) (StockTransfer, error)
	UpdateTransferHeader(ctx context.Context, doc StockTransfer) error
	ReplaceTransferItems(ctx context.Context, transferID int64, items []StockTransferItem) error
	SetTransferStatus(ctx context.Context, id int64, status TransferStatus, actorID int64, at time.Time) error
	SetTransferDeleted(ctx context.Context, id int64, deleted bool) error

	InsertInitialStock(ctx context.Context, rec InitialStock) (int64, error)
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetAdjustment(ctx context.Context, id int64) (StockAdjustment, error)
	ListAdjustments(ctx context.Context, filter ListFilter) ([]StockAdjustment, error)
	GetRequest(ctx context.Context, id int64) (StockRequest, error)
	ListRequests(ctx context.Context, filter ListFilter) ([]StockRequest, error)
	GetStockOut(ctx context.Context, id int64) (StockOut, error)
	ListStockOuts(ctx context.Context, filter ListFilter) ([]StockOut, error)
	GetTransfer(ctx context.Context, id int64) (StockTransfer, error)
	ListTransfers(ctx context.Context, filter ListFilter) ([]StockTransfer, error)
}

// ListFilter narrows document listings.
type ListFilter struct {
	IncludeDeleted bool
	Limit          int
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates finished-product stock documents.
type Service struct {
	repo        RepositoryPort
	approvals   *shared.ApprovalRecorder
	audit       AuditPort
	idempotency *shared.IdempotencyStore
}

// NewService builds Service.
func NewService(repo RepositoryPort, approvals *shared.ApprovalRecorder, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, approvals: approvals, audit: audit, idempotency: idem}
}

// AdjustmentItemInput is one counted line.
type AdjustmentItemInput struct {
	ProductID int64
	ActualQty decimal.Decimal
}

// CreateAdjustmentInput describes the creation payload.
type CreateAdjustmentInput struct {
	Code        string
	WarehouseID int64
	Date        time.Time
	Note        string
	ActorID     int64
	Items       []AdjustmentItemInput
}

// CreateAdjustment stores a draft adjustment. The system quantity of every
// line is snapshotted from the current balance at creation time.
func (s *Service) CreateAdjustment(ctx context.Context, input CreateAdjustmentInput) (StockAdjustment, error) {
	if input.WarehouseID == 0 {
		return StockAdjustment{}, fmt.Errorf("%w: warehouse required", ErrValidation)
	}
	if len(input.Items) == 0 {
		return StockAdjustment{}, fmt.Errorf("%w: minimal 1 item", ErrValidation)
	}
	doc := StockAdjustment{
		Code:        defaultCode(input.Code, "ADJ"),
		WarehouseID: input.WarehouseID,
		Date:        defaultDate(input.Date),
		Note:        input.Note,
		Status:      AdjustmentStatusDraft,
		CreatedBy:   input.ActorID,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		items, err := snapshotAdjustmentItems(ctx, tx, input.WarehouseID, input.Items)
		if err != nil {
			return err
		}
		id, err := tx.InsertAdjustment(ctx, doc)
		if err != nil {
			return err
		}
		if err := tx.InsertAdjustmentItems(ctx, id, items); err != nil {
			return err
		}
		doc.ID = id
		doc.Items = items
		return nil
	})
	if err != nil {
		return StockAdjustment{}, err
	}
	s.recordAudit(ctx, input.ActorID, "adjustment.create", doc.ID, map[string]any{"code": doc.Code, "warehouse_id": doc.WarehouseID})
	return doc, nil
}

// UpdateAdjustment replaces the draft's header fields and items. The system
// quantities are re-snapshotted against the current balances.
func (s *Service) UpdateAdjustment(ctx context.Context, id int64, input CreateAdjustmentInput) (StockAdjustment, error) {
	if len(input.Items) == 0 {
		return StockAdjustment{}, fmt.Errorf("%w: minimal 1 item", ErrValidation)
	}
	var updated StockAdjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetAdjustmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if doc.Status != AdjustmentStatusDraft {
			return ErrInvalidState
		}
		if input.WarehouseID != 0 {
			doc.WarehouseID = input.WarehouseID
		}
		if !input.Date.IsZero() {
			doc.Date = input.Date
		}
		doc.Note = input.Note
		items, err := snapshotAdjustmentItems(ctx, tx, doc.WarehouseID, input.Items)
		if err != nil {
			return err
		}
		if err := tx.UpdateAdjustmentHeader(ctx, doc); err != nil {
			return err
		}
		if err := tx.ReplaceAdjustmentItems(ctx, id, items); err != nil {
			return err
		}
		doc.Items = items
		updated = doc
		return nil
	})
	if err != nil {
		return StockAdjustment{}, err
	}
	s.recordAudit(ctx, input.ActorID, "adjustment.update", id, map[string]any{"code": updated.Code})
	return updated, nil
}

// PostAdjustment applies every non-zero difference to the balances and
// records the adjustment movements.
func (s *Service) PostAdjustment(ctx context.Context, id int64, actorID int64) error {
	now := time.Now().UTC()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetAdjustmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if doc.Status != AdjustmentStatusDraft {
			return ErrInvalidState
		}
		items := append([]StockAdjustmentItem(nil), doc.Items...)
		stock.SortLines(items, func(it StockAdjustmentItem) stock.Line {
			return stock.Line{Item: stock.ProductRef(it.ProductID), WarehouseID: doc.WarehouseID}
		})
		for _, item := range items {
			if item.Difference.IsZero() {
				continue
			}
			entry := stock.Entry{
				Item:        stock.ProductRef(item.ProductID),
				WarehouseID: doc.WarehouseID,
				Type:        stock.MovementAdjustment,
				Ref:         stock.DocRef{DocType: "stock_adjustment", DocID: doc.ID},
				Note:        doc.Note,
				ActorID:     actorID,
			}
			if _, err := stock.Apply(ctx, tx, entry, item.Difference); err != nil {
				return err
			}
		}
		return tx.SetAdjustmentStatus(ctx, id, AdjustmentStatusPosted, actorID, now)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "adjustment.post", id, nil)
	return nil
}

// DeleteAdjustment soft deletes a draft.
func (s *Service) DeleteAdjustment(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetAdjustmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if doc.Status != AdjustmentStatusDraft {
			return ErrInvalidState
		}
		return tx.SetAdjustmentDeleted(ctx, id, true)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "adjustment.delete", id, nil)
	return nil
}

// RestoreAdjustment clears the soft-delete marker.
func (s *Service) RestoreAdjustment(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetAdjustmentDeleted(ctx, id, false)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "adjustment.restore", id, nil)
	return nil
}

// RequestItemInput is one requested line.
type RequestItemInput struct {
	ProductID int64
	Qty       decimal.Decimal
}

// CreateRequestInput describes the creation payload.
type CreateRequestInput struct {
	Code        string
	WarehouseID int64
	Date        time.Time
	Note        string
	ActorID     int64
	Items       []RequestItemInput
}

// CreateRequest stores a draft stock request.
func (s *Service) CreateRequest(ctx context.Context, input CreateRequestInput) (StockRequest, error) {
	if input.WarehouseID == 0 {
		return StockRequest{}, fmt.Errorf("%w: warehouse required", ErrValidation)
	}
	items, err := requestItems(input.Items)
	if err != nil {
		return StockRequest{}, err
	}
	doc := StockRequest{
		Code:        defaultCode(input.Code, "SR"),
		WarehouseID: input.WarehouseID,
		Date:        defaultDate(input.Date),
		Note:        input.Note,
		Status:      RequestStatusDraft,
		CreatedBy:   input.ActorID,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertRequest(ctx, doc)
		if err != nil {
			return err
		}
		if err := tx.InsertRequestItems(ctx, id, items); err != nil {
			return err
		}
		doc.ID = id
		doc.Items = items
		return nil
	})
	if err != nil {
		return StockRequest{}, err
	}
	s.recordAudit(ctx, input.ActorID, "request.create", doc.ID, map[string]any{"code": doc.Code})
	return doc, nil
}

// UpdateRequest replaces a draft's header and items.
func (s *Service) UpdateRequest(ctx context.Context, id int64, input CreateRequestInput) (StockRequest, error) {
	items, err := requestItems(input.Items)
	if err != nil {
		return StockRequest{}, err
	}
	var updated StockRequest
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetRequestForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if doc.Status != RequestStatusDraft {
			return ErrInvalidState
		}
		if input.WarehouseID != 0 {
			doc.WarehouseID = input.WarehouseID
		}
		if !input.Date.IsZero() {
			doc.Date = input.Date
		}
		doc.Note = input.Note
		if err := tx.UpdateRequestHeader(ctx, doc); err != nil {
			return err
		}
		if err := tx.ReplaceRequestItems(ctx, id, items); err != nil {
			return err
		}
		doc.Items = items
		updated = doc
		return nil
	})
	if err != nil {
		return StockRequest{}, err
	}
	s.recordAudit(ctx, input.ActorID, "request.update", id, nil)
	return updated, nil
}

// ApproveRequest transitions the request to approved.
func (s *Service) ApproveRequest(ctx context.Context, id int64, actorID int64) error {
	return s.decideRequest(ctx, id, actorID, RequestStatusApproved, shared.ApprovalApprove)
}

// RejectRequest transitions the request to rejected.
func (s *Service) RejectRequest(ctx context.Context, id int64, actorID int64) error {
	return s.decideRequest(ctx, id, actorID, RequestStatusRejected, shared.ApprovalReject)
}

func (s *Service) decideRequest(ctx context.Context, id int64, actorID int64, to RequestStatus, action shared.ApprovalAction) error {
	now := time.Now().UTC()
	var code string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetRequestForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if !canRequestTransition(doc.Status, to) {
			return ErrInvalidState
		}
		code = doc.Code
		return tx.SetRequestStatus(ctx, id, to, actorID, now)
	})
	if err != nil {
		return err
	}
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  "inventory.stock_request",
			RefID:   shared.DocApprovalRef("inventory.stock_request", id),
			ActorID: actorID,
			Action:  action,
			Note:    fmt.Sprintf("stock request %s %s", code, to),
		})
	}
	s.recordAudit(ctx, actorID, "request."+string(to), id, nil)
	return nil
}

// DeleteRequest soft deletes a request that has not been approved.
func (s *Service) DeleteRequest(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetRequestForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if doc.Status == RequestStatusApproved {
			return ErrInvalidState
		}
		return tx.SetRequestDeleted(ctx, id, true)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "request.delete", id, nil)
	return nil
}

// RestoreRequest clears the soft-delete marker.
func (s *Service) RestoreRequest(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetRequestDeleted(ctx, id, false)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "request.restore", id, nil)
	return nil
}

// CreateStockOutInput issues stock against an approved request.
type CreateStockOutInput struct {
	Code      string
	RequestID int64
	Date      time.Time
	Note      string
	ActorID   int64
}

// CreateStockOut fulfils an approved, not yet completed stock request. The
// requested lines are debited all-or-nothing; the parent request is marked
// completed in the same transaction.
func (s *Service) CreateStockOut(ctx context.Context, input CreateStockOutInput) (StockOut, error) {
	if input.RequestID == 0 {
		return StockOut{}, fmt.Errorf("%w: request required", ErrValidation)
	}
	var doc StockOut
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetRequestForUpdate(ctx, input.RequestID)
		if err != nil {
			return err
		}
		if !req.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if req.Status != RequestStatusApproved {
			return ErrInvalidState
		}
		if req.Completed {
			return ErrRequestCompleted
		}
		doc = StockOut{
			Code:        defaultCode(input.Code, "SO"),
			RequestID:   req.ID,
			WarehouseID: req.WarehouseID,
			Date:        defaultDate(input.Date),
			Note:        input.Note,
			CreatedBy:   input.ActorID,
			CreatedAt:   time.Now().UTC(),
		}
		id, err := tx.InsertStockOut(ctx, doc)
		if err != nil {
			return err
		}
		doc.ID = id
		lines := append([]StockRequestItem(nil), req.Items...)
		stock.SortLines(lines, func(it StockRequestItem) stock.Line {
			return stock.Line{Item: stock.ProductRef(it.ProductID), WarehouseID: req.WarehouseID}
		})
		items := make([]StockOutItem, 0, len(lines))
		for _, line := range lines {
			entry := stock.Entry{
				Item:        stock.ProductRef(line.ProductID),
				WarehouseID: req.WarehouseID,
				Qty:         line.Qty,
				Type:        stock.MovementOut,
				Ref:         stock.DocRef{DocType: "stock_out", DocID: id},
				Note:        doc.Note,
				ActorID:     input.ActorID,
			}
			if _, err := stock.Debit(ctx, tx, entry); err != nil {
				return err
			}
			items = append(items, StockOutItem{StockOutID: id, ProductID: line.ProductID, Qty: line.Qty})
		}
		if err := tx.InsertStockOutItems(ctx, id, items); err != nil {
			return err
		}
		doc.Items = items
		return tx.SetRequestCompleted(ctx, req.ID, true)
	})
	if err != nil {
		return StockOut{}, err
	}
	s.recordAudit(ctx, input.ActorID, "stock_out.create", doc.ID, map[string]any{"code": doc.Code, "request_id": doc.RequestID})
	return doc, nil
}

// DeleteStockOut reverses an issued stock out. The issued quantities are
// credited back with reversal movements, the parent request reverts to
// approved, and the document is soft deleted. The original movements stay.
func (s *Service) DeleteStockOut(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetStockOutForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		items := append([]StockOutItem(nil), doc.Items...)
		stock.SortLines(items, func(it StockOutItem) stock.Line {
			return stock.Line{Item: stock.ProductRef(it.ProductID), WarehouseID: doc.WarehouseID}
		})
		for _, item := range items {
			entry := stock.Entry{
				Item:        stock.ProductRef(item.ProductID),
				WarehouseID: doc.WarehouseID,
				Qty:         item.Qty,
				Type:        stock.MovementIn,
				Ref:         stock.DocRef{DocType: "stock_out", DocID: doc.ID},
				Note:        fmt.Sprintf("reversal of %s", doc.Code),
				ActorID:     actorID,
			}
			if _, err := stock.Credit(ctx, tx, entry); err != nil {
				return err
			}
		}
		if err := tx.SetRequestCompleted(ctx, doc.RequestID, false); err != nil {
			return err
		}
		return tx.SetStockOutDeleted(ctx, id, true)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "stock_out.delete", id, nil)
	return nil
}

// TransferItemInput is one polymorphic transfer line.
type TransferItemInput struct {
	Item stock.ItemRef
	Qty  decimal.Decimal
}

// CreateTransferInput describes the creation payload.
type CreateTransferInput struct {
	Code            string
	FromWarehouseID int64
	ToWarehouseID   int64
	Date            time.Time
	Note            string
	ActorID         int64
	Items           []TransferItemInput
}

// CreateTransfer stores a draft transfer between two warehouses.
func (s *Service) CreateTransfer(ctx context.Context, input CreateTransferInput) (StockTransfer, error) {
	if input.FromWarehouseID == 0 || input.ToWarehouseID == 0 {
		return StockTransfer{}, fmt.Errorf("%w: warehouses required", ErrValidation)
	}
	if input.FromWarehouseID == input.ToWarehouseID {
		return StockTransfer{}, fmt.Errorf("%w: source and destination warehouse must differ", ErrValidation)
	}
	items, err := transferItems(input.Items)
	if err != nil {
		return StockTransfer{}, err
	}
	doc := StockTransfer{
		Code:            defaultCode(input.Code, "TRF"),
		FromWarehouseID: input.FromWarehouseID,
		ToWarehouseID:   input.ToWarehouseID,
		Date:            defaultDate(input.Date),
		Note:            input.Note,
		Status:          TransferStatusDraft,
		CreatedBy:       input.ActorID,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertTransfer(ctx, doc)
		if err != nil {
			return err
		}
		if err := tx.InsertTransferItems(ctx, id, items); err != nil {
			return err
		}
		doc.ID = id
		doc.Items = items
		return nil
	})
	if err != nil {
		return StockTransfer{}, err
	}
	s.recordAudit(ctx, input.ActorID, "transfer.create", doc.ID, map[string]any{"code": doc.Code})
	return doc, nil
}

// UpdateTransfer replaces a draft's header and items.
func (s *Service) UpdateTransfer(ctx context.Context, id int64, input CreateTransferInput) (StockTransfer, error) {
	items, err := transferItems(input.Items)
	if err != nil {
		return StockTransfer{}, err
	}
	var updated StockTransfer
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetTransferForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if doc.Status != TransferStatusDraft {
			return ErrInvalidState
		}
		if input.FromWarehouseID != 0 {
			doc.FromWarehouseID = input.FromWarehouseID
		}
		if input.ToWarehouseID != 0 {
			doc.ToWarehouseID = input.ToWarehouseID
		}
		if doc.FromWarehouseID == doc.ToWarehouseID {
			return fmt.Errorf("%w: source and destination warehouse must differ", ErrValidation)
		}
		if !input.Date.IsZero() {
			doc.Date = input.Date
		}
		doc.Note = input.Note
		if err := tx.UpdateTransferHeader(ctx, doc); err != nil {
			return err
		}
		if err := tx.ReplaceTransferItems(ctx, id, items); err != nil {
			return err
		}
		doc.Items = items
		updated = doc
		return nil
	})
	if err != nil {
		return StockTransfer{}, err
	}
	s.recordAudit(ctx, input.ActorID, "transfer.update", id, nil)
	return updated, nil
}

// ApproveTransfer transitions the transfer to approved.
func (s *Service) ApproveTransfer(ctx context.Context, id int64, actorID int64) error {
	return s.decideTransfer(ctx, id, actorID, TransferStatusApproved, shared.ApprovalApprove)
}

// RejectTransfer transitions the transfer to rejected.
func (s *Service) RejectTransfer(ctx context.Context, id int64, actorID int64) error {
	return s.decideTransfer(ctx, id, actorID, TransferStatusRejected, shared.ApprovalReject)
}

func (s *Service) decideTransfer(ctx context.Context, id int64, actorID int64, to TransferStatus, action shared.ApprovalAction) error {
	now := time.Now().UTC()
	var code string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetTransferForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if !canTransferTransition(doc.Status, to) {
			return ErrInvalidState
		}
		code = doc.Code
		return tx.SetTransferStatus(ctx, id, to, actorID, now)
	})
	if err != nil {
		return err
	}
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  "inventory.stock_transfer",
			RefID:   shared.DocApprovalRef("inventory.stock_transfer", id),
			ActorID: actorID,
			Action:  action,
			Note:    fmt.Sprintf("stock transfer %s %s", code, to),
		})
	}
	s.recordAudit(ctx, actorID, "transfer."+string(to), id, nil)
	return nil
}

// ExecuteTransfer moves the approved quantities. Every line debits the
// source and credits the destination with a transfer pair of equal
// magnitude, all-or-nothing.
func (s *Service) ExecuteTransfer(ctx context.Context, id int64, actorID int64) error {
	now := time.Now().UTC()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetTransferForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if !canTransferTransition(doc.Status, TransferStatusExecuted) {
			return ErrInvalidState
		}
		items := append([]StockTransferItem(nil), doc.Items...)
		stock.SortLines(items, func(it StockTransferItem) stock.Line {
			return stock.Line{Item: it.Item, WarehouseID: doc.FromWarehouseID}
		})
		ref := stock.DocRef{DocType: "stock_transfer", DocID: doc.ID}
		for _, item := range items {
			out := stock.Entry{
				Item:        item.Item,
				WarehouseID: doc.FromWarehouseID,
				Qty:         item.Qty,
				Type:        stock.MovementTransferOut,
				Ref:         ref,
				Note:        fmt.Sprintf("transfer to warehouse %d", doc.ToWarehouseID),
				ActorID:     actorID,
			}
			if _, err := stock.Debit(ctx, tx, out); err != nil {
				return err
			}
			in := stock.Entry{
				Item:        item.Item,
				WarehouseID: doc.ToWarehouseID,
				Qty:         item.Qty,
				Type:        stock.MovementTransferIn,
				Ref:         ref,
				Note:        fmt.Sprintf("transfer from warehouse %d", doc.FromWarehouseID),
				ActorID:     actorID,
			}
			if _, err := stock.Credit(ctx, tx, in); err != nil {
				return err
			}
		}
		return tx.SetTransferStatus(ctx, id, TransferStatusExecuted, actorID, now)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "transfer.execute", id, nil)
	return nil
}

// DeleteTransfer soft deletes a transfer that has not been executed.
func (s *Service) DeleteTransfer(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetTransferForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if doc.Status == TransferStatusExecuted {
			return ErrInvalidState
		}
		return tx.SetTransferDeleted(ctx, id, true)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "transfer.delete", id, nil)
	return nil
}

// RestoreTransfer clears the soft-delete marker.
func (s *Service) RestoreTransfer(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetTransferDeleted(ctx, id, false)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "transfer.restore", id, nil)
	return nil
}

// InitialStockInput seeds an opening balance.
type InitialStockInput struct {
	ProductID   int64
	WarehouseID int64
	Qty         decimal.Decimal
	ActorID     int64
}

// SeedInitialStock credits the opening quantity once per product and
// warehouse. A repeat call returns the idempotency conflict.
func (s *Service) SeedInitialStock(ctx context.Context, input InitialStockInput) (InitialStock, error) {
	if input.ProductID == 0 || input.WarehouseID == 0 {
		return InitialStock{}, fmt.Errorf("%w: warehouse and product required", ErrValidation)
	}
	if input.Qty.Sign() <= 0 {
		return InitialStock{}, fmt.Errorf("%w: qty must be positive", ErrValidation)
	}
	key := fmt.Sprintf("initial:%d:%d", input.ProductID, input.WarehouseID)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
			return InitialStock{}, err
		}
		insertedKey = true
	}
	rec := InitialStock{
		ProductID:   input.ProductID,
		WarehouseID: input.WarehouseID,
		Qty:         input.Qty,
		CreatedBy:   input.ActorID,
		CreatedAt:   time.Now().UTC(),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertInitialStock(ctx, rec)
		if err != nil {
			return err
		}
		rec.ID = id
		entry := stock.Entry{
			Item:        stock.ProductRef(input.ProductID),
			WarehouseID: input.WarehouseID,
			Qty:         input.Qty,
			Type:        stock.MovementIn,
			Ref:         stock.DocRef{DocType: "stock_initial", DocID: id},
			Note:        "initial stock",
			ActorID:     input.ActorID,
		}
		_, err = stock.Credit(ctx, tx, entry)
		return err
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return InitialStock{}, err
	}
	s.recordAudit(ctx, input.ActorID, "initial_stock.create", rec.ID, map[string]any{"product_id": rec.ProductID, "warehouse_id": rec.WarehouseID})
	return rec, nil
}

// GetAdjustment loads one adjustment with items.
func (s *Service) GetAdjustment(ctx context.Context, id int64) (StockAdjustment, error) {
	return s.repo.GetAdjustment(ctx, id)
}

// ListAdjustments lists adjustments.
func (s *Service) ListAdjustments(ctx context.Context, filter ListFilter) ([]StockAdjustment, error) {
	return s.repo.ListAdjustments(ctx, filter)
}

// GetRequest loads one stock request with items.
func (s *Service) GetRequest(ctx context.Context, id int64) (StockRequest, error) {
	return s.repo.GetRequest(ctx, id)
}

// ListRequests lists stock requests.
func (s *Service) ListRequests(ctx context.Context, filter ListFilter) ([]StockRequest, error) {
	return s.repo.ListRequests(ctx, filter)
}

// GetStockOut loads one stock out with items.
func (s *Service) GetStockOut(ctx context.Context, id int64) (StockOut, error) {
	return s.repo.GetStockOut(ctx, id)
}

// ListStockOuts lists stock outs.
func (s *Service) ListStockOuts(ctx context.Context, filter ListFilter) ([]StockOut, error) {
	return s.repo.ListStockOuts(ctx, filter)
}

// GetTransfer loads one transfer with items.
func (s *Service) GetTransfer(ctx context.Context, id int64) (StockTransfer, error) {
	return s.repo.GetTransfer(ctx, id)
}

// ListTransfers lists transfers.
func (s *Service) ListTransfers(ctx context.Context, filter ListFilter) ([]StockTransfer, error) {
	return s.repo.ListTransfers(ctx, filter)
}

func snapshotAdjustmentItems(ctx context.Context, tx TxRepository, warehouseID int64, inputs []AdjustmentItemInput) ([]StockAdjustmentItem, error) {
	items := make([]StockAdjustmentItem, 0, len(inputs))
	for _, in := range inputs {
		if in.ProductID == 0 {
			return nil, fmt.Errorf("%w: product required", ErrValidation)
		}
		if in.ActualQty.Sign() < 0 {
			return nil, fmt.Errorf("%w: actual qty must not be negative", ErrValidation)
		}
		systemQty := decimal.Zero
		bal, err := tx.GetBalanceForUpdate(ctx, stock.ProductRef(in.ProductID), warehouseID)
		if err != nil && !errors.Is(err, stock.ErrBalanceNotFound) {
			return nil, err
		}
		if err == nil {
			systemQty = bal.Qty
		}
		items = append(items, StockAdjustmentItem{
			ProductID:  in.ProductID,
			SystemQty:  systemQty,
			ActualQty:  in.ActualQty,
			Difference: in.ActualQty.Sub(systemQty),
		})
	}
	return items, nil
}

func requestItems(inputs []RequestItemInput) ([]StockRequestItem, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: minimal 1 item", ErrValidation)
	}
	items := make([]StockRequestItem, 0, len(inputs))
	for _, in := range inputs {
		if in.ProductID == 0 || in.Qty.Sign() <= 0 {
			return nil, fmt.Errorf("%w: item requires product and positive qty", ErrValidation)
		}
		items = append(items, StockRequestItem{ProductID: in.ProductID, Qty: in.Qty})
	}
	return items, nil
}

func transferItems(inputs []TransferItemInput) ([]StockTransferItem, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: minimal 1 item", ErrValidation)
	}
	items := make([]StockTransferItem, 0, len(inputs))
	for _, in := range inputs {
		if !in.Item.Valid() || in.Qty.Sign() <= 0 {
			return nil, fmt.Errorf("%w: item requires a valid reference and positive qty", ErrValidation)
		}
		items = append(items, StockTransferItem{Item: in.Item, Qty: in.Qty})
	}
	return items, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "inventory." + action,
		Entity:   "inventory",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}

func defaultCode(code, prefix string) string {
	if code != "" {
		return code
	}
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func defaultDate(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
