package procurement

import (
	"context"
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

	InsertPR(ctx context.Context, doc PurchaseRequest) (int64, error)
	InsertPRItems(ctx context.Context, requestID int64, items []PurchaseRequestItem) error
	GetPRForUpdate(ctx context.Context, id int64) (PurchaseRequest, error)
	UpdatePRHeader(ctx context.Context, doc PurchaseRequest) error
	ReplacePRItems(ctx context.Context, requestID int64, items []PurchaseRequestItem) error
	SetPRStatus(ctx context.Context, id int64, status PRStatus, actorID int64, at time.Time) error
	SetPRCompleted(ctx context.Context, id int64, completed bool) error
	SetPRDeleted(ctx context.Context, id int64, deleted bool) error

	InsertPO(ctx context.Context, doc PurchaseOrder) (int64, error)
	InsertPOItems(ctx context.Context, orderID int64, items []PurchaseOrderItem) error
	GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	UpdatePOHeader(ctx context.Context, doc PurchaseOrder) error
	UpdatePOItemPrice(ctx context.Context, orderID, itemID int64, price, subtotal decimal.Decimal) error
	SetPOStatus(ctx context.Context, id int64, status POStatus) error
	SetPODeleted(ctx context.Context, id int64, deleted bool) error
	ExistsLivePO(ctx context.Context, requestID, excludeOrderID int64) (bool, error)

	InsertGR(ctx context.Context, doc GoodsReceipt) (int64, error)
	InsertGRItems(ctx context.Context, receiptID int64, items []GoodsReceiptItem) error
	GetGRForUpdate(ctx context.Context, id int64) (GoodsReceipt, error)
	UpdateGRHeader(ctx context.Context, doc GoodsReceipt) error
	ReplaceGRItems(ctx context.Context, receiptID int64, items []GoodsReceiptItem) error
	SetGRStatus(ctx context.Context, id int64, status GRStatus, actorID int64, at time.Time) error
	SetGRDeleted(ctx context.Context, id int64, deleted bool) error
	UpdateRawMaterialLastPrice(ctx context.Context, rawMaterialID int64, price decimal.Decimal) error

	InsertReturn(ctx context.Context, doc PurchaseReturn) (int64, error)
	InsertReturnItems(ctx context.Context, returnID int64, items []PurchaseReturnItem) error
	GetReturnForUpdate(ctx context.Context, id int64) (PurchaseReturn, error)
	UpdateReturnHeader(ctx context.Context, doc PurchaseReturn) error
	ReplaceReturnItems(ctx context.Context, returnID int64, items []PurchaseReturnItem) error
	SetReturnStatus(ctx context.Context, id int64, status ReturnStatus, actorID int64, at time.Time) error
	SetReturnDeleted(ctx context.Context, id int64, deleted bool) error

	InsertInvoiceReceipt(ctx context.Context, doc InvoiceReceipt) (int64, error)
	GetInvoiceReceiptForUpdate(ctx context.Context, id int64) (InvoiceReceipt, error)
	UpdateInvoiceReceiptHeader(ctx context.Context, doc InvoiceReceipt) error
	SetInvoiceReceiptStatus(ctx context.Context, id int64, status InvoiceStatus, actorID int64, at time.Time) error
	SetInvoiceReceiptDeleted(ctx context.Context, id int64, deleted bool) error
	InsertInvoice(ctx context.Context, inv Invoice) (int64, error)
	UpdateInvoice(ctx context.Context, inv Invoice) error
	DeleteInvoice(ctx context.Context, invoiceID int64) error
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPR(ctx context.Context, id int64) (PurchaseRequest, error)
	ListPRs(ctx context.Context, filter ListFilter) ([]PurchaseRequest, error)
	GetPO(ctx context.Context, id int64) (PurchaseOrder, error)
	ListPOs(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error)
	GetGR(ctx context.Context, id int64) (GoodsReceipt, error)
	ListGRs(ctx context.Context, filter ListFilter) ([]GoodsReceipt, error)
	GetReturn(ctx context.Context, id int64) (PurchaseReturn, error)
	ListReturns(ctx context.Context, filter ListFilter) ([]PurchaseReturn, error)
	ListReturnablePOs(ctx context.Context) ([]PurchaseOrder, error)
	GetInvoiceReceipt(ctx context.Context, id int64) (InvoiceReceipt, error)
	ListInvoiceReceipts(ctx context.Context, filter ListFilter) ([]InvoiceReceipt, error)
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

// Service orchestrates the procurement chain.
type Service struct {
	repo      RepositoryPort
	approvals *shared.ApprovalRecorder
	audit     AuditPort
}

// NewService constructs the procurement service.
func NewService(repo RepositoryPort, approvals *shared.ApprovalRecorder, audit AuditPort) *Service {
	return &Service{repo: repo, approvals: approvals, audit: audit}
}

// PRItemInput is one requested line.
type PRItemInput struct {
	Item stock.ItemRef
	Qty  decimal.Decimal
	Note string
}

// CreatePRInput describes the creation payload.
type CreatePRInput struct {
	Code       string
	SupplierID int64
	Date       time.Time
	Note       string
	ActorID    int64
	Items      []PRItemInput
}

// CreatePR stores a draft purchase request.
func (s *Service) CreatePR(ctx context.Context, input CreatePRInput) (PurchaseRequest, error) {
	items, err := prItems(input.Items)
	if err != nil {
		return PurchaseRequest{}, err
	}
	doc := PurchaseRequest{
		Code:       defaultCode(input.Code, "PR"),
		SupplierID: input.SupplierID,
		Date:       defaultDate(input.Date),
		Note:       input.Note,
		Status:     PRStatusDraft,
		CreatedBy:  input.ActorID,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertPR(ctx, doc)
		if err != nil {
			return err
		}
		if err := tx.InsertPRItems(ctx, id, items); err != nil {
			return err
		}
		doc.ID = id
		doc.Items = items
		return nil
	})
	if err != nil {
		return PurchaseRequest{}, err
	}
	s.recordAudit(ctx, input.ActorID, "pr.create", doc.ID, map[string]any{"code": doc.Code})
	return doc, nil
}

// UpdatePR replaces a draft's header and items.
func (s *Service) UpdatePR(ctx context.Context, id int64, input CreatePRInput) (PurchaseRequest, error) {
	items, err := prItems(input.Items)
	if err != nil {
		return PurchaseRequest{}, err
	}
	var updated PurchaseRequest
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetPRForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if doc.Status != PRStatusDraft {
			return ErrInvalidState
		}
		if input.SupplierID != 0 {
			doc.SupplierID = input.SupplierID
		}
		if !input.Date.IsZero() {
			doc.Date = input.Date
		}
		doc.Note = input.Note
		if err := tx.UpdatePRHeader(ctx, doc); err != nil {
			return err
		}
		if err := tx.ReplacePRItems(ctx, id, items); err != nil {
			return err
		}
		doc.Items = items
		updated = doc
		return nil
	})
	if err != nil {
		return PurchaseRequest{}, err
	}
	s.recordAudit(ctx, input.ActorID, "pr.update", id, nil)
	return updated, nil
}

// SubmitPR transitions the request from draft to submitted.
func (s *Service) SubmitPR(ctx context.Context, id int64, actorID int64) error {
	now := time.Now().UTC()
	var code string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetPRForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if !canPRTransition(doc.Status, PRStatusSubmitted) {
			return ErrInvalidState
		}
		code = doc.Code
		return tx.SetPRStatus(ctx, id, PRStatusSubmitted, actorID, now)
	})
	if err != nil {
		return err
	}
	if s.approvals != nil {
		_ = s.approvals.EnsureSubmit(ctx, "procurement.pr", shared.DocApprovalRef("procurement.pr", id), actorID,
			fmt.Sprintf("purchase request %s submitted", code))
	}
	s.recordAudit(ctx, actorID, "pr.submit", id, nil)
	return nil
}

// ApprovePR transitions the request to approved.
func (s *Service) ApprovePR(ctx context.Context, id int64, actorID int64) error {
	return s.decidePR(ctx, id, actorID, PRStatusApproved, shared.ApprovalApprove)
}

// RejectPR transitions the request to rejected.
func (s *Service) RejectPR(ctx context.Context, id int64, actorID int64) error {
	return s.decidePR(ctx, id, actorID, PRStatusRejected, shared.ApprovalReject)
}

func (s *Service) decidePR(ctx context.Context, id int64, actorID int64, to PRStatus, action shared.ApprovalAction) error {
	now := time.Now().UTC()
	var code string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetPRForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if !canPRTransition(doc.Status, to) {
			return ErrInvalidState
		}
		code = doc.Code
		return tx.SetPRStatus(ctx, id, to, actorID, now)
	})
	if err != nil {
		return err
	}
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  "procurement.pr",
			RefID:   shared.DocApprovalRef("procurement.pr", id),
			ActorID: actorID,
			Action:  action,
			Note:    fmt.Sprintf("purchase request %s %s", code, to),
		})
	}
	s.recordAudit(ctx, actorID, "pr."+string(to), id, nil)
	return nil
}

// DeletePR soft deletes a request that has no live purchase order.
func (s *Service) DeletePR(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetPRForUpdate(ctx, id)
		if err != nil {
			return err
		}
		exists, err := tx.ExistsLivePO(ctx, doc.ID, 0)
		if err != nil {
			return err
		}
		if exists {
			return ErrPOExists
		}
		return tx.SetPRDeleted(ctx, id, true)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "pr.delete", id, nil)
	return nil
}

// RestorePR clears the soft-delete marker.
func (s *Service) RestorePR(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetPRDeleted(ctx, id, false)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "pr.restore", id, nil)
	return nil
}

// GeneratePOInput creates a purchase order off an approved request.
type GeneratePOInput struct {
	RequestID    int64
	Code         string
	Date         time.Time
	ExpectedDate time.Time
	Note         string
	ActorID      int64
}

// GeneratePO copies the approved request lines into a draft purchase order.
// A request carries at most one live order; soft-deleted orders do not count.
func (s *Service) GeneratePO(ctx context.Context, input GeneratePOInput) (PurchaseOrder, error) {
	if input.RequestID == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: request required", ErrValidation)
	}
	var doc PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pr, err := tx.GetPRForUpdate(ctx, input.RequestID)
		if err != nil {
			return err
		}
		if !pr.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if pr.Status != PRStatusApproved {
			return ErrInvalidState
		}
		exists, err := tx.ExistsLivePO(ctx, pr.ID, 0)
		if err != nil {
			return err
		}
		if exists {
			return ErrPOExists
		}
		doc = PurchaseOrder{
			Code:         defaultCode(input.Code, "PO"),
			RequestID:    pr.ID,
			SupplierID:   pr.SupplierID,
			Date:         defaultDate(input.Date),
			ExpectedDate: input.ExpectedDate,
			Note:         input.Note,
			Status:       POStatusDraft,
			CreatedBy:    input.ActorID,
		}
		id, err := tx.InsertPO(ctx, doc)
		if err != nil {
			return err
		}
		items := make([]PurchaseOrderItem, 0, len(pr.Items))
		for _, line := range pr.Items {
			items = append(items, PurchaseOrderItem{
				OrderID:  id,
				Item:     line.Item,
				Qty:      line.Qty,
				Price:    decimal.Zero,
				Subtotal: decimal.Zero,
			})
		}
		if err := tx.InsertPOItems(ctx, id, items); err != nil {
			return err
		}
		doc.ID = id
		doc.Items = items
		return tx.SetPRCompleted(ctx, pr.ID, true)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, input.ActorID, "po.generate", doc.ID, map[string]any{"code": doc.Code, "request_id": doc.RequestID})
	return doc, nil
}

// UpdatePOInput changes draft header fields.
type UpdatePOInput struct {
	Date         time.Time
	ExpectedDate time.Time
	Note         string
	ActorID      int64
}

// UpdatePO changes a draft order's header.
func (s *Service) UpdatePO(ctx context.Context, id int64, input UpdatePOInput) (PurchaseOrder, error) {
	var updated PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetPOForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if doc.Status != POStatusDraft {
			return ErrInvalidState
		}
		if !input.Date.IsZero() {
			doc.Date = input.Date
		}
		if !input.ExpectedDate.IsZero() {
			doc.ExpectedDate = input.ExpectedDate
		}
		doc.Note = input.Note
		if err := tx.UpdatePOHeader(ctx, doc); err != nil {
			return err
		}
		updated = doc
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, input.ActorID, "po.update", id, nil)
	return updated, nil
}

// SetPOItemPrice sets the negotiated price of one draft line and recomputes
// its subtotal.
func (s *Service) SetPOItemPrice(ctx context.Context, orderID, itemID int64, price decimal.Decimal, actorID int64) error {
	if price.Sign() < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetPOForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if doc.Status != POStatusDraft {
			return ErrInvalidState
		}
		for _, item := range doc.Items {
			if item.ID == itemID {
				return tx.UpdatePOItemPrice(ctx, orderID, itemID, price, price.Mul(item.Qty))
			}
		}
		return ErrNotFound
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "po.set_price", orderID, map[string]any{"item_id": itemID, "price": price.String()})
	return nil
}

// SubmitPO transitions the order from draft to sent.
func (s *Service) SubmitPO(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetPOForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if !canPOTransition(doc.Status, POStatusSent) {
			return ErrInvalidState
		}
		return tx.SetPOStatus(ctx, id, POStatusSent)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "po.submit", id, nil)
	return nil
}

// MarkPOReceived transitions the order from sent to received. Posting a
// goods receipt does this automatically.
func (s *Service) MarkPOReceived(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetPOForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if !canPOTransition(doc.Status, POStatusReceived) {
			return ErrInvalidState
		}
		return tx.SetPOStatus(ctx, id, POStatusReceived)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "po.received", id, nil)
	return nil
}

// DeletePO soft deletes a draft or sent order and reverts its request: the
// completion marker clears so a fresh order can be generated.
func (s *Service) DeletePO(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetPOForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if doc.Status != POStatusDraft && doc.Status != POStatusSent {
			return ErrInvalidState
		}
		if err := tx.SetPRCompleted(ctx, doc.RequestID, false); err != nil {
			return err
		}
		return tx.SetPODeleted(ctx, id, true)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "po.delete", id, nil)
	return nil
}

// RestorePO clears the soft-delete marker, provided no other live order took
// the request in the meantime, and re-marks the request completed.
func (s *Service) RestorePO(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetPOForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if doc.DeletedAt.IsZero() {
			return ErrInvalidState
		}
		exists, err := tx.ExistsLivePO(ctx, doc.RequestID, doc.ID)
		if err != nil {
			return err
		}
		if exists {
			return ErrPOExists
		}
		if err := tx.SetPRCompleted(ctx, doc.RequestID, true); err != nil {
			return err
		}
		return tx.SetPODeleted(ctx, id, false)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "po.restore", id, nil)
	return nil
}

// GetPR loads one request with items.
func (s *Service) GetPR(ctx context.Context, id int64) (PurchaseRequest, error) {
	return s.repo.GetPR(ctx, id)
}

// ListPRs lists requests.
func (s *Service) ListPRs(ctx context.Context, filter ListFilter) ([]PurchaseRequest, error) {
	return s.repo.ListPRs(ctx, filter)
}

// GetPO loads one order with items.
func (s *Service) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	return s.repo.GetPO(ctx, id)
}

// ListPOs lists orders.
func (s *Service) ListPOs(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error) {
	return s.repo.ListPOs(ctx, filter)
}

func prItems(inputs []PRItemInput) ([]PurchaseRequestItem, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: minimal 1 line", ErrValidation)
	}
	items := make([]PurchaseRequestItem, 0, len(inputs))
	for _, in := range inputs {
		if !in.Item.Valid() || in.Qty.Sign() <= 0 {
			return nil, fmt.Errorf("%w: line requires a valid item and positive qty", ErrValidation)
		}
		items = append(items, PurchaseRequestItem{Item: in.Item, Qty: in.Qty, Note: in.Note})
	}
	return items, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "procurement." + action,
		Entity:   "procurement",
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
