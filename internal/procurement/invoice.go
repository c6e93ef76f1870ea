package procurement

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arunika-erp/arunika-erp/internal/shared"
)

// CreateInvoiceReceiptInput opens a receipt collecting supplier invoices.
type CreateInvoiceReceiptInput struct {
	Code    string
	OrderID int64
	Note    string
	ActorID int64
}

// CreateInvoiceReceipt drafts an invoice receipt against a purchase order.
func (s *Service) CreateInvoiceReceipt(ctx context.Context, input CreateInvoiceReceiptInput) (InvoiceReceipt, error) {
	if input.OrderID == 0 {
		return InvoiceReceipt{}, fmt.Errorf("%w: order required", ErrValidation)
	}
	var doc InvoiceReceipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if !po.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if po.Status != POStatusSent && po.Status != POStatusReceived {
			return ErrInvalidState
		}
		doc = InvoiceReceipt{
			Code:      defaultCode(input.Code, "INV"),
			OrderID:   po.ID,
			Note:      input.Note,
			Status:    InvoiceStatusDraft,
			CreatedBy: input.ActorID,
		}
		id, err := tx.InsertInvoiceReceipt(ctx, doc)
		if err != nil {
			return err
		}
		doc.ID = id
		return nil
	})
	if err != nil {
		return InvoiceReceipt{}, err
	}
	s.recordAudit(ctx, input.ActorID, "invoice_receipt.create", doc.ID, map[string]any{"code": doc.Code})
	return doc, nil
}

// UpdateInvoiceReceiptInput changes draft header fields.
type UpdateInvoiceReceiptInput struct {
	Note    string
	ActorID int64
}

// UpdateInvoiceReceipt rewrites the header of a draft receipt.
func (s *Service) UpdateInvoiceReceipt(ctx context.Context, id int64, input UpdateInvoiceReceiptInput) (InvoiceReceipt, error) {
	var updated InvoiceReceipt
	err := s.withDraftReceipt(ctx, id, func(ctx context.Context, tx TxRepository, doc InvoiceReceipt) error {
		doc.Note = input.Note
		if err := tx.UpdateInvoiceReceiptHeader(ctx, doc); err != nil {
			return err
		}
		updated = doc
		return nil
	})
	if err != nil {
		return InvoiceReceipt{}, err
	}
	s.recordAudit(ctx, input.ActorID, "invoice_receipt.update", id, nil)
	return updated, nil
}

// InvoiceInput is a supplier invoice attached to a receipt.
type InvoiceInput struct {
	Number string
	Date   time.Time
	Amount decimal.Decimal
	Note   string
}

func (in InvoiceInput) validate() error {
	if in.Number == "" || in.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: invoice requires number and positive amount", ErrValidation)
	}
	return nil
}

// AddInvoice attaches an invoice to a draft receipt.
func (s *Service) AddInvoice(ctx context.Context, receiptID int64, input InvoiceInput, actorID int64) (Invoice, error) {
	if err := input.validate(); err != nil {
		return Invoice{}, err
	}
	inv := Invoice{
		ReceiptID: receiptID,
		Number:    input.Number,
		Date:      defaultDate(input.Date),
		Amount:    input.Amount,
		Note:      input.Note,
	}
	err := s.withDraftReceipt(ctx, receiptID, func(ctx context.Context, tx TxRepository, _ InvoiceReceipt) error {
		id, err := tx.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}
		inv.ID = id
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.recordAudit(ctx, actorID, "invoice.add", receiptID, map[string]any{"number": inv.Number})
	return inv, nil
}

// UpdateInvoice rewrites one invoice on a draft receipt.
func (s *Service) UpdateInvoice(ctx context.Context, receiptID, invoiceID int64, input InvoiceInput, actorID int64) error {
	if err := input.validate(); err != nil {
		return err
	}
	err := s.withDraftReceipt(ctx, receiptID, func(ctx context.Context, tx TxRepository, doc InvoiceReceipt) error {
		for _, inv := range doc.Invoices {
			if inv.ID == invoiceID {
				inv.Number = input.Number
				inv.Date = defaultDate(input.Date)
				inv.Amount = input.Amount
				inv.Note = input.Note
				return tx.UpdateInvoice(ctx, inv)
			}
		}
		return ErrNotFound
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "invoice.update", receiptID, map[string]any{"invoice_id": invoiceID})
	return nil
}

// RemoveInvoice detaches one invoice from a draft receipt.
func (s *Service) RemoveInvoice(ctx context.Context, receiptID, invoiceID int64, actorID int64) error {
	err := s.withDraftReceipt(ctx, receiptID, func(ctx context.Context, tx TxRepository, doc InvoiceReceipt) error {
		for _, inv := range doc.Invoices {
			if inv.ID == invoiceID {
				return tx.DeleteInvoice(ctx, invoiceID)
			}
		}
		return ErrNotFound
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "invoice.remove", receiptID, map[string]any{"invoice_id": invoiceID})
	return nil
}

// SubmitInvoiceReceipt submits a draft receipt carrying at least one invoice.
func (s *Service) SubmitInvoiceReceipt(ctx context.Context, id int64, actorID int64) error {
	now := time.Now().UTC()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetInvoiceReceiptForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if !canInvoiceTransition(doc.Status, InvoiceStatusSubmitted) {
			return ErrInvalidState
		}
		if len(doc.Invoices) == 0 {
			return fmt.Errorf("%w: minimal 1 invoice before submit", ErrValidation)
		}
		return tx.SetInvoiceReceiptStatus(ctx, id, InvoiceStatusSubmitted, actorID, now)
	})
	if err != nil {
		return err
	}
	if s.approvals != nil {
		_ = s.approvals.EnsureSubmit(ctx, "procurement.invoice", shared.DocApprovalRef("procurement.invoice", id), actorID, "invoice receipt submitted")
	}
	s.recordAudit(ctx, actorID, "invoice_receipt.submit", id, nil)
	return nil
}

// ApproveInvoiceReceipt approves a submitted receipt.
func (s *Service) ApproveInvoiceReceipt(ctx context.Context, id int64, actorID int64) error {
	return s.decideInvoiceReceipt(ctx, id, actorID, InvoiceStatusApproved, shared.ApprovalApprove)
}

// RejectInvoiceReceipt rejects a submitted receipt.
func (s *Service) RejectInvoiceReceipt(ctx context.Context, id int64, actorID int64) error {
	return s.decideInvoiceReceipt(ctx, id, actorID, InvoiceStatusRejected, shared.ApprovalReject)
}

func (s *Service) decideInvoiceReceipt(ctx context.Context, id int64, actorID int64, to InvoiceStatus, action shared.ApprovalAction) error {
	now := time.Now().UTC()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetInvoiceReceiptForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if !canInvoiceTransition(doc.Status, to) {
			return ErrInvalidState
		}
		return tx.SetInvoiceReceiptStatus(ctx, id, to, actorID, now)
	})
	if err != nil {
		return err
	}
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  "procurement.invoice",
			RefID:   shared.DocApprovalRef("procurement.invoice", id),
			ActorID: actorID,
			Action:  action,
			Note:    fmt.Sprintf("invoice receipt %s", to),
		})
	}
	s.recordAudit(ctx, actorID, "invoice_receipt."+string(to), id, nil)
	return nil
}

// DeleteInvoiceReceipt soft deletes a draft or rejected receipt.
func (s *Service) DeleteInvoiceReceipt(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetInvoiceReceiptForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if doc.Status != InvoiceStatusDraft && doc.Status != InvoiceStatusRejected {
			return ErrInvalidState
		}
		return tx.SetInvoiceReceiptDeleted(ctx, id, true)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "invoice_receipt.delete", id, nil)
	return nil
}

// RestoreInvoiceReceipt clears the soft-delete marker.
func (s *Service) RestoreInvoiceReceipt(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetInvoiceReceiptDeleted(ctx, id, false)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "invoice_receipt.restore", id, nil)
	return nil
}

// GetInvoiceReceipt loads one receipt with its invoices.
func (s *Service) GetInvoiceReceipt(ctx context.Context, id int64) (InvoiceReceipt, error) {
	return s.repo.GetInvoiceReceipt(ctx, id)
}

// ListInvoiceReceipts lists receipts.
func (s *Service) ListInvoiceReceipts(ctx context.Context, filter ListFilter) ([]InvoiceReceipt, error) {
	return s.repo.ListInvoiceReceipts(ctx, filter)
}

// InvoiceReceiptSummary aggregates invoice count and amount of one receipt.
func (s *Service) InvoiceReceiptSummary(ctx context.Context, id int64) (InvoiceSummary, error) {
	doc, err := s.repo.GetInvoiceReceipt(ctx, id)
	if err != nil {
		return InvoiceSummary{}, err
	}
	summary := InvoiceSummary{ReceiptID: doc.ID, TotalAmount: decimal.Zero}
	for _, inv := range doc.Invoices {
		summary.Count++
		summary.TotalAmount = summary.TotalAmount.Add(inv.Amount)
	}
	return summary, nil
}

func (s *Service) withDraftReceipt(ctx context.Context, id int64, fn func(context.Context, TxRepository, InvoiceReceipt) error) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetInvoiceReceiptForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if doc.Status != InvoiceStatusDraft {
			return ErrInvalidState
		}
		return fn(ctx, tx, doc)
	})
}
