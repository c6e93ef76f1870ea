package rawmaterial

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arunika-erp/arunika-erp/internal/shared"
	"github.com/arunika-erp/arunika-erp/internal/stock"
)

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	stock.LedgerTx

	InsertStockIn(ctx context.Context, doc StockIn) (int64, error)
	InsertStockInItems(ctx context.Context, stockInID int64, items []StockInItem) error
	GetStockInForUpdate(ctx context.Context, id int64) (StockIn, error)
	UpdateStockInHeader(ctx context.Context, doc StockIn) error
	ReplaceStockInItems(ctx context.Context, stockInID int64, items []StockInItem) error
	SetStockInStatus(ctx context.Context, id int64, status DocStatus, actorID int64, at time.Time) error
	SetStockInDeleted(ctx context.Context, id int64, deleted bool) error

	InsertStockOut(ctx context.Context, doc StockOut) (int64, error)
	InsertStockOutItems(ctx context.Context, stockOutID int64, items []StockOutItem) error
	GetStockOutForUpdate(ctx context.Context, id int64) (StockOut, error)
	UpdateStockOutHeader(ctx context.Context, doc StockOut) error
	ReplaceStockOutItems(ctx context.Context, stockOutID int64, items []StockOutItem) error
	SetStockOutStatus(ctx context.Context, id int64, status DocStatus, actorID int64, at time.Time) error
	SetStockOutDeleted(ctx context.Context, id int64, deleted bool) error

	InsertAdjustment(ctx context.Context, rec Adjustment) (int64, error)
	SetAdjustmentDeleted(ctx context.Context, id int64, deleted bool) error
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetStockIn(ctx context.Context, id int64) (StockIn, error)
	ListStockIns(ctx context.Context, filter ListFilter) ([]StockIn, error)
	GetStockOut(ctx context.Context, id int64) (StockOut, error)
	ListStockOuts(ctx context.Context, filter ListFilter) ([]StockOut, error)
	GetAdjustment(ctx context.Context, id int64) (Adjustment, error)
	ListAdjustments(ctx context.Context, filter ListFilter) ([]Adjustment, error)
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

// Service coordinates raw-material stock documents.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// LineInput is one raw-material line.
type LineInput struct {
	RawMaterialID int64
	Qty           decimal.Decimal
}

// DocInput describes a stock-in or stock-out payload.
type DocInput struct {
	Code        string
	WarehouseID int64
	Date        time.Time
	Note        string
	ActorID     int64
	Items       []LineInput
}

// CreateStockIn stores a draft inbound document.
func (s *Service) CreateStockIn(ctx context.Context, input DocInput) (StockIn, error) {
	items, err := stockInItems(input.Items)
	if err != nil {
		return StockIn{}, err
	}
	if input.WarehouseID == 0 {
		return StockIn{}, fmt.Errorf("%w: warehouse required", ErrValidation)
	}
	doc := StockIn{
		Code:        defaultCode(input.Code, "RMI"),
		WarehouseID: input.WarehouseID,
		Date:        defaultDate(input.Date),
		Note:        input.Note,
		Status:      DocStatusDraft,
		CreatedBy:   input.ActorID,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertStockIn(ctx, doc)
		if err != nil {
			return err
		}
		if err := tx.InsertStockInItems(ctx, id, items); err != nil {
			return err
		}
		doc.ID = id
		doc.Items = items
		return nil
	})
	if err != nil {
		return StockIn{}, err
	}
	s.recordAudit(ctx, input.ActorID, "stock_in.create", doc.ID)
	return doc, nil
}

// UpdateStockIn replaces a draft's header and items.
func (s *Service) UpdateStockIn(ctx context.Context, id int64, input DocInput) (StockIn, error) {
	items, err := stockInItems(input.Items)
	if err != nil {
		return StockIn{}, err
	}
	var updated StockIn
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetStockInForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if doc.Status != DocStatusDraft {
			return ErrInvalidState
		}
		if input.WarehouseID != 0 {
			doc.WarehouseID = input.WarehouseID
		}
		if !input.Date.IsZero() {
			doc.Date = input.Date
		}
		doc.Note = input.Note
		if err := tx.UpdateStockInHeader(ctx, doc); err != nil {
			return err
		}
		if err := tx.ReplaceStockInItems(ctx, id, items); err != nil {
			return err
		}
		doc.Items = items
		updated = doc
		return nil
	})
	if err != nil {
		return StockIn{}, err
	}
	s.recordAudit(ctx, input.ActorID, "stock_in.update", id)
	return updated, nil
}

// PostStockIn credits every line and records the inbound movements. Posting a
// posted document is rejected.
func (s *Service) PostStockIn(ctx context.Context, id int64, actorID int64) error {
	now := time.Now().UTC()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetStockInForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if doc.Status != DocStatusDraft {
			return ErrInvalidState
		}
		items := append([]StockInItem(nil), doc.Items...)
		stock.SortLines(items, func(it StockInItem) stock.Line {
			return stock.Line{Item: stock.RawMaterialRef(it.RawMaterialID), WarehouseID: doc.WarehouseID}
		})
		for _, item := range items {
			entry := stock.Entry{
				Item:        stock.RawMaterialRef(item.RawMaterialID),
				WarehouseID: doc.WarehouseID,
				Qty:         item.Qty,
				Type:        stock.MovementIn,
				Ref:         stock.DocRef{DocType: "raw_material_stock_in", DocID: doc.ID},
				Note:        doc.Note,
				ActorID:     actorID,
			}
			if _, err := stock.Credit(ctx, tx, entry); err != nil {
				return err
			}
		}
		return tx.SetStockInStatus(ctx, id, DocStatusPosted, actorID, now)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "stock_in.post", id)
	return nil
}

// DeleteStockIn soft deletes a draft.
func (s *Service) DeleteStockIn(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetStockInForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if doc.Status != DocStatusDraft {
			return ErrInvalidState
		}
		return tx.SetStockInDeleted(ctx, id, true)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "stock_in.delete", id)
	return nil
}

// RestoreStockIn clears the soft-delete marker.
func (s *Service) RestoreStockIn(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetStockInDeleted(ctx, id, false)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "stock_in.restore", id)
	return nil
}

// CreateStockOut stores a draft outbound document.
func (s *Service) CreateStockOut(ctx context.Context, input DocInput) (StockOut, error) {
	items, err := stockOutItems(input.Items)
	if err != nil {
		return StockOut{}, err
	}
	if input.WarehouseID == 0 {
		return StockOut{}, fmt.Errorf("%w: warehouse required", ErrValidation)
	}
	doc := StockOut{
		Code:        defaultCode(input.Code, "RMO"),
		WarehouseID: input.WarehouseID,
		Date:        defaultDate(input.Date),
		Note:        input.Note,
		Status:      DocStatusDraft,
		CreatedBy:   input.ActorID,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertStockOut(ctx, doc)
		if err != nil {
			return err
		}
		if err := tx.InsertStockOutItems(ctx, id, items); err != nil {
			return err
		}
		doc.ID = id
		doc.Items = items
		return nil
	})
	if err != nil {
		return StockOut{}, err
	}
	s.recordAudit(ctx, input.ActorID, "stock_out.create", doc.ID)
	return doc, nil
}

// UpdateStockOut replaces a draft's header and items.
func (s *Service) UpdateStockOut(ctx context.Context, id int64, input DocInput) (StockOut, error) {
	items, err := stockOutItems(input.Items)
	if err != nil {
		return StockOut{}, err
	}
	var updated StockOut
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetStockOutForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if doc.Status != DocStatusDraft {
			return ErrInvalidState
		}
		if input.WarehouseID != 0 {
			doc.WarehouseID = input.WarehouseID
		}
		if !input.Date.IsZero() {
			doc.Date = input.Date
		}
		doc.Note = input.Note
		if err := tx.UpdateStockOutHeader(ctx, doc); err != nil {
			return err
		}
		if err := tx.ReplaceStockOutItems(ctx, id, items); err != nil {
			return err
		}
		doc.Items = items
		updated = doc
		return nil
	})
	if err != nil {
		return StockOut{}, err
	}
	s.recordAudit(ctx, input.ActorID, "stock_out.update", id)
	return updated, nil
}

// PostStockOut debits every line under the row locks, all-or-nothing, and
// records the outbound movements.
func (s *Service) PostStockOut(ctx context.Context, id int64, actorID int64) error {
	now := time.Now().UTC()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetStockOutForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if doc.Status != DocStatusDraft {
			return ErrInvalidState
		}
		items := append([]StockOutItem(nil), doc.Items...)
		stock.SortLines(items, func(it StockOutItem) stock.Line {
			return stock.Line{Item: stock.RawMaterialRef(it.RawMaterialID), WarehouseID: doc.WarehouseID}
		})
		for _, item := range items {
			entry := stock.Entry{
				Item:        stock.RawMaterialRef(item.RawMaterialID),
				WarehouseID: doc.WarehouseID,
				Qty:         item.Qty,
				Type:        stock.MovementOut,
				Ref:         stock.DocRef{DocType: "raw_material_stock_out", DocID: doc.ID},
				Note:        doc.Note,
				ActorID:     actorID,
			}
			if _, err := stock.Debit(ctx, tx, entry); err != nil {
				return err
			}
		}
		return tx.SetStockOutStatus(ctx, id, DocStatusPosted, actorID, now)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "stock_out.post", id)
	return nil
}

// DeleteStockOut soft deletes a draft.
func (s *Service) DeleteStockOut(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetStockOutForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if doc.Status != DocStatusDraft {
			return ErrInvalidState
		}
		return tx.SetStockOutDeleted(ctx, id, true)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "stock_out.delete", id)
	return nil
}

// RestoreStockOut clears the soft-delete marker.
func (s *Service) RestoreStockOut(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetStockOutDeleted(ctx, id, false)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "stock_out.restore", id)
	return nil
}

// AdjustmentInput sets a raw-material balance to the counted quantity.
type AdjustmentInput struct {
	RawMaterialID int64
	WarehouseID   int64
	ActualQty     decimal.Decimal
	Reason        string
	ActorID       int64
}

// CreateAdjustment locks the balance, records before/after/difference, and
// applies the signed correction in one step.
func (s *Service) CreateAdjustment(ctx context.Context, input AdjustmentInput) (Adjustment, error) {
	if input.RawMaterialID == 0 || input.WarehouseID == 0 {
		return Adjustment{}, fmt.Errorf("%w: warehouse and raw material required", ErrValidation)
	}
	if input.ActualQty.Sign() < 0 {
		return Adjustment{}, fmt.Errorf("%w: actual qty must not be negative", ErrValidation)
	}
	var rec Adjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		before := decimal.Zero
		bal, err := tx.GetBalanceForUpdate(ctx, stock.RawMaterialRef(input.RawMaterialID), input.WarehouseID)
		if err != nil && !errors.Is(err, stock.ErrBalanceNotFound) {
			return err
		}
		if err == nil {
			before = bal.Qty
		}
		rec = Adjustment{
			RawMaterialID: input.RawMaterialID,
			WarehouseID:   input.WarehouseID,
			QtyBefore:     before,
			QtyAfter:      input.ActualQty,
			Difference:    input.ActualQty.Sub(before),
			Reason:        input.Reason,
			CreatedBy:     input.ActorID,
			CreatedAt:     time.Now().UTC(),
		}
		id, err := tx.InsertAdjustment(ctx, rec)
		if err != nil {
			return err
		}
		rec.ID = id
		if rec.Difference.IsZero() {
			return nil
		}
		entry := stock.Entry{
			Item:        stock.RawMaterialRef(input.RawMaterialID),
			WarehouseID: input.WarehouseID,
			Type:        stock.MovementAdjustment,
			Ref:         stock.DocRef{DocType: "raw_material_stock_adjustment", DocID: id},
			Note:        input.Reason,
			ActorID:     input.ActorID,
		}
		_, err = stock.Apply(ctx, tx, entry, rec.Difference)
		return err
	})
	if err != nil {
		return Adjustment{}, err
	}
	s.recordAudit(ctx, input.ActorID, "adjustment.create", rec.ID)
	return rec, nil
}

// DeleteAdjustment soft deletes the record. Balances stay as adjusted.
func (s *Service) DeleteAdjustment(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetAdjustmentDeleted(ctx, id, true)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "adjustment.delete", id)
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
	s.recordAudit(ctx, actorID, "adjustment.restore", id)
	return nil
}

// GetStockIn loads one inbound document with items.
func (s *Service) GetStockIn(ctx context.Context, id int64) (StockIn, error) {
	return s.repo.GetStockIn(ctx, id)
}

// ListStockIns lists inbound documents.
func (s *Service) ListStockIns(ctx context.Context, filter ListFilter) ([]StockIn, error) {
	return s.repo.ListStockIns(ctx, filter)
}

// GetStockOut loads one outbound document with items.
func (s *Service) GetStockOut(ctx context.Context, id int64) (StockOut, error) {
	return s.repo.GetStockOut(ctx, id)
}

// ListStockOuts lists outbound documents.
func (s *Service) ListStockOuts(ctx context.Context, filter ListFilter) ([]StockOut, error) {
	return s.repo.ListStockOuts(ctx, filter)
}

// GetAdjustment loads one adjustment record.
func (s *Service) GetAdjustment(ctx context.Context, id int64) (Adjustment, error) {
	return s.repo.GetAdjustment(ctx, id)
}

// ListAdjustments lists adjustment records.
func (s *Service) ListAdjustments(ctx context.Context, filter ListFilter) ([]Adjustment, error) {
	return s.repo.ListAdjustments(ctx, filter)
}

func stockInItems(inputs []LineInput) ([]StockInItem, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: minimal 1 item", ErrValidation)
	}
	items := make([]StockInItem, 0, len(inputs))
	for _, in := range inputs {
		if in.RawMaterialID == 0 || in.Qty.Sign() <= 0 {
			return nil, fmt.Errorf("%w: item requires raw material and positive qty", ErrValidation)
		}
		items = append(items, StockInItem{RawMaterialID: in.RawMaterialID, Qty: in.Qty})
	}
	return items, nil
}

func stockOutItems(inputs []LineInput) ([]StockOutItem, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: minimal 1 item", ErrValidation)
	}
	items := make([]StockOutItem, 0, len(inputs))
	for _, in := range inputs {
		if in.RawMaterialID == 0 || in.Qty.Sign() <= 0 {
			return nil, fmt.Errorf("%w: item requires raw material and positive qty", ErrValidation)
		}
		items = append(items, StockOutItem{RawMaterialID: in.RawMaterialID, Qty: in.Qty})
	}
	return items, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "rawmaterial." + action,
		Entity:   "rawmaterial",
		EntityID: fmt.Sprintf("%d", entityID),
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
