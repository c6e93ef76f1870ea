package production

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

	InsertBOM(ctx context.Context, bom BillOfMaterial) (int64, error)
	InsertBOMLines(ctx context.Context, bomID int64, lines []BOMLine) error
	GetBOMForUpdate(ctx context.Context, id int64) (BillOfMaterial, error)
	UpdateBOMHeader(ctx context.Context, bom BillOfMaterial) error
	ReplaceBOMLines(ctx context.Context, bomID int64, lines []BOMLine) error
	SetBOMActive(ctx context.Context, id int64, active bool) error
	SetBOMDeleted(ctx context.Context, id int64, deleted bool) error

	InsertOrder(ctx context.Context, doc ProductionOrder) (int64, error)
	GetOrderForUpdate(ctx context.Context, id int64) (ProductionOrder, error)
	UpdateOrderHeader(ctx context.Context, doc ProductionOrder) error
	SetOrderStatus(ctx context.Context, id int64, status OrderStatus, at time.Time) error
	SetOrderMaterialCost(ctx context.Context, id int64, cost decimal.Decimal) error
	SetOrderCompletion(ctx context.Context, doc ProductionOrder) error
	SetOrderDeleted(ctx context.Context, id int64, deleted bool) error
	InsertMaterialUsage(ctx context.Context, usage MaterialUsage) (int64, error)
	GetRawMaterialLastPrice(ctx context.Context, rawMaterialID int64) (decimal.Decimal, error)
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBOM(ctx context.Context, id int64) (BillOfMaterial, error)
	ListBOMs(ctx context.Context, filter ListFilter) ([]BillOfMaterial, error)
	GetOrder(ctx context.Context, id int64) (ProductionOrder, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]ProductionOrder, error)
	ListUsages(ctx context.Context, orderID int64) ([]MaterialUsage, error)
}

// ListFilter narrows listings.
type ListFilter struct {
	IncludeDeleted bool
	Limit          int
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service drives BOMs and production orders.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService constructs the production service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// BOMLineInput is one raw material requirement per batch.
type BOMLineInput struct {
	RawMaterialID int64
	Qty           decimal.Decimal
}

// BOMInput describes a bill of material.
type BOMInput struct {
	Code      string
	ProductID int64
	Name      string
	BatchSize decimal.Decimal
	ActorID   int64
	Lines     []BOMLineInput
}

// CreateBOM stores a new bill of material, active by default.
func (s *Service) CreateBOM(ctx context.Context, input BOMInput) (BillOfMaterial, error) {
	if input.ProductID == 0 || input.BatchSize.Sign() <= 0 {
		return BillOfMaterial{}, fmt.Errorf("%w: product and positive batch size required", ErrValidation)
	}
	lines, err := bomLines(input.Lines)
	if err != nil {
		return BillOfMaterial{}, err
	}
	bom := BillOfMaterial{
		Code:      defaultCode(input.Code, "BOM"),
		ProductID: input.ProductID,
		Name:      input.Name,
		BatchSize: input.BatchSize,
		Active:    true,
		CreatedBy: input.ActorID,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertBOM(ctx, bom)
		if err != nil {
			return err
		}
		if err := tx.InsertBOMLines(ctx, id, lines); err != nil {
			return err
		}
		bom.ID = id
		bom.Lines = lines
		return nil
	})
	if err != nil {
		return BillOfMaterial{}, err
	}
	s.recordAudit(ctx, input.ActorID, "bom.create", bom.ID, map[string]any{"code": bom.Code})
	return bom, nil
}

// UpdateBOM replaces the header and lines. Orders already released keep the
// usage they snapshotted; future releases see the new recipe.
func (s *Service) UpdateBOM(ctx context.Context, id int64, input BOMInput) (BillOfMaterial, error) {
	if input.BatchSize.Sign() <= 0 {
		return BillOfMaterial{}, fmt.Errorf("%w: positive batch size required", ErrValidation)
	}
	lines, err := bomLines(input.Lines)
	if err != nil {
		return BillOfMaterial{}, err
	}
	var updated BillOfMaterial
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		bom, err := tx.GetBOMForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !bom.DeletedAt.IsZero() {
			return ErrDeleted
		}
		bom.Name = input.Name
		bom.BatchSize = input.BatchSize
		if err := tx.UpdateBOMHeader(ctx, bom); err != nil {
			return err
		}
		if err := tx.ReplaceBOMLines(ctx, id, lines); err != nil {
			return err
		}
		bom.Lines = lines
		updated = bom
		return nil
	})
	if err != nil {
		return BillOfMaterial{}, err
	}
	s.recordAudit(ctx, input.ActorID, "bom.update", id, nil)
	return updated, nil
}

// SetBOMActive toggles whether new orders may use the BOM.
func (s *Service) SetBOMActive(ctx context.Context, id int64, active bool, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		bom, err := tx.GetBOMForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !bom.DeletedAt.IsZero() {
			return ErrDeleted
		}
		return tx.SetBOMActive(ctx, id, active)
	})
	if err != nil {
		return err
	}
	action := "bom.deactivate"
	if active {
		action = "bom.activate"
	}
	s.recordAudit(ctx, actorID, action, id, nil)
	return nil
}

// DeleteBOM soft deletes a bill of material.
func (s *Service) DeleteBOM(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetBOMDeleted(ctx, id, true)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "bom.delete", id, nil)
	return nil
}

// RestoreBOM clears the soft-delete marker.
func (s *Service) RestoreBOM(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetBOMDeleted(ctx, id, false)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "bom.restore", id, nil)
	return nil
}

// GetBOM loads one bill of material with lines.
func (s *Service) GetBOM(ctx context.Context, id int64) (BillOfMaterial, error) {
	return s.repo.GetBOM(ctx, id)
}

// ListBOMs lists bills of material.
func (s *Service) ListBOMs(ctx context.Context, filter ListFilter) ([]BillOfMaterial, error) {
	return s.repo.ListBOMs(ctx, filter)
}

// OrderInput describes a production order.
type OrderInput struct {
	Code         string
	ProductID    int64
	BOMID        int64
	WarehouseID  int64
	Date         time.Time
	QuantityPlan decimal.Decimal
	Note         string
	ActorID      int64
}

// CreateOrder drafts a production order. The BOM must be active and belong to
// the ordered product.
func (s *Service) CreateOrder(ctx context.Context, input OrderInput) (ProductionOrder, error) {
	if input.ProductID == 0 || input.BOMID == 0 || input.WarehouseID == 0 {
		return ProductionOrder{}, fmt.Errorf("%w: product, bom and warehouse required", ErrValidation)
	}
	if input.QuantityPlan.LessThan(decimal.NewFromInt(1)) {
		return ProductionOrder{}, fmt.Errorf("%w: planned quantity must be at least 1", ErrValidation)
	}
	var doc ProductionOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		bom, err := tx.GetBOMForUpdate(ctx, input.BOMID)
		if err != nil {
			return err
		}
		if !bom.DeletedAt.IsZero() || !bom.Active {
			return fmt.Errorf("%w: bom inactive", ErrValidation)
		}
		if bom.ProductID != input.ProductID {
			return ErrBOMMismatch
		}
		doc = ProductionOrder{
			Code:         defaultCode(input.Code, "PRO"),
			ProductID:    input.ProductID,
			BOMID:        input.BOMID,
			WarehouseID:  input.WarehouseID,
			Date:         defaultDate(input.Date),
			QuantityPlan: input.QuantityPlan,
			Note:         input.Note,
			Status:       OrderStatusDraft,
			CreatedBy:    input.ActorID,
		}
		id, err := tx.InsertOrder(ctx, doc)
		if err != nil {
			return err
		}
		doc.ID = id
		return nil
	})
	if err != nil {
		return ProductionOrder{}, err
	}
	s.recordAudit(ctx, input.ActorID, "order.create", doc.ID, map[string]any{"code": doc.Code})
	return doc, nil
}

// UpdateOrderInput changes a draft order.
type UpdateOrderInput struct {
	Date         time.Time
	QuantityPlan decimal.Decimal
	Note         string
	ActorID      int64
}

// UpdateOrder adjusts a draft order's date, plan and note.
func (s *Service) UpdateOrder(ctx context.Context, id int64, input UpdateOrderInput) (ProductionOrder, error) {
	var updated ProductionOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if doc.Status != OrderStatusDraft {
			return ErrInvalidState
		}
		if !input.Date.IsZero() {
			doc.Date = input.Date
		}
		if !input.QuantityPlan.IsZero() {
			if input.QuantityPlan.LessThan(decimal.NewFromInt(1)) {
				return fmt.Errorf("%w: planned quantity must be at least 1", ErrValidation)
			}
			doc.QuantityPlan = input.QuantityPlan
		}
		doc.Note = input.Note
		if err := tx.UpdateOrderHeader(ctx, doc); err != nil {
			return err
		}
		updated = doc
		return nil
	})
	if err != nil {
		return ProductionOrder{}, err
	}
	s.recordAudit(ctx, input.ActorID, "order.update", id, nil)
	return updated, nil
}

type requirement struct {
	RawMaterialID int64
	Qty           decimal.Decimal
}

// requirements scales the BOM lines to the planned quantity.
func requirements(bom BillOfMaterial, plan decimal.Decimal) []requirement {
	multiplier := plan.Div(bom.BatchSize)
	reqs := make([]requirement, 0, len(bom.Lines))
	for _, line := range bom.Lines {
		reqs = append(reqs, requirement{RawMaterialID: line.RawMaterialID, Qty: line.Qty.Mul(multiplier)})
	}
	return reqs
}

// checkSufficiency locks every required balance in deterministic order and
// aggregates all shortfalls so the caller sees the full picture at once.
func checkSufficiency(ctx context.Context, tx TxRepository, warehouseID int64, reqs []requirement) error {
	stock.SortLines(reqs, func(r requirement) stock.Line {
		return stock.Line{Item: stock.RawMaterialRef(r.RawMaterialID), WarehouseID: warehouseID}
	})
	var shortfalls []stock.Shortfall
	for _, req := range reqs {
		item := stock.RawMaterialRef(req.RawMaterialID)
		available := decimal.Zero
		bal, err := tx.GetBalanceForUpdate(ctx, item, warehouseID)
		if err != nil && !errors.Is(err, stock.ErrBalanceNotFound) {
			return err
		}
		if err == nil {
			available = bal.Qty
		}
		if available.LessThan(req.Qty) {
			shortfalls = append(shortfalls, stock.Shortfall{
				Item:        item,
				WarehouseID: warehouseID,
				Required:    req.Qty,
				Available:   available,
				Shortage:    req.Qty.Sub(available),
			})
		}
	}
	if len(shortfalls) > 0 {
		return &stock.InsufficientError{Shortfalls: shortfalls}
	}
	return nil
}

// ReleaseOrder verifies every BOM requirement against current balances. Any
// shortfall rejects the release with the full list and the order stays draft.
func (s *Service) ReleaseOrder(ctx context.Context, id int64, actorID int64) error {
	now := time.Now().UTC()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if !canOrderTransition(doc.Status, OrderStatusReleased) {
			return ErrInvalidState
		}
		bom, err := tx.GetBOMForUpdate(ctx, doc.BOMID)
		if err != nil {
			return err
		}
		if err := checkSufficiency(ctx, tx, doc.WarehouseID, requirements(bom, doc.QuantityPlan)); err != nil {
			return err
		}
		return tx.SetOrderStatus(ctx, id, OrderStatusReleased, now)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "order.release", id, nil)
	return nil
}

// StartOrder re-validates sufficiency under the row locks, then debits every
// requirement and snapshots material usage priced at the raw material's last
// purchase price. Balances may have moved since release, so the check runs
// again here.
func (s *Service) StartOrder(ctx context.Context, id int64, actorID int64) error {
	now := time.Now().UTC()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if !canOrderTransition(doc.Status, OrderStatusInProgress) {
			return ErrInvalidState
		}
		bom, err := tx.GetBOMForUpdate(ctx, doc.BOMID)
		if err != nil {
			return err
		}
		reqs := requirements(bom, doc.QuantityPlan)
		if err := checkSufficiency(ctx, tx, doc.WarehouseID, reqs); err != nil {
			return err
		}
		materialCost := decimal.Zero
		for _, req := range reqs {
			if _, err := stock.Debit(ctx, tx, stock.Entry{
				Item:        stock.RawMaterialRef(req.RawMaterialID),
				WarehouseID: doc.WarehouseID,
				Qty:         req.Qty,
				Type:        stock.MovementOut,
				Ref:         stock.DocRef{DocType: "production_order", DocID: doc.ID},
				Note:        doc.Code,
				ActorID:     actorID,
			}); err != nil {
				return err
			}
			unitCost, err := tx.GetRawMaterialLastPrice(ctx, req.RawMaterialID)
			if err != nil {
				return err
			}
			lineCost := unitCost.Mul(req.Qty)
			if _, err := tx.InsertMaterialUsage(ctx, MaterialUsage{
				OrderID:       doc.ID,
				RawMaterialID: req.RawMaterialID,
				Qty:           req.Qty,
				UnitCost:      unitCost,
				TotalCost:     lineCost,
			}); err != nil {
				return err
			}
			materialCost = materialCost.Add(lineCost)
		}
		if err := tx.SetOrderMaterialCost(ctx, id, materialCost); err != nil {
			return err
		}
		return tx.SetOrderStatus(ctx, id, OrderStatusInProgress, now)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "order.start", id, nil)
	return nil
}

// CompleteOrderInput finishes an order.
type CompleteOrderInput struct {
	QuantityActual decimal.Decimal
	Waste          decimal.Decimal
	LaborCost      decimal.Decimal
	OverheadCost   decimal.Decimal
	ActorID        int64
}

// CompleteOrder computes the unit cost from material, labor and overhead over
// the actual quantity, credits the finished product, and closes the order.
// Waste is recorded but never subtracted from cost.
func (s *Service) CompleteOrder(ctx context.Context, id int64, input CompleteOrderInput) (ProductionOrder, error) {
	if input.QuantityActual.Sign() <= 0 {
		return ProductionOrder{}, fmt.Errorf("%w: actual quantity must be positive", ErrValidation)
	}
	if input.Waste.Sign() < 0 || input.LaborCost.Sign() < 0 || input.OverheadCost.Sign() < 0 {
		return ProductionOrder{}, fmt.Errorf("%w: waste and costs must not be negative", ErrValidation)
	}
	now := time.Now().UTC()
	var completed ProductionOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.DeletedAt.IsZero() {
			return ErrDeleted
		}
		if !canOrderTransition(doc.Status, OrderStatusCompleted) {
			return ErrInvalidState
		}
		doc.QuantityActual = input.QuantityActual
		doc.Waste = input.Waste
		doc.LaborCost = input.LaborCost
		doc.OverheadCost = input.OverheadCost
		doc.TotalCost = doc.MaterialCost.Add(input.LaborCost).Add(input.OverheadCost)
		doc.UnitCost = doc.TotalCost.Div(input.QuantityActual)
		doc.Status = OrderStatusCompleted
		doc.CompletedAt = now
		if err := tx.SetOrderCompletion(ctx, doc); err != nil {
			return err
		}
		if _, err := stock.Credit(ctx, tx, stock.Entry{
			Item:        stock.ProductRef(doc.ProductID),
			WarehouseID: doc.WarehouseID,
			Qty:         input.QuantityActual,
			Type:        stock.MovementIn,
			Ref:         stock.DocRef{DocType: "production_order", DocID: doc.ID},
			Note:        doc.Code,
			ActorID:     input.ActorID,
		}); err != nil {
			return err
		}
		completed = doc
		return nil
	})
	if err != nil {
		return ProductionOrder{}, err
	}
	s.recordAudit(ctx, input.ActorID, "order.complete", id, map[string]any{"unit_cost": completed.UnitCost.String()})
	return completed, nil
}

// DeleteOrder soft deletes an order that has not consumed material yet.
func (s *Service) DeleteOrder(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if doc.Status != OrderStatusDraft && doc.Status != OrderStatusReleased {
			return ErrInvalidState
		}
		return tx.SetOrderDeleted(ctx, id, true)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "order.delete", id, nil)
	return nil
}

// RestoreOrder clears the soft-delete marker.
func (s *Service) RestoreOrder(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetOrderDeleted(ctx, id, false)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "order.restore", id, nil)
	return nil
}

// GetOrder loads one order.
func (s *Service) GetOrder(ctx context.Context, id int64) (ProductionOrder, error) {
	return s.repo.GetOrder(ctx, id)
}

// ListOrders lists orders.
func (s *Service) ListOrders(ctx context.Context, filter ListFilter) ([]ProductionOrder, error) {
	return s.repo.ListOrders(ctx, filter)
}

// OrderReport builds the cost report of a completed order: quantities,
// efficiency (actual over plan), cost breakdown and material usage detail.
func (s *Service) OrderReport(ctx context.Context, id int64) (Report, error) {
	doc, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return Report{}, err
	}
	if doc.Status != OrderStatusCompleted {
		return Report{}, ErrInvalidState
	}
	usages, err := s.repo.ListUsages(ctx, id)
	if err != nil {
		return Report{}, err
	}
	report := Report{Order: doc, Usages: usages}
	if doc.QuantityPlan.Sign() > 0 {
		report.Efficiency = doc.QuantityActual.Div(doc.QuantityPlan).Mul(decimal.NewFromInt(100))
	}
	return report, nil
}

func bomLines(inputs []BOMLineInput) ([]BOMLine, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: minimal 1 line", ErrValidation)
	}
	lines := make([]BOMLine, 0, len(inputs))
	for _, in := range inputs {
		if in.RawMaterialID == 0 || in.Qty.Sign() <= 0 {
			return nil, fmt.Errorf("%w: line requires a raw material and positive qty", ErrValidation)
		}
		lines = append(lines, BOMLine{RawMaterialID: in.RawMaterialID, Qty: in.Qty})
	}
	return lines, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "production." + action,
		Entity:   "production",
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
