package production

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/arunika-erp/arunika-erp/internal/stock"
	"github.com/arunika-erp/arunika-erp/internal/stock/stocktest"
)

type memoryRepo struct {
	*stocktest.Ledger
	boms       map[int64]*BillOfMaterial
	orders     map[int64]*ProductionOrder
	usages     []MaterialUsage
	lastPrices map[int64]decimal.Decimal
	nextID     int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		Ledger:     stocktest.NewLedger(),
		boms:       map[int64]*BillOfMaterial{},
		orders:     map[int64]*ProductionOrder{},
		lastPrices: map[int64]decimal.Decimal{},
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryRepo) InsertBOM(ctx context.Context, bom BillOfMaterial) (int64, error) {
	bom.ID = r.id()
	r.boms[bom.ID] = &bom
	return bom.ID, nil
}

func (r *memoryRepo) InsertBOMLines(ctx context.Context, bomID int64, lines []BOMLine) error {
	r.boms[bomID].Lines = lines
	return nil
}

func (r *memoryRepo) GetBOMForUpdate(ctx context.Context, id int64) (BillOfMaterial, error) {
	bom, ok := r.boms[id]
	if !ok {
		return BillOfMaterial{}, ErrNotFound
	}
	return *bom, nil
}

func (r *memoryRepo) UpdateBOMHeader(ctx context.Context, bom BillOfMaterial) error {
	stored := r.boms[bom.ID]
	stored.Name = bom.Name
	stored.BatchSize = bom.BatchSize
	return nil
}

func (r *memoryRepo) ReplaceBOMLines(ctx context.Context, bomID int64, lines []BOMLine) error {
	r.boms[bomID].Lines = lines
	return nil
}

func (r *memoryRepo) SetBOMActive(ctx context.Context, id int64, active bool) error {
	r.boms[id].Active = active
	return nil
}

func (r *memoryRepo) SetBOMDeleted(ctx context.Context, id int64, deleted bool) error {
	setDeletedAt(&r.boms[id].DeletedAt, deleted)
	return nil
}

func (r *memoryRepo) InsertOrder(ctx context.Context, doc ProductionOrder) (int64, error) {
	doc.ID = r.id()
	r.orders[doc.ID] = &doc
	return doc.ID, nil
}

func (r *memoryRepo) GetOrderForUpdate(ctx context.Context, id int64) (ProductionOrder, error) {
	doc, ok := r.orders[id]
	if !ok {
		return ProductionOrder{}, ErrNotFound
	}
	return *doc, nil
}

func (r *memoryRepo) UpdateOrderHeader(ctx context.Context, doc ProductionOrder) error {
	stored := r.orders[doc.ID]
	stored.Date = doc.Date
	stored.QuantityPlan = doc.QuantityPlan
	stored.Note = doc.Note
	return nil
}

func (r *memoryRepo) SetOrderStatus(ctx context.Context, id int64, status OrderStatus, at time.Time) error {
	doc := r.orders[id]
	doc.Status = status
	switch status {
	case OrderStatusReleased:
		doc.ReleasedAt = at
	case OrderStatusInProgress:
		doc.StartedAt = at
	case OrderStatusCompleted:
		doc.CompletedAt = at
	}
	return nil
}

func (r *memoryRepo) SetOrderMaterialCost(ctx context.Context, id int64, cost decimal.Decimal) error {
	r.orders[id].MaterialCost = cost
	return nil
}

func (r *memoryRepo) SetOrderCompletion(ctx context.Context, doc ProductionOrder) error {
	*r.orders[doc.ID] = doc
	return nil
}

func (r *memoryRepo) SetOrderDeleted(ctx context.Context, id int64, deleted bool) error {
	setDeletedAt(&r.orders[id].DeletedAt, deleted)
	return nil
}

func (r *memoryRepo) InsertMaterialUsage(ctx context.Context, usage MaterialUsage) (int64, error) {
	usage.ID = r.id()
	r.usages = append(r.usages, usage)
	return usage.ID, nil
}

func (r *memoryRepo) GetRawMaterialLastPrice(ctx context.Context, rawMaterialID int64) (decimal.Decimal, error) {
	return r.lastPrices[rawMaterialID], nil
}

func (r *memoryRepo) GetBOM(ctx context.Context, id int64) (BillOfMaterial, error) {
	return r.GetBOMForUpdate(ctx, id)
}

func (r *memoryRepo) ListBOMs(ctx context.Context, filter ListFilter) ([]BillOfMaterial, error) {
	var out []BillOfMaterial
	for _, bom := range r.boms {
		if bom.DeletedAt.IsZero() || filter.IncludeDeleted {
			out = append(out, *bom)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetOrder(ctx context.Context, id int64) (ProductionOrder, error) {
	return r.GetOrderForUpdate(ctx, id)
}

func (r *memoryRepo) ListOrders(ctx context.Context, filter ListFilter) ([]ProductionOrder, error) {
	var out []ProductionOrder
	for _, doc := range r.orders {
		if doc.DeletedAt.IsZero() || filter.IncludeDeleted {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListUsages(ctx context.Context, orderID int64) ([]MaterialUsage, error) {
	var out []MaterialUsage
	for _, usage := range r.usages {
		if usage.OrderID == orderID {
			out = append(out, usage)
		}
	}
	return out, nil
}

func setDeletedAt(target *time.Time, deleted bool) {
	if deleted {
		*target = time.Now().UTC()
	} else {
		*target = time.Time{}
	}
}

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func flourBOM(t *testing.T, svc *Service) BillOfMaterial {
	t.Helper()
	bom, err := svc.CreateBOM(context.Background(), BOMInput{
		ProductID: 1,
		Name:      "Bread 10pc batch",
		BatchSize: dec("10"),
		ActorID:   7,
		Lines: []BOMLineInput{
			{RawMaterialID: 5, Qty: dec("2")},
			{RawMaterialID: 6, Qty: dec("0.5")},
		},
	})
	require.NoError(t, err)
	return bom
}

func draftOrder(t *testing.T, svc *Service, bomID int64, plan string) ProductionOrder {
	t.Helper()
	doc, err := svc.CreateOrder(context.Background(), OrderInput{
		ProductID:    1,
		BOMID:        bomID,
		WarehouseID:  1,
		QuantityPlan: dec(plan),
		ActorID:      7,
	})
	require.NoError(t, err)
	return doc
}

func TestCreateOrderRejectsBOMMismatch(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	bom := flourBOM(t, svc)

	_, err := svc.CreateOrder(context.Background(), OrderInput{
		ProductID:    99,
		BOMID:        bom.ID,
		WarehouseID:  1,
		QuantityPlan: dec("10"),
		ActorID:      7,
	})
	require.ErrorIs(t, err, ErrBOMMismatch)

	require.NoError(t, svc.SetBOMActive(context.Background(), bom.ID, false, 7))
	_, err = svc.CreateOrder(context.Background(), OrderInput{
		ProductID:    1,
		BOMID:        bom.ID,
		WarehouseID:  1,
		QuantityPlan: dec("10"),
		ActorID:      7,
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestReleaseOrderAggregatesShortfalls(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	bom := flourBOM(t, svc)
	doc := draftOrder(t, svc, bom.ID, "100")

	// Plan 100 over batch 10 needs 20 of material 5 and 5 of material 6.
	repo.Seed(stock.RawMaterialRef(5), 1, dec("15"))
	repo.Seed(stock.RawMaterialRef(6), 1, dec("5"))

	err := svc.ReleaseOrder(context.Background(), doc.ID, 7)
	insuf, ok := stock.AsInsufficient(err)
	require.True(t, ok)
	require.Len(t, insuf.Shortfalls, 1)
	require.Equal(t, int64(5), insuf.Shortfalls[0].Item.ID)
	require.True(t, insuf.Shortfalls[0].Shortage.Equal(dec("5")))

	stored, err := svc.GetOrder(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, OrderStatusDraft, stored.Status)

	repo.Seed(stock.RawMaterialRef(5), 1, dec("20"))
	require.NoError(t, svc.ReleaseOrder(context.Background(), doc.ID, 7))

	stored, err = svc.GetOrder(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, OrderStatusReleased, stored.Status)
	require.ErrorIs(t, svc.ReleaseOrder(context.Background(), doc.ID, 7), ErrInvalidState)
}

func TestStartOrderDebitsAndSnapshotsUsage(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	bom := flourBOM(t, svc)
	doc := draftOrder(t, svc, bom.ID, "100")

	repo.Seed(stock.RawMaterialRef(5), 1, dec("25"))
	repo.Seed(stock.RawMaterialRef(6), 1, dec("8"))
	repo.lastPrices[5] = dec("12000")
	repo.lastPrices[6] = dec("30000")

	require.NoError(t, svc.ReleaseOrder(context.Background(), doc.ID, 7))
	require.NoError(t, svc.StartOrder(context.Background(), doc.ID, 7))

	require.True(t, repo.Qty(stock.RawMaterialRef(5), 1).Equal(dec("5")))
	require.True(t, repo.Qty(stock.RawMaterialRef(6), 1).Equal(dec("3")))

	usages, err := repo.ListUsages(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, usages, 2)

	byMaterial := map[int64]MaterialUsage{}
	for _, usage := range usages {
		byMaterial[usage.RawMaterialID] = usage
	}
	require.True(t, byMaterial[5].Qty.Equal(dec("20")))
	require.True(t, byMaterial[5].TotalCost.Equal(dec("240000")))
	require.True(t, byMaterial[6].Qty.Equal(dec("5")))
	require.True(t, byMaterial[6].TotalCost.Equal(dec("150000")))

	stored, err := svc.GetOrder(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, OrderStatusInProgress, stored.Status)
	require.True(t, stored.MaterialCost.Equal(dec("390000")))

	moves := repo.MovementsFor(stock.RawMaterialRef(5), 1)
	require.Len(t, moves, 1)
	require.Equal(t, stock.MovementOut, moves[0].Type)
	require.Equal(t, "production_order", moves[0].Ref.DocType)
}

func TestStartOrderRevalidatesStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	bom := flourBOM(t, svc)
	doc := draftOrder(t, svc, bom.ID, "100")

	repo.Seed(stock.RawMaterialRef(5), 1, dec("20"))
	repo.Seed(stock.RawMaterialRef(6), 1, dec("5"))
	require.NoError(t, svc.ReleaseOrder(context.Background(), doc.ID, 7))

	// Stock moved between release and start.
	repo.Seed(stock.RawMaterialRef(6), 1, dec("2"))

	err := svc.StartOrder(context.Background(), doc.ID, 7)
	insuf, ok := stock.AsInsufficient(err)
	require.True(t, ok)
	require.Len(t, insuf.Shortfalls, 1)
	require.Equal(t, int64(6), insuf.Shortfalls[0].Item.ID)
	require.True(t, repo.Qty(stock.RawMaterialRef(5), 1).Equal(dec("20")))
	require.Empty(t, repo.usages)
}

func TestCompleteOrderComputesUnitCost(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	bom := flourBOM(t, svc)
	doc := draftOrder(t, svc, bom.ID, "100")

	repo.Seed(stock.RawMaterialRef(5), 1, dec("20"))
	repo.Seed(stock.RawMaterialRef(6), 1, dec("5"))
	repo.lastPrices[5] = dec("12000")
	repo.lastPrices[6] = dec("12000")

	require.NoError(t, svc.ReleaseOrder(context.Background(), doc.ID, 7))
	require.NoError(t, svc.StartOrder(context.Background(), doc.ID, 7))

	// Material 20*12000 + 5*12000 = 300000.
	_, err := svc.CompleteOrder(context.Background(), doc.ID, CompleteOrderInput{
		QuantityActual: decimal.Zero,
		ActorID:        7,
	})
	require.ErrorIs(t, err, ErrValidation)

	completed, err := svc.CompleteOrder(context.Background(), doc.ID, CompleteOrderInput{
		QuantityActual: dec("100"),
		Waste:          dec("2"),
		LaborCost:      dec("50000"),
		OverheadCost:   dec("20000"),
		ActorID:        7,
	})
	require.NoError(t, err)
	require.True(t, completed.TotalCost.Equal(dec("370000")))
	require.True(t, completed.UnitCost.Equal(dec("3700")))
	require.Equal(t, OrderStatusCompleted, completed.Status)
	require.True(t, repo.Qty(stock.ProductRef(1), 1).Equal(dec("100")))

	moves := repo.MovementsFor(stock.ProductRef(1), 1)
	require.Len(t, moves, 1)
	require.Equal(t, stock.MovementIn, moves[0].Type)

	report, err := svc.OrderReport(context.Background(), doc.ID)
	require.NoError(t, err)
	require.True(t, report.Efficiency.Equal(dec("100")))
	require.Len(t, report.Usages, 2)
}

func TestOrderReportRequiresCompletion(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	bom := flourBOM(t, svc)
	doc := draftOrder(t, svc, bom.ID, "10")

	_, err := svc.OrderReport(context.Background(), doc.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestDeleteOrderOnlyBeforeStart(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	bom := flourBOM(t, svc)
	doc := draftOrder(t, svc, bom.ID, "10")

	repo.Seed(stock.RawMaterialRef(5), 1, dec("2"))
	repo.Seed(stock.RawMaterialRef(6), 1, dec("0.5"))
	require.NoError(t, svc.ReleaseOrder(context.Background(), doc.ID, 7))
	require.NoError(t, svc.StartOrder(context.Background(), doc.ID, 7))
	require.ErrorIs(t, svc.DeleteOrder(context.Background(), doc.ID, 7), ErrInvalidState)

	other := draftOrder(t, svc, bom.ID, "10")
	require.NoError(t, svc.DeleteOrder(context.Background(), other.ID, 7))
	_, err := svc.UpdateOrder(context.Background(), other.ID, UpdateOrderInput{Note: "x", ActorID: 7})
	require.ErrorIs(t, err, ErrDeleted)
	require.NoError(t, svc.RestoreOrder(context.Background(), other.ID, 7))
}
