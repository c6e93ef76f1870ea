package rawmaterial

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
	stockIns    map[int64]*StockIn
	stockOuts   map[int64]*StockOut
	adjustments map[int64]*Adjustment
	nextID      int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		Ledger:      stocktest.NewLedger(),
		stockIns:    map[int64]*StockIn{},
		stockOuts:   map[int64]*StockOut{},
		adjustments: map[int64]*Adjustment{},
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryRepo) InsertStockIn(ctx context.Context, doc StockIn) (int64, error) {
	doc.ID = r.id()
	r.stockIns[doc.ID] = &doc
	return doc.ID, nil
}

func (r *memoryRepo) InsertStockInItems(ctx context.Context, stockInID int64, items []StockInItem) error {
	r.stockIns[stockInID].Items = items
	return nil
}

func (r *memoryRepo) GetStockInForUpdate(ctx context.Context, id int64) (StockIn, error) {
	doc, ok := r.stockIns[id]
	if !ok {
		return StockIn{}, ErrNotFound
	}
	return *doc, nil
}

func (r *memoryRepo) UpdateStockInHeader(ctx context.Context, doc StockIn) error {
	stored := r.stockIns[doc.ID]
	stored.WarehouseID = doc.WarehouseID
	stored.Date = doc.Date
	stored.Note = doc.Note
	return nil
}

func (r *memoryRepo) ReplaceStockInItems(ctx context.Context, stockInID int64, items []StockInItem) error {
	r.stockIns[stockInID].Items = items
	return nil
}

func (r *memoryRepo) SetStockInStatus(ctx context.Context, id int64, status DocStatus, actorID int64, at time.Time) error {
	doc := r.stockIns[id]
	doc.Status = status
	doc.PostedBy = actorID
	doc.PostedAt = at
	return nil
}

func (r *memoryRepo) SetStockInDeleted(ctx context.Context, id int64, deleted bool) error {
	setDeletedAt(&r.stockIns[id].DeletedAt, deleted)
	return nil
}

func (r *memoryRepo) InsertStockOut(ctx context.Context, doc StockOut) (int64, error) {
	doc.ID = r.id()
	r.stockOuts[doc.ID] = &doc
	return doc.ID, nil
}

func (r *memoryRepo) InsertStockOutItems(ctx context.Context, stockOutID int64, items []StockOutItem) error {
	r.stockOuts[stockOutID].Items = items
	return nil
}

func (r *memoryRepo) GetStockOutForUpdate(ctx context.Context, id int64) (StockOut, error) {
	doc, ok := r.stockOuts[id]
	if !ok {
		return StockOut{}, ErrNotFound
	}
	return *doc, nil
}

func (r *memoryRepo) UpdateStockOutHeader(ctx context.Context, doc StockOut) error {
	stored := r.stockOuts[doc.ID]
	stored.WarehouseID = doc.WarehouseID
	stored.Date = doc.Date
	stored.Note = doc.Note
	return nil
}

func (r *memoryRepo) ReplaceStockOutItems(ctx context.Context, stockOutID int64, items []StockOutItem) error {
	r.stockOuts[stockOutID].Items = items
	return nil
}

func (r *memoryRepo) SetStockOutStatus(ctx context.Context, id int64, status DocStatus, actorID int64, at time.Time) error {
	doc := r.stockOuts[id]
	doc.Status = status
	doc.PostedBy = actorID
	doc.PostedAt = at
	return nil
}

func (r *memoryRepo) SetStockOutDeleted(ctx context.Context, id int64, deleted bool) error {
	setDeletedAt(&r.stockOuts[id].DeletedAt, deleted)
	return nil
}

func (r *memoryRepo) InsertAdjustment(ctx context.Context, rec Adjustment) (int64, error) {
	rec.ID = r.id()
	r.adjustments[rec.ID] = &rec
	return rec.ID, nil
}

func (r *memoryRepo) SetAdjustmentDeleted(ctx context.Context, id int64, deleted bool) error {
	rec, ok := r.adjustments[id]
	if !ok {
		return ErrNotFound
	}
	setDeletedAt(&rec.DeletedAt, deleted)
	return nil
}

func (r *memoryRepo) GetStockIn(ctx context.Context, id int64) (StockIn, error) {
	return r.GetStockInForUpdate(ctx, id)
}

func (r *memoryRepo) ListStockIns(ctx context.Context, filter ListFilter) ([]StockIn, error) {
	var out []StockIn
	for _, doc := range r.stockIns {
		out = append(out, *doc)
	}
	return out, nil
}

func (r *memoryRepo) GetStockOut(ctx context.Context, id int64) (StockOut, error) {
	return r.GetStockOutForUpdate(ctx, id)
}

func (r *memoryRepo) ListStockOuts(ctx context.Context, filter ListFilter) ([]StockOut, error) {
	var out []StockOut
	for _, doc := range r.stockOuts {
		out = append(out, *doc)
	}
	return out, nil
}

func (r *memoryRepo) GetAdjustment(ctx context.Context, id int64) (Adjustment, error) {
	rec, ok := r.adjustments[id]
	if !ok {
		return Adjustment{}, ErrNotFound
	}
	return *rec, nil
}

func (r *memoryRepo) ListAdjustments(ctx context.Context, filter ListFilter) ([]Adjustment, error) {
	var out []Adjustment
	for _, rec := range r.adjustments {
		out = append(out, *rec)
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

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPostStockInCreditsBalances(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	doc, err := svc.CreateStockIn(ctx, DocInput{
		WarehouseID: 1,
		ActorID:     2,
		Items: []LineInput{
			{RawMaterialID: 10, Qty: dec("25")},
			{RawMaterialID: 11, Qty: dec("5.5")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, DocStatusDraft, doc.Status)
	require.True(t, repo.Qty(stock.RawMaterialRef(10), 1).IsZero())

	require.NoError(t, svc.PostStockIn(ctx, doc.ID, 2))
	require.True(t, repo.Qty(stock.RawMaterialRef(10), 1).Equal(dec("25")))
	require.True(t, repo.Qty(stock.RawMaterialRef(11), 1).Equal(dec("5.5")))

	movements := repo.MovementsFor(stock.RawMaterialRef(10), 1)
	require.Len(t, movements, 1)
	require.Equal(t, stock.MovementIn, movements[0].Type)
	require.Equal(t, "raw_material_stock_in", movements[0].Ref.DocType)

	err = svc.PostStockIn(ctx, doc.ID, 2)
	require.ErrorIs(t, err, ErrInvalidState)
	require.True(t, repo.Qty(stock.RawMaterialRef(10), 1).Equal(dec("25")))
	require.Len(t, repo.MovementsFor(stock.RawMaterialRef(10), 1), 1)
}

func TestPostStockOutDebitsAllOrNothing(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	repo.Seed(stock.RawMaterialRef(10), 1, dec("20"))

	doc, err := svc.CreateStockOut(ctx, DocInput{
		WarehouseID: 1,
		Items:       []LineInput{{RawMaterialID: 10, Qty: dec("30")}},
	})
	require.NoError(t, err)

	err = svc.PostStockOut(ctx, doc.ID, 1)
	insuf, ok := stock.AsInsufficient(err)
	require.True(t, ok)
	require.True(t, insuf.Shortfalls[0].Shortage.Equal(dec("10")))
	require.True(t, repo.Qty(stock.RawMaterialRef(10), 1).Equal(dec("20")))

	stored, err := svc.GetStockOut(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, DocStatusDraft, stored.Status)

	updated, err := svc.UpdateStockOut(ctx, doc.ID, DocInput{
		WarehouseID: 1,
		Items:       []LineInput{{RawMaterialID: 10, Qty: dec("20")}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.PostStockOut(ctx, updated.ID, 1))
	require.True(t, repo.Qty(stock.RawMaterialRef(10), 1).IsZero())
}

func TestAdjustmentSetsToActual(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	repo.Seed(stock.RawMaterialRef(7), 2, dec("12"))

	rec, err := svc.CreateAdjustment(ctx, AdjustmentInput{
		RawMaterialID: 7,
		WarehouseID:   2,
		ActualQty:     dec("9"),
		Reason:        "damaged bags",
		ActorID:       4,
	})
	require.NoError(t, err)
	require.True(t, rec.QtyBefore.Equal(dec("12")))
	require.True(t, rec.QtyAfter.Equal(dec("9")))
	require.True(t, rec.Difference.Equal(dec("-3")))
	require.True(t, repo.Qty(stock.RawMaterialRef(7), 2).Equal(dec("9")))

	movements := repo.MovementsFor(stock.RawMaterialRef(7), 2)
	require.Len(t, movements, 1)
	require.Equal(t, stock.MovementAdjustment, movements[0].Type)
	require.True(t, movements[0].Qty.Equal(dec("-3")))
}

func TestAdjustmentMissingBalanceStartsFromZero(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	rec, err := svc.CreateAdjustment(context.Background(), AdjustmentInput{
		RawMaterialID: 8,
		WarehouseID:   1,
		ActualQty:     dec("4"),
	})
	require.NoError(t, err)
	require.True(t, rec.QtyBefore.IsZero())
	require.True(t, rec.Difference.Equal(dec("4")))
	require.True(t, repo.Qty(stock.RawMaterialRef(8), 1).Equal(dec("4")))
}

func TestAdjustmentNoChangeRecordsNoMovement(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	repo.Seed(stock.RawMaterialRef(3), 1, dec("6"))

	rec, err := svc.CreateAdjustment(context.Background(), AdjustmentInput{
		RawMaterialID: 3,
		WarehouseID:   1,
		ActualQty:     dec("6"),
	})
	require.NoError(t, err)
	require.True(t, rec.Difference.IsZero())
	require.Empty(t, repo.MovementsFor(stock.RawMaterialRef(3), 1))
}

func TestDeleteStockInOnlyDraft(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	doc, err := svc.CreateStockIn(ctx, DocInput{
		WarehouseID: 1,
		Items:       []LineInput{{RawMaterialID: 1, Qty: dec("1")}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.PostStockIn(ctx, doc.ID, 1))

	err = svc.DeleteStockIn(ctx, doc.ID, 1)
	require.ErrorIs(t, err, ErrInvalidState)
}
