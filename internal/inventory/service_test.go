package inventory

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
	adjustments map[int64]*StockAdjustment
	requests    map[int64]*StockRequest
	stockOuts   map[int64]*StockOut
	transfers   map[int64]*StockTransfer
	initials    []InitialStock
	nextID      int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		Ledger:      stocktest.NewLedger(),
		adjustments: map[int64]*StockAdjustment{},
		requests:    map[int64]*StockRequest{},
		stockOuts:   map[int64]*StockOut{},
		transfers:   map[int64]*StockTransfer{},
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryRepo) InsertAdjustment(ctx context.Context, doc StockAdjustment) (int64, error) {
	doc.ID = r.id()
	r.adjustments[doc.ID] = &doc
	return doc.ID, nil
}

func (r *memoryRepo) InsertAdjustmentItems(ctx context.Context, adjustmentID int64, items []StockAdjustmentItem) error {
	r.adjustments[adjustmentID].Items = items
	return nil
}

func (r *memoryRepo) GetAdjustmentForUpdate(ctx context.Context, id int64) (StockAdjustment, error) {
	doc, ok := r.adjustments[id]
	if !ok {
		return StockAdjustment{}, ErrNotFound
	}
	return *doc, nil
}

func (r *memoryRepo) UpdateAdjustmentHeader(ctx context.Context, doc StockAdjustment) error {
	stored := r.adjustments[doc.ID]
	stored.WarehouseID = doc.WarehouseID
	stored.Date = doc.Date
	stored.Note = doc.Note
	return nil
}

func (r *memoryRepo) ReplaceAdjustmentItems(ctx context.Context, adjustmentID int64, items []StockAdjustmentItem) error {
	r.adjustments[adjustmentID].Items = items
	return nil
}

func (r *memoryRepo) SetAdjustmentStatus(ctx context.Context, id int64, status AdjustmentStatus, actorID int64, at time.Time) error {
	doc := r.adjustments[id]
	doc.Status = status
	doc.PostedBy = actorID
	doc.PostedAt = at
	return nil
}

func (r *memoryRepo) SetAdjustmentDeleted(ctx context.Context, id int64, deleted bool) error {
	setDeletedAt(&r.adjustments[id].DeletedAt, deleted)
	return nil
}

func (r *memoryRepo) InsertRequest(ctx context.Context, doc StockRequest) (int64, error) {
	doc.ID = r.id()
	r.requests[doc.ID] = &doc
	return doc.ID, nil
}

func (r *memoryRepo) InsertRequestItems(ctx context.Context, requestID int64, items []StockRequestItem) error {
	r.requests[requestID].Items = items
	return nil
}

func (r *memoryRepo) GetRequestForUpdate(ctx context.Context, id int64) (StockRequest, error) {
	doc, ok := r.requests[id]
	if !ok {
		return StockRequest{}, ErrNotFound
	}
	return *doc, nil
}

func (r *memoryRepo) UpdateRequestHeader(ctx context.Context, doc StockRequest) error {
	stored := r.requests[doc.ID]
	stored.WarehouseID = doc.WarehouseID
	stored.Date = doc.Date
	stored.Note = doc.Note
	return nil
}

func (r *memoryRepo) ReplaceRequestItems(ctx context.Context, requestID int64, items []StockRequestItem) error {
	r.requests[requestID].Items = items
	return nil
}

func (r *memoryRepo) SetRequestStatus(ctx context.Context, id int64, status RequestStatus, actorID int64, at time.Time) error {
	doc := r.requests[id]
	doc.Status = status
	doc.DecidedBy = actorID
	doc.DecidedAt = at
	return nil
}

func (r *memoryRepo) SetRequestCompleted(ctx context.Context, id int64, completed bool) error {
	r.requests[id].Completed = completed
	return nil
}

func (r *memoryRepo) SetRequestDeleted(ctx context.Context, id int64, deleted bool) error {
	setDeletedAt(&r.requests[id].DeletedAt, deleted)
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

func (r *memoryRepo) SetStockOutDeleted(ctx context.Context, id int64, deleted bool) error {
	setDeletedAt(&r.stockOuts[id].DeletedAt, deleted)
	return nil
}

func (r *memoryRepo) InsertTransfer(ctx context.Context, doc StockTransfer) (int64, error) {
	doc.ID = r.id()
	r.transfers[doc.ID] = &doc
	return doc.ID, nil
}

func (r *memoryRepo) InsertTransferItems(ctx context.Context, transferID int64, items []StockTransferItem) error {
	r.transfers[transferID].Items = items
	return nil
}

func (r *memoryRepo) GetTransferForUpdate(ctx context.Context, id int64) (StockTransfer, error) {
	doc, ok := r.transfers[id]
	if !ok {
		return StockTransfer{}, ErrNotFound
	}
	return *doc, nil
}

func (r *memoryRepo) UpdateTransferHeader(ctx context.Context, doc StockTransfer) error {
	stored := r.transfers[doc.ID]
	stored.FromWarehouseID = doc.FromWarehouseID
	stored.ToWarehouseID = doc.ToWarehouseID
	stored.Date = doc.Date
	stored.Note = doc.Note
	return nil
}

func (r *memoryRepo) ReplaceTransferItems(ctx context.Context, transferID int64, items []StockTransferItem) error {
	r.transfers[transferID].Items = items
	return nil
}

func (r *memoryRepo) SetTransferStatus(ctx context.Context, id int64, status TransferStatus, actorID int64, at time.Time) error {
	doc := r.transfers[id]
	doc.Status = status
	if status == TransferStatusExecuted {
		doc.ExecutedBy = actorID
		doc.ExecutedAt = at
	} else {
		doc.DecidedBy = actorID
	}
	return nil
}

func (r *memoryRepo) SetTransferDeleted(ctx context.Context, id int64, deleted bool) error {
	setDeletedAt(&r.transfers[id].DeletedAt, deleted)
	return nil
}

func (r *memoryRepo) InsertInitialStock(ctx context.Context, rec InitialStock) (int64, error) {
	rec.ID = r.id()
	r.initials = append(r.initials, rec)
	return rec.ID, nil
}

func (r *memoryRepo) GetAdjustment(ctx context.Context, id int64) (StockAdjustment, error) {
	return r.GetAdjustmentForUpdate(ctx, id)
}

func (r *memoryRepo) ListAdjustments(ctx context.Context, filter ListFilter) ([]StockAdjustment, error) {
	var out []StockAdjustment
	for _, doc := range r.adjustments {
		out = append(out, *doc)
	}
	return out, nil
}

func (r *memoryRepo) GetRequest(ctx context.Context, id int64) (StockRequest, error) {
	return r.GetRequestForUpdate(ctx, id)
}

func (r *memoryRepo) ListRequests(ctx context.Context, filter ListFilter) ([]StockRequest, error) {
	var out []StockRequest
	for _, doc := range r.requests {
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

func (r *memoryRepo) GetTransfer(ctx context.Context, id int64) (StockTransfer, error) {
	return r.GetTransferForUpdate(ctx, id)
}

func (r *memoryRepo) ListTransfers(ctx context.Context, filter ListFilter) ([]StockTransfer, error) {
	var out []StockTransfer
	for _, doc := range r.transfers {
		out = append(out, *doc)
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

func TestPostAdjustmentAppliesDifferences(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	repo.Seed(stock.ProductRef(1), 1, dec("10"))

	doc, err := svc.CreateAdjustment(ctx, CreateAdjustmentInput{
		WarehouseID: 1,
		ActorID:     7,
		Items:       []AdjustmentItemInput{{ProductID: 1, ActualQty: dec("7")}},
	})
	require.NoError(t, err)
	require.Equal(t, AdjustmentStatusDraft, doc.Status)
	require.True(t, doc.Items[0].Difference.Equal(dec("-3")))

	require.NoError(t, svc.PostAdjustment(ctx, doc.ID, 7))
	require.True(t, repo.Qty(stock.ProductRef(1), 1).Equal(dec("7")))

	movements := repo.MovementsFor(stock.ProductRef(1), 1)
	require.Len(t, movements, 1)
	require.Equal(t, stock.MovementAdjustment, movements[0].Type)
	require.True(t, movements[0].Qty.Equal(dec("-3")))

	err = svc.PostAdjustment(ctx, doc.ID, 7)
	require.ErrorIs(t, err, ErrInvalidState)
	require.True(t, repo.Qty(stock.ProductRef(1), 1).Equal(dec("7")))
	require.Len(t, repo.MovementsFor(stock.ProductRef(1), 1), 1)
}

func TestStockOutLifecycle(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	repo.Seed(stock.ProductRef(1), 1, dec("10"))

	req, err := svc.CreateRequest(ctx, CreateRequestInput{
		WarehouseID: 1,
		ActorID:     3,
		Items:       []RequestItemInput{{ProductID: 1, Qty: dec("4")}},
	})
	require.NoError(t, err)

	_, err = svc.CreateStockOut(ctx, CreateStockOutInput{RequestID: req.ID, ActorID: 3})
	require.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, svc.ApproveRequest(ctx, req.ID, 5))

	out, err := svc.CreateStockOut(ctx, CreateStockOutInput{RequestID: req.ID, ActorID: 3})
	require.NoError(t, err)
	require.True(t, repo.Qty(stock.ProductRef(1), 1).Equal(dec("6")))

	stored, err := svc.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.True(t, stored.Completed)

	_, err = svc.CreateStockOut(ctx, CreateStockOutInput{RequestID: req.ID, ActorID: 3})
	require.ErrorIs(t, err, ErrRequestCompleted)

	require.NoError(t, svc.DeleteStockOut(ctx, out.ID, 3))
	require.True(t, repo.Qty(stock.ProductRef(1), 1).Equal(dec("10")))

	movements := repo.MovementsFor(stock.ProductRef(1), 1)
	require.Len(t, movements, 2)
	require.Equal(t, stock.MovementOut, movements[0].Type)
	require.Equal(t, stock.MovementIn, movements[1].Type)

	stored, err = svc.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.False(t, stored.Completed)
	require.Equal(t, RequestStatusApproved, stored.Status)
}

func TestStockOutInsufficiency(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	repo.Seed(stock.ProductRef(2), 1, dec("10"))

	req, err := svc.CreateRequest(ctx, CreateRequestInput{
		WarehouseID: 1,
		Items:       []RequestItemInput{{ProductID: 2, Qty: dec("15")}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.ApproveRequest(ctx, req.ID, 1))

	_, err = svc.CreateStockOut(ctx, CreateStockOutInput{RequestID: req.ID})
	insuf, ok := stock.AsInsufficient(err)
	require.True(t, ok)
	require.Len(t, insuf.Shortfalls, 1)
	require.True(t, insuf.Shortfalls[0].Shortage.Equal(dec("5")))
	require.True(t, repo.Qty(stock.ProductRef(2), 1).Equal(dec("10")))

	stored, err := svc.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.False(t, stored.Completed)
}

func TestTransferExecuteSymmetry(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	repo.Seed(stock.RawMaterialRef(9), 1, dec("8"))

	doc, err := svc.CreateTransfer(ctx, CreateTransferInput{
		FromWarehouseID: 1,
		ToWarehouseID:   2,
		Items:           []TransferItemInput{{Item: stock.RawMaterialRef(9), Qty: dec("5")}},
	})
	require.NoError(t, err)

	err = svc.ExecuteTransfer(ctx, doc.ID, 1)
	require.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, svc.ApproveTransfer(ctx, doc.ID, 1))
	require.NoError(t, svc.ExecuteTransfer(ctx, doc.ID, 1))

	require.True(t, repo.Qty(stock.RawMaterialRef(9), 1).Equal(dec("3")))
	require.True(t, repo.Qty(stock.RawMaterialRef(9), 2).Equal(dec("5")))

	outMoves := repo.MovementsFor(stock.RawMaterialRef(9), 1)
	require.Len(t, outMoves, 1)
	require.Equal(t, stock.MovementTransferOut, outMoves[0].Type)
	inMoves := repo.MovementsFor(stock.RawMaterialRef(9), 2)
	require.Len(t, inMoves, 1)
	require.Equal(t, stock.MovementTransferIn, inMoves[0].Type)
	require.True(t, outMoves[0].Qty.Equal(inMoves[0].Qty))

	err = svc.ExecuteTransfer(ctx, doc.ID, 1)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestTransferRequiresDistinctWarehouses(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.CreateTransfer(context.Background(), CreateTransferInput{
		FromWarehouseID: 1,
		ToWarehouseID:   1,
		Items:           []TransferItemInput{{Item: stock.ProductRef(1), Qty: dec("1")}},
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestSeedInitialStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	rec, err := svc.SeedInitialStock(ctx, InitialStockInput{ProductID: 4, WarehouseID: 2, Qty: dec("12"), ActorID: 1})
	require.NoError(t, err)
	require.NotZero(t, rec.ID)
	require.True(t, repo.Qty(stock.ProductRef(4), 2).Equal(dec("12")))

	movements := repo.MovementsFor(stock.ProductRef(4), 2)
	require.Len(t, movements, 1)
	require.Equal(t, stock.MovementIn, movements[0].Type)
	require.Equal(t, "stock_initial", movements[0].Ref.DocType)

	_, err = svc.SeedInitialStock(ctx, InitialStockInput{ProductID: 4, WarehouseID: 2, Qty: decimal.Zero})
	require.ErrorIs(t, err, ErrValidation)
}

func TestRejectedRequestCannotIssue(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	req, err := svc.CreateRequest(ctx, CreateRequestInput{
		WarehouseID: 1,
		Items:       []RequestItemInput{{ProductID: 1, Qty: dec("1")}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.RejectRequest(ctx, req.ID, 2))

	_, err = svc.CreateStockOut(ctx, CreateStockOutInput{RequestID: req.ID})
	require.ErrorIs(t, err, ErrInvalidState)

	err = svc.ApproveRequest(ctx, req.ID, 2)
	require.ErrorIs(t, err, ErrInvalidState)
}
