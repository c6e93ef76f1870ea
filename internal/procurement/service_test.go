package procurement

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
	prs        map[int64]*PurchaseRequest
	pos        map[int64]*PurchaseOrder
	grs        map[int64]*GoodsReceipt
	returns    map[int64]*PurchaseReturn
	receipts   map[int64]*InvoiceReceipt
	lastPrices map[int64]decimal.Decimal
	nextID     int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		Ledger:     stocktest.NewLedger(),
		prs:        map[int64]*PurchaseRequest{},
		pos:        map[int64]*PurchaseOrder{},
		grs:        map[int64]*GoodsReceipt{},
		returns:    map[int64]*PurchaseReturn{},
		receipts:   map[int64]*InvoiceReceipt{},
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

func (r *memoryRepo) InsertPR(ctx context.Context, doc PurchaseRequest) (int64, error) {
	doc.ID = r.id()
	r.prs[doc.ID] = &doc
	return doc.ID, nil
}

func (r *memoryRepo) InsertPRItems(ctx context.Context, requestID int64, items []PurchaseRequestItem) error {
	r.prs[requestID].Items = items
	return nil
}

func (r *memoryRepo) GetPRForUpdate(ctx context.Context, id int64) (PurchaseRequest, error) {
	doc, ok := r.prs[id]
	if !ok {
		return PurchaseRequest{}, ErrNotFound
	}
	return *doc, nil
}

func (r *memoryRepo) UpdatePRHeader(ctx context.Context, doc PurchaseRequest) error {
	stored := r.prs[doc.ID]
	stored.SupplierID = doc.SupplierID
	stored.Date = doc.Date
	stored.Note = doc.Note
	return nil
}

func (r *memoryRepo) ReplacePRItems(ctx context.Context, requestID int64, items []PurchaseRequestItem) error {
	r.prs[requestID].Items = items
	return nil
}

func (r *memoryRepo) SetPRStatus(ctx context.Context, id int64, status PRStatus, actorID int64, at time.Time) error {
	doc := r.prs[id]
	doc.Status = status
	doc.DecidedBy = actorID
	doc.DecidedAt = at
	return nil
}

func (r *memoryRepo) SetPRCompleted(ctx context.Context, id int64, completed bool) error {
	r.prs[id].Completed = completed
	return nil
}

func (r *memoryRepo) SetPRDeleted(ctx context.Context, id int64, deleted bool) error {
	setDeletedAt(&r.prs[id].DeletedAt, deleted)
	return nil
}

func (r *memoryRepo) InsertPO(ctx context.Context, doc PurchaseOrder) (int64, error) {
	doc.ID = r.id()
	r.pos[doc.ID] = &doc
	return doc.ID, nil
}

func (r *memoryRepo) InsertPOItems(ctx context.Context, orderID int64, items []PurchaseOrderItem) error {
	for i := range items {
		items[i].ID = r.id()
		items[i].OrderID = orderID
	}
	r.pos[orderID].Items = items
	return nil
}

func (r *memoryRepo) GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	doc, ok := r.pos[id]
	if !ok {
		return PurchaseOrder{}, ErrNotFound
	}
	return *doc, nil
}

func (r *memoryRepo) UpdatePOHeader(ctx context.Context, doc PurchaseOrder) error {
	stored := r.pos[doc.ID]
	stored.Date = doc.Date
	stored.ExpectedDate = doc.ExpectedDate
	stored.Note = doc.Note
	return nil
}

func (r *memoryRepo) UpdatePOItemPrice(ctx context.Context, orderID, itemID int64, price, subtotal decimal.Decimal) error {
	doc := r.pos[orderID]
	for i := range doc.Items {
		if doc.Items[i].ID == itemID {
			doc.Items[i].Price = price
			doc.Items[i].Subtotal = subtotal
		}
	}
	return nil
}

func (r *memoryRepo) SetPOStatus(ctx context.Context, id int64, status POStatus) error {
	r.pos[id].Status = status
	return nil
}

func (r *memoryRepo) SetPODeleted(ctx context.Context, id int64, deleted bool) error {
	setDeletedAt(&r.pos[id].DeletedAt, deleted)
	return nil
}

func (r *memoryRepo) ExistsLivePO(ctx context.Context, requestID, excludeOrderID int64) (bool, error) {
	for _, doc := range r.pos {
		if doc.RequestID == requestID && doc.ID != excludeOrderID && doc.DeletedAt.IsZero() {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepo) InsertGR(ctx context.Context, doc GoodsReceipt) (int64, error) {
	doc.ID = r.id()
	r.grs[doc.ID] = &doc
	return doc.ID, nil
}

func (r *memoryRepo) InsertGRItems(ctx context.Context, receiptID int64, items []GoodsReceiptItem) error {
	r.grs[receiptID].Items = items
	return nil
}

func (r *memoryRepo) GetGRForUpdate(ctx context.Context, id int64) (GoodsReceipt, error) {
	doc, ok := r.grs[id]
	if !ok {
		return GoodsReceipt{}, ErrNotFound
	}
	return *doc, nil
}

func (r *memoryRepo) UpdateGRHeader(ctx context.Context, doc GoodsReceipt) error {
	stored := r.grs[doc.ID]
	stored.Date = doc.Date
	stored.Note = doc.Note
	return nil
}

func (r *memoryRepo) ReplaceGRItems(ctx context.Context, receiptID int64, items []GoodsReceiptItem) error {
	r.grs[receiptID].Items = items
	return nil
}

func (r *memoryRepo) SetGRStatus(ctx context.Context, id int64, status GRStatus, actorID int64, at time.Time) error {
	doc := r.grs[id]
	doc.Status = status
	doc.PostedBy = actorID
	doc.PostedAt = at
	return nil
}

func (r *memoryRepo) SetGRDeleted(ctx context.Context, id int64, deleted bool) error {
	setDeletedAt(&r.grs[id].DeletedAt, deleted)
	return nil
}

func (r *memoryRepo) UpdateRawMaterialLastPrice(ctx context.Context, rawMaterialID int64, price decimal.Decimal) error {
	r.lastPrices[rawMaterialID] = price
	return nil
}

func (r *memoryRepo) InsertReturn(ctx context.Context, doc PurchaseReturn) (int64, error) {
	doc.ID = r.id()
	r.returns[doc.ID] = &doc
	return doc.ID, nil
}

func (r *memoryRepo) InsertReturnItems(ctx context.Context, returnID int64, items []PurchaseReturnItem) error {
	r.returns[returnID].Items = items
	return nil
}

func (r *memoryRepo) GetReturnForUpdate(ctx context.Context, id int64) (PurchaseReturn, error) {
	doc, ok := r.returns[id]
	if !ok {
		return PurchaseReturn{}, ErrNotFound
	}
	return *doc, nil
}

func (r *memoryRepo) UpdateReturnHeader(ctx context.Context, doc PurchaseReturn) error {
	stored := r.returns[doc.ID]
	stored.Date = doc.Date
	stored.Reason = doc.Reason
	return nil
}

func (r *memoryRepo) ReplaceReturnItems(ctx context.Context, returnID int64, items []PurchaseReturnItem) error {
	r.returns[returnID].Items = items
	return nil
}

func (r *memoryRepo) SetReturnStatus(ctx context.Context, id int64, status ReturnStatus, actorID int64, at time.Time) error {
	doc := r.returns[id]
	doc.Status = status
	if status == ReturnStatusRealized {
		doc.RealizedBy = actorID
		doc.RealizedAt = at
	} else {
		doc.DecidedBy = actorID
	}
	return nil
}

func (r *memoryRepo) SetReturnDeleted(ctx context.Context, id int64, deleted bool) error {
	setDeletedAt(&r.returns[id].DeletedAt, deleted)
	return nil
}

func (r *memoryRepo) InsertInvoiceReceipt(ctx context.Context, doc InvoiceReceipt) (int64, error) {
	doc.ID = r.id()
	r.receipts[doc.ID] = &doc
	return doc.ID, nil
}

func (r *memoryRepo) GetInvoiceReceiptForUpdate(ctx context.Context, id int64) (InvoiceReceipt, error) {
	doc, ok := r.receipts[id]
	if !ok {
		return InvoiceReceipt{}, ErrNotFound
	}
	return *doc, nil
}

func (r *memoryRepo) UpdateInvoiceReceiptHeader(ctx context.Context, doc InvoiceReceipt) error {
	r.receipts[doc.ID].Note = doc.Note
	return nil
}

func (r *memoryRepo) SetInvoiceReceiptStatus(ctx context.Context, id int64, status InvoiceStatus, actorID int64, at time.Time) error {
	doc := r.receipts[id]
	doc.Status = status
	doc.DecidedBy = actorID
	doc.DecidedAt = at
	return nil
}

func (r *memoryRepo) SetInvoiceReceiptDeleted(ctx context.Context, id int64, deleted bool) error {
	setDeletedAt(&r.receipts[id].DeletedAt, deleted)
	return nil
}

func (r *memoryRepo) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	inv.ID = r.id()
	doc := r.receipts[inv.ReceiptID]
	doc.Invoices = append(doc.Invoices, inv)
	return inv.ID, nil
}

func (r *memoryRepo) UpdateInvoice(ctx context.Context, inv Invoice) error {
	doc := r.receipts[inv.ReceiptID]
	for i := range doc.Invoices {
		if doc.Invoices[i].ID == inv.ID {
			doc.Invoices[i] = inv
		}
	}
	return nil
}

func (r *memoryRepo) DeleteInvoice(ctx context.Context, invoiceID int64) error {
	for _, doc := range r.receipts {
		for i := range doc.Invoices {
			if doc.Invoices[i].ID == invoiceID {
				doc.Invoices = append(doc.Invoices[:i], doc.Invoices[i+1:]...)
				return nil
			}
		}
	}
	return ErrNotFound
}

func (r *memoryRepo) GetPR(ctx context.Context, id int64) (PurchaseRequest, error) {
	return r.GetPRForUpdate(ctx, id)
}

func (r *memoryRepo) ListPRs(ctx context.Context, filter ListFilter) ([]PurchaseRequest, error) {
	var out []PurchaseRequest
	for _, doc := range r.prs {
		out = append(out, *doc)
	}
	return out, nil
}

func (r *memoryRepo) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	return r.GetPOForUpdate(ctx, id)
}

func (r *memoryRepo) ListPOs(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error) {
	var out []PurchaseOrder
	for _, doc := range r.pos {
		out = append(out, *doc)
	}
	return out, nil
}

func (r *memoryRepo) ListReturnablePOs(ctx context.Context) ([]PurchaseOrder, error) {
	var out []PurchaseOrder
	for _, doc := range r.pos {
		if doc.Status == POStatusReceived && doc.DeletedAt.IsZero() {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetGR(ctx context.Context, id int64) (GoodsReceipt, error) {
	return r.GetGRForUpdate(ctx, id)
}

func (r *memoryRepo) ListGRs(ctx context.Context, filter ListFilter) ([]GoodsReceipt, error) {
	var out []GoodsReceipt
	for _, doc := range r.grs {
		out = append(out, *doc)
	}
	return out, nil
}

func (r *memoryRepo) GetReturn(ctx context.Context, id int64) (PurchaseReturn, error) {
	return r.GetReturnForUpdate(ctx, id)
}

func (r *memoryRepo) ListReturns(ctx context.Context, filter ListFilter) ([]PurchaseReturn, error) {
	var out []PurchaseReturn
	for _, doc := range r.returns {
		out = append(out, *doc)
	}
	return out, nil
}

func (r *memoryRepo) GetInvoiceReceipt(ctx context.Context, id int64) (InvoiceReceipt, error) {
	return r.GetInvoiceReceiptForUpdate(ctx, id)
}

func (r *memoryRepo) ListInvoiceReceipts(ctx context.Context, filter ListFilter) ([]InvoiceReceipt, error) {
	var out []InvoiceReceipt
	for _, doc := range r.receipts {
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

func approvedPR(t *testing.T, svc *Service, repo *memoryRepo, items []PRItemInput) PurchaseRequest {
	t.Helper()
	doc, err := svc.CreatePR(context.Background(), CreatePRInput{SupplierID: 1, ActorID: 2, Items: items})
	require.NoError(t, err)
	require.NoError(t, svc.SubmitPR(context.Background(), doc.ID, 2))
	require.NoError(t, svc.ApprovePR(context.Background(), doc.ID, 3))
	return *repo.prs[doc.ID]
}

func TestPRWorkflow(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	doc, err := svc.CreatePR(ctx, CreatePRInput{
		SupplierID: 1,
		ActorID:    2,
		Items:      []PRItemInput{{Item: stock.RawMaterialRef(5), Qty: dec("100")}},
	})
	require.NoError(t, err)
	require.Equal(t, PRStatusDraft, doc.Status)

	err = svc.ApprovePR(ctx, doc.ID, 3)
	require.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, svc.SubmitPR(ctx, doc.ID, 2))
	require.NoError(t, svc.ApprovePR(ctx, doc.ID, 3))
	require.Equal(t, PRStatusApproved, repo.prs[doc.ID].Status)

	err = svc.RejectPR(ctx, doc.ID, 3)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestGeneratePOUniqueness(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	pr := approvedPR(t, svc, repo, []PRItemInput{{Item: stock.RawMaterialRef(5), Qty: dec("100")}})

	po, err := svc.GeneratePO(ctx, GeneratePOInput{RequestID: pr.ID, ActorID: 2})
	require.NoError(t, err)
	require.Equal(t, POStatusDraft, po.Status)
	require.Len(t, po.Items, 1)
	require.True(t, po.Items[0].Qty.Equal(dec("100")))
	require.True(t, po.Items[0].Price.IsZero())
	require.True(t, repo.prs[pr.ID].Completed)

	_, err = svc.GeneratePO(ctx, GeneratePOInput{RequestID: pr.ID, ActorID: 2})
	require.ErrorIs(t, err, ErrPOExists)

	require.NoError(t, svc.DeletePO(ctx, po.ID, 2))
	require.False(t, repo.prs[pr.ID].Completed)

	po2, err := svc.GeneratePO(ctx, GeneratePOInput{RequestID: pr.ID, ActorID: 2})
	require.NoError(t, err)
	require.NotEqual(t, po.ID, po2.ID)

	err = svc.RestorePO(ctx, po.ID, 2)
	require.ErrorIs(t, err, ErrPOExists)
}

func TestSetPOItemPriceRecomputesSubtotal(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	pr := approvedPR(t, svc, repo, []PRItemInput{{Item: stock.RawMaterialRef(5), Qty: dec("20")}})
	po, err := svc.GeneratePO(ctx, GeneratePOInput{RequestID: pr.ID, ActorID: 2})
	require.NoError(t, err)

	require.NoError(t, svc.SetPOItemPrice(ctx, po.ID, po.Items[0].ID, dec("1500"), 2))
	stored := repo.pos[po.ID]
	require.True(t, stored.Items[0].Subtotal.Equal(dec("30000")))
	require.True(t, stored.Total().Equal(dec("30000")))

	err = svc.SetPOItemPrice(ctx, po.ID, po.Items[0].ID, dec("-1"), 2)
	require.ErrorIs(t, err, ErrValidation)

	require.NoError(t, svc.SubmitPO(ctx, po.ID, 2))
	err = svc.SetPOItemPrice(ctx, po.ID, po.Items[0].ID, dec("1600"), 2)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestPostGRCreditsStockAndPrices(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	pr := approvedPR(t, svc, repo, []PRItemInput{
		{Item: stock.RawMaterialRef(5), Qty: dec("100")},
		{Item: stock.ProductRef(9), Qty: dec("10")},
	})
	po, err := svc.GeneratePO(ctx, GeneratePOInput{RequestID: pr.ID, ActorID: 2})
	require.NoError(t, err)
	require.NoError(t, svc.SetPOItemPrice(ctx, po.ID, po.Items[0].ID, dec("1500"), 2))
	require.NoError(t, svc.SubmitPO(ctx, po.ID, 2))

	gr, err := svc.CreateGR(ctx, CreateGRInput{OrderID: po.ID, WarehouseID: 1, ActorID: 4})
	require.NoError(t, err)
	require.Len(t, gr.Items, 2)

	require.NoError(t, svc.PostGR(ctx, gr.ID, 4))
	require.True(t, repo.Qty(stock.RawMaterialRef(5), 1).Equal(dec("100")))
	require.True(t, repo.Qty(stock.ProductRef(9), 1).Equal(dec("10")))
	require.True(t, repo.lastPrices[5].Equal(dec("1500")))
	require.Equal(t, POStatusReceived, repo.pos[po.ID].Status)

	movements := repo.MovementsFor(stock.RawMaterialRef(5), 1)
	require.Len(t, movements, 1)
	require.Equal(t, stock.MovementIn, movements[0].Type)
	require.Equal(t, "goods_receipt", movements[0].Ref.DocType)

	err = svc.PostGR(ctx, gr.ID, 4)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestPartialGoodsReceipt(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	pr := approvedPR(t, svc, repo, []PRItemInput{{Item: stock.RawMaterialRef(5), Qty: dec("100")}})
	po, err := svc.GeneratePO(ctx, GeneratePOInput{RequestID: pr.ID, ActorID: 2})
	require.NoError(t, err)
	require.NoError(t, svc.SubmitPO(ctx, po.ID, 2))

	gr, err := svc.CreateGR(ctx, CreateGRInput{
		OrderID:     po.ID,
		WarehouseID: 1,
		ActorID:     4,
		Items:       []GRItemInput{{OrderItemID: po.Items[0].ID, QtyActual: dec("60")}},
	})
	require.NoError(t, err)
	require.True(t, gr.Items[0].QtyOrdered.Equal(dec("100")))
	require.True(t, gr.Items[0].QtyActual.Equal(dec("60")))

	require.NoError(t, svc.PostGR(ctx, gr.ID, 4))
	require.True(t, repo.Qty(stock.RawMaterialRef(5), 1).Equal(dec("60")))
}

func TestUpdateGRPersistsHeader(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	pr := approvedPR(t, svc, repo, []PRItemInput{{Item: stock.RawMaterialRef(5), Qty: dec("100")}})
	po, err := svc.GeneratePO(ctx, GeneratePOInput{RequestID: pr.ID, ActorID: 2})
	require.NoError(t, err)
	require.NoError(t, svc.SubmitPO(ctx, po.ID, 2))

	gr, err := svc.CreateGR(ctx, CreateGRInput{OrderID: po.ID, WarehouseID: 1, ActorID: 4})
	require.NoError(t, err)

	newDate := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	_, err = svc.UpdateGR(ctx, gr.ID, UpdateGRInput{Date: newDate, Note: "dock 3", ActorID: 4})
	require.NoError(t, err)

	stored, err := svc.GetGR(ctx, gr.ID)
	require.NoError(t, err)
	require.Equal(t, "dock 3", stored.Note)
	require.True(t, stored.Date.Equal(newDate))

	require.NoError(t, svc.PostGR(ctx, gr.ID, 4))
	_, err = svc.UpdateGR(ctx, gr.ID, UpdateGRInput{Note: "late edit", ActorID: 4})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestListReturnableGRItems(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	pr := approvedPR(t, svc, repo, []PRItemInput{{Item: stock.RawMaterialRef(5), Qty: dec("40")}})
	po, err := svc.GeneratePO(ctx, GeneratePOInput{RequestID: pr.ID, ActorID: 2})
	require.NoError(t, err)
	require.NoError(t, svc.SubmitPO(ctx, po.ID, 2))

	gr, err := svc.CreateGR(ctx, CreateGRInput{OrderID: po.ID, WarehouseID: 1, ActorID: 4})
	require.NoError(t, err)

	_, err = svc.ListReturnableGRItems(ctx, gr.ID)
	require.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, svc.PostGR(ctx, gr.ID, 4))
	items, err := svc.ListReturnableGRItems(ctx, gr.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.True(t, items[0].QtyActual.Equal(dec("40")))
}

func receivedPO(t *testing.T, svc *Service, repo *memoryRepo) PurchaseOrder {
	t.Helper()
	ctx := context.Background()
	pr := approvedPR(t, svc, repo, []PRItemInput{{Item: stock.RawMaterialRef(5), Qty: dec("5")}})
	po, err := svc.GeneratePO(ctx, GeneratePOInput{RequestID: pr.ID, ActorID: 2})
	require.NoError(t, err)
	require.NoError(t, svc.SubmitPO(ctx, po.ID, 2))
	require.NoError(t, svc.MarkPOReceived(ctx, po.ID, 2))
	return *repo.pos[po.ID]
}

func TestRealizeReturnDebitsStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	po := receivedPO(t, svc, repo)
	repo.Seed(stock.RawMaterialRef(5), 1, dec("5"))

	ret, err := svc.CreateReturn(ctx, CreateReturnInput{
		OrderID:     po.ID,
		WarehouseID: 1,
		Reason:      "damaged",
		ActorID:     2,
		Items:       []ReturnItemInput{{Item: stock.RawMaterialRef(5), Qty: dec("5")}},
	})
	require.NoError(t, err)

	err = svc.RealizeReturn(ctx, ret.ID, 2)
	require.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, svc.SubmitReturn(ctx, ret.ID, 2))
	require.NoError(t, svc.ApproveReturn(ctx, ret.ID, 3))
	require.NoError(t, svc.RealizeReturn(ctx, ret.ID, 2))

	require.True(t, repo.Qty(stock.RawMaterialRef(5), 1).IsZero())
	movements := repo.MovementsFor(stock.RawMaterialRef(5), 1)
	require.Len(t, movements, 1)
	require.Equal(t, stock.MovementOut, movements[0].Type)
	require.Equal(t, "purchase_return", movements[0].Ref.DocType)

	err = svc.DeleteReturn(ctx, ret.ID, 2)
	require.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, svc.CompleteReturn(ctx, ret.ID, 2))
	require.Equal(t, ReturnStatusCompleted, repo.returns[ret.ID].Status)
}

func TestRealizeReturnInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	po := receivedPO(t, svc, repo)
	repo.Seed(stock.RawMaterialRef(5), 1, dec("3"))

	ret, err := svc.CreateReturn(ctx, CreateReturnInput{
		OrderID:     po.ID,
		WarehouseID: 1,
		ActorID:     2,
		Items:       []ReturnItemInput{{Item: stock.RawMaterialRef(5), Qty: dec("5")}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.SubmitReturn(ctx, ret.ID, 2))
	require.NoError(t, svc.ApproveReturn(ctx, ret.ID, 3))

	err = svc.RealizeReturn(ctx, ret.ID, 2)
	insuf, ok := stock.AsInsufficient(err)
	require.True(t, ok)
	require.True(t, insuf.Shortfalls[0].Shortage.Equal(dec("2")))
	require.True(t, repo.Qty(stock.RawMaterialRef(5), 1).Equal(dec("3")))
}

func TestInvoiceReceiptLifecycle(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	po := receivedPO(t, svc, repo)

	doc, err := svc.CreateInvoiceReceipt(ctx, CreateInvoiceReceiptInput{OrderID: po.ID, ActorID: 2})
	require.NoError(t, err)

	err = svc.SubmitInvoiceReceipt(ctx, doc.ID, 2)
	require.ErrorIs(t, err, ErrValidation)

	inv1, err := svc.AddInvoice(ctx, doc.ID, InvoiceInput{Number: "INV-001", Amount: dec("250000")}, 2)
	require.NoError(t, err)
	_, err = svc.AddInvoice(ctx, doc.ID, InvoiceInput{Number: "INV-002", Amount: dec("125000")}, 2)
	require.NoError(t, err)

	_, err = svc.AddInvoice(ctx, doc.ID, InvoiceInput{Number: "", Amount: dec("1")}, 2)
	require.ErrorIs(t, err, ErrValidation)

	summary, err := svc.InvoiceReceiptSummary(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Count)
	require.True(t, summary.TotalAmount.Equal(dec("375000")))

	require.NoError(t, svc.UpdateInvoice(ctx, doc.ID, inv1.ID, InvoiceInput{Number: "INV-001A", Amount: dec("200000")}, 2))
	require.NoError(t, svc.RemoveInvoice(ctx, doc.ID, inv1.ID, 2))

	require.NoError(t, svc.SubmitInvoiceReceipt(ctx, doc.ID, 2))
	_, err = svc.AddInvoice(ctx, doc.ID, InvoiceInput{Number: "INV-003", Amount: dec("1")}, 2)
	require.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, svc.ApproveInvoiceReceipt(ctx, doc.ID, 3))
	require.Equal(t, InvoiceStatusApproved, repo.receipts[doc.ID].Status)
}

func TestCreateInvoiceReceiptRequiresSentOrder(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	pr := approvedPR(t, svc, repo, []PRItemInput{{Item: stock.RawMaterialRef(5), Qty: dec("5")}})
	po, err := svc.GeneratePO(ctx, GeneratePOInput{RequestID: pr.ID, ActorID: 2})
	require.NoError(t, err)

	_, err = svc.CreateInvoiceReceipt(ctx, CreateInvoiceReceiptInput{OrderID: po.ID, ActorID: 2})
	require.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, svc.SubmitPO(ctx, po.ID, 2))
	doc, err := svc.CreateInvoiceReceipt(ctx, CreateInvoiceReceiptInput{OrderID: po.ID, ActorID: 2})
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusDraft, doc.Status)
}

func TestUpdateInvoiceReceiptDraftOnly(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	po := receivedPO(t, svc, repo)
	doc, err := svc.CreateInvoiceReceipt(ctx, CreateInvoiceReceiptInput{OrderID: po.ID, ActorID: 2})
	require.NoError(t, err)

	updated, err := svc.UpdateInvoiceReceipt(ctx, doc.ID, UpdateInvoiceReceiptInput{Note: "supplier confirmed", ActorID: 2})
	require.NoError(t, err)
	require.Equal(t, "supplier confirmed", updated.Note)
	require.Equal(t, "supplier confirmed", repo.receipts[doc.ID].Note)

	_, err = svc.AddInvoice(ctx, doc.ID, InvoiceInput{Number: "INV-010", Amount: dec("50000")}, 2)
	require.NoError(t, err)
	require.NoError(t, svc.SubmitInvoiceReceipt(ctx, doc.ID, 2))

	_, err = svc.UpdateInvoiceReceipt(ctx, doc.ID, UpdateInvoiceReceiptInput{Note: "too late", ActorID: 2})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestDeletePRBlockedByLivePO(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	pr := approvedPR(t, svc, repo, []PRItemInput{{Item: stock.ProductRef(1), Qty: dec("1")}})
	_, err := svc.GeneratePO(ctx, GeneratePOInput{RequestID: pr.ID, ActorID: 2})
	require.NoError(t, err)

	err = svc.DeletePR(ctx, pr.ID, 2)
	require.ErrorIs(t, err, ErrPOExists)
}
