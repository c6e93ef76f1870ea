package procurement

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/arunika-erp/arunika-erp/internal/platform/httpx"
	"github.com/arunika-erp/arunika-erp/internal/shared"
	"github.com/arunika-erp/arunika-erp/internal/stock"
)

// Handler wires HTTP endpoints for the procurement module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the procurement handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/purchase-requests", func(r chi.Router) {
		r.Post("/", h.createPR)
		r.Get("/", h.listPRs)
		r.Get("/{id}", h.getPR)
		r.Put("/{id}", h.updatePR)
		r.Post("/{id}/submit", h.submitPR)
		r.Post("/{id}/approve", h.approvePR)
		r.Post("/{id}/reject", h.rejectPR)
		r.Post("/{id}/generate-po", h.generatePO)
		r.Delete("/{id}", h.deletePR)
		r.Post("/{id}/restore", h.restorePR)
	})
	r.Route("/purchase-orders", func(r chi.Router) {
		r.Get("/", h.listPOs)
		r.Get("/returnable", h.listReturnablePOs)
		r.Get("/{id}", h.getPO)
		r.Put("/{id}", h.updatePO)
		r.Put("/{id}/items/{itemID}/price", h.setPOItemPrice)
		r.Post("/{id}/submit", h.submitPO)
		r.Post("/{id}/receive", h.markPOReceived)
		r.Delete("/{id}", h.deletePO)
		r.Post("/{id}/restore", h.restorePO)
	})
	r.Route("/goods-receipts", func(r chi.Router) {
		r.Post("/", h.createGR)
		r.Get("/", h.listGRs)
		r.Get("/{id}", h.getGR)
		r.Get("/{id}/returnable-items", h.returnableGRItems)
		r.Put("/{id}", h.updateGR)
		r.Post("/{id}/post", h.postGR)
		r.Delete("/{id}", h.deleteGR)
		r.Post("/{id}/restore", h.restoreGR)
	})
	r.Route("/purchase-returns", func(r chi.Router) {
		r.Post("/", h.createReturn)
		r.Get("/", h.listReturns)
		r.Get("/{id}", h.getReturn)
		r.Put("/{id}", h.updateReturn)
		r.Post("/{id}/submit", h.submitReturn)
		r.Post("/{id}/approve", h.approveReturn)
		r.Post("/{id}/reject", h.rejectReturn)
		r.Post("/{id}/realize", h.realizeReturn)
		r.Post("/{id}/complete", h.completeReturn)
		r.Delete("/{id}", h.deleteReturn)
		r.Post("/{id}/restore", h.restoreReturn)
	})
	r.Route("/invoice-receipts", func(r chi.Router) {
		r.Post("/", h.createInvoiceReceipt)
		r.Get("/", h.listInvoiceReceipts)
		r.Get("/{id}", h.getInvoiceReceipt)
		r.Put("/{id}", h.updateInvoiceReceipt)
		r.Get("/{id}/summary", h.invoiceReceiptSummary)
		r.Post("/{id}/invoices", h.addInvoice)
		r.Put("/{id}/invoices/{invoiceID}", h.updateInvoice)
		r.Delete("/{id}/invoices/{invoiceID}", h.removeInvoice)
		r.Post("/{id}/submit", h.submitInvoiceReceipt)
		r.Post("/{id}/approve", h.approveInvoiceReceipt)
		r.Post("/{id}/reject", h.rejectInvoiceReceipt)
		r.Delete("/{id}", h.deleteInvoiceReceipt)
		r.Post("/{id}/restore", h.restoreInvoiceReceipt)
	})
}

type prItemPayload struct {
	ItemType string `json:"item_type" validate:"required,oneof=product raw_material"`
	ItemID   int64  `json:"item_id" validate:"required"`
	Qty      string `json:"qty" validate:"required"`
	Note     string `json:"note"`
}

type prPayload struct {
	Code       string          `json:"code"`
	SupplierID int64           `json:"supplier_id" validate:"required"`
	Date       string          `json:"date"`
	Note       string          `json:"note"`
	Items      []prItemPayload `json:"items" validate:"min=1,dive"`
}

func (h *Handler) decodePR(w http.ResponseWriter, r *http.Request, payload *prPayload) (CreatePRInput, bool) {
	if err := httpx.DecodeJSON(r, payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return CreatePRInput{}, false
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return CreatePRInput{}, false
	}
	input := CreatePRInput{
		Code:       payload.Code,
		SupplierID: payload.SupplierID,
		Note:       payload.Note,
		ActorID:    shared.ActorFromContext(r.Context()),
	}
	var ok bool
	if input.Date, ok = parseDate(w, payload.Date); !ok {
		return CreatePRInput{}, false
	}
	for _, item := range payload.Items {
		qty, err := decimal.NewFromString(item.Qty)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid qty")
			return CreatePRInput{}, false
		}
		input.Items = append(input.Items, PRItemInput{
			Item: stock.ItemRef{Kind: stock.ItemKind(item.ItemType), ID: item.ItemID},
			Qty:  qty,
			Note: item.Note,
		})
	}
	return input, true
}

func (h *Handler) createPR(w http.ResponseWriter, r *http.Request) {
	var payload prPayload
	input, ok := h.decodePR(w, r, &payload)
	if !ok {
		return
	}
	doc, err := h.service.CreatePR(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) updatePR(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var payload prPayload
	input, ok := h.decodePR(w, r, &payload)
	if !ok {
		return
	}
	doc, err := h.service.UpdatePR(r.Context(), id, input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) getPR(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.GetPR(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) listPRs(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.ListPRs(r.Context(), listFilter(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, docs)
}

func (h *Handler) submitPR(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.SubmitPR)
}

func (h *Handler) approvePR(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.ApprovePR)
}

func (h *Handler) rejectPR(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.RejectPR)
}

func (h *Handler) deletePR(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.DeletePR)
}

func (h *Handler) restorePR(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.RestorePR)
}

type generatePOPayload struct {
	Code         string `json:"code"`
	Date         string `json:"date"`
	ExpectedDate string `json:"expected_date"`
	Note         string `json:"note"`
}

func (h *Handler) generatePO(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var payload generatePOPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	input := GeneratePOInput{
		RequestID: id,
		Code:      payload.Code,
		Note:      payload.Note,
		ActorID:   shared.ActorFromContext(r.Context()),
	}
	if input.Date, ok = parseDate(w, payload.Date); !ok {
		return
	}
	if input.ExpectedDate, ok = parseDate(w, payload.ExpectedDate); !ok {
		return
	}
	doc, err := h.service.GeneratePO(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

type poPayload struct {
	Date         string `json:"date"`
	ExpectedDate string `json:"expected_date"`
	Note         string `json:"note"`
}

func (h *Handler) updatePO(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var payload poPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	input := UpdatePOInput{Note: payload.Note, ActorID: shared.ActorFromContext(r.Context())}
	if input.Date, ok = parseDate(w, payload.Date); !ok {
		return
	}
	if input.ExpectedDate, ok = parseDate(w, payload.ExpectedDate); !ok {
		return
	}
	doc, err := h.service.UpdatePO(r.Context(), id, input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

type pricePayload struct {
	Price string `json:"price" validate:"required"`
}

func (h *Handler) setPOItemPrice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil || itemID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid item id")
		return
	}
	var payload pricePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	price, err := decimal.NewFromString(payload.Price)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid price")
		return
	}
	if err := h.service.SetPOItemPrice(r.Context(), id, itemID, price, shared.ActorFromContext(r.Context())); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) getPO(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.GetPO(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) listPOs(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.ListPOs(r.Context(), listFilter(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, docs)
}

func (h *Handler) listReturnablePOs(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.ListReturnablePOs(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, docs)
}

func (h *Handler) submitPO(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.SubmitPO)
}

func (h *Handler) markPOReceived(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.MarkPOReceived)
}

func (h *Handler) deletePO(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.DeletePO)
}

func (h *Handler) restorePO(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.RestorePO)
}

type grItemPayload struct {
	OrderItemID int64  `json:"order_item_id" validate:"required"`
	QtyActual   string `json:"qty_actual" validate:"required"`
}

type grPayload struct {
	Code        string          `json:"code"`
	OrderID     int64           `json:"order_id"`
	WarehouseID int64           `json:"warehouse_id"`
	Date        string          `json:"date"`
	Note        string          `json:"note"`
	Items       []grItemPayload `json:"items" validate:"dive"`
}

func (h *Handler) decodeGRItems(w http.ResponseWriter, payloads []grItemPayload) ([]GRItemInput, bool) {
	items := make([]GRItemInput, 0, len(payloads))
	for _, item := range payloads {
		qty, err := decimal.NewFromString(item.QtyActual)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid qty_actual")
			return nil, false
		}
		items = append(items, GRItemInput{OrderItemID: item.OrderItemID, QtyActual: qty})
	}
	return items, true
}

func (h *Handler) createGR(w http.ResponseWriter, r *http.Request) {
	var payload grPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateGRInput{
		Code:        payload.Code,
		OrderID:     payload.OrderID,
		WarehouseID: payload.WarehouseID,
		Note:        payload.Note,
		ActorID:     shared.ActorFromContext(r.Context()),
	}
	var ok bool
	if input.Date, ok = parseDate(w, payload.Date); !ok {
		return
	}
	if input.Items, ok = h.decodeGRItems(w, payload.Items); !ok {
		return
	}
	doc, err := h.service.CreateGR(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) updateGR(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var payload grPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	input := UpdateGRInput{Note: payload.Note, ActorID: shared.ActorFromContext(r.Context())}
	if input.Date, ok = parseDate(w, payload.Date); !ok {
		return
	}
	if input.Items, ok = h.decodeGRItems(w, payload.Items); !ok {
		return
	}
	doc, err := h.service.UpdateGR(r.Context(), id, input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) getGR(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.GetGR(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) returnableGRItems(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	items, err := h.service.ListReturnableGRItems(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) listGRs(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.ListGRs(r.Context(), listFilter(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, docs)
}

func (h *Handler) postGR(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.PostGR)
}

func (h *Handler) deleteGR(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.DeleteGR)
}

func (h *Handler) restoreGR(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.RestoreGR)
}

type returnItemPayload struct {
	ItemType string `json:"item_type" validate:"required,oneof=product raw_material"`
	ItemID   int64  `json:"item_id" validate:"required"`
	Qty      string `json:"qty" validate:"required"`
}

type returnPayload struct {
	Code        string              `json:"code"`
	OrderID     int64               `json:"order_id"`
	WarehouseID int64               `json:"warehouse_id"`
	Date        string              `json:"date"`
	Reason      string              `json:"reason"`
	Items       []returnItemPayload `json:"items" validate:"dive"`
}

func (h *Handler) decodeReturnItems(w http.ResponseWriter, payloads []returnItemPayload) ([]ReturnItemInput, bool) {
	items := make([]ReturnItemInput, 0, len(payloads))
	for _, item := range payloads {
		qty, err := decimal.NewFromString(item.Qty)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid qty")
			return nil, false
		}
		items = append(items, ReturnItemInput{
			Item: stock.ItemRef{Kind: stock.ItemKind(item.ItemType), ID: item.ItemID},
			Qty:  qty,
		})
	}
	return items, true
}

func (h *Handler) createReturn(w http.ResponseWriter, r *http.Request) {
	var payload returnPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateReturnInput{
		Code:        payload.Code,
		OrderID:     payload.OrderID,
		WarehouseID: payload.WarehouseID,
		Reason:      payload.Reason,
		ActorID:     shared.ActorFromContext(r.Context()),
	}
	var ok bool
	if input.Date, ok = parseDate(w, payload.Date); !ok {
		return
	}
	if input.Items, ok = h.decodeReturnItems(w, payload.Items); !ok {
		return
	}
	doc, err := h.service.CreateReturn(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) updateReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var payload returnPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	input := UpdateReturnInput{Reason: payload.Reason, ActorID: shared.ActorFromContext(r.Context())}
	if input.Date, ok = parseDate(w, payload.Date); !ok {
		return
	}
	if input.Items, ok = h.decodeReturnItems(w, payload.Items); !ok {
		return
	}
	doc, err := h.service.UpdateReturn(r.Context(), id, input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) getReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.GetReturn(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) listReturns(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.ListReturns(r.Context(), listFilter(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, docs)
}

func (h *Handler) submitReturn(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.SubmitReturn)
}

func (h *Handler) approveReturn(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.ApproveReturn)
}

func (h *Handler) rejectReturn(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.RejectReturn)
}

func (h *Handler) realizeReturn(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.RealizeReturn)
}

func (h *Handler) completeReturn(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.CompleteReturn)
}

func (h *Handler) deleteReturn(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.DeleteReturn)
}

func (h *Handler) restoreReturn(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.RestoreReturn)
}

type invoiceReceiptPayload struct {
	Code    string `json:"code"`
	OrderID int64  `json:"order_id" validate:"required"`
	Note    string `json:"note"`
}

func (h *Handler) createInvoiceReceipt(w http.ResponseWriter, r *http.Request) {
	var payload invoiceReceiptPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	doc, err := h.service.CreateInvoiceReceipt(r.Context(), CreateInvoiceReceiptInput{
		Code:    payload.Code,
		OrderID: payload.OrderID,
		Note:    payload.Note,
		ActorID: shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

type updateInvoiceReceiptPayload struct {
	Note string `json:"note"`
}

func (h *Handler) updateInvoiceReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var payload updateInvoiceReceiptPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	doc, err := h.service.UpdateInvoiceReceipt(r.Context(), id, UpdateInvoiceReceiptInput{
		Note:    payload.Note,
		ActorID: shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

type invoicePayload struct {
	Number string `json:"number" validate:"required"`
	Date   string `json:"date"`
	Amount string `json:"amount" validate:"required"`
	Note   string `json:"note"`
}

func (h *Handler) decodeInvoice(w http.ResponseWriter, r *http.Request) (InvoiceInput, bool) {
	var payload invoicePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return InvoiceInput{}, false
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return InvoiceInput{}, false
	}
	amount, err := decimal.NewFromString(payload.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid amount")
		return InvoiceInput{}, false
	}
	input := InvoiceInput{Number: payload.Number, Amount: amount, Note: payload.Note}
	var ok bool
	if input.Date, ok = parseDate(w, payload.Date); !ok {
		return InvoiceInput{}, false
	}
	return input, true
}

func (h *Handler) addInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	input, ok := h.decodeInvoice(w, r)
	if !ok {
		return
	}
	inv, err := h.service.AddInvoice(r.Context(), id, input, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) updateInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "invoiceID"), 10, 64)
	if err != nil || invoiceID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	input, ok := h.decodeInvoice(w, r)
	if !ok {
		return
	}
	if err := h.service.UpdateInvoice(r.Context(), id, invoiceID, input, shared.ActorFromContext(r.Context())); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) removeInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "invoiceID"), 10, 64)
	if err != nil || invoiceID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	if err := h.service.RemoveInvoice(r.Context(), id, invoiceID, shared.ActorFromContext(r.Context())); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) getInvoiceReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.GetInvoiceReceipt(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) listInvoiceReceipts(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.ListInvoiceReceipts(r.Context(), listFilter(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, docs)
}

func (h *Handler) invoiceReceiptSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	summary, err := h.service.InvoiceReceiptSummary(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) submitInvoiceReceipt(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.SubmitInvoiceReceipt)
}

func (h *Handler) approveInvoiceReceipt(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.ApproveInvoiceReceipt)
}

func (h *Handler) rejectInvoiceReceipt(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.RejectInvoiceReceipt)
}

func (h *Handler) deleteInvoiceReceipt(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.DeleteInvoiceReceipt)
}

func (h *Handler) restoreInvoiceReceipt(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.RestoreInvoiceReceipt)
}

func (h *Handler) runTransition(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64, int64) error) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if insuf, ok := stock.AsInsufficient(err); ok {
		httpx.ProblemWith(w, http.StatusUnprocessableEntity, "Insufficient Stock", insuf.Error(),
			map[string]any{"shortfalls": insuf.Shortfalls})
		return
	}
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrPOExists), errors.Is(err, ErrDeleted):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, stock.ErrNegativeBalance):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	default:
		h.logger.Error("procurement request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}

func listFilter(r *http.Request) ListFilter {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return ListFilter{
		IncludeDeleted: r.URL.Query().Get("include_deleted") == "true",
		Limit:          limit,
	}
}

func parseDate(w http.ResponseWriter, value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, true
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid date, expected YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}
