package inventory

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

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	stocks   *stock.Repository
	validate *validator.Validate
}

// NewHandler constructs the inventory handler.
func NewHandler(logger *slog.Logger, service *Service, stocks *stock.Repository) *Handler {
	return &Handler{logger: logger, service: service, stocks: stocks, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/adjustments", func(r chi.Router) {
		r.Post("/", h.createAdjustment)
		r.Get("/", h.listAdjustments)
		r.Get("/{id}", h.getAdjustment)
		r.Put("/{id}", h.updateAdjustment)
		r.Post("/{id}/post", h.postAdjustment)
		r.Delete("/{id}", h.deleteAdjustment)
		r.Post("/{id}/restore", h.restoreAdjustment)
	})
	r.Route("/stock-requests", func(r chi.Router) {
		r.Post("/", h.createRequest)
		r.Get("/", h.listRequests)
		r.Get("/{id}", h.getRequest)
		r.Put("/{id}", h.updateRequest)
		r.Post("/{id}/approve", h.approveRequest)
		r.Post("/{id}/reject", h.rejectRequest)
		r.Delete("/{id}", h.deleteRequest)
		r.Post("/{id}/restore", h.restoreRequest)
	})
	r.Route("/stock-outs", func(r chi.Router) {
		r.Post("/", h.createStockOut)
		r.Get("/", h.listStockOuts)
		r.Get("/{id}", h.getStockOut)
		r.Delete("/{id}", h.deleteStockOut)
	})
	r.Route("/transfers", func(r chi.Router) {
		r.Post("/", h.createTransfer)
		r.Get("/", h.listTransfers)
		r.Get("/{id}", h.getTransfer)
		r.Put("/{id}", h.updateTransfer)
		r.Post("/{id}/approve", h.approveTransfer)
		r.Post("/{id}/reject", h.rejectTransfer)
		r.Post("/{id}/execute", h.executeTransfer)
		r.Delete("/{id}", h.deleteTransfer)
		r.Post("/{id}/restore", h.restoreTransfer)
	})
	r.Post("/initial-stocks", h.seedInitialStock)
	r.Get("/balances", h.listBalances)
	r.Get("/movements", h.listMovements)
}

type adjustmentItemPayload struct {
	ProductID int64  `json:"product_id" validate:"required"`
	ActualQty string `json:"actual_qty" validate:"required"`
}

type adjustmentPayload struct {
	Code        string                  `json:"code"`
	WarehouseID int64                   `json:"warehouse_id" validate:"required"`
	Date        string                  `json:"date"`
	Note        string                  `json:"note"`
	Items       []adjustmentItemPayload `json:"items" validate:"min=1,dive"`
}

func (h *Handler) createAdjustment(w http.ResponseWriter, r *http.Request) {
	var payload adjustmentPayload
	input, ok := h.decodeAdjustment(w, r, &payload)
	if !ok {
		return
	}
	doc, err := h.service.CreateAdjustment(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) updateAdjustment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var payload adjustmentPayload
	input, ok := h.decodeAdjustment(w, r, &payload)
	if !ok {
		return
	}
	doc, err := h.service.UpdateAdjustment(r.Context(), id, input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) decodeAdjustment(w http.ResponseWriter, r *http.Request, payload *adjustmentPayload) (CreateAdjustmentInput, bool) {
	if err := httpx.DecodeJSON(r, payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return CreateAdjustmentInput{}, false
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return CreateAdjustmentInput{}, false
	}
	input := CreateAdjustmentInput{
		Code:        payload.Code,
		WarehouseID: payload.WarehouseID,
		Note:        payload.Note,
		ActorID:     shared.ActorFromContext(r.Context()),
	}
	var ok bool
	if input.Date, ok = parseDate(w, payload.Date); !ok {
		return CreateAdjustmentInput{}, false
	}
	for _, item := range payload.Items {
		qty, err := decimal.NewFromString(item.ActualQty)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid actual_qty")
			return CreateAdjustmentInput{}, false
		}
		input.Items = append(input.Items, AdjustmentItemInput{ProductID: item.ProductID, ActualQty: qty})
	}
	return input, true
}

func (h *Handler) getAdjustment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.GetAdjustment(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) listAdjustments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.ListAdjustments(r.Context(), listFilter(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, docs)
}

func (h *Handler) postAdjustment(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.PostAdjustment)
}

func (h *Handler) deleteAdjustment(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.DeleteAdjustment)
}

func (h *Handler) restoreAdjustment(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.RestoreAdjustment)
}

type requestItemPayload struct {
	ProductID int64  `json:"product_id" validate:"required"`
	Qty       string `json:"qty" validate:"required"`
}

type requestPayload struct {
	Code        string               `json:"code"`
	WarehouseID int64                `json:"warehouse_id" validate:"required"`
	Date        string               `json:"date"`
	Note        string               `json:"note"`
	Items       []requestItemPayload `json:"items" validate:"min=1,dive"`
}

func (h *Handler) decodeRequest(w http.ResponseWriter, r *http.Request, payload *requestPayload) (CreateRequestInput, bool) {
	if err := httpx.DecodeJSON(r, payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return CreateRequestInput{}, false
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return CreateRequestInput{}, false
	}
	input := CreateRequestInput{
		Code:        payload.Code,
		WarehouseID: payload.WarehouseID,
		Note:        payload.Note,
		ActorID:     shared.ActorFromContext(r.Context()),
	}
	var ok bool
	if input.Date, ok = parseDate(w, payload.Date); !ok {
		return CreateRequestInput{}, false
	}
	for _, item := range payload.Items {
		qty, err := decimal.NewFromString(item.Qty)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid qty")
			return CreateRequestInput{}, false
		}
		input.Items = append(input.Items, RequestItemInput{ProductID: item.ProductID, Qty: qty})
	}
	return input, true
}

func (h *Handler) createRequest(w http.ResponseWriter, r *http.Request) {
	var payload requestPayload
	input, ok := h.decodeRequest(w, r, &payload)
	if !ok {
		return
	}
	doc, err := h.service.CreateRequest(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) updateRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var payload requestPayload
	input, ok := h.decodeRequest(w, r, &payload)
	if !ok {
		return
	}
	doc, err := h.service.UpdateRequest(r.Context(), id, input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) getRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.GetRequest(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.ListRequests(r.Context(), listFilter(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, docs)
}

func (h *Handler) approveRequest(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.ApproveRequest)
}

func (h *Handler) rejectRequest(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.RejectRequest)
}

func (h *Handler) deleteRequest(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.DeleteRequest)
}

func (h *Handler) restoreRequest(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.RestoreRequest)
}

type stockOutPayload struct {
	Code      string `json:"code"`
	RequestID int64  `json:"request_id" validate:"required"`
	Date      string `json:"date"`
	Note      string `json:"note"`
}

func (h *Handler) createStockOut(w http.ResponseWriter, r *http.Request) {
	var payload stockOutPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, ok := parseDate(w, payload.Date)
	if !ok {
		return
	}
	doc, err := h.service.CreateStockOut(r.Context(), CreateStockOutInput{
		Code:      payload.Code,
		RequestID: payload.RequestID,
		Date:      date,
		Note:      payload.Note,
		ActorID:   shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) getStockOut(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.GetStockOut(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) listStockOuts(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.ListStockOuts(r.Context(), listFilter(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, docs)
}

func (h *Handler) deleteStockOut(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.DeleteStockOut)
}

type transferItemPayload struct {
	ItemType string `json:"item_type" validate:"required,oneof=product raw_material"`
	ItemID   int64  `json:"item_id" validate:"required"`
	Qty      string `json:"qty" validate:"required"`
}

type transferPayload struct {
	Code            string                `json:"code"`
	FromWarehouseID int64                 `json:"from_warehouse_id" validate:"required"`
	ToWarehouseID   int64                 `json:"to_warehouse_id" validate:"required"`
	Date            string                `json:"date"`
	Note            string                `json:"note"`
	Items           []transferItemPayload `json:"items" validate:"min=1,dive"`
}

func (h *Handler) decodeTransfer(w http.ResponseWriter, r *http.Request, payload *transferPayload) (CreateTransferInput, bool) {
	if err := httpx.DecodeJSON(r, payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return CreateTransferInput{}, false
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return CreateTransferInput{}, false
	}
	input := CreateTransferInput{
		Code:            payload.Code,
		FromWarehouseID: payload.FromWarehouseID,
		ToWarehouseID:   payload.ToWarehouseID,
		Note:            payload.Note,
		ActorID:         shared.ActorFromContext(r.Context()),
	}
	var ok bool
	if input.Date, ok = parseDate(w, payload.Date); !ok {
		return CreateTransferInput{}, false
	}
	for _, item := range payload.Items {
		qty, err := decimal.NewFromString(item.Qty)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid qty")
			return CreateTransferInput{}, false
		}
		input.Items = append(input.Items, TransferItemInput{
			Item: stock.ItemRef{Kind: stock.ItemKind(item.ItemType), ID: item.ItemID},
			Qty:  qty,
		})
	}
	return input, true
}

func (h *Handler) createTransfer(w http.ResponseWriter, r *http.Request) {
	var payload transferPayload
	input, ok := h.decodeTransfer(w, r, &payload)
	if !ok {
		return
	}
	doc, err := h.service.CreateTransfer(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) updateTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var payload transferPayload
	input, ok := h.decodeTransfer(w, r, &payload)
	if !ok {
		return
	}
	doc, err := h.service.UpdateTransfer(r.Context(), id, input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) getTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.GetTransfer(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) listTransfers(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.ListTransfers(r.Context(), listFilter(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, docs)
}

func (h *Handler) approveTransfer(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.ApproveTransfer)
}

func (h *Handler) rejectTransfer(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.RejectTransfer)
}

func (h *Handler) executeTransfer(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.ExecuteTransfer)
}

func (h *Handler) deleteTransfer(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.DeleteTransfer)
}

func (h *Handler) restoreTransfer(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.RestoreTransfer)
}

type initialStockPayload struct {
	ProductID   int64  `json:"product_id" validate:"required"`
	WarehouseID int64  `json:"warehouse_id" validate:"required"`
	Qty         string `json:"qty" validate:"required"`
}

func (h *Handler) seedInitialStock(w http.ResponseWriter, r *http.Request) {
	var payload initialStockPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	qty, err := decimal.NewFromString(payload.Qty)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid qty")
		return
	}
	rec, err := h.service.SeedInitialStock(r.Context(), InitialStockInput{
		ProductID:   payload.ProductID,
		WarehouseID: payload.WarehouseID,
		Qty:         qty,
		ActorID:     shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) listBalances(w http.ResponseWriter, r *http.Request) {
	kind := stock.ItemKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = stock.KindProduct
	}
	warehouseID, _ := strconv.ParseInt(r.URL.Query().Get("warehouse_id"), 10, 64)
	balances, err := h.stocks.ListBalances(r.Context(), kind, warehouseID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balances)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := stock.MovementFilter{Kind: stock.ItemKind(q.Get("kind"))}
	if filter.Kind == "" {
		filter.Kind = stock.KindProduct
	}
	filter.ItemID, _ = strconv.ParseInt(q.Get("item_id"), 10, 64)
	filter.WarehouseID, _ = strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	var ok bool
	if filter.From, ok = parseDate(w, q.Get("from")); !ok {
		return
	}
	if filter.To, ok = parseDate(w, q.Get("to")); !ok {
		return
	}
	if !filter.To.IsZero() {
		filter.To = filter.To.Add(24*time.Hour - time.Nanosecond)
	}
	movements, err := h.stocks.ListMovements(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
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
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrRequestCompleted), errors.Is(err, ErrDeleted):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrDuplicateRequest):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, stock.ErrNegativeBalance):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	default:
		h.logger.Error("inventory request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
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
