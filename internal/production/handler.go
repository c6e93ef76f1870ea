package production

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

// Handler wires HTTP endpoints for the production module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the production handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers production routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/boms", func(r chi.Router) {
		r.Post("/", h.createBOM)
		r.Get("/", h.listBOMs)
		r.Get("/{id}", h.getBOM)
		r.Put("/{id}", h.updateBOM)
		r.Post("/{id}/activate", h.activateBOM)
		r.Post("/{id}/deactivate", h.deactivateBOM)
		r.Delete("/{id}", h.deleteBOM)
		r.Post("/{id}/restore", h.restoreBOM)
	})
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/", h.listOrders)
		r.Get("/{id}", h.getOrder)
		r.Put("/{id}", h.updateOrder)
		r.Post("/{id}/release", h.releaseOrder)
		r.Post("/{id}/start", h.startOrder)
		r.Post("/{id}/complete", h.completeOrder)
		r.Get("/{id}/report", h.orderReport)
		r.Delete("/{id}", h.deleteOrder)
		r.Post("/{id}/restore", h.restoreOrder)
	})
}

type bomLinePayload struct {
	RawMaterialID int64  `json:"raw_material_id" validate:"required"`
	Qty           string `json:"qty" validate:"required"`
}

type bomPayload struct {
	Code      string           `json:"code"`
	ProductID int64            `json:"product_id" validate:"required"`
	Name      string           `json:"name" validate:"required"`
	BatchSize string           `json:"batch_size" validate:"required"`
	Lines     []bomLinePayload `json:"lines" validate:"min=1,dive"`
}

func (h *Handler) decodeBOM(w http.ResponseWriter, r *http.Request) (BOMInput, bool) {
	var payload bomPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return BOMInput{}, false
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return BOMInput{}, false
	}
	batchSize, err := decimal.NewFromString(payload.BatchSize)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid batch_size")
		return BOMInput{}, false
	}
	input := BOMInput{
		Code:      payload.Code,
		ProductID: payload.ProductID,
		Name:      payload.Name,
		BatchSize: batchSize,
		ActorID:   shared.ActorFromContext(r.Context()),
	}
	for _, line := range payload.Lines {
		qty, err := decimal.NewFromString(line.Qty)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid qty")
			return BOMInput{}, false
		}
		input.Lines = append(input.Lines, BOMLineInput{RawMaterialID: line.RawMaterialID, Qty: qty})
	}
	return input, true
}

func (h *Handler) createBOM(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeBOM(w, r)
	if !ok {
		return
	}
	bom, err := h.service.CreateBOM(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, bom)
}

func (h *Handler) updateBOM(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	input, ok := h.decodeBOM(w, r)
	if !ok {
		return
	}
	bom, err := h.service.UpdateBOM(r.Context(), id, input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bom)
}

func (h *Handler) getBOM(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	bom, err := h.service.GetBOM(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bom)
}

func (h *Handler) listBOMs(w http.ResponseWriter, r *http.Request) {
	boms, err := h.service.ListBOMs(r.Context(), listFilter(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, boms)
}

func (h *Handler) activateBOM(w http.ResponseWriter, r *http.Request) {
	h.setBOMActive(w, r, true)
}

func (h *Handler) deactivateBOM(w http.ResponseWriter, r *http.Request) {
	h.setBOMActive(w, r, false)
}

func (h *Handler) setBOMActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.SetBOMActive(r.Context(), id, active, shared.ActorFromContext(r.Context())); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) deleteBOM(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.DeleteBOM)
}

func (h *Handler) restoreBOM(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.RestoreBOM)
}

type orderPayload struct {
	Code         string `json:"code"`
	ProductID    int64  `json:"product_id" validate:"required"`
	BOMID        int64  `json:"bom_id" validate:"required"`
	WarehouseID  int64  `json:"warehouse_id" validate:"required"`
	Date         string `json:"date"`
	QuantityPlan string `json:"quantity_plan" validate:"required"`
	Note         string `json:"note"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var payload orderPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	plan, err := decimal.NewFromString(payload.QuantityPlan)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid quantity_plan")
		return
	}
	input := OrderInput{
		Code:         payload.Code,
		ProductID:    payload.ProductID,
		BOMID:        payload.BOMID,
		WarehouseID:  payload.WarehouseID,
		QuantityPlan: plan,
		Note:         payload.Note,
		ActorID:      shared.ActorFromContext(r.Context()),
	}
	var ok bool
	if input.Date, ok = parseDate(w, payload.Date); !ok {
		return
	}
	doc, err := h.service.CreateOrder(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

type updateOrderPayload struct {
	Date         string `json:"date"`
	QuantityPlan string `json:"quantity_plan"`
	Note         string `json:"note"`
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var payload updateOrderPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	input := UpdateOrderInput{Note: payload.Note, ActorID: shared.ActorFromContext(r.Context())}
	if payload.QuantityPlan != "" {
		plan, err := decimal.NewFromString(payload.QuantityPlan)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid quantity_plan")
			return
		}
		input.QuantityPlan = plan
	}
	if input.Date, ok = parseDate(w, payload.Date); !ok {
		return
	}
	doc, err := h.service.UpdateOrder(r.Context(), id, input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.ListOrders(r.Context(), listFilter(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, docs)
}

func (h *Handler) releaseOrder(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.ReleaseOrder)
}

func (h *Handler) startOrder(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.StartOrder)
}

type completePayload struct {
	QuantityActual string `json:"quantity_actual" validate:"required"`
	Waste          string `json:"waste"`
	LaborCost      string `json:"labor_cost"`
	OverheadCost   string `json:"overhead_cost"`
}

func (h *Handler) completeOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var payload completePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CompleteOrderInput{ActorID: shared.ActorFromContext(r.Context())}
	var err error
	if input.QuantityActual, err = decimal.NewFromString(payload.QuantityActual); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid quantity_actual")
		return
	}
	if input.Waste, ok = optionalDecimal(w, payload.Waste, "waste"); !ok {
		return
	}
	if input.LaborCost, ok = optionalDecimal(w, payload.LaborCost, "labor_cost"); !ok {
		return
	}
	if input.OverheadCost, ok = optionalDecimal(w, payload.OverheadCost, "overhead_cost"); !ok {
		return
	}
	doc, err := h.service.CompleteOrder(r.Context(), id, input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) orderReport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	report, err := h.service.OrderReport(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.DeleteOrder)
}

func (h *Handler) restoreOrder(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.RestoreOrder)
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
	case errors.Is(err, ErrValidation), errors.Is(err, ErrBOMMismatch):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrDeleted):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("production request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
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

func optionalDecimal(w http.ResponseWriter, value, field string) (decimal.Decimal, bool) {
	if value == "" {
		return decimal.Zero, true
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+field)
		return decimal.Decimal{}, false
	}
	return d, true
}
