package rawmaterial

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

// Handler wires HTTP endpoints for the raw-material module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the raw-material handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers raw-material routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/stock-ins", func(r chi.Router) {
		r.Post("/", h.createStockIn)
		r.Get("/", h.listStockIns)
		r.Get("/{id}", h.getStockIn)
		r.Put("/{id}", h.updateStockIn)
		r.Post("/{id}/post", h.postStockIn)
		r.Delete("/{id}", h.deleteStockIn)
		r.Post("/{id}/restore", h.restoreStockIn)
	})
	r.Route("/stock-outs", func(r chi.Router) {
		r.Post("/", h.createStockOut)
		r.Get("/", h.listStockOuts)
		r.Get("/{id}", h.getStockOut)
		r.Put("/{id}", h.updateStockOut)
		r.Post("/{id}/post", h.postStockOut)
		r.Delete("/{id}", h.deleteStockOut)
		r.Post("/{id}/restore", h.restoreStockOut)
	})
	r.Route("/adjustments", func(r chi.Router) {
		r.Post("/", h.createAdjustment)
		r.Get("/", h.listAdjustments)
		r.Get("/{id}", h.getAdjustment)
		r.Delete("/{id}", h.deleteAdjustment)
		r.Post("/{id}/restore", h.restoreAdjustment)
	})
}

type linePayload struct {
	RawMaterialID int64  `json:"raw_material_id" validate:"required"`
	Qty           string `json:"qty" validate:"required"`
}

type docPayload struct {
	Code        string        `json:"code"`
	WarehouseID int64         `json:"warehouse_id" validate:"required"`
	Date        string        `json:"date"`
	Note        string        `json:"note"`
	Items       []linePayload `json:"items" validate:"min=1,dive"`
}

func (h *Handler) decodeDoc(w http.ResponseWriter, r *http.Request) (DocInput, bool) {
	var payload docPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return DocInput{}, false
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return DocInput{}, false
	}
	input := DocInput{
		Code:        payload.Code,
		WarehouseID: payload.WarehouseID,
		Note:        payload.Note,
		ActorID:     shared.ActorFromContext(r.Context()),
	}
	if payload.Date != "" {
		t, err := time.Parse("2006-01-02", payload.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid date, expected YYYY-MM-DD")
			return DocInput{}, false
		}
		input.Date = t
	}
	for _, item := range payload.Items {
		qty, err := decimal.NewFromString(item.Qty)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid qty")
			return DocInput{}, false
		}
		input.Items = append(input.Items, LineInput{RawMaterialID: item.RawMaterialID, Qty: qty})
	}
	return input, true
}

func (h *Handler) createStockIn(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeDoc(w, r)
	if !ok {
		return
	}
	doc, err := h.service.CreateStockIn(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) updateStockIn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	input, ok := h.decodeDoc(w, r)
	if !ok {
		return
	}
	doc, err := h.service.UpdateStockIn(r.Context(), id, input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) getStockIn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.GetStockIn(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) listStockIns(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.ListStockIns(r.Context(), listFilter(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, docs)
}

func (h *Handler) postStockIn(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.PostStockIn)
}

func (h *Handler) deleteStockIn(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.DeleteStockIn)
}

func (h *Handler) restoreStockIn(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.RestoreStockIn)
}

func (h *Handler) createStockOut(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeDoc(w, r)
	if !ok {
		return
	}
	doc, err := h.service.CreateStockOut(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) updateStockOut(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	input, ok := h.decodeDoc(w, r)
	if !ok {
		return
	}
	doc, err := h.service.UpdateStockOut(r.Context(), id, input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
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

func (h *Handler) postStockOut(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.PostStockOut)
}

func (h *Handler) deleteStockOut(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.DeleteStockOut)
}

func (h *Handler) restoreStockOut(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.RestoreStockOut)
}

type adjustmentPayload struct {
	RawMaterialID int64  `json:"raw_material_id" validate:"required"`
	WarehouseID   int64  `json:"warehouse_id" validate:"required"`
	ActualQty     string `json:"actual_qty" validate:"required"`
	Reason        string `json:"reason"`
}

func (h *Handler) createAdjustment(w http.ResponseWriter, r *http.Request) {
	var payload adjustmentPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	qty, err := decimal.NewFromString(payload.ActualQty)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid actual_qty")
		return
	}
	rec, err := h.service.CreateAdjustment(r.Context(), AdjustmentInput{
		RawMaterialID: payload.RawMaterialID,
		WarehouseID:   payload.WarehouseID,
		ActualQty:     qty,
		Reason:        payload.Reason,
		ActorID:       shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) getAdjustment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := h.service.GetAdjustment(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) listAdjustments(w http.ResponseWriter, r *http.Request) {
	recs, err := h.service.ListAdjustments(r.Context(), listFilter(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, recs)
}

func (h *Handler) deleteAdjustment(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.DeleteAdjustment)
}

func (h *Handler) restoreAdjustment(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.RestoreAdjustment)
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
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrDeleted):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, stock.ErrNegativeBalance):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	default:
		h.logger.Error("rawmaterial request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
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
