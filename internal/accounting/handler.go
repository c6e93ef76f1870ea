package accounting

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/arunika-erp/arunika-erp/internal/platform/httpx"
	"github.com/arunika-erp/arunika-erp/internal/shared"
)

// Handler wires HTTP endpoints for the accounting module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the accounting handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers accounting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.listAccounts)
		r.Get("/{id}", h.getAccount)
	})
	r.Route("/initial-balances", func(r chi.Router) {
		r.Get("/", h.listYears)
		r.Post("/", h.storeYear)
		r.Get("/{year}", h.showYear)
		r.Post("/{year}/approve", h.approveYear)
		r.Delete("/{year}", h.deleteYear)
	})
}

type balanceItemPayload struct {
	AccountID int64  `json:"account_id" validate:"required"`
	Debit     string `json:"debit" validate:"required"`
	Credit    string `json:"credit" validate:"required"`
	Budget    string `json:"budget"`
}

type storeYearPayload struct {
	Year  int                  `json:"year" validate:"required"`
	Items []balanceItemPayload `json:"items" validate:"min=1,dive"`
}

func (h *Handler) storeYear(w http.ResponseWriter, r *http.Request) {
	var payload storeYearPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := StoreYearInput{Year: payload.Year, ActorID: shared.ActorFromContext(r.Context())}
	for _, item := range payload.Items {
		line := BalanceItemInput{AccountID: item.AccountID}
		var err error
		if line.Debit, err = decimal.NewFromString(item.Debit); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid debit")
			return
		}
		if line.Credit, err = decimal.NewFromString(item.Credit); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid credit")
			return
		}
		line.Budget = decimal.Zero
		if item.Budget != "" {
			if line.Budget, err = decimal.NewFromString(item.Budget); err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid budget")
				return
			}
		}
		input.Items = append(input.Items, line)
	}
	if err := h.service.StoreYear(r.Context(), input); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"year": payload.Year, "status": string(BalanceStatusDraft)})
}

func (h *Handler) approveYear(w http.ResponseWriter, r *http.Request) {
	year, ok := pathYear(w, r)
	if !ok {
		return
	}
	if err := h.service.ApproveYear(r.Context(), year, shared.ActorFromContext(r.Context())); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"year": year, "status": string(BalanceStatusApproved)})
}

func (h *Handler) deleteYear(w http.ResponseWriter, r *http.Request) {
	year, ok := pathYear(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteYear(r.Context(), year, shared.ActorFromContext(r.Context())); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) showYear(w http.ResponseWriter, r *http.Request) {
	year, ok := pathYear(w, r)
	if !ok {
		return
	}
	summary, err := h.service.ShowYear(r.Context(), year)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) listYears(w http.ResponseWriter, r *http.Request) {
	years, err := h.service.ListYears(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, years)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	acc, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, acc)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	filter := AccountFilter{
		Type:       r.URL.Query().Get("type"),
		CashOnly:   r.URL.Query().Get("cash") == "true",
		ActiveOnly: r.URL.Query().Get("active") == "true",
	}
	accounts, err := h.service.ListAccounts(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if ue, ok := AsUnbalanced(err); ok {
		httpx.ProblemWith(w, http.StatusUnprocessableEntity, "Unbalanced", ue.Error(), map[string]any{
			"total_debit":  ue.TotalDebit.String(),
			"total_credit": ue.TotalCredit.String(),
		})
		return
	}
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	case errors.Is(err, ErrYearApproved):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Year Approved", err.Error())
	default:
		h.logger.Error("accounting request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func pathYear(w http.ResponseWriter, r *http.Request) (int, bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid year")
		return 0, false
	}
	return year, true
}
