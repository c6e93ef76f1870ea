package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/arunika-erp/arunika-erp/internal/accounting"
	"github.com/arunika-erp/arunika-erp/internal/inventory"
	"github.com/arunika-erp/arunika-erp/internal/procurement"
	"github.com/arunika-erp/arunika-erp/internal/production"
	"github.com/arunika-erp/arunika-erp/internal/rawmaterial"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	InventoryHandler   *inventory.Handler
	RawMaterialHandler *rawmaterial.Handler
	ProcurementHandler *procurement.Handler
	ProductionHandler  *production.Handler
	AccountingHandler  *accounting.Handler
}

// NewRouter constructs the chi.Router with Arunika defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/inventory", params.InventoryHandler.MountRoutes)
	r.Route("/raw-materials", params.RawMaterialHandler.MountRoutes)
	r.Route("/procurement", params.ProcurementHandler.MountRoutes)
	r.Route("/production", params.ProductionHandler.MountRoutes)
	r.Route("/accounting", params.AccountingHandler.MountRoutes)

	return r
}
