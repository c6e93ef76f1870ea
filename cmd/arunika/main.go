package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arunika-erp/arunika-erp/internal/accounting"
	"github.com/arunika-erp/arunika-erp/internal/app"
	"github.com/arunika-erp/arunika-erp/internal/inventory"
	"github.com/arunika-erp/arunika-erp/internal/platform/db"
	"github.com/arunika-erp/arunika-erp/internal/procurement"
	"github.com/arunika-erp/arunika-erp/internal/production"
	"github.com/arunika-erp/arunika-erp/internal/rawmaterial"
	"github.com/arunika-erp/arunika-erp/internal/shared"
	"github.com/arunika-erp/arunika-erp/internal/stock"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	auditLogger := shared.NewAuditLogger(pool)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	stockRepo := stock.NewRepository(pool)

	inventoryService := inventory.NewService(inventory.NewRepository(pool), approvalRecorder, auditLogger, idempotencyStore)
	rawMaterialService := rawmaterial.NewService(rawmaterial.NewRepository(pool), auditLogger)
	procurementService := procurement.NewService(procurement.NewRepository(pool), approvalRecorder, auditLogger)
	productionService := production.NewService(production.NewRepository(pool), auditLogger)
	accountingService := accounting.NewService(accounting.NewRepository(pool), auditLogger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		InventoryHandler:   inventory.NewHandler(logger, inventoryService, stockRepo),
		RawMaterialHandler: rawmaterial.NewHandler(logger, rawMaterialService),
		ProcurementHandler: procurement.NewHandler(logger, procurementService),
		ProductionHandler:  production.NewHandler(logger, productionService),
		AccountingHandler:  accounting.NewHandler(logger, accountingService),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
