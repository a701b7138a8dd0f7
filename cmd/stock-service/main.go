package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/farmabase/farmabase-backend/internal/stock/events"
	"github.com/farmabase/farmabase-backend/internal/stock/repository"
	"github.com/farmabase/farmabase-backend/internal/stock/service"
	"github.com/farmabase/farmabase-backend/pkg/config"
	"github.com/farmabase/farmabase-backend/pkg/database"
	"github.com/farmabase/farmabase-backend/pkg/errors"
	"github.com/farmabase/farmabase-backend/pkg/httputil"
	"github.com/farmabase/farmabase-backend/pkg/logger"
	"github.com/farmabase/farmabase-backend/pkg/messaging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// engine bundles the stock services. Domain routing lives in the calling
// layer; this binary hosts the engine and exposes health.
type engine struct {
	Movement     *service.MovementService
	Dispensation *service.DispensationService
	Requisition  *service.RequisitionService
	Ledger       *service.LedgerService
}

func newEngine(db *database.DB, publisher *events.StockEventPublisher, log *logger.Logger) *engine {
	medRepo := repository.NewMedicationRepository(db)
	estRepo := repository.NewEstablishmentRepository(db)
	stockRepo := repository.NewStockRepository(db)
	movementRepo := repository.NewMovementRepository(db)
	dispRepo := repository.NewDispensationRepository(db)
	reqRepo := repository.NewRequisitionRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)

	return &engine{
		Movement:     service.NewMovementService(db, stockRepo, movementRepo, medRepo, publisher, log),
		Dispensation: service.NewDispensationService(db, stockRepo, dispRepo, medRepo, publisher, log),
		Requisition:  service.NewRequisitionService(db, reqRepo, estRepo, medRepo, publisher, log),
		Ledger:       service.NewLedgerService(db, ledgerRepo, medRepo, log),
	}
}

func (e *engine) ready() bool {
	return e.Movement != nil && e.Dispensation != nil && e.Requisition != nil && e.Ledger != nil
}

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("stock-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("stock-service", cfg.Server.Environment)
	log.Info().Msg("starting Stock Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	publisher, err := events.NewStockEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	eng := newEngine(db, publisher, log)
	log.Info().Msg("stock engine initialized")

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.Error(w, errors.NotFound("route"))
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "stock-service",
			"engine":   eng.ready(),
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
