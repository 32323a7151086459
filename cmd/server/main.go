package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/nats-io/nats.go"

	"github.com/pesio-ai/be-wh-repairs/internal/client"
	"github.com/pesio-ai/be-wh-repairs/internal/config"
	"github.com/pesio-ai/be-wh-repairs/internal/database"
	"github.com/pesio-ai/be-wh-repairs/internal/handler"
	"github.com/pesio-ai/be-wh-repairs/internal/logger"
	"github.com/pesio-ai/be-wh-repairs/internal/middleware"
	"github.com/pesio-ai/be-wh-repairs/internal/migrator"
	"github.com/pesio-ai/be-wh-repairs/internal/repository"
	"github.com/pesio-ai/be-wh-repairs/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Warehouse Repairs Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run migrations
	if cfg.Database.Migrate {
		if err := migrator.Up(cfg.Database.DSN(), cfg.Database.MigrationsDir); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
		log.Info().Str("dir", cfg.Database.MigrationsDir).Msg("Migrations applied")
	}

	// Initialize database
	db, err := database.New(ctx, database.Config{
		DSN:         cfg.Database.DSN(),
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnLife: cfg.Database.MaxConnLife,
		MaxConnIdle: cfg.Database.MaxConnIdle,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize NATS (optional; notifications are skipped when unset)
	var natsConn *nats.Conn
	if cfg.NATS.URL != "" {
		natsConn, err = nats.Connect(cfg.NATS.URL,
			nats.Name(cfg.Service.Name),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer natsConn.Close()
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
	} else {
		log.Warn().Msg("NATS_URL not set, notifications disabled")
	}

	// Initialize repositories
	repairRepo := repository.NewRepairRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Initialize service clients
	directoryClient := client.NewDirectoryClient(cfg.Clients.DirectoryURL, cfg.Clients.Timeout)
	catalogClient := client.NewCatalogClient(cfg.Clients.CatalogURL, cfg.Clients.Timeout)
	notifier := client.NewNotificationPublisher(natsConn, log.Logger)

	log.Info().
		Str("directory_url", cfg.Clients.DirectoryURL).
		Str("catalog_url", cfg.Clients.CatalogURL).
		Msg("Service clients initialized")

	// Initialize services
	repairService := service.NewRepairService(repairRepo, auditRepo, directoryClient, catalogClient, notifier, log)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(repairService, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(&log.Logger))
	r.Use(middleware.Recovery(&log.Logger))
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(chimw.Timeout(cfg.Server.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if err := db.Ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	httpHandler.Routes(r)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
