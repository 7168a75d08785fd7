package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/ArashiWander/argus/internal/adapter/controller/http/handlers"
	"github.com/ArashiWander/argus/internal/adapter/controller/http/middleware"
	"github.com/ArashiWander/argus/internal/adapter/controller/ws"
	"github.com/ArashiWander/argus/internal/adapter/repository/clickhouse"
	"github.com/ArashiWander/argus/internal/config"
	"github.com/ArashiWander/argus/internal/usecase/alerting"
	"github.com/ArashiWander/argus/internal/usecase/alerts"
	"github.com/ArashiWander/argus/internal/usecase/detection"
	"github.com/ArashiWander/argus/internal/usecase/metrics"
	"github.com/ArashiWander/argus/internal/usecase/notifications"
	"github.com/ArashiWander/argus/internal/usecase/threats"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := config.SetupLogger(cfg)
	logger.Info("Starting Argus API",
		"env", cfg.App.Env,
		"port", cfg.App.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// WebSocket hub for live lifecycle events
	hub := ws.NewHub()
	go hub.Run()

	// Optional ClickHouse audit archive
	var sink alerts.AuditSink
	healthChecks := map[string]func() error{}
	if cfg.ClickHouse.Enabled {
		conn, err := clickhouse.NewConnection(&cfg.ClickHouse, logger)
		if err != nil {
			logger.Error("Failed to connect to ClickHouse, audit archive disabled", "error", err)
		} else {
			defer conn.Close()
			repo := clickhouse.NewAuditRepository(conn, logger)
			if err := repo.Migrate(ctx); err != nil {
				logger.Error("Failed to migrate audit tables, audit archive disabled", "error", err)
			} else {
				sink = repo
				healthChecks["clickhouse"] = func() error {
					pctx, pcancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer pcancel()
					return conn.Ping(pctx)
				}
			}
		}
	}

	// Usecase wiring
	store := metrics.NewStore(cfg.Metrics.Lookback)
	channelService := notifications.NewService(logger)
	dispatcher := notifications.NewDispatcher(ctx, channelService, logger, cfg.Notify.SendTimeout)
	manager := alerts.NewManager(logger, dispatcher, sink, hub)

	detectionService := detection.NewService(store, manager, logger, cfg.Detection.Workers)
	alertingService := alerting.NewService(store, manager, logger)
	threatService := threats.NewService(manager, logger, cfg.Threats.EventRetention)

	if cfg.Threats.RulesDir != "" {
		if _, err := threatService.LoadRulesDir(cfg.Threats.RulesDir); err != nil {
			logger.Warn("Failed to load threat rules", "dir", cfg.Threats.RulesDir, "error", err)
		}
	}

	// Background engines
	detectionService.Start(ctx, cfg.Detection.Interval)
	defer detectionService.Stop()
	alertingService.Start(ctx, cfg.Alerting.Interval)
	defer alertingService.Stop()
	threatService.Start(ctx, cfg.Threats.Interval)
	defer threatService.Stop()

	// Handlers
	ingestHandler := handlers.NewIngestHandler(store, threatService, logger)
	detectionHandler := handlers.NewDetectionHandler(detectionService)
	alertRulesHandler := handlers.NewAlertRulesHandler(alertingService)
	threatsHandler := handlers.NewThreatsHandler(threatService)
	notificationHandler := handlers.NewNotificationHandler(channelService, dispatcher)
	alertsHandler := handlers.NewAlertsHandler(manager)
	anomaliesHandler := handlers.NewAnomaliesHandler(manager)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.SecurityHeaders)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Rate limiting
	r.Use(httprate.LimitByIP(300, time.Minute))

	// Health check
	r.Get("/health", handlers.HealthCheck(cfg, healthChecks))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Ingestion
		r.Route("/ingest", func(r chi.Router) {
			r.Post("/metrics", ingestHandler.IngestMetrics)
			r.Post("/events", ingestHandler.IngestEvent)
		})
		r.Get("/events/recent", ingestHandler.RecentEvents)

		// Anomaly detection
		r.Route("/detection", func(r chi.Router) {
			r.Route("/configs", func(r chi.Router) {
				r.Post("/", detectionHandler.CreateConfig)
				r.Get("/", detectionHandler.ListConfigs)
				r.Get("/{id}", detectionHandler.GetConfig)
				r.Put("/{id}", detectionHandler.UpdateConfig)
				r.Delete("/{id}", detectionHandler.DeleteConfig)
			})
			r.Post("/run", detectionHandler.Run)
		})

		// Threshold alerting
		r.Route("/alerting", func(r chi.Router) {
			r.Route("/rules", func(r chi.Router) {
				r.Post("/", alertRulesHandler.CreateRule)
				r.Get("/", alertRulesHandler.ListRules)
				r.Get("/{id}", alertRulesHandler.GetRule)
				r.Put("/{id}", alertRulesHandler.UpdateRule)
				r.Delete("/{id}", alertRulesHandler.DeleteRule)
			})
			r.Post("/run", alertRulesHandler.Run)
		})

		// Threat correlation
		r.Route("/threats", func(r chi.Router) {
			r.Route("/rules", func(r chi.Router) {
				r.Post("/", threatsHandler.CreateRule)
				r.Get("/", threatsHandler.ListRules)
				r.Get("/{id}", threatsHandler.GetRule)
				r.Put("/{id}", threatsHandler.UpdateRule)
				r.Delete("/{id}", threatsHandler.DeleteRule)
			})
			r.Post("/run", threatsHandler.Run)
		})

		// Notification channels
		r.Route("/notifications/channels", func(r chi.Router) {
			r.Post("/", notificationHandler.CreateChannel)
			r.Get("/", notificationHandler.ListChannels)
			r.Get("/{id}", notificationHandler.GetChannel)
			r.Put("/{id}", notificationHandler.UpdateChannel)
			r.Delete("/{id}", notificationHandler.DeleteChannel)
			r.Post("/{id}/test", notificationHandler.TestChannel)
		})

		// Alert lifecycle
		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", alertsHandler.List)
			r.Get("/{id}", alertsHandler.Get)
			r.Post("/{id}/acknowledge", alertsHandler.Acknowledge)
			r.Post("/{id}/resolve", alertsHandler.Resolve)
		})
		r.Route("/anomalies", func(r chi.Router) {
			r.Get("/", anomaliesHandler.List)
			r.Post("/{id}/acknowledge", anomaliesHandler.Acknowledge)
			r.Post("/{id}/resolve", anomaliesHandler.Resolve)
		})
		r.Route("/security-alerts", func(r chi.Router) {
			r.Get("/", alertsHandler.ListSecurity)
			r.Post("/{id}/acknowledge", alertsHandler.AcknowledgeSecurity)
			r.Post("/{id}/resolve", alertsHandler.ResolveSecurity)
		})

		// Stats overview
		r.Get("/stats", alertsHandler.Stats)
	})

	// WebSocket endpoint
	r.Get("/ws", hub.ServeWS)

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped")
}
