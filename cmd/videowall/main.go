package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leexhwhy/edal-multiglobe-desktop/internal/catalogue"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/charts"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/config"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/featureinfo"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/handlers"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/render"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/scheduler"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/tilecache"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/wall"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/artifacts"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/database"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/logging"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/metrics"
)

const version = "1.0.0"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logLevel := logging.InfoLevel
	if cfg.Logging.Level == "debug" {
		logLevel = logging.DebugLevel
	}

	logger := logging.NewStructuredLogger("videowall", version, logLevel)

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting video wall server", logging.Fields{
		"version":           version,
		"server_host":       cfg.Server.Host,
		"server_port":       cfg.Server.Port,
		"catalogue_backend": cfg.Catalogue.Backend,
		"artifacts_driver":  cfg.Artifacts.Driver,
	})

	metricsCollector := metrics.NewCollector("videowall")

	// Catalogue backend
	var cat catalogue.Catalogue
	var db *database.PostgresDB
	if cfg.Catalogue.Backend == "postgres" {
		dbConfig := &database.Config{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.Database,
			SSLMode:         cfg.Database.SSLMode,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		}
		db, err = database.NewPostgresDB(dbConfig, logger, metricsCollector)
		if err != nil {
			logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{}, err)
		}
		defer db.Close()
		cat = catalogue.NewPostgresCatalogue(db, logger, metricsCollector)
	} else {
		cat = catalogue.NewMemoryCatalogue()
	}

	// Artifact store for chart images and persisted tiles
	store, err := artifacts.New(ctx, artifacts.Config{
		Driver:    artifacts.Driver(cfg.Artifacts.Driver),
		Root:      cfg.Artifacts.BaseDir,
		Endpoint:  cfg.Artifacts.Endpoint,
		AccessKey: cfg.Artifacts.AccessKey,
		SecretKey: cfg.Artifacts.SecretKey,
		Bucket:    cfg.Artifacts.Bucket,
		UseSSL:    cfg.Artifacts.UseSSL,
	})
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to initialize artifact store", logging.Fields{}, err)
	}

	// Worker pool for renders and feature-info queries
	pool := scheduler.NewPool(cfg.Pool.Workers, cfg.Pool.QueueSize, logger, metricsCollector)
	pool.Start()

	// Tile pipeline
	renderer := render.NewTileRenderer(cat, metricsCollector)
	var tileStore artifacts.Store
	if cfg.Cache.PersistTiles {
		tileStore = store
	}
	cache := tilecache.New(cfg.Cache.Capacity, tileStore, logger, metricsCollector)

	// Wall and feature-info pipeline
	w := wall.New(cat, renderer, cache, pool, logger, metricsCollector)
	presenter := featureinfo.NewLatestPresenter()
	infoService := featureinfo.New(cat, w, charts.NewPNGGenerator(), store, pool, presenter, logger, metricsCollector)

	// Handlers
	wallHandler := handlers.NewWallHandler(w, cat, infoService, presenter, store, logger, metricsCollector)

	router := mux.NewRouter()
	wallHandler.RegisterRoutes(router)
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server", logging.Fields{})

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "[SHUTDOWN_ERROR] Server shutdown failed", logging.Fields{}, err)
	}
	if err := pool.Stop(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "[SHUTDOWN_ERROR] Worker pool shutdown failed", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN] Server stopped", logging.Fields{})
}
