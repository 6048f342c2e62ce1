package main

import (
	"context"
	"fmt"
	"os"

	"github.com/leexhwhy/edal-multiglobe-desktop/internal/catalogue"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/config"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/database"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/logging"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logLevel := logging.InfoLevel
	if cfg.Logging.Level == "debug" {
		logLevel = logging.DebugLevel
	}
	logger := logging.NewStructuredLogger("videowall-seed", "1.0.0", logLevel)

	ctx := context.Background()
	logger.Info(ctx, "[SEED_START] Loading demo catalogue data", logging.Fields{
		"db_host": cfg.Database.Host,
		"db_name": cfg.Database.Database,
	})

	metricsCollector := metrics.NewCollector("videowall_seed")

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

	db, err := database.NewPostgresDB(dbConfig, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[SEED_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	seeder := catalogue.NewSeeder(db, logger)
	result, err := seeder.SeedDemo(ctx)
	if err != nil {
		logger.Fatal(ctx, "[SEED_ERROR] Failed to load demo data", logging.Fields{}, err)
	}

	fmt.Printf("Seeded %d variables, %d grid points, %d profile points\n",
		result.Variables, result.GridPoints, result.ProfilePoints)
}
