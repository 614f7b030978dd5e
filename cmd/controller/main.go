// Package main is the entry point for the tenon controller.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tenon/internal/catalog"
	"tenon/internal/config"
	"tenon/internal/controller"
	"tenon/internal/forge"
	"tenon/internal/governor"
	"tenon/internal/logger"
	"tenon/internal/observability"
	"tenon/internal/orchestrator"
	"tenon/internal/store/postgres"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

func main() {
	// Parse flags
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	flag.Parse()

	// Load local .env if present; real deployments set the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogger := logger.New()

	// Setup Database
	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.Close()

	// Run migrations if requested
	if *migrateFlag {
		log.Println("Running database migrations...")
		if err := postgres.Migrate(db.DB()); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations completed successfully")
	}

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "tenon-controller", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("Failed to shutdown metrics: %v", err)
		}
	}()

	// Use an Observable Gauge (Async) that queries the DB only when scraped.
	meter := otel.Meter("tenon-controller")
	_, err = meter.Int64ObservableGauge("tenon.sessions.active",
		metric.WithDescription("Number of candidate sessions currently in progress"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			count, err := db.CountActiveSessions(ctx)
			if err != nil {
				log.Printf("Failed to count active sessions: %v", err)
				return nil // Don't crash metrics scrape on DB error
			}
			obs.Observe(count)
			return nil
		}),
	)
	if err != nil {
		log.Printf("Failed to register active sessions metric: %v", err)
	}

	// Wire the orchestrator
	templates, err := catalog.Load()
	if err != nil {
		log.Fatalf("Failed to load template catalog: %v", err)
	}
	forgeClient := forge.NewClient(cfg.GithubAPIBase, cfg.GithubToken, slogger)
	gov := governor.New(cfg.RateLimitEnabled)
	orch := orchestrator.New(db, forgeClient, gov, templates, orchestrator.Config{
		RepoPrefix:    cfg.RepoPrefix,
		Org:           cfg.GithubOrg,
		TemplateOwner: cfg.GithubTemplateOwner,
		WorkflowFile:  cfg.WorkflowFile,
		RunTimeout:    cfg.RunTimeout,
	}, slogger)

	// Start Server
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(addr, orch, db, db, slogger, metricsHandler)

	go func() {
		log.Printf("Tenon Controller starting on %s", addr)
		if err := srv.Run(ctx); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down controller...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited properly")
}
