package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudvend/topup-bot/internal/api/routes"
	"github.com/cloudvend/topup-bot/internal/infrastructure/config"
	"github.com/cloudvend/topup-bot/internal/infrastructure/database"
	"github.com/cloudvend/topup-bot/internal/infrastructure/di"
	"github.com/cloudvend/topup-bot/pkg/logger"
	"github.com/cloudvend/topup-bot/pkg/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer log.Sync()

	log.Info("Starting topup bot service",
		"environment", cfg.Environment,
		"midtrans_environment", cfg.Midtrans.Environment,
	)

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(cfg.Database.URL); err != nil {
		log.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	log.Info("Database migrations applied")

	container, err := di.NewContainer(cfg, db, log)
	if err != nil {
		log.Error("Failed to build dependency container", "error", err)
		os.Exit(1)
	}

	router := routes.SetupRoutes(container)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := container.Bot.Start(ctx); err != nil {
		log.Error("Failed to start Discord bot", "error", err)
		os.Exit(1)
	}
	log.Info("Discord bot connected")

	if cfg.Retention.Enabled {
		go container.RetentionWorker.Start(ctx)
		log.Info("Retention worker started", "schedule", cfg.Retention.Schedule)
	}

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Info("HTTP server listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := db.Stats()
				metrics.DatabaseConnectionsGauge.WithLabelValues("open").Set(float64(stats.OpenConnections))
				metrics.DatabaseConnectionsGauge.WithLabelValues("idle").Set(float64(stats.Idle))
				metrics.DatabaseConnectionsGauge.WithLabelValues("in_use").Set(float64(stats.InUse))
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")

	if cfg.Retention.Enabled {
		container.RetentionWorker.Stop()
	}
	container.Bot.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("Server exited gracefully")
}
