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

	"github.com/joho/godotenv"

	"github.com/kirillkom/product-search-assistant/internal/bootstrap"
	"github.com/kirillkom/product-search-assistant/internal/config"
	"github.com/kirillkom/product-search-assistant/internal/observability/logging"
	"github.com/kirillkom/product-search-assistant/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		slog.Warn("dotenv_load_failed", "error", envErr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	worker, err := bootstrap.NewWorker(ctx, cfg, nil)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer worker.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = worker.Queue.SubscribeCatalogImported(ctx, func(handlerCtx context.Context, importID string) error {
		if imp, err := worker.Repo.GetByID(handlerCtx, importID); err == nil {
			workerMetrics.ObserveQueueLag(serviceName, time.Since(imp.CreatedAt))
		}

		processCtx, cancel := context.WithTimeout(handlerCtx, 15*time.Minute)
		defer cancel()

		started := time.Now()
		workerMetrics.StartImport()
		processErr := worker.ProcessUC.ProcessByID(processCtx, importID)
		workerMetrics.FinishImport(serviceName, time.Since(started), processErr)
		if processErr != nil {
			return processErr
		}

		if imp, err := worker.Repo.GetByID(handlerCtx, importID); err == nil {
			workerMetrics.AddIndexedProducts(serviceName, imp.ProductCount)
		}
		return nil
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
