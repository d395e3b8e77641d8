package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/product-search-assistant/internal/config"
	"github.com/kirillkom/product-search-assistant/internal/core/ports"
	"github.com/kirillkom/product-search-assistant/internal/core/usecase"
	"github.com/kirillkom/product-search-assistant/internal/infrastructure/catalog"
	"github.com/kirillkom/product-search-assistant/internal/infrastructure/chunking"
	"github.com/kirillkom/product-search-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/product-search-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/product-search-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/product-search-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/product-search-assistant/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/product-search-assistant/internal/observability/metrics"
)

// App is the query side: the assistant plus, for the API, the catalog upload
// use case.
type App struct {
	Config config.Config

	Assistant   *usecase.Assistant
	HTTPMetrics *metrics.HTTPServerMetrics
	Imports     *usecase.CatalogImportUseCase

	closeFn func()
}

// NewAPI builds the assistant and the catalog upload stack (Postgres,
// local storage, NATS).
func NewAPI(ctx context.Context, cfg config.Config) (*App, error) {
	httpMetrics := metrics.NewHTTPServerMetrics("api")
	assistant, initializer := newAssistant(cfg, httpMetrics)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		initializer.Close()
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewImportRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		initializer.Close()
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		initializer.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: resilience.NewExecutor(resilienceConfig(cfg, httpMetrics.RecordBreakerTransition)),
	})
	if err != nil {
		initializer.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	return &App{
		Config:      cfg,
		Assistant:   assistant,
		HTTPMetrics: httpMetrics,
		Imports:     usecase.NewCatalogImportUseCase(repo, storage, queue),
		closeFn: func() {
			initializer.Close()
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

// NewMCP builds only the assistant. Metrics are not exported over stdio.
func NewMCP(cfg config.Config) *App {
	assistant, initializer := newAssistant(cfg, nil)
	return &App{
		Config:    cfg,
		Assistant: assistant,
		closeFn:   initializer.Close,
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func newAssistant(cfg config.Config, httpMetrics *metrics.HTTPServerMetrics) (*usecase.Assistant, *BackendInitializer) {
	var (
		onStateChange func(operation, from, to string)
		observer      ports.AssistantObserver
	)
	if httpMetrics != nil {
		onStateChange = httpMetrics.RecordBreakerTransition
		observer = httpMetrics
	}

	executor := resilience.NewExecutor(resilienceConfig(cfg, onStateChange).QueryPath())
	initializer := NewBackendInitializer(cfg, executor)
	assistant := usecase.NewAssistant(initializer, observer, usecase.AssistantConfig{
		InitTimeout:      cfg.InitTimeout,
		PlannerTimeout:   cfg.PlannerTimeout,
		RetrievalTimeout: cfg.RetrievalTimeout,
		ComposerTimeout:  cfg.ComposerTimeout,
	})
	return assistant, initializer
}

// Worker is the ingestion side: it turns uploaded catalogs into index points.
type Worker struct {
	Config config.Config

	Queue     ports.MessageQueue
	Repo      ports.ImportRepository
	ProcessUC *usecase.CatalogProcessUseCase

	closeFn func()
}

func NewWorker(ctx context.Context, cfg config.Config, onStateChange func(operation, from, to string)) (*Worker, error) {
	if backend := strings.ToLower(strings.TrimSpace(cfg.VectorBackend)); backend != "" && backend != "qdrant" {
		return nil, errors.New("catalog worker requires VECTOR_BACKEND=qdrant")
	}
	executor := resilience.NewExecutor(resilienceConfig(cfg, onStateChange))

	dense, _, err := newDenseEmbedder(cfg, executor)
	if err != nil {
		return nil, err
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewImportRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{ResilienceExecutor: executor})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	processUC := usecase.NewCatalogProcessUseCase(
		repo,
		storage,
		catalog.NewDecoder(),
		chunking.NewProductChunkBuilder(),
		dense,
		qdrant.NewSparseEncoder(),
		newQdrantClient(cfg, executor),
		cfg.IngestBatchSize,
	)

	return &Worker{
		Config:    cfg,
		Queue:     queue,
		Repo:      repo,
		ProcessUC: processUC,
		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (w *Worker) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

func resilienceConfig(cfg config.Config, onStateChange func(operation, from, to string)) resilience.Config {
	out := resilience.DefaultConfig()
	out.BreakerEnabled = cfg.BreakerEnabled
	if cfg.BreakerMinRequests > 0 {
		out.BreakerMinRequests = uint32(cfg.BreakerMinRequests)
	}
	out.BreakerFailureRatio = cfg.BreakerFailureRatio
	out.BreakerOpenTimeout = cfg.BreakerOpenTimeout
	out.OnStateChange = onStateChange
	return out
}
