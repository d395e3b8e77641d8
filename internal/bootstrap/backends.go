package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kirillkom/product-search-assistant/internal/config"
	"github.com/kirillkom/product-search-assistant/internal/core/ports"
	"github.com/kirillkom/product-search-assistant/internal/core/usecase"
	"github.com/kirillkom/product-search-assistant/internal/infrastructure/cache/redis"
	"github.com/kirillkom/product-search-assistant/internal/infrastructure/catalog"
	"github.com/kirillkom/product-search-assistant/internal/infrastructure/chunking"
	"github.com/kirillkom/product-search-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/product-search-assistant/internal/infrastructure/llm/openai"
	"github.com/kirillkom/product-search-assistant/internal/infrastructure/rerank"
	"github.com/kirillkom/product-search-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/product-search-assistant/internal/infrastructure/vector/memory"
	"github.com/kirillkom/product-search-assistant/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/product-search-assistant/internal/prompts"
)

// BackendInitializer connects the pipeline stages to the configured model
// provider, embedders and product index. It implements
// ports.BackendInitializer and is driven by usecase.Assistant.
type BackendInitializer struct {
	cfg      config.Config
	executor *resilience.Executor

	mu     sync.Mutex
	redis  *goredis.Client
	closed bool
}

func NewBackendInitializer(cfg config.Config, executor *resilience.Executor) *BackendInitializer {
	return &BackendInitializer{cfg: cfg, executor: executor}
}

func (b *BackendInitializer) Initialize(ctx context.Context) (*ports.Backends, error) {
	pack, err := prompts.Default()
	if err != nil {
		return nil, fmt.Errorf("load prompt pack: %w", err)
	}

	chat, err := newChatModel(b.cfg, b.executor)
	if err != nil {
		return nil, err
	}
	dense, model, err := newDenseEmbedder(b.cfg, b.executor)
	if err != nil {
		return nil, err
	}
	dense = b.withEmbeddingCache(ctx, dense, model)
	sparse := qdrant.NewSparseEncoder()

	index, err := b.productIndex(ctx, dense, sparse)
	if err != nil {
		return nil, err
	}
	reranker, err := newReranker(b.cfg, b.executor)
	if err != nil {
		return nil, err
	}

	slog.Info("assistant_backends_built",
		"llm_provider", b.cfg.LLMProvider,
		"embed_provider", b.cfg.EmbedProvider,
		"embed_model", model,
		"vector_backend", b.cfg.VectorBackend,
		"rerank_mode", b.cfg.RAGRerankMode,
		"embedding_cache", b.cfg.RedisAddr != "",
	)

	return &ports.Backends{
		Planner: usecase.NewQueryPlanner(chat, usecase.PlannerConfig{
			SystemPrompt: pack.PlannerSystem,
			Instructions: pack.Planning,
			DefaultTopK:  b.cfg.RAGDefaultTopK,
			MaxTopK:      b.cfg.RAGMaxTopK,
		}),
		Retriever: usecase.NewHybridRetriever(dense, sparse, index, reranker, usecase.RetrieverConfig{
			ApplyMetadataFilter: b.cfg.RAGApplyMetadataFilter,
			RerankTopN:          b.cfg.RAGRerankTopN,
			DefaultTopK:         b.cfg.RAGDefaultTopK,
		}),
		Composer: usecase.NewAnswerComposer(chat, usecase.ComposerConfig{
			Persona:      pack.Persona,
			DomainNotes:  pack.DomainNotes,
			Instructions: pack.Composition,
			SummaryLimit: b.cfg.RAGSummaryLimit,
			Temperature:  b.cfg.ComposerTemperature,
			MaxTokens:    b.cfg.ComposerMaxTokens,
		}),
	}, nil
}

// Close releases connections opened during initialization.
func (b *BackendInitializer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.redis != nil {
		_ = b.redis.Close()
		b.redis = nil
	}
}

// withEmbeddingCache wraps dense with the Redis query cache. An unreachable
// Redis leaves the embedder uncached.
func (b *BackendInitializer) withEmbeddingCache(ctx context.Context, dense ports.DenseEmbedder, model string) ports.DenseEmbedder {
	if strings.TrimSpace(b.cfg.RedisAddr) == "" {
		return dense
	}

	client, err := redis.Connect(ctx, b.cfg.RedisAddr, b.cfg.RedisPassword, 3)
	if err != nil {
		slog.Warn("embedding_cache_disabled", "addr", b.cfg.RedisAddr, "error", err)
		return dense
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = client.Close()
		return dense
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
	b.redis = client
	b.mu.Unlock()

	return usecase.NewCachedEmbedder(dense, redis.NewEmbeddingCache(client), model, b.cfg.EmbedCacheTTL)
}

func (b *BackendInitializer) productIndex(ctx context.Context, dense ports.DenseEmbedder, sparse ports.SparseEmbedder) (ports.ProductIndex, error) {
	switch strings.ToLower(strings.TrimSpace(b.cfg.VectorBackend)) {
	case "", "qdrant":
		client := newQdrantClient(b.cfg, b.executor)
		if err := client.Ping(ctx); err != nil {
			return nil, fmt.Errorf("qdrant unavailable: %w", err)
		}
		return client, nil
	case "memory":
		index := memory.New(memory.Options{Fusion: memory.FusionDotProduct})
		if err := seedIndex(ctx, b.cfg, index, dense, sparse); err != nil {
			return nil, err
		}
		return index, nil
	default:
		return nil, fmt.Errorf("unsupported vector backend %q", b.cfg.VectorBackend)
	}
}

// seedIndex loads CATALOG_SEED_PATH into an in-process index through the same
// decode, chunk and embed path the worker uses.
func seedIndex(ctx context.Context, cfg config.Config, index ports.ProductIndex, dense ports.DenseEmbedder, sparse ports.SparseEmbedder) error {
	path := strings.TrimSpace(cfg.CatalogSeedPath)
	if path == "" {
		slog.Warn("memory_index_empty", "reason", "CATALOG_SEED_PATH is not set")
		return nil
	}

	started := time.Now()
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open catalog seed: %w", err)
	}
	defer f.Close()

	products, err := catalog.NewDecoder().Decode(ctx, filepath.Base(path), f)
	if err != nil {
		return fmt.Errorf("decode catalog seed: %w", err)
	}

	indexer := usecase.NewCatalogProcessUseCase(nil, nil, nil, chunking.NewProductChunkBuilder(), dense, sparse, index, cfg.IngestBatchSize)
	count, err := indexer.IndexProducts(ctx, products)
	if err != nil {
		return fmt.Errorf("index catalog seed: %w", err)
	}
	slog.Info("memory_index_seeded",
		"path", path,
		"products", count,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return nil
}

func newChatModel(cfg config.Config, executor *resilience.Executor) (ports.ChatModel, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.LLMProvider)) {
	case "", "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" && strings.TrimSpace(cfg.OpenAIBaseURL) == "" {
			return nil, errors.New("OPENAI_API_KEY is required for the openai provider")
		}
		return openai.NewChatModel(newOpenAIClient(cfg, executor)), nil
	case "ollama":
		return ollama.NewChatModel(newOllamaClient(cfg, executor)), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLMProvider)
	}
}

// newDenseEmbedder returns the embedder and its model name, which scopes
// cache keys.
func newDenseEmbedder(cfg config.Config, executor *resilience.Executor) (ports.DenseEmbedder, string, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.EmbedProvider)) {
	case "", "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" && strings.TrimSpace(cfg.OpenAIBaseURL) == "" {
			return nil, "", errors.New("OPENAI_API_KEY is required for the openai embedder")
		}
		embedder := openai.NewEmbedder(newOpenAIClient(cfg, executor))
		return embedder, embedder.Model(), nil
	case "ollama":
		embedder := ollama.NewEmbedder(newOllamaClient(cfg, executor))
		return embedder, embedder.Model(), nil
	default:
		return nil, "", fmt.Errorf("unsupported embed provider %q", cfg.EmbedProvider)
	}
}

func newReranker(cfg config.Config, executor *resilience.Executor) (ports.Reranker, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.RAGRerankMode)) {
	case "", "lexical":
		return usecase.NewLexicalReranker(cfg.RAGRerankField), nil
	case "http":
		if strings.TrimSpace(cfg.RerankURL) == "" {
			return nil, errors.New("RERANK_URL is required for the http reranker")
		}
		return rerank.NewHTTPClient(cfg.RerankURL, cfg.RerankModel, cfg.RAGRerankField, executor), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported rerank mode %q", cfg.RAGRerankMode)
	}
}

func newOpenAIClient(cfg config.Config, executor *resilience.Executor) *openai.Client {
	return openai.New(openai.Config{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		ChatModel:  cfg.OpenAIChatModel,
		EmbedModel: cfg.OpenAIEmbedModel,
		Timeout:    upstreamTimeout(cfg),
	}, executor)
}

func newOllamaClient(cfg config.Config, executor *resilience.Executor) *ollama.Client {
	return ollama.New(cfg.OllamaURL, cfg.OllamaChatModel, cfg.OllamaEmbedModel, executor)
}

func newQdrantClient(cfg config.Config, executor *resilience.Executor) *qdrant.Client {
	return qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, qdrant.Options{
		Fusion:   qdrant.Fusion(strings.ToLower(strings.TrimSpace(cfg.QdrantFusion))),
		Executor: executor,
	})
}

// upstreamTimeout bounds one model request by the longest stage timeout.
func upstreamTimeout(cfg config.Config) time.Duration {
	timeout := cfg.ComposerTimeout
	for _, t := range []time.Duration{cfg.PlannerTimeout, cfg.RetrievalTimeout} {
		if t > timeout {
			timeout = t
		}
	}
	return timeout
}
