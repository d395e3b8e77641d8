package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
)

// ChatModel sends one chat completion to a language model.
type ChatModel interface {
	Complete(ctx context.Context, req domain.ChatRequest) (string, error)
}

// DenseEmbedder builds dense vectors for product chunks and query text.
type DenseEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// SparseEmbedder builds lexical sparse vectors.
type SparseEmbedder interface {
	EncodeDocument(text string) domain.SparseVector
	EncodeQuery(text string) domain.SparseVector
}

// ProductIndex is the hybrid dense+sparse product store.
type ProductIndex interface {
	Upsert(ctx context.Context, products []domain.IndexedProduct) error
	HybridQuery(ctx context.Context, query domain.HybridQuery) ([]domain.ScoredMatch, error)
}

// Reranker reorders candidates by relevance to the query text and keeps at
// most topN of them.
type Reranker interface {
	Rerank(ctx context.Context, query string, matches []domain.ScoredMatch, topN int) ([]domain.ScoredMatch, error)
}

// ChunkBuilder synthesizes the semantic chunk text of a record.
type ChunkBuilder interface {
	Build(product domain.ProductRecord) string
}

// CatalogDecoder reads scraped listings from an uploaded file and normalizes
// them into product records. Records keep file order.
type CatalogDecoder interface {
	Decode(ctx context.Context, filename string, body io.Reader) ([]domain.ProductRecord, error)
}

// ImportRepository persists catalog import state.
type ImportRepository interface {
	Create(ctx context.Context, imp *domain.CatalogImport) error
	GetByID(ctx context.Context, id string) (*domain.CatalogImport, error)
	UpdateStatus(ctx context.Context, id string, status domain.ImportStatus, errMessage string) error
	SaveCounts(ctx context.Context, id string, products, skipped int) error
}

// ObjectStorage stores uploaded catalog files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes catalog import events.
type MessageQueue interface {
	PublishCatalogImported(ctx context.Context, importID string) error
	SubscribeCatalogImported(ctx context.Context, handler func(context.Context, string) error) error
}

// EmbeddingCache stores query embeddings by key.
type EmbeddingCache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vector []float32, ttl time.Duration) error
}

// AssistantObserver receives per-stage pipeline outcomes.
type AssistantObserver interface {
	ObserveStage(stage string, outcome string, duration time.Duration)
	ObserveQuery(success bool, resultCount int)
}
