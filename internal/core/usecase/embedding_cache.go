package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/kirillkom/product-search-assistant/internal/core/ports"
)

// CachedEmbedder caches query embeddings. Batch document embeddings go
// straight to the model. Cache failures are logged and never fail a query.
type CachedEmbedder struct {
	inner ports.DenseEmbedder
	cache ports.EmbeddingCache
	model string
	ttl   time.Duration
}

func NewCachedEmbedder(inner ports.DenseEmbedder, cache ports.EmbeddingCache, model string, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: cache, model: model, ttl: ttl}
}

func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.inner.Embed(ctx, texts)
}

func (e *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := EmbeddingCacheKey(e.model, text)
	if vec, ok, err := e.cache.Get(ctx, key); err != nil {
		slog.Warn("embedding_cache_get_failed", "error", err)
	} else if ok {
		return vec, nil
	}

	vec, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) > 0 {
		if err := e.cache.Set(ctx, key, vec, e.ttl); err != nil {
			slog.Warn("embedding_cache_set_failed", "error", err)
		}
	}
	return vec, nil
}

// EmbeddingCacheKey is emb:<model>:<sha256 of text>.
func EmbeddingCacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + model + ":" + hex.EncodeToString(sum[:])
}
