package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
	"github.com/kirillkom/product-search-assistant/internal/core/ports"
)

type RetrieverConfig struct {
	// ApplyMetadataFilter sends the translated filter with the index query.
	// Filters are always translated, so malformed ones fail either way.
	ApplyMetadataFilter bool
	RerankTopN          int
	DefaultTopK         int
}

type HybridRetriever struct {
	dense    ports.DenseEmbedder
	sparse   ports.SparseEmbedder
	index    ports.ProductIndex
	reranker ports.Reranker
	cfg      RetrieverConfig
}

// NewHybridRetriever builds a retriever. A nil reranker disables reranking.
func NewHybridRetriever(
	dense ports.DenseEmbedder,
	sparse ports.SparseEmbedder,
	index ports.ProductIndex,
	reranker ports.Reranker,
	cfg RetrieverConfig,
) *HybridRetriever {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 5
	}
	return &HybridRetriever{
		dense:    dense,
		sparse:   sparse,
		index:    index,
		reranker: reranker,
		cfg:      cfg,
	}
}

func (r *HybridRetriever) Retrieve(ctx context.Context, intent domain.SearchIntent) ([]domain.ScoredMatch, error) {
	started := time.Now()
	query := strings.TrimSpace(intent.VectorQuery)
	if query == "" {
		return nil, domain.WrapError(domain.ErrRetrieval, "retrieve", errors.New("empty vector query"))
	}

	filter, err := TranslateFilters(intent.MetadataFilters)
	if err != nil {
		return nil, err
	}

	dense, sparse, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	topK := intent.TopK
	if topK <= 0 {
		topK = r.cfg.DefaultTopK
	}
	candidates := topK
	if r.reranker != nil && r.cfg.RerankTopN > candidates {
		candidates = r.cfg.RerankTopN
	}

	hq := domain.HybridQuery{
		Dense:  dense,
		Sparse: sparse,
		TopK:   candidates,
	}
	if r.cfg.ApplyMetadataFilter {
		hq.Filter = filter
	} else if !filter.IsEmpty() {
		slog.Info("retrieval_filter_skipped", "filter", filter.PineconeMap())
	}

	matches, err := r.index.HybridQuery(ctx, hq)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrieval, "hybrid query", err)
	}

	if r.reranker != nil && len(matches) > 0 {
		limit := topK
		if r.cfg.RerankTopN > 0 && r.cfg.RerankTopN < limit {
			limit = r.cfg.RerankTopN
		}
		reranked, err := r.reranker.Rerank(ctx, query, matches, limit)
		if err != nil {
			return nil, domain.WrapError(domain.ErrRetrieval, "rerank", err)
		}
		matches = reranked
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}

	slog.Info("retrieval_done",
		"vector_query", query,
		"filter", filter.PineconeMap(),
		"filter_applied", r.cfg.ApplyMetadataFilter && !filter.IsEmpty(),
		"top_k", topK,
		"matches", len(matches),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return matches, nil
}

// embedQuery computes the dense and sparse query vectors concurrently.
// A single empty side is tolerated; both empty is an error.
func (r *HybridRetriever) embedQuery(ctx context.Context, query string) ([]float32, domain.SparseVector, error) {
	var (
		dense  []float32
		sparse domain.SparseVector
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vec, err := r.dense.EmbedQuery(gctx, query)
		if err != nil {
			return domain.WrapError(domain.ErrRetrieval, "embed dense query", err)
		}
		dense = vec
		return nil
	})
	g.Go(func() error {
		sparse = r.sparse.EncodeQuery(query)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, domain.SparseVector{}, err
	}

	switch {
	case len(dense) == 0 && sparse.IsEmpty():
		return nil, domain.SparseVector{}, domain.WrapError(domain.ErrRetrieval, "embed query", errors.New("empty query embeddings"))
	case len(dense) == 0:
		slog.Warn("retrieval_degraded", "missing", "dense", "vector_query", query)
	case sparse.IsEmpty():
		slog.Warn("retrieval_degraded", "missing", "sparse", "vector_query", query)
	}
	return dense, sparse, nil
}
