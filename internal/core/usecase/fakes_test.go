package usecase

import (
	"context"
	"strings"
	"sync"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
)

type chatModelFake struct {
	mu       sync.Mutex
	response string
	err      error
	requests []domain.ChatRequest
}

func (f *chatModelFake) Complete(_ context.Context, req domain.ChatRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *chatModelFake) lastRequest() domain.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return domain.ChatRequest{}
	}
	return f.requests[len(f.requests)-1]
}

type denseEmbedderFake struct {
	vector []float32
	err    error
	query  string
}

func (f *denseEmbedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for range texts {
		out = append(out, f.vector)
	}
	return out, f.err
}

func (f *denseEmbedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.query = text
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type sparseEmbedderFake struct {
	vector domain.SparseVector
}

func (f sparseEmbedderFake) EncodeDocument(string) domain.SparseVector { return f.vector }
func (f sparseEmbedderFake) EncodeQuery(string) domain.SparseVector    { return f.vector }

type productIndexFake struct {
	matches []domain.ScoredMatch
	err     error
	queries []domain.HybridQuery
	upserts [][]domain.IndexedProduct
}

func (f *productIndexFake) Upsert(_ context.Context, products []domain.IndexedProduct) error {
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, products)
	return nil
}

func (f *productIndexFake) HybridQuery(_ context.Context, q domain.HybridQuery) ([]domain.ScoredMatch, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.ScoredMatch, 0, len(f.matches))
	for _, m := range f.matches {
		if !q.Filter.IsEmpty() && !q.Filter.Matches(m.Product) {
			continue
		}
		out = append(out, m)
	}
	if q.TopK > 0 && len(out) > q.TopK {
		out = out[:q.TopK]
	}
	return out, nil
}

func product(id, name string, price float64) domain.ProductRecord {
	return domain.ProductRecord{
		ID:        id,
		Name:      domain.Text(name),
		Price:     domain.Float(price),
		ChunkText: domain.Text(strings.ToLower(name)),
	}
}
