package memory

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
	"github.com/kirillkom/product-search-assistant/internal/core/usecase"
	"github.com/kirillkom/product-search-assistant/internal/infrastructure/chunking"
	"github.com/kirillkom/product-search-assistant/internal/infrastructure/vector/qdrant"
)

var vocabulary = []string{"cheddar", "sharp", "mild", "brie", "gouda", "swiss", "feta", "mozzarella"}

// keywordEmbedder maps text to normalized keyword counts over a tiny vocabulary.
type keywordEmbedder struct{}

func (keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, keywordVector(t))
	}
	return out, nil
}

func (keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return keywordVector(text), nil
}

func keywordVector(text string) []float32 {
	lowered := strings.ToLower(text)
	vec := make([]float32, len(vocabulary))
	var norm float64
	for i, word := range vocabulary {
		n := float64(strings.Count(lowered, word))
		vec[i] = float32(n)
		norm += n * n
	}
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / math.Sqrt(norm))
	}
	return vec
}

func cheese(id, name, category string, price float64) domain.ProductRecord {
	return domain.ProductRecord{
		ID:         id,
		Name:       domain.Text(name),
		Brand:      domain.Text("Dairy Co"),
		Categories: domain.Text("Cheese / " + category),
		Price:      domain.Float(price),
		Status:     domain.Text("In Stock"),
	}
}

func fixtureCorpus() []domain.ProductRecord {
	return []domain.ProductRecord{
		cheese("ch-1", "Sharp Cheddar Block", "Cheddar", 5),
		cheese("ch-2", "Mild Cheddar Shredded", "Cheddar", 8),
		cheese("ch-3", "Extra Sharp Cheddar Loaf", "Cheddar", 12),
		cheese("ch-4", "White Cheddar Sliced", "Cheddar", 20),
		cheese("ch-5", "Aged Cheddar Wheel", "Cheddar", 15),
		cheese("ot-1", "Double Cream Brie", "Brie", 9),
		cheese("ot-2", "Smoked Gouda", "Gouda", 11),
		cheese("ot-3", "Baby Swiss Sliced", "Swiss", 7),
		cheese("ot-4", "Greek Feta Crumbles", "Feta", 6),
		cheese("ot-5", "Fresh Mozzarella Balls", "Mozzarella", 10),
	}
}

func seededRetriever(t *testing.T, products []domain.ProductRecord, applyFilter bool) (*usecase.HybridRetriever, *Index) {
	t.Helper()
	index := New(Options{})
	sparse := qdrant.NewSparseEncoder()
	indexer := usecase.NewCatalogProcessUseCase(nil, nil, nil, chunking.NewProductChunkBuilder(), keywordEmbedder{}, sparse, index, 4)
	n, err := indexer.IndexProducts(context.Background(), products)
	if err != nil {
		t.Fatalf("IndexProducts() error = %v", err)
	}
	if n != len(products) {
		t.Fatalf("expected %d indexed products, got %d", len(products), n)
	}
	return usecase.NewHybridRetriever(keywordEmbedder{}, sparse, index, nil, usecase.RetrieverConfig{ApplyMetadataFilter: applyFilter}), index
}

func TestCheddarQueryReturnsOnlyCheddarInScoreOrder(t *testing.T) {
	retriever, _ := seededRetriever(t, fixtureCorpus(), true)

	matches, err := retriever.Retrieve(context.Background(), domain.SearchIntent{
		VectorQuery:     "sharp cheddar",
		MetadataFilters: map[string]any{},
		TopK:            3,
	})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(matches) == 0 || len(matches) > 3 {
		t.Fatalf("expected 1..3 matches, got %d", len(matches))
	}
	for i, m := range matches {
		if !strings.HasPrefix(m.Product.ID, "ch-") {
			t.Fatalf("match %d is not cheddar: %s", i, m.Product.ID)
		}
		if i > 0 && m.Score > matches[i-1].Score {
			t.Fatalf("scores not descending at %d", i)
		}
	}
}

func TestPriceCeilingFilterKeepsCheaperRecords(t *testing.T) {
	products := []domain.ProductRecord{
		cheese("p-5", "Cheddar Five", "Cheddar", 5),
		cheese("p-8", "Cheddar Eight", "Cheddar", 8),
		cheese("p-12", "Cheddar Twelve", "Cheddar", 12),
		cheese("p-20", "Cheddar Twenty", "Cheddar", 20),
	}
	retriever, _ := seededRetriever(t, products, true)

	matches, err := retriever.Retrieve(context.Background(), domain.SearchIntent{
		VectorQuery:     "cheddar",
		MetadataFilters: map[string]any{"price": map[string]any{"max": 10}},
		TopK:            10,
	})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	for _, m := range matches {
		if *m.Product.Price > 10 {
			t.Fatalf("record %s priced %v exceeds ceiling", m.Product.ID, *m.Product.Price)
		}
	}
}

func TestCategorySegmentAndBrandFiltersIgnoreCase(t *testing.T) {
	retriever, _ := seededRetriever(t, fixtureCorpus(), true)

	matches, err := retriever.Retrieve(context.Background(), domain.SearchIntent{
		VectorQuery:     "cheddar brie gouda",
		MetadataFilters: map[string]any{"categories": "CHEDDAR", "brand": "dairy co"},
		TopK:            10,
	})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(matches) != 5 {
		t.Fatalf("expected the 5 cheddar records, got %d", len(matches))
	}
	for _, m := range matches {
		if !strings.HasPrefix(m.Product.ID, "ch-") {
			t.Fatalf("category filter let %s through", m.Product.ID)
		}
	}
}

func TestIndexedRecordIsFoundByItsOwnName(t *testing.T) {
	corpus := fixtureCorpus()
	retriever, index := seededRetriever(t, corpus, true)
	if index.Len() != len(corpus) {
		t.Fatalf("expected %d entries, got %d", len(corpus), index.Len())
	}

	for _, p := range corpus {
		name := *p.Name
		matches, err := retriever.Retrieve(context.Background(), domain.SearchIntent{VectorQuery: name, TopK: 1})
		if err != nil {
			t.Fatalf("Retrieve(%q) error = %v", name, err)
		}
		if len(matches) != 1 || matches[0].Product.ID != p.ID {
			t.Fatalf("Retrieve(%q) = %+v, want %s", name, matches, p.ID)
		}
		got := matches[0].Product
		if *got.Price != *p.Price || *got.Name != name || got.ChunkText == nil {
			t.Fatalf("payload not preserved for %s: %+v", p.ID, got)
		}
	}
}

func TestUpsertOverwritesByID(t *testing.T) {
	index := New(Options{})
	ctx := context.Background()
	first := domain.IndexedProduct{Product: cheese("a", "Brie", "Brie", 5), Dense: []float32{1, 0}}
	second := domain.IndexedProduct{Product: cheese("a", "Brie", "Brie", 6), Dense: []float32{1, 0}}

	if err := index.Upsert(ctx, []domain.IndexedProduct{first}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := index.Upsert(ctx, []domain.IndexedProduct{second}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if index.Len() != 1 {
		t.Fatalf("expected one entry, got %d", index.Len())
	}
	matches, _ := index.HybridQuery(ctx, domain.HybridQuery{Dense: []float32{1, 0}, TopK: 5})
	if *matches[0].Product.Price != 6 {
		t.Fatalf("expected overwritten payload, got %v", *matches[0].Product.Price)
	}
}

func TestDimensionMismatchIsRejected(t *testing.T) {
	index := New(Options{})
	ctx := context.Background()
	if err := index.Upsert(ctx, []domain.IndexedProduct{{Product: cheese("a", "A", "Brie", 1), Dense: []float32{1, 0}}}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	err := index.Upsert(ctx, []domain.IndexedProduct{{Product: cheese("b", "B", "Brie", 1), Dense: []float32{1, 0, 0}}})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input on upsert, got %v", err)
	}
	_, err = index.HybridQuery(ctx, domain.HybridQuery{Dense: []float32{1}, TopK: 1})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input on query, got %v", err)
	}
}

func TestRRFFusionMergesRanks(t *testing.T) {
	index := New(Options{Fusion: FusionRRF, RRFK: 60})
	ctx := context.Background()
	sv := func(idx uint32, v float32) domain.SparseVector {
		return domain.SparseVector{Indices: []uint32{idx}, Values: []float32{v}}
	}
	err := index.Upsert(ctx, []domain.IndexedProduct{
		{Product: domain.ProductRecord{ID: "dense-only"}, Dense: []float32{1, 0}},
		{Product: domain.ProductRecord{ID: "both"}, Dense: []float32{0.5, 0}, Sparse: sv(7, 0.5)},
		{Product: domain.ProductRecord{ID: "sparse-only"}, Dense: []float32{0, 1}, Sparse: sv(7, 1)},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	matches, err := index.HybridQuery(ctx, domain.HybridQuery{Dense: []float32{1, 0}, Sparse: sv(7, 1), TopK: 3})
	if err != nil {
		t.Fatalf("HybridQuery() error = %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matches))
	}
	if matches[0].Product.ID != "both" {
		t.Fatalf("expected record ranked in both lists first, got %s", matches[0].Product.ID)
	}
	want := 2.0 / 62.0
	if math.Abs(matches[0].Score-want) > 1e-9 {
		t.Fatalf("unexpected fused score %v, want %v", matches[0].Score, want)
	}
	if got := fmt.Sprint(matches[1].Product.ID, ",", matches[2].Product.ID); got != "dense-only,sparse-only" {
		t.Fatalf("unexpected tie order %s", got)
	}
}
