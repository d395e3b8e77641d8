// Package memory is an in-process hybrid product index used for local runs
// and fixtures.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
)

type Fusion string

const (
	// FusionDotProduct scores a record as dense·dense + sparse·sparse.
	FusionDotProduct Fusion = "dotproduct"
	// FusionRRF ranks dense and sparse results separately and merges the
	// ranks with reciprocal rank fusion.
	FusionRRF Fusion = "rrf"
)

type Options struct {
	Fusion Fusion
	RRFK   int
}

type entry struct {
	product domain.ProductRecord
	dense   []float32
	sparse  domain.SparseVector
}

type Index struct {
	fusion Fusion
	rrfK   int

	mu      sync.RWMutex
	dim     int
	entries map[string]*entry
	// order keeps first-insertion order so ties resolve the same way on every query.
	order []string
}

func New(opts Options) *Index {
	if opts.Fusion == "" {
		opts.Fusion = FusionDotProduct
	}
	if opts.RRFK <= 0 {
		opts.RRFK = 60
	}
	return &Index{
		fusion:  opts.Fusion,
		rrfK:    opts.RRFK,
		entries: make(map[string]*entry),
	}
}

func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

func (i *Index) Upsert(_ context.Context, products []domain.IndexedProduct) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, p := range products {
		if p.Product.ID == "" {
			return domain.WrapError(domain.ErrInvalidInput, "memory upsert", fmt.Errorf("product without id"))
		}
		if len(p.Dense) > 0 {
			if i.dim == 0 {
				i.dim = len(p.Dense)
			} else if len(p.Dense) != i.dim {
				return domain.WrapError(domain.ErrInvalidInput, "memory upsert",
					fmt.Errorf("dense dimension %d does not match index dimension %d", len(p.Dense), i.dim))
			}
		}
		if _, exists := i.entries[p.Product.ID]; !exists {
			i.order = append(i.order, p.Product.ID)
		}
		i.entries[p.Product.ID] = &entry{
			product: p.Product,
			dense:   append([]float32(nil), p.Dense...),
			sparse:  p.Sparse,
		}
	}
	return nil
}

func (i *Index) HybridQuery(_ context.Context, q domain.HybridQuery) ([]domain.ScoredMatch, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if len(q.Dense) > 0 && i.dim > 0 && len(q.Dense) != i.dim {
		return nil, domain.WrapError(domain.ErrInvalidInput, "memory query",
			fmt.Errorf("query dimension %d does not match index dimension %d", len(q.Dense), i.dim))
	}

	candidates := make([]*entry, 0, len(i.order))
	for _, id := range i.order {
		e := i.entries[id]
		if q.Filter.Matches(e.product) {
			candidates = append(candidates, e)
		}
	}

	var out []domain.ScoredMatch
	if i.fusion == FusionRRF {
		out = i.fuseRRF(candidates, q)
	} else {
		out = make([]domain.ScoredMatch, 0, len(candidates))
		for _, e := range candidates {
			out = append(out, domain.ScoredMatch{
				Product: e.product,
				Score:   dotDense(q.Dense, e.dense) + q.Sparse.Dot(e.sparse),
			})
		}
		sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	}

	if q.TopK > 0 && len(out) > q.TopK {
		out = out[:q.TopK]
	}
	return out, nil
}

type fusedCandidate struct {
	product domain.ProductRecord
	score   float64
}

func (i *Index) fuseRRF(candidates []*entry, q domain.HybridQuery) []domain.ScoredMatch {
	acc := make(map[string]fusedCandidate, len(candidates))
	addList := func(ranked []domain.ScoredMatch) {
		for rank, m := range ranked {
			c := acc[m.Product.ID]
			c.product = m.Product
			c.score += 1.0 / float64(i.rrfK+rank+1)
			acc[m.Product.ID] = c
		}
	}

	if len(q.Dense) > 0 {
		addList(rankBy(candidates, func(e *entry) float64 { return dotDense(q.Dense, e.dense) }))
	}
	if !q.Sparse.IsEmpty() {
		addList(rankBy(candidates, func(e *entry) float64 { return q.Sparse.Dot(e.sparse) }))
	}

	out := make([]domain.ScoredMatch, 0, len(acc))
	for _, c := range acc {
		out = append(out, domain.ScoredMatch{Product: c.product, Score: c.score})
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		return out[a].Product.ID < out[b].Product.ID
	})
	return out
}

// rankBy orders candidates by score and drops those with no similarity at all.
func rankBy(candidates []*entry, score func(*entry) float64) []domain.ScoredMatch {
	out := make([]domain.ScoredMatch, 0, len(candidates))
	for _, e := range candidates {
		if s := score(e); s > 0 {
			out = append(out, domain.ScoredMatch{Product: e.product, Score: s})
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	return out
}

func dotDense(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for k := 0; k < n; k++ {
		sum += float64(a[k]) * float64(b[k])
	}
	return sum
}
