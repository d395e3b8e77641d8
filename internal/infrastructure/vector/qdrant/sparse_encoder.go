package qdrant

import (
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
)

const (
	docBM25K1      = 1.2
	queryBM25K     = 1.2
	maxSparseTerms = 256
)

// stopwords carry no signal for product lookups and would dominate short queries.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "for": {}, "i": {}, "in": {}, "is": {},
	"it": {}, "me": {}, "of": {}, "on": {}, "or": {}, "please": {}, "show": {},
	"some": {}, "the": {}, "to": {}, "with": {}, "want": {}, "need": {}, "any": {},
}

// SparseEncoder builds hashed BM25-saturated term vectors. Indices are
// FNV-1a hashes of lowercased alphanumeric tokens, so document and query
// encodings share one vocabulary without a trained model.
type SparseEncoder struct{}

func NewSparseEncoder() SparseEncoder {
	return SparseEncoder{}
}

func (SparseEncoder) EncodeDocument(text string) domain.SparseVector {
	termFreq := make(map[uint32]float64, 64)
	appendTermFreq(termFreq, tokenizeAlphaNum(text), 1.0)
	return termFreqToSparse(termFreq, docBM25K1)
}

func (SparseEncoder) EncodeQuery(query string) domain.SparseVector {
	termFreq := make(map[uint32]float64, 32)
	appendTermFreq(termFreq, tokenizeAlphaNum(query), 1.0)
	return termFreqToSparse(termFreq, queryBM25K)
}

func appendTermFreq(dst map[uint32]float64, tokens []string, tokenWeight float64) {
	for _, token := range tokens {
		if token == "" {
			continue
		}
		if _, stop := stopwords[token]; stop {
			continue
		}
		dst[hashToken(token)] += tokenWeight
	}
}

// termFreqToSparse keeps the maxSparseTerms heaviest terms and returns them
// sorted by index.
func termFreqToSparse(tf map[uint32]float64, k float64) domain.SparseVector {
	if len(tf) == 0 {
		return domain.SparseVector{}
	}
	indices := make([]uint32, 0, len(tf))
	for idx := range tf {
		indices = append(indices, idx)
	}
	if len(indices) > maxSparseTerms {
		sort.Slice(indices, func(i, j int) bool {
			if tf[indices[i]] != tf[indices[j]] {
				return tf[indices[i]] > tf[indices[j]]
			}
			return indices[i] < indices[j]
		})
		indices = indices[:maxSparseTerms]
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	values := make([]float32, 0, len(indices))
	for _, idx := range indices {
		tfValue := tf[idx]
		weight := (tfValue * (k + 1.0)) / (tfValue + k)
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			weight = 0
		}
		values = append(values, float32(weight))
	}

	return domain.SparseVector{Indices: indices, Values: values}
}

func hashToken(token string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	sum := h.Sum32()
	if sum == 0 {
		return 1
	}
	return sum
}

func tokenizeAlphaNum(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 24)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
