package usecase

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
)

// LexicalReranker rescores the head of a candidate list with a cheap
// lexical heuristic: normalized index score, query-token overlap with the
// rank field, and a hit on the product name.
type LexicalReranker struct {
	field string
}

func NewLexicalReranker(field string) *LexicalReranker {
	if strings.TrimSpace(field) == "" {
		field = "chunk_text"
	}
	return &LexicalReranker{field: field}
}

func (r *LexicalReranker) Rerank(_ context.Context, query string, matches []domain.ScoredMatch, topN int) ([]domain.ScoredMatch, error) {
	return rerankLexical(query, matches, r.field, topN), nil
}

func rerankLexical(query string, matches []domain.ScoredMatch, field string, topN int) []domain.ScoredMatch {
	if len(matches) == 0 {
		return matches
	}
	if topN <= 0 || topN > len(matches) {
		topN = len(matches)
	}

	head := make([]domain.ScoredMatch, len(matches))
	copy(head, matches)
	queryTokens := toTokenSet(query)

	minScore := head[0].Score
	maxScore := head[0].Score
	for _, m := range head[1:] {
		if m.Score < minScore {
			minScore = m.Score
		}
		if m.Score > maxScore {
			maxScore = m.Score
		}
	}

	rangeScore := maxScore - minScore
	normalize := func(v float64) float64 {
		if rangeScore <= 0 {
			if v > 0 {
				return 1
			}
			return 0
		}
		return (v - minScore) / rangeScore
	}

	for i := range head {
		text, _ := head[i].Product.TextField(field)
		name, _ := head[i].Product.DisplayName()
		normalized := normalize(head[i].Score)
		overlap := tokenOverlap(queryTokens, toTokenSet(text))
		nameBoost := nameTokenHit(queryTokens, name)
		head[i].Score = 0.60*normalized + 0.30*overlap + 0.10*nameBoost
	}

	// Ties keep the backend order.
	sort.SliceStable(head, func(i, j int) bool {
		return head[i].Score > head[j].Score
	})

	return head[:topN]
}

// PassthroughReranker keeps the index order and only caps the list.
type PassthroughReranker struct{}

func (PassthroughReranker) Rerank(_ context.Context, _ string, matches []domain.ScoredMatch, topN int) ([]domain.ScoredMatch, error) {
	if topN <= 0 || len(matches) <= topN {
		return matches, nil
	}
	return matches[:topN], nil
}

func tokenOverlap(query, text map[string]struct{}) float64 {
	if len(query) == 0 || len(text) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := text[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func nameTokenHit(query map[string]struct{}, name string) float64 {
	if len(query) == 0 || name == "" {
		return 0
	}
	name = strings.ToLower(name)
	for token := range query {
		if token == "" {
			continue
		}
		if strings.Contains(name, token) {
			return 1
		}
	}
	return 0
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
