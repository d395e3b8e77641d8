package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
	"github.com/kirillkom/product-search-assistant/internal/infrastructure/resilience"
)

// HTTPClient calls a cross-encoder rerank endpoint (Cohere/Jina/TEI style
// request shape) and replaces similarity scores with relevance scores.
type HTTPClient struct {
	url        string
	model      string
	field      string
	httpClient *http.Client
	executor   *resilience.Executor
}

func NewHTTPClient(url, model, field string, executor *resilience.Executor) *HTTPClient {
	if strings.TrimSpace(field) == "" {
		field = "chunk_text"
	}
	return &HTTPClient{
		url:        url,
		model:      model,
		field:      field,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		executor:   executor,
	}
}

type rerankRequest struct {
	Model           string   `json:"model"`
	Query           string   `json:"query"`
	Documents       []string `json:"documents"`
	TopN            int      `json:"top_n"`
	ReturnDocuments bool     `json:"return_documents"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

func (c *HTTPClient) Rerank(ctx context.Context, query string, matches []domain.ScoredMatch, topN int) ([]domain.ScoredMatch, error) {
	if len(matches) == 0 {
		return []domain.ScoredMatch{}, nil
	}
	if topN <= 0 || topN > len(matches) {
		topN = len(matches)
	}

	docs := make([]string, len(matches))
	for i, m := range matches {
		docs[i] = c.documentText(m.Product)
	}

	const op = "rerank"
	var resp rerankResponse
	err := c.executor.Execute(ctx, op, func(callCtx context.Context) error {
		return c.post(callCtx, rerankRequest{
			Model:     c.model,
			Query:     query,
			Documents: docs,
			TopN:      topN,
		}, &resp)
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.UpstreamError(op, err)
	}

	out := make([]domain.ScoredMatch, 0, len(resp.Results))
	seen := make(map[int]struct{}, len(resp.Results))
	for _, r := range resp.Results {
		if r.Index < 0 || r.Index >= len(matches) {
			return nil, fmt.Errorf("rerank result index %d out of range", r.Index)
		}
		if _, dup := seen[r.Index]; dup {
			continue
		}
		seen[r.Index] = struct{}{}
		out = append(out, domain.ScoredMatch{Product: matches[r.Index].Product, Score: r.RelevanceScore})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}

// documentText prefers the configured field and falls back to the display name.
func (c *HTTPClient) documentText(p domain.ProductRecord) string {
	if text, ok := p.TextField(c.field); ok && strings.TrimSpace(text) != "" {
		return text
	}
	name, _ := p.DisplayName()
	return name
}

func (c *HTTPClient) post(ctx context.Context, payload rerankRequest, out *rerankResponse) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal rerank request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.NewHTTPStatusError("reranker", "rerank", resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode rerank response: %w", err)
	}
	return nil
}
