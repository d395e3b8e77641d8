package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
	"github.com/kirillkom/product-search-assistant/internal/infrastructure/resilience"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "sparse"
)

// pointNamespace seeds deterministic point ids so that re-importing a product
// overwrites its point instead of adding a duplicate.
var pointNamespace = uuid.MustParse("6f1d1c8e-8a4e-4b8f-9d55-0c6f3b7d2a11")

type Fusion string

const (
	FusionRRF  Fusion = "rrf"
	FusionDBSF Fusion = "dbsf"
)

type Options struct {
	Fusion   Fusion
	Timeout  time.Duration
	Executor *resilience.Executor
}

// Client stores products in one collection with a named dense vector and a
// named sparse vector, and runs fused hybrid queries against it.
type Client struct {
	baseURL    string
	collection string
	fusion     Fusion
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string, opts Options) *Client {
	fusion := opts.Fusion
	if fusion != FusionDBSF {
		fusion = FusionRRF
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		fusion:     fusion,
		httpClient: &http.Client{Timeout: timeout},
		executor:   opts.Executor,
	}
}

// PointID maps a product id onto its stable point id.
func PointID(productID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(productID)).String()
}

// Ping checks that the collection endpoint answers. A missing collection is
// not an error; it is created on first upsert.
func (c *Client) Ping(ctx context.Context) error {
	url := fmt.Sprintf("%s/collections/%s/exists", c.baseURL, c.collection)
	return c.do(ctx, "qdrant.ping", http.MethodGet, url, nil, nil)
}

type sparsePayload struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

type point struct {
	ID      string         `json:"id"`
	Vector  map[string]any `json:"vector"`
	Payload pointPayload   `json:"payload"`
}

// pointPayload is the stored record plus the terms equality filters match on.
type pointPayload struct {
	*domain.ProductRecord
	FilterTerms map[string][]string `json:"filter_terms,omitempty"`
}

func (c *Client) Upsert(ctx context.Context, products []domain.IndexedProduct) error {
	if len(products) == 0 {
		return nil
	}
	vectorSize := 0
	for _, p := range products {
		if len(p.Dense) > 0 {
			vectorSize = len(p.Dense)
			break
		}
	}
	if vectorSize == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "qdrant upsert", errors.New("products have no dense vectors"))
	}
	if err := c.ensureCollection(ctx, vectorSize); err != nil {
		return err
	}

	points := make([]point, 0, len(products))
	for i := range products {
		p := products[i]
		if len(p.Dense) != vectorSize {
			return domain.WrapError(domain.ErrInvalidInput, "qdrant upsert", fmt.Errorf("product %s has dense size %d, want %d", p.Product.ID, len(p.Dense), vectorSize))
		}
		vector := map[string]any{denseVectorName: p.Dense}
		if !p.Sparse.IsEmpty() {
			vector[sparseVectorName] = sparsePayload{Indices: p.Sparse.Indices, Values: p.Sparse.Values}
		}
		points = append(points, point{
			ID:      PointID(p.Product.ID),
			Vector:  vector,
			Payload: pointPayload{
				ProductRecord: &products[i].Product,
				FilterTerms:   products[i].Product.FilterTermIndex(),
			},
		})
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	return c.do(ctx, "qdrant.upsert", http.MethodPut, url, map[string]any{"points": points}, nil)
}

func (c *Client) HybridQuery(ctx context.Context, q domain.HybridQuery) ([]domain.ScoredMatch, error) {
	if q.TopK <= 0 {
		q.TopK = 5
	}
	body, err := c.buildQueryBody(q)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result struct {
			Points []struct {
				ID      any                  `json:"id"`
				Score   float64              `json:"score"`
				Payload domain.ProductRecord `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/query", c.baseURL, c.collection)
	if err := c.do(ctx, "qdrant.query", http.MethodPost, url, body, &resp); err != nil {
		return nil, err
	}

	out := make([]domain.ScoredMatch, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		out = append(out, domain.ScoredMatch{Product: p.Payload, Score: p.Score})
	}
	return out, nil
}

// buildQueryBody prefetches each non-empty side and fuses them. With one side
// only, that side is queried directly.
func (c *Client) buildQueryBody(q domain.HybridQuery) (map[string]any, error) {
	filter := EncodeFilter(q.Filter)
	prefetchLimit := q.TopK * 4
	if prefetchLimit < 20 {
		prefetchLimit = 20
	}

	prefetch := make([]map[string]any, 0, 2)
	if len(q.Dense) > 0 {
		prefetch = append(prefetch, map[string]any{
			"query": q.Dense,
			"using": denseVectorName,
			"limit": prefetchLimit,
		})
	}
	if !q.Sparse.IsEmpty() {
		prefetch = append(prefetch, map[string]any{
			"query": sparsePayload{Indices: q.Sparse.Indices, Values: q.Sparse.Values},
			"using": sparseVectorName,
			"limit": prefetchLimit,
		})
	}

	body := map[string]any{
		"limit":        q.TopK,
		"with_payload": true,
	}
	switch len(prefetch) {
	case 0:
		return nil, domain.WrapError(domain.ErrInvalidInput, "qdrant query", errors.New("query has neither dense nor sparse vector"))
	case 1:
		body["query"] = prefetch[0]["query"]
		body["using"] = prefetch[0]["using"]
	default:
		if filter != nil {
			for _, p := range prefetch {
				p["filter"] = filter
			}
		}
		body["prefetch"] = prefetch
		body["query"] = map[string]any{"fusion": string(c.fusion)}
	}
	if filter != nil {
		body["filter"] = filter
	}
	return body, nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			denseVectorName: map[string]any{
				"size":     vectorSize,
				"distance": "Cosine",
			},
		},
		"sparse_vectors": map[string]any{
			sparseVectorName: map[string]any{},
		},
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	err := c.do(ctx, "qdrant.ensure_collection", http.MethodPut, url, reqBody, nil)
	var statusErr *resilience.HTTPStatusError
	// 409 when the collection already exists.
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
		err = nil
	}
	if err != nil {
		return err
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func (c *Client) do(ctx context.Context, operation, method, url string, payload any, out any) error {
	call := func(callCtx context.Context) error {
		return c.roundTrip(callCtx, operation, method, url, payload, out)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, operation, call, resilience.ClassifyHTTPError)
	} else {
		err = call(ctx)
	}
	return resilience.UpstreamError(operation, err)
}

func (c *Client) roundTrip(ctx context.Context, operation, method, url string, payload any, out any) error {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", operation, err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.NewHTTPStatusError("qdrant", operation, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
