package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
	"github.com/kirillkom/product-search-assistant/internal/core/ports"
)

type PlannerConfig struct {
	SystemPrompt string
	Instructions string
	DefaultTopK  int
	MaxTopK      int
}

// QueryPlanner turns free-form user text into a SearchIntent with one model call.
type QueryPlanner struct {
	model ports.ChatModel
	cfg   PlannerConfig
}

func NewQueryPlanner(model ports.ChatModel, cfg PlannerConfig) *QueryPlanner {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 5
	}
	if cfg.MaxTopK < cfg.DefaultTopK {
		cfg.MaxTopK = cfg.DefaultTopK
	}
	return &QueryPlanner{model: model, cfg: cfg}
}

func (p *QueryPlanner) Plan(ctx context.Context, userText string) (domain.SearchIntent, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return domain.SearchIntent{}, domain.WrapError(
			domain.ErrPlanning,
			"plan query",
			domain.WrapError(domain.ErrInvalidInput, "plan query", errors.New("empty user text")),
		)
	}

	raw, err := p.model.Complete(ctx, domain.ChatRequest{
		Messages: []domain.ChatMessage{
			{Role: domain.ChatSystem, Content: p.cfg.SystemPrompt},
			{Role: domain.ChatUser, Content: p.buildPrompt(userText)},
		},
		JSONResponse: true,
		Temperature:  domain.Float(0),
	})
	if err != nil {
		return domain.SearchIntent{}, domain.WrapError(domain.ErrPlanning, "plan query", err)
	}

	intent, err := p.parseIntent(raw)
	if err != nil {
		return domain.SearchIntent{}, domain.WrapError(domain.ErrPlanning, "parse intent", err)
	}

	slog.Debug("planner_intent",
		"vector_query", intent.VectorQuery,
		"metadata_filters", intent.MetadataFilters,
		"top_k", intent.TopK,
	)
	return intent, nil
}

func (p *QueryPlanner) buildPrompt(userText string) string {
	return fmt.Sprintf("Based on this user query: \"%s\"\n\n%s", userText, strings.TrimSpace(p.cfg.Instructions))
}

type rawIntent struct {
	VectorQuery     *string         `json:"vector_query"`
	MetadataFilters json.RawMessage `json:"metadata_filters"`
	TopK            json.RawMessage `json:"top_k"`
}

func (p *QueryPlanner) parseIntent(raw string) (domain.SearchIntent, error) {
	var decoded rawIntent
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &decoded); err != nil {
		return domain.SearchIntent{}, fmt.Errorf("decode planner json: %w", err)
	}
	if decoded.VectorQuery == nil || strings.TrimSpace(*decoded.VectorQuery) == "" {
		return domain.SearchIntent{}, errors.New("planner output has no vector_query")
	}

	filters := map[string]any{}
	if len(decoded.MetadataFilters) > 0 && string(decoded.MetadataFilters) != "null" {
		if err := json.Unmarshal(decoded.MetadataFilters, &filters); err != nil {
			return domain.SearchIntent{}, fmt.Errorf("metadata_filters must be an object: %w", err)
		}
	}

	topK, err := parseTopK(decoded.TopK)
	if err != nil {
		return domain.SearchIntent{}, err
	}

	return domain.SearchIntent{
		VectorQuery:     strings.TrimSpace(*decoded.VectorQuery),
		MetadataFilters: filters,
		TopK:            p.clampTopK(topK),
	}, nil
}

func (p *QueryPlanner) clampTopK(topK int) int {
	if topK <= 0 {
		return p.cfg.DefaultTopK
	}
	if topK > p.cfg.MaxTopK {
		return p.cfg.MaxTopK
	}
	return topK
}

// parseTopK accepts integral numbers and numeric strings. Absent or null
// yields 0, which the caller replaces with the default.
func parseTopK(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, fmt.Errorf("decode top_k: %w", err)
	}

	var n float64
	switch v := value.(type) {
	case float64:
		n = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("top_k is not numeric: %q", v)
		}
		n = parsed
	default:
		return 0, fmt.Errorf("top_k has unsupported type %T", value)
	}

	if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
		return 0, fmt.Errorf("top_k is not an integer: %v", n)
	}
	if n > math.MaxInt32 {
		n = math.MaxInt32
	}
	return int(n), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
