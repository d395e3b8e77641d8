// Package openai adapts the OpenAI chat and embedding APIs (and compatible
// servers) to the assistant ports.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
	"github.com/kirillkom/product-search-assistant/internal/infrastructure/resilience"
)

type Config struct {
	APIKey     string
	BaseURL    string
	ChatModel  string
	EmbedModel string
	Timeout    time.Duration
}

type Client struct {
	sdk        sdk.Client
	chatModel  string
	embedModel string
	executor   *resilience.Executor
}

// New builds a client. Retries are left to the executor, so the SDK's own
// retry loop is disabled.
func New(cfg Config, executor *resilience.Executor) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &Client{
		sdk:        sdk.NewClient(opts...),
		chatModel:  cfg.ChatModel,
		embedModel: cfg.EmbedModel,
		executor:   executor,
	}
}

type ChatModel struct {
	client *Client
}

func NewChatModel(client *Client) *ChatModel {
	return &ChatModel{client: client}
}

func (m *ChatModel) Complete(ctx context.Context, req domain.ChatRequest) (string, error) {
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(m.client.chatModel),
		Messages: toMessages(req.Messages),
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(int64(req.MaxTokens))
	}
	if req.JSONResponse {
		params.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	const op = "openai_chat"
	completion, err := resilience.Call(ctx, m.client.executor, op, func(callCtx context.Context) (*sdk.ChatCompletion, error) {
		out, err := m.client.sdk.Chat.Completions.New(callCtx, params)
		return out, normalizeAPIError("chat", err)
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return "", resilience.UpstreamError(op, err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("openai chat returned no choices")
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

func toMessages(messages []domain.ChatMessage) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case domain.ChatSystem:
			out = append(out, sdk.SystemMessage(msg.Content))
		case domain.ChatAssistant:
			out = append(out, sdk.AssistantMessage(msg.Content))
		default:
			out = append(out, sdk.UserMessage(msg.Content))
		}
	}
	return out
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Model() string {
	return e.client.embedModel
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	params := sdk.EmbeddingNewParams{
		Model: sdk.EmbeddingModel(e.client.embedModel),
		Input: sdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}

	const op = "openai_embed"
	resp, err := resilience.Call(ctx, e.client.executor, op, func(callCtx context.Context) (*sdk.CreateEmbeddingResponse, error) {
		out, err := e.client.sdk.Embeddings.New(callCtx, params)
		return out, normalizeAPIError("embed", err)
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.UpstreamError(op, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, 0, len(data))
	for _, d := range data {
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out = append(out, vec)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errors.New("empty embedding result")
	}
	return vectors[0], nil
}

// normalizeAPIError turns SDK status errors into resilience.HTTPStatusError
// so the shared classifier and upstream marking apply.
func normalizeAPIError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return &resilience.HTTPStatusError{
			Service:    "openai",
			Operation:  operation,
			StatusCode: apiErr.StatusCode,
			Status:     fmt.Sprintf("%d %s", apiErr.StatusCode, http.StatusText(apiErr.StatusCode)),
			Body:       apiErr.Message,
		}
	}
	return err
}
