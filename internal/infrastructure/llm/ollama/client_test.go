package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
	"github.com/kirillkom/product-search-assistant/internal/infrastructure/resilience"
)

func TestChatModelSendsMessagesAndOptions(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"  {\"vector_query\":\"brie\"}  "}}`))
	}))
	defer server.Close()

	model := NewChatModel(New(server.URL, "llama3", "nomic", nil))
	out, err := model.Complete(context.Background(), domain.ChatRequest{
		Messages: []domain.ChatMessage{
			{Role: domain.ChatSystem, Content: "system"},
			{Role: domain.ChatUser, Content: "user"},
		},
		JSONResponse: true,
		Temperature:  domain.Float(0),
		MaxTokens:    64,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if out != `{"vector_query":"brie"}` {
		t.Fatalf("unexpected output %q", out)
	}
	if payload["model"] != "llama3" || payload["format"] != "json" || payload["stream"] != false {
		t.Fatalf("unexpected payload %v", payload)
	}
	messages := payload["messages"].([]any)
	if len(messages) != 2 || messages[0].(map[string]any)["role"] != "system" {
		t.Fatalf("unexpected messages %v", messages)
	}
	options := payload["options"].(map[string]any)
	if options["temperature"] != 0.0 || options["num_predict"] != 64.0 {
		t.Fatalf("unexpected options %v", options)
	}
}

func TestChatModelOmitsFormatForProse(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{"message":{"content":"hello"}}`))
	}))
	defer server.Close()

	model := NewChatModel(New(server.URL, "llama3", "nomic", nil))
	if _, err := model.Complete(context.Background(), domain.ChatRequest{Messages: []domain.ChatMessage{{Role: domain.ChatUser, Content: "hi"}}}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if _, ok := payload["format"]; ok {
		t.Fatalf("format must be omitted, got %v", payload)
	}
	if _, ok := payload["options"]; ok {
		t.Fatalf("options must be omitted, got %v", payload)
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "gen", "embed", resilience.NewExecutor(resilience.DefaultConfig().QueryPath())))
	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrUpstream) {
		t.Fatalf("expected upstream kind, got %v", err)
	}
}

func TestEmbedQueryReturnsFirstVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.5,0.25]]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "gen", "embed", nil))
	vec, err := embedder.EmbedQuery(context.Background(), "brie")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.5 {
		t.Fatalf("unexpected vector %v", vec)
	}
	if embedder.Model() != "embed" {
		t.Fatalf("unexpected model %q", embedder.Model())
	}
}

func TestEmbedRejectsVectorCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[0.5]]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "gen", "embed", nil))
	if _, err := embedder.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatalf("expected mismatch error")
	}
}
