package bootstrap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/product-search-assistant/internal/config"
	"github.com/kirillkom/product-search-assistant/internal/core/domain"
	"github.com/kirillkom/product-search-assistant/internal/core/usecase"
	"github.com/kirillkom/product-search-assistant/internal/infrastructure/resilience"
)

const seedCatalog = `[
  {"sku": "ch-1", "product_name": "Sharp Cheddar Block", "categories": "Cheese / Cheddar", "price": "$5.00"},
  {"sku": "ch-2", "product_name": "Mild Cheddar Shredded", "categories": "Cheese / Cheddar", "price": "$8.00"},
  {"sku": "ch-3", "product_name": "Aged Cheddar Wheel", "categories": "Cheese / Cheddar", "price": "$12.00"},
  {"sku": "br-1", "product_name": "Double Cream Brie", "categories": "Cheese / Brie", "price": "$6.00"}
]`

// fakeOllama answers /api/embed with keyword vectors and /api/chat with a
// fixed intent (JSON mode) or a fixed answer.
func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		switch r.URL.Path {
		case "/api/embed":
			inputs, _ := body["input"].([]any)
			vectors := make([][]float32, 0, len(inputs))
			for _, in := range inputs {
				text := strings.ToLower(in.(string))
				vec := []float32{0, 0, 1}
				if strings.Contains(text, "cheddar") {
					vec[0] = 1
				}
				if strings.Contains(text, "brie") {
					vec[1] = 1
				}
				vectors = append(vectors, vec)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": vectors})
		case "/api/chat":
			content := "Here are two cheddars under $10."
			if body["format"] == "json" {
				content = `{"vector_query":"cheddar cheese","metadata_filters":{"price":{"max":10}},"top_k":2}`
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"message": map[string]any{"role": "assistant", "content": content}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func localConfig(t *testing.T, ollamaURL string) config.Config {
	t.Helper()
	seed := filepath.Join(t.TempDir(), "catalog.json")
	if err := os.WriteFile(seed, []byte(seedCatalog), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return config.Config{
		LLMProvider:            "ollama",
		EmbedProvider:          "ollama",
		OllamaURL:              ollamaURL,
		OllamaChatModel:        "llama3.1:8b",
		OllamaEmbedModel:       "nomic-embed-text",
		VectorBackend:          "memory",
		CatalogSeedPath:        seed,
		RAGDefaultTopK:         5,
		RAGMaxTopK:             50,
		RAGApplyMetadataFilter: true,
		RAGRerankMode:          "lexical",
		RAGRerankTopN:          5,
		RAGRerankField:         "chunk_text",
		RAGSummaryLimit:        5,
		ComposerMaxTokens:      200,
		IngestBatchSize:        2,
	}
}

func TestBackendInitializerServesQueriesFromSeededMemoryIndex(t *testing.T) {
	server := fakeOllama(t)
	defer server.Close()

	initializer := NewBackendInitializer(localConfig(t, server.URL), resilience.NewExecutor(resilience.DefaultConfig().QueryPath()))
	defer initializer.Close()
	assistant := usecase.NewAssistant(initializer, nil, usecase.AssistantConfig{})

	envelope := assistant.Handle(context.Background(), "cheddar under $10", "")
	if !envelope.Success {
		t.Fatalf("expected success, got %+v", envelope)
	}
	if assistant.State() != domain.InitReady {
		t.Fatalf("expected ready state, got %s", assistant.State())
	}
	if envelope.ResultCount != 2 || len(envelope.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", envelope.ResultCount)
	}
	for _, r := range envelope.Results {
		if r.ID != "ch-1" && r.ID != "ch-2" {
			t.Fatalf("unexpected result %s", r.ID)
		}
		if r.Price == nil || *r.Price > 10 {
			t.Fatalf("price filter not honored for %s", r.ID)
		}
	}
	if envelope.Response != "Here are two cheddars under $10." {
		t.Fatalf("unexpected response %q", envelope.Response)
	}
}

func TestBackendInitializerRejectsUnknownBackends(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "llm provider", mutate: func(c *config.Config) { c.LLMProvider = "bedrock" }},
		{name: "vector backend", mutate: func(c *config.Config) { c.VectorBackend = "pinecone" }},
		{name: "rerank mode", mutate: func(c *config.Config) { c.RAGRerankMode = "magic" }},
		{name: "http reranker without url", mutate: func(c *config.Config) { c.RAGRerankMode = "http" }},
		{name: "missing seed file", mutate: func(c *config.Config) { c.CatalogSeedPath = "/does/not/exist.json" }},
	}

	server := fakeOllama(t)
	defer server.Close()

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := localConfig(t, server.URL)
			tc.mutate(&cfg)

			initializer := NewBackendInitializer(cfg, nil)
			defer initializer.Close()
			if _, err := initializer.Initialize(context.Background()); err == nil {
				t.Fatalf("expected initialization error")
			}
		})
	}
}

func TestOpenAIProviderRequiresCredentials(t *testing.T) {
	if _, err := newChatModel(config.Config{LLMProvider: "openai"}, nil); err == nil {
		t.Fatalf("expected missing api key error")
	}
	if _, _, err := newDenseEmbedder(config.Config{EmbedProvider: "openai", OpenAIAPIKey: "sk-test", OpenAIEmbedModel: "text-embedding-3-small"}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestResilienceConfigFollowsSettings(t *testing.T) {
	cfg := resilienceConfig(config.Config{
		BreakerEnabled:      true,
		BreakerMinRequests:  4,
		BreakerFailureRatio: 0.25,
	}, nil)
	if !cfg.BreakerEnabled || cfg.BreakerMinRequests != 4 || cfg.BreakerFailureRatio != 0.25 {
		t.Fatalf("unexpected resilience config %+v", cfg)
	}
	if got := cfg.QueryPath().RetryMaxAttempts; got != 1 {
		t.Fatalf("expected single attempt on query path, got %d", got)
	}
}
