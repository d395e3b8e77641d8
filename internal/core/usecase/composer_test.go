package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
)

func newTestComposer(model *chatModelFake) *AnswerComposer {
	return NewAnswerComposer(model, ComposerConfig{
		Persona:      "persona",
		DomainNotes:  "notes",
		Instructions: "compose instructions",
		Temperature:  0.7,
		MaxTokens:    800,
	})
}

func TestComposeBuildsBoundedPrompt(t *testing.T) {
	model := &chatModelFake{response: "Here are some cheeses."}
	matches := make([]domain.ScoredMatch, 0, 7)
	for i := 0; i < 7; i++ {
		matches = append(matches, domain.ScoredMatch{Product: product(string(rune('a'+i)), "Cheese "+string(rune('A'+i)), 5), Score: 1 - float64(i)/10})
	}

	text, err := newTestComposer(model).Compose(context.Background(), "show cheese", matches, domain.SearchIntent{VectorQuery: "cheese", TopK: 7}, "")
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if text != "Here are some cheeses." {
		t.Fatalf("unexpected text %q", text)
	}

	req := model.lastRequest()
	if req.Messages[0].Content != "persona" {
		t.Fatalf("expected persona system prompt, got %q", req.Messages[0].Content)
	}
	if req.MaxTokens != 800 || req.Temperature == nil || *req.Temperature != 0.7 {
		t.Fatalf("unexpected generation params: %+v", req)
	}
	prompt := req.Messages[1].Content
	if !strings.Contains(prompt, "Cheese E") || strings.Contains(prompt, "Cheese F") {
		t.Fatalf("summary must hold exactly the top 5 matches:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Total results found: 7") {
		t.Fatalf("expected total count in prompt:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Chat history:\n(none)") {
		t.Fatalf("expected empty history marker:\n%s", prompt)
	}
	order := []string{"Additional Data", "User query", "Search parameters used", "Top search results", "Total results found", "Chat history", "compose instructions"}
	last := -1
	for _, section := range order {
		idx := strings.Index(prompt, section)
		if idx <= last {
			t.Fatalf("section %q out of order", section)
		}
		last = idx
	}
}

func TestComposeRendersUnknownAsNull(t *testing.T) {
	model := &chatModelFake{response: "ok"}
	matches := []domain.ScoredMatch{{Product: domain.ProductRecord{ID: "x", Name: domain.Text("Mystery Cheese")}, Score: 0.5}}

	if _, err := newTestComposer(model).Compose(context.Background(), "q", matches, domain.SearchIntent{VectorQuery: "q"}, "earlier answer"); err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	prompt := model.lastRequest().Messages[1].Content
	if !strings.Contains(prompt, `"price": null`) {
		t.Fatalf("expected null price in summary:\n%s", prompt)
	}
	if strings.Contains(prompt, "not available") {
		t.Fatalf("unexpected placeholder text in summary")
	}
	if !strings.Contains(prompt, "earlier answer") {
		t.Fatalf("expected history in prompt")
	}
}

func TestComposeFailures(t *testing.T) {
	_, err := newTestComposer(&chatModelFake{err: errors.New("boom")}).Compose(context.Background(), "q", nil, domain.SearchIntent{}, "")
	if !domain.IsKind(err, domain.ErrComposition) {
		t.Fatalf("expected composition error, got %v", err)
	}

	_, err = newTestComposer(&chatModelFake{response: "  "}).Compose(context.Background(), "q", nil, domain.SearchIntent{}, "")
	if !domain.IsKind(err, domain.ErrComposition) {
		t.Fatalf("expected composition error for empty output, got %v", err)
	}
}
