package ports

import (
	"context"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
)

type QueryPlanner interface {
	Plan(ctx context.Context, userText string) (domain.SearchIntent, error)
}

type ProductRetriever interface {
	Retrieve(ctx context.Context, intent domain.SearchIntent) ([]domain.ScoredMatch, error)
}

type AnswerComposer interface {
	Compose(ctx context.Context, userText string, matches []domain.ScoredMatch, intent domain.SearchIntent, history string) (string, error)
}

// Backends is the set of initialized pipeline stages. It is created once by a
// BackendInitializer and owned by the assistant afterwards.
type Backends struct {
	Planner   QueryPlanner
	Retriever ProductRetriever
	Composer  AnswerComposer
}

// BackendInitializer connects to the language model, embedders and index.
type BackendInitializer interface {
	Initialize(ctx context.Context) (*Backends, error)
}
