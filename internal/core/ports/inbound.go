package ports

import (
	"context"
	"io"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
)

// AssistantService is the inbound contract for conversational product search.
type AssistantService interface {
	Handle(ctx context.Context, userText, history string) domain.ResponseEnvelope
	Reinitialize(ctx context.Context) error
	State() domain.InitState
}

// CatalogImporter is the inbound contract for catalog upload orchestration.
type CatalogImporter interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.CatalogImport, error)
}

// CatalogImportReader is the inbound read model for import state.
type CatalogImportReader interface {
	GetByID(ctx context.Context, id string) (*domain.CatalogImport, error)
}

// CatalogProcessor is the inbound contract for asynchronous catalog indexing.
type CatalogProcessor interface {
	ProcessByID(ctx context.Context, importID string) error
}
