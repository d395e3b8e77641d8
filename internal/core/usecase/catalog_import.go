package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
	"github.com/kirillkom/product-search-assistant/internal/core/ports"
)

type CatalogImportUseCase struct {
	repo    ports.ImportRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewCatalogImportUseCase(
	repo ports.ImportRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *CatalogImportUseCase {
	return &CatalogImportUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
	}
}

func (uc *CatalogImportUseCase) Upload(
	ctx context.Context,
	filename, mimeType string,
	body io.Reader,
) (*domain.CatalogImport, error) {
	if !isSupportedCatalog(filename) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload catalog", fmt.Errorf("unsupported catalog file %q", filename))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	imp := &domain.CatalogImport{
		ID:          id,
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: storageKey,
		Status:      domain.ImportUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.repo.Create(ctx, imp); err != nil {
		return nil, fmt.Errorf("create catalog import: %w", err)
	}

	if err := uc.queue.PublishCatalogImported(ctx, imp.ID); err != nil {
		return nil, fmt.Errorf("publish catalog import event: %w", err)
	}

	return imp, nil
}

func (uc *CatalogImportUseCase) GetByID(ctx context.Context, id string) (*domain.CatalogImport, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get catalog import", errors.New("empty id"))
	}
	return uc.repo.GetByID(ctx, id)
}

func isSupportedCatalog(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".xlsx":
		return true
	default:
		return false
	}
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "catalog.json"
	}
	return base
}
