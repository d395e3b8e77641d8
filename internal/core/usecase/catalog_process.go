package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
	"github.com/kirillkom/product-search-assistant/internal/core/ports"
)

type CatalogProcessUseCase struct {
	repo      ports.ImportRepository
	storage   ports.ObjectStorage
	decoder   ports.CatalogDecoder
	chunker   ports.ChunkBuilder
	dense     ports.DenseEmbedder
	sparse    ports.SparseEmbedder
	index     ports.ProductIndex
	batchSize int
}

func NewCatalogProcessUseCase(
	repo ports.ImportRepository,
	storage ports.ObjectStorage,
	decoder ports.CatalogDecoder,
	chunker ports.ChunkBuilder,
	dense ports.DenseEmbedder,
	sparse ports.SparseEmbedder,
	index ports.ProductIndex,
	batchSize int,
) *CatalogProcessUseCase {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &CatalogProcessUseCase{
		repo:      repo,
		storage:   storage,
		decoder:   decoder,
		chunker:   chunker,
		dense:     dense,
		sparse:    sparse,
		index:     index,
		batchSize: batchSize,
	}
}

func (uc *CatalogProcessUseCase) ProcessByID(ctx context.Context, importID string) error {
	if err := uc.markStatus(ctx, importID, domain.ImportProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	indexed, skipped, err := uc.processPipeline(ctx, importID)
	if err != nil {
		if failErr := uc.markFailed(ctx, importID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.SaveCounts(ctx, importID, indexed, skipped); err != nil {
		if failErr := uc.markFailed(ctx, importID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return fmt.Errorf("save import counts: %w", err)
	}

	if err := uc.markStatus(ctx, importID, domain.ImportReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}

	slog.Info("catalog_import_ready", "import_id", importID, "products", indexed, "skipped", skipped)
	return nil
}

func (uc *CatalogProcessUseCase) processPipeline(ctx context.Context, importID string) (int, int, error) {
	imp, err := uc.repo.GetByID(ctx, importID)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch catalog import by id: %w", err)
	}

	products, err := uc.decode(ctx, imp)
	if err != nil {
		return 0, 0, err
	}

	unique, skipped := dedupeProducts(products)
	if skipped > 0 {
		slog.Warn("catalog_duplicate_ids", "import_id", importID, "skipped", skipped)
	}

	for start := 0; start < len(unique); start += uc.batchSize {
		end := start + uc.batchSize
		if end > len(unique) {
			end = len(unique)
		}
		if err := uc.indexBatch(ctx, unique[start:end]); err != nil {
			return 0, 0, fmt.Errorf("index batch %d-%d: %w", start, end, err)
		}
	}
	return len(unique), skipped, nil
}

// IndexProducts chunks, embeds and upserts records without an import row. It
// is used to seed in-process indexes.
func (uc *CatalogProcessUseCase) IndexProducts(ctx context.Context, products []domain.ProductRecord) (int, error) {
	unique, _ := dedupeProducts(products)
	for start := 0; start < len(unique); start += uc.batchSize {
		end := start + uc.batchSize
		if end > len(unique) {
			end = len(unique)
		}
		if err := uc.indexBatch(ctx, unique[start:end]); err != nil {
			return 0, err
		}
	}
	return len(unique), nil
}

func (uc *CatalogProcessUseCase) decode(ctx context.Context, imp *domain.CatalogImport) ([]domain.ProductRecord, error) {
	body, err := uc.storage.Open(ctx, imp.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open catalog file: %w", err)
	}
	defer body.Close()

	products, err := uc.decoder.Decode(ctx, imp.Filename, body)
	if err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(products) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode catalog", errors.New("catalog has no listings"))
	}
	return products, nil
}

func (uc *CatalogProcessUseCase) indexBatch(ctx context.Context, batch []domain.ProductRecord) error {
	chunks := make([]string, len(batch))
	for i := range batch {
		chunk := uc.chunker.Build(batch[i])
		batch[i].ChunkText = domain.Text(chunk)
		chunks[i] = chunk
	}

	vectors, err := uc.dense.Embed(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return domain.WrapError(
			domain.ErrInvalidInput,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)),
		)
	}

	indexed := make([]domain.IndexedProduct, len(batch))
	for i := range batch {
		indexed[i] = domain.IndexedProduct{
			Product: batch[i],
			Dense:   vectors[i],
			Sparse:  uc.sparse.EncodeDocument(chunks[i]),
		}
	}

	if err := uc.index.Upsert(ctx, indexed); err != nil {
		return fmt.Errorf("upsert products: %w", err)
	}
	return nil
}

// dedupeProducts keeps the first record per id and returns a copy.
func dedupeProducts(products []domain.ProductRecord) ([]domain.ProductRecord, int) {
	seen := make(map[string]struct{}, len(products))
	out := make([]domain.ProductRecord, 0, len(products))
	skipped := 0
	for _, p := range products {
		if _, dup := seen[p.ID]; dup || p.ID == "" {
			skipped++
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out, skipped
}

func (uc *CatalogProcessUseCase) markStatus(ctx context.Context, importID string, status domain.ImportStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, importID, status, errMessage)
}

func (uc *CatalogProcessUseCase) markFailed(ctx context.Context, importID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	slog.Error("catalog_import_failed", "import_id", importID, "error", processErr)
	return uc.markStatus(ctx, importID, domain.ImportFailed, processErr.Error())
}
