package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
)

type ImportRepository struct {
	db *sql.DB
}

func NewImportRepository(db *sql.DB) *ImportRepository {
	return &ImportRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *ImportRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101701)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS catalog_imports (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	product_count INTEGER NOT NULL DEFAULT 0,
	skipped_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_catalog_imports_status ON catalog_imports(status);
CREATE INDEX IF NOT EXISTS idx_catalog_imports_created_at ON catalog_imports(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *ImportRepository) Create(ctx context.Context, imp *domain.CatalogImport) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO catalog_imports (
	id, filename, mime_type, storage_path, status, error_message, product_count, skipped_count, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		imp.ID, imp.Filename, imp.MimeType, imp.StoragePath, string(imp.Status), imp.Error,
		imp.ProductCount, imp.SkippedCount, imp.CreatedAt, imp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert catalog import: %w", err)
	}
	return nil
}

func (r *ImportRepository) GetByID(ctx context.Context, id string) (*domain.CatalogImport, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, filename, mime_type, storage_path, status, error_message, product_count, skipped_count, created_at, updated_at
FROM catalog_imports
WHERE id = $1
`, id)

	var imp domain.CatalogImport
	var status string
	err := row.Scan(
		&imp.ID, &imp.Filename, &imp.MimeType, &imp.StoragePath, &status, &imp.Error,
		&imp.ProductCount, &imp.SkippedCount, &imp.CreatedAt, &imp.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get catalog import", fmt.Errorf("catalog import %s", id))
		}
		return nil, fmt.Errorf("scan catalog import: %w", err)
	}
	imp.Status = domain.ImportStatus(status)
	return &imp, nil
}

func (r *ImportRepository) UpdateStatus(ctx context.Context, id string, status domain.ImportStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE catalog_imports
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update catalog import status: %w", err)
	}
	return requireAffected(res, "update catalog import status", id)
}

func (r *ImportRepository) SaveCounts(ctx context.Context, id string, products, skipped int) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE catalog_imports
SET product_count = $2, skipped_count = $3, updated_at = $4
WHERE id = $1
`, id, products, skipped, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save catalog import counts: %w", err)
	}
	return requireAffected(res, "save catalog import counts", id)
}

func requireAffected(res sql.Result, operation, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if n == 0 {
		return domain.WrapError(domain.ErrNotFound, operation, fmt.Errorf("catalog import %s", id))
	}
	return nil
}
