package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*ImportRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &ImportRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, filename, mime_type, storage_path").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDScansRow(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "filename", "mime_type", "storage_path", "status", "error_message",
		"product_count", "skipped_count", "created_at", "updated_at",
	}).AddRow("imp-1", "cheese.json", "application/json", "imp-1_cheese.json", "ready", "", 42, 3, now, now)
	mock.ExpectQuery("FROM catalog_imports").WithArgs("imp-1").WillReturnRows(rows)

	imp, err := repo.GetByID(context.Background(), "imp-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if imp.Status != domain.ImportReady || imp.ProductCount != 42 || imp.SkippedCount != 3 {
		t.Fatalf("unexpected import %+v", imp)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateInsertsRow(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	imp := &domain.CatalogImport{
		ID: "imp-1", Filename: "cheese.json", MimeType: "application/json", StoragePath: "imp-1_cheese.json",
		Status: domain.ImportUploaded, CreatedAt: now, UpdatedAt: now,
	}
	mock.ExpectExec("INSERT INTO catalog_imports").
		WithArgs("imp-1", "cheese.json", "application/json", "imp-1_cheese.json", "uploaded", "", 0, 0, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), imp); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateStatusReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE catalog_imports").
		WithArgs("missing", string(domain.ImportProcessing), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", domain.ImportProcessing, "")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveCountsUpdatesRow(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE catalog_imports").
		WithArgs("imp-1", 10, 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SaveCounts(context.Background(), "imp-1", 10, 2); err != nil {
		t.Fatalf("SaveCounts() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
