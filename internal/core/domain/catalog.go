package domain

import "time"

type ImportStatus string

const (
	ImportUploaded   ImportStatus = "uploaded"
	ImportProcessing ImportStatus = "processing"
	ImportReady      ImportStatus = "ready"
	ImportFailed     ImportStatus = "failed"
)

// CatalogImport tracks one uploaded scraper export through indexing.
type CatalogImport struct {
	ID           string       `json:"id"`
	Filename     string       `json:"filename"`
	MimeType     string       `json:"mime_type"`
	StoragePath  string       `json:"storage_path"`
	Status       ImportStatus `json:"status"`
	Error        string       `json:"error,omitempty"`
	ProductCount int          `json:"product_count"`
	SkippedCount int          `json:"skipped_count"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// IndexedProduct is a normalized record plus both embeddings of its chunk.
type IndexedProduct struct {
	Product ProductRecord
	Dense   []float32
	Sparse  SparseVector
}

type ChatRole string

const (
	ChatSystem    ChatRole = "system"
	ChatUser      ChatRole = "user"
	ChatAssistant ChatRole = "assistant"
)

type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// ChatRequest is a provider-neutral language model call.
type ChatRequest struct {
	Messages     []ChatMessage
	JSONResponse bool
	Temperature  *float64
	MaxTokens    int
}
