package nats

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// importIDHeader duplicates the import id so operators can filter messages
// without decoding the body.
const importIDHeader = "Catalog-Import-Id"

// catalogImportedEvent is the message body published after an upload is
// stored and registered.
type catalogImportedEvent struct {
	ImportID    string    `json:"import_id"`
	PublishedAt time.Time `json:"published_at"`
}

func encodeCatalogImported(importID string, now time.Time) ([]byte, error) {
	importID = strings.TrimSpace(importID)
	if importID == "" {
		return nil, errors.New("import id is empty")
	}
	return json.Marshal(catalogImportedEvent{ImportID: importID, PublishedAt: now.UTC()})
}

// decodeCatalogImported accepts the JSON event and, for messages published
// by hand with the nats CLI, a bare import id.
func decodeCatalogImported(data []byte) (catalogImportedEvent, error) {
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return catalogImportedEvent{}, errors.New("empty catalog import event")
	}
	if !strings.HasPrefix(raw, "{") {
		return catalogImportedEvent{ImportID: raw}, nil
	}

	var event catalogImportedEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return catalogImportedEvent{}, fmt.Errorf("decode catalog import event: %w", err)
	}
	event.ImportID = strings.TrimSpace(event.ImportID)
	if event.ImportID == "" {
		return catalogImportedEvent{}, errors.New("catalog import event has no import id")
	}
	return event, nil
}
