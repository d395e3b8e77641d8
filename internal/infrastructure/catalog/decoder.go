// Package catalog decodes scraped product listings from uploaded files.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
)

// Decoder reads JSON arrays of listings and XLSX sheets whose first row
// holds the listing field names.
type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) Decode(ctx context.Context, filename string, body io.Reader) ([]domain.ProductRecord, error) {
	var (
		listings []listing
		err      error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		listings, err = decodeJSON(body)
	case ".xlsx":
		listings, err = decodeXLSX(body)
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode catalog", fmt.Errorf("unsupported catalog format: %s", filename))
	}
	if err != nil {
		return nil, err
	}

	out := make([]domain.ProductRecord, 0, len(listings))
	for i, l := range listings {
		if i%500 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out = append(out, normalize(l, i))
	}
	return out, nil
}

func decodeJSON(body io.Reader) ([]listing, error) {
	var listings []listing
	if err := json.NewDecoder(body).Decode(&listings); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode catalog json", err)
	}
	return listings, nil
}

func decodeXLSX(body io.Reader) ([]listing, error) {
	f, err := excelize.OpenReader(body)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open catalog xlsx", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode catalog xlsx", errors.New("workbook has no sheets"))
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}

	listings := make([]listing, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		var l listing
		for i, cell := range row {
			if i < len(header) {
				l.setField(header[i], cell)
			}
		}
		listings = append(listings, l)
	}
	return listings, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
