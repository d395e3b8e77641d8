package domain

import (
	"strconv"
	"strings"
)

// filterableTextFields are the string attributes equality filters can target.
// URLs, captions and chunk text are left out.
var filterableTextFields = []string{
	"id",
	"sku",
	"upc",
	"product_code_from_url",
	"item_number_from_name",
	"product_name",
	"product_name_detail",
	"brand",
	"brand_supplier_detail",
	"categories",
	"quantity_package_info",
	"status",
}

// FilterTerms returns the normalized values a string attribute answers
// equality filters with. Categories also answer with every path segment, so
// "Cheddar" matches "Grocery/Dairy/Cheese/Cheddar".
func (p ProductRecord) FilterTerms(field string) []string {
	if !isFilterableText(field) {
		return nil
	}
	var raw string
	if field == "id" {
		raw = p.ID
	} else if s := p.stringField(field); s != nil {
		raw = *s
	}
	whole := NormalizeTerm(raw)
	if whole == "" {
		return nil
	}

	terms := []string{whole}
	if field == "categories" {
		for _, segment := range p.CategoryPath() {
			if t := NormalizeTerm(segment); t != "" && t != whole {
				terms = append(terms, t)
			}
		}
	}
	return terms
}

// FilterTermIndex is FilterTerms for every filterable attribute that has a
// value. Index backends store it next to the record.
func (p ProductRecord) FilterTermIndex() map[string][]string {
	out := make(map[string][]string, len(filterableTextFields))
	for _, field := range filterableTextFields {
		if terms := p.FilterTerms(field); len(terms) > 0 {
			out[field] = terms
		}
	}
	return out
}

// NormalizeTerm folds case and collapses whitespace.
func NormalizeTerm(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// EqualityTerm renders a filter value in the form FilterTerms produces.
func EqualityTerm(v any) (string, bool) {
	switch w := v.(type) {
	case string:
		t := NormalizeTerm(w)
		return t, t != ""
	case bool:
		return strconv.FormatBool(w), true
	case float64:
		return strconv.FormatFloat(w, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(w), 'f', -1, 32), true
	case int:
		return strconv.Itoa(w), true
	case int64:
		return strconv.FormatInt(w, 10), true
	default:
		return "", false
	}
}

// NumericValue reports the filter value as a number, parsing numeric strings.
func NumericValue(v any) (float64, bool) {
	return toFloat(v)
}

func isFilterableText(field string) bool {
	for _, f := range filterableTextFields {
		if f == field {
			return true
		}
	}
	return false
}
