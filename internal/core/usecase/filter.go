package usecase

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
)

// TranslateFilters converts planner metadata filters into typed predicates.
//
// Scalars (string, number, bool) become equality predicates. Objects with
// "min" and/or "max" become inclusive ranges. Anything else is rejected so
// that a malformed filter never silently widens a search.
func TranslateFilters(filters map[string]any) (domain.MetadataFilter, error) {
	if len(filters) == 0 {
		return domain.MetadataFilter{}, nil
	}

	fields := make([]string, 0, len(filters))
	for field := range filters {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	out := domain.MetadataFilter{Predicates: make([]domain.Predicate, 0, len(fields))}
	for _, field := range fields {
		pred, err := translatePredicate(field, filters[field])
		if err != nil {
			return domain.MetadataFilter{}, domain.WrapError(
				domain.ErrRetrieval,
				"translate filters",
				domain.WrapError(domain.ErrInvalidInput, "translate filters", err),
			)
		}
		out.Predicates = append(out.Predicates, pred)
	}
	return out, nil
}

func translatePredicate(field string, value any) (domain.Predicate, error) {
	if strings.TrimSpace(field) == "" {
		return domain.Predicate{}, fmt.Errorf("empty filter field")
	}

	switch v := value.(type) {
	case nil:
		return domain.Predicate{}, fmt.Errorf("filter %q is null", field)
	case string, bool:
		return domain.Predicate{Field: field, Kind: domain.PredicateEquals, Value: v}, nil
	case float64, float32, int, int64, json.Number:
		n, ok := numericBound(v)
		if !ok {
			return domain.Predicate{}, fmt.Errorf("filter %q has invalid number", field)
		}
		return domain.Predicate{Field: field, Kind: domain.PredicateEquals, Value: n}, nil
	case map[string]any:
		return translateRange(field, v)
	default:
		return domain.Predicate{}, fmt.Errorf("filter %q has unsupported type %T", field, value)
	}
}

func translateRange(field string, bounds map[string]any) (domain.Predicate, error) {
	pred := domain.Predicate{Field: field, Kind: domain.PredicateRange}
	for key, raw := range bounds {
		n, ok := numericBound(raw)
		if !ok {
			return domain.Predicate{}, fmt.Errorf("filter %q bound %q is not numeric", field, key)
		}
		switch key {
		case "min":
			pred.Min = domain.Float(n)
		case "max":
			pred.Max = domain.Float(n)
		default:
			return domain.Predicate{}, fmt.Errorf("filter %q has unsupported key %q", field, key)
		}
	}
	if pred.Min == nil && pred.Max == nil {
		return domain.Predicate{}, fmt.Errorf("filter %q range needs min or max", field)
	}
	if pred.Min != nil && pred.Max != nil && *pred.Min > *pred.Max {
		return domain.Predicate{}, fmt.Errorf("filter %q has min greater than max", field)
	}
	return pred, nil
}

func numericBound(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(n), "$")), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
