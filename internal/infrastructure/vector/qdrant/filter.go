package qdrant

import "github.com/kirillkom/product-search-assistant/internal/core/domain"

// filterTermsKey is the payload object holding ProductRecord.FilterTermIndex.
const filterTermsKey = "filter_terms"

// EncodeFilter renders predicates as a Qdrant "must" clause.
//
// String equality matches the normalized filter terms stored with each point,
// which fold case and expose category path segments. A numeric value also
// matches the raw numeric field through a degenerate range, because match
// only accepts keyword, integer and bool values.
func EncodeFilter(f domain.MetadataFilter) map[string]any {
	if f.IsEmpty() {
		return nil
	}
	must := make([]map[string]any, 0, len(f.Predicates))
	for _, pred := range f.Predicates {
		switch pred.Kind {
		case domain.PredicateRange:
			r := map[string]any{}
			if pred.Min != nil {
				r["gte"] = *pred.Min
			}
			if pred.Max != nil {
				r["lte"] = *pred.Max
			}
			must = append(must, map[string]any{"key": pred.Field, "range": r})
		default:
			must = append(must, equalityCondition(pred))
		}
	}
	return map[string]any{"must": must}
}

func equalityCondition(pred domain.Predicate) map[string]any {
	should := make([]map[string]any, 0, 2)
	if term, ok := domain.EqualityTerm(pred.Value); ok {
		should = append(should, map[string]any{
			"key":   filterTermsKey + "." + pred.Field,
			"match": map[string]any{"value": term},
		})
	}
	if n, ok := domain.NumericValue(pred.Value); ok {
		should = append(should, map[string]any{
			"key":   pred.Field,
			"range": map[string]any{"gte": n, "lte": n},
		})
	}
	return map[string]any{"should": should}
}
