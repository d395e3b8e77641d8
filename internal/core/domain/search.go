package domain

import (
	"math"
	"strconv"
	"strings"
)

// SearchIntent is the structured form of one user utterance.
type SearchIntent struct {
	VectorQuery     string         `json:"vector_query"`
	MetadataFilters map[string]any `json:"metadata_filters"`
	TopK            int            `json:"top_k"`
}

type SparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

func (v SparseVector) IsEmpty() bool {
	return len(v.Indices) == 0 || len(v.Values) == 0
}

// Dot is the sparse inner product. Both vectors must have sorted indices.
func (v SparseVector) Dot(other SparseVector) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(v.Indices) && j < len(other.Indices) {
		switch {
		case v.Indices[i] == other.Indices[j]:
			sum += float64(v.Values[i]) * float64(other.Values[j])
			i++
			j++
		case v.Indices[i] < other.Indices[j]:
			i++
		default:
			j++
		}
	}
	return sum
}

type PredicateKind string

const (
	PredicateEquals PredicateKind = "eq"
	PredicateRange  PredicateKind = "range"
)

// Predicate is one translated metadata filter entry.
type Predicate struct {
	Field string        `json:"field"`
	Kind  PredicateKind `json:"kind"`
	Value any           `json:"value,omitempty"`
	Min   *float64      `json:"min,omitempty"`
	Max   *float64      `json:"max,omitempty"`
}

// MetadataFilter is a conjunction of predicates.
type MetadataFilter struct {
	Predicates []Predicate `json:"predicates"`
}

func (f MetadataFilter) IsEmpty() bool {
	return len(f.Predicates) == 0
}

// Matches evaluates the filter against a stored record. Unknown attributes
// never satisfy a predicate.
func (f MetadataFilter) Matches(p ProductRecord) bool {
	for _, pred := range f.Predicates {
		if !pred.Matches(p) {
			return false
		}
	}
	return true
}

func (pred Predicate) Matches(p ProductRecord) bool {
	value, ok := p.Field(pred.Field)
	if !ok {
		return false
	}

	switch pred.Kind {
	case PredicateRange:
		n, ok := value.(float64)
		if !ok {
			return false
		}
		if pred.Min != nil && n < *pred.Min {
			return false
		}
		if pred.Max != nil && n > *pred.Max {
			return false
		}
		return true
	case PredicateEquals:
		return equalityMatches(p, pred.Field, value, pred.Value)
	default:
		return false
	}
}

// PineconeMap renders the filter in the $gte/$lte map dialect used by
// hosted hybrid indexes. It is logged next to the backend-specific form.
func (f MetadataFilter) PineconeMap() map[string]any {
	out := make(map[string]any, len(f.Predicates))
	for _, pred := range f.Predicates {
		switch pred.Kind {
		case PredicateRange:
			r := map[string]any{}
			if pred.Min != nil {
				r["$gte"] = *pred.Min
			}
			if pred.Max != nil {
				r["$lte"] = *pred.Max
			}
			out[pred.Field] = r
		default:
			out[pred.Field] = pred.Value
		}
	}
	return out
}

// equalityMatches compares numbers numerically and strings by their filter
// terms, so the in-process index and Qdrant agree on every equality.
func equalityMatches(p ProductRecord, field string, stored, want any) bool {
	if sn, ok := stored.(float64); ok {
		wn, ok := toFloat(want)
		return ok && math.Abs(sn-wn) < 1e-9
	}
	term, ok := EqualityTerm(want)
	if !ok {
		return false
	}
	for _, t := range p.FilterTerms(field) {
		if t == term {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// HybridQuery is one combined dense+sparse request against the product index.
type HybridQuery struct {
	Dense  []float32
	Sparse SparseVector
	TopK   int
	Filter MetadataFilter
}

// ScoredMatch is a retrieved record with its intra-query relevance score.
type ScoredMatch struct {
	Product ProductRecord `json:"product"`
	Score   float64       `json:"score"`
}

// ProductResult is a record flattened together with its score for the
// response envelope.
type ProductResult struct {
	ProductRecord
	Score float64 `json:"score"`
}

type ResponseEnvelope struct {
	Success             bool            `json:"success"`
	Response            string          `json:"response"`
	QueryInterpretation *SearchIntent   `json:"query_interpretation"`
	Results             []ProductResult `json:"results"`
	ResultCount         int             `json:"result_count"`
}

type ConversationRole string

const (
	RoleUser      ConversationRole = "user"
	RoleAssistant ConversationRole = "assistant"
)

// ConversationTurn is owned by callers; the assistant only ever sees the
// text of the turn preceding the current query.
type ConversationTurn struct {
	Role    ConversationRole `json:"role"`
	Text    string           `json:"text"`
	Images  []ImageCard      `json:"images,omitempty"`
	Results []ProductResult  `json:"results,omitempty"`
}

// HistoryFromTurns returns the text of the last turn in the log. Older turns
// are dropped on purpose.
func HistoryFromTurns(turns []ConversationTurn) string {
	if len(turns) == 0 {
		return ""
	}
	return strings.TrimSpace(turns[len(turns)-1].Text)
}

type ImageCard struct {
	URL       string `json:"url"`
	Caption   string `json:"caption"`
	DetailURL string `json:"detail_url"`
}

// ComposedAnswer is the parsed form of a composer response.
type ComposedAnswer struct {
	Prose  string      `json:"prose"`
	Images []ImageCard `json:"images"`
}

type InitState string

const (
	InitUninitialized InitState = "uninitialized"
	InitInitializing  InitState = "initializing"
	InitReady         InitState = "ready"
	InitFailed        InitState = "failed"
)
