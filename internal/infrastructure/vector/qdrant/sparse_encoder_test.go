package qdrant

import "testing"

func TestEncodeQueryDeterministic(t *testing.T) {
	enc := NewSparseEncoder()
	v1 := enc.EncodeQuery("Sharp Cheddar 5 lb loaf")
	v2 := enc.EncodeQuery("Sharp Cheddar 5 lb loaf")
	if len(v1.Indices) != len(v2.Indices) || len(v1.Values) != len(v2.Values) {
		t.Fatalf("vector sizes mismatch: v1=%d/%d v2=%d/%d", len(v1.Indices), len(v1.Values), len(v2.Indices), len(v2.Values))
	}
	for i := range v1.Indices {
		if v1.Indices[i] != v2.Indices[i] {
			t.Fatalf("indices mismatch at %d: %d vs %d", i, v1.Indices[i], v2.Indices[i])
		}
		if v1.Values[i] != v2.Values[i] {
			t.Fatalf("values mismatch at %d: %f vs %f", i, v1.Values[i], v2.Values[i])
		}
	}
}

func TestEncodeQuerySortsIndices(t *testing.T) {
	v := NewSparseEncoder().EncodeQuery("zulu alpha beta gamma")
	if len(v.Indices) == 0 {
		t.Fatalf("expected non-empty sparse vector")
	}
	for i := 1; i < len(v.Indices); i++ {
		if v.Indices[i-1] > v.Indices[i] {
			t.Fatalf("indices not sorted at %d: %d > %d", i, v.Indices[i-1], v.Indices[i])
		}
	}
}

func TestEncodeQueryEmptyNoiseInput(t *testing.T) {
	v := NewSparseEncoder().EncodeQuery("___---!!! the and")
	if !v.IsEmpty() {
		t.Fatalf("expected empty sparse vector, got %+v", v)
	}
}

func TestQueryAndDocumentShareVocabulary(t *testing.T) {
	enc := NewSparseEncoder()
	doc := enc.EncodeDocument("Aged sharp cheddar cheese loaf, sharp and tangy")
	query := enc.EncodeQuery("sharp cheddar")
	other := enc.EncodeDocument("Fresh mozzarella ball")
	if doc.Dot(query) <= 0 {
		t.Fatalf("expected positive overlap with matching document")
	}
	if other.Dot(query) != 0 {
		t.Fatalf("expected no overlap with unrelated document")
	}
}

func TestTermSaturation(t *testing.T) {
	enc := NewSparseEncoder()
	once := enc.EncodeDocument("cheddar")
	many := enc.EncodeDocument("cheddar cheddar cheddar cheddar cheddar")
	if many.Values[0] <= once.Values[0] {
		t.Fatalf("expected repeated term to weigh more")
	}
	if many.Values[0] >= float32(docBM25K1+1) {
		t.Fatalf("expected weight to saturate below k+1, got %f", many.Values[0])
	}
}

func TestTokenizeAlphaNumDigitsStability(t *testing.T) {
	tokens := tokenizeAlphaNum("Item #12345 - 2/5 LB")
	found := map[string]bool{}
	for _, tok := range tokens {
		found[tok] = true
	}
	if !found["12345"] || !found["lb"] || !found["item"] {
		t.Fatalf("unexpected tokens %v", tokens)
	}
}
