package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

func TestDecodeVector(t *testing.T) {
	vec, err := decodeVector([]byte(`[0.5,0.25]`))
	if err != nil {
		t.Fatalf("decodeVector() error = %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.5 || vec[1] != 0.25 {
		t.Fatalf("unexpected vector %v", vec)
	}

	if _, err := decodeVector([]byte(`[]`)); err == nil {
		t.Fatalf("expected error for empty vector")
	}
	if _, err := decodeVector([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}

func TestGetReportsUnreachableServer(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	defer client.Close()

	cache := NewEmbeddingCache(client)
	_, found, err := cache.Get(context.Background(), "emb:test:abc")
	if err == nil {
		t.Fatalf("expected connection error")
	}
	if found {
		t.Fatalf("unexpected cache hit")
	}
}
