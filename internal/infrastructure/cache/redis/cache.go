package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Connect pings the server up to maxAttempts times with exponential backoff.
func Connect(ctx context.Context, addr, password string, maxAttempts int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:            addr,
		Password:        password,
		DB:              0,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
	})

	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	var err error
	for i := range maxAttempts {
		if i > 0 {
			backoff := time.Duration(1<<uint(i)) * time.Second
			select {
			case <-ctx.Done():
				_ = client.Close()
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
		if err = client.Ping(ctx).Err(); err == nil {
			slog.Info("redis_connected", "addr", addr, "attempts", i+1)
			return client, nil
		}
		slog.Warn("redis_ping_failed", "addr", addr, "attempt", i+1, "error", err)
	}
	_ = client.Close()
	return nil, fmt.Errorf("connect to redis after %d attempts: %w", maxAttempts, err)
}

// EmbeddingCache stores vectors as JSON float arrays.
type EmbeddingCache struct {
	client goredis.Cmdable
}

func NewEmbeddingCache(client goredis.Cmdable) *EmbeddingCache {
	return &EmbeddingCache{client: client}
}

func (c *EmbeddingCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	vec, err := decodeVector(raw)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

func (c *EmbeddingCache) Set(ctx context.Context, key string, vector []float32, ttl time.Duration) error {
	raw, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func decodeVector(raw []byte) ([]float32, error) {
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, fmt.Errorf("decode cached embedding: %w", err)
	}
	if len(vec) == 0 {
		return nil, errors.New("decode cached embedding: empty vector")
	}
	return vec, nil
}
