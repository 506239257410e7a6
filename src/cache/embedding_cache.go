package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"www.github.com/Wanderer0074348/HybridInfer/src/config"
)

const defaultKeyPrefix = "embedding:"

// EmbeddingCache stores one vector per (model, text) pair in Redis.
type EmbeddingCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewEmbeddingCache(redisCfg *config.RedisConfig, cacheCfg *config.EmbeddingCacheConfig) (*EmbeddingCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Address,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cacheCfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	return &EmbeddingCache{
		client: client,
		ttl:    redisCfg.CacheTTL,
		prefix: prefix,
	}, nil
}

// Key is the Redis key for text embedded by model.
func (c *EmbeddingCache) Key(model, text string) string {
	sum := sha256.Sum256([]byte(model + "|" + text))
	return c.prefix + hex.EncodeToString(sum[:])
}

// GetMany returns one entry per text. Misses and unreadable entries are nil.
func (c *EmbeddingCache) GetMany(ctx context.Context, model string, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = c.Key(model, text)
	}

	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get from cache: %w", err)
	}

	for i, val := range vals {
		raw, ok := val.(string)
		if !ok {
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(raw), &vec); err != nil || len(vec) == 0 {
			continue
		}
		out[i] = vec
	}
	return out, nil
}

// SetMany writes every non-empty vector with the configured TTL.
func (c *EmbeddingCache) SetMany(ctx context.Context, model string, texts []string, vectors [][]float32) error {
	if len(texts) != len(vectors) {
		return fmt.Errorf("cache write: %d texts but %d vectors", len(texts), len(vectors))
	}

	pipe := c.client.Pipeline()
	queued := 0
	for i, text := range texts {
		if len(vectors[i]) == 0 {
			continue
		}
		data, err := json.Marshal(vectors[i])
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		pipe.Set(ctx, c.Key(model, text), data, c.ttl)
		queued++
	}
	if queued == 0 {
		return nil
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set cache entries: %w", err)
	}
	return nil
}

func (c *EmbeddingCache) Close() error {
	return c.client.Close()
}

// GetClient returns the underlying Redis client for direct access
func (c *EmbeddingCache) GetClient() *redis.Client {
	return c.client
}
