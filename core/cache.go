package core

// Cache — redis backed surface shared with the HTTP layer: the most recently
// executed block, per-address signing challenges, and named locks used for
// multi process startup coordination.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CurrentBlockKey is the cache key under which the most recently executed
// block is published.
const CurrentBlockKey = "current_block"

// CurrentBlock is the (number, hash) pair read by the HTTP middleware.
type CurrentBlock struct {
	Number int64  `json:"number"`
	Hash   string `json:"hash"`
}

// Cache wraps the shared redis instance.
type Cache struct {
	rdb *redis.Client
}

// NewCache connects to redis at addr.
func NewCache(addr string) *Cache {
	return &Cache{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewCacheWithClient wires a Cache over an existing client.
func NewCacheWithClient(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// SetCurrentBlock publishes the most recently executed block. Only the
// ingestor writes this key; readers see stale but consistent values.
func (c *Cache) SetCurrentBlock(ctx context.Context, number int64, hash string) error {
	data, err := json.Marshal(CurrentBlock{Number: number, Hash: hash})
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, CurrentBlockKey, data, 0).Err()
}

// GetCurrentBlock returns the published block pair, or nil when none has been
// published yet.
func (c *Cache) GetCurrentBlock(ctx context.Context) (*CurrentBlock, error) {
	data, err := c.rdb.Get(ctx, CurrentBlockKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var block CurrentBlock
	if err := json.Unmarshal(data, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

// SetChallenge stores a signing challenge for the given address with a TTL.
func (c *Cache) SetChallenge(ctx context.Context, address, challenge string, lifetime time.Duration) error {
	return c.rdb.Set(ctx, address, challenge, lifetime).Err()
}

// GetChallenge returns the signing challenge stored for the address, or the
// empty string when it expired.
func (c *Cache) GetChallenge(ctx context.Context, address string) (string, error) {
	challenge, err := c.rdb.Get(ctx, address).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return challenge, err
}

// WithLock runs fn while holding a named distributed lock. Used to serialize
// schema bootstrap across processes.
func (c *Cache) WithLock(ctx context.Context, name string, fn func() error) error {
	const (
		ttl  = 60 * time.Second
		poll = 250 * time.Millisecond
	)
	for {
		ok, err := c.rdb.SetNX(ctx, "lock:"+name, 1, ttl).Result()
		if err != nil {
			return fmt.Errorf("acquiring lock %s: %w", name, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
	defer c.rdb.Del(ctx, "lock:"+name)
	return fn()
}

// Close releases the redis connection.
func (c *Cache) Close() error {
	return c.rdb.Close()
}
