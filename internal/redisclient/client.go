package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/adjust_stock.lua
var adjustStockScript string

type Client struct {
	rdb          *redis.Client
	adjustScript *redis.Script
}

// NewClient creates a new Redis client with the stock script loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:          rdb,
		adjustScript: redis.NewScript(adjustStockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func stockKey(branchCode, ingredientName string) string {
	return fmt.Sprintf("stock:%s:%s", branchCode, ingredientName)
}

// InitStock seeds the cached on-hand quantity for an ingredient. The
// database is the source of truth; the cache only serves dashboard reads.
func (c *Client) InitStock(ctx context.Context, branchCode, ingredientName, quantity string) error {
	return c.rdb.Set(ctx, stockKey(branchCode, ingredientName), quantity, 0).Err()
}

// AdjustStock atomically shifts the cached quantity by delta. Returns false
// when the ingredient is not cached; callers then re-seed from the database.
func (c *Client) AdjustStock(ctx context.Context, branchCode, ingredientName, delta string) (bool, error) {
	key := stockKey(branchCode, ingredientName)

	result, err := c.adjustScript.Run(ctx, c.rdb, []string{key}, delta).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("adjust stock script failed: %w", err)
	}

	_, ok := result.(string)
	if !ok {
		return false, fmt.Errorf("unexpected script result type %T", result)
	}
	return true, nil
}

// GetStock retrieves the cached on-hand quantity for an ingredient
func (c *Client) GetStock(ctx context.Context, branchCode, ingredientName string) (string, error) {
	val, err := c.rdb.Get(ctx, stockKey(branchCode, ingredientName)).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("stock not cached for ingredient %s", ingredientName)
	}
	return val, err
}

// InvalidateStock drops the cached quantity for an ingredient
func (c *Client) InvalidateStock(ctx context.Context, branchCode, ingredientName string) error {
	return c.rdb.Del(ctx, stockKey(branchCode, ingredientName)).Err()
}
