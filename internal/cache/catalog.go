// Package cache は商品カタログの読み取りキャッシュを提供する。
// 在庫数を含む商品詳細はキャッシュせず、一覧とカラー一覧だけを対象にする。
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hitoshi/techasaurus/internal/model"
	"github.com/redis/go-redis/v9"
)

// CatalogCache はカタログキャッシュのインターフェース。
// Get系は (値, ヒットしたか, エラー) を返す。
type CatalogCache interface {
	GetProducts(ctx context.Context) ([]model.Product, bool, error)
	SetProducts(ctx context.Context, products []model.Product) error
	GetColors(ctx context.Context) ([]model.Color, bool, error)
	SetColors(ctx context.Context, colors []model.Color) error
	GetProductColors(ctx context.Context, productID int) ([]model.Color, bool, error)
	SetProductColors(ctx context.Context, productID int, colors []model.Color) error
	Invalidate(ctx context.Context) error
}

const defaultKeyPrefix = "techasaurus:catalog"

// RedisCatalogCache はRedisを使ったCatalogCache実装。
// 値はJSONで保存し、TTLで自然失効させる。
type RedisCatalogCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisCatalogCache はRedis URLから接続を確立してキャッシュを生成する。
func NewRedisCatalogCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisCatalogCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisCatalogCacheFromClient(client, ttl), nil
}

// NewRedisCatalogCacheFromClient は既存のクライアントからキャッシュを生成する。
func NewRedisCatalogCacheFromClient(client *redis.Client, ttl time.Duration) *RedisCatalogCache {
	return &RedisCatalogCache{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		ttl:       ttl,
	}
}

// Close はRedis接続を閉じる。
func (c *RedisCatalogCache) Close() error {
	return c.client.Close()
}

func (c *RedisCatalogCache) productsKey() string { return c.keyPrefix + ":products" }
func (c *RedisCatalogCache) colorsKey() string   { return c.keyPrefix + ":colors" }
func (c *RedisCatalogCache) keysSetKey() string  { return c.keyPrefix + ":keys" }
func (c *RedisCatalogCache) productColorsKey(id int) string {
	return c.keyPrefix + ":product:" + strconv.Itoa(id) + ":colors"
}

// GetProducts は商品一覧を取得する。
func (c *RedisCatalogCache) GetProducts(ctx context.Context) ([]model.Product, bool, error) {
	var products []model.Product
	ok, err := c.get(ctx, c.productsKey(), &products)
	return products, ok, err
}

// SetProducts は商品一覧を保存する。
func (c *RedisCatalogCache) SetProducts(ctx context.Context, products []model.Product) error {
	return c.set(ctx, c.productsKey(), products)
}

// GetColors はカタログ全体のカラー一覧を取得する。
func (c *RedisCatalogCache) GetColors(ctx context.Context) ([]model.Color, bool, error) {
	var colors []model.Color
	ok, err := c.get(ctx, c.colorsKey(), &colors)
	return colors, ok, err
}

// SetColors はカタログ全体のカラー一覧を保存する。
func (c *RedisCatalogCache) SetColors(ctx context.Context, colors []model.Color) error {
	return c.set(ctx, c.colorsKey(), colors)
}

// GetProductColors は商品ごとのカラー一覧を取得する。
func (c *RedisCatalogCache) GetProductColors(ctx context.Context, productID int) ([]model.Color, bool, error) {
	var colors []model.Color
	ok, err := c.get(ctx, c.productColorsKey(productID), &colors)
	return colors, ok, err
}

// SetProductColors は商品ごとのカラー一覧を保存する。
func (c *RedisCatalogCache) SetProductColors(ctx context.Context, productID int, colors []model.Color) error {
	return c.set(ctx, c.productColorsKey(productID), colors)
}

// Invalidate はこのキャッシュが書き込んだすべてのキーを削除する。
func (c *RedisCatalogCache) Invalidate(ctx context.Context) error {
	keys, err := c.client.SMembers(ctx, c.keysSetKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to list cached keys: %w", err)
	}
	keys = append(keys, c.keysSetKey())
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate catalog cache: %w", err)
	}
	return nil
}

func (c *RedisCatalogCache) get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (c *RedisCatalogCache) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, key, data, c.ttl)
	pipe.SAdd(ctx, c.keysSetKey(), key)
	pipe.Expire(ctx, c.keysSetKey(), c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// NopCatalogCache は常にミスするCatalogCache。Redis未設定時に使う。
type NopCatalogCache struct{}

func (NopCatalogCache) GetProducts(context.Context) ([]model.Product, bool, error) {
	return nil, false, nil
}
func (NopCatalogCache) SetProducts(context.Context, []model.Product) error { return nil }
func (NopCatalogCache) GetColors(context.Context) ([]model.Color, bool, error) {
	return nil, false, nil
}
func (NopCatalogCache) SetColors(context.Context, []model.Color) error { return nil }
func (NopCatalogCache) GetProductColors(context.Context, int) ([]model.Color, bool, error) {
	return nil, false, nil
}
func (NopCatalogCache) SetProductColors(context.Context, int, []model.Color) error { return nil }
func (NopCatalogCache) Invalidate(context.Context) error                           { return nil }
