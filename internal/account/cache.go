package account

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a redis-backed read cache for wallet balances. A nil Cache or a
// nil client is valid and behaves as a permanent miss.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

func balanceKey(walletID string) string {
	return "wallet:balance:" + walletID
}

// GetBalance returns the cached balance and whether the key was present.
func (c *Cache) GetBalance(ctx context.Context, walletID string) (float64, bool, error) {
	if c == nil || c.rdb == nil {
		return 0, false, nil
	}

	val, err := c.rdb.Get(ctx, balanceKey(walletID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}

	balance, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false, err
	}
	return balance, true, nil
}

func (c *Cache) SetBalance(ctx context.Context, walletID string, balance float64) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Set(ctx, balanceKey(walletID), strconv.FormatFloat(balance, 'f', -1, 64), c.ttl).Err()
}

// Invalidate drops the cached balance after a settlement commit or an
// administrative adjustment.
func (c *Cache) Invalidate(ctx context.Context, walletID string) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, balanceKey(walletID)).Err()
}
