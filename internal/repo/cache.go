package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/richardliu001/wallet-ledger/internal/model"
)

// ErrCacheMiss is returned by WalletCache.Get when nothing is cached.
var ErrCacheMiss = errors.New("cache miss")

// WalletCache is a read-through cache of wallet snapshots. It is never
// consulted for balance checks on a mutation path.
type WalletCache interface {
	Get(ctx context.Context, userID int64) (*model.Wallet, error)
	Set(ctx context.Context, w *model.Wallet) error
	Invalidate(ctx context.Context, userIDs ...int64) error
}

// RedisCache implements WalletCache on redis.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func walletKey(userID int64) string { return fmt.Sprintf("wallet:%d", userID) }

func (c *RedisCache) Get(ctx context.Context, userID int64) (*model.Wallet, error) {
	raw, err := c.rdb.Get(ctx, walletKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	var w model.Wallet
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode cached wallet %d: %w", userID, err)
	}
	return &w, nil
}

func (c *RedisCache) Set(ctx context.Context, w *model.Wallet) error {
	raw, err := json.Marshal(w)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, walletKey(w.UserID), raw, c.ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, userIDs ...int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, walletKey(id))
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// NopCache never stores anything.
type NopCache struct{}

func (NopCache) Get(context.Context, int64) (*model.Wallet, error) { return nil, ErrCacheMiss }
func (NopCache) Set(context.Context, *model.Wallet) error           { return nil }
func (NopCache) Invalidate(context.Context, ...int64) error         { return nil }
