package repo

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/richardliu001/wallet-ledger/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_RoundTrip(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := NewRedisCache(rdb, time.Minute)
	ctx := context.Background()

	w := model.NewWallet("8880000000001", 1, dec("100.25"))
	w.ID = 4
	raw, err := json.Marshal(w)
	require.NoError(t, err)

	mock.ExpectSet("wallet:1", raw, time.Minute).SetVal("OK")
	require.NoError(t, c.Set(ctx, w))

	mock.ExpectGet("wallet:1").SetVal(string(raw))
	got, err := c.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), got.ID)
	assert.True(t, dec("100.25").Equal(got.Balance))
	assert.Equal(t, model.WalletActive, got.Status)

	mock.ExpectGet("wallet:2").RedisNil()
	_, err = c.Get(ctx, 2)
	assert.ErrorIs(t, err, ErrCacheMiss)

	mock.ExpectDel("wallet:1", "wallet:2").SetVal(2)
	require.NoError(t, c.Invalidate(ctx, 1, 2))
	require.NoError(t, c.Invalidate(ctx))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_CorruptEntry(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := NewRedisCache(rdb, time.Minute)

	mock.ExpectGet("wallet:9").SetVal("{not json")
	_, err := c.Get(context.Background(), 9)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}
