package config

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := ConnectRedis(context.Background(), &Config{RedisURL: "redis://" + mr.Addr() + "/0"})
	require.NoError(t, err)
	defer rdb.Close()

	assert.NoError(t, rdb.Set(context.Background(), "ping", "pong", 0).Err())
	got, err := mr.Get("ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", got) // miniredis sees the write
}

func TestConnectRedisErrors(t *testing.T) {
	_, err := ConnectRedis(context.Background(), &Config{RedisURL: "not a url"})
	assert.ErrorContains(t, err, "invalid REDIS_URL")

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err = ConnectRedis(context.Background(), &Config{RedisURL: "redis://" + addr})
	assert.ErrorContains(t, err, "failed to connect to redis")
}
