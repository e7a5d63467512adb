package database

import (
	"context"
	"testing"
	"time"

	"guild-intake/internal/common/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedis_RequiresAddress(t *testing.T) {
	rc, err := NewRedis(config.RedisConfig{})
	assert.Error(t, err)
	assert.Nil(t, rc)
}

func TestRedis_PingAndCommands(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rc, err := NewRedis(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer rc.Close()

	ctx := context.Background()
	require.NoError(t, rc.Ping(ctx))
	assert.Equal(t, mr.Addr(), rc.Address())

	ok, err := rc.Cmdable().SetNX(ctx, "lease", "owner", time.Second).Result()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("lease"))
}

func TestRedis_PingUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	rc, err := NewRedis(config.RedisConfig{Address: addr})
	require.NoError(t, err)
	defer rc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = rc.Ping(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}
