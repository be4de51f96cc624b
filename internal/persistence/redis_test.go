package persistence

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-relations/internal/config"
)

func TestNewRedisConnects(t *testing.T) {
	mr := miniredis.RunT(t)

	r, err := NewRedis(context.Background(), config.RedisConfig{Addr: " " + mr.Addr() + " "}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(r.Close)
	assert.NoError(t, r.Ping(context.Background()))
}

func TestNewRedisFailsFast(t *testing.T) {
	_, err := NewRedis(context.Background(), config.RedisConfig{Addr: ""}, zap.NewNop())
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err = NewRedis(context.Background(), config.RedisConfig{Addr: addr}, zap.NewNop())
	assert.Error(t, err)
}

func TestNilClientsReportUnavailable(t *testing.T) {
	var r *Redis
	var pg *Postgres
	assert.Error(t, r.Ping(context.Background()))
	assert.Error(t, pg.Ping(context.Background()))
	assert.Nil(t, pg.PoolHandle())
}
