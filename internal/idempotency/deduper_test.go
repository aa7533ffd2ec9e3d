package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "dedup:stripe:evt_1", key("stripe", "evt_1"))
}

func TestNoopDeduper(t *testing.T) {
	var d Deduper = NoopDeduper{}
	assert.True(t, d.AcquireOnce(context.Background(), "stripe", "evt_1"))
	assert.True(t, d.AcquireOnce(context.Background(), "stripe", "evt_1"))
	d.Release(context.Background(), "stripe", "evt_1")
}

func TestRedisDeduper_FailOpen(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	d := NewRedisDeduper(rdb, 0)
	assert.Equal(t, 24*time.Hour, d.ttl)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.True(t, d.AcquireOnce(ctx, "stripe", "evt_1"))
	d.Release(ctx, "stripe", "evt_1")
}
