package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/admarket-backend/internal/logger"
)

// Deduper отсекает повторную обработку одного и того же события.
type Deduper interface {
	// AcquireOnce возвращает true, если событие обрабатывается впервые.
	AcquireOnce(ctx context.Context, scope, id string) bool
	// Release снимает отметку, чтобы событие можно было обработать повторно.
	Release(ctx context.Context, scope, id string)
}

// RedisDeduper хранит отметки в Redis через SETNX с TTL.
type RedisDeduper struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisDeduper создаёт дедупликатор.
func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduper{rdb: rdb, ttl: ttl}
}

func key(scope, id string) string {
	return fmt.Sprintf("dedup:%s:%s", scope, id)
}

// AcquireOnce пропускает обработку, если Redis недоступен:
// окончательную защиту от дублей даёт таблица stripe_events.
func (d *RedisDeduper) AcquireOnce(ctx context.Context, scope, id string) bool {
	k := key(scope, id)
	ok, err := d.rdb.SetNX(ctx, k, 1, d.ttl).Result()
	if err != nil {
		logger.Log.WithFields(logrus.Fields{
			"scope": scope,
			"id":    id,
			"error": err.Error(),
		}).Warn("idempotency: redis недоступен, пропускаем проверку")
		return true
	}

	if !ok {
		logger.Log.WithFields(logrus.Fields{"scope": scope, "id": id}).Info("idempotency: повторное событие пропущено")
	}
	return ok
}

// Release удаляет отметку.
func (d *RedisDeduper) Release(ctx context.Context, scope, id string) {
	if err := d.rdb.Del(ctx, key(scope, id)).Err(); err != nil {
		logger.Log.WithError(err).Warn("idempotency: не удалось снять отметку")
	}
}

// NoopDeduper используется без Redis.
type NoopDeduper struct{}

func (NoopDeduper) AcquireOnce(context.Context, string, string) bool { return true }
func (NoopDeduper) Release(context.Context, string, string)          {}
