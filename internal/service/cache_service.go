package service

import (
	"context"
	"strings"
	"sync"
	"time"
)

const adminStatsKey = "admin:stats"

// CacheService in-memory кэш с TTL для агрегатов админки.
type CacheService struct {
	mu    sync.RWMutex
	cache map[string]*cacheEntry
	now   func() time.Time
}

type cacheEntry struct {
	data      any
	expiresAt time.Time
}

// NewCacheService создаёт кэш. Просроченные записи вычищаются,
// пока не отменён ctx.
func NewCacheService(ctx context.Context, cleanupEvery time.Duration) *CacheService {
	cs := &CacheService{
		cache: make(map[string]*cacheEntry),
		now:   time.Now,
	}
	if cleanupEvery > 0 {
		go cs.cleanup(ctx, cleanupEvery)
	}
	return cs
}

// Get возвращает значение, если оно ещё не просрочено.
func (cs *CacheService) Get(key string) (any, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	entry, ok := cs.cache[key]
	if !ok || cs.now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.data, true
}

// Set сохраняет значение на ttl.
func (cs *CacheService) Set(key string, value any, ttl time.Duration) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.cache[key] = &cacheEntry{data: value, expiresAt: cs.now().Add(ttl)}
}

// Delete удаляет ключ.
func (cs *CacheService) Delete(key string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	delete(cs.cache, key)
}

// InvalidateByPrefix удаляет все ключи с префиксом.
func (cs *CacheService) InvalidateByPrefix(prefix string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for key := range cs.cache {
		if strings.HasPrefix(key, prefix) {
			delete(cs.cache, key)
		}
	}
}

// InvalidateStats сбрасывает статистику площадки.
func (cs *CacheService) InvalidateStats() {
	cs.InvalidateByPrefix("admin:")
}

// GetOrSet возвращает значение из кэша или вычисляет и сохраняет его.
// Ошибка вычисления не кэшируется.
func (cs *CacheService) GetOrSet(key string, ttl time.Duration, fn func() (any, error)) (any, error) {
	if value, ok := cs.Get(key); ok {
		return value, nil
	}

	value, err := fn()
	if err != nil {
		return nil, err
	}
	cs.Set(key, value, ttl)
	return value, nil
}

func (cs *CacheService) cleanup(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cs.mu.Lock()
			now := cs.now()
			for key, entry := range cs.cache {
				if now.After(entry.expiresAt) {
					delete(cs.cache, key)
				}
			}
			cs.mu.Unlock()
		}
	}
}
