package linkhealth

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"taxEvents/internal/cache"
	"taxEvents/internal/models/domain"
	"taxEvents/internal/utils/logger/sl"
)

const cacheKeyPrefix = "linkhealth:"

type noCacheKey struct{}

// NoCache помечает ctx, чтобы кэширующая проверка всегда ходила в сеть.
func NoCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, noCacheKey{}, true)
}

func bypassCache(ctx context.Context) bool {
	v, _ := ctx.Value(noCacheKey{}).(bool)
	return v
}

// HealthChecker определяет интерфейс оценки ссылки.
type HealthChecker interface {
	Check(ctx context.Context, rawURL string) domain.LinkHealth
}

// CachedChecker переиспользует результат для одного URL в пределах ttl,
// чтобы плановый и ручной запуск не ходили на один хост дважды.
type CachedChecker struct {
	log   *slog.Logger
	next  HealthChecker
	store cache.KVStore
	ttl   time.Duration
}

type cachedResult struct {
	Status        *int     `json:"status"`
	CanonicalURL  *string  `json:"canonical_url"`
	RedirectChain []string `json:"redirect_chain"`
	Score         int      `json:"score"`
}

// NewCachedChecker создаёт новый экземпляр CachedChecker.
func NewCachedChecker(log *slog.Logger, next HealthChecker, store cache.KVStore, ttl time.Duration) *CachedChecker {
	return &CachedChecker{
		log:   log,
		next:  next,
		store: store,
		ttl:   ttl,
	}
}

// Check отдаёт результат из кэша или проверяет ссылку и сохраняет его.
// Ошибка кэша только логируется.
func (c *CachedChecker) Check(ctx context.Context, rawURL string) domain.LinkHealth {
	op := "linkhealth.CachedChecker.Check()"
	log := c.log.With(slog.String("op", op), slog.String("url", rawURL))

	key := cacheKey(rawURL)

	if !bypassCache(ctx) {
		raw, err := c.store.Get(ctx, key)
		switch {
		case err == nil:
			var cr cachedResult
			if err := json.Unmarshal([]byte(raw), &cr); err == nil {
				log.Debug("link health cache hit")
				return domain.LinkHealth(cr)
			}
			log.Warn("corrupt link health cache entry", slog.String("key", key))
		case errors.Is(err, cache.ErrCacheMiss):
		default:
			log.Warn("link health cache unavailable", sl.Err(err))
		}
	}

	result := c.next.Check(ctx, rawURL)

	b, err := json.Marshal(cachedResult(result))
	if err != nil {
		log.Warn("cannot encode link health result", sl.Err(err))
		return result
	}
	if err := c.store.Set(ctx, key, string(b), c.ttl); err != nil {
		log.Warn("cannot store link health result", sl.Err(err))
	}
	return result
}

func cacheKey(rawURL string) string {
	sum := sha1.Sum([]byte(rawURL))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}
