package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taxEvents/internal/config"

	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss возвращается, если ключа нет или он истёк.
var ErrCacheMiss = errors.New("cache miss")

// KVStore определяет key-value хранилище для короткоживущих кэшей.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// RedisKVStore реализует KVStore поверх go-redis.
type RedisKVStore struct {
	client *redis.Client
}

// NewRedisClient создаёт клиента redis по конфигу.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewRedisKVStore создаёт новый экземпляр RedisKVStore.
func NewRedisKVStore(client *redis.Client) *RedisKVStore {
	return &RedisKVStore{client: client}
}

// Get возвращает ErrCacheMiss для отсутствующего ключа.
func (r *RedisKVStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrCacheMiss
		}
		return "", fmt.Errorf("redis get %q: %w", key, err)
	}
	return val, nil
}

func (r *RedisKVStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Ping проверяет доступность redis при старте.
func (r *RedisKVStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Shutdown закрывает соединения с redis.
func (r *RedisKVStore) Shutdown(_ context.Context) error {
	return r.client.Close()
}
