package redis

import (
	"context"
	"fmt"
	"time"

	"messagely/internal/storage"

	"github.com/redis/go-redis/v9"
)

type RedisRepo struct {
	client *redis.Client
}

func New(ctx context.Context, addr, pass string, db int) (*RedisRepo, error) {
	const op = "storage.redis.New"

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     pass,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RedisRepo{
		client: client,
	}, nil
}

// RevokeToken stores the claim's issuance id for ttl, the remaining
// lifetime of the claim. After that the claim expires on its own and the
// entry is no longer needed.
func (r *RedisRepo) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	const op = "storage.redis.RevokeToken"

	if ttl <= 0 {
		return nil
	}

	key := fmt.Sprintf("session:revoked:%s", tokenID)

	if err := r.client.Set(ctx, key, "revoked", ttl).Err(); err != nil {
		return storage.Unavailable(op, err)
	}

	return nil
}

// IsTokenRevoked reports whether the issuance id sits on the revocation
// list. Checked on every request before a claim is trusted.
func (r *RedisRepo) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	const op = "storage.redis.IsTokenRevoked"

	key := fmt.Sprintf("session:revoked:%s", tokenID)

	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, storage.Unavailable(op, err)
	}

	return n > 0, nil
}

func (r *RedisRepo) Close() {
	r.client.Close()
}
