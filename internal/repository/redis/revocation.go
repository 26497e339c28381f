package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ateliero/configurator/internal/domain/session"
)

type Config struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

var _ session.RevocationIndex = (*RevocationIndex)(nil)

// RevocationIndex keeps blacklisted token ids in redis, each keyed with a TTL
// equal to the remaining life of the token it guards, so the set never grows
// past the population of live tokens.
type RevocationIndex struct {
	rdb *redis.Client
}

func NewRevocationIndex(rdb *redis.Client) *RevocationIndex {
	return &RevocationIndex{rdb: rdb}
}

func revocationKey(jti string) string { return "auth:revoked:" + jti }

func (r *RevocationIndex) Blacklist(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		// token already past natural expiry; nothing to guard
		return nil
	}
	if err := r.rdb.Set(ctx, revocationKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("blacklist %s: %w", jti, err)
	}
	return nil
}

func (r *RevocationIndex) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	err := r.rdb.Get(ctx, revocationKey(jti)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("blacklist lookup %s: %w", jti, err)
	}
	return true, nil
}

func (r *RevocationIndex) Consume(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Second
	}
	first, err := r.rdb.SetNX(ctx, "auth:consumed:"+jti, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("consume %s: %w", jti, err)
	}
	return first, nil
}
