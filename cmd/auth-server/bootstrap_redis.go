package main

import (
	"context"

	config "github.com/ateliero/configurator/internal/config/auth-server"
	redisrepo "github.com/ateliero/configurator/internal/repository/redis"
	"github.com/redis/go-redis/v9"
)

func initRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	return redisrepo.NewClient(ctx, cfg.Redis)
}
