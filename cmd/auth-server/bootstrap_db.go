package main

import (
	"context"

	config "github.com/ateliero/configurator/internal/config/auth-server"
	pg "github.com/ateliero/configurator/internal/repository/postgres"
)

func initDB(ctx context.Context, cfg *config.Config) (*pg.DB, error) {
	return pg.New(ctx, cfg.DB)
}
