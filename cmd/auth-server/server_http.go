package main

import (
	"context"
	"net/http"
	"time"

	config "github.com/ateliero/configurator/internal/config/auth-server"
	"github.com/ateliero/configurator/internal/obs"
	pg "github.com/ateliero/configurator/internal/repository/postgres"
	redisrepo "github.com/ateliero/configurator/internal/repository/redis"
	"github.com/ateliero/configurator/internal/services/auth"
	"github.com/ateliero/configurator/internal/token"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func buildHTTPServer(cfg *config.Config, logger *zap.Logger, db *pg.DB, rdb *redis.Client, audit auth.Auditor) (*http.Server, error) {
	codec, err := token.NewCodec(cfg.Auth.AsTokenConfig())
	if err != nil {
		return nil, err
	}

	users := pg.NewUserRepo(db)
	sessions := pg.NewSessionRepo(db)
	revoked := redisrepo.NewRevocationIndex(rdb)
	tx := pg.NewTransactor(db, logger)

	svc := auth.NewService(users, sessions, revoked, codec, tx, audit, logger, auth.Config{
		BcryptCost: cfg.Auth.BcryptCost,
	})
	cookies := auth.NewCookieManager(cfg.Auth.AsCookieConfig())
	gate := auth.NewGate(codec, revoked, sessions, cookies, logger)
	handler := auth.NewHandler(svc, gate, cookies, logger, auth.HandlerOpts{
		Limiter:           redisrepo.NewSlidingWindowLimiter(rdb),
		TrustProxyHeaders: cfg.Auth.TrustProxyHeaders,
	})

	root := http.NewServeMux()
	root.Handle("/auth/", obs.HTTPMiddleware("auth")(handler.Routes()))
	root.Handle("/metrics", obs.MetricsHandler())
	root.Handle("/healthz", obs.HealthHandler(
		func(ctx context.Context) error { return db.Pool.Ping(ctx) },
		func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	))

	return &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           root,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}, nil
}

func serveHTTP(srv *http.Server, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
	return srv.ListenAndServe()
}
