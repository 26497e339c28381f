package main

import (
	config "github.com/ateliero/configurator/internal/config/auth-server"
	"github.com/ateliero/configurator/internal/obs"
	"go.uber.org/zap"
)

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	return obs.NewLogger(cfg.Log.AsLoggerConfig(cfg.App))
}
