package main

import (
	config "github.com/ateliero/configurator/internal/config/auth-server"
	kafkarepo "github.com/ateliero/configurator/internal/repository/kafka"
	"github.com/ateliero/configurator/internal/services/auth"
	"go.uber.org/zap"
)

// initAudit returns a no-op publisher when kafka is disabled, so the rest of
// the wiring never branches on it.
func initAudit(cfg *config.Config, logger *zap.Logger) (auth.Auditor, func()) {
	if !cfg.Kafka.Enable {
		return auth.NopAuditor{}, func() {}
	}
	producer := kafkarepo.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic).WithLogger(logger)
	pub := kafkarepo.NewAuditPublisher(producer, logger)
	return pub, func() { _ = producer.Close() }
}
