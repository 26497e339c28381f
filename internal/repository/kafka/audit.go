package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ateliero/configurator/internal/obs/retry"
	"github.com/ateliero/configurator/internal/services/auth"
)

var _ auth.Auditor = (*AuditPublisher)(nil)

// AuditPublisher ships auth audit events to Kafka, keyed by user id so one
// user's events land on one partition in order. Publishing happens off the
// request goroutine; delivery is retried per DefaultAuditPolicy and dropped
// after exhaustion.
type AuditPublisher struct {
	producer *Producer
	log      *zap.Logger
	timeout  time.Duration
}

func NewAuditPublisher(producer *Producer, log *zap.Logger) *AuditPublisher {
	return &AuditPublisher{
		producer: producer,
		log:      log.With(zap.String("component", "audit")),
		timeout:  10 * time.Second,
	}
}

func (a *AuditPublisher) Publish(ctx context.Context, ev auth.AuditEvent) {
	go func() {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()

		err := retry.Do(pctx, func() error {
			return a.producer.PublishJSON(pctx, []byte(ev.UserID), ev)
		}, retry.DefaultAuditPolicy(a.log))
		if err != nil {
			a.log.Warn("audit event dropped",
				zap.String("type", ev.Type),
				zap.String("user_id", ev.UserID),
				zap.Error(err))
		}
	}()
}
