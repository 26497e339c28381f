package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DefaultAuditPolicy governs publishing of auth audit events to Kafka.
// Audit delivery is best-effort: we back off briefly but never block an
// auth request on the broker.
func DefaultAuditPolicy(log *zap.Logger) Policy {
	return Policy{
		Name:     "audit_publish",
		Attempts: 4,
		Backoff:  ExpoJitter{Base: 100 * time.Millisecond, Max: 2 * time.Second, Jitter: 0.2},
		Retryable: func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		},
		OnAttempt: func(i int, err error) {
			if log != nil {
				log.Warn("audit publish retry", zap.Int("attempt", i+1), zap.Error(err))
			}
		},
		OnExhaust: func(err error) {
			if log != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit publish retries exhausted", zap.Error(err))
			}
		},
	}
}
