package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// HealthProbePolicy paces the pre-cycle provider health probe. The probe is
// cheap, so a short ladder of attempts is enough before the cycle is abandoned.
func HealthProbePolicy(log *zap.Logger) Policy {
	return Policy{
		Name:     "provider_health",
		Attempts: 3,
		Backoff:  ExpoJitter{Base: 500 * time.Millisecond, Max: 5 * time.Second, Jitter: 0.2},
		Retryable: func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		},
		OnAttempt: func(i int, err error) {
			if log != nil {
				log.Warn("provider health probe", zap.Int("attempt", i+1), zap.Error(err))
			}
		},
		OnExhaust: func(err error) {
			if log != nil && !errors.Is(err, context.Canceled) {
				log.Error("provider health probe exhausted", zap.Error(err))
			}
		},
	}
}
