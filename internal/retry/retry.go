// Package retry содержит обёртку для повторов идемпотентных удалённых вызовов
// с ограниченным числом попыток и экспоненциальной задержкой.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy задаёт число попыток и кривую задержки.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultPolicy: 3 попытки, задержка min(1s*2^n, 30s).
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2,
	}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Permanent помечает ошибку как неповторяемую.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do выполняет op, повторяя её по политике p. Возвращается последняя ошибка.
func Do[T any](ctx context.Context, p Policy, logger *slog.Logger, op func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	return backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		return op(ctx)
	}, p.backOff(ctx), func(err error, wait time.Duration) {
		if logger != nil {
			logger.Warn("retrying remote call",
				"attempt", attempt,
				"max_attempts", p.MaxAttempts,
				"wait_ms", wait.Milliseconds(),
				"error", err,
			)
		}
	})
}
