package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/GoArmGo/PhotoGallery/internal/core/ports"
	"github.com/GoArmGo/PhotoGallery/internal/messaging/payloads"
	"github.com/GoArmGo/PhotoGallery/internal/usecase"
)

// runWorker потребляет задачи оптимизации из очереди до отмены ctx
func runWorker(
	ctx context.Context,
	logger *slog.Logger,
	photoUseCase usecase.PhotoUseCase,
	consumer ports.OptimizeConsumer,
) error {
	handle := func(ctx context.Context, payload payloads.OptimizePayload) error {
		logger.Info("processing optimize job",
			"full_key", payload.FullKey,
			"queued_for_ms", queuedFor(payload),
		)
		if _, err := photoUseCase.Optimize(ctx, payload.FullKey); err != nil {
			return fmt.Errorf("optimize %s: %w", payload.FullKey, err)
		}
		return nil
	}

	if err := consumer.StartConsumingOptimizeRequests(ctx, handle); err != nil {
		return fmt.Errorf("failed to start RabbitMQ consumer: %w", err)
	}
	logger.Info("worker started, waiting for optimize jobs")

	<-ctx.Done()
	logger.Info("shutdown signal received, stopping worker")
	return nil
}

func queuedFor(p payloads.OptimizePayload) int64 {
	if p.RequestedAt.IsZero() {
		return 0
	}
	return time.Since(p.RequestedAt).Milliseconds()
}
