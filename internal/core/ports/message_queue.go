package ports

import (
	"context"

	"github.com/GoArmGo/PhotoGallery/internal/messaging/payloads"
)

// OptimizePublisher публикует запросы на оптимизацию в очередь.
// Используется HTTP-обработчиком при асинхронном режиме.
type OptimizePublisher interface {
	PublishOptimizeRequest(ctx context.Context, payload payloads.OptimizePayload) error
}

// OptimizeConsumer потребляет запросы на оптимизацию из очереди.
type OptimizeConsumer interface {
	// StartConsumingOptimizeRequests слушает очередь до отмены ctx.
	// handler вызывается для каждого полученного сообщения.
	StartConsumingOptimizeRequests(ctx context.Context, handler func(context.Context, payloads.OptimizePayload) error) error
}
