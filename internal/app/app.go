package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/GoArmGo/PhotoGallery/internal/config"
	"github.com/GoArmGo/PhotoGallery/internal/core/ports"
	"github.com/GoArmGo/PhotoGallery/internal/metrics"
	"github.com/GoArmGo/PhotoGallery/internal/usecase"
)

const (
	ModeServer = "server"
	ModeWorker = "worker"
)

type App struct {
	Config            *config.Config
	logger            *slog.Logger
	photoUseCase      usecase.PhotoUseCase
	optimizePublisher ports.OptimizePublisher
	optimizeConsumer  ports.OptimizeConsumer
	metrics           *metrics.Metrics
	closers           []io.Closer
}

// NewApp собирает приложение. publisher и consumer равны nil, если RabbitMQ не настроен.
// closers закрываются в обратном порядке при Shutdown.
func NewApp(
	cfg *config.Config,
	logger *slog.Logger,
	photoUseCase usecase.PhotoUseCase,
	optimizePublisher ports.OptimizePublisher,
	optimizeConsumer ports.OptimizeConsumer,
	m *metrics.Metrics,
	closers ...io.Closer,
) *App {
	return &App{
		Config:            cfg,
		logger:            logger,
		photoUseCase:      photoUseCase,
		optimizePublisher: optimizePublisher,
		optimizeConsumer:  optimizeConsumer,
		metrics:           m,
		closers:           closers,
	}
}

func (a *App) Run(ctx context.Context, mode string) error {
	// канал для graceful shutdown
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.logger.Info("starting application", "mode", mode)

	var err error
	switch mode {
	case ModeServer:
		err = runServer(ctx, a.Config, a.logger, a.photoUseCase, a.optimizePublisher, a.metrics)
	case ModeWorker:
		if a.optimizeConsumer == nil {
			err = errors.New("worker mode requires RABBITMQ_URL")
			break
		}
		err = runWorker(ctx, a.logger, a.photoUseCase, a.optimizeConsumer)
	default:
		err = fmt.Errorf("unknown mode %q (use %q or %q)", mode, ModeServer, ModeWorker)
	}

	if closeErr := a.Shutdown(); closeErr != nil {
		a.logger.Error("shutdown finished with errors", "error", closeErr)
	}
	if err != nil {
		return err
	}

	a.logger.Info("application stopped")
	return nil
}

// Shutdown закрывает все ресурсы приложения
func (a *App) Shutdown() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoggerIns возвращает основной логгер приложения.
func (a *App) LoggerIns() *slog.Logger {
	return a.logger
}
