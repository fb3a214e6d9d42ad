package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/GoArmGo/PhotoGallery/internal/config"
	"github.com/GoArmGo/PhotoGallery/internal/core/ports"
	"github.com/GoArmGo/PhotoGallery/internal/handler"
	"github.com/GoArmGo/PhotoGallery/internal/metrics"
	"github.com/GoArmGo/PhotoGallery/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

// runServer запускает HTTP сервер и ждёт отмены ctx
func runServer(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	photoUseCase usecase.PhotoUseCase,
	optimizePublisher ports.OptimizePublisher,
	m *metrics.Metrics,
) error {
	photoHandler := handler.NewPhotoHandler(photoUseCase, optimizePublisher, logger)
	router := handler.NewRouter(photoHandler, handler.RouterConfig{
		RequestTimeout:     cfg.RequestTimeout,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Metrics:            m.Handler(),
	}, logger)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", serverAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received, stopping HTTP server")
	ctxServer, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctxServer); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("HTTP server stopped")
	return nil
}
