package di

import (
	"context"
	"io"

	"github.com/GoArmGo/PhotoGallery/internal/adapter/storage/s3store"
	"github.com/GoArmGo/PhotoGallery/internal/app"
	"github.com/GoArmGo/PhotoGallery/internal/config"
	"github.com/GoArmGo/PhotoGallery/internal/core/ports"
	"github.com/GoArmGo/PhotoGallery/internal/database/client"
	"github.com/GoArmGo/PhotoGallery/internal/database/storage"
	"github.com/GoArmGo/PhotoGallery/internal/keylock"
	"github.com/GoArmGo/PhotoGallery/internal/logger"
	"github.com/GoArmGo/PhotoGallery/internal/media"
	"github.com/GoArmGo/PhotoGallery/internal/metrics"
	"github.com/GoArmGo/PhotoGallery/internal/rabbitmq"
	"github.com/GoArmGo/PhotoGallery/internal/usecase"
)

// BuildApp инициализирует все зависимости и возвращает готовый объект App.
func BuildApp(ctx context.Context) (*app.App, error) {
	// 1. Загрузка конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	slogger := logger.NewSlog(logger.SlogConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})
	slogger.Info("logger initialized", "level", cfg.LogLevel, "format", cfg.LogFormat)

	var closers []io.Closer
	fail := func(err error) (*app.App, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
		return nil, err
	}

	// 2. База данных: PostgreSQL или SQLite для локальной разработки
	dbClient, err := client.NewClient(cfg.DatabaseURL, slogger)
	if err != nil {
		return nil, err
	}
	closers = append(closers, dbClient)

	// 3. Хранилища
	photoStorage := storage.NewPhotoStorage(dbClient.Gorm, dbClient.DB, slogger)
	tagStorage := storage.NewTagStorage(dbClient.Gorm, slogger)

	// 4. Объектное хранилище
	objectStore, err := s3store.NewClient(ctx, s3store.Config{
		Endpoint:        cfg.S3.Endpoint,
		Region:          cfg.S3.Region,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		Bucket:          cfg.S3.Bucket,
		UsePathStyle:    cfg.S3.UsePathStyle,
		MaxAttempts:     cfg.S3.MaxAttempts,
	}, slogger)
	if err != nil {
		return fail(err)
	}
	if cfg.S3.CreateBucket {
		if err := objectStore.EnsureBucket(ctx); err != nil {
			return fail(err)
		}
	}

	// 5. RabbitMQ опционален: без него нет async-оптимизации и режима worker
	var (
		publisher ports.OptimizePublisher
		consumer  ports.OptimizeConsumer
	)
	if cfg.AsyncEnabled() {
		mq, err := rabbitmq.NewClient(cfg.RabbitMQ.RabbitMQURL, cfg.RabbitMQ.RabbitMQQueueName, slogger)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, mq)
		publisher, consumer = mq, mq
	} else {
		slogger.Info("RABBITMQ_URL not set, async optimize disabled")
	}

	// 6. Бизнес-логика
	m := metrics.New()
	optimizerOpts := []usecase.OptimizerOption{usecase.WithMetrics(m)}
	if cfg.OptimizeKeyLock {
		optimizerOpts = append(optimizerOpts, usecase.WithKeyLock(keylock.New()))
	}
	optimizer := usecase.NewOptimizer(
		objectStore,
		photoStorage,
		media.NewMetadataExtractor(slogger),
		media.NewRenditionGenerator(slogger, media.WithMaxSourcePixels(cfg.MaxSourcePixels)),
		slogger,
		optimizerOpts...,
	)

	photoUseCase := usecase.NewPhotoUseCase(objectStore, photoStorage, tagStorage, optimizer, usecase.PhotoUseCaseConfig{
		CDNBaseURL:         cfg.CDNBaseURL,
		PresignTTL:         cfg.PresignTTL,
		PresignConcurrency: cfg.PresignConcurrency,
	}, slogger)

	// 7. Сборка итогового приложения
	application := app.NewApp(cfg, slogger, photoUseCase, publisher, consumer, m, closers...)

	slogger.Info("all dependencies initialized")
	return application, nil
}
