package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/GoArmGo/PhotoGallery/internal/core/ports"
	"github.com/GoArmGo/PhotoGallery/internal/domain"
	"github.com/GoArmGo/PhotoGallery/internal/keylock"
	"github.com/GoArmGo/PhotoGallery/internal/metrics"
	"golang.org/x/sync/errgroup"
)

const markErrorTimeout = 5 * time.Second

// Optimizer превращает загруженный оригинал в thumbnail и gallery рендишены
// и переводит запись в ready. Сам ничего не ретраит.
type Optimizer struct {
	store     ports.ObjectStore
	photos    ports.PhotoStorage
	extractor MetadataExtractor
	renderer  RenditionGenerator
	locks     *keylock.Locker
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

type OptimizerOption func(*Optimizer)

// WithKeyLock сериализует оптимизации одного и того же fullKey внутри процесса.
func WithKeyLock(l *keylock.Locker) OptimizerOption {
	return func(o *Optimizer) { o.locks = l }
}

func WithMetrics(m *metrics.Metrics) OptimizerOption {
	return func(o *Optimizer) { o.metrics = m }
}

func NewOptimizer(
	store ports.ObjectStore,
	photos ports.PhotoStorage,
	extractor MetadataExtractor,
	renderer RenditionGenerator,
	logger *slog.Logger,
	opts ...OptimizerOption,
) *Optimizer {
	o := &Optimizer{
		store:     store,
		photos:    photos,
		extractor: extractor,
		renderer:  renderer,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Optimize прогоняет один оригинал через конвейер.
// При любой ошибке после захвата блокировки запись (если есть) помечается как error.
func (o *Optimizer) Optimize(ctx context.Context, fullKey string) (*domain.OptimizeResult, error) {
	if o.locks != nil {
		unlock, err := o.locks.Lock(ctx, fullKey)
		if err != nil {
			return nil, fmt.Errorf("usecase: wait for lock on %s: %w", fullKey, err)
		}
		defer unlock()
	}

	defer o.metrics.TrackInFlight()()
	start := time.Now()

	res, err := o.optimize(ctx, fullKey)
	o.metrics.ObserveOptimize(outcomeOf(err), time.Since(start))
	if err != nil {
		o.markError(ctx, fullKey)
		o.logger.Error("optimize failed",
			slog.String("full_key", fullKey),
			slog.Any("error", err),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return nil, err
	}

	o.logger.Info("photo optimized",
		slog.String("full_key", fullKey),
		slog.String("pk", res.PK.String()),
		slog.Int("raw_size", res.RawSize),
		slog.Int("thumbnail_size", res.ThumbnailSize),
		slog.Int("gallery_size", res.GallerySize),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return res, nil
}

func (o *Optimizer) optimize(ctx context.Context, fullKey string) (*domain.OptimizeResult, error) {
	raw, err := o.store.Get(ctx, fullKey)
	if err != nil {
		if errors.Is(err, domain.ErrObjectNotFound) {
			return nil, fmt.Errorf("usecase: %s: %w", fullKey, domain.ErrSourceNotFound)
		}
		return nil, fmt.Errorf("usecase: fetch source %s: %w", fullKey, err)
	}

	base := domain.BaseName(fullKey)
	meta := o.extractor.Extract(raw)

	src, err := o.renderer.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("usecase: decode %s: %w", fullKey, asDecodeError(err))
	}

	var thumb, gallery domain.Rendition
	var rg errgroup.Group
	rg.Go(func() error {
		var err error
		thumb, err = o.renderer.Render(src, domain.ThumbnailProfile, meta)
		return err
	})
	rg.Go(func() error {
		var err error
		gallery, err = o.renderer.Render(src, domain.GalleryProfile, meta)
		return err
	})
	if err := rg.Wait(); err != nil {
		return nil, fmt.Errorf("usecase: render %s: %w", fullKey, asDecodeError(err))
	}

	thumbKey := domain.ThumbnailProfile.Key(base)
	galleryKey := domain.GalleryProfile.Key(base)
	objectMeta := meta.ObjectMetadata()

	wg, wctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		return o.store.Put(wctx, thumbKey, thumb.Bytes, thumb.ContentType, objectMeta)
	})
	wg.Go(func() error {
		return o.store.Put(wctx, galleryKey, gallery.Bytes, gallery.ContentType, objectMeta)
	})
	if err := wg.Wait(); err != nil {
		return nil, fmt.Errorf("usecase: write renditions for %s: %w: %w", fullKey, domain.ErrStoreWrite, err)
	}
	o.metrics.ObserveRendition(domain.ThumbnailProfile.Name, thumb.Size())
	o.metrics.ObserveRendition(domain.GalleryProfile.Name, gallery.Size())

	createdAt := o.now().UTC()
	if meta.CapturedAt != nil {
		createdAt = *meta.CapturedAt
	}

	pk, err := o.photos.MarkReady(ctx, fullKey, domain.ReadyUpdate{
		ThumbnailKey:      thumbKey,
		GalleryKey:        galleryKey,
		OriginalCreatedAt: createdAt,
		Metadata:          meta,
	})
	if err != nil {
		return nil, fmt.Errorf("usecase: mark %s ready: %w: %w", fullKey, domain.ErrRecordUpdate, err)
	}

	return &domain.OptimizeResult{
		PK:            pk,
		RawSize:       len(raw),
		ThumbnailSize: thumb.Size(),
		GallerySize:   gallery.Size(),
		ThumbnailKey:  thumbKey,
		GalleryKey:    galleryKey,
	}, nil
}

// markError не должен зависеть от отмены исходного запроса.
func (o *Optimizer) markError(ctx context.Context, fullKey string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markErrorTimeout)
	defer cancel()

	found, err := o.photos.MarkError(ctx, fullKey)
	if err != nil {
		o.logger.Warn("failed to mark photo as error",
			slog.String("full_key", fullKey),
			slog.Any("error", err),
		)
		return
	}
	if !found {
		o.logger.Debug("no record to mark as error", slog.String("full_key", fullKey))
	}
}

// asDecodeError гарантирует, что любая ошибка генератора классифицируется как ErrDecodeOrEncode.
func asDecodeError(err error) error {
	if errors.Is(err, domain.ErrDecodeOrEncode) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrDecodeOrEncode, err)
}

func outcomeOf(err error) metrics.Outcome {
	switch {
	case err == nil:
		return metrics.OutcomeReady
	case errors.Is(err, domain.ErrSourceNotFound):
		return metrics.OutcomeSourceNotFound
	case errors.Is(err, domain.ErrDecodeOrEncode):
		return metrics.OutcomeDecodeFailure
	case errors.Is(err, domain.ErrStoreWrite):
		return metrics.OutcomeStoreWrite
	case errors.Is(err, domain.ErrRecordUpdate):
		return metrics.OutcomeRecordUpdate
	default:
		return metrics.OutcomeOther
	}
}
