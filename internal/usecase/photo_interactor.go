package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/GoArmGo/PhotoGallery/internal/core/ports"
	"github.com/GoArmGo/PhotoGallery/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// PhotoUseCaseConfig содержит параметры, не относящиеся к зависимостям.
type PhotoUseCaseConfig struct {
	CDNBaseURL         string
	PresignTTL         time.Duration
	PresignConcurrency int
}

// photoUseCase implements PhotoUseCase
type photoUseCase struct {
	store     ports.ObjectStore
	photos    ports.PhotoStorage
	tags      ports.TagStorage
	optimizer PhotoOptimizer
	cfg       PhotoUseCaseConfig
	logger    *slog.Logger
}

// NewPhotoUseCase создает новый экземпляр PhotoUseCase
func NewPhotoUseCase(
	store ports.ObjectStore,
	photos ports.PhotoStorage,
	tags ports.TagStorage,
	optimizer PhotoOptimizer,
	cfg PhotoUseCaseConfig,
	logger *slog.Logger,
) PhotoUseCase {
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = time.Hour
	}
	if cfg.PresignConcurrency < 1 {
		cfg.PresignConcurrency = 1
	}
	return &photoUseCase{
		store:     store,
		photos:    photos,
		tags:      tags,
		optimizer: optimizer,
		cfg:       cfg,
		logger:    logger,
	}
}

// GetUploadTargets подписывает по одной PUT-ссылке на каждый файл.
// Порядок результата совпадает с порядком запросов.
func (uc *photoUseCase) GetUploadTargets(ctx context.Context, reqs []domain.UploadRequest) ([]domain.UploadTarget, error) {
	targets := make([]domain.UploadTarget, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.cfg.PresignConcurrency)
	for i, req := range reqs {
		g.Go(func() error {
			key := domain.UploadKey(req.Prefix, req.Filename)
			url, err := uc.store.PresignUpload(gctx, key, req.ContentType, uc.cfg.PresignTTL)
			if err != nil {
				return fmt.Errorf("usecase: presign %s: %w", key, err)
			}
			targets[i] = domain.UploadTarget{URL: url, Key: key}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	uc.logger.Debug("upload targets issued", slog.Int("count", len(targets)))
	return targets, nil
}

func (uc *photoUseCase) CreatePendingRecord(ctx context.Context, photoName, fullKey string) (uuid.UUID, error) {
	if strings.TrimSpace(photoName) == "" {
		photoName = domain.PhotoNameFromKey(fullKey)
	}
	pk, err := uc.photos.CreatePending(ctx, photoName, fullKey)
	if err != nil {
		return uuid.Nil, fmt.Errorf("usecase: create pending record for %s: %w", fullKey, err)
	}
	return pk, nil
}

func (uc *photoUseCase) Optimize(ctx context.Context, fullKey string) (*domain.OptimizeResult, error) {
	return uc.optimizer.Optimize(ctx, fullKey)
}

// ListReadyPhotos получает фото для галереи и проставляет им URL на CDN
func (uc *photoUseCase) ListReadyPhotos(ctx context.Context, filter domain.PhotoFilter) ([]domain.PhotoView, error) {
	photos, err := uc.photos.ListReady(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("usecase: list ready photos: %w", err)
	}

	views := make([]domain.PhotoView, 0, len(photos))
	for _, p := range photos {
		if !p.Displayable() {
			continue
		}
		views = append(views, domain.PhotoView{
			Photo:        p,
			ThumbnailURL: uc.cdnURL(*p.ThumbnailKey),
			GalleryURL:   uc.cdnURL(*p.GalleryKey),
		})
	}
	return views, nil
}

// DeletePhotos сначала удаляет объекты, потом записи.
// Если объекты удалить не удалось, записи остаются на месте.
func (uc *photoUseCase) DeletePhotos(ctx context.Context, pks []uuid.UUID) (int64, error) {
	if len(pks) == 0 {
		return 0, nil
	}

	photos, err := uc.photos.GetByPKs(ctx, pks)
	if err != nil {
		return 0, fmt.Errorf("usecase: load photos for delete: %w", err)
	}
	if len(photos) == 0 {
		return 0, nil
	}

	var keys []string
	found := make([]uuid.UUID, 0, len(photos))
	for _, p := range photos {
		keys = append(keys, p.StorageKeys()...)
		found = append(found, p.PK)
	}

	if err := uc.store.DeleteMany(ctx, keys); err != nil {
		return 0, fmt.Errorf("usecase: delete objects: %w", err)
	}

	deleted, err := uc.photos.DeleteByPKs(ctx, found)
	if err != nil {
		return 0, fmt.Errorf("usecase: delete photo records: %w", err)
	}

	uc.logger.Info("photos deleted",
		slog.Int64("records", deleted),
		slog.Int("objects", len(keys)),
	)
	return deleted, nil
}

func (uc *photoUseCase) ListObjects(ctx context.Context, prefix string) ([]domain.StoredObject, error) {
	objects, err := uc.store.ListWithPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("usecase: list objects under %q: %w", prefix, err)
	}
	for i := range objects {
		objects[i].URL = uc.cdnURL(objects[i].Key)
	}
	return objects, nil
}

func (uc *photoUseCase) ListTags(ctx context.Context) ([]domain.Tag, error) {
	return uc.tags.ListTags(ctx)
}

func (uc *photoUseCase) CreateTag(ctx context.Context, name string, description *string) (*domain.Tag, error) {
	tag, err := uc.tags.CreateTag(ctx, name, description)
	if err != nil {
		return nil, fmt.Errorf("usecase: create tag %q: %w", name, err)
	}
	return tag, nil
}

func (uc *photoUseCase) DeleteTag(ctx context.Context, pk uuid.UUID) error {
	return uc.tags.DeleteTag(ctx, pk)
}

func (uc *photoUseCase) AssignTag(ctx context.Context, tagPK uuid.UUID, photoPKs []uuid.UUID) error {
	return uc.tags.AssignTag(ctx, tagPK, photoPKs)
}

func (uc *photoUseCase) UnassignTag(ctx context.Context, tagPK uuid.UUID, photoPKs []uuid.UUID) error {
	return uc.tags.UnassignTag(ctx, tagPK, photoPKs)
}

func (uc *photoUseCase) cdnURL(key string) string {
	base := strings.TrimRight(uc.cfg.CDNBaseURL, "/")
	if base == "" {
		return key
	}
	return base + "/" + strings.TrimLeft(key, "/")
}
