package usecase

import (
	"context"
	"image"

	"github.com/GoArmGo/PhotoGallery/internal/domain"
	"github.com/google/uuid"
)

// MetadataExtractor извлекает EXIF-метаданные из исходных байт.
// Никогда не возвращает ошибку: при неудаче отдаёт пустую запись.
type MetadataExtractor interface {
	Extract(raw []byte) domain.CaptureMetadata
}

// RenditionGenerator декодирует исходник один раз и строит из него производные изображения.
// Render не изменяет src и может вызываться параллельно.
type RenditionGenerator interface {
	Decode(raw []byte) (image.Image, error)
	Render(src image.Image, profile domain.RenditionProfile, meta domain.CaptureMetadata) (domain.Rendition, error)
}

// PhotoOptimizer описывает оркестратор оптимизации одного оригинала.
type PhotoOptimizer interface {
	Optimize(ctx context.Context, fullKey string) (*domain.OptimizeResult, error)
}

// PhotoUseCase определяет бизнес-логику админки галереи.
type PhotoUseCase interface {
	// GetUploadTargets выдаёт presigned-ссылки для прямой загрузки исходников в хранилище.
	GetUploadTargets(ctx context.Context, reqs []domain.UploadRequest) ([]domain.UploadTarget, error)

	// CreatePendingRecord создаёт или сбрасывает запись в статус pending.
	CreatePendingRecord(ctx context.Context, photoName, fullKey string) (uuid.UUID, error)

	Optimize(ctx context.Context, fullKey string) (*domain.OptimizeResult, error)

	// ListReadyPhotos отдаёт только фото, готовые к показу, с URL на CDN.
	ListReadyPhotos(ctx context.Context, filter domain.PhotoFilter) ([]domain.PhotoView, error)

	// DeletePhotos удаляет объекты и записи. Возвращает число удалённых записей.
	DeletePhotos(ctx context.Context, pks []uuid.UUID) (int64, error)

	ListObjects(ctx context.Context, prefix string) ([]domain.StoredObject, error)

	ListTags(ctx context.Context) ([]domain.Tag, error)
	CreateTag(ctx context.Context, name string, description *string) (*domain.Tag, error)
	DeleteTag(ctx context.Context, pk uuid.UUID) error
	AssignTag(ctx context.Context, tagPK uuid.UUID, photoPKs []uuid.UUID) error
	UnassignTag(ctx context.Context, tagPK uuid.UUID, photoPKs []uuid.UUID) error
}
