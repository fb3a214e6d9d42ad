package ports

import (
	"context"
	"time"

	"github.com/GoArmGo/PhotoGallery/internal/domain"
	"github.com/google/uuid"
)

// PhotoStorage — хранилище записей о фотографиях.
type PhotoStorage interface {
	CreatePending(ctx context.Context, photoName, fullKey string) (uuid.UUID, error)
	// MarkReady переводит запись в ready, создавая её при отсутствии.
	MarkReady(ctx context.Context, fullKey string, upd domain.ReadyUpdate) (uuid.UUID, error)
	// MarkError возвращает false, если записи для ключа нет.
	MarkError(ctx context.Context, fullKey string) (bool, error)
	GetByPKs(ctx context.Context, pks []uuid.UUID) ([]domain.Photo, error)
	ListReady(ctx context.Context, filter domain.PhotoFilter) ([]domain.Photo, error)
	DeleteByPKs(ctx context.Context, pks []uuid.UUID) (int64, error)
}

// TagStorage — хранилище тегов и их привязок к фото.
type TagStorage interface {
	ListTags(ctx context.Context) ([]domain.Tag, error)
	CreateTag(ctx context.Context, name string, description *string) (*domain.Tag, error)
	DeleteTag(ctx context.Context, pk uuid.UUID) error
	AssignTag(ctx context.Context, tagPK uuid.UUID, photoPKs []uuid.UUID) error
	UnassignTag(ctx context.Context, tagPK uuid.UUID, photoPKs []uuid.UUID) error
}

// ObjectStore описывает S3-совместимое хранилище для оригиналов и рендишенов.
type ObjectStore interface {
	// Get возвращает domain.ErrObjectNotFound, если ключа нет.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte, contentType string, metadata map[string]string) error
	// DeleteMany не считает ошибкой отсутствие ключа.
	DeleteMany(ctx context.Context, keys []string) error
	// ListWithPrefix возвращает объекты в естественном порядке ключей.
	ListWithPrefix(ctx context.Context, prefix string) ([]domain.StoredObject, error)
	PresignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
}
