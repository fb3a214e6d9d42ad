package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/GoArmGo/PhotoGallery/internal/domain"
	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var photoColumns = []string{
	"pk", "status", "photo_name", "full_key", "thumbnail_key", "gallery_key",
	"original_created_at", "camera_make", "camera_model", "f_number", "iso",
	"focal_length", "exposure_time", "created_at", "updated_at",
}

// PhotoStorage хранит записи фото. Запись идёт через GORM, выборки с фильтрами через sqlx + squirrel.
type PhotoStorage struct {
	db     *gorm.DB
	sqlx   *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewPhotoStorage(db *gorm.DB, sqlxDB *sqlx.DB, logger *slog.Logger) *PhotoStorage {
	return &PhotoStorage{
		db:     db,
		sqlx:   sqlxDB,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreatePending создаёт запись в статусе pending или сбрасывает существующую с тем же full_key:
// производные ключи и метаданные обнуляются.
func (s *PhotoStorage) CreatePending(ctx context.Context, photoName, fullKey string) (uuid.UUID, error) {
	start := time.Now()
	now := s.now()

	photo := domain.Photo{
		PK:                uuid.New(),
		Status:            domain.StatusPending,
		PhotoName:         photoName,
		FullKey:           fullKey,
		OriginalCreatedAt: now,
	}
	pk, err := s.upsert(ctx, &photo, map[string]interface{}{
		"status":              domain.StatusPending,
		"photo_name":          photoName,
		"thumbnail_key":       nil,
		"gallery_key":         nil,
		"original_created_at": now,
		"camera_make":         nil,
		"camera_model":        nil,
		"f_number":            nil,
		"iso":                 nil,
		"focal_length":        nil,
		"exposure_time":       nil,
		"updated_at":          now,
	})
	if err != nil {
		s.logger.Error("failed to create pending photo", "full_key", fullKey, "error", err)
		return uuid.Nil, fmt.Errorf("create pending photo %s: %w", fullKey, err)
	}

	s.logger.Info("pending photo saved",
		"pk", pk,
		"full_key", fullKey,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return pk, nil
}

// MarkReady записывает результат оптимизации. Если записи ещё нет, она создаётся
// с именем из ключа.
func (s *PhotoStorage) MarkReady(ctx context.Context, fullKey string, upd domain.ReadyUpdate) (uuid.UUID, error) {
	start := time.Now()
	now := s.now()
	meta := upd.Metadata

	photo := domain.Photo{
		PK:                uuid.New(),
		Status:            domain.StatusReady,
		PhotoName:         domain.PhotoNameFromKey(fullKey),
		FullKey:           fullKey,
		ThumbnailKey:      &upd.ThumbnailKey,
		GalleryKey:        &upd.GalleryKey,
		OriginalCreatedAt: upd.OriginalCreatedAt.UTC(),
		CameraMake:        meta.Make,
		CameraModel:       meta.Model,
		FNumber:           meta.FNumber,
		ISO:               meta.ISO,
		FocalLength:       meta.FocalLength,
		ExposureTime:      meta.ExposureTime,
	}
	pk, err := s.upsert(ctx, &photo, map[string]interface{}{
		"status":              domain.StatusReady,
		"thumbnail_key":       upd.ThumbnailKey,
		"gallery_key":         upd.GalleryKey,
		"original_created_at": upd.OriginalCreatedAt.UTC(),
		"camera_make":         nullable(meta.Make),
		"camera_model":        nullable(meta.Model),
		"f_number":            nullable(meta.FNumber),
		"iso":                 nullable(meta.ISO),
		"focal_length":        nullable(meta.FocalLength),
		"exposure_time":       nullable(meta.ExposureTime),
		"updated_at":          now,
	})
	if err != nil {
		s.logger.Error("failed to mark photo ready", "full_key", fullKey, "error", err)
		return uuid.Nil, fmt.Errorf("mark photo %s ready: %w", fullKey, err)
	}

	s.logger.Info("photo marked ready",
		"pk", pk,
		"full_key", fullKey,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return pk, nil
}

// MarkError переводит существующую запись в error. Новую запись не создаёт.
// Возвращает false, если записи с таким ключом нет.
func (s *PhotoStorage) MarkError(ctx context.Context, fullKey string) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&domain.Photo{}).
		Where("full_key = ?", fullKey).
		Updates(map[string]interface{}{
			"status":     domain.StatusError,
			"updated_at": s.now(),
		})
	if res.Error != nil {
		s.logger.Error("failed to mark photo error", "full_key", fullKey, "error", res.Error)
		return false, fmt.Errorf("mark photo %s error: %w", fullKey, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *PhotoStorage) upsert(ctx context.Context, photo *domain.Photo, updates map[string]interface{}) (uuid.UUID, error) {
	if !photo.Status.Valid() {
		return uuid.Nil, fmt.Errorf("upsert photo %s: invalid status %q", photo.FullKey, photo.Status)
	}
	if st, ok := updates["status"].(domain.Status); ok && !st.Valid() {
		return uuid.Nil, fmt.Errorf("upsert photo %s: invalid status %q", photo.FullKey, st)
	}

	var pk uuid.UUID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "full_key"}},
			DoUpdates: clause.Assignments(updates),
		}).Create(photo).Error
		if err != nil {
			return err
		}

		var stored domain.Photo
		if err := tx.Select("pk").Where("full_key = ?", photo.FullKey).Take(&stored).Error; err != nil {
			return err
		}
		pk = stored.PK
		return nil
	})
	return pk, err
}

// GetByFullKey возвращает запись по ключу исходника или domain.ErrPhotoNotFound.
func (s *PhotoStorage) GetByFullKey(ctx context.Context, fullKey string) (*domain.Photo, error) {
	var photo domain.Photo
	err := s.db.WithContext(ctx).Where("full_key = ?", fullKey).Take(&photo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPhotoNotFound
		}
		return nil, fmt.Errorf("get photo by full key %s: %w", fullKey, err)
	}
	return &photo, nil
}

// GetByPKs возвращает найденные записи, отсутствующие pk молча пропускаются.
func (s *PhotoStorage) GetByPKs(ctx context.Context, pks []uuid.UUID) ([]domain.Photo, error) {
	if len(pks) == 0 {
		return nil, nil
	}
	var photos []domain.Photo
	if err := s.db.WithContext(ctx).Where("pk IN ?", pks).Find(&photos).Error; err != nil {
		return nil, fmt.Errorf("get photos by pk: %w", err)
	}
	return photos, nil
}

// ListReady возвращает фото, готовые к показу в галерее.
func (s *PhotoStorage) ListReady(ctx context.Context, filter domain.PhotoFilter) ([]domain.Photo, error) {
	start := time.Now()

	query, args, err := buildListReadyQuery(filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	photos := []domain.Photo{}
	if err := s.sqlx.SelectContext(ctx, &photos, s.sqlx.Rebind(query), args...); err != nil {
		s.logger.Error("failed to list ready photos", "error", err)
		return nil, fmt.Errorf("list ready photos: %w", err)
	}

	s.logger.Info("ready photos listed",
		"count", len(photos),
		"tags", filter.Tags,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return photos, nil
}

func buildListReadyQuery(filter domain.PhotoFilter) sq.SelectBuilder {
	q := sq.Select(photoColumns...).
		From("photos").
		Where(sq.Eq{"status": string(domain.StatusReady)}).
		Where(sq.NotEq{"thumbnail_key": nil}).
		Where(sq.NotEq{"gallery_key": nil})

	if len(filter.Tags) > 0 {
		// подзапрос собирается вместе с внешним, его ошибки вернёт общий ToSql
		sub := sq.Select("pt.photo_pk").
			From("photo_tags pt").
			Join("tags t ON t.pk = pt.tag_pk").
			Where(sq.Eq{"t.name": filter.Tags})
		q = q.Where(sq.Expr("pk IN (?)", sub))
	}
	if filter.From != nil {
		q = q.Where(sq.GtOrEq{"original_created_at": filter.From.UTC()})
	}
	if filter.To != nil {
		q = q.Where(sq.LtOrEq{"original_created_at": filter.To.UTC()})
	}

	switch {
	case filter.Random:
		q = q.OrderBy("RANDOM()")
	case filter.Order == domain.SortOldestFirst:
		q = q.OrderBy("original_created_at ASC", "pk ASC")
	default:
		q = q.OrderBy("original_created_at DESC", "pk DESC")
	}

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	return q
}

// DeleteByPKs удаляет записи и их связи с тегами в одной транзакции.
func (s *PhotoStorage) DeleteByPKs(ctx context.Context, pks []uuid.UUID) (int64, error) {
	if len(pks) == 0 {
		return 0, nil
	}
	start := time.Now()

	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("photo_pk IN ?", pks).Delete(&domain.PhotoTag{}).Error; err != nil {
			return err
		}
		res := tx.Where("pk IN ?", pks).Delete(&domain.Photo{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		s.logger.Error("failed to delete photos", "count", len(pks), "error", err)
		return 0, fmt.Errorf("delete photos: %w", err)
	}

	s.logger.Info("photos deleted",
		"requested", len(pks),
		"deleted", deleted,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return deleted, nil
}

func nullable[T any](p *T) interface{} {
	if p == nil {
		return nil
	}
	return *p
}
