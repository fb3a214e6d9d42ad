package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/GoArmGo/PhotoGallery/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TagStorage реализует простой CRUD по тегам и связям фото-тег.
type TagStorage struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewTagStorage(db *gorm.DB, logger *slog.Logger) *TagStorage {
	return &TagStorage{db: db, logger: logger}
}

func (s *TagStorage) ListTags(ctx context.Context) ([]domain.Tag, error) {
	tags := []domain.Tag{}
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&tags).Error; err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

func (s *TagStorage) CreateTag(ctx context.Context, name string, description *string) (*domain.Tag, error) {
	tag := domain.Tag{
		PK:          uuid.New(),
		Name:        strings.TrimSpace(name),
		Description: description,
	}
	if err := s.db.WithContext(ctx).Create(&tag).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("create tag %q: %w", tag.Name, domain.ErrTagExists)
		}
		s.logger.Error("failed to create tag", "name", tag.Name, "error", err)
		return nil, fmt.Errorf("create tag %q: %w", tag.Name, err)
	}
	s.logger.Info("tag created", "pk", tag.PK, "name", tag.Name)
	return &tag, nil
}

// DeleteTag удаляет тег вместе с его связями.
func (s *TagStorage) DeleteTag(ctx context.Context, pk uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tag_pk = ?", pk).Delete(&domain.PhotoTag{}).Error; err != nil {
			return fmt.Errorf("delete tag links: %w", err)
		}
		res := tx.Where("pk = ?", pk).Delete(&domain.Tag{})
		if res.Error != nil {
			return fmt.Errorf("delete tag %s: %w", pk, res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrTagNotFound
		}
		return nil
	})
}

// AssignTag связывает тег с фото. Повторное назначение ничего не меняет.
func (s *TagStorage) AssignTag(ctx context.Context, tagPK uuid.UUID, photoPKs []uuid.UUID) error {
	if len(photoPKs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tag domain.Tag
		if err := tx.Where("pk = ?", tagPK).Take(&tag).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrTagNotFound
			}
			return fmt.Errorf("load tag %s: %w", tagPK, err)
		}

		links := make([]domain.PhotoTag, 0, len(photoPKs))
		for _, pk := range photoPKs {
			links = append(links, domain.PhotoTag{PhotoPK: pk, TagPK: tagPK})
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&links).Error; err != nil {
			return fmt.Errorf("assign tag %s: %w", tagPK, err)
		}
		return nil
	})
}

func (s *TagStorage) UnassignTag(ctx context.Context, tagPK uuid.UUID, photoPKs []uuid.UUID) error {
	if len(photoPKs) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Where("tag_pk = ? AND photo_pk IN ?", tagPK, photoPKs).
		Delete(&domain.PhotoTag{}).Error
	if err != nil {
		return fmt.Errorf("unassign tag %s: %w", tagPK, err)
	}
	return nil
}
