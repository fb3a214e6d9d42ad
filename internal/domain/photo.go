package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status — статус записи фото. Набор закрытый, все четыре значения есть в схеме с первой миграции.
type Status string

const (
	StatusPending  Status = "pending"
	StatusReady    Status = "ready"
	StatusDisabled Status = "disabled"
	StatusError    Status = "error"
)

// Valid сообщает, входит ли статус в допустимый набор.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusReady, StatusDisabled, StatusError:
		return true
	}
	return false
}

// Photo представляет модель фотографии в системе,
// соответствует таблице photos в бд
type Photo struct {
	PK                uuid.UUID `gorm:"column:pk;type:uuid;primaryKey" db:"pk" json:"pk"`
	Status            Status    `gorm:"column:status;type:text;not null;default:pending;index" db:"status" json:"status"`
	PhotoName         string    `gorm:"column:photo_name;type:text;not null;index" db:"photo_name" json:"photo_name"`
	FullKey           string    `gorm:"column:full_key;type:text;not null;uniqueIndex" db:"full_key" json:"full_key"`
	ThumbnailKey      *string   `gorm:"column:thumbnail_key;type:text" db:"thumbnail_key" json:"thumbnail_key"`
	GalleryKey        *string   `gorm:"column:gallery_key;type:text" db:"gallery_key" json:"gallery_key"`
	OriginalCreatedAt time.Time `gorm:"column:original_created_at;not null;index" db:"original_created_at" json:"original_created_at"`
	CameraMake        *string   `gorm:"column:camera_make;type:text" db:"camera_make" json:"camera_make"`
	CameraModel       *string   `gorm:"column:camera_model;type:text" db:"camera_model" json:"camera_model"`
	FNumber           *float64  `gorm:"column:f_number" db:"f_number" json:"f_number"`
	ISO               *int      `gorm:"column:iso" db:"iso" json:"iso"`
	FocalLength       *float64  `gorm:"column:focal_length" db:"focal_length" json:"focal_length"`
	ExposureTime      *string   `gorm:"column:exposure_time;type:text" db:"exposure_time" json:"exposure_time"`
	CreatedAt         time.Time `gorm:"column:created_at" db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at" db:"updated_at" json:"updated_at"`
}

func (Photo) TableName() string {
	return "photos"
}

// Displayable сообщает, можно ли показывать фото в галерее: нужен статус ready и оба производных ключа.
func (p Photo) Displayable() bool {
	return p.Status == StatusReady && p.ThumbnailKey != nil && p.GalleryKey != nil
}

// StorageKeys возвращает все ключи объектного хранилища, на которые ссылается запись.
func (p Photo) StorageKeys() []string {
	keys := []string{p.FullKey}
	if p.ThumbnailKey != nil {
		keys = append(keys, *p.ThumbnailKey)
	}
	if p.GalleryKey != nil {
		keys = append(keys, *p.GalleryKey)
	}
	return keys
}

// Tag представляет модель тега,
// соответствует таблице tags в бд
type Tag struct {
	PK          uuid.UUID `gorm:"column:pk;type:uuid;primaryKey" db:"pk" json:"pk"`
	Name        string    `gorm:"column:name;type:text;not null;uniqueIndex" db:"name" json:"name"`
	Description *string   `gorm:"column:description;type:text" db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `gorm:"column:created_at" db:"created_at" json:"created_at"`
}

func (Tag) TableName() string {
	return "tags"
}

// PhotoTag — связующая модель Many-to-Many между Photo и Tag,
// соответствует таблице photo_tags в бд
type PhotoTag struct {
	PhotoPK uuid.UUID `gorm:"column:photo_pk;type:uuid;primaryKey" db:"photo_pk" json:"photo_pk"`
	TagPK   uuid.UUID `gorm:"column:tag_pk;type:uuid;primaryKey" db:"tag_pk" json:"tag_pk"`
}

func (PhotoTag) TableName() string {
	return "photo_tags"
}

// ReadyUpdate содержит то, что оркестратор записывает в запись после успешной оптимизации.
type ReadyUpdate struct {
	ThumbnailKey      string
	GalleryKey        string
	OriginalCreatedAt time.Time
	Metadata          CaptureMetadata
}

// SortOrder — порядок выдачи по дате съёмки.
type SortOrder string

const (
	SortNewestFirst SortOrder = "desc"
	SortOldestFirst SortOrder = "asc"
)

// PhotoFilter — фильтры для выборки готовых к показу фото.
// Tags матчится по имени тега, достаточно любого из перечисленных.
type PhotoFilter struct {
	Tags   []string
	From   *time.Time
	To     *time.Time
	Order  SortOrder
	Random bool
	Limit  int
}

// PhotoView — запись, отдаваемая наружу, с готовыми URL на CDN.
type PhotoView struct {
	Photo
	ThumbnailURL string `json:"thumbnail_url"`
	GalleryURL   string `json:"gallery_url"`
}

// OptimizeResult описывает результат одной оптимизации.
type OptimizeResult struct {
	PK            uuid.UUID `json:"pk"`
	RawSize       int       `json:"rawSize"`
	ThumbnailSize int       `json:"thumbnailSize"`
	GallerySize   int       `json:"gallerySize"`
	ThumbnailKey  string    `json:"thumbnailKey"`
	GalleryKey    string    `json:"galleryKey"`
}

// UploadRequest — запрос на выдачу presigned-ссылки для загрузки одного файла.
type UploadRequest struct {
	Filename    string `json:"filename" validate:"required"`
	ContentType string `json:"contentType" validate:"required"`
	Prefix      string `json:"prefix,omitempty"`
}

// UploadTarget — presigned-ссылка и ключ, под которым окажется файл.
type UploadTarget struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// StoredObject описывает элемент листинга объектного хранилища.
type StoredObject struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
	URL  string `json:"url,omitempty"`
}
