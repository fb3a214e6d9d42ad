package domain

import (
	"strconv"
	"strings"
	"time"
)

// CaptureMetadata — подмножество EXIF, которое мы храним и прокидываем в рендишены.
// Любое поле может отсутствовать.
type CaptureMetadata struct {
	Make         *string
	Model        *string
	CapturedAt   *time.Time
	FNumber      *float64
	ISO          *int
	FocalLength  *float64
	ExposureTime *string
}

// Camera возвращает "make model", только если известны оба значения.
func (m CaptureMetadata) Camera() *string {
	if m.Make == nil || m.Model == nil {
		return nil
	}
	camera := strings.TrimSpace(strings.TrimSpace(*m.Make) + " " + strings.TrimSpace(*m.Model))
	if camera == "" {
		return nil
	}
	return &camera
}

// IsEmpty сообщает, что ни одного поля не извлечено.
func (m CaptureMetadata) IsEmpty() bool {
	return m.Make == nil && m.Model == nil && m.CapturedAt == nil &&
		m.FNumber == nil && m.ISO == nil && m.FocalLength == nil && m.ExposureTime == nil
}

// ObjectMetadata сериализует метаданные в user-metadata объекта S3.
// Отсутствующие поля становятся пустыми строками.
func (m CaptureMetadata) ObjectMetadata() map[string]string {
	out := map[string]string{
		"camera":              derefString(m.Camera()),
		"original-created-at": "",
		"camera-make":         derefString(m.Make),
		"camera-model":        derefString(m.Model),
		"f-number":            formatFloat(m.FNumber),
		"iso":                 "",
		"focal-length":        formatFloat(m.FocalLength),
		"exposure-time":       derefString(m.ExposureTime),
	}
	if m.CapturedAt != nil {
		out["original-created-at"] = m.CapturedAt.UTC().Format(time.RFC3339)
	}
	if m.ISO != nil {
		out["iso"] = strconv.Itoa(*m.ISO)
	}
	return out
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
