package media

import (
	"bytes"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/GoArmGo/PhotoGallery/internal/domain"
	"github.com/chai2010/webp"
	"github.com/rwcarlsen/goexif/exif"
)

const exifDateLayout = "2006:01:02 15:04:05"

// MetadataExtractor достаёт из исходника подмножество EXIF.
// Ошибки разбора никогда не выходят наружу: в худшем случае возвращается пустая запись.
type MetadataExtractor struct {
	logger *slog.Logger
}

func NewMetadataExtractor(logger *slog.Logger) *MetadataExtractor {
	return &MetadataExtractor{logger: logger}
}

// Extract разбирает EXIF из сырых байт изображения.
func (e *MetadataExtractor) Extract(raw []byte) (meta domain.CaptureMetadata) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("exif parser panicked, continuing without metadata", "panic", fmt.Sprint(r))
			meta = domain.CaptureMetadata{}
		}
	}()

	if isWebP(raw) {
		block, err := webp.GetMetadata(raw, "EXIF")
		if err != nil || len(block) == 0 {
			e.logger.Debug("webp source has no exif chunk", "error", err)
			return domain.CaptureMetadata{}
		}
		// часть инструментов пишет чанк с JPEG-префиксом
		raw = bytes.TrimPrefix(block, []byte("Exif\x00\x00"))
	}

	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		e.logger.Debug("no usable exif block", "error", err)
		return domain.CaptureMetadata{}
	}

	meta = domain.CaptureMetadata{
		Make:         getString(x, exif.Make),
		Model:        getString(x, exif.Model),
		CapturedAt:   getDateTime(x),
		FNumber:      getRational(x, exif.FNumber),
		ISO:          getInt(x, exif.ISOSpeedRatings),
		FocalLength:  getRational(x, exif.FocalLength),
		ExposureTime: getExposureTime(x),
	}
	return meta
}

// isWebP проверяет RIFF-контейнер с формой WEBP.
func isWebP(raw []byte) bool {
	return len(raw) >= 12 && string(raw[0:4]) == "RIFF" && string(raw[8:12]) == "WEBP"
}

func getString(x *exif.Exif, name exif.FieldName) *string {
	tag, err := x.Get(name)
	if err != nil || tag == nil {
		return nil
	}
	val, err := tag.StringVal()
	if err != nil {
		return nil
	}
	val = strings.TrimSpace(strings.TrimRight(val, "\x00"))
	if val == "" {
		return nil
	}
	return &val
}

func getRational(x *exif.Exif, name exif.FieldName) *float64 {
	tag, err := x.Get(name)
	if err != nil || tag == nil {
		return nil
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		// иногда пишут целым числом
		if v, errInt := tag.Int(0); errInt == nil {
			f := float64(v)
			return &f
		}
		return nil
	}
	f := float64(num) / float64(den)
	return &f
}

func getInt(x *exif.Exif, name exif.FieldName) *int {
	tag, err := x.Get(name)
	if err != nil || tag == nil {
		return nil
	}
	v, err := tag.Int(0)
	if err != nil {
		return nil
	}
	return &v
}

func getDateTime(x *exif.Exif) *time.Time {
	for _, name := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTime} {
		s := getString(x, name)
		if s == nil {
			continue
		}
		t, err := time.ParseInLocation(exifDateLayout, *s, time.UTC)
		if err != nil {
			continue
		}
		return &t
	}
	return nil
}

func getExposureTime(x *exif.Exif) *string {
	tag, err := x.Get(exif.ExposureTime)
	if err != nil || tag == nil {
		return nil
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den <= 0 || num <= 0 {
		return nil
	}
	s := formatExposure(num, den)
	return &s
}

// formatExposure: 1/250 для долей секунды, десятичное число для выдержек от секунды.
func formatExposure(num, den int64) string {
	if float64(num)/float64(den) >= 1 {
		return strconv.FormatFloat(float64(num)/float64(den), 'f', -1, 64)
	}
	g := gcd(num, den)
	return fmt.Sprintf("%d/%d", num/g, den/g)
}

// parseExposure обратна formatExposure.
func parseExposure(s string) (num, den uint32, ok bool) {
	if n, d, found := strings.Cut(s, "/"); found {
		ni, err1 := strconv.ParseUint(strings.TrimSpace(n), 10, 32)
		di, err2 := strconv.ParseUint(strings.TrimSpace(d), 10, 32)
		if err1 != nil || err2 != nil || di == 0 {
			return 0, 0, false
		}
		return uint32(ni), uint32(di), true
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "s"), 64)
	if err != nil || f <= 0 {
		return 0, 0, false
	}
	r, ok := toRational(f)
	if !ok {
		return 0, 0, false
	}
	return r.Numerator, r.Denominator, true
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}
