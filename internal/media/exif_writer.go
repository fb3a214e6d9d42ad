package media

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/GoArmGo/PhotoGallery/internal/domain"
	exifbuild "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
)

const exifSubIfdPath = "IFD/Exif"

type exifTag struct {
	name  string
	value interface{}
}

// maxRationalDenominator ограничивает подбор знаменателя в toRational.
const maxRationalDenominator = 1e6

// EncodeExif собирает little-endian TIFF-блок (IFD0 + Exif IFD) из уже извлечённых метаданных.
// Для пустых метаданных возвращает nil.
func EncodeExif(meta domain.CaptureMetadata) ([]byte, error) {
	if meta.IsEmpty() {
		return nil, nil
	}

	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, fmt.Errorf("exif mapping: %w", err)
	}
	root := exifbuild.NewIfdBuilder(im, exifbuild.NewTagIndex(), exifcommon.IfdStandardIfdIdentity, binary.LittleEndian)

	// теги пишутся по возрастанию номера внутри каждого IFD
	if meta.Make != nil {
		if err := root.SetStandardWithName("Make", *meta.Make); err != nil {
			return nil, fmt.Errorf("exif Make: %w", err)
		}
	}
	if meta.Model != nil {
		if err := root.SetStandardWithName("Model", *meta.Model); err != nil {
			return nil, fmt.Errorf("exif Model: %w", err)
		}
	}
	if meta.CapturedAt != nil {
		if err := root.SetStandardWithName("DateTime", exifTime(*meta.CapturedAt)); err != nil {
			return nil, fmt.Errorf("exif DateTime: %w", err)
		}
	}

	var sub []exifTag
	add := func(name string, value interface{}) {
		sub = append(sub, exifTag{name: name, value: value})
	}

	if meta.ExposureTime != nil {
		if num, den, ok := parseExposure(*meta.ExposureTime); ok {
			add("ExposureTime", []exifcommon.Rational{{Numerator: num, Denominator: den}})
		}
	}
	if meta.FNumber != nil {
		if r, ok := toRational(*meta.FNumber); ok {
			add("FNumber", []exifcommon.Rational{r})
		}
	}
	if meta.ISO != nil && *meta.ISO > 0 && *meta.ISO <= math.MaxUint16 {
		add("ISOSpeedRatings", []uint16{uint16(*meta.ISO)})
	}
	if meta.CapturedAt != nil {
		add("DateTimeOriginal", exifTime(*meta.CapturedAt))
	}
	if meta.FocalLength != nil {
		if r, ok := toRational(*meta.FocalLength); ok {
			add("FocalLength", []exifcommon.Rational{r})
		}
	}

	if len(sub) > 0 {
		exifIfd, err := exifbuild.GetOrCreateIbFromRootIb(root, exifSubIfdPath)
		if err != nil {
			return nil, fmt.Errorf("exif sub-ifd: %w", err)
		}
		for _, tag := range sub {
			if err := exifIfd.SetStandardWithName(tag.name, tag.value); err != nil {
				return nil, fmt.Errorf("exif %s: %w", tag.name, err)
			}
		}
	}

	block, err := exifbuild.NewIfdByteEncoder().EncodeToExif(root)
	if err != nil {
		return nil, fmt.Errorf("encode exif: %w", err)
	}
	return block, nil
}

// toRational подбирает знаменатель-степень десяти, при котором дробь точная (до 1e6).
// Неположительные значения и всё, что не влезает в uint32, отбрасываются.
func toRational(f float64) (exifcommon.Rational, bool) {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return exifcommon.Rational{}, false
	}
	d := 1.0
	for d < maxRationalDenominator && math.Abs(f*d-math.Round(f*d)) > 1e-9 && f*d*10 <= math.MaxUint32 {
		d *= 10
	}
	n := math.Round(f * d)
	if n < 1 || n > math.MaxUint32 {
		return exifcommon.Rational{}, false
	}
	return exifcommon.Rational{Numerator: uint32(n), Denominator: uint32(d)}, true
}

// exifTime форматирует время для EXIF без зоны, в UTC.
func exifTime(t time.Time) string {
	return t.UTC().Format(exifDateLayout)
}
