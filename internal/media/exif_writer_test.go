package media

import (
	"bytes"
	"math"
	"testing"

	"github.com/GoArmGo/PhotoGallery/internal/domain"
	"github.com/rwcarlsen/goexif/exif"
)

func TestEncodeExifEmptyMetadata(t *testing.T) {
	block, err := EncodeExif(domain.CaptureMetadata{})
	if err != nil || block != nil {
		t.Fatalf("expected nil block, got %d bytes (%v)", len(block), err)
	}
}

func TestEncodeExifIsReadableTIFF(t *testing.T) {
	block := exifBlock(t, fullMetadata())
	if !bytes.HasPrefix(block, []byte("II*\x00")) {
		t.Fatalf("block does not start with a little-endian TIFF header: % x", block[:4])
	}

	x, err := exif.Decode(bytes.NewReader(block))
	if err != nil {
		t.Fatalf("goexif cannot read block: %v", err)
	}

	tag, err := x.Get(exif.DateTimeOriginal)
	if err != nil {
		t.Fatalf("DateTimeOriginal: %v", err)
	}
	if s, _ := tag.StringVal(); s != "2023:07:14 18:32:05" {
		t.Fatalf("DateTimeOriginal = %q", s)
	}

	tag, err = x.Get(exif.FocalLength)
	if err != nil {
		t.Fatalf("FocalLength: %v", err)
	}
	num, den, err := tag.Rat2(0)
	if err != nil || float64(num)/float64(den) != 35 {
		t.Fatalf("FocalLength = %d/%d (%v)", num, den, err)
	}

	tag, err = x.Get(exif.ISOSpeedRatings)
	if err != nil {
		t.Fatalf("ISOSpeedRatings: %v", err)
	}
	if v, _ := tag.Int(0); v != 400 {
		t.Fatalf("ISOSpeedRatings = %d", v)
	}
}

func TestEncodeExifOnlyIFD0(t *testing.T) {
	meta := domain.CaptureMetadata{Make: strPtr("Nikon"), Model: strPtr("Z f")}
	x, err := exif.Decode(bytes.NewReader(exifBlock(t, meta)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := x.Get(exif.ExposureTime); err == nil {
		t.Fatal("exposure time must be absent")
	}
	tag, err := x.Get(exif.Model)
	if err != nil {
		t.Fatalf("Model: %v", err)
	}
	if s, _ := tag.StringVal(); s != "Z f" {
		t.Fatalf("Model = %q", s)
	}
}

func TestEncodeExifSkipsUnrepresentableValues(t *testing.T) {
	meta := domain.CaptureMetadata{
		Make:        strPtr("Sigma"),
		FNumber:     floatPtr(5e9),
		FocalLength: floatPtr(-4),
		ISO:         intPtr(math.MaxUint16 + 1),
	}
	x, err := exif.Decode(bytes.NewReader(exifBlock(t, meta)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, name := range []exif.FieldName{exif.FNumber, exif.FocalLength, exif.ISOSpeedRatings} {
		if _, err := x.Get(name); err == nil {
			t.Fatalf("%s must be skipped", name)
		}
	}
	if got := newExtractor().Extract(withExif(t, jpegBytes(t, 8, 8), exifBlock(t, meta))); got.Make == nil || *got.Make != "Sigma" {
		t.Fatalf("make = %v", got.Make)
	}
}

func TestToRational(t *testing.T) {
	cases := []struct {
		in       float64
		num, den uint32
	}{
		{35, 35, 1},
		{2.8, 28, 10},
		{1.25, 125, 100},
		{0.004, 4, 1000},
	}
	for _, tc := range cases {
		r, ok := toRational(tc.in)
		if !ok || r.Numerator != tc.num || r.Denominator != tc.den {
			t.Fatalf("toRational(%v) = %d/%d %v, want %d/%d", tc.in, r.Numerator, r.Denominator, ok, tc.num, tc.den)
		}
	}

	for _, bad := range []float64{0, -1, 5e9, 1e-9, math.NaN(), math.Inf(1)} {
		if r, ok := toRational(bad); ok {
			t.Fatalf("toRational(%v) = %d/%d, want rejection", bad, r.Numerator, r.Denominator)
		}
	}
}
