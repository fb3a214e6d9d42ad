package media

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/GoArmGo/PhotoGallery/internal/domain"
	"github.com/GoArmGo/PhotoGallery/internal/logger"
)

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	return img
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradient(w, h), &jpeg.Options{Quality: 85}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, gradient(w, h)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// withExif вставляет APP1-сегмент Exif сразу после SOI.
func withExif(t *testing.T, jpg, tiff []byte) []byte {
	t.Helper()
	if len(jpg) < 2 || jpg[0] != 0xFF || jpg[1] != 0xD8 {
		t.Fatal("not a jpeg")
	}
	payload := append([]byte("Exif\x00\x00"), tiff...)
	seg := []byte{0xFF, 0xE1, 0, 0}
	binary.BigEndian.PutUint16(seg[2:], uint16(len(payload)+2))

	out := append([]byte{}, jpg[:2]...)
	out = append(out, seg...)
	out = append(out, payload...)
	return append(out, jpg[2:]...)
}

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func newExtractor() *MetadataExtractor  { return NewMetadataExtractor(logger.Discard()) }
func newGenerator() *RenditionGenerator { return NewRenditionGenerator(logger.Discard()) }

// generate декодирует исходник и строит один рендишен.
func generate(gen *RenditionGenerator, raw []byte, profile domain.RenditionProfile, meta domain.CaptureMetadata) (domain.Rendition, error) {
	src, err := gen.Decode(raw)
	if err != nil {
		return domain.Rendition{}, err
	}
	return gen.Render(src, profile, meta)
}

func exifBlock(t *testing.T, meta domain.CaptureMetadata) []byte {
	t.Helper()
	block, err := EncodeExif(meta)
	if err != nil {
		t.Fatalf("EncodeExif: %v", err)
	}
	return block
}
