package media

import (
	"bytes"
	"fmt"
	"image"
	"log/slog"
	"math"
	"time"

	"github.com/GoArmGo/PhotoGallery/internal/domain"
	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

const webpContentType = "image/webp"

// DefaultMaxSourcePixels ограничивает размер исходника до полного декодирования.
const DefaultMaxSourcePixels = 100_000_000

// RenditionGenerator уменьшает исходник по профилю и перекодирует его в webp.
// Декодеры jpeg/png/gif регистрирует imaging, webp регистрирует chai2010/webp.
type RenditionGenerator struct {
	logger    *slog.Logger
	maxPixels int
}

type GeneratorOption func(*RenditionGenerator)

// WithMaxSourcePixels задаёт предел width*height исходника. n <= 0 оставляет значение по умолчанию.
func WithMaxSourcePixels(n int) GeneratorOption {
	return func(g *RenditionGenerator) {
		if n > 0 {
			g.maxPixels = n
		}
	}
}

func NewRenditionGenerator(logger *slog.Logger, opts ...GeneratorOption) *RenditionGenerator {
	g := &RenditionGenerator{logger: logger, maxPixels: DefaultMaxSourcePixels}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Decode один раз декодирует исходник с учётом EXIF-ориентации.
// Размеры проверяются по заголовку до декодирования пикселей.
// Битый, неподдерживаемый или слишком большой вход даёт ошибку domain.ErrDecodeOrEncode.
func (g *RenditionGenerator) Decode(raw []byte) (image.Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: read source header: %w", domain.ErrDecodeOrEncode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: invalid source dimensions %dx%d", domain.ErrDecodeOrEncode, cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(g.maxPixels) {
		return nil, fmt.Errorf("%w: source %dx%d exceeds %d pixels",
			domain.ErrDecodeOrEncode, cfg.Width, cfg.Height, g.maxPixels)
	}

	start := time.Now()
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s source: %w", domain.ErrDecodeOrEncode, format, err)
	}
	g.logger.Debug("source decoded",
		"format", format,
		"size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return img, nil
}

// Render строит один рендишен из уже декодированного исходника. src только читается,
// поэтому оба профиля можно строить параллельно. meta переносится в EXIF-чанк результата как есть.
func (g *RenditionGenerator) Render(src image.Image, profile domain.RenditionProfile, meta domain.CaptureMetadata) (domain.Rendition, error) {
	start := time.Now()

	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return domain.Rendition{}, fmt.Errorf("%w: invalid source dimensions %dx%d", domain.ErrDecodeOrEncode, b.Dx(), b.Dy())
	}

	width, height := FitInside(b.Dx(), b.Dy(), profile.MaxWidth, profile.MaxHeight)
	out := src
	if width != b.Dx() || height != b.Dy() {
		out = imaging.Resize(src, width, height, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, out, &webp.Options{Lossless: false, Quality: profile.Quality}); err != nil {
		return domain.Rendition{}, fmt.Errorf("%w: encode %s: %w", domain.ErrDecodeOrEncode, profile.Name, err)
	}

	data := buf.Bytes()
	block, err := EncodeExif(meta)
	if err != nil {
		return domain.Rendition{}, fmt.Errorf("%w: build exif for %s: %w", domain.ErrDecodeOrEncode, profile.Name, err)
	}
	if block != nil {
		data, err = webp.SetMetadata(data, block, "EXIF")
		if err != nil {
			return domain.Rendition{}, fmt.Errorf("%w: attach exif to %s: %w", domain.ErrDecodeOrEncode, profile.Name, err)
		}
	}

	g.logger.Debug("rendition generated",
		"profile", profile.Name,
		"source", fmt.Sprintf("%dx%d", b.Dx(), b.Dy()),
		"output", fmt.Sprintf("%dx%d", width, height),
		"bytes", len(data),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return domain.Rendition{
		Profile:     profile.Name,
		Bytes:       data,
		Width:       width,
		Height:      height,
		ContentType: webpContentType,
	}, nil
}

// FitInside возвращает наибольшие размеры, вписанные в maxW x maxH с сохранением пропорций.
// При maxH == 0 высота не ограничена. Увеличения не бывает, каждая сторона не меньше 1.
func FitInside(w, h, maxW, maxH int) (int, int) {
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = math.Min(scale, float64(maxW)/float64(w))
	}
	if maxH > 0 && h > maxH {
		scale = math.Min(scale, float64(maxH)/float64(h))
	}
	if scale == 1.0 {
		return w, h
	}
	nw := maxInt(1, int(math.Round(float64(w)*scale)))
	nh := maxInt(1, int(math.Round(float64(h)*scale)))
	if maxW > 0 && nw > maxW {
		nw = maxW
	}
	if maxH > 0 && nh > maxH {
		nh = maxH
	}
	return nw, nh
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
