package domain

import (
	"path"
	"strings"
)

// UntitledBaseName подставляется, когда из ключа не получается выделить имя.
const UntitledBaseName = "untitled"

// RenditionProfile — фиксированные параметры одного производного изображения.
// MaxHeight == 0 означает, что высота не ограничена.
type RenditionProfile struct {
	Name      string
	MaxWidth  int
	MaxHeight int
	Quality   float32
	KeyPrefix string
}

var (
	ThumbnailProfile = RenditionProfile{
		Name:      "thumbnail",
		MaxWidth:  400,
		MaxHeight: 400,
		Quality:   75,
		KeyPrefix: "thumbnail",
	}
	GalleryProfile = RenditionProfile{
		Name:      "gallery",
		MaxWidth:  2700,
		Quality:   88,
		KeyPrefix: "gallery",
	}
)

// Key возвращает детерминированный ключ рендишена в хранилище.
func (p RenditionProfile) Key(baseName string) string {
	return p.KeyPrefix + "/" + baseName + ".webp"
}

// Rendition — закодированное производное изображение.
type Rendition struct {
	Profile     string
	Bytes       []byte
	Width       int
	Height      int
	ContentType string
}

func (r Rendition) Size() int {
	return len(r.Bytes)
}

// BaseName выделяет имя файла без расширения из ключа: "full/IMG_0001.jpg" -> "IMG_0001".
// Всё, начиная с первой точки, отбрасывается.
func BaseName(fullKey string) string {
	tail := strings.TrimSpace(path.Base(strings.TrimRight(fullKey, "/")))
	if i := strings.Index(tail, "."); i >= 0 {
		tail = tail[:i]
	}
	tail = strings.TrimSpace(tail)
	if tail == "" || tail == "/" {
		return UntitledBaseName
	}
	return tail
}

// PhotoNameFromKey возвращает имя файла из ключа вместе с расширением.
func PhotoNameFromKey(fullKey string) string {
	name := path.Base(fullKey)
	if name == "." || name == "/" || name == "" {
		return fullKey
	}
	return name
}

// UploadKey собирает ключ для загрузки исходника.
func UploadKey(prefix, filename string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return filename
	}
	return prefix + "/" + filename
}
