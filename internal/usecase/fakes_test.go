package usecase

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GoArmGo/PhotoGallery/internal/database/client"
	"github.com/GoArmGo/PhotoGallery/internal/database/storage"
	"github.com/GoArmGo/PhotoGallery/internal/domain"
	"github.com/GoArmGo/PhotoGallery/internal/logger"
	"github.com/google/uuid"
)

type memObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
}

// memStore держит ObjectStore в памяти.
type memStore struct {
	mu        sync.Mutex
	objects   map[string]memObject
	putErr    map[string]error
	deleteErr error
	puts      int
}

func newMemStore() *memStore {
	return &memStore{objects: map[string]memObject{}, putErr: map[string]error{}}
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, domain.ErrObjectNotFound
	}
	return append([]byte(nil), obj.body...), nil
}

func (s *memStore) Put(_ context.Context, key string, body []byte, contentType string, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.putErr[key]; err != nil {
		return err
	}
	s.puts++
	s.objects[key] = memObject{body: append([]byte(nil), body...), contentType: contentType, metadata: metadata}
	return nil
}

func (s *memStore) DeleteMany(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	for _, k := range keys {
		delete(s.objects, k)
	}
	return nil
}

func (s *memStore) ListWithPrefix(_ context.Context, prefix string) ([]domain.StoredObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.StoredObject
	for k, obj := range s.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, domain.StoredObject{Key: k, Size: int64(len(obj.body))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *memStore) PresignUpload(_ context.Context, key, _ string, ttl time.Duration) (string, error) {
	return "https://signed.example/" + key + "?expires=" + ttl.String(), nil
}

func (s *memStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func (s *memStore) put(key string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = memObject{body: body}
}

func (s *memStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.objects))
	for k := range s.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// slowRenderer считает, сколько thumbnail-рендеров идёт одновременно.
type slowRenderer struct {
	delay     time.Duration
	mu        sync.Mutex
	active    int
	maxActive int
}

func (r *slowRenderer) Decode([]byte) (image.Image, error) {
	return image.NewNRGBA(image.Rect(0, 0, 1, 1)), nil
}

func (r *slowRenderer) Render(_ image.Image, profile domain.RenditionProfile, _ domain.CaptureMetadata) (domain.Rendition, error) {
	if profile.Name == domain.ThumbnailProfile.Name {
		r.mu.Lock()
		r.active++
		if r.active > r.maxActive {
			r.maxActive = r.active
		}
		r.mu.Unlock()

		time.Sleep(r.delay)

		r.mu.Lock()
		r.active--
		r.mu.Unlock()
	}
	return domain.Rendition{Profile: profile.Name, Bytes: []byte("RIFF" + profile.Name), ContentType: "image/webp"}, nil
}

// failingRenderer падает на декодировании, если decodeErr задан, иначе на рендере.
type failingRenderer struct {
	decodeErr error
	err       error
}

func (r failingRenderer) Decode([]byte) (image.Image, error) {
	if r.decodeErr != nil {
		return nil, r.decodeErr
	}
	return image.NewNRGBA(image.Rect(0, 0, 1, 1)), nil
}

func (r failingRenderer) Render(image.Image, domain.RenditionProfile, domain.CaptureMetadata) (domain.Rendition, error) {
	return domain.Rendition{}, r.err
}

type emptyExtractor struct{}

func (emptyExtractor) Extract([]byte) domain.CaptureMetadata { return domain.CaptureMetadata{} }

func newTestDB(t *testing.T) (*storage.PhotoStorage, *storage.TagStorage) {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	c, err := client.NewSQLiteClient(dsn, logger.Discard())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return storage.NewPhotoStorage(c.Gorm, c.DB, logger.Discard()), storage.NewTagStorage(c.Gorm, logger.Discard())
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x % 256), G: uint8(y % 256), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// withExif вставляет APP1-сегмент Exif сразу после SOI.
func withExif(jpg, tiff []byte) []byte {
	payload := append([]byte("Exif\x00\x00"), tiff...)
	seg := []byte{0xFF, 0xE1, 0, 0}
	binary.BigEndian.PutUint16(seg[2:], uint16(len(payload)+2))

	out := append([]byte{}, jpg[:2]...)
	out = append(out, seg...)
	out = append(out, payload...)
	return append(out, jpg[2:]...)
}

var errBoom = errors.New("boom")
