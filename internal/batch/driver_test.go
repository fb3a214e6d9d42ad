package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GoArmGo/PhotoGallery/internal/domain"
	"github.com/GoArmGo/PhotoGallery/internal/logger"
	"github.com/google/uuid"
)

type fakeAPI struct {
	mu            sync.Mutex
	targetCalls   [][]domain.UploadRequest
	uploaded      map[string][]byte
	inFlight      int
	maxInFlight   int
	optimizeDelay time.Duration

	failUpload   map[string]bool
	failOptimize map[string]bool
	failTargets  bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		uploaded:     map[string][]byte{},
		failUpload:   map[string]bool{},
		failOptimize: map[string]bool{},
	}
}

func (f *fakeAPI) GetUploadTargets(_ context.Context, reqs []domain.UploadRequest) ([]domain.UploadTarget, error) {
	f.mu.Lock()
	f.targetCalls = append(f.targetCalls, reqs)
	fail := f.failTargets
	f.mu.Unlock()
	if fail {
		return nil, errors.New("presign unavailable")
	}

	out := make([]domain.UploadTarget, len(reqs))
	for i, r := range reqs {
		key := domain.UploadKey(r.Prefix, r.Filename)
		out[i] = domain.UploadTarget{URL: "https://store.example/" + key, Key: key}
	}
	return out, nil
}

func (f *fakeAPI) UploadRaw(_ context.Context, url string, body []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpload[url] {
		return errors.New("connection reset")
	}
	f.uploaded[url] = body
	return nil
}

func (f *fakeAPI) CreatePendingRecord(context.Context, string, string) (uuid.UUID, error) {
	return uuid.New(), nil
}

func (f *fakeAPI) Optimize(_ context.Context, fullKey string) (*domain.OptimizeResult, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	time.Sleep(f.optimizeDelay)

	f.mu.Lock()
	f.inFlight--
	fail := f.failOptimize[fullKey]
	f.mu.Unlock()

	if fail {
		return nil, fmt.Errorf("%s: %w", fullKey, domain.ErrDecodeOrEncode)
	}
	base := domain.BaseName(fullKey)
	return &domain.OptimizeResult{
		PK:           uuid.New(),
		ThumbnailKey: domain.ThumbnailProfile.Key(base),
		GalleryKey:   domain.GalleryProfile.Key(base),
	}, nil
}

func makeItems(n int) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{
			Filename:    fmt.Sprintf("IMG_%04d.jpg", i),
			ContentType: "image/jpeg",
			Data:        []byte(fmt.Sprintf("raw-%d", i)),
		}
	}
	return items
}

func TestRunBoundsOptimizeConcurrency(t *testing.T) {
	api := newFakeAPI()
	api.optimizeDelay = 15 * time.Millisecond
	api.failOptimize["full/IMG_0007.jpg"] = true

	var progressMu sync.Mutex
	seen := map[Status]int{}
	d := NewDriver(api, Config{
		Prefix:      "full",
		Concurrency: 5,
		BatchSize:   10,
		OnProgress: func(r ItemReport) {
			progressMu.Lock()
			seen[r.Status]++
			progressMu.Unlock()
		},
	}, logger.Discard())

	reports := d.Run(context.Background(), makeItems(12))

	if len(reports) != 12 {
		t.Fatalf("reports = %d, want 12", len(reports))
	}
	if api.maxInFlight > 5 {
		t.Fatalf("max optimize calls in flight = %d, want <= 5", api.maxInFlight)
	}
	if api.maxInFlight < 2 {
		t.Fatalf("max optimize calls in flight = %d, expected parallelism", api.maxInFlight)
	}

	for i, r := range reports {
		if !r.Status.Terminal() {
			t.Fatalf("report %d status = %s, want terminal", i, r.Status)
		}
		if r.Index != i {
			t.Fatalf("report %d index = %d", i, r.Index)
		}
	}
	if reports[7].Status != StatusError || !strings.Contains(reports[7].Error, "optimize") {
		t.Fatalf("report 7 = %+v, want optimize error", reports[7])
	}
	if reports[8].Status != StatusCompleted || reports[8].Result == nil {
		t.Fatalf("report 8 = %+v, want completed", reports[8])
	}

	if len(api.targetCalls) != 2 || len(api.targetCalls[0])+len(api.targetCalls[1]) != 12 {
		t.Fatalf("target calls = %d, want 2 batches covering 12 files", len(api.targetCalls))
	}
	if seen[StatusCompleted] != 11 || seen[StatusError] != 1 {
		t.Fatalf("progress = %v", seen)
	}
	if seen[StatusUploading] != 12 || seen[StatusOptimizing] != 12 {
		t.Fatalf("progress = %v", seen)
	}
}

func TestRunIsolatesUploadFailure(t *testing.T) {
	api := newFakeAPI()
	api.failUpload["https://store.example/full/IMG_0001.jpg"] = true
	d := NewDriver(api, Config{Prefix: "full"}, logger.Discard())

	reports := d.Run(context.Background(), makeItems(3))

	if reports[1].Status != StatusError || !strings.Contains(reports[1].Error, "upload") {
		t.Fatalf("report 1 = %+v", reports[1])
	}
	if reports[1].Key != "full/IMG_0001.jpg" {
		t.Fatalf("report 1 key = %q", reports[1].Key)
	}
	for _, i := range []int{0, 2} {
		if reports[i].Status != StatusCompleted {
			t.Fatalf("report %d = %+v, want completed", i, reports[i])
		}
	}
	if string(api.uploaded["https://store.example/full/IMG_0002.jpg"]) != "raw-2" {
		t.Fatal("raw bytes not uploaded to the presigned url")
	}
}

func TestRunTargetFailureFailsWholeBatch(t *testing.T) {
	api := newFakeAPI()
	api.failTargets = true
	d := NewDriver(api, Config{BatchSize: 2}, logger.Discard())

	reports := d.Run(context.Background(), makeItems(3))
	for i, r := range reports {
		if r.Status != StatusError || !strings.Contains(r.Error, "upload target") {
			t.Fatalf("report %d = %+v", i, r)
		}
	}
	if len(api.uploaded) != 0 {
		t.Fatalf("nothing should be uploaded, got %d", len(api.uploaded))
	}
}

func TestRunCancelledContext(t *testing.T) {
	api := newFakeAPI()
	d := NewDriver(api, Config{}, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i, r := range d.Run(ctx, makeItems(4)) {
		if r.Status != StatusError {
			t.Fatalf("report %d = %+v, want error", i, r)
		}
	}
}

func TestNewDriverDefaults(t *testing.T) {
	d := NewDriver(newFakeAPI(), Config{}, logger.Discard())
	if d.cfg.Concurrency != DefaultConcurrency || d.cfg.BatchSize != DefaultBatchSize {
		t.Fatalf("cfg = %+v", d.cfg)
	}
}
