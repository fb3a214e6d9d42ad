// Package batch загружает пачку файлов через API галереи:
// presigned-ссылки, прямая загрузка в хранилище, pending-запись и оптимизация.
// Ошибка одного файла не останавливает остальные.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/GoArmGo/PhotoGallery/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultConcurrency = 5
	DefaultBatchSize   = 10
)

// Status — состояние одного файла в пачке.
type Status string

const (
	StatusPending    Status = "pending"
	StatusUploading  Status = "uploading"
	StatusOptimizing Status = "optimizing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal сообщает, что дальше статус не меняется.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// API описывает то, что драйверу нужно от сервера галереи.
type API interface {
	GetUploadTargets(ctx context.Context, reqs []domain.UploadRequest) ([]domain.UploadTarget, error)
	UploadRaw(ctx context.Context, url string, body []byte, contentType string) error
	CreatePendingRecord(ctx context.Context, photoName, fullKey string) (uuid.UUID, error)
	Optimize(ctx context.Context, fullKey string) (*domain.OptimizeResult, error)
}

// Item — один файл для загрузки.
type Item struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ItemReport хранит текущее состояние файла. Отдаётся в OnProgress и в итоговом результате.
type ItemReport struct {
	Index    int
	Filename string
	Key      string
	Status   Status
	Error    string
	Result   *domain.OptimizeResult
}

type Config struct {
	Prefix      string
	Concurrency int
	BatchSize   int
	// OnProgress вызывается при каждой смене статуса. Вызовы сериализованы.
	OnProgress func(ItemReport)
}

type Driver struct {
	api    API
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	reports []ItemReport
}

func NewDriver(api API, cfg Config, logger *slog.Logger) *Driver {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Driver{api: api, cfg: cfg, logger: logger}
}

// Run прогоняет все файлы и возвращает отчёт по каждому.
// Каждый элемент результата находится в терминальном статусе.
func (d *Driver) Run(ctx context.Context, items []Item) []ItemReport {
	start := time.Now()

	d.mu.Lock()
	d.reports = make([]ItemReport, len(items))
	for i, it := range items {
		d.reports[i] = ItemReport{Index: i, Filename: it.Filename, Status: StatusPending}
	}
	d.mu.Unlock()

	targets := d.requestTargets(ctx, items)

	var g errgroup.Group
	g.SetLimit(d.cfg.Concurrency)
	for i, it := range items {
		target, ok := targets[i]
		if !ok {
			continue
		}
		g.Go(func() error {
			d.process(ctx, i, it, target)
			return nil
		})
	}
	_ = g.Wait()

	d.mu.Lock()
	out := append([]ItemReport(nil), d.reports...)
	d.mu.Unlock()

	failed := 0
	for _, r := range out {
		if r.Status == StatusError {
			failed++
		}
	}
	d.logger.Info("batch upload finished",
		"items", len(out),
		"failed", failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out
}

// requestTargets запрашивает ссылки пачками по BatchSize.
// Для файлов, которым ссылку получить не удалось, статус сразу становится error.
func (d *Driver) requestTargets(ctx context.Context, items []Item) map[int]domain.UploadTarget {
	var (
		mu      sync.Mutex
		targets = make(map[int]domain.UploadTarget, len(items))
		g       errgroup.Group
	)
	g.SetLimit(d.cfg.Concurrency)

	for lo := 0; lo < len(items); lo += d.cfg.BatchSize {
		hi := min(lo+d.cfg.BatchSize, len(items))
		g.Go(func() error {
			reqs := make([]domain.UploadRequest, 0, hi-lo)
			for _, it := range items[lo:hi] {
				reqs = append(reqs, domain.UploadRequest{
					Filename:    it.Filename,
					ContentType: it.ContentType,
					Prefix:      d.cfg.Prefix,
				})
			}

			got, err := d.api.GetUploadTargets(ctx, reqs)
			if err == nil && len(got) != len(reqs) {
				err = fmt.Errorf("got %d upload targets for %d files", len(got), len(reqs))
			}
			if err != nil {
				for i := lo; i < hi; i++ {
					d.fail(i, fmt.Errorf("get upload target: %w", err))
				}
				return nil
			}

			mu.Lock()
			for j, t := range got {
				targets[lo+j] = t
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return targets
}

func (d *Driver) process(ctx context.Context, i int, it Item, target domain.UploadTarget) {
	if err := ctx.Err(); err != nil {
		d.fail(i, err)
		return
	}

	d.update(i, func(r *ItemReport) {
		r.Key = target.Key
		r.Status = StatusUploading
	})
	if err := d.api.UploadRaw(ctx, target.URL, it.Data, it.ContentType); err != nil {
		d.fail(i, fmt.Errorf("upload: %w", err))
		return
	}

	d.update(i, func(r *ItemReport) { r.Status = StatusOptimizing })
	if _, err := d.api.CreatePendingRecord(ctx, it.Filename, target.Key); err != nil {
		d.fail(i, fmt.Errorf("create record: %w", err))
		return
	}
	res, err := d.api.Optimize(ctx, target.Key)
	if err != nil {
		d.fail(i, fmt.Errorf("optimize: %w", err))
		return
	}

	d.update(i, func(r *ItemReport) {
		r.Status = StatusCompleted
		r.Result = res
	})
}

func (d *Driver) fail(i int, err error) {
	d.logger.Warn("batch item failed", "index", i, "error", err)
	d.update(i, func(r *ItemReport) {
		r.Status = StatusError
		r.Error = err.Error()
	})
}

func (d *Driver) update(i int, fn func(*ItemReport)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&d.reports[i])
	if d.cfg.OnProgress != nil {
		d.cfg.OnProgress(d.reports[i])
	}
}
