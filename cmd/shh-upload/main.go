// Command shh-upload загружает фотографии в галерею пачкой:
// presigned PUT в хранилище, pending-запись и оптимизация для каждого файла.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/GoArmGo/PhotoGallery/internal/adapter/galleryapi"
	"github.com/GoArmGo/PhotoGallery/internal/batch"
	"github.com/GoArmGo/PhotoGallery/internal/logger"
)

const (
	maxFileSize = 30 << 20
	maxFiles    = 50
)

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

func main() {
	apiURL := flag.String("api", "http://localhost:8080", "Базовый URL API галереи")
	prefix := flag.String("prefix", "full", "Префикс ключей для исходников")
	concurrency := flag.Int("concurrency", batch.DefaultConcurrency, "Сколько файлов обрабатывается одновременно")
	batchSize := flag.Int("batch", batch.DefaultBatchSize, "Сколько ссылок запрашивать за один вызов")
	logLevel := flag.String("log-level", "warn", "Уровень логирования")
	flag.Parse()

	log := logger.NewSlog(logger.SlogConfig{Level: *logLevel, Format: "text"})

	items, skipped, err := collectItems(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, "shh-upload:", err)
		os.Exit(2)
	}
	for _, s := range skipped {
		fmt.Fprintln(os.Stderr, "skip:", s)
	}
	if len(items) == 0 {
		fmt.Fprintln(os.Stderr, "shh-upload: nothing to upload")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	driver := batch.NewDriver(galleryapi.NewClient(*apiURL, log), batch.Config{
		Prefix:      *prefix,
		Concurrency: *concurrency,
		BatchSize:   *batchSize,
		OnProgress: func(r batch.ItemReport) {
			fmt.Fprintf(os.Stderr, "[%d/%d] %s: %s\n", r.Index+1, len(items), r.Filename, r.Status)
		},
	}, log)

	reports := driver.Run(ctx, items)
	if failed := printSummary(os.Stdout, reports); failed > 0 {
		os.Exit(1)
	}
}

// collectItems читает файлы из аргументов. Неподходящие по типу или размеру
// файлы пропускаются с пояснением, а превышение числа файлов считается ошибкой.
func collectItems(paths []string) ([]batch.Item, []string, error) {
	if len(paths) > maxFiles {
		return nil, nil, fmt.Errorf("too many files: %d, at most %d per batch", len(paths), maxFiles)
	}

	var (
		items   []batch.Item
		skipped []string
	)
	for _, p := range paths {
		ct, ok := contentTypes[strings.ToLower(filepath.Ext(p))]
		if !ok {
			skipped = append(skipped, fmt.Sprintf("%s: unsupported file type", p))
			continue
		}

		info, err := os.Stat(p)
		if err != nil {
			return nil, nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if info.IsDir() {
			skipped = append(skipped, fmt.Sprintf("%s: is a directory", p))
			continue
		}
		if info.Size() > maxFileSize {
			skipped = append(skipped, fmt.Sprintf("%s: larger than %d MB", p, maxFileSize>>20))
			continue
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", p, err)
		}
		items = append(items, batch.Item{
			Filename:    filepath.Base(p),
			ContentType: ct,
			Data:        data,
		})
	}
	return items, skipped, nil
}

// printSummary печатает таблицу по файлам и возвращает число неудачных.
func printSummary(w io.Writer, reports []batch.ItemReport) int {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSTATUS\tKEY\tDETAIL")

	failed := 0
	for _, r := range reports {
		detail := r.Error
		if r.Status == batch.StatusCompleted && r.Result != nil {
			detail = fmt.Sprintf("thumbnail %d B, gallery %d B", r.Result.ThumbnailSize, r.Result.GallerySize)
		}
		if r.Status != batch.StatusCompleted {
			failed++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Filename, r.Status, r.Key, detail)
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "%d uploaded, %d failed\n", len(reports)-failed, failed)
	return failed
}
