package logger

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// SlogConfig описывает параметры логгера
type SlogConfig struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json" или "text"
}

// NewSlog создаёт и настраивает slog.Logger, пишущий в stdout
func NewSlog(cfg SlogConfig) *slog.Logger {
	return newSlog(cfg, os.Stdout)
}

func newSlog(cfg SlogConfig, w io.Writer) *slog.Logger {
	lvl := ParseLevel(cfg.Level)

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: lvl,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey && len(groups) == 0 {
					a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339))
				}
				return a
			},
		})
	}

	return slog.New(handler)
}

// ParseLevel переводит строковый уровень в slog.Level, по умолчанию info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard возвращает логгер, который никуда не пишет.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
