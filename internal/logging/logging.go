package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey struct{}

const ginKey = "logger"

var (
	once sync.Once
	base *slog.Logger
)

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// Init sets up the process-wide logger: JSON lines to stdout and a
// size-rotated file, filtered at the given level (debug/info/warn/error,
// default info). Repeated calls return the logger from the first call.
func Init(component, filePath, level string) *slog.Logger {
	once.Do(func() {
		_ = os.MkdirAll(filepath.Dir(filePath), 0o755)

		sink := io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		})

		base = slog.New(slog.NewJSONHandler(sink, &slog.HandlerOptions{
			Level: parseLevel(level),
		})).With("component", component)
	})
	return base
}

// Base returns the process logger, initializing a default one if Init
// has not run yet (tests, short-lived tools).
func Base() *slog.Logger {
	if base == nil {
		return Init("mallcore", "./logs/app.log", "info")
	}
	return base
}

// New derives a child logger tagged with the given component. It shares
// the process handler rather than opening a new writer.
func New(component string) *slog.Logger {
	return Base().With("component", component)
}

// WithCtx attaches a logger to a plain context for code paths outside gin.
func WithCtx(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromCtx returns the logger attached by WithCtx, or the process logger.
func FromCtx(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return Base()
}

// With stores a request-scoped logger on the gin context.
func With(c *gin.Context, l *slog.Logger) {
	c.Set(ginKey, l)
}

// From returns the request-scoped logger, or the process logger when the
// request never went through the logging middleware.
func From(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(ginKey); ok {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return Base()
}
