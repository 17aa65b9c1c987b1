package observability

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a logger based on environment. level overrides the
// environment's default level when set ("debug", "info", "warn", "error").
func NewLogger(environment, level string) (*slog.Logger, error) {
	return newLogger(os.Stdout, environment, level)
}

func newLogger(w io.Writer, environment, level string) (*slog.Logger, error) {
	production := strings.EqualFold(environment, "production")

	lvl := slog.LevelDebug
	if production {
		lvl = slog.LevelInfo
	}
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}

	var handler slog.Handler
	if production {
		// Production: JSON with source locations for log search
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     lvl,
			AddSource: true,
		})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	}

	return slog.New(handler).With(slog.String("environment", environment)), nil
}
