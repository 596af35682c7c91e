package logger

import (
	"context"
	"io"
	"log/slog"

	"github.com/flowsource/eventflow"
)

type logger struct {
	log *slog.Logger
}

func (l logger) Debug(ctx context.Context, msg string, meta eventflow.MKV) {
	l.log.DebugContext(ctx, msg, "meta", map[string]string(meta))
}

func (l logger) Error(ctx context.Context, err error) {
	l.log.ErrorContext(ctx, err.Error())
}

var _ eventflow.Logger = (*logger)(nil)

func New(w io.Writer) *logger {
	// LevelDebug is set by default as the store has a debug configuration.
	opts := slog.HandlerOptions{
		Level: slog.LevelDebug,
	}
	sl := slog.New(slog.NewJSONHandler(w, &opts))
	return &logger{
		log: sl,
	}
}
