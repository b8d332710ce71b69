package obs

import (
	"context"
	"log/slog"
	"time"
)

type ctxKey string

const RequestIDKey ctxKey = "req_id"

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// Time logs the duration of an operation when the returned func is called,
// typically deferred with a pointer to the named error result.
func Time(ctx context.Context, lg *slog.Logger, name string) func(errp *error) {
	start := time.Now()

	return func(errp *error) {
		if lg == nil {
			return
		}
		attrs := []slog.Attr{
			slog.String("req_id", RequestID(ctx)),
			slog.String("op", name),
			slog.Int64("dur_ms", time.Since(start).Milliseconds()),
		}

		if errp != nil && *errp != nil {
			lg.LogAttrs(ctx, slog.LevelWarn, "op failed", append(attrs, slog.Any("err", *errp))...)
			return
		}
		lg.LogAttrs(ctx, slog.LevelDebug, "op done", attrs...)
	}
}
