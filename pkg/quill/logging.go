package quill

import (
	"context"
	"log/slog"
)

// LogInfo logs at info level with trace_id, request_id and tenant_id taken
// from ctx when present.
//
// Example:
//
//	quill.LogInfo(ctx, "document synced", "added", res.Added, "deleted", res.Deleted)
func LogInfo(ctx context.Context, msg string, args ...any) {
	logAt(ctx, slog.LevelInfo, msg, args)
}

// LogDebug logs at debug level with context fields.
func LogDebug(ctx context.Context, msg string, args ...any) {
	logAt(ctx, slog.LevelDebug, msg, args)
}

// LogWarn logs at warn level with context fields.
func LogWarn(ctx context.Context, msg string, args ...any) {
	logAt(ctx, slog.LevelWarn, msg, args)
}

// LogError logs at error level. A non-nil err is attached under "error".
//
// Example:
//
//	quill.LogError(ctx, "embedding failed", err, "chunk_id", chunk.ID)
func LogError(ctx context.Context, msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err)
	}
	logAt(ctx, slog.LevelError, msg, args)
}

// LogAttr logs typed attributes at the given level.
func LogAttr(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr) {
	logger := Logger(ctx)
	if !logger.Enabled(ctx, level) {
		return
	}
	for _, a := range contextFields(ctx, nil) {
		if attr, ok := a.(slog.Attr); ok {
			attrs = append(attrs, attr)
		}
	}
	logger.LogAttrs(ctx, level, msg, attrs...)
}

// LogWith returns a logger with the context fields and args pre-attached.
func LogWith(ctx context.Context, args ...any) *slog.Logger {
	return Logger(ctx).With(contextFields(ctx, args)...)
}

func logAt(ctx context.Context, level slog.Level, msg string, args []any) {
	logger := Logger(ctx)
	if !logger.Enabled(ctx, level) {
		return
	}
	logger.Log(ctx, level, msg, contextFields(ctx, args)...)
}

func contextFields(ctx context.Context, args []any) []any {
	if id := TraceID(ctx); id != "" {
		args = append(args, slog.String("trace_id", id))
	}
	if id := RequestID(ctx); id != "" {
		args = append(args, slog.String("request_id", id))
	}
	if id := Tenant(ctx); id != "" {
		args = append(args, slog.String("tenant_id", id))
	}
	return args
}
