package quill

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newTestLogger(level slog.Level) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})), &buf
}

func TestLogHelpers_ContextFields(t *testing.T) {
	logger, buf := newTestLogger(slog.LevelDebug)
	ctx := WithLogger(context.Background(), logger)
	ctx = WithTraceID(ctx, "tr-9")
	ctx = WithRequestID(ctx, "rq-9")
	ctx = WithTenant(ctx, "novel42")

	LogInfo(ctx, "document synced", "added", 3)
	LogDebug(ctx, "diff computed")
	LogWarn(ctx, "ledger unreadable")
	LogError(ctx, "embedding failed", errors.New("quota exceeded"), "chunk_id", "novel42_1")

	out := buf.String()
	for _, want := range []string{
		"document synced", "added=3", "trace_id=tr-9", "request_id=rq-9", "tenant_id=novel42",
		"diff computed", "ledger unreadable", "error=\"quota exceeded\"", "chunk_id=novel42_1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestLogHelpers_LevelFiltering(t *testing.T) {
	logger, buf := newTestLogger(slog.LevelWarn)
	ctx := WithLogger(context.Background(), logger)

	LogInfo(ctx, "hidden")
	LogDebug(ctx, "hidden too")
	LogWarn(ctx, "visible")

	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("filtered levels were logged: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("warn not logged: %s", buf.String())
	}
}

func TestLogWithAndAttr(t *testing.T) {
	logger, buf := newTestLogger(slog.LevelInfo)
	ctx := WithRequestID(WithLogger(context.Background(), logger), "rq-1")

	LogWith(ctx, "component", "syncer").Info("started")
	LogAttr(ctx, slog.LevelInfo, "typed", slog.Int("chunks", 7))

	out := buf.String()
	for _, want := range []string{"component=syncer", "started", "chunks=7", "request_id=rq-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestEnsureRequestID(t *testing.T) {
	ctx := EnsureRequestID(context.Background())
	id := RequestID(ctx)
	if id == "" {
		t.Fatal("EnsureRequestID() did not set an ID")
	}
	if got := RequestID(EnsureRequestID(ctx)); got != id {
		t.Errorf("EnsureRequestID() replaced existing ID %q with %q", id, got)
	}
}

func TestLogger_Default(t *testing.T) {
	if Logger(context.Background()) != slog.Default() {
		t.Error("Logger() without a stored logger should return slog.Default()")
	}
}
