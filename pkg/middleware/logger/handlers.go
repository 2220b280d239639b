package logger

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/quill-ai/go-quill/pkg/quill"
)

// Head logs a preview of the first n bytes and passes the stream through
// unchanged.
//
// Input: any stream
// Output: same as input
// Behavior: STREAMING - peeks without consuming
//
// Example:
//
//	flow.Use(logger.Head(slog.LevelDebug, "prompt", 200))
func Head(level slog.Level, prefix string, n int) quill.Handler {
	return quill.HandlerFunc(func(req *quill.Request, res *quill.Response) error {
		br := bufio.NewReaderSize(req.Data, max(n, 16))
		head, err := br.Peek(n)
		if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
			return err
		}

		quill.LogAttr(req.Context, level, "["+prefix+"]", slog.String("preview", formatPreview(head)))

		_, err = io.Copy(res.Data, br)
		return err
	})
}

// Timing wraps handler and logs how long it ran and how many bytes it wrote.
//
// Example:
//
//	flow.Use(logger.Timing(slog.LevelInfo, "planner", ai.Agent(client)))
func Timing(level slog.Level, prefix string, handler quill.Handler) quill.Handler {
	return quill.HandlerFunc(func(req *quill.Request, res *quill.Response) error {
		counter := &countingWriter{w: res.Data}
		start := time.Now()

		err := handler.ServeFlow(req, &quill.Response{Data: counter})

		attrs := []slog.Attr{
			slog.Duration("duration", time.Since(start)),
			slog.Int64("bytes", counter.n),
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
		}
		quill.LogAttr(req.Context, level, "["+prefix+"] completed", attrs...)
		return err
	})
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// formatPreview renders text as-is and binary data as a short hex summary.
func formatPreview(data []byte) string {
	if len(data) == 0 {
		return "<empty>"
	}
	if isPrintable(data) {
		return string(data)
	}
	if len(data) > 20 {
		return fmt.Sprintf("binary data (%d bytes): %x...", len(data), data[:20])
	}
	return fmt.Sprintf("binary data: %x", data)
}

func isPrintable(data []byte) bool {
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError {
			// A multi-byte rune cut at the peek boundary is still text.
			return size == 1 && len(data) < utf8.UTFMax && !utf8.FullRune(data)
		}
		if !unicode.IsPrint(r) && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
		data = data[size:]
	}
	return true
}
