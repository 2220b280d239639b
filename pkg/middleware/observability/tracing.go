package observability

import (
	"io"

	"github.com/quill-ai/go-quill/pkg/quill"
)

// Trace runs next inside a span named name. The stream passes through
// untouched and the span records the number of bytes written.
//
//	flow := quill.NewFlow().
//	    Use(prompt.Template(chatPrompt)).
//	    Use(observability.Trace(tracer, "chains.chat", ai.Agent(client)))
func Trace(provider TracerProvider, name string, next quill.Handler) quill.Handler {
	return quill.HandlerFunc(func(req *quill.Request, res *quill.Response) error {
		ctx, span := provider.StartSpan(req.Context, name, WithSpanKind(SpanKindInternal))

		cw := &countingWriter{w: res.Data}
		err := next.ServeFlow(req.WithContext(ctx), quill.NewResponse(cw))

		span.SetAttribute("output_bytes", cw.n)
		if err != nil {
			span.SetStatus(SpanStatusError, err.Error())
		} else {
			span.SetStatus(SpanStatusOK, "")
		}
		span.End(err)
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
