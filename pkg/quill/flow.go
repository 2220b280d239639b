package quill

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Flow chains handlers so the output of one becomes the input of the next.
//
// Every handler runs in its own goroutine and is connected to its neighbours
// by an io.Pipe, so a streaming provider can push tokens straight through to
// the caller's writer. A Flow is itself a Handler and can be nested.
//
// Example:
//
//	flow := quill.NewFlow().
//	    Use(prompt.Template("Summarize: {{.Input}}")).
//	    Use(ai.Agent(client))
//
//	var summary string
//	err := flow.Run(ctx, chapterText, &summary)
type Flow struct {
	handlers []Handler
}

// NewFlow returns an empty flow.
func NewFlow() *Flow {
	return &Flow{}
}

// Use appends a handler.
func (f *Flow) Use(handler Handler) *Flow {
	f.handlers = append(f.handlers, handler)
	return f
}

// UseFunc appends a function handler.
func (f *Flow) UseFunc(fn HandlerFunc) *Flow {
	return f.Use(fn)
}

// Len reports how many handlers the flow holds.
func (f *Flow) Len() int {
	return len(f.handlers)
}

// ServeFlow runs the flow as a single handler inside another flow.
func (f *Flow) ServeFlow(req *Request, res *Response) error {
	return f.stream(req.Context, req.Data, res.Data)
}

// Run executes the flow.
//
// Input: string, []byte or io.Reader
// Output: *string, *[]byte, io.Writer, or nil to discard
// Behavior: STREAMING - handlers run concurrently connected by pipes
//
// The first handler error (or context cancellation) is returned. The output
// reader is always drained before Run returns so no goroutine is leaked.
func (f *Flow) Run(ctx context.Context, input any, output any) error {
	reader, err := toReader(ctx, input)
	if err != nil {
		return err
	}

	if len(f.handlers) == 0 {
		return fromReader(ctx, reader, output)
	}

	sink, done, err := outputSink(ctx, output)
	if err != nil {
		return err
	}

	if err := f.stream(ctx, reader, sink); err != nil {
		return err
	}
	return done()
}

// stream wires handler i's writer to handler i+1's reader and copies the
// last handler's output to out.
func (f *Flow) stream(ctx context.Context, in io.Reader, out io.Writer) error {
	if len(f.handlers) == 0 {
		_, err := io.Copy(out, in)
		return err
	}

	errCh := make(chan error, len(f.handlers)+1)
	readers := make([]*io.PipeReader, len(f.handlers))
	writers := make([]*io.PipeWriter, len(f.handlers))
	for i := range f.handlers {
		readers[i], writers[i] = io.Pipe()
	}

	var wg sync.WaitGroup
	for i, h := range f.handlers {
		var (
			src      io.Reader = in
			upstream *io.PipeReader
		)
		if i > 0 {
			upstream = readers[i-1]
			src = upstream
		}

		wg.Add(1)
		go func(h Handler, src io.Reader, upstream *io.PipeReader, dst *io.PipeWriter) {
			defer wg.Done()
			err := h.ServeFlow(&Request{Context: ctx, Data: src}, &Response{Data: dst})
			if err != nil {
				errCh <- err
			}
			// A nil err closes normally, anything else reaches the next reader.
			dst.CloseWithError(err)
			// Drain what the handler left unread so the previous stage can finish.
			if upstream != nil {
				_, _ = io.Copy(io.Discard, upstream)
			}
		}(h, src, upstream, writers[i])
	}

	copyErr := make(chan error, 1)
	go func() {
		last := readers[len(readers)-1]
		_, err := io.Copy(out, last)
		if err != nil {
			last.CloseWithError(err)
		}
		copyErr <- err
	}()

	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()

	var flowErr error
	select {
	case err := <-errCh:
		flowErr = err
	case <-ctx.Done():
		flowErr = ctx.Err()
	case <-waitDone:
		select {
		case err := <-errCh:
			flowErr = err
		default:
		}
	}

	if flowErr != nil {
		for _, w := range writers {
			w.CloseWithError(flowErr)
		}
	}

	if err := <-copyErr; err != nil && flowErr == nil {
		flowErr = err
	}
	return flowErr
}

func toReader(ctx context.Context, input any) (io.Reader, error) {
	switch v := input.(type) {
	case nil:
		return strings.NewReader(""), nil
	case string:
		return strings.NewReader(v), nil
	case []byte:
		return bytes.NewReader(v), nil
	case io.Reader:
		return v, nil
	default:
		return nil, NewErr(ctx, fmt.Sprintf("unsupported input type: %T", input))
	}
}

// outputSink returns a writer to stream into and a completion func that
// stores buffered results into the caller's pointer.
func outputSink(ctx context.Context, output any) (io.Writer, func() error, error) {
	noop := func() error { return nil }

	switch out := output.(type) {
	case nil:
		return io.Discard, noop, nil
	case io.Writer:
		return out, noop, nil
	case *string:
		var sb strings.Builder
		return &sb, func() error { *out = sb.String(); return nil }, nil
	case *[]byte:
		var buf bytes.Buffer
		return &buf, func() error { *out = buf.Bytes(); return nil }, nil
	default:
		return nil, nil, NewErr(ctx, fmt.Sprintf("unsupported output type: %T", output))
	}
}

func fromReader(ctx context.Context, r io.Reader, output any) error {
	sink, done, err := outputSink(ctx, output)
	if err != nil {
		return err
	}
	if _, err := io.Copy(sink, r); err != nil {
		return err
	}
	return done()
}
