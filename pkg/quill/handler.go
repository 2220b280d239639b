// Package quill is the small streaming core that every chain, gateway and
// service in go-quill is built on.
//
// A Handler reads its input from Request.Data and writes its output to
// Response.Data. Handlers are composed into a Flow, which connects them with
// io.Pipe so each stage starts consuming as soon as the previous one writes.
package quill

import (
	"context"
	"fmt"
	"io"
)

// Handler is the unit of composition.
type Handler interface {
	ServeFlow(*Request, *Response) error
}

// HandlerFunc adapts a plain function to a Handler.
type HandlerFunc func(req *Request, res *Response) error

// ServeFlow calls f(req, res).
func (f HandlerFunc) ServeFlow(req *Request, res *Response) error {
	return f(req, res)
}

// Request carries the input stream and the request-scoped context.
type Request struct {
	Context context.Context
	Data    io.Reader
}

// NewRequest builds a Request.
func NewRequest(ctx context.Context, data io.Reader) *Request {
	return &Request{Context: ctx, Data: data}
}

// WithContext returns a shallow copy of r with ctx.
func (r *Request) WithContext(ctx context.Context) *Request {
	return &Request{Context: ctx, Data: r.Data}
}

// Response carries the output stream.
type Response struct {
	Data io.Writer
}

// NewResponse builds a Response.
func NewResponse(data io.Writer) *Response {
	return &Response{Data: data}
}

// Read drains the request body into a string or byte slice.
//
// Example:
//
//	var input string
//	if err := quill.Read(req, &input); err != nil {
//	    return err
//	}
func Read[T string | []byte](req *Request, outPtr *T) error {
	data, err := io.ReadAll(req.Data)
	if err != nil {
		return err
	}

	switch ptr := any(outPtr).(type) {
	case *string:
		*ptr = string(data)
	case *[]byte:
		*ptr = data
	default:
		return fmt.Errorf("unsupported type %T", outPtr)
	}
	return nil
}

// Write writes a string or byte slice to the response body.
func Write[T string | []byte](res *Response, data T) error {
	var err error
	switch v := any(data).(type) {
	case string:
		_, err = io.WriteString(res.Data, v)
	case []byte:
		_, err = res.Data.Write(v)
	default:
		err = fmt.Errorf("unsupported type %T", data)
	}
	return err
}
