package quill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// DefaultPublicMessage is what end users see when an operation fails for a
// reason they cannot act on.
const DefaultPublicMessage = "Sorry, something went wrong while handling your request. Please try again."

// Error is a context-aware error carrying trace metadata and slog attributes.
//
// It supports errors.Is / errors.As through Unwrap. An optional public
// message can be attached for user-facing surfaces. Internal causes never
// leak through PublicMessage.
//
// Example:
//
//	return quill.WrapErr(ctx, err, "index upsert failed").
//	    Tag(slog.String("tenant_id", tenantID)).
//	    Tag(slog.Int("records", len(records)))
type Error struct {
	msg       string
	public    string
	cause     error
	traceID   string
	requestID string
	attrs     []slog.Attr
}

// WrapErr wraps err with msg and the trace/request IDs found in ctx.
func WrapErr(ctx context.Context, err error, msg string) *Error {
	return &Error{
		msg:       msg,
		cause:     err,
		traceID:   TraceID(ctx),
		requestID: RequestID(ctx),
	}
}

// NewErr creates an Error without a cause.
func NewErr(ctx context.Context, msg string) *Error {
	return WrapErr(ctx, nil, msg)
}

// Tag attaches a structured attribute.
func (e *Error) Tag(attr slog.Attr) *Error {
	e.attrs = append(e.attrs, attr)
	return e
}

// Tags attaches several structured attributes.
func (e *Error) Tags(attrs ...slog.Attr) *Error {
	e.attrs = append(e.attrs, attrs...)
	return e
}

// Public sets the message shown to end users.
func (e *Error) Public(msg string) *Error {
	e.public = msg
	return e
}

// Error implements error.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Message returns the message without the cause.
func (e *Error) Message() string {
	return e.msg
}

// TraceID returns the trace ID captured at construction.
func (e *Error) TraceID() string {
	return e.traceID
}

// RequestID returns the request ID captured at construction.
func (e *Error) RequestID() string {
	return e.requestID
}

// Attrs returns the attached attributes.
func (e *Error) Attrs() []slog.Attr {
	return e.attrs
}

// LogAttrs returns the cause, IDs and tags as slog attributes.
func (e *Error) LogAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(e.attrs)+3)
	if e.cause != nil {
		attrs = append(attrs, slog.Any("error", e.cause))
	}
	if e.traceID != "" {
		attrs = append(attrs, slog.String("trace_id", e.traceID))
	}
	if e.requestID != "" {
		attrs = append(attrs, slog.String("request_id", e.requestID))
	}
	return append(attrs, e.attrs...)
}

// Log writes the error at error level using the logger from ctx.
func (e *Error) Log(ctx context.Context) {
	logger := Logger(ctx)
	if !logger.Enabled(ctx, slog.LevelError) {
		return
	}
	logger.LogAttrs(ctx, slog.LevelError, e.msg, e.LogAttrs()...)
}

// Is matches another *Error with the same message.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.msg == t.msg
	}
	return false
}

// PublicMessage returns the user-facing text for err. It walks the chain for
// an *Error carrying a public message and otherwise falls back to
// DefaultPublicMessage.
func PublicMessage(err error) string {
	for err != nil {
		var qe *Error
		if !errors.As(err, &qe) {
			break
		}
		if qe.public != "" {
			return qe.public
		}
		err = qe.cause
	}
	return DefaultPublicMessage
}
