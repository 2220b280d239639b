package quill

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestReadWrite(t *testing.T) {
	req := NewRequest(context.Background(), strings.NewReader("once upon a time"))

	var s string
	if err := Read(req, &s); err != nil {
		t.Fatalf("Read(string) error = %v", err)
	}
	if s != "once upon a time" {
		t.Errorf("Read(string) = %q", s)
	}

	var b []byte
	if err := Read(NewRequest(context.Background(), strings.NewReader("raw")), &b); err != nil {
		t.Fatalf("Read([]byte) error = %v", err)
	}
	if string(b) != "raw" {
		t.Errorf("Read([]byte) = %q", b)
	}

	var buf bytes.Buffer
	res := NewResponse(&buf)
	if err := Write(res, "a"); err != nil {
		t.Fatal(err)
	}
	if err := Write(res, []byte("b")); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "ab" {
		t.Errorf("Write() produced %q", buf.String())
	}
}

func TestRequest_WithContext(t *testing.T) {
	type key struct{}
	base := NewRequest(context.Background(), strings.NewReader("x"))
	next := base.WithContext(context.WithValue(context.Background(), key{}, "v"))

	if next.Data != base.Data {
		t.Error("WithContext() should keep the same data stream")
	}
	if next.Context.Value(key{}) != "v" {
		t.Error("WithContext() did not replace the context")
	}
}
