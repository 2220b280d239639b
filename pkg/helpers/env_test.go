package helpers

import (
	"slices"
	"testing"
	"time"
)

func TestGetStringFromEnv(t *testing.T) {
	tests := []struct {
		name  string
		value string
		def   string
		want  string
	}{
		{"with env value", "gemini-2.5-pro", "default", "gemini-2.5-pro"},
		{"empty env value", "", "default", "default"},
		{"spaces are kept", "  value  ", "default", "  value  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("QUILL_TEST_STRING", tt.value)
			if got := GetStringFromEnv("QUILL_TEST_STRING", tt.def); got != tt.want {
				t.Errorf("GetStringFromEnv() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetIntFromEnv(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int
	}{
		{"valid int", "42", 42},
		{"invalid int", "not-a-number", 10},
		{"empty", "", 10},
		{"zero", "0", 0},
		{"negative", "-5", -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("QUILL_TEST_INT", tt.value)
			if got := GetIntFromEnv("QUILL_TEST_INT", 10); got != tt.want {
				t.Errorf("GetIntFromEnv() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetFloatFromEnv(t *testing.T) {
	t.Setenv("QUILL_TEST_FLOAT", "0.25")
	if got := GetFloatFromEnv("QUILL_TEST_FLOAT", 1); got != 0.25 {
		t.Errorf("GetFloatFromEnv() = %v, want 0.25", got)
	}
	t.Setenv("QUILL_TEST_FLOAT", "abc")
	if got := GetFloatFromEnv("QUILL_TEST_FLOAT", 1); got != 1 {
		t.Errorf("GetFloatFromEnv(invalid) = %v, want 1", got)
	}
}

func TestGetBoolFromEnv(t *testing.T) {
	tests := []struct {
		name  string
		value string
		def   bool
		want  bool
	}{
		{"true", "true", false, true},
		{"one", "1", false, true},
		{"false", "false", true, false},
		{"invalid keeps default", "yes please", true, true},
		{"empty keeps default", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("QUILL_TEST_BOOL", tt.value)
			if got := GetBoolFromEnv("QUILL_TEST_BOOL", tt.def); got != tt.want {
				t.Errorf("GetBoolFromEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetDurationFromEnv(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"seconds", "30s", 30 * time.Second},
		{"hours", "1h", time.Hour},
		{"invalid", "soon", time.Minute},
		{"empty", "", time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("QUILL_TEST_DURATION", tt.value)
			if got := GetDurationFromEnv("QUILL_TEST_DURATION", time.Minute); got != tt.want {
				t.Errorf("GetDurationFromEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetListFromEnv(t *testing.T) {
	t.Setenv("QUILL_TEST_LIST", " a, b ,,c ")
	if got := GetListFromEnv("QUILL_TEST_LIST", nil); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("GetListFromEnv() = %v", got)
	}
	t.Setenv("QUILL_TEST_LIST", "")
	if got := GetListFromEnv("QUILL_TEST_LIST", []string{"x"}); !slices.Equal(got, []string{"x"}) {
		t.Errorf("GetListFromEnv(empty) = %v", got)
	}
}
