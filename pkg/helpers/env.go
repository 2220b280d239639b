// Package helpers holds the small utilities shared by the go-quill packages:
// environment lookups and rune-aware string handling.
package helpers

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// fromEnv reads key and parses it, falling back to def when the variable is
// unset, empty or unparseable.
func fromEnv[T any](key string, def T, parse func(string) (T, error)) T {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

// GetStringFromEnv returns the variable or def when it is unset or empty.
//
// Example:
//
//	model := helpers.GetStringFromEnv("GEMINI_MODEL", "gemini-2.5-flash")
func GetStringFromEnv(key, def string) string {
	return fromEnv(key, def, func(s string) (string, error) { return s, nil })
}

// GetIntFromEnv returns the variable as an int, or def.
func GetIntFromEnv(key string, def int) int {
	return fromEnv(key, def, strconv.Atoi)
}

// GetFloatFromEnv returns the variable as a float64, or def.
func GetFloatFromEnv(key string, def float64) float64 {
	return fromEnv(key, def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

// GetBoolFromEnv returns the variable as a bool, or def.
func GetBoolFromEnv(key string, def bool) bool {
	return fromEnv(key, def, strconv.ParseBool)
}

// GetDurationFromEnv returns the variable as a time.Duration ("30s", "1h"), or def.
func GetDurationFromEnv(key string, def time.Duration) time.Duration {
	return fromEnv(key, def, time.ParseDuration)
}

// GetListFromEnv splits a comma separated variable, dropping blank items.
//
// Example:
//
//	origins := helpers.GetListFromEnv("QUILL_ALLOWED_ORIGINS", nil)
func GetListFromEnv(key string, def []string) []string {
	return fromEnv(key, def, func(s string) ([]string, error) {
		var out []string
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	})
}
