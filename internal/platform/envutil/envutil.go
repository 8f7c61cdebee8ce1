// Package envutil reads process configuration from the environment,
// falling back to a default whenever a variable is unset or fails to
// parse.
package envutil

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// String reads a string env var, trimmed, with a fallback default.
func String(name, def string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return v
}

// Int reads an integer env var with a fallback default.
func Int(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// Duration reads a duration env var (e.g. "30s", "5m") with a fallback
// default.
func Duration(name string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
