// Package env reads raw process environment values. It exists for the
// few lookups that happen before the typed config is loaded, such as
// the log level the logger boots with.
package env

import "os"

// Get returns the value of the given environment variable or a fallback.
func Get(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
