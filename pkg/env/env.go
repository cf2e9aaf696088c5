// Package env reads process settings needed before config.Load has run.
package env

import (
	"os"
	"strings"
)

// Get returns the first non-blank value among keys, or fallback when none is
// set. Earlier keys take precedence, so a DEALROOM_ prefixed name can shadow
// a generic one.
func Get(fallback string, keys ...string) string {
	for _, key := range keys {
		if val := strings.TrimSpace(os.Getenv(key)); val != "" {
			return val
		}
	}
	return fallback
}
