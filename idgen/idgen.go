// Package idgen generates the identifiers attached to conversion runs and
// tool requests. They show up in log records only, never in raster or PDF
// content, so two runs over the same archive still produce identical pages.
package idgen

import "github.com/google/uuid"

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
// Time-sortable, so log records of consecutive runs sort by start time.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// Run generates conversion run identifiers ("run_<uuid>").
var Run Generator = Prefixed("run_", Default)

// Request generates tool request identifiers ("req_<uuid>").
var Request Generator = Prefixed("req_", Default)
