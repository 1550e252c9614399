// Package idgen provides pluggable ID generation for docforge.
//
// Sessions, annotations, and journal entries all accept a Generator, making
// the ID strategy a startup-time decision rather than a compile-time one.
package idgen

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
// Time-sortable, globally unique.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
// Useful for type-scoped identifiers (e.g. "ann_", "sess_", "exp_").
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Timestamped returns a Generator that produces IDs in the format
// "20060102T150405Z_<suffix>" where suffix comes from the inner generator.
func Timestamped(gen Generator) Generator {
	return func() string {
		return time.Now().UTC().Format("20060102T150405Z") + "_" + gen()
	}
}

// Default is the docforge default: UUIDv7 (RFC 9562).
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// Parse validates a UUID string and returns it or an error.
func Parse(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid UUID: %w", err)
	}
	return u.String(), nil
}
