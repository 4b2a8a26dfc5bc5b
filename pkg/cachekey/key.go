// Package cachekey builds deterministic, collision-free cache keys.
//
// Keys are colon-delimited with a leading namespace segment followed by an
// entity path and, for parameterized lookups, a stable serialization of the
// filter or pagination parameters. Two logically identical queries always
// serialize to byte-identical keys.
package cachekey

import (
	"fmt"
	"sort"
	"strings"
)

// Namespace identifies the leading key segment.
type Namespace string

const (
	// Data namespaces keys for domain entities.
	Data Namespace = "data"

	// API namespaces keys for upstream API responses.
	API Namespace = "api"

	// Performance namespaces keys for precomputed hot-path payloads.
	Performance Namespace = "performance"
)

// Key represents a structured cache key before serialization.
type Key struct {
	Namespace Namespace
	Path      []string
	Params    map[string]string
}

// String generates the deterministic key string.
// Format: namespace:path/segments:param1=val1:param2=val2
//
// Example:
//
//	data:flavors/featured:limit=10:region=eu
func (k Key) String() string {
	parts := []string{string(k.Namespace)}

	if len(k.Path) > 0 {
		parts = append(parts, strings.Join(k.Path, "/"))
	}

	// Params sorted by name for determinism.
	if len(k.Params) > 0 {
		names := make([]string, 0, len(k.Params))
		for name := range k.Params {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, k.Params[name]))
		}
	}

	return strings.Join(parts, ":")
}

// DataKey builds a data-namespace key from path segments.
func DataKey(path ...string) string {
	return Key{Namespace: Data, Path: path}.String()
}

// APIKey builds an api-namespace key from path segments and optional params.
func APIKey(path []string, params map[string]string) string {
	return Key{Namespace: API, Path: path, Params: params}.String()
}

// PerformanceKey builds a performance-namespace key from path segments.
func PerformanceKey(path ...string) string {
	return Key{Namespace: Performance, Path: path}.String()
}

// Pattern builds a glob pattern matching every key under a namespace prefix,
// suitable for the manager's InvalidatePattern.
func Pattern(ns Namespace, path ...string) string {
	parts := []string{string(ns)}
	if len(path) > 0 {
		parts = append(parts, strings.Join(path, "/"))
	}
	return strings.Join(parts, ":") + ":*"
}
