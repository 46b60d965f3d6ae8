package pagecache

import "time"

const (
	DefaultWindowSize = 5
	DefaultPageSize   = 30

	// sharedRecacheTimeout bounds a coalesced rebuild once it no longer
	// follows the context of the caller that started it.
	sharedRecacheTimeout = 30 * time.Second
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
