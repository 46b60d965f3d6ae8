// Package pagecache serves large, sorted, continuously mutating collections
// through opaque page tokens while caching only the first few pages.
//
// A collection instance is addressed by a prefix (a parent id, an ordering
// name). The first WindowSize pages of each prefix live in a store.Store as
// "window slots"; anything past the window is fetched live from the
// source.Source on every request.
//
// Tokens:
//
//	""        - same as page0
//	page<N>   - window slot N, 0 <= N < WindowSize; always served from the store
//	other     - an opaque source cursor; always served live
//
// Keys:
//
//	page:<ns>:<prefix>|page<N>
//
// A window miss rebuilds every slot of the prefix from the start of the
// collection. Slot N chains to page<N+1>; the last slot carries the raw
// source cursor, so a client walking past the window drops into live mode
// and never comes back.
//
// Slot writes use compare-and-swap against the version read at the start of
// each slot. A losing writer's slot is dropped, not retried, so two racing
// rebuilds may leave a window that mixes both passes. Store failures are
// logged and treated as misses; reads only fail when the source does.
package pagecache
