package pagecache

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The pager calls them on hot paths.
type Hooks interface {
	// A window token was served from the store.
	WindowHit(ns, prefix string, slot int)
	// A window token missed and triggered a rebuild of the prefix.
	WindowMiss(ns, prefix string, slot int)
	// A cursor token (or a disabled pager) was served straight from the source.
	LiveFetch(ns, prefix string)
	// A rebuild finished; slots is the number of slots written.
	Recached(ns, prefix string, slots int, took time.Duration)

	// A slot's compare-and-swap lost to a concurrent writer. Not retried.
	SlotWriteLost(storageKey string)
	// A stored entry was dropped on read.
	// reason ∈ {"corrupt", "gen_mismatch", "value_decode"}
	SelfHeal(storageKey, reason string)
	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)
	// Store call failed; the pager carried on as if it missed.
	// op ∈ {"contains", "get", "get_identifiable", "cas", "put", "delete", "encode"}
	StoreError(op, storageKey string, err error)

	// Source call failed; the error was returned to the caller.
	SourceError(ns, prefix string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) WindowHit(string, string, int)               {}
func (NopHooks) WindowMiss(string, string, int)              {}
func (NopHooks) LiveFetch(string, string)                    {}
func (NopHooks) Recached(string, string, int, time.Duration) {}
func (NopHooks) SlotWriteLost(string)                        {}
func (NopHooks) SelfHeal(string, string)                     {}
func (NopHooks) ProviderSetRejected(string)                  {}
func (NopHooks) StoreError(string, string, error)            {}
func (NopHooks) SourceError(string, string, error)           {}

// MultiHooks calls every member in order.
type MultiHooks []Hooks

var _ Hooks = MultiHooks(nil)

func (m MultiHooks) WindowHit(ns, prefix string, slot int) {
	for _, h := range m {
		h.WindowHit(ns, prefix, slot)
	}
}

func (m MultiHooks) WindowMiss(ns, prefix string, slot int) {
	for _, h := range m {
		h.WindowMiss(ns, prefix, slot)
	}
}

func (m MultiHooks) LiveFetch(ns, prefix string) {
	for _, h := range m {
		h.LiveFetch(ns, prefix)
	}
}

func (m MultiHooks) Recached(ns, prefix string, slots int, took time.Duration) {
	for _, h := range m {
		h.Recached(ns, prefix, slots, took)
	}
}

func (m MultiHooks) SlotWriteLost(storageKey string) {
	for _, h := range m {
		h.SlotWriteLost(storageKey)
	}
}

func (m MultiHooks) SelfHeal(storageKey, reason string) {
	for _, h := range m {
		h.SelfHeal(storageKey, reason)
	}
}

func (m MultiHooks) ProviderSetRejected(storageKey string) {
	for _, h := range m {
		h.ProviderSetRejected(storageKey)
	}
}

func (m MultiHooks) StoreError(op, storageKey string, err error) {
	for _, h := range m {
		h.StoreError(op, storageKey, err)
	}
}

func (m MultiHooks) SourceError(ns, prefix string, err error) {
	for _, h := range m {
		h.SourceError(ns, prefix, err)
	}
}
