// Package prom implements pagecache.Hooks with Prometheus metrics.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/pagecache"
)

// Adapter exports window hits/misses, live fetches, rebuild latency and
// store/source failures. Prefixes are never used as labels; they are
// unbounded. Safe for concurrent use.
type Adapter struct {
	pagecache.NopHooks

	hits       *prometheus.CounterVec
	misses     *prometheus.CounterVec
	live       *prometheus.CounterVec
	recache    *prometheus.HistogramVec
	writeLost  prometheus.Counter
	selfHeal   *prometheus.CounterVec
	rejected   prometheus.Counter
	storeErrs  *prometheus.CounterVec
	sourceErrs *prometheus.CounterVec
}

var _ pagecache.Hooks = (*Adapter)(nil)

// New constructs a Prometheus hooks adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}, labels)
	}
	a := &Adapter{
		hits:   counter("window_hits_total", "Window tokens served from the store", "pager", "slot"),
		misses: counter("window_misses_total", "Window tokens that triggered a rebuild", "pager", "slot"),
		live:   counter("live_fetches_total", "Pages served straight from the source", "pager"),
		recache: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "recache_seconds",
			Help:        "Window rebuild latency",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"pager"}),
		writeLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "slot_writes_lost_total",
			Help:        "Slot writes dropped after losing a compare-and-swap",
			ConstLabels: constLabels,
		}),
		selfHeal: counter("self_heals_total", "Stored slots dropped on read by reason", "reason"),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "provider_set_rejected_total",
			Help:        "Slot writes refused by the cache provider",
			ConstLabels: constLabels,
		}),
		storeErrs:  counter("store_errors_total", "Store failures treated as misses by operation", "op"),
		sourceErrs: counter("source_errors_total", "Source failures returned to callers", "pager"),
	}
	reg.MustRegister(a.hits, a.misses, a.live, a.recache, a.writeLost, a.selfHeal, a.rejected, a.storeErrs, a.sourceErrs)
	return a
}

func (a *Adapter) WindowHit(pager, _ string, slot int) {
	a.hits.WithLabelValues(pager, slotLabel(slot)).Inc()
}

func (a *Adapter) WindowMiss(pager, _ string, slot int) {
	a.misses.WithLabelValues(pager, slotLabel(slot)).Inc()
}

func (a *Adapter) LiveFetch(pager, _ string) { a.live.WithLabelValues(pager).Inc() }

func (a *Adapter) Recached(pager, _ string, _ int, took time.Duration) {
	a.recache.WithLabelValues(pager).Observe(took.Seconds())
}

func (a *Adapter) SlotWriteLost(string)             { a.writeLost.Inc() }
func (a *Adapter) SelfHeal(_, reason string)        { a.selfHeal.WithLabelValues(reason).Inc() }
func (a *Adapter) ProviderSetRejected(string)       { a.rejected.Inc() }
func (a *Adapter) StoreError(op, _ string, _ error) { a.storeErrs.WithLabelValues(op).Inc() }
func (a *Adapter) SourceError(pager, _ string, _ error) {
	a.sourceErrs.WithLabelValues(pager).Inc()
}

// slotLabel avoids strconv on the hot path for the usual window sizes.
func slotLabel(slot int) string {
	const small = "0123456789"
	if slot >= 0 && slot < len(small) {
		return small[slot : slot+1]
	}
	return "10+"
}
