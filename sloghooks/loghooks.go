// Package sloghooks reports pagecache.Hooks events through log/slog.
//
// Hits, misses and live fetches are not logged; use hooks/prom for rates.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/pagecache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery  uint64
	WriteLostEvery uint64
	// Recaches slower than this are logged at Warn; 0 => never.
	SlowRecache time.Duration
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	pagecache.NopHooks

	l    *slog.Logger
	opts Options

	selfHealCtr  atomic.Uint64
	writeLostCtr atomic.Uint64
}

var _ pagecache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Recached(ns, prefix string, slots int, took time.Duration) {
	if h.l == nil || h.opts.SlowRecache <= 0 || took < h.opts.SlowRecache {
		return
	}
	h.l.Warn("pagecache.slow_recache",
		"ns", ns,
		"prefix", h.redact(prefix),
		"slots", slots,
		"took", took)
}

func (h *Hooks) SlotWriteLost(storageKey string) {
	if h.l == nil || !sample(h.opts.WriteLostEvery, &h.writeLostCtr) {
		return
	}
	h.l.Debug("pagecache.slot_write_lost",
		"key", h.redact(storageKey))
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("pagecache.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("pagecache.provider_set_rejected",
		"key", h.redact(storageKey))
}

func (h *Hooks) StoreError(op, storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("pagecache.store_error",
		"op", op,
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) SourceError(ns, prefix string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("pagecache.source_error",
		"ns", ns,
		"prefix", h.redact(prefix),
		"err", err)
}
