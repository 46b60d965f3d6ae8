// Package bigcache keeps window slots off-heap in BigCache shards.
//
// BigCache has one LifeWindow for every entry, so the per-call TTL is
// ignored. Stale slots are still caught by their generation.
package bigcache

import (
	"context"
	"errors"
	"strings"
	"time"

	bc "github.com/allegro/bigcache/v3"

	pr "github.com/unkn0wn-root/pagecache/provider"
)

type Config struct {
	LifeWindow time.Duration
	// MaxMB caps the memory of all shards. 0 = unlimited.
	MaxMB int
	// Shards must be a power of two; 0 => 256.
	Shards int
}

type Provider struct {
	c *bc.BigCache
}

var _ pr.Provider = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	if cfg.LifeWindow <= 0 {
		return nil, errors.New("bigcache: LifeWindow must be positive")
	}
	conf := bc.DefaultConfig(cfg.LifeWindow)
	conf.CleanWindow = cfg.LifeWindow / 4
	conf.Shards = 256
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	conf.HardMaxCacheSize = cfg.MaxMB
	// pages are larger than the default 500 byte guess
	conf.MaxEntrySize = 4 << 10
	if cfg.MaxMB > 0 {
		conf.MaxEntriesInWindow = cfg.MaxMB << 20 / conf.MaxEntrySize
	}
	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	return &Provider{c: c}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := p.c.Get(key)
	switch {
	case err == nil:
		return b, true, nil
	case errors.Is(err, bc.ErrEntryNotFound):
		return nil, false, nil
	default:
		return nil, false, err
	}
}

// Set reports ok=false for a slot larger than a shard can hold.
func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	err := p.c.Set(key, value)
	if err == nil {
		return true, nil
	}
	if isTooBig(err) {
		return false, nil
	}
	return false, err
}

func (p *Provider) Del(_ context.Context, key string) error {
	if err := p.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

// Len is the number of live entries across shards.
func (p *Provider) Len() int { return p.c.Len() }

func (p *Provider) Close(_ context.Context) error {
	return p.c.Close()
}

// bigcache reports oversized entries with an unexported error value.
func isTooBig(err error) bool {
	return strings.Contains(err.Error(), "bigger than max shard size")
}
