// Package redis stores window slots as plain Redis strings.
//
// Pair it with genstore.RedisGenStore so every replica validates slots
// against the same generations.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/pagecache/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

type Config struct {
	Client goredis.UniversalClient
	// CloseClient hands ownership of Client to the provider.
	CloseClient bool
	// QueryTimeout bounds each round-trip; 0 leaves the caller's deadline alone.
	QueryTimeout time.Duration
}

type Provider struct {
	rdb     goredis.UniversalClient
	owned   bool
	timeout time.Duration
}

var _ pr.Provider = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Provider{rdb: cfg.Client, owned: cfg.CloseClient, timeout: cfg.QueryTimeout}, nil
}

// bounded runs fn under the per-query timeout.
func (p *Provider) bounded(ctx context.Context, fn func(context.Context) error) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return fn(ctx)
}

func (p *Provider) Get(ctx context.Context, key string) (b []byte, ok bool, err error) {
	err = p.bounded(ctx, func(ctx context.Context) error {
		b, err = p.rdb.Get(ctx, key).Bytes()
		return err
	})
	switch {
	case errors.Is(err, goredis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return b, true, nil
}

// Set never rejects; a non-positive ttl stores without expiry.
func (p *Provider) Set(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	ttl = max(ttl, 0)
	err := p.bounded(ctx, func(ctx context.Context) error {
		return p.rdb.Set(ctx, key, value, ttl).Err()
	})
	return err == nil, err
}

func (p *Provider) Del(ctx context.Context, key string) error {
	return p.bounded(ctx, func(ctx context.Context) error {
		return p.rdb.Del(ctx, key).Err()
	})
}

// Close closes the client only when the provider owns it. Repeated calls
// are no-ops.
func (p *Provider) Close(context.Context) error {
	if !p.owned {
		return nil
	}
	if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return err
	}
	return nil
}
