package main

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/pagecache"
	"github.com/unkn0wn-root/pagecache/codec"
	"github.com/unkn0wn-root/pagecache/genstore"
	asynchook "github.com/unkn0wn-root/pagecache/hooks/async"
	"github.com/unkn0wn-root/pagecache/hooks/prom"
	"github.com/unkn0wn-root/pagecache/internal/comments"
	"github.com/unkn0wn-root/pagecache/internal/config"
	"github.com/unkn0wn-root/pagecache/internal/db"
	"github.com/unkn0wn-root/pagecache/internal/games"
	"github.com/unkn0wn-root/pagecache/internal/ranking"
	"github.com/unkn0wn-root/pagecache/lists"
	pclogrus "github.com/unkn0wn-root/pagecache/log/logrus"
	"github.com/unkn0wn-root/pagecache/provider/bigcache"
	rp "github.com/unkn0wn-root/pagecache/provider/redis"
	"github.com/unkn0wn-root/pagecache/provider/ristretto"
	"github.com/unkn0wn-root/pagecache/sloghooks"
	"github.com/unkn0wn-root/pagecache/store"
)

const (
	maxSlotBytes   = 1 << 20
	bigcacheMinTTL = 24 * time.Hour
)

// runtime holds every long-lived component of the daemon.
type runtime struct {
	cfg     *config.Config
	log     *logrus.Logger
	db      *sql.DB
	rdb     goredis.UniversalClient
	store   store.Store
	hooks   *asynchook.Hooks
	metrics *prometheus.Registry

	gamePager    pagecache.Pager[games.Game]
	commentPager pagecache.Pager[comments.Comment]

	games    *games.Repository
	listings *lists.Global[games.Game]
	comments *comments.Service
	ranking  *ranking.Job
}

func build(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (rt *runtime, err error) {
	rt = &runtime{cfg: cfg, log: logger, metrics: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
			rt = nil
		}
	}()

	rt.metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if rt.db, err = db.Open(ctx, cfg.DatabasePath); err != nil {
		return rt, err
	}
	if cfg.UsesRedis() {
		rt.rdb = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			Password: cfg.Redis.Password,
		})
		if err = rt.rdb.Ping(ctx).Err(); err != nil {
			return rt, errors.Wrapf(err, "ping redis %s", cfg.Redis.Addr)
		}
	}

	// metrics feed synchronously; log lines go through a bounded queue
	slogger := slog.New(slog.NewJSONHandler(logger.Out, &slog.HandlerOptions{Level: slog.LevelInfo}))
	rt.hooks = asynchook.New(sloghooks.New(slogger, sloghooks.Options{
		SelfHealEvery:  10,
		WriteLostEvery: 10,
		SlowRecache:    250 * time.Millisecond,
	}), 1, 1024)
	hooks := pagecache.MultiHooks{prom.New(rt.metrics, "pagecache", "", nil), rt.hooks}

	if rt.store, err = buildStore(cfg, rt.rdb, hooks, rt.metrics); err != nil {
		return rt, err
	}

	plog := pclogrus.New(logger)
	rt.games = games.NewRepository(rt.db)

	gameSrc, err := games.NewSource(rt.db)
	if err != nil {
		return rt, err
	}
	rt.gamePager, err = pagecache.New(pagecache.Options[games.Game]{
		Namespace:       "games",
		Store:           rt.store,
		Source:          gameSrc,
		Codec:           codec.LimitCodec[pagecache.Page[games.Game]]{Inner: codec.Msgpack[pagecache.Page[games.Game]]{}, MaxEncode: maxSlotBytes, MaxDecode: maxSlotBytes},
		WindowSize:      cfg.Pager.WindowSize,
		PageSize:        cfg.Pager.PageSize,
		Logger:          plog,
		Hooks:           hooks,
		CoalesceRecache: cfg.Pager.Coalesce,
		Disabled:        cfg.Pager.Disabled,
		SharedStore:     true,
	})
	if err != nil {
		return rt, err
	}
	if rt.listings, err = lists.NewGlobal(rt.gamePager, games.Orderings(), plog); err != nil {
		return rt, err
	}

	commentSrc, err := comments.NewSource(rt.db)
	if err != nil {
		return rt, err
	}
	commentCodec, err := codec.NewCBOR[pagecache.Page[comments.Comment]](codec.CBOROptions{Deterministic: true})
	if err != nil {
		return rt, err
	}
	rt.commentPager, err = pagecache.New(pagecache.Options[comments.Comment]{
		Namespace:       "comments",
		Store:           rt.store,
		Source:          commentSrc,
		Codec:           codec.LimitCodec[pagecache.Page[comments.Comment]]{Inner: commentCodec, MaxEncode: maxSlotBytes, MaxDecode: maxSlotBytes},
		WindowSize:      cfg.Pager.WindowSize,
		PageSize:        cfg.Pager.PageSize,
		Logger:          plog,
		Hooks:           hooks,
		CoalesceRecache: cfg.Pager.Coalesce,
		Disabled:        cfg.Pager.Disabled,
		SharedStore:     true,
	})
	if err != nil {
		return rt, err
	}
	thread, err := lists.NewPerParent[comments.Comment](rt.commentPager, rt.games, comments.ThreadQuery, plog)
	if err != nil {
		return rt, err
	}
	rt.comments = comments.NewService(rt.db, thread, logger)

	rt.ranking, err = ranking.New(rt.games, rt.listings, ranking.Options{
		Interval: cfg.Ranking.Interval.DurationValue(),
		Workers:  cfg.Ranking.Workers,
		Logger:   logger,
	})
	if err != nil {
		return rt, err
	}
	return rt, nil
}

// buildStore picks the byte backend and the generation store from cfg and
// reports store-level events through hooks.
func buildStore(cfg *config.Config, rdb goredis.UniversalClient, hooks pagecache.Hooks, reg prometheus.Registerer) (store.Store, error) {
	opts := store.Options{
		TTL:           cfg.Store.TTL.DurationValue(),
		OnSelfHeal:    hooks.SelfHeal,
		OnSetRejected: hooks.ProviderSetRejected,
	}

	var err error
	switch cfg.Store.Backend {
	case config.BackendRedis:
		opts.Provider, err = rp.New(rp.Config{Client: rdb, QueryTimeout: cfg.Redis.QueryTimeout.DurationValue()})
	case config.BackendRistretto:
		var p *ristretto.Provider
		p, err = ristretto.New(ristretto.Config{
			MaxBytes:    cfg.Store.MaxCost << 20,
			Metrics:     true,
			Synchronous: true,
		})
		if err == nil {
			opts.Provider = p
			opts.Cost = func(_ string, raw []byte) int64 { return int64(len(raw)) }
			registerRistretto(reg, p)
		}
	case config.BackendBigcache:
		ttl := cfg.Store.TTL.DurationValue()
		if ttl < bigcacheMinTTL {
			ttl = bigcacheMinTTL
		}
		opts.Provider, err = bigcache.New(bigcache.Config{LifeWindow: ttl, MaxMB: int(cfg.Store.MaxCost)})
	default:
		err = errors.Newf("unknown store backend %q", cfg.Store.Backend)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "store backend %s", cfg.Store.Backend)
	}

	if cfg.Store.GenStore == config.GenStoreRedis {
		opts.GenStore = genstore.NewRedisGenStore(rdb, genstore.RedisOptions{Namespace: "pagecache", TTL: gensTTL(cfg)})
	}
	return store.New(opts)
}

// gensTTL keeps generations around longer than the slots they guard; an
// expired generation only costs a self-heal.
func gensTTL(cfg *config.Config) time.Duration {
	return 2 * cfg.Store.TTL.DurationValue()
}

func registerRistretto(reg prometheus.Registerer, p *ristretto.Provider) {
	counter := func(name, help string, pick func(ristretto.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "pagecache", Subsystem: "ristretto", Name: name, Help: help,
		}, func() float64 { return float64(pick(p.Stats())) })
	}
	reg.MustRegister(
		counter("hits_total", "Ristretto get hits", func(s ristretto.Stats) uint64 { return s.Hits }),
		counter("misses_total", "Ristretto get misses", func(s ristretto.Stats) uint64 { return s.Misses }),
		counter("sets_rejected_total", "Ristretto sets dropped or rejected", func(s ristretto.Stats) uint64 { return s.Rejected }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "pagecache", Subsystem: "ristretto", Name: "cost_bytes", Help: "Bytes currently charged to the cache",
		}, func() float64 { return float64(p.Stats().CostUsed) }),
	)
}

// health reports whether the database and redis answer.
func (rt *runtime) health(ctx context.Context) error {
	if err := rt.db.PingContext(ctx); err != nil {
		return errors.Wrap(err, "database")
	}
	if rt.rdb != nil {
		if err := rt.rdb.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, "redis")
		}
	}
	return nil
}

// Close releases components in reverse build order. Safe on a partially
// built runtime.
func (rt *runtime) Close(ctx context.Context) error {
	var err error
	for _, p := range []interface{ Close(context.Context) error }{rt.commentPager, rt.gamePager} {
		if p != nil {
			err = errors.CombineErrors(err, p.Close(ctx))
		}
	}
	if rt.store != nil {
		err = errors.CombineErrors(err, rt.store.Close(ctx))
	}
	if rt.hooks != nil {
		rt.hooks.Close()
	}
	if rt.rdb != nil {
		err = errors.CombineErrors(err, rt.rdb.Close())
	}
	if rt.db != nil {
		err = errors.CombineErrors(err, rt.db.Close())
	}
	return err
}
