package config

import (
	"errors"
	"net"
	"strings"
)

// Validate rejects configurations the server cannot start with. It
// normalizes enum values to lower case on the way.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return newFieldError("ListenAddr", "must be host:port")
	}
	if c.DatabasePath == "" {
		return newFieldError("DatabasePath", "must not be empty")
	}
	if c.LogMaxSize < 0 || c.LogMaxBackups < 0 {
		return newFieldError("LogMaxSize", "log rotation limits must not be negative")
	}

	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	switch c.Store.Backend {
	case BackendRedis, BackendRistretto, BackendBigcache:
	default:
		return newFieldError("Store.Backend", "must be one of redis|ristretto|bigcache")
	}
	c.Store.GenStore = strings.ToLower(strings.TrimSpace(c.Store.GenStore))
	switch c.Store.GenStore {
	case GenStoreLocal, GenStoreRedis:
	default:
		return newFieldError("Store.GenStore", "must be one of local|redis")
	}
	if c.Store.TTL.DurationValue() < 0 {
		return newFieldError("Store.TTL", "must not be negative")
	}
	if c.Store.Backend != BackendRedis && c.Store.MaxCost <= 0 {
		return newFieldError("Store.MaxCost", "must be greater than 0")
	}
	if c.usesRedis() && c.Redis.Addr == "" {
		return newFieldError("Redis.Addr", "required by the redis store or generation store")
	}
	if c.Store.Backend == BackendRedis && c.Store.GenStore == GenStoreLocal {
		return newFieldError("Store.GenStore", "a shared redis backend needs the redis generation store")
	}

	if c.Pager.WindowSize <= 0 {
		return newFieldError("Pager.WindowSize", "must be greater than 0")
	}
	if c.Pager.PageSize <= 0 {
		return newFieldError("Pager.PageSize", "must be greater than 0")
	}
	if c.Ranking.Interval.DurationValue() <= 0 {
		return newFieldError("Ranking.Interval", "must be greater than 0")
	}
	if c.Ranking.Workers <= 0 {
		return newFieldError("Ranking.Workers", "must be greater than 0")
	}
	return nil
}

func (c *Config) usesRedis() bool {
	return c.Store.Backend == BackendRedis || c.Store.GenStore == GenStoreRedis
}

// UsesRedis reports whether a redis client has to be dialed.
func (c *Config) UsesRedis() bool { return c.usesRedis() }
