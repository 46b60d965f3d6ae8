// Package config loads the pagecached configuration file.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration accepts Go duration strings ("30s", "5m") as well as plain
// seconds.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	return fmt.Errorf("invalid duration value: %s", raw)
}

func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// Store backends.
const (
	BackendRedis     = "redis"
	BackendRistretto = "ristretto"
	BackendBigcache  = "bigcache"

	GenStoreLocal = "local"
	GenStoreRedis = "redis"
)

type StoreConfig struct {
	Backend  string   `mapstructure:"Backend"`
	GenStore string   `mapstructure:"GenStore"`
	TTL      Duration `mapstructure:"TTL"`
	// MaxCost bounds the in-process backends, in megabytes.
	MaxCost int64 `mapstructure:"MaxCost"`
}

type RedisConfig struct {
	Addr         string   `mapstructure:"Addr"`
	DB           int      `mapstructure:"DB"`
	Password     string   `mapstructure:"Password"`
	QueryTimeout Duration `mapstructure:"QueryTimeout"`
}

type PagerConfig struct {
	WindowSize int  `mapstructure:"WindowSize"`
	PageSize   int  `mapstructure:"PageSize"`
	Coalesce   bool `mapstructure:"Coalesce"`
	Disabled   bool `mapstructure:"Disabled"`
}

type RankingConfig struct {
	Interval Duration `mapstructure:"Interval"`
	Workers  int      `mapstructure:"Workers"`
}

// Config mirrors the configuration file.
type Config struct {
	ListenAddr    string        `mapstructure:"ListenAddr"`
	LogLevel      string        `mapstructure:"LogLevel"`
	LogFilePath   string        `mapstructure:"LogFilePath"`
	LogMaxSize    int           `mapstructure:"LogMaxSize"`
	LogMaxBackups int           `mapstructure:"LogMaxBackups"`
	LogCompress   bool          `mapstructure:"LogCompress"`
	DatabasePath  string        `mapstructure:"DatabasePath"`
	Store         StoreConfig   `mapstructure:"Store"`
	Redis         RedisConfig   `mapstructure:"Redis"`
	Pager         PagerConfig   `mapstructure:"Pager"`
	Ranking       RankingConfig `mapstructure:"Ranking"`
}
