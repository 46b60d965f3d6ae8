package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/unkn0wn-root/pagecache"
)

// EnvPrefix namespaces environment overrides, e.g. PAGECACHE_REDIS_ADDR.
const EnvPrefix = "PAGECACHE"

var envKeyReplacer = strings.NewReplacer(".", "_")

// Load reads a TOML or YAML file, fills in defaults and validates the
// result. An empty path loads defaults and environment overrides only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.DatabasePath != ":memory:" {
		abs, err := filepath.Abs(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
		cfg.DatabasePath = abs
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenAddr", ":8080")
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("DatabasePath", "./pagecache.db")
	v.SetDefault("Store.Backend", BackendRistretto)
	v.SetDefault("Store.GenStore", GenStoreLocal)
	v.SetDefault("Store.TTL", "10m")
	v.SetDefault("Store.MaxCost", 64)
	v.SetDefault("Redis.Addr", "")
	v.SetDefault("Redis.DB", 0)
	v.SetDefault("Redis.Password", "")
	v.SetDefault("Redis.QueryTimeout", "250ms")
	v.SetDefault("Pager.WindowSize", pagecache.DefaultWindowSize)
	v.SetDefault("Pager.PageSize", pagecache.DefaultPageSize)
	v.SetDefault("Pager.Coalesce", true)
	v.SetDefault("Pager.Disabled", false)
	v.SetDefault("Ranking.Interval", "1m")
	v.SetDefault("Ranking.Workers", 4)
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	target := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != target {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if secs, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(secs * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("cannot parse duration %q", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("unsupported duration type %T", v)
		}
	}
}
