// Package config loads application configuration from environment variables
// and an optional config file.
package config

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/ericfisherdev/exchangevault/internal/domain/model"
)

// EnvPrefix is prepended to every configuration key when read from the environment.
const EnvPrefix = "EXCHANGEVAULT"

// Supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Configuration keys. The environment variable for a key is EnvPrefix + "_" +
// the upper-cased key; config files use the key as written.
const (
	keyListenAddr               = "listen_addr"
	keyDBDriver                 = "db_driver"
	keyDBPath                   = "db_path"
	keyDatabaseURL              = "database_url"
	keyStoreTimeout             = "store_timeout"
	keyKDFTime                  = "kdf_time"
	keyKDFMemoryKiB             = "kdf_memory_kib"
	keyKDFThreads               = "kdf_threads"
	keyRequirePasswordForStatus = "require_password_for_status"
	keyRateLimitRPM             = "rate_limit_rpm"
	keyRateLimitBurst           = "rate_limit_burst"
	keyLogLevel                 = "log_level"
	keyLogFormat                = "log_format"
)

// Keys lists every configuration key Load reads.
var Keys = []string{
	keyListenAddr, keyDBDriver, keyDBPath, keyDatabaseURL, keyStoreTimeout,
	keyKDFTime, keyKDFMemoryKiB, keyKDFThreads, keyRequirePasswordForStatus,
	keyRateLimitRPM, keyRateLimitBurst, keyLogLevel, keyLogFormat,
}

// Config holds the application configuration.
type Config struct {
	ListenAddr               string
	DBDriver                 string
	DBPath                   string
	DatabaseURL              string
	StoreTimeout             time.Duration
	KDF                      model.KDFParams
	RequirePasswordForStatus bool
	RateLimitRPM             int
	RateLimitBurst           int
	LogLevel                 slog.Level
	LogFormat                string
}

// EnvName returns the environment variable that sets key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(key)
}

// Load reads configuration from EXCHANGEVAULT_* environment variables, layered
// over configFile when it is non-empty, and returns a validated Config.
// Malformed values fail with the variable name in the error.
//
// Defaults: EXCHANGEVAULT_LISTEN_ADDR (127.0.0.1:8080), EXCHANGEVAULT_DB_DRIVER
// (sqlite), EXCHANGEVAULT_DB_PATH (exchangevault.db), EXCHANGEVAULT_STORE_TIMEOUT
// (5s), EXCHANGEVAULT_KDF_TIME (3), EXCHANGEVAULT_KDF_MEMORY_KIB (65536),
// EXCHANGEVAULT_KDF_THREADS (4), EXCHANGEVAULT_RATE_LIMIT_RPM (60),
// EXCHANGEVAULT_RATE_LIMIT_BURST (10), EXCHANGEVAULT_LOG_LEVEL (info),
// EXCHANGEVAULT_LOG_FORMAT (text). EXCHANGEVAULT_DATABASE_URL is required when
// the driver is postgres.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	v.SetDefault(keyListenAddr, "127.0.0.1:8080")
	v.SetDefault(keyDBDriver, DriverSQLite)
	v.SetDefault(keyDBPath, "exchangevault.db")
	v.SetDefault(keyDatabaseURL, "")
	v.SetDefault(keyStoreTimeout, "5s")
	v.SetDefault(keyKDFTime, 3)
	v.SetDefault(keyKDFMemoryKiB, 64*1024)
	v.SetDefault(keyKDFThreads, 4)
	v.SetDefault(keyRequirePasswordForStatus, false)
	v.SetDefault(keyRateLimitRPM, 60)
	v.SetDefault(keyRateLimitBurst, 10)
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogFormat, "text")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	p := parser{v: v}
	cfg := &Config{
		ListenAddr:               p.string(keyListenAddr),
		DBDriver:                 strings.ToLower(p.string(keyDBDriver)),
		DBPath:                   p.string(keyDBPath),
		DatabaseURL:              p.string(keyDatabaseURL),
		StoreTimeout:             p.duration(keyStoreTimeout),
		RequirePasswordForStatus: p.bool(keyRequirePasswordForStatus),
		RateLimitRPM:             p.int(keyRateLimitRPM),
		RateLimitBurst:           p.int(keyRateLimitBurst),
		LogFormat:                strings.ToLower(p.string(keyLogFormat)),
		KDF: model.KDFParams{
			Time:      p.uint32(keyKDFTime),
			MemoryKiB: p.uint32(keyKDFMemoryKiB),
			Threads:   p.uint8(keyKDFThreads),
		},
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(p.string(keyLogLevel))); err != nil {
		p.fail(keyLogLevel, err)
	}
	if p.err != nil {
		return nil, p.err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("%s must not be empty", EnvName(keyDBPath))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvName(keyDatabaseURL), EnvName(keyDBDriver), DriverPostgres)
		}
	default:
		return fmt.Errorf("%s has unsupported value %q (want %s or %s)", EnvName(keyDBDriver), c.DBDriver, DriverSQLite, DriverPostgres)
	}

	if c.StoreTimeout <= 0 {
		return fmt.Errorf("%s must be positive, got %s", EnvName(keyStoreTimeout), c.StoreTimeout)
	}
	if c.RateLimitRPM < 0 {
		return fmt.Errorf("%s must not be negative", EnvName(keyRateLimitRPM))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("%s has unsupported value %q (want text or json)", EnvName(keyLogFormat), c.LogFormat)
	}
	return nil
}

// parser converts viper values with cast, keeping the first failure.
type parser struct {
	v   *viper.Viper
	err error
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%s has invalid value %q: %w", EnvName(key), cast.ToString(p.v.Get(key)), err)
	}
}

func (p *parser) string(key string) string {
	s, err := cast.ToStringE(p.v.Get(key))
	if err != nil {
		p.fail(key, err)
	}
	return strings.TrimSpace(s)
}

func (p *parser) duration(key string) time.Duration {
	d, err := cast.ToDurationE(p.v.Get(key))
	if err != nil {
		p.fail(key, err)
	}
	return d
}

func (p *parser) bool(key string) bool {
	b, err := cast.ToBoolE(p.v.Get(key))
	if err != nil {
		p.fail(key, err)
	}
	return b
}

func (p *parser) int(key string) int {
	n, err := cast.ToIntE(p.v.Get(key))
	if err != nil {
		p.fail(key, err)
	}
	return n
}

func (p *parser) uint32(key string) uint32 {
	return uint32(p.bounded(key, math.MaxUint32))
}

func (p *parser) uint8(key string) uint8 {
	return uint8(p.bounded(key, math.MaxUint8))
}

// bounded reads a non-negative integer no larger than maxVal.
func (p *parser) bounded(key string, maxVal int64) int64 {
	n, err := cast.ToInt64E(p.v.Get(key))
	if err != nil {
		p.fail(key, err)
		return 0
	}
	if n < 0 || n > maxVal {
		p.fail(key, fmt.Errorf("out of range [0, %d]", maxVal))
		return 0
	}
	return n
}
