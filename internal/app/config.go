package app

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"prekeyd/internal/logger"
	"prekeyd/internal/ratelimit"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
)

// Defaults.
const (
	DefaultListen           = ":8080"
	DefaultStoragePath      = "prekeyd.db"
	DefaultPreKeyBucket     = 100
	DefaultPreKeyLeakPerMin = 10
	DefaultRateLimitCache   = 100000
	DefaultReadTimeout      = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultShutdownTimeout  = 5 * time.Second

	envPrefix = "PREKEYD"
)

// StorageConfig selects and configures the key store.
type StorageConfig struct {
	Backend    string
	Path       string
	Passphrase string
}

// HTTPConfig holds server timeouts.
type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Config holds the server settings.
type Config struct {
	Listen    string
	LogLevel  uint32
	Storage   StorageConfig
	SeedFile  string
	RateLimit ratelimit.Config
	HTTP      HTTPConfig
}

// new Viper to parse configuration file and PREKEYD_ environment overrides
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// NewDefaultConfig creates a new Config with default settings.
func NewDefaultConfig() *Config {
	return &Config{
		Listen:   DefaultListen,
		LogLevel: uint32(log.InfoLevel),
		Storage: StorageConfig{
			Backend: BackendMemory,
			Path:    DefaultStoragePath,
		},
		RateLimit: ratelimit.Config{
			BucketSize:    DefaultPreKeyBucket,
			LeakPerMinute: DefaultPreKeyLeakPerMin,
			CacheSize:     DefaultRateLimitCache,
		},
		HTTP: HTTPConfig{
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
	}
}

// NewConfig reads configFile (yaml) over the defaults. An empty or missing
// file leaves the defaults in place; environment overrides apply either way.
func NewConfig(configFile string) (*Config, error) { // nolint: gocyclo
	v := newViper()
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrapf(err, "read config %s", configFile)
		}
	}

	config := NewDefaultConfig()

	if v.IsSet("listen") {
		config.Listen = v.GetString("listen")
	}

	if v.IsSet("log.level") {
		level, err := logger.GetLogLevel(v.GetString("log.level"))
		if err != nil {
			return nil, err
		}
		config.LogLevel = level
	}

	if v.IsSet("storage.backend") {
		config.Storage.Backend = strings.ToLower(v.GetString("storage.backend"))
	}
	if v.IsSet("storage.path") {
		config.Storage.Path = v.GetString("storage.path")
	}
	if v.IsSet("storage.passphrase") {
		config.Storage.Passphrase = v.GetString("storage.passphrase")
	}

	if v.IsSet("accounts.seed") {
		config.SeedFile = v.GetString("accounts.seed")
	}

	if v.IsSet("ratelimit.prekeys.bucket") {
		config.RateLimit.BucketSize = v.GetInt("ratelimit.prekeys.bucket")
	}
	if v.IsSet("ratelimit.prekeys.leak_per_minute") {
		config.RateLimit.LeakPerMinute = v.GetFloat64("ratelimit.prekeys.leak_per_minute")
	}
	if v.IsSet("ratelimit.cache_size") {
		config.RateLimit.CacheSize = v.GetInt("ratelimit.cache_size")
	}

	for key, dst := range map[string]*time.Duration{
		"http.read_timeout":     &config.HTTP.ReadTimeout,
		"http.write_timeout":    &config.HTTP.WriteTimeout,
		"http.shutdown_timeout": &config.HTTP.ShutdownTimeout,
	} {
		if !v.IsSet(key) {
			continue
		}
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s", key)
		}
		*dst = d
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks settings that cannot be caught while parsing.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendBolt:
		if c.Storage.Path == "" {
			return errors.New("storage.path is required for the bolt backend")
		}
	default:
		return errors.Errorf("invalid storage.backend %q", c.Storage.Backend)
	}
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	if c.RateLimit.BucketSize <= 0 {
		return errors.New("ratelimit.prekeys.bucket must be positive")
	}
	if c.RateLimit.CacheSize <= 0 {
		return errors.New("ratelimit.cache_size must be positive")
	}
	return nil
}
