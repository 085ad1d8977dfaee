// Package config loads the authrepo command's settings from a config file,
// AUTHREPO_ prefixed environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	redisstore "github.com/panyam/authrepo/stores/redis"
)

// Store backends
const (
	BackendFS        = "fs"
	BackendGorm      = "gorm"
	BackendPostgres  = "postgres"
	BackendRedis     = "redis"
	BackendDatastore = "gae"
)

// EnvPrefix is prepended to every environment variable, eg AUTHREPO_STORE_BACKEND
const EnvPrefix = "AUTHREPO"

type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	Store  StoreConfig  `mapstructure:"store"`
	Digest DigestConfig `mapstructure:"digest"`
	HTTP   HTTPConfig   `mapstructure:"http"`
	GRPC   GRPCConfig   `mapstructure:"grpc"`
	OAuth  OAuthConfig  `mapstructure:"oauth"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

type StoreConfig struct {
	Backend string `mapstructure:"backend"`

	// How long to keep retrying the initial connection
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	FS        FSConfig        `mapstructure:"fs"`
	Gorm      GormConfig      `mapstructure:"gorm"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Datastore DatastoreConfig `mapstructure:"gae"`
}

type FSConfig struct {
	Path string `mapstructure:"path"`
}

type GormConfig struct {
	DSN string `mapstructure:"dsn"`
}

type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	redisstore.ClientConfig `mapstructure:",squash"`
	Prefix                  string `mapstructure:"prefix"`
}

type DatastoreConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Namespace string `mapstructure:"namespace"`
}

type DigestConfig struct {
	Realm               string `mapstructure:"realm"`
	PrivateKey          string `mapstructure:"private_key"`
	NonceTimeoutSeconds int    `mapstructure:"nonce_timeout_seconds"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	SessionLifetime time.Duration `mapstructure:"session_lifetime"`
	SecureCookies   bool          `mapstructure:"secure_cookies"`
	MetricsPath     string        `mapstructure:"metrics_path"`

	// Read client addresses from X-Forwarded-For.  Only behind a proxy.
	TrustProxyHeaders bool `mapstructure:"trust_proxy_headers"`
}

type GRPCConfig struct {
	// Empty disables the gRPC listener
	Addr                 string `mapstructure:"addr"`
	TrustForwardedUserID bool   `mapstructure:"trust_forwarded_user_id"`
}

type OAuthConfig struct {
	Google OAuthClient `mapstructure:"google"`
	GitHub OAuthClient `mapstructure:"github"`
}

// OAuthClient values left empty fall back to the OAUTH2_<PROVIDER>_ variables.
type OAuthClient struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	CallbackURL  string `mapstructure:"callback_url"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("store.backend", BackendFS)
	v.SetDefault("store.connect_timeout", 30*time.Second)
	v.SetDefault("store.fs.path", "./data")
	v.SetDefault("store.gorm.dsn", "")
	v.SetDefault("store.postgres.url", "")
	v.SetDefault("store.redis.addrs", []string{"localhost:6379"})
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.master_name", "")
	v.SetDefault("store.redis.max_retries", 3)
	v.SetDefault("store.redis.timeout", 5*time.Second)
	v.SetDefault("store.redis.prefix", redisstore.DefaultPrefix)
	v.SetDefault("store.gae.project_id", "")
	v.SetDefault("store.gae.namespace", "")

	v.SetDefault("digest.realm", "authrepo")
	v.SetDefault("digest.private_key", "")
	v.SetDefault("digest.nonce_timeout_seconds", 300)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.session_lifetime", 24*time.Hour)
	v.SetDefault("http.secure_cookies", false)
	v.SetDefault("http.metrics_path", "/metrics")
	v.SetDefault("http.trust_proxy_headers", false)

	v.SetDefault("grpc.addr", "")
	v.SetDefault("grpc.trust_forwarded_user_id", false)

	for _, provider := range []string{"google", "github"} {
		v.SetDefault("oauth."+provider+".client_id", "")
		v.SetDefault("oauth."+provider+".client_secret", "")
		v.SetDefault("oauth."+provider+".callback_url", "")
	}
}

// flagKeys maps command line flags onto config keys
var flagKeys = map[string]string{
	"backend":   "store.backend",
	"fs-path":   "store.fs.path",
	"dsn":       "store.gorm.dsn",
	"pg-url":    "store.postgres.url",
	"redis":     "store.redis.addrs",
	"project":   "store.gae.project_id",
	"addr":      "http.addr",
	"grpc-addr": "grpc.addr",
	"log-level": "log.level",
}

// Load reads path (optional), the environment and any of flags that were
// set, in increasing order of precedence.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if flag := flags.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, fmt.Errorf("binding flag %q: %w", name, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the selected backend has what it needs.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case BackendFS:
		if c.Store.FS.Path == "" {
			errs = append(errs, errors.New("store.fs.path is required"))
		}
	case BackendGorm:
		if c.Store.Gorm.DSN == "" {
			errs = append(errs, errors.New("store.gorm.dsn is required"))
		}
	case BackendPostgres:
		if c.Store.Postgres.URL == "" {
			errs = append(errs, errors.New("store.postgres.url is required"))
		}
	case BackendRedis:
		if len(c.Store.Redis.Addrs) == 0 {
			errs = append(errs, errors.New("store.redis.addrs is required"))
		}
	case BackendDatastore:
		if c.Store.Datastore.ProjectID == "" {
			errs = append(errs, errors.New("store.gae.project_id is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}
	if c.Digest.NonceTimeoutSeconds < 0 {
		errs = append(errs, errors.New("digest.nonce_timeout_seconds must not be negative"))
	}
	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

func (c LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return level, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// NewLogger builds the slog logger described by c.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := c.level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
