// Package config loads the server configuration from defaults, an optional
// YAML file, environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the resolved server configuration.
type Config struct {
	Listen        string              `mapstructure:"listen"`
	Trello        TrelloConfig        `mapstructure:"trello"`
	Callback      CallbackConfig      `mapstructure:"callback"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Generator     GeneratorConfig     `mapstructure:"generator"`
	Reconcile     ReconcileConfig     `mapstructure:"reconcile"`
	Frontend      FrontendConfig      `mapstructure:"frontend"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

type TrelloConfig struct {
	APIKey  string        `mapstructure:"apiKey"`
	BaseURL string        `mapstructure:"baseURL"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type CallbackConfig struct {
	BaseURL string `mapstructure:"baseURL"`
	URL     string `mapstructure:"url"`
}

type DatabaseConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

// RedisConfig configures the cross-replica generation lock. An empty Addr
// disables it.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type GeneratorConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ReconcileConfig struct {
	// Interval between periodic sweeps. Zero disables the loop.
	Interval          time.Duration `mapstructure:"interval"`
	RegistrationDelay time.Duration `mapstructure:"registrationDelay"`
	StartupSweep      bool          `mapstructure:"startupSweep"`
}

type FrontendConfig struct {
	Origins []string `mapstructure:"origins"`
}

type NotificationsConfig struct {
	RetentionDays int `mapstructure:"retentionDays"`
	Limit         int `mapstructure:"limit"`
}

// DefaultFrontendOrigins are the local development origins of the web UI.
// Configured origins are added to them.
var DefaultFrontendOrigins = []string{
	"http://localhost:5173",
	"http://localhost:5174",
	"http://127.0.0.1:5173",
	"http://127.0.0.1:5174",
}

// envBindings maps config keys to the environment variables the deployment
// manifests already use.
var envBindings = map[string]string{
	"listen":                      "PORT",
	"trello.apiKey":               "TRELLO_API_KEY",
	"trello.baseURL":              "TRELLO_BASE_URL",
	"trello.timeout":              "TRELLO_TIMEOUT",
	"callback.baseURL":            "BASE_URL",
	"callback.url":                "TRELLO_CALLBACK_URL",
	"database.type":               "DATABASE_TYPE",
	"database.dsn":                "DATABASE_DSN",
	"redis.addr":                  "REDIS_ADDR",
	"redis.password":              "REDIS_PASSWORD",
	"redis.db":                    "REDIS_DB",
	"generator.url":               "GENERATOR_URL",
	"generator.timeout":           "GENERATOR_TIMEOUT",
	"reconcile.interval":          "RECONCILE_INTERVAL",
	"reconcile.registrationDelay": "RECONCILE_REGISTRATION_DELAY",
	"reconcile.startupSweep":      "RECONCILE_STARTUP_SWEEP",
	"frontend.origins":            "FRONTEND_URL",
	"notifications.retentionDays": "NOTIFICATION_RETENTION_DAYS",
	"notifications.limit":         "NOTIFICATION_LIMIT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("trello.baseURL", "https://api.trello.com/1")
	v.SetDefault("trello.timeout", 20*time.Second)
	v.SetDefault("callback.baseURL", "http://localhost:8080")
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "file:boarddocs.db")
	v.SetDefault("redis.db", 0)
	v.SetDefault("generator.timeout", 5*time.Minute)
	v.SetDefault("reconcile.interval", time.Duration(0))
	v.SetDefault("reconcile.registrationDelay", 500*time.Millisecond)
	v.SetDefault("reconcile.startupSweep", true)
	v.SetDefault("notifications.retentionDays", 30)
	v.SetDefault("notifications.limit", 100)
}

// RegisterFlags adds the flags that override file and environment values.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to an optional YAML config file")
	fs.String("listen", ":8080", "Address to listen on")
	fs.String("db-type", "sqlite", "Database type (postgres, mysql or sqlite)")
	fs.String("db-dsn", "", "Database connection string")
}

// Loader resolves the configuration and can follow later edits of the config
// file.
type Loader struct {
	v *viper.Viper
}

// NewLoader layers defaults, environment, the optional --config file and set
// flags. fs may be nil.
func NewLoader(fs *pflag.FlagSet) (*Loader, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if path, _ := fs.GetString("config"); path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config file %s: %w", path, err)
			}
		}
		bindFlag(v, fs, "listen", "listen")
		bindFlag(v, fs, "database.type", "db-type")
		bindFlag(v, fs, "database.dsn", "db-dsn")
	}
	return &Loader{v: v}, nil
}

// Config decodes, normalizes and validates the current values.
func (l *Loader) Config() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch re-reads the config file whenever it is written and passes each
// valid result to fn. Invalid edits are logged and skipped. It reports false
// when no config file is in use.
func (l *Loader) Watch(fn func(*Config)) bool {
	if l.v.ConfigFileUsed() == "" {
		return false
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.Config()
		if err != nil {
			slog.Warn("ignoring invalid config change", "file", e.Name, "error", err)
			return
		}
		fn(cfg)
	})
	l.v.WatchConfig()
	return true
}

// Load resolves the configuration once. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	l, err := NewLoader(fs)
	if err != nil {
		return nil, err
	}
	return l.Config()
}

// bindFlag binds a flag only when the user set it, so unset flag defaults do
// not shadow environment values.
func bindFlag(v *viper.Viper, fs *pflag.FlagSet, key, name string) {
	f := fs.Lookup(name)
	if f == nil || !f.Changed {
		return
	}
	_ = v.BindPFlag(key, f)
}

func (c *Config) normalize() {
	// PORT is a bare number in most hosting environments.
	if c.Listen != "" && !strings.Contains(c.Listen, ":") {
		c.Listen = ":" + c.Listen
	}
	if c.Callback.URL == "" {
		c.Callback.URL = strings.TrimRight(c.Callback.BaseURL, "/") + "/pm"
	}
	origins := append([]string(nil), DefaultFrontendOrigins...)
	seen := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		seen[o] = struct{}{}
	}
	for _, raw := range c.Frontend.Origins {
		for _, o := range splitList(raw) {
			if _, dup := seen[o]; dup {
				continue
			}
			seen[o] = struct{}{}
			origins = append(origins, o)
		}
	}
	c.Frontend.Origins = origins
	if c.Notifications.Limit <= 0 || c.Notifications.Limit > 100 {
		c.Notifications.Limit = 100
	}
	c.Database.Type = strings.ToLower(c.Database.Type)
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported database type %q (expected postgres, mysql or sqlite)", c.Database.Type)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required (use --db-dsn or DATABASE_DSN)")
	}
	if c.Trello.Timeout <= 0 {
		return fmt.Errorf("trello timeout must be positive")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
