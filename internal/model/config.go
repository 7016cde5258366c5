package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// PolicyConfig holds the threshold policy settings.
type PolicyConfig struct {
	// PreStartLead is how long before the scheduled start the PRE_START
	// warning becomes due.
	PreStartLead time.Duration `mapstructure:"pre_start_lead" yaml:"pre_start_lead"`

	// EscalationDelay is the buffer after an SLA breach before the task
	// is escalated and a justification is demanded.
	EscalationDelay time.Duration `mapstructure:"escalation_delay" yaml:"escalation_delay"`

	// MinJustificationLength is the minimum number of characters a
	// justification must contain after trimming.
	MinJustificationLength int `mapstructure:"min_justification_length" yaml:"min_justification_length"`

	// DefaultSLAMinutes applies to tasks registered without an SLA.
	DefaultSLAMinutes int `mapstructure:"default_sla_minutes" yaml:"default_sla_minutes"`
}

// LoopConfig holds evaluation loop settings.
type LoopConfig struct {
	Interval    time.Duration `mapstructure:"interval" yaml:"interval"`
	SyncTimeout time.Duration `mapstructure:"sync_timeout" yaml:"sync_timeout"`
	TaskTimeout time.Duration `mapstructure:"task_timeout" yaml:"task_timeout"`
}

// StoreConfig selects and locates the backing relational store.
type StoreConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver" yaml:"driver"`

	// DSN is a file path for sqlite or a connection URL for postgres.
	DSN string `mapstructure:"dsn" yaml:"dsn"`

	// PasswordKey names the keyring item holding the postgres password.
	PasswordKey string `mapstructure:"password_key" yaml:"password_key"`

	MaxOpenConns int `mapstructure:"max_open_conns" yaml:"max_open_conns"`
}

// BreakerConfig tunes the circuit breaker guarding store work.
type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures" yaml:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout" yaml:"open_timeout"`
}

// RedisConfig locates the optional event fan-out channel.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Channel  string `mapstructure:"channel" yaml:"channel"`
}

// APIConfig holds HTTP adapter settings.
type APIConfig struct {
	Addr      string  `mapstructure:"addr" yaml:"addr"`
	SyncRPS   float64 `mapstructure:"sync_rps" yaml:"sync_rps"`
	SyncBurst int     `mapstructure:"sync_burst" yaml:"sync_burst"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	// Timezone is the canonical zone scheduled starts are interpreted in.
	Timezone string        `mapstructure:"timezone" yaml:"timezone"`
	Policy   PolicyConfig  `mapstructure:"policy" yaml:"policy"`
	Loop     LoopConfig    `mapstructure:"loop" yaml:"loop"`
	Store    StoreConfig   `mapstructure:"store" yaml:"store"`
	Breaker  BreakerConfig `mapstructure:"breaker" yaml:"breaker"`
	Redis    RedisConfig   `mapstructure:"redis" yaml:"redis"`
	API      APIConfig     `mapstructure:"api" yaml:"api"`
	Log      LogConfig     `mapstructure:"log" yaml:"log"`
}

// Location resolves the configured canonical timezone.
func (c *AppConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate checks the configuration for values the engine cannot run with.
func (c *AppConfig) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Policy.PreStartLead < 0 {
		return fmt.Errorf("policy.pre_start_lead must not be negative")
	}
	if c.Policy.EscalationDelay < 0 {
		return fmt.Errorf("policy.escalation_delay must not be negative")
	}
	if c.Policy.MinJustificationLength < 1 {
		return fmt.Errorf("policy.min_justification_length must be at least 1")
	}
	if c.Policy.DefaultSLAMinutes < 1 {
		return fmt.Errorf("policy.default_sla_minutes must be at least 1")
	}
	if c.Loop.Interval <= 0 {
		return fmt.Errorf("loop.interval must be positive")
	}
	if c.Loop.SyncTimeout <= 0 {
		return fmt.Errorf("loop.sync_timeout must be positive")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("store.driver %q is not supported", c.Store.Driver)
	}
	return nil
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/slawatch/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "slawatch", "config.yaml")
}

// DefaultDBPath returns the default sqlite database location.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "slawatch.db")
	}
	return filepath.Join(home, ".local", "share", "slawatch", "slawatch.db")
}

// DefaultAppConfig returns a sensible default configuration.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Timezone: "Asia/Kolkata",
		Policy: PolicyConfig{
			PreStartLead:           15 * time.Minute,
			EscalationDelay:        15 * time.Minute,
			MinJustificationLength: 10,
			DefaultSLAMinutes:      30,
		},
		Loop: LoopConfig{
			Interval:    30 * time.Second,
			SyncTimeout: 10 * time.Second,
			TaskTimeout: 5 * time.Second,
		},
		Store: StoreConfig{
			Driver:       "sqlite",
			DSN:          DefaultDBPath(),
			MaxOpenConns: 10,
		},
		Breaker: BreakerConfig{
			MaxFailures: 3,
			OpenTimeout: 30 * time.Second,
		},
		Redis: RedisConfig{
			Channel: "slawatch:notifications",
		},
		API: APIConfig{
			Addr:      ":8085",
			SyncRPS:   2,
			SyncBurst: 4,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// setDefaults mirrors DefaultAppConfig into v so missing keys resolve and
// environment overrides are recognised.
func setDefaults(v *viper.Viper, d *AppConfig) {
	v.SetDefault("timezone", d.Timezone)
	v.SetDefault("policy.pre_start_lead", d.Policy.PreStartLead)
	v.SetDefault("policy.escalation_delay", d.Policy.EscalationDelay)
	v.SetDefault("policy.min_justification_length", d.Policy.MinJustificationLength)
	v.SetDefault("policy.default_sla_minutes", d.Policy.DefaultSLAMinutes)
	v.SetDefault("loop.interval", d.Loop.Interval)
	v.SetDefault("loop.sync_timeout", d.Loop.SyncTimeout)
	v.SetDefault("loop.task_timeout", d.Loop.TaskTimeout)
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("store.password_key", d.Store.PasswordKey)
	v.SetDefault("store.max_open_conns", d.Store.MaxOpenConns)
	v.SetDefault("breaker.max_failures", d.Breaker.MaxFailures)
	v.SetDefault("breaker.open_timeout", d.Breaker.OpenTimeout)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.channel", d.Redis.Channel)
	v.SetDefault("api.addr", d.API.Addr)
	v.SetDefault("api.sync_rps", d.API.SyncRPS)
	v.SetDefault("api.sync_burst", d.API.SyncBurst)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
}

// LoadConfig reads configuration from the given YAML file path using Viper,
// applying SLAWATCH_* environment overrides. If the file does not exist,
// defaults (plus environment) are used.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("slawatch")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultAppConfig())

	if err := v.ReadInConfig(); err != nil {
		_, missing := err.(*os.PathError)
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			missing = true
		}
		if !missing {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := DefaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("timezone", cfg.Timezone)
	v.Set("policy", cfg.Policy)
	v.Set("loop", cfg.Loop)
	v.Set("store", cfg.Store)
	v.Set("breaker", cfg.Breaker)
	v.Set("redis", cfg.Redis)
	v.Set("api", cfg.API)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
