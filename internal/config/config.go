// Package config loads the callflow service configuration.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/watchdog"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Environment overrides.
const (
	EnvListen        = "CALLFLOW_LISTEN"
	EnvLogLevel      = "CALLFLOW_LOG_LEVEL"
	EnvRedisAddr     = "CALLFLOW_REDIS_ADDR"
	EnvRedisPassword = "CALLFLOW_REDIS_PASSWORD"
	EnvWebhookURL    = "CALLFLOW_WEBHOOK_URL"
	EnvEncryptionKey = "CALLFLOW_ENCRYPTION_KEY"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the service configuration.
type Config struct {
	Listen string `yaml:"listen"`
	// Script is an optional script file (see pkg/script).
	Script   string         `yaml:"script"`
	Log      LogConfig      `yaml:"log"`
	Store    StoreConfig    `yaml:"store"`
	Watchdog WatchdogConfig `yaml:"watchdog"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Privacy  PrivacyConfig  `yaml:"privacy"`
}

type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

type StoreConfig struct {
	Backend string        `yaml:"backend"` // memory, file, redis
	Path    string        `yaml:"path"`
	LockTTL time.Duration `yaml:"lock_ttl"`
	Redis   RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

type WatchdogConfig struct {
	Interval   time.Duration `yaml:"interval"`
	Threshold  time.Duration `yaml:"threshold"`
	Cooldown   time.Duration `yaml:"cooldown"`
	NoCooldown bool          `yaml:"no_cooldown"`
	Prompt     string        `yaml:"prompt"`
}

type WebhookConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// PrivacyConfig controls what reaches the state store.
type PrivacyConfig struct {
	MaskPII       bool     `yaml:"mask_pii"`
	KeyPatterns   []string `yaml:"key_patterns"`
	ValuePatterns []string `yaml:"value_patterns"`
	// EncryptionKey is a base64 AES-256 key. Empty disables encryption.
	EncryptionKey string `yaml:"encryption_key"`
	// FallbackKeys are older keys still accepted for reading.
	FallbackKeys []string `yaml:"fallback_keys"`
}

// Default returns the built-in configuration.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads the YAML file at path over the defaults. An empty path or a
// missing file yields the defaults. Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}
	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendMemory
	}
	if c.Store.Backend == BackendFile && c.Store.Path == "" {
		c.Store.Path = "sessions"
	}
	if c.Store.LockTTL <= 0 {
		c.Store.LockTTL = 30 * time.Second
	}
	if c.Store.Redis.Addr == "" {
		c.Store.Redis.Addr = "localhost:6379"
	}
	if c.Store.Redis.Prefix == "" {
		c.Store.Redis.Prefix = "callflow:"
	}
	if c.Store.Redis.TTL <= 0 {
		c.Store.Redis.TTL = 24 * time.Hour
	}

	def := watchdog.DefaultConfig()
	if c.Watchdog.Interval <= 0 {
		c.Watchdog.Interval = def.Interval
	}
	if c.Watchdog.Threshold <= 0 {
		c.Watchdog.Threshold = def.Threshold
	}
	if c.Watchdog.Cooldown <= 0 && !c.Watchdog.NoCooldown {
		c.Watchdog.Cooldown = def.Cooldown
	}
	if c.Watchdog.Prompt == "" {
		c.Watchdog.Prompt = def.Prompt
	}
	if c.Webhook.Timeout <= 0 {
		c.Webhook.Timeout = 15 * time.Second
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Store.Redis.Addr = v
	}
	if v := os.Getenv(EnvRedisPassword); v != "" {
		c.Store.Redis.Password = v
	}
	if v := os.Getenv(EnvWebhookURL); v != "" {
		c.Webhook.URL = v
	}
	if v := os.Getenv(EnvEncryptionKey); v != "" {
		c.Privacy.EncryptionKey = v
	}
}

// Validate checks backend names, log level, encryption keys and watchdog timings.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendFile, BackendRedis:
	default:
		return fmt.Errorf("%w: unknown store backend %q (valid: memory, file, redis)", ErrInvalidConfig, c.Store.Backend)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Webhook.URL != "" && !strings.HasPrefix(c.Webhook.URL, "http://") && !strings.HasPrefix(c.Webhook.URL, "https://") {
		return fmt.Errorf("%w: webhook url must be http or https", ErrInvalidConfig)
	}
	if _, _, err := c.EncryptionKeys(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.WatchdogTimings().Validate(); err != nil {
		return fmt.Errorf("%w: watchdog: %w", ErrInvalidConfig, err)
	}
	return nil
}

// EncryptionKeys decodes the active and fallback keys. A nil active key means
// encryption is off.
func (c *Config) EncryptionKeys() ([]byte, [][]byte, error) {
	if c.Privacy.EncryptionKey == "" {
		if len(c.Privacy.FallbackKeys) > 0 {
			return nil, nil, errors.New("fallback keys given without an encryption key")
		}
		return nil, nil, nil
	}
	active, err := decodeKey(c.Privacy.EncryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("encryption key: %w", err)
	}
	fallback := make([][]byte, 0, len(c.Privacy.FallbackKeys))
	for i, k := range c.Privacy.FallbackKeys {
		b, err := decodeKey(k)
		if err != nil {
			return nil, nil, fmt.Errorf("fallback key %d: %w", i, err)
		}
		fallback = append(fallback, b)
	}
	return active, fallback, nil
}

func decodeKey(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("not base64: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("want 32 bytes, got %d", len(b))
	}
	return b, nil
}

// WatchdogTimings returns the idle watchdog settings.
func (c *Config) WatchdogTimings() watchdog.Config {
	return watchdog.Config{
		Interval:   c.Watchdog.Interval,
		Threshold:  c.Watchdog.Threshold,
		Cooldown:   c.Watchdog.Cooldown,
		NoCooldown: c.Watchdog.NoCooldown,
		Prompt:     c.Watchdog.Prompt,
	}
}
