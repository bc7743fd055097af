// Package config loads client configuration for command-line tools.
//
// Configuration is layered:
//
//  1. built-in defaults
//  2. a YAML file (SEER_CONFIG, the path passed to Load, or
//     ~/.seerpy/config.yaml when it exists)
//  3. SEER_* environment variables
//
// Library users can skip this package and fill client.Config directly.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/seermedical/seer-client-go/pkg/auth"
	"github.com/seermedical/seer-client-go/pkg/client"
	"github.com/seermedical/seer-client-go/pkg/logging"
	"github.com/seermedical/seer-client-go/pkg/pagination"
	"github.com/seermedical/seer-client-go/pkg/ratelimit"
	"github.com/seermedical/seer-client-go/pkg/retry"
)

// FileName is the config file looked up in the per-user directory.
const FileName = "config.yaml"

// Config is the file and environment view of a client configuration.
type Config struct {
	// APIURL overrides the base URL implied by the credentials.
	APIURL string `yaml:"api_url"`

	// Credentials are passed to auth.Resolve.
	Credentials auth.Options `yaml:"credentials"`

	// Threads is the number of concurrent page requests (0: platform default).
	Threads int `yaml:"threads"`

	// ParallelismReliable is false on platforms where concurrent requests
	// have proved unreliable; the default thread count drops to 1 there.
	ParallelismReliable bool `yaml:"parallelism_reliable"`

	// FailOnError makes paged fetches fail when any page failed.
	FailOnError bool `yaml:"fail_on_error"`

	// MaxInvocations bounds re-authentication of a single query.
	MaxInvocations int `yaml:"max_invocations"`

	Retry     retry.Config     `yaml:"retry"`
	RateLimit ratelimit.Config `yaml:"rate_limit"`
	Redis     RedisConfig      `yaml:"redis"`
	Log       logging.Config   `yaml:"log"`

	// MetricsAddr, when set, serves Prometheus metrics (e.g. ":9090").
	MetricsAddr string `yaml:"metrics_addr"`
}

// RedisConfig enables the chunk cache and the shared query budget.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		ParallelismReliable: client.PlatformParallelismReliable,
		MaxInvocations:      client.DefaultMaxInvocations,
		Retry:               retry.DefaultConfig(),
		RateLimit:           ratelimit.DefaultConfig(),
		Log:                 logging.DefaultConfig(),
	}
}

// DefaultPath returns ~/.seerpy/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, auth.DefaultDirName, FileName)
}

// Load builds a configuration from defaults, the file at path and the
// environment. An empty path uses SEER_CONFIG, then DefaultPath; a missing
// default file is not an error, a missing explicit file is.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := true
	if path == "" {
		path = os.Getenv("SEER_CONFIG")
	}
	if path == "" {
		path = DefaultPath()
		explicit = false
	}

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// loadFile merges the YAML file at path into c.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides fields from SEER_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"SEER_API_URL":      &c.APIURL,
		"SEER_EMAIL":        &c.Credentials.Email,
		"SEER_PASSWORD":     &c.Credentials.Password,
		"SEER_API_KEY_ID":   &c.Credentials.APIKeyID,
		"SEER_API_KEY_PATH": &c.Credentials.APIKeyPath,
		"SEER_REGION":       &c.Credentials.Region,
		"SEER_REDIS_ADDR":   &c.Redis.Addr,
		"SEER_METRICS_ADDR": &c.MetricsAddr,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("SEER_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = logging.LogLevel(strings.ToLower(v))
	}

	bools := map[string]*bool{
		"SEER_DEV":        &c.Credentials.Dev,
		"SEER_LOG_PRETTY": &c.Log.Pretty,
	}
	for key, dst := range bools {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
	}

	if v, ok := lookup("SEER_THREADS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SEER_THREADS: %w", err)
		}
		c.Threads = n
	}
	return nil
}

// Validate rejects values no client could run with.
func (c *Config) Validate() error {
	if c.Threads < 0 {
		return fmt.Errorf("threads must not be negative, got %d", c.Threads)
	}
	if c.RateLimit.Limit < 0 || c.RateLimit.Window < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("redis db must not be negative, got %d", c.Redis.DB)
	}
	return nil
}

// EffectiveThreads returns Threads, or the platform default when unset.
func (c *Config) EffectiveThreads() int {
	if c.Threads > 0 {
		return c.Threads
	}
	return pagination.DefaultThreads(c.ParallelismReliable)
}

// RedisClient returns a client for the configured Redis, or nil when no
// address is set.
func (c *Config) RedisClient() *redis.Client {
	if c.Redis.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	})
}

// ClientConfig converts c into a client configuration. rdb may be nil.
func (c *Config) ClientConfig(rdb *redis.Client) client.Config {
	cfg := client.DefaultConfig(c.Credentials)
	cfg.APIURL = c.APIURL
	cfg.Threads = c.EffectiveThreads()
	cfg.ParallelismReliable = c.ParallelismReliable
	cfg.Retry = c.Retry
	cfg.RateLimit = c.RateLimit
	cfg.FailOnError = c.FailOnError
	if c.MaxInvocations > 0 {
		cfg.MaxInvocations = c.MaxInvocations
	}
	cfg.Redis = rdb
	return cfg
}
