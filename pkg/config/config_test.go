package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seermedical/seer-client-go/pkg/client"
	"github.com/seermedical/seer-client-go/pkg/logging"
	"github.com/seermedical/seer-client-go/pkg/ratelimit"
)

var seerEnv = []string{
	"SEER_CONFIG", "SEER_API_URL", "SEER_EMAIL", "SEER_PASSWORD", "SEER_API_KEY_ID",
	"SEER_API_KEY_PATH", "SEER_REGION", "SEER_DEV", "SEER_THREADS", "SEER_REDIS_ADDR",
	"SEER_METRICS_ADDR", "SEER_LOG_LEVEL", "SEER_LOG_PRETTY",
}

// isolate points HOME at an empty directory and clears SEER_* variables.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	for _, key := range seerEnv {
		t.Setenv(key, "")
	}
	return home
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, client.DefaultMaxInvocations, cfg.MaxInvocations)
	assert.Equal(t, ratelimit.DefaultConfig(), cfg.RateLimit)
	assert.Equal(t, logging.LevelInfo, cfg.Log.Level)
	assert.Zero(t, cfg.Threads)
	assert.Equal(t, client.PlatformParallelismReliable, cfg.ParallelismReliable)
}

func TestLoad_NoFile(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().RateLimit, cfg.RateLimit)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_DefaultPath(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".seerpy")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	writeConfig(t, dir, "threads: 3\n")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Threads)
}

func TestLoad_File(t *testing.T) {
	isolate(t)
	path := writeConfig(t, t.TempDir(), `
api_url: https://example.test/api
credentials:
  email: user@example.com
  password: secret
threads: 8
fail_on_error: true
retry:
  max_attempts: 7
  initial_backoff: 250ms
rate_limit:
  limit: 100
  window: 60s
redis:
  addr: localhost:6379
  db: 2
log:
  level: debug
  pretty: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://example.test/api", cfg.APIURL)
	assert.Equal(t, "user@example.com", cfg.Credentials.Email)
	assert.Equal(t, "secret", cfg.Credentials.Password)
	assert.Equal(t, 8, cfg.Threads)
	assert.True(t, cfg.FailOnError)
	assert.Equal(t, 7, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialBackoff)
	// Unset fields keep their defaults.
	assert.Equal(t, Default().Retry.MaxBackoff, cfg.Retry.MaxBackoff)
	assert.Equal(t, ratelimit.Config{Limit: 100, Window: time.Minute}, cfg.RateLimit)
	assert.Equal(t, RedisConfig{Addr: "localhost:6379", DB: 2}, cfg.Redis)
	assert.Equal(t, logging.LevelDebug, cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
}

func TestLoad_ConfigEnvVariable(t *testing.T) {
	isolate(t)
	path := writeConfig(t, t.TempDir(), "threads: 4\n")
	t.Setenv("SEER_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Threads)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, t.TempDir(), `
credentials:
  email: file@example.com
threads: 8
`)
	t.Setenv("SEER_EMAIL", "env@example.com")
	t.Setenv("SEER_PASSWORD", "env-secret")
	t.Setenv("SEER_THREADS", "2")
	t.Setenv("SEER_DEV", "true")
	t.Setenv("SEER_REDIS_ADDR", "redis:6379")
	t.Setenv("SEER_LOG_LEVEL", "WARN")
	t.Setenv("SEER_LOG_PRETTY", "1")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env@example.com", cfg.Credentials.Email)
	assert.Equal(t, "env-secret", cfg.Credentials.Password)
	assert.Equal(t, 2, cfg.Threads)
	assert.True(t, cfg.Credentials.Dev)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, logging.LevelWarn, cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
}

func TestLoad_InvalidEnv(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"threads not a number", "SEER_THREADS", "many"},
		{"dev not a bool", "SEER_DEV", "sometimes"},
		{"negative threads", "SEER_THREADS", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	isolate(t)
	path := writeConfig(t, t.TempDir(), "threads: [1, 2\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEffectiveThreads(t *testing.T) {
	assert.Equal(t, 5, (&Config{ParallelismReliable: true}).EffectiveThreads())
	assert.Equal(t, 1, (&Config{ParallelismReliable: false}).EffectiveThreads())
	assert.Equal(t, 12, (&Config{Threads: 12}).EffectiveThreads())
}

func TestRedisClient(t *testing.T) {
	assert.Nil(t, (&Config{}).RedisClient())

	rdb := (&Config{Redis: RedisConfig{Addr: "localhost:6379", DB: 3}}).RedisClient()
	require.NotNil(t, rdb)
	defer rdb.Close()
	assert.Equal(t, "localhost:6379", rdb.Options().Addr)
	assert.Equal(t, 3, rdb.Options().DB)
}

func TestClientConfig(t *testing.T) {
	cfg := Default()
	cfg.APIURL = "https://example.test/api"
	cfg.Credentials.Email = "user@example.com"
	cfg.Threads = 9
	cfg.FailOnError = true
	cfg.MaxInvocations = 0

	cc := cfg.ClientConfig(nil)

	assert.Equal(t, "https://example.test/api", cc.APIURL)
	assert.Equal(t, "user@example.com", cc.Credentials.Email)
	assert.Equal(t, 9, cc.Threads)
	assert.True(t, cc.FailOnError)
	assert.Equal(t, client.DefaultMaxInvocations, cc.MaxInvocations)
	assert.Equal(t, cfg.RateLimit, cc.RateLimit)
	assert.Nil(t, cc.Redis)
	assert.Equal(t, cfg.ParallelismReliable, cc.ParallelismReliable)
}

func TestClientConfig_UnreliablePlatform(t *testing.T) {
	cfg := Default()
	cfg.ParallelismReliable = false

	cc := cfg.ClientConfig(nil)

	assert.Equal(t, 1, cc.Threads)
	assert.False(t, cc.ParallelismReliable)
}
