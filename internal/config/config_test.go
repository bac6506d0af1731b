package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/redrec/internal/record"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "redrec.db", cfg.Store.Path)
	assert.Equal(t, 5*time.Second, cfg.Store.DialTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "await", cfg.WriteMode)
	assert.NotNil(t, cfg.Collections)
	require.NoError(t, cfg.Validate())
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "redrec.yaml", `
store:
  driver: redis
  addr: cache:6380
  db: 2
  read_timeout: 250ms
log:
  level: debug
  format: json
write_mode: async
collections:
  users:
    lookup_keys: [email]
  sessions:
    primary_keys: [token]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DriverRedis, cfg.Store.Driver)
	assert.Equal(t, "cache:6380", cfg.Store.Addr)
	assert.Equal(t, 2, cfg.Store.DB)
	assert.Equal(t, 250*time.Millisecond, cfg.Store.ReadTimeout)
	assert.Equal(t, "redrec.db", cfg.Store.Path, "unset fields keep defaults")

	mode, err := cfg.Mode()
	require.NoError(t, err)
	assert.Equal(t, record.WriteAsync, mode)

	assert.Equal(t, []string{"sessions", "users"}, cfg.CollectionNames())
	assert.Equal(t, []string{"email"}, cfg.Collections["users"].LookupKeys)
	assert.Equal(t, []string{"token"}, cfg.Collections["sessions"].PrimaryKeys)
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "redrec.yaml", "")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
}

func TestLoad_UnknownField(t *testing.T) {
	path := writeFile(t, t.TempDir(), "redrec.yaml", "store:\n  drvier: redis\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "drvier")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"driver", func(c *Config) { c.Store.Driver = "etcd" }, "store.driver"},
		{"db", func(c *Config) { c.Store.DB = -1 }, "store.db"},
		{"level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"write mode", func(c *Config) { c.WriteMode = "eventually" }, "write_mode"},
		{"blank collection", func(c *Config) { c.Collections[" "] = CollectionConfig{} }, "blank collection"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"REDREC_STORE_DRIVER":   "redis",
		"REDREC_STORE_ADDR":     "10.0.0.5:6379",
		"REDREC_STORE_PASSWORD": "s3cret",
		"REDREC_STORE_DB":       "4",
		"REDREC_LOG_LEVEL":      "warn",
		"REDREC_WRITE_MODE":     "async",
		"REDREC_STORE_PATH":     "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, DriverRedis, cfg.Store.Driver)
	assert.Equal(t, "10.0.0.5:6379", cfg.Store.Addr)
	assert.Equal(t, "s3cret", cfg.Store.Password)
	assert.Equal(t, 4, cfg.Store.DB)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "async", cfg.WriteMode)
	assert.Equal(t, "redrec.db", cfg.Store.Path, "empty values do not override")

	env["REDREC_STORE_DB"] = "four"
	assert.Error(t, cfg.ApplyEnv(lookup))
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, ".env", "REDREC_TEST_ONLY_VAR=from-file\n")
	t.Setenv("REDREC_TEST_ONLY_VAR", "")
	require.NoError(t, os.Unsetenv("REDREC_TEST_ONLY_VAR"))

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv("REDREC_TEST_ONLY_VAR"))

	assert.NoError(t, LoadEnvFile(filepath.Join(dir, "missing.env")))
}

func TestLoadEnvFile_DoesNotOverride(t *testing.T) {
	path := writeFile(t, t.TempDir(), ".env", "REDREC_TEST_ONLY_VAR=from-file\n")
	t.Setenv("REDREC_TEST_ONLY_VAR", "from-env")

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-env", os.Getenv("REDREC_TEST_ONLY_VAR"))
}

func TestLogLevel(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "DEBUG"
	lvl, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", lvl.String())
}
