package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0644))
	return p
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, "data/raw", cfg.Storage.DataPath)
	assert.Equal(t, "yahoo", cfg.DataSource.Provider)
	assert.Equal(t, 30, cfg.DataSource.TimeoutSec)
	assert.Equal(t, 3, cfg.DataSource.MaxRetries)
	assert.Equal(t, 365, cfg.Warmup.LookbackDays)
	assert.False(t, cfg.Cache.StrictCoverage)
	assert.False(t, cfg.TelegramEnabled())
}

func TestLoad_FileValues(t *testing.T) {
	p := writeConfig(t, `
storage:
  backend: file
  data_path: /var/lib/datahub
data_source:
  provider: rest
  base_url: https://bars.example.com
  api_key: k
synthetic:
  seed: 7
cache:
  strict_coverage: true
warmup:
  symbols: [QQQ, SPY]
  concurrency: 2
logging:
  level: debug
  format: console
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/var/lib/datahub", cfg.Storage.DataPath)
	assert.Equal(t, "rest", cfg.DataSource.Provider)
	assert.Equal(t, uint64(7), cfg.Synthetic.Seed)
	assert.True(t, cfg.Cache.StrictCoverage)
	assert.Equal(t, []string{"QQQ", "SPY"}, cfg.Warmup.Symbols)
	assert.Equal(t, 2, cfg.Warmup.Concurrency)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATA_PATH", "/tmp/override")
	t.Setenv("DATA_PROVIDER", "none")
	t.Setenv("WARMUP_SYMBOLS", " iwm, ,dia ")
	t.Setenv("SYNTHETIC_SEED", "123")
	t.Setenv("LOG_LEVEL", "WARN")

	cfg, err := Load(writeConfig(t, "storage:\n  data_path: ignored\n"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/tmp/override", cfg.Storage.DataPath)
	assert.Equal(t, "none", cfg.DataSource.Provider)
	assert.Equal(t, []string{"iwm", "dia"}, cfg.Warmup.Symbols)
	assert.Equal(t, uint64(123), cfg.Synthetic.Seed)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_ZeroRetriesIsKept(t *testing.T) {
	cfg, err := Load(writeConfig(t, "data_source:\n  max_retries: 0\n"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0, cfg.DataSource.MaxRetries)

	cfg, err = Load(writeConfig(t, "data_source:\n  timeout_sec: 5\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.DataSource.MaxRetries)
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "storage: [unclosed"))
	require.ErrorContains(t, err, "parse config")
}

func TestValidate_Errors(t *testing.T) {
	cases := map[string]string{
		"unknown backend":   "storage:\n  backend: ftp\n",
		"unknown provider":  "data_source:\n  provider: bloomberg\n",
		"s3 without bucket": "storage:\n  backend: s3\n  s3:\n    endpoint: localhost:9000\n",
		"postgres no dsn":   "storage:\n  backend: postgres\n",
		"polygon no key":    "data_source:\n  provider: polygon\n",
		"rest no url":       "data_source:\n  provider: rest\n",
		"half telegram":     "telegram:\n  bot_token: abc\n",
		"bad log level":     "logging:\n  level: loud\n",
		"negative retries":  "data_source:\n  max_retries: -1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, body))
			require.NoError(t, err)
			require.Error(t, cfg.Validate())
		})
	}
}
