package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Scan.StartID != 1 {
		t.Errorf("Expected default start ID to be 1, got %d", config.Scan.StartID)
	}
	if config.Scan.EndID != 100000 {
		t.Errorf("Expected default end ID to be 100000, got %d", config.Scan.EndID)
	}
	if config.Scan.BatchSize != 5 {
		t.Errorf("Expected default batch size to be 5, got %d", config.Scan.BatchSize)
	}
	if config.Scan.FlushInterval != 100 {
		t.Errorf("Expected default flush interval to be 100, got %d", config.Scan.FlushInterval)
	}
	if config.RateLimit.SteadyDelay != 2*time.Second {
		t.Errorf("Expected default steady delay to be 2s, got %s", config.RateLimit.SteadyDelay)
	}
	if config.Provider.Collection != "LolPop" {
		t.Errorf("Expected default collection LolPop, got %s", config.Provider.Collection)
	}

	assert.NoError(t, config.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GIFTPARSER_API_BASE_URL", "http://gateway.local")
	t.Setenv("GIFTPARSER_START_ID", "50")
	t.Setenv("GIFTPARSER_END_ID", "500")
	t.Setenv("GIFTPARSER_BATCH_SIZE", "10")
	t.Setenv("GIFTPARSER_RESUME_FROM", "120")
	t.Setenv("GIFTPARSER_STEADY_DELAY", "750ms")
	t.Setenv("GIFTPARSER_OUTPUT_FORMAT", "sqlite")
	t.Setenv("GIFTPARSER_LOG_LEVEL", "debug")

	config := DefaultConfig()
	require.NoError(t, config.LoadFromEnv())

	assert.Equal(t, "http://gateway.local", config.Provider.APIBaseURL)
	assert.Equal(t, int64(50), config.Scan.StartID)
	assert.Equal(t, int64(500), config.Scan.EndID)
	assert.Equal(t, 10, config.Scan.BatchSize)
	assert.Equal(t, int64(120), config.Scan.ResumeFrom)
	assert.Equal(t, 750*time.Millisecond, config.RateLimit.SteadyDelay)
	assert.Equal(t, FormatSQLite, config.Output.Format)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestLoadFromEnvRejectsGarbage(t *testing.T) {
	t.Setenv("GIFTPARSER_END_ID", "lots")
	t.Setenv("GIFTPARSER_STEADY_DELAY", "soon")

	err := DefaultConfig().LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GIFTPARSER_END_ID")
	assert.Contains(t, err.Error(), "GIFTPARSER_STEADY_DELAY")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantError bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"start after end", func(c *Config) { c.Scan.StartID, c.Scan.EndID = 10, 5 }, true},
		{"zero start", func(c *Config) { c.Scan.StartID = 0 }, true},
		{"batch too wide", func(c *Config) { c.Scan.BatchSize = 51 }, true},
		{"zero batch", func(c *Config) { c.Scan.BatchSize = 0 }, true},
		{"zero flush interval", func(c *Config) { c.Scan.FlushInterval = 0 }, true},
		{"negative delay", func(c *Config) { c.RateLimit.SteadyDelay = -time.Second }, true},
		{"unknown format", func(c *Config) { c.Output.Format = "parquet" }, true},
		{"sqlite without file", func(c *Config) { c.Output.Format = FormatSQLite; c.Output.DatabaseFile = "" }, true},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"no collection", func(c *Config) { c.Provider.Collection = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestEffectiveStart(t *testing.T) {
	config := DefaultConfig()
	config.Scan.StartID = 10
	assert.Equal(t, int64(10), config.EffectiveStart())
	assert.False(t, config.Resuming())

	config.Scan.ResumeFrom = 250
	assert.Equal(t, int64(250), config.EffectiveStart())
	assert.True(t, config.Resuming())

	// A resume ID below the range start never moves the scan backwards
	config.Scan.ResumeFrom = 3
	assert.Equal(t, int64(10), config.EffectiveStart())
	// but it still asks for the prior output to be kept
	assert.True(t, config.Resuming())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "giftparser.yaml")
	content := `
provider:
  collection: PlushPepe
scan:
  start_id: 7
  end_id: 70
  batch_size: 7
rate_limit:
  steady_delay: 1s
output:
  format: csv
  directory: /tmp/out
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config := DefaultConfig()
	require.NoError(t, config.LoadFromFile(path))

	assert.Equal(t, "PlushPepe", config.Provider.Collection)
	assert.Equal(t, int64(7), config.Scan.StartID)
	assert.Equal(t, int64(70), config.Scan.EndID)
	assert.Equal(t, 7, config.Scan.BatchSize)
	assert.Equal(t, time.Second, config.RateLimit.SteadyDelay)
	assert.Equal(t, "/tmp/out", config.Output.Directory)
	// Untouched keys keep their defaults
	assert.Equal(t, int64(100), config.Scan.FlushInterval)
}

func TestLoadPrecedence(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	dir := t.TempDir()
	path := filepath.Join(dir, "giftparser.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scan:\n  end_id: 300\n  batch_size: 3\n"), 0644))

	t.Setenv("GIFTPARSER_END_ID", "400")

	config, err := Load(path, map[string]interface{}{
		"batch-size": 8,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(400), config.Scan.EndID, "env overrides file")
	assert.Equal(t, 8, config.Scan.BatchSize, "flags override file")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	config := DefaultConfig()
	config.Scan.EndID = 4242
	require.NoError(t, config.Save(path))

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, int64(4242), loaded.Scan.EndID)
}
