package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment variable the parser reads
const EnvPrefix = "GIFTPARSER_"

// Config holds all configuration options for the gift parser
type Config struct {
	// Identity provider connection
	Provider ProviderConfig `yaml:"provider" json:"provider"`

	// ID range and batching
	Scan ScanConfig `yaml:"scan" json:"scan"`

	// Throttling
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Result files
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Prometheus endpoint
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// ProviderConfig holds identity provider settings
type ProviderConfig struct {
	APIBaseURL string `yaml:"api_base_url" json:"api_base_url"`
	APIID      string `yaml:"api_id" json:"api_id"`
	APIHash    string `yaml:"api_hash" json:"api_hash"`
	Phone      string `yaml:"phone" json:"phone"`
	// SessionToken is normally taken from the credential store
	SessionToken string `yaml:"session_token" json:"session_token"`
	Channel      string `yaml:"channel" json:"channel"`
	PageBaseURL  string `yaml:"page_base_url" json:"page_base_url"`
	Collection   string `yaml:"collection" json:"collection"`
	UserAgent    string `yaml:"user_agent" json:"user_agent"`
	// OwnerLabels are the localized labels preceding an owner name in free text
	OwnerLabels       []string      `yaml:"owner_labels" json:"owner_labels"`
	RequestTimeout    time.Duration `yaml:"request_timeout" json:"request_timeout"`
	ConnectRetries    int           `yaml:"connect_retries" json:"connect_retries"`
	ConnectRetryDelay time.Duration `yaml:"connect_retry_delay" json:"connect_retry_delay"`
}

// ScanConfig holds the ID range being enumerated
type ScanConfig struct {
	StartID   int64 `yaml:"start_id" json:"start_id"`
	EndID     int64 `yaml:"end_id" json:"end_id"`
	BatchSize int   `yaml:"batch_size" json:"batch_size"`
	// ResumeFrom is the externally supplied resume ID; 0 means a fresh run
	ResumeFrom    int64 `yaml:"resume_from" json:"resume_from"`
	FlushInterval int64 `yaml:"flush_interval" json:"flush_interval"`
}

// RateLimitConfig holds throttling configuration
type RateLimitConfig struct {
	SteadyDelay       time.Duration `yaml:"steady_delay" json:"steady_delay"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`
	// RateLimitRetries is how often a rate-limited batch is replayed; 0 skips it
	RateLimitRetries int           `yaml:"rate_limit_retries" json:"rate_limit_retries"`
	MaxWait          time.Duration `yaml:"max_wait" json:"max_wait"`
}

// OutputConfig holds result file configuration
type OutputConfig struct {
	Format        string `yaml:"format" json:"format"`
	Directory     string `yaml:"directory" json:"directory"`
	OwnersFile    string `yaml:"owners_file" json:"owners_file"`
	LinksFile     string `yaml:"links_file" json:"links_file"`
	DatabaseFile  string `yaml:"database_file" json:"database_file"`
	CheckpointDir string `yaml:"checkpoint_dir" json:"checkpoint_dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// MetricsConfig holds the Prometheus listener configuration
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
}

const (
	FormatCSV    = "csv"
	FormatSQLite = "sqlite"
)

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			APIBaseURL:        "http://127.0.0.1:8081",
			Channel:           "nft",
			PageBaseURL:       "https://t.me/nft",
			Collection:        "LolPop",
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
			OwnerLabels:       []string{"Владелец", "Owner"},
			RequestTimeout:    30 * time.Second,
			ConnectRetries:    5,
			ConnectRetryDelay: 5 * time.Second,
		},
		Scan: ScanConfig{
			StartID:       1,
			EndID:         100000,
			BatchSize:     5,
			FlushInterval: 100,
		},
		RateLimit: RateLimitConfig{
			SteadyDelay:      2 * time.Second,
			RateLimitRetries: 3,
		},
		Output: OutputConfig{
			Format:       FormatCSV,
			Directory:    ".",
			OwnersFile:   "nft_owners.csv",
			LinksFile:    "valid_nft_links.csv",
			DatabaseFile: "nft_owners.db",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	setInt64 := func(name string, dst *int64) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	setString("API_BASE_URL", &c.Provider.APIBaseURL)
	setString("API_ID", &c.Provider.APIID)
	setString("API_HASH", &c.Provider.APIHash)
	setString("PHONE", &c.Provider.Phone)
	setString("SESSION_TOKEN", &c.Provider.SessionToken)
	setString("COLLECTION", &c.Provider.Collection)
	setString("USER_AGENT", &c.Provider.UserAgent)

	setInt64("START_ID", &c.Scan.StartID)
	setInt64("END_ID", &c.Scan.EndID)
	setInt64("RESUME_FROM", &c.Scan.ResumeFrom)
	setInt64("FLUSH_INTERVAL", &c.Scan.FlushInterval)
	if v := os.Getenv(EnvPrefix + "BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sBATCH_SIZE: %w", EnvPrefix, err))
		} else {
			c.Scan.BatchSize = n
		}
	}

	setDuration("STEADY_DELAY", &c.RateLimit.SteadyDelay)

	setString("OUTPUT_FORMAT", &c.Output.Format)
	setString("OUTPUT_DIR", &c.Output.Directory)
	setString("LOG_LEVEL", &c.Logging.Level)
	setString("LOG_FILE", &c.Logging.File)
	setString("METRICS_ADDR", &c.Metrics.ListenAddr)

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".giftparser.yaml",
		".giftparser.yml",
		filepath.Join(home, ".config", "giftparser", "config.yaml"),
		filepath.Join(home, ".config", "giftparser", "config.yml"),
		filepath.Join(home, ".giftparser.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Provider.APIBaseURL == "" {
		errs = append(errs, errors.New("provider API base URL is required"))
	}
	if c.Provider.PageBaseURL == "" {
		errs = append(errs, errors.New("page base URL is required"))
	}
	if c.Provider.Collection == "" {
		errs = append(errs, errors.New("gift collection is required"))
	}
	if c.Provider.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.Provider.ConnectRetries < 1 {
		errs = append(errs, errors.New("connect retries must be at least 1"))
	}

	if c.Scan.StartID < 1 {
		errs = append(errs, errors.New("start ID must be positive"))
	}
	if c.Scan.EndID < c.Scan.StartID {
		errs = append(errs, errors.New("end ID must not be below start ID"))
	}
	if c.Scan.BatchSize < 1 || c.Scan.BatchSize > 50 {
		errs = append(errs, errors.New("batch size must be between 1 and 50"))
	}
	if c.Scan.FlushInterval < 1 {
		errs = append(errs, errors.New("flush interval must be positive"))
	}
	if c.Scan.ResumeFrom < 0 {
		errs = append(errs, errors.New("resume ID cannot be negative"))
	}

	if c.RateLimit.SteadyDelay < 0 {
		errs = append(errs, errors.New("steady delay cannot be negative"))
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("requests per second cannot be negative"))
	}
	if c.RateLimit.RateLimitRetries < 0 {
		errs = append(errs, errors.New("rate limit retries cannot be negative"))
	}
	if c.RateLimit.MaxWait < 0 {
		errs = append(errs, errors.New("max wait cannot be negative"))
	}

	switch strings.ToLower(c.Output.Format) {
	case FormatCSV:
		if c.Output.OwnersFile == "" || c.Output.LinksFile == "" {
			errs = append(errs, errors.New("owners and links file names are required"))
		}
	case FormatSQLite:
		if c.Output.DatabaseFile == "" {
			errs = append(errs, errors.New("database file name is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown output format %q", c.Output.Format))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Resuming reports whether any resume ID was supplied, even one at or below
// the range start. Output is then appended to instead of truncated.
func (c *Config) Resuming() bool {
	return c.Scan.ResumeFrom > 0
}

// EffectiveStart returns the first ID the scan dispatches
func (c *Config) EffectiveStart() int64 {
	if c.Scan.ResumeFrom > c.Scan.StartID {
		return c.Scan.ResumeFrom
	}
	return c.Scan.StartID
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["api-base-url"].(string); ok && v != "" {
		c.Provider.APIBaseURL = v
	}
	if v, ok := flags["collection"].(string); ok && v != "" {
		c.Provider.Collection = v
	}
	if v, ok := flags["start-id"].(int64); ok && v > 0 {
		c.Scan.StartID = v
	}
	if v, ok := flags["end-id"].(int64); ok && v > 0 {
		c.Scan.EndID = v
	}
	if v, ok := flags["batch-size"].(int); ok && v > 0 {
		c.Scan.BatchSize = v
	}
	if v, ok := flags["resume-from"].(int64); ok && v > 0 {
		c.Scan.ResumeFrom = v
	}
	if v, ok := flags["flush-interval"].(int64); ok && v > 0 {
		c.Scan.FlushInterval = v
	}
	if v, ok := flags["steady-delay"].(time.Duration); ok && v >= 0 {
		c.RateLimit.SteadyDelay = v
	}
	if v, ok := flags["rate-limit-retries"].(int); ok && v >= 0 {
		c.RateLimit.RateLimitRetries = v
	}
	if v, ok := flags["format"].(string); ok && v != "" {
		c.Output.Format = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.Directory = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["metrics-addr"].(string); ok && v != "" {
		c.Metrics.ListenAddr = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Missing .env files are fine
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".giftparser.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
