package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	// Embedded zone database so Validate works on hosts without one
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Environment variables recognised by Load
const (
	EnvAPIURL    = "SECONDBRAIN_API_URL"
	EnvUserEmail = "SECONDBRAIN_USER_EMAIL"
	EnvTimezone  = "SECONDBRAIN_TIMEZONE"
	EnvVerbose   = "SECONDBRAIN_VERBOSE"
)

// DefaultConfigPath is where Load looks when no file is named
const DefaultConfigPath = "~/.secondbrain/config.toml"

// Config holds all application configuration
type Config struct {
	// Backend settings
	APIBaseURL     string
	UserEmail      string
	Timezone       string
	RequestTimeout time.Duration
	StreamTimeout  time.Duration

	// Document list polling
	PollInterval time.Duration

	// History settings
	HistoryPath string
	MaxHistory  int

	Verbose bool
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		APIBaseURL:     "http://localhost:8000",
		Timezone:       localZoneName(),
		RequestTimeout: 60 * time.Second,
		StreamTimeout:  0,

		PollInterval: 3 * time.Second,

		HistoryPath: expandHome("~/.secondbrain/history.json"),
		MaxHistory:  20,

		Verbose: false,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API base URL cannot be empty")
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("API base URL must be an http(s) URL, got %q", c.APIBaseURL)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.StreamTimeout < 0 {
		return fmt.Errorf("stream timeout cannot be negative")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil || c.Timezone == "" {
		return fmt.Errorf("unknown timezone %q", c.Timezone)
	}
	if c.MaxHistory < 1 {
		return fmt.Errorf("max history must be at least 1")
	}
	return nil
}

// fileConfig mirrors the TOML file. Pointer fields tell "unset" from zero.
type fileConfig struct {
	APIBaseURL         *string `toml:"api_base_url"`
	UserEmail          *string `toml:"user_email"`
	Timezone           *string `toml:"timezone"`
	RequestTimeoutSecs *int    `toml:"request_timeout_secs"`
	StreamTimeoutSecs  *int    `toml:"stream_timeout_secs"`
	PollIntervalSecs   *int    `toml:"poll_interval_secs"`
	HistoryPath        *string `toml:"history_path"`
	MaxHistory         *int    `toml:"max_history"`
	Verbose            *bool   `toml:"verbose"`
}

// Load builds the configuration from defaults, the TOML file at path (or
// DefaultConfigPath when empty), .env in the working directory and the
// environment, in that order. A missing file is not an error unless it was
// named explicitly.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
	}
	if err := cfg.ApplyFile(expandHome(path)); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	dotenv, err := godotenv.Read(".env")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	if err := cfg.ApplyEnv(func(key string) string {
		if v := GetEnv(key); v != "" {
			return v
		}
		return dotenv[key]
	}); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyFile overlays the settings present in a TOML file
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.APIBaseURL != nil {
		c.APIBaseURL = *fc.APIBaseURL
	}
	if fc.UserEmail != nil {
		c.UserEmail = *fc.UserEmail
	}
	if fc.Timezone != nil {
		c.Timezone = *fc.Timezone
	}
	if fc.RequestTimeoutSecs != nil {
		c.RequestTimeout = time.Duration(*fc.RequestTimeoutSecs) * time.Second
	}
	if fc.StreamTimeoutSecs != nil {
		c.StreamTimeout = time.Duration(*fc.StreamTimeoutSecs) * time.Second
	}
	if fc.PollIntervalSecs != nil {
		c.PollInterval = time.Duration(*fc.PollIntervalSecs) * time.Second
	}
	if fc.HistoryPath != nil {
		c.HistoryPath = expandHome(*fc.HistoryPath)
	}
	if fc.MaxHistory != nil {
		c.MaxHistory = *fc.MaxHistory
	}
	if fc.Verbose != nil {
		c.Verbose = *fc.Verbose
	}
	return nil
}

// ApplyEnv overlays values found through getenv
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvAPIURL); v != "" {
		c.APIBaseURL = v
	}
	if v := getenv(EnvUserEmail); v != "" {
		c.UserEmail = v
	}
	if v := getenv(EnvTimezone); v != "" {
		c.Timezone = v
	}
	if v := getenv(EnvVerbose); v != "" {
		verbose, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s value %q", EnvVerbose, v)
		}
		c.Verbose = verbose
	}
	return nil
}

// Save writes the configuration as TOML, creating the directory if needed
func (c *Config) Save(path string) error {
	path = expandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	reqSecs := int(c.RequestTimeout / time.Second)
	streamSecs := int(c.StreamTimeout / time.Second)
	pollSecs := int(c.PollInterval / time.Second)
	fc := fileConfig{
		APIBaseURL:         &c.APIBaseURL,
		UserEmail:          &c.UserEmail,
		Timezone:           &c.Timezone,
		RequestTimeoutSecs: &reqSecs,
		StreamTimeoutSecs:  &streamSecs,
		PollIntervalSecs:   &pollSecs,
		HistoryPath:        &c.HistoryPath,
		MaxHistory:         &c.MaxHistory,
		Verbose:            &c.Verbose,
	}

	data, err := toml.Marshal(fc)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// localZoneName returns the IANA name of the local zone, or UTC when it
// cannot be determined
func localZoneName() string {
	if tz := GetEnv("TZ"); tz != "" {
		if _, err := time.LoadLocation(tz); err == nil {
			return tz
		}
	}
	if name := time.Local.String(); name != "" && name != "Local" {
		return name
	}
	return "UTC"
}

// expandHome expands the ~ in file paths to the user's home directory
func expandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		return getHomeDir() + path[1:]
	}
	return path
}

// getHomeDir returns the user's home directory
func getHomeDir() string {
	if home := GetEnv("HOME"); home != "" {
		return home
	}
	// Fallback for Windows
	if home := GetEnv("USERPROFILE"); home != "" {
		return home
	}
	return "."
}

// GetEnv is a wrapper around os.Getenv for easier testing
var GetEnv = func(key string) string {
	// Will be replaced with os.Getenv in main
	return ""
}
