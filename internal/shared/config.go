package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Queue       QueueConfig       `toml:"queue"`
	Fetch       FetchConfig       `toml:"fetch"`
	Provider    ProviderConfig    `toml:"provider"`
	Lyrics      LyricsConfig      `toml:"lyrics"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API app credentials used for catalog lookups.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// Enabled reports whether both client credentials are present.
func (s SpotifyConfig) Enabled() bool {
	return s.ClientID != "" && s.ClientSecret != ""
}

// DatabaseConfig contains database connection settings.
//
// Path is a SQLite file path, ":memory:", or a libsql URL (libsql://, http://, https://).
type DatabaseConfig struct {
	Path         string `toml:"path"`
	AuthToken    string `toml:"auth_token"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// QueueConfig selects and tunes the job broker backing the fetch pipeline.
type QueueConfig struct {
	Backend        string `toml:"backend"` // sqlite, redis, memory, or none
	RedisURL       string `toml:"redis_url"`
	RedisPrefix    string `toml:"redis_prefix"`
	Workers        int    `toml:"workers"`
	PollIntervalMS int    `toml:"poll_interval_ms"`
	// LockTimeoutSeconds bounds how long a claimed job may run before another worker may take it.
	LockTimeoutSeconds int `toml:"lock_timeout_seconds"`
}

// PollInterval returns the worker idle poll interval.
func (q QueueConfig) PollInterval() time.Duration {
	return time.Duration(q.PollIntervalMS) * time.Millisecond
}

// LockTimeout returns how long a claimed job stays locked to its worker.
func (q QueueConfig) LockTimeout() time.Duration {
	return time.Duration(q.LockTimeoutSeconds) * time.Second
}

// FetchConfig contains the lyrics fetch job policy.
type FetchConfig struct {
	TimeoutSeconds int  `toml:"timeout_seconds"`
	MaxAttempts    int  `toml:"max_attempts"`
	BackoffSeconds int  `toml:"backoff_seconds"`
	KeepOnSuccess  bool `toml:"keep_on_success"`
	KeepOnFailure  bool `toml:"keep_on_failure"`
}

// Timeout returns the per-attempt provider timeout.
func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// Backoff returns the base delay of the exponential retry backoff.
func (f FetchConfig) Backoff() time.Duration {
	return time.Duration(f.BackoffSeconds) * time.Second
}

// ProviderConfig configures the external lyrics sources.
type ProviderConfig struct {
	BaseURL       string  `toml:"base_url"`
	RatePerSecond float64 `toml:"rate_per_second"`
	Burst         int     `toml:"burst"`
	PageURL       string  `toml:"page_url"`
	PageSelector  string  `toml:"page_selector"`
}

// LyricsConfig contains document store settings.
type LyricsConfig struct {
	VersionsToKeep int `toml:"versions_to_keep"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	switch c.Queue.Backend {
	case "sqlite", "redis", "memory", "none":
	default:
		return fmt.Errorf("%w: unknown queue backend %q", ErrInvalidConfig, c.Queue.Backend)
	}
	if c.Queue.Backend == "redis" && c.Queue.RedisURL == "" {
		return fmt.Errorf("%w: queue.redis_url is required for the redis backend", ErrInvalidConfig)
	}
	if c.Fetch.MaxAttempts < 1 {
		return fmt.Errorf("%w: fetch.max_attempts must be at least 1", ErrInvalidConfig)
	}
	if c.Fetch.TimeoutSeconds < 1 {
		return fmt.Errorf("%w: fetch.timeout_seconds must be at least 1", ErrInvalidConfig)
	}
	if c.Queue.LockTimeoutSeconds <= c.Fetch.TimeoutSeconds {
		return fmt.Errorf("%w: queue.lock_timeout_seconds must exceed fetch.timeout_seconds", ErrInvalidConfig)
	}
	if c.Lyrics.VersionsToKeep < 1 {
		return fmt.Errorf("%w: lyrics.versions_to_keep must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// ApplyEnv loads a .env file when present and overlays LYRIX_* and SPOTIFY_* variables onto the config.
func (c *Config) ApplyEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}

	setString(&c.Database.Path, "LYRIX_DATABASE_PATH")
	setString(&c.Database.AuthToken, "LYRIX_DATABASE_AUTH_TOKEN")
	setString(&c.Queue.Backend, "LYRIX_QUEUE_BACKEND")
	setString(&c.Queue.RedisURL, "LYRIX_REDIS_URL")
	setString(&c.Server.Host, "LYRIX_SERVER_HOST")
	setString(&c.Credentials.Spotify.ClientID, "SPOTIFY_CLIENT_ID")
	setString(&c.Credentials.Spotify.ClientSecret, "SPOTIFY_CLIENT_SECRET")

	if v := os.Getenv("LYRIX_SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: LYRIX_SERVER_PORT=%q", ErrInvalidConfig, v)
		}
		c.Server.Port = port
	}

	return c.Validate()
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
