package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Spotify  SpotifyConfig  `toml:"spotify"`
	Database DatabaseConfig `toml:"database"`
	Auth     AuthConfig     `toml:"auth"`
	Client   ClientConfig   `toml:"client"`
}

// SpotifyConfig contains the application credentials registered with Spotify.
type SpotifyConfig struct {
	ClientID     string   `toml:"client_id" validate:"required"`
	ClientSecret string   `toml:"client_secret" validate:"required"`
	RedirectURI  string   `toml:"redirect_uri" validate:"required,url"`
	Scopes       []string `toml:"scopes" validate:"required,min=1"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" validate:"required"`
	MaxOpenConns int    `toml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int    `toml:"max_idle_conns" validate:"gte=0"`
}

// AuthConfig controls the interactive login.
type AuthConfig struct {
	Timeout Duration `toml:"timeout"`
}

// ClientConfig tunes token refresh and rate-limit handling for every account client.
type ClientConfig struct {
	RefreshMargin     Duration `toml:"refresh_margin"`
	MaxRetries        int      `toml:"max_retries" validate:"gte=0,lte=20"`
	BaseBackoff       Duration `toml:"base_backoff"`
	MaxBackoff        Duration `toml:"max_backoff"`
	RequestsPerSecond float64  `toml:"requests_per_second" validate:"gt=0"`
}

// Duration is a [time.Duration] that reads and writes as a string ("90s", "2m") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, string(text), err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s (run `spotsync setup` to create it)", ErrMissingConfig, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
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
		return fmt.Errorf("config file already exists at %s: %w", path, fs.ErrExist)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, exampleConf, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ResolveConfig loads path when it exists and falls back to the embedded defaults otherwise.
// Environment overrides are applied on top either way.
func ResolveConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path != "" {
		expanded := ExpandPath(path)
		if _, err := os.Stat(expanded); err == nil {
			loaded, err := LoadConfig(expanded)
			if err != nil {
				return nil, err
			}
			config = loaded
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	config.ApplyEnv(os.Getenv)
	config.Database.Path = ExpandPath(config.Database.Path)
	return config, nil
}

// LoadEnv reads .env style files into the process environment. Missing files are ignored
// and variables already set win over file values.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides credential and storage settings from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := getenv("SPOTIFY_REDIRECT_URI"); v != "" {
		c.Spotify.RedirectURI = v
	}
	if v := getenv("SPOTSYNC_DB_PATH"); v != "" {
		c.Database.Path = v
	}
}

// Validate checks the struct tags on every section.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// HomeDir returns the per-user data directory (~/.spotsync).
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".spotsync"
	}
	return filepath.Join(home, ".spotsync")
}

// DefaultConfigPath is where the CLI looks for config.toml when --config is not given.
func DefaultConfigPath() string {
	return filepath.Join(HomeDir(), "config.toml")
}

// ExpandPath replaces a leading "~" with the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
