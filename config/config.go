package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultMaxSources     = 20
	DefaultMinColumnWidth = 350
	DefaultUserAgent      = "feedstrip/1.0"
	DefaultRelayParam     = "url"
	DefaultPort           = 3000
)

// Duration decodes TOML strings such as "15s"
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// FetchConfig controls how each source is retrieved
type FetchConfig struct {
	Timeout   Duration `toml:"timeout"`
	UserAgent string   `toml:"user_agent"`
	// Concurrency bounds simultaneous fetches, 0 launches one per source
	Concurrency int `toml:"concurrency"`
	// RelayURL routes every retrieval through a relay that takes the target as a query parameter
	RelayURL   string `toml:"relay_url"`
	RelayParam string `toml:"relay_param"`
	MaxItems   int    `toml:"max_items"`
}

type ServerConfig struct {
	Port         int      `toml:"port"`
	AllowOrigins string   `toml:"allow_origins"`
	ResizeLimit  int      `toml:"resize_limit"`
	ResizeWindow Duration `toml:"resize_window"`
}

// Config represents the top-level configuration
type Config struct {
	MaxSources     int          `toml:"max_sources"`
	MinColumnWidth int          `toml:"min_column_width"`
	Fetch          FetchConfig  `toml:"fetch"`
	Server         ServerConfig `toml:"server"`
}

func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.MaxSources == 0 {
		c.MaxSources = DefaultMaxSources
	}
	if c.MinColumnWidth == 0 {
		c.MinColumnWidth = DefaultMinColumnWidth
	}
	if c.Fetch.Timeout.Duration == 0 {
		c.Fetch.Timeout.Duration = 15 * time.Second
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = DefaultUserAgent
	}
	if c.Fetch.RelayParam == "" {
		c.Fetch.RelayParam = DefaultRelayParam
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.AllowOrigins == "" {
		c.Server.AllowOrigins = "*"
	}
	if c.Server.ResizeLimit == 0 {
		c.Server.ResizeLimit = 30
	}
	if c.Server.ResizeWindow.Duration == 0 {
		c.Server.ResizeWindow.Duration = time.Second
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.MaxSources < 1 {
		errs = append(errs, fmt.Errorf("max_sources must be positive, got %d", c.MaxSources))
	}
	if c.MinColumnWidth < 1 {
		errs = append(errs, fmt.Errorf("min_column_width must be positive, got %d", c.MinColumnWidth))
	}
	if c.Fetch.Timeout.Duration < 0 {
		errs = append(errs, errors.New("fetch.timeout must not be negative"))
	}
	if c.Fetch.Concurrency < 0 {
		errs = append(errs, errors.New("fetch.concurrency must not be negative"))
	}
	if c.Fetch.MaxItems < 0 {
		errs = append(errs, errors.New("fetch.max_items must not be negative"))
	}
	return errors.Join(errs...)
}

// LoadConfig reads the TOML file at path. An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return &config, nil
}
