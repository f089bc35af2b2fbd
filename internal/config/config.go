// Package config loads the optional YAML configuration file. Flags take
// precedence over file values; the file exists so deployments can keep the
// serve command line short.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tunables for the proxy process.
type Config struct {
	// Port the HTTP server listens on.
	Port int `yaml:"port"`

	// CMSBaseURL is the root of the CMS REST API.
	CMSBaseURL string `yaml:"cms_base_url"`

	// CMSVersion is sent as the API version header on every block lookup.
	CMSVersion string `yaml:"cms_version"`

	// CacheSize bounds the number of resolved signed URLs held in memory.
	CacheSize int `yaml:"cache_size"`

	// CacheTTL is how long a resolved signed URL is trusted. It must stay
	// below the upstream signing window (about an hour) or the proxy would
	// hand out URLs the CDN has already expired.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// FetchTimeout bounds a single upstream asset download.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// Formats is the negotiation preference order, most preferred first.
	// Valid entries: avif, webp.
	Formats []string `yaml:"formats"`

	// CacheDir enables the on-disk variant store when non-empty.
	CacheDir string `yaml:"cache_dir"`

	// Bucket enables the GCS variant store when non-empty. Takes
	// precedence over CacheDir.
	Bucket string `yaml:"bucket"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogFormat is either json or text.
	LogFormat string `yaml:"log_format"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Port:         8080,
		CMSBaseURL:   "https://api.notion.com/v1",
		CMSVersion:   "2022-06-28",
		CacheSize:    1024,
		CacheTTL:     55 * time.Minute,
		FetchTimeout: 10 * time.Second,
		Formats:      []string{"avif", "webp"},
		LogLevel:     "info",
		LogFormat:    "json",
	}
}

// Duration parses YAML scalars like "55m" or "10s". yaml.v3 has no native
// time.Duration support.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalYAML merges the file over whatever values the Config already
// holds, so absent keys keep their defaults.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Port         *int      `yaml:"port"`
		CMSBaseURL   *string   `yaml:"cms_base_url"`
		CMSVersion   *string   `yaml:"cms_version"`
		CacheSize    *int      `yaml:"cache_size"`
		CacheTTL     *Duration `yaml:"cache_ttl"`
		FetchTimeout *Duration `yaml:"fetch_timeout"`
		Formats      []string  `yaml:"formats"`
		CacheDir     *string   `yaml:"cache_dir"`
		Bucket       *string   `yaml:"bucket"`
		LogLevel     *string   `yaml:"log_level"`
		LogFormat    *string   `yaml:"log_format"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.Port != nil {
		c.Port = *raw.Port
	}
	if raw.CMSBaseURL != nil {
		c.CMSBaseURL = *raw.CMSBaseURL
	}
	if raw.CMSVersion != nil {
		c.CMSVersion = *raw.CMSVersion
	}
	if raw.CacheSize != nil {
		c.CacheSize = *raw.CacheSize
	}
	if raw.CacheTTL != nil {
		c.CacheTTL = time.Duration(*raw.CacheTTL)
	}
	if raw.FetchTimeout != nil {
		c.FetchTimeout = time.Duration(*raw.FetchTimeout)
	}
	if raw.Formats != nil {
		c.Formats = raw.Formats
	}
	if raw.CacheDir != nil {
		c.CacheDir = *raw.CacheDir
	}
	if raw.Bucket != nil {
		c.Bucket = *raw.Bucket
	}
	if raw.LogLevel != nil {
		c.LogLevel = *raw.LogLevel
	}
	if raw.LogFormat != nil {
		c.LogFormat = *raw.LogFormat
	}
	return nil
}

// Load reads path and merges it over the defaults. A missing file is not an
// error; an unreadable or malformed file is.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: failed to read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %q: %w", path, err)
	}

	return cfg, nil
}

// Token returns the CMS bearer credential from the environment. It is
// deliberately never read from the config file to keep credentials out of
// checked-in YAML.
func Token() string {
	return os.Getenv("CMS_TOKEN")
}
