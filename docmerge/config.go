package docmerge

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/docmerge/export"
	"github.com/hazyhaar/docmerge/shield"
)

// Config holds the full docmerge configuration.
type Config struct {
	Listen   string `yaml:"listen"`
	MaxConns int    `yaml:"max_conns"` // concurrent HTTP connections, 0 = unlimited
	DBPath   string `yaml:"db_path"`   // batch history; empty disables it
	Format   string `yaml:"format"`    // default export format: docx | txt | pdf

	MaxUploadMB          int    `yaml:"max_upload_mb"`
	MaxEntryMB           int    `yaml:"max_entry_mb"`
	MaxFilesPerSubmitter int    `yaml:"max_files_per_submitter"` // 0 = unlimited
	TempDir              string `yaml:"temp_dir"`

	Workers       int  `yaml:"workers"`
	SkipMalformed bool `yaml:"skip_malformed"`

	Convert   ConvertConfig          `yaml:"convert"`
	RateLimit shield.RateLimitConfig `yaml:"rate_limit"` // POST /v1/combine, per client IP
	APIKeys   []shield.APIKey        `yaml:"api_keys"`   // bearer keys for the HTTP API; none = open
}

// ConvertConfig configures PDF conversion.
type ConvertConfig struct {
	MaxInputMB   int  `yaml:"max_input_mb"`
	NoPageBreaks bool `yaml:"no_page_breaks"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:      ":8087",
		MaxConns:    64,
		DBPath:      "docmerge.db",
		Format:      string(export.DOCX),
		MaxUploadMB: 200,
		MaxEntryMB:  100,
		Workers:     1,
		Convert: ConvertConfig{
			MaxInputMB: 100,
		},
		RateLimit: shield.RateLimitConfig{
			MaxRequests:   30,
			WindowSeconds: 60,
			Enabled:       true,
		},
	}
}

// LoadConfig reads and parses a YAML config file. Returns DefaultConfig merged with the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that values are sane.
func (c *Config) Validate() error {
	if _, err := export.ParseFormat(c.Format); err != nil {
		return fmt.Errorf("format: %w", err)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be > 0")
	}
	if c.MaxEntryMB <= 0 {
		return fmt.Errorf("max_entry_mb must be > 0")
	}
	if c.MaxFilesPerSubmitter < 0 {
		return fmt.Errorf("max_files_per_submitter must be >= 0")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1")
	}
	if c.Convert.MaxInputMB <= 0 {
		return fmt.Errorf("convert.max_input_mb must be > 0")
	}
	if c.MaxConns < 0 {
		return fmt.Errorf("max_conns must be >= 0")
	}
	for i, k := range c.APIKeys {
		if k.Name == "" || !strings.HasPrefix(k.Hash, "$2") {
			return fmt.Errorf("api_keys[%d]: needs a name and a bcrypt hash", i)
		}
	}
	if c.RateLimit.Enabled && (c.RateLimit.MaxRequests <= 0 || c.RateLimit.WindowSeconds <= 0) {
		return fmt.Errorf("rate_limit needs max_requests and window_seconds > 0")
	}
	return nil
}

// DefaultFormat returns the configured export format.
func (c *Config) DefaultFormat() export.Format {
	f, err := export.ParseFormat(c.Format)
	if err != nil {
		return export.DOCX
	}
	return f
}

// MaxUploadBytes returns the request body limit in bytes.
func (c *Config) MaxUploadBytes() int64 { return int64(c.MaxUploadMB) << 20 }

// MaxEntryBytes returns the per-file limit in bytes.
func (c *Config) MaxEntryBytes() int64 { return int64(c.MaxEntryMB) << 20 }
