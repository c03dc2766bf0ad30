// Package config holds the settings of a mirror run, as read from a
// YAML file and overridden on the command line.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// AppName names the per-user configuration directory.
const AppName = "mirror"

// LocalFile is looked up in the working directory before the XDG
// config directories.
const LocalFile = "mirror.yaml"

// Authentication modes.
const (
	AuthForm  = "form"
	AuthBasic = "basic"
	AuthNone  = "none"
)

// Defaults.
const (
	DefaultOutputDir   = "downloaded_site"
	DefaultTimeout     = 30 * time.Second
	DefaultConcurrency = 1
	DefaultWARCSizeMB  = 100
)

var (
	// ErrNoTarget means no seed URL was given anywhere.
	ErrNoTarget = errors.New("no URL to mirror")

	// ErrAuthMode is returned for an unknown authentication mode.
	ErrAuthMode = errors.New("auth must be one of form, basic, none")

	// ErrNoOutputDir is returned for an empty output directory.
	ErrNoOutputDir = errors.New("output directory must not be empty")

	// ErrInvalidValue wraps out of range numeric settings.
	ErrInvalidValue = errors.New("invalid value")
)

// Config of a mirror run.
type Config struct {
	URL       string `yaml:"url"`
	Secret    string `yaml:"secret"`
	OutputDir string `yaml:"output_dir"`

	// Auth selects the AuthProvider. Username is only used by basic
	// auth, FormField and LoginMarkers only by form login.
	Auth         string   `yaml:"auth"`
	Username     string   `yaml:"username"`
	FormField    string   `yaml:"form_field"`
	LoginMarkers []string `yaml:"login_markers"`

	UserAgent          string   `yaml:"user_agent"`
	Timeout            Duration `yaml:"timeout"`
	InsecureSkipVerify bool     `yaml:"insecure_skip_verify"`
	Concurrency        int      `yaml:"concurrency"`
	MaxBodyBytes       int64    `yaml:"max_body_bytes"`

	// Exclude lists regular expressions of URLs not to fetch.
	Exclude []string `yaml:"exclude"`

	// WARC, if set, is a file (or a pattern with a literal "%s")
	// receiving a WARC archive of everything fetched.
	WARC       string `yaml:"warc"`
	WARCSizeMB int    `yaml:"warc_max_size_mb"`
}

// Default returns a Config populated with the defaults.
func Default() Config {
	return Config{
		OutputDir:   DefaultOutputDir,
		Auth:        AuthForm,
		Timeout:     DurationFrom(DefaultTimeout),
		Concurrency: DefaultConcurrency,
		WARCSizeMB:  DefaultWARCSizeMB,
	}
}

// Find returns the configuration file to use. An explicit path always
// wins, then LocalFile, then mirror/config.yaml in the XDG config
// directories. It returns an empty string when there is none.
func Find(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(LocalFile); err == nil {
		return LocalFile
	}
	if path, err := xdg.SearchConfigFile(AppName + "/config.yaml"); err == nil {
		return path
	}
	return ""
}

// Load reads a configuration file over the defaults. An empty path
// returns the defaults. The result is not validated, as command-line
// arguments may still fill in missing values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return &cfg, nil
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close() // nolint

	if err := decodeYAML(fh, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.normalise()
	return &cfg, nil
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return nil, err
	}
	cfg.normalise()
	return &cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

func (c *Config) normalise() {
	c.URL = strings.TrimSpace(c.URL)
	c.OutputDir = strings.TrimSpace(c.OutputDir)
	c.Auth = strings.ToLower(strings.TrimSpace(c.Auth))
	c.FormField = strings.TrimSpace(c.FormField)
	c.UserAgent = strings.TrimSpace(c.UserAgent)
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}
	if c.Auth == "" {
		c.Auth = AuthForm
	}
}

// Validate checks the configuration once all sources were merged.
func (c *Config) Validate() error {
	c.normalise()
	if c.URL == "" {
		return ErrNoTarget
	}
	switch c.Auth {
	case AuthForm, AuthBasic, AuthNone:
	default:
		return fmt.Errorf("%w (got %q)", ErrAuthMode, c.Auth)
	}
	if c.OutputDir == "" {
		return ErrNoOutputDir
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("%w: concurrency must be > 0 (got %d)", ErrInvalidValue, c.Concurrency)
	}
	if c.Timeout.Duration < 0 {
		return fmt.Errorf("%w: timeout must be >= 0 (got %s)", ErrInvalidValue, c.Timeout)
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("%w: max_body_bytes must be >= 0 (got %d)", ErrInvalidValue, c.MaxBodyBytes)
	}
	if c.WARCSizeMB < 0 {
		return fmt.Errorf("%w: warc_max_size_mb must be >= 0 (got %d)", ErrInvalidValue, c.WARCSizeMB)
	}
	for _, rx := range c.Exclude {
		if _, err := regexp.Compile(rx); err != nil {
			return fmt.Errorf("exclude pattern %q: %w", rx, err)
		}
	}
	return nil
}

// Secrets returns the values that must never appear in logs.
func (c *Config) Secrets() []string {
	if c.Secret == "" {
		return nil
	}
	return []string{c.Secret}
}
