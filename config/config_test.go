package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadFromReader(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(`
url: https://example.com/
secret: hunter2
output_dir: " out "
auth: Basic
username: alice
timeout: 45s
concurrency: 4
exclude:
  - "\\.pdf$"
`))
	if err != nil {
		t.Fatal(err)
	}

	want := Default()
	want.URL = "https://example.com/"
	want.Secret = "hunter2"
	want.OutputDir = "out"
	want.Auth = AuthBasic
	want.Username = "alice"
	want.Timeout = DurationFrom(45 * time.Second)
	want.Concurrency = 4
	want.Exclude = []string{`\.pdf$`}
	if diff := cmp.Diff(&want, cfg); diff != "" {
		t.Fatalf("unexpected config:\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadFromReader_Empty(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	want := Default()
	if diff := cmp.Diff(&want, cfg); diff != "" {
		t.Fatalf("empty config is not the default:\n%s", diff)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	if _, err := LoadFromReader(strings.NewReader("depth: 3\n")); err == nil {
		t.Fatal("unknown field was accepted")
	}
}

func TestDuration(t *testing.T) {
	for _, td := range []struct {
		in   string
		want time.Duration
	}{
		{"timeout: 10s", 10 * time.Second},
		{"timeout: 1m30s", 90 * time.Second},
		{"timeout: 5", 5 * time.Second},
		{"timeout: 0.5", 500 * time.Millisecond},
	} {
		cfg, err := LoadFromReader(strings.NewReader(td.in))
		if err != nil {
			t.Errorf("%q: %v", td.in, err)
			continue
		}
		if cfg.Timeout.Duration != td.want {
			t.Errorf("%q: got %s, want %s", td.in, cfg.Timeout, td.want)
		}
	}

	if _, err := LoadFromReader(strings.NewReader("timeout: soon")); err == nil {
		t.Error("invalid duration was accepted")
	}
}

func TestValidate(t *testing.T) {
	for _, td := range []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"no url", func(c *Config) {}, ErrNoTarget},
		{"bad auth", func(c *Config) { c.URL = "https://example.com"; c.Auth = "oauth" }, ErrAuthMode},
		{"zero concurrency", func(c *Config) { c.URL = "https://example.com"; c.Concurrency = 0 }, ErrInvalidValue},
		{"negative body limit", func(c *Config) { c.URL = "https://example.com"; c.MaxBodyBytes = -1 }, ErrInvalidValue},
	} {
		cfg := Default()
		td.modify(&cfg)
		if err := cfg.Validate(); !errors.Is(err, td.want) {
			t.Errorf("%s: got %v, want %v", td.name, err, td.want)
		}
	}

	cfg := Default()
	cfg.URL = "https://example.com"
	cfg.Exclude = []string{"("}
	if err := cfg.Validate(); err == nil {
		t.Error("invalid exclude pattern was accepted")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("url: example.com\nsecret: s3cr3t\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if got := Find(path); got != path {
		t.Fatalf("Find(%q) = %q", path, got)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.URL != "example.com" || cfg.OutputDir != DefaultOutputDir {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if diff := cmp.Diff([]string{"s3cr3t"}, cfg.Secrets()); diff != "" {
		t.Errorf("Secrets():\n%s", diff)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of a missing file succeeded")
	}
}
