// Package config loads the uploader configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/withObsrvr/artwork-uploader/internal/history"
	"github.com/withObsrvr/artwork-uploader/internal/layout"
	"github.com/withObsrvr/artwork-uploader/internal/logging"
	"github.com/withObsrvr/artwork-uploader/internal/metrics"
	"github.com/withObsrvr/artwork-uploader/internal/notify"
	"github.com/withObsrvr/artwork-uploader/internal/storage"
	"github.com/withObsrvr/artwork-uploader/internal/upload"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "uploader.yaml"

var (
	// ErrNoDestinations is returned when no destination is configured or
	// none matches the requested titles.
	ErrNoDestinations = errors.New("no upload destinations")
	// ErrUnknownDestination is returned for a requested title that is not
	// configured.
	ErrUnknownDestination = errors.New("unknown destination")
)

type Config struct {
	Upload       UploadConfig         `yaml:"upload"`
	Proxy        ProxyConfig          `yaml:"proxy"`
	Log          logging.Config       `yaml:"log"`
	Metrics      metrics.Config       `yaml:"metrics"`
	Report       ReportConfig         `yaml:"report"`
	History      history.Config       `yaml:"history"`
	Notify       notify.Config        `yaml:"notify"`
	HostLayouts  []layout.Rule        `yaml:"host_layouts"`
	Destinations []upload.Destination `yaml:"destinations"`
}

type UploadConfig struct {
	MaxParallelUploads int  `yaml:"max_parallel_uploads"`
	TimeoutSeconds     int  `yaml:"timeout_seconds"`
	VerboseLogging     bool `yaml:"verbose_logging"`
	AutoVectors        bool `yaml:"auto_vectors"`
	StrictSecrets      bool `yaml:"strict_secrets"`
}

type ProxyConfig struct {
	Enabled              bool `yaml:"enabled"`
	upload.ProxySettings `yaml:",inline"`
}

type ReportConfig struct {
	Enabled        bool `yaml:"enabled"`
	storage.Config `yaml:",inline"`
	Compression    string `yaml:"compression"`
}

// Default returns the configuration used when a key is absent from the file.
func Default() Config {
	return Config{
		Upload: UploadConfig{
			MaxParallelUploads: 2,
			TimeoutSeconds:     10,
		},
		Log: logging.Config{
			Format: "text",
			Level:  "info",
		},
		Metrics: metrics.Config{
			Address: ":9090",
		},
		Report: ReportConfig{
			Config: storage.Config{
				Backend:  "local",
				LocalDir: "./reports",
			},
			Compression: "zstd",
		},
		Notify: notify.Config{
			BackupDir: "./notify-backup",
		},
	}
}

// Load reads the YAML file at path on top of Default and applies environment
// overrides. A missing file at DefaultPath is not an error.
func Load(path string) (Config, error) {
	log.Println("[config] loading")

	cfg := Default()

	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err) && path == DefaultPath:
		log.Printf("[config] %s not found, using defaults and environment", path)
	default:
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Upload.MaxParallelUploads = getenvInt("MAX_PARALLEL_UPLOADS", c.Upload.MaxParallelUploads)
	c.Upload.TimeoutSeconds = getenvInt("UPLOAD_TIMEOUT_SECONDS", c.Upload.TimeoutSeconds)
	if os.Getenv("VERBOSE_LOGGING") == "true" {
		c.Upload.VerboseLogging = true
	}

	c.Log.Level = getenvDefault("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getenvDefault("LOG_FORMAT", c.Log.Format)

	if addr := os.Getenv("METRICS_ADDR"); addr != "" {
		c.Metrics.Enabled = true
		c.Metrics.Address = addr
	}

	c.Report.Backend = getenvDefault("REPORT_BACKEND", c.Report.Backend)
	c.Report.LocalDir = getenvDefault("REPORT_DIR", c.Report.LocalDir)
	c.Report.Bucket = getenvDefault("REPORT_BUCKET", c.Report.Bucket)

	c.History.PostgresDSN = getenvDefault("HISTORY_DSN", c.History.PostgresDSN)

	if ep := os.Getenv("NOTIFY_ENDPOINT"); ep != "" {
		c.Notify.Enabled = true
		c.Notify.Endpoint = ep
	}
}

// Validate checks values that would otherwise fail later in the run.
func (c *Config) Validate() error {
	if c.Upload.MaxParallelUploads < 1 {
		return fmt.Errorf("upload.max_parallel_uploads must be >= 1, got %d", c.Upload.MaxParallelUploads)
	}
	if c.Upload.TimeoutSeconds < 0 {
		return fmt.Errorf("upload.timeout_seconds must be >= 0, got %d", c.Upload.TimeoutSeconds)
	}
	if c.Proxy.Enabled && c.Proxy.Address == "" {
		return errors.New("proxy.address required when proxy is enabled")
	}
	if _, err := layout.NewTable(layout.WithDefaults(c.HostLayouts)); err != nil {
		return fmt.Errorf("host_layouts: %w", err)
	}

	seen := make(map[string]bool, len(c.Destinations))
	for i, d := range c.Destinations {
		if d.Title == "" {
			return fmt.Errorf("destinations[%d]: title required", i)
		}
		key := strings.ToLower(d.Title)
		if seen[key] {
			return fmt.Errorf("destinations[%d]: duplicate title %q", i, d.Title)
		}
		seen[key] = true
	}
	return nil
}

// Settings returns the transfer settings shared by all destinations.
func (c *Config) Settings() upload.Settings {
	s := upload.Settings{
		UseProxy:           c.Proxy.Enabled,
		TimeoutSeconds:     c.Upload.TimeoutSeconds,
		MaxParallelUploads: c.Upload.MaxParallelUploads,
		VerboseLogging:     c.Upload.VerboseLogging,
	}
	if c.Proxy.Enabled {
		p := c.Proxy.ProxySettings
		s.Proxy = &p
	}
	return s
}

// LayoutTable returns the built-in host layouts extended by HostLayouts.
func (c *Config) LayoutTable() (*layout.Table, error) {
	return layout.NewTable(layout.WithDefaults(c.HostLayouts))
}

// SelectedDestinations returns the destinations named by titles in
// configuration order, or all of them when titles is empty. Titles match
// case-insensitively.
func (c *Config) SelectedDestinations(titles []string) ([]upload.Destination, error) {
	if len(c.Destinations) == 0 {
		return nil, ErrNoDestinations
	}
	if len(titles) == 0 {
		return append([]upload.Destination(nil), c.Destinations...), nil
	}

	want := make(map[string]bool, len(titles))
	for _, t := range titles {
		want[strings.ToLower(t)] = true
	}

	var out []upload.Destination
	for _, d := range c.Destinations {
		key := strings.ToLower(d.Title)
		if want[key] {
			out = append(out, d)
			delete(want, key)
		}
	}

	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for _, t := range titles {
			if want[strings.ToLower(t)] {
				missing = append(missing, t)
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownDestination, strings.Join(missing, ", "))
	}
	return out, nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return def
	}
	return parsed
}
