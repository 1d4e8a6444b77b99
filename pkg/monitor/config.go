// Package monitor wires the traffic monitor together: token resolution, stream
// ingestion, detection, lane counting and the query server.
package monitor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-traffic/internal/config"
	"github.com/teslashibe/go-traffic/pkg/capture"
	"github.com/teslashibe/go-traffic/pkg/detection"
	"github.com/teslashibe/go-traffic/pkg/detection/yolo"
	"github.com/teslashibe/go-traffic/pkg/session"
	"github.com/teslashibe/go-traffic/pkg/stream"
	"github.com/teslashibe/go-traffic/pkg/token"
	"github.com/teslashibe/go-traffic/pkg/traffic"
	"github.com/teslashibe/go-traffic/pkg/web"
)

// ResolverKind selects how stream tokens are obtained.
type ResolverKind string

const (
	ResolverBrowser ResolverKind = "browser" // Headless Chrome, watches network requests
	ResolverPage    ResolverKind = "page"    // Plain HTTP fetch and scan of the page HTML
	ResolverStatic  ResolverKind = "static"  // Fixed StreamURL
)

// Config holds all configuration for the traffic monitor.
// Flag parsing is done in cmd/*/main.go; this struct is data only.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// DebugDetections logs the first box of every non-empty frame.
	DebugDetections bool `yaml:"debug_detections"`

	// Resolver picks the token source. StreamURL is required for ResolverStatic.
	Resolver  ResolverKind `yaml:"resolver"`
	StreamURL string       `yaml:"stream_url"`

	Detection detection.Config    `yaml:"detection"`
	Model     yolo.Config         `yaml:"model"`
	Lanes     traffic.Classifier  `yaml:"lanes"`
	Session   session.Config      `yaml:"session"`
	Browser   token.BrowserConfig `yaml:"browser"`
	Stream    stream.Config       `yaml:"stream"`
	Web       web.Config          `yaml:"web"`
	Capture   capture.Config      `yaml:"capture"`
}

// DefaultConfig returns the values the traffic server runs with.
func DefaultConfig() Config {
	return Config{
		LogLevel:  "info",
		Resolver:  ResolverBrowser,
		Detection: detection.DefaultConfig(),
		Model:     yolo.DefaultConfig(),
		Lanes:     traffic.DefaultClassifier(),
		Session:   session.DefaultConfig(),
		Browser:   token.DefaultBrowserConfig(),
		Stream:    stream.DefaultConfig(),
		Web:       web.DefaultConfig(),
		Capture:   capture.DefaultConfig(),
	}
}

// DebugConfig returns the stricter tuning used when eyeballing detections:
// higher confidence and the exclusion line moved down to 215.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Detection.ConfidenceThreshold = 0.5
	cfg.Detection.ExclusionLineY = 215
	cfg.DebugDetections = true
	cfg.LogLevel = "debug"
	return cfg
}

// LoadFile reads a YAML file over DefaultConfig. Unknown keys are errors.
func LoadFile(path string) (Config, error) {
	return LoadFileOver(DefaultConfig(), path)
}

// LoadFileOver reads a YAML file over base, so a preset such as DebugConfig
// survives for every key the file omits.
func LoadFileOver(base Config, path string) (Config, error) {
	cfg := base
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.decodeYAML(data); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// decodeYAML decodes data over c, keeping fields the document omits.
// An empty document leaves c unchanged.
func (c *Config) decodeYAML(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// LoadEnvConfig loads configuration values from environment variables.
// Call this after LoadFile and before flag overrides. Values that fail to
// parse leave the current setting in place and are reported together.
func (c *Config) LoadEnvConfig() error {
	c.Session.PageURL = config.String(config.EnvPageURL, c.Session.PageURL)
	c.Model.ModelPath = config.String(config.EnvModelPath, c.Model.ModelPath)
	c.Web.ListenAddr = config.String(config.EnvListenAddr, c.Web.ListenAddr)
	c.LogLevel = config.String(config.EnvLogLevel, c.LogLevel)

	// A fixed stream URL skips token resolution entirely
	if url := config.String(config.EnvStreamURL, ""); url != "" {
		c.StreamURL = url
		c.Resolver = ResolverStatic
	}

	var errs []error
	float := func(key string, dst *float64) {
		v, err := config.Float(key, *dst)
		errs = append(errs, err)
		*dst = v
	}
	duration := func(key string, dst *time.Duration) {
		v, err := config.Duration(key, *dst)
		errs = append(errs, err)
		*dst = v
	}
	integer := func(key string, dst *int) {
		v, err := config.Int(key, *dst)
		errs = append(errs, err)
		*dst = v
	}

	float(config.EnvConfidence, &c.Detection.ConfidenceThreshold)
	float(config.EnvIoU, &c.Detection.IoUThreshold)
	float(config.EnvExclusionLine, &c.Detection.ExclusionLineY)
	float(config.EnvXDivider, &c.Lanes.XDivider)
	float(config.EnvYDivider, &c.Lanes.YDivider)

	duration(config.EnvTokenTimeout, &c.Session.TokenTimeout)
	duration(config.EnvRetryInterval, &c.Session.RetryInterval)
	duration(config.EnvReconnectDelay, &c.Session.ReconnectDelay)

	integer(config.EnvCaptureBatch, &c.Capture.Batch)
	integer(config.EnvCaptureTotal, &c.Capture.Total)
	duration(config.EnvCaptureInterval, &c.Capture.Interval)

	if err := errors.Join(errs...); err != nil {
		return &ConfigError{Field: "env", Message: err.Error()}
	}
	return nil
}

// Validate checks the settings the monitor needs before it starts.
func (c *Config) Validate() error {
	switch c.Resolver {
	case ResolverBrowser, ResolverPage:
		if c.Session.PageURL == "" {
			return &ConfigError{Field: "Session.PageURL", Message: "page URL is required (set " + config.EnvPageURL + ")"}
		}
	case ResolverStatic:
		if c.StreamURL == "" {
			return &ConfigError{Field: "StreamURL", Message: "stream URL is required for the static resolver (set " + config.EnvStreamURL + ")"}
		}
	default:
		return &ConfigError{Field: "Resolver", Message: fmt.Sprintf("unknown resolver %q (browser, page, static)", c.Resolver)}
	}
	if err := c.Detection.Validate(); err != nil {
		return &ConfigError{Field: "Detection", Message: err.Error()}
	}
	if c.Model.ModelPath == "" {
		return &ConfigError{Field: "Model.ModelPath", Message: "model path is required (set " + config.EnvModelPath + ")"}
	}
	if c.Session.TokenTimeout < 0 || c.Session.RetryInterval < 0 || c.Session.ReconnectDelay < 0 {
		return &ConfigError{Field: "Session", Message: "durations must not be negative"}
	}
	if c.Web.ListenAddr == "" {
		return &ConfigError{Field: "Web.ListenAddr", Message: "listen address is required"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// NewResolver builds the token resolver named by cfg.Resolver.
func NewResolver(cfg Config) (session.TokenResolver, error) {
	switch cfg.Resolver {
	case ResolverBrowser:
		return token.NewBrowserResolver(cfg.Browser), nil
	case ResolverPage:
		r := token.NewPageResolver()
		r.Filter = cfg.Browser.Filter
		return r, nil
	case ResolverStatic:
		return token.StaticResolver{URL: cfg.StreamURL}, nil
	default:
		return nil, &ConfigError{Field: "Resolver", Message: fmt.Sprintf("unknown resolver %q", cfg.Resolver)}
	}
}
