// Package capture saves stream frames at a fixed interval to build a training
// dataset. A Capturer is a session.Handler that finishes with session.ErrDone.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/teslashibe/go-traffic/internal/log"
	"github.com/teslashibe/go-traffic/pkg/metrics"
	"github.com/teslashibe/go-traffic/pkg/session"
)

// Config controls where and how often frames are saved.
type Config struct {
	Dir      string        `yaml:"dir"`      // Root; images go to <Dir>/raw_images_batch_<Batch>
	Batch    int           `yaml:"batch"`    // Labels the folder and file names
	Interval time.Duration `yaml:"interval"` // Minimum spacing between saved frames
	Total    int           `yaml:"total"`    // Stop after this many images
}

// DefaultConfig saves 100 frames, one every 15 seconds, as batch 4.
func DefaultConfig() Config {
	return Config{
		Dir:      "dataset",
		Batch:    4,
		Interval: 15 * time.Second,
		Total:    100,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("capture: empty directory")
	}
	if c.Total <= 0 {
		return fmt.Errorf("capture: total must be positive, got %d", c.Total)
	}
	if c.Interval < 0 {
		return fmt.Errorf("capture: negative interval %s", c.Interval)
	}
	return nil
}

// Folder returns the batch directory.
func (c Config) Folder() string {
	return filepath.Join(c.Dir, fmt.Sprintf("raw_images_batch_%d", c.Batch))
}

// Path returns the file name of the n-th image (0-based).
func (c Config) Path(n int) string {
	return filepath.Join(c.Folder(), fmt.Sprintf("traffic_%d_%03d.jpg", c.Batch, n))
}

// Saver writes one frame to path.
type Saver[F any] interface {
	Save(path string, frame F) error
}

// SaverFunc adapts a function to Saver.
type SaverFunc[F any] func(path string, frame F) error

// Save implements Saver.
func (f SaverFunc[F]) Save(path string, frame F) error {
	return f(path, frame)
}

// Capturer saves every frame that arrives at least Interval after the previous save.
type Capturer[F any] struct {
	config  Config
	saver   Saver[F]
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	count int
	last  time.Time
}

var _ session.Handler[int] = (*Capturer[int])(nil)

// New creates the batch folder and returns a Capturer. m may be nil.
func New[F any](cfg Config, saver Saver[F], m *metrics.Metrics) (*Capturer[F], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Folder(), 0o755); err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	return &Capturer[F]{
		config:  cfg,
		saver:   saver,
		metrics: m,
		logger:  log.Component("capture"),
		now:     time.Now,
	}, nil
}

// Reset restarts the interval timer. Call it when a new stream connects so the
// first save waits a full interval.
func (c *Capturer[F]) Reset() {
	c.mu.Lock()
	c.last = c.now()
	c.mu.Unlock()
}

// Count returns how many images have been saved.
func (c *Capturer[F]) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// HandleFrame implements session.Handler.
func (c *Capturer[F]) HandleFrame(_ context.Context, frame F) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count >= c.config.Total {
		return session.ErrDone
	}

	now := c.now()
	if c.last.IsZero() {
		c.last = now
	}
	if now.Sub(c.last) <= c.config.Interval {
		return nil
	}

	path := c.config.Path(c.count)
	if err := c.saver.Save(path, frame); err != nil {
		return fmt.Errorf("capture: save %s: %w", path, err)
	}
	c.count++
	c.last = now
	if c.metrics != nil {
		c.metrics.ImagesSaved.Add(1)
	}
	c.logger.Info("saved frame", "path", path, "progress", fmt.Sprintf("%d/%d", c.count, c.config.Total))

	if c.count >= c.config.Total {
		c.logger.Info("dataset complete", "folder", c.config.Folder())
		return session.ErrDone
	}
	return nil
}
