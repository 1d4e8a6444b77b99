// Package stream reads frames from a playable stream URL through OpenCV's
// FFmpeg backend.
package stream

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-traffic/pkg/geometry"
	"github.com/teslashibe/go-traffic/pkg/session"
)

// Frame is one decoded image. The consumer owns Mat and releases it with Close.
type Frame struct {
	Mat        gocv.Mat
	Seq        uint64 // 1-based within the stream
	CapturedAt time.Time
}

// Size returns the frame dimensions.
func (f *Frame) Size() geometry.Size {
	return geometry.Sz(f.Mat.Cols(), f.Mat.Rows())
}

// WriteJPEG encodes the frame to path. The format follows the extension.
func (f *Frame) WriteJPEG(path string) error {
	if f.Mat.Empty() {
		return fmt.Errorf("stream: empty frame")
	}
	if ok := gocv.IMWrite(path, f.Mat); !ok {
		return fmt.Errorf("stream: write %s failed", path)
	}
	return nil
}

// Close releases the pixel buffer.
func (f *Frame) Close() error {
	return f.Mat.Close()
}

// Config controls how streams are opened.
type Config struct {
	// API selects the OpenCV capture backend. FFmpeg handles HLS playlists.
	API gocv.VideoCaptureAPI `yaml:"-"`
	// BufferSize limits frames queued inside the backend so reads stay near live; 0 leaves the default.
	BufferSize int `yaml:"buffer_size"`
}

// DefaultConfig returns an FFmpeg-backed config with a one-frame buffer.
func DefaultConfig() Config {
	return Config{
		API:        gocv.VideoCaptureFFmpeg,
		BufferSize: 1,
	}
}

// Source opens VideoCapture streams. It implements session.Source[*Frame].
type Source struct {
	config Config
}

var _ session.Source[*Frame] = (*Source)(nil)

// NewSource creates a Source.
func NewSource(cfg Config) *Source {
	return &Source{config: cfg}
}

// Open connects to url. A capture that opens but reports no stream is an error.
func (s *Source) Open(ctx context.Context, url string) (session.Stream[*Frame], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vc, err := gocv.OpenVideoCaptureWithAPI(url, s.config.API)
	if err != nil {
		return nil, fmt.Errorf("stream: open: %w", err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("stream: capture not opened")
	}
	if s.config.BufferSize > 0 {
		vc.Set(gocv.VideoCaptureBufferSize, float64(s.config.BufferSize))
	}
	return &Capture{vc: vc}, nil
}

// Capture is one open stream.
type Capture struct {
	vc   *gocv.VideoCapture
	seq  uint64
	once sync.Once
}

// Next reads the next frame. A failed or empty read is reported as io.EOF.
func (c *Capture) Next() (*Frame, error) {
	mat := gocv.NewMat()
	if ok := c.vc.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, io.EOF
	}
	c.seq++
	return &Frame{Mat: mat, Seq: c.seq, CapturedAt: time.Now()}, nil
}

// Close releases the capture. It is safe to call more than once.
func (c *Capture) Close() error {
	var err error
	c.once.Do(func() {
		err = c.vc.Close()
	})
	return err
}
