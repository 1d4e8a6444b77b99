// Package yolo runs a YOLO export through OpenCV dnn. It is the only part of
// detection that needs cgo; decoding lives in the parent package.
package yolo

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-traffic/pkg/detection"
	"github.com/teslashibe/go-traffic/pkg/geometry"
)

// PadColor fills the letterbox borders (the gray YOLO models are trained with).
var PadColor = color.RGBA{R: 114, G: 114, B: 114, A: 0}

// Config holds model loading configuration
type Config struct {
	ModelPath   string `yaml:"model_path"`
	InputWidth  int    `yaml:"input_width"`
	InputHeight int    `yaml:"input_height"`
}

// DefaultConfig returns defaults for the traffic model export
func DefaultConfig() Config {
	return Config{
		ModelPath:   "models/detect_traffic_s.onnx",
		InputWidth:  640,
		InputHeight: 640,
	}
}

// Detector runs a YOLO export (ONNX or TFLite) through OpenCV dnn
// and returns the raw output tensor.
type Detector struct {
	net    gocv.Net
	config Config
	mu     sync.Mutex
	canvas geometry.Size
}

// New loads the model. A missing or unreadable model is fatal for the caller.
func New(cfg Config) (*Detector, error) {
	if cfg.InputWidth <= 0 || cfg.InputHeight <= 0 {
		return nil, fmt.Errorf("invalid model input size %dx%d", cfg.InputWidth, cfg.InputHeight)
	}

	// Check if model file exists
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s: %w", cfg.ModelPath, err)
	}

	// ReadNet picks the importer from the file extension
	net := gocv.ReadNet(cfg.ModelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("failed to load YOLO model from %s", cfg.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &Detector{
		net:    net,
		config: cfg,
		canvas: geometry.Sz(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// Canvas returns the model input size.
func (d *Detector) Canvas() geometry.Size {
	return d.canvas
}

// Infer letterboxes the frame onto the model canvas, runs a forward pass and returns
// the output tensor together with the letterbox needed to map boxes back.
// The frame itself is not modified.
func (d *Detector) Infer(frame gocv.Mat) (detection.Tensor, geometry.Letterbox, error) {
	if frame.Empty() {
		return detection.Tensor{}, geometry.Letterbox{}, fmt.Errorf("%w: empty frame", geometry.ErrInvalidFrame)
	}

	lb, err := geometry.Forward(geometry.Sz(frame.Cols(), frame.Rows()), d.canvas)
	if err != nil {
		return detection.Tensor{}, geometry.Letterbox{}, err
	}

	input := letterbox(frame, lb)
	defer input.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	// Scale to 0-1 and swap BGR to RGB; the canvas already has the model's size
	blob := gocv.BlobFromImage(input, 1.0/255.0, image.Pt(d.canvas.W, d.canvas.H), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	t, err := tensorFromOutput(output)
	if err != nil {
		return detection.Tensor{}, lb, err
	}
	return t, lb, nil
}

// letterbox resizes src and pads it to lb.Target. The result is always a new Mat.
func letterbox(src gocv.Mat, lb geometry.Letterbox) gocv.Mat {
	resized := gocv.NewMat()
	if lb.Resized != lb.Source {
		gocv.Resize(src, &resized, image.Pt(lb.Resized.W, lb.Resized.H), 0, 0, gocv.InterpolationLinear)
	} else {
		src.CopyTo(&resized)
	}
	if lb.Top == 0 && lb.Bottom == 0 && lb.Left == 0 && lb.Right == 0 {
		return resized
	}
	defer resized.Close()

	padded := gocv.NewMat()
	gocv.CopyMakeBorder(resized, &padded, lb.Top, lb.Bottom, lb.Left, lb.Right, gocv.BorderConstant, PadColor)
	return padded
}

// tensorFromOutput copies a [1, A, N] (or [A, N]) float output into a Tensor.
func tensorFromOutput(output gocv.Mat) (detection.Tensor, error) {
	dims := output.Size()
	if len(dims) == 3 && dims[0] == 1 {
		dims = dims[1:]
	}
	if len(dims) != 2 {
		return detection.Tensor{}, fmt.Errorf("%w: unexpected output shape %v", detection.ErrMalformedTensor, output.Size())
	}

	data, err := output.DataPtrFloat32()
	if err != nil {
		return detection.Tensor{}, fmt.Errorf("%w: %v", detection.ErrMalformedTensor, err)
	}
	if len(data) < dims[0]*dims[1] {
		return detection.Tensor{}, fmt.Errorf("%w: output has %d values for shape %v", detection.ErrMalformedTensor, len(data), dims)
	}

	// NewTensorFloat32 copies, so the Mat can be closed afterwards
	return detection.NewTensorFloat32(dims[0], dims[1], data[:dims[0]*dims[1]])
}

// Close releases the detector resources
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.net.Close()
	return nil
}
