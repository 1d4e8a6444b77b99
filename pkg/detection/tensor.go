package detection

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Tensor is the raw 2-D detector output for one frame.
// The model may emit [candidates, attrs] or [attrs, candidates]; call Normalize
// before reading rows as candidates.
type Tensor struct {
	rows, cols int
	m          *mat.Dense // nil when rows or cols is zero
}

// NewTensor wraps row-major data. len(data) must equal rows*cols.
func NewTensor(rows, cols int, data []float64) (Tensor, error) {
	if rows < 0 || cols < 0 {
		return Tensor{}, fmt.Errorf("%w: negative shape [%d %d]", ErrMalformedTensor, rows, cols)
	}
	if len(data) != rows*cols {
		return Tensor{}, fmt.Errorf("%w: shape [%d %d] needs %d values, got %d",
			ErrMalformedTensor, rows, cols, rows*cols, len(data))
	}
	if rows == 0 || cols == 0 {
		return Tensor{rows: rows, cols: cols}, nil
	}
	return Tensor{rows: rows, cols: cols, m: mat.NewDense(rows, cols, data)}, nil
}

// NewTensorFloat32 copies float32 model output into a Tensor.
func NewTensorFloat32(rows, cols int, data []float32) (Tensor, error) {
	buf := make([]float64, len(data))
	for i, v := range data {
		buf[i] = float64(v)
	}
	return NewTensor(rows, cols, buf)
}

// Dims returns the tensor shape.
func (t Tensor) Dims() (rows, cols int) {
	return t.rows, t.cols
}

// Empty reports whether the tensor holds no values.
func (t Tensor) Empty() bool {
	return t.m == nil
}

// At returns the value at row i, column j.
func (t Tensor) At(i, j int) float64 {
	return t.m.At(i, j)
}

// Row returns a copy of row i.
func (t Tensor) Row(i int) []float64 {
	return mat.Row(nil, i, t.m)
}

// T returns the transposed tensor as a new dense copy.
func (t Tensor) T() Tensor {
	if t.m == nil {
		return Tensor{rows: t.cols, cols: t.rows}
	}
	return Tensor{rows: t.cols, cols: t.rows, m: mat.DenseCopyOf(t.m.T())}
}

// Normalize returns the tensor with one candidate per row.
// A tensor with fewer rows than columns is assumed to be attribute-major and is transposed.
func (t Tensor) Normalize() Tensor {
	if t.rows < t.cols {
		return t.T()
	}
	return t
}

// ColumnMax returns the largest value in column j. Empty tensors return -Inf.
func (t Tensor) ColumnMax(j int) float64 {
	if t.m == nil || j >= t.cols {
		return math.Inf(-1)
	}
	return floats.Max(mat.Col(nil, j, t.m))
}

// Finite reports whether every value is a finite number.
func (t Tensor) Finite() bool {
	if t.m == nil {
		return true
	}
	for i := 0; i < t.rows; i++ {
		row := t.m.RawRowView(i)
		if floats.HasNaN(row) {
			return false
		}
		for _, v := range row {
			if math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
