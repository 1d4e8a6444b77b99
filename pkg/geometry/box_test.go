package geometry

import (
	"math"
	"testing"
)

func TestBox_IoU(t *testing.T) {
	tests := []struct {
		name string
		a, b Box
		want float64
	}{
		{
			name: "identical",
			a:    Box{0, 0, 10, 10},
			b:    Box{0, 0, 10, 10},
			want: 1,
		},
		{
			name: "disjoint",
			a:    Box{0, 0, 10, 10},
			b:    Box{20, 20, 30, 30},
			want: 0,
		},
		{
			name: "touching edges",
			a:    Box{0, 0, 10, 10},
			b:    Box{10, 0, 20, 10},
			want: 0,
		},
		{
			name: "half overlap",
			a:    Box{0, 0, 10, 10},
			b:    Box{5, 0, 15, 10},
			want: 50.0 / 150.0,
		},
		{
			name: "contained",
			a:    Box{0, 0, 10, 10},
			b:    Box{0, 0, 5, 5},
			want: 0.25,
		},
		{
			name: "degenerate",
			a:    Box{0, 0, 0, 0},
			b:    Box{0, 0, 0, 0},
			want: 0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.a.IoU(tc.b)
			if math.Abs(got-tc.want) > 1e-12 {
				t.Errorf("IoU: got %v, want %v", got, tc.want)
			}
			if rev := tc.b.IoU(tc.a); math.Abs(rev-got) > 1e-12 {
				t.Errorf("IoU not symmetric: %v vs %v", got, rev)
			}
		})
	}
}

func TestBox_Center(t *testing.T) {
	c := Box{X1: 100, Y1: 100, X2: 200, Y2: 200}.Center()
	if c.X != 150 || c.Y != 150 {
		t.Errorf("Center: got %+v, want {150 150}", c)
	}
}

func TestBoxFromCenter(t *testing.T) {
	b := BoxFromCenter(50, 40, 20, 10)
	want := Box{X1: 40, Y1: 35, X2: 60, Y2: 45}
	if b != want {
		t.Errorf("BoxFromCenter: got %+v, want %+v", b, want)
	}
}

func TestBox_InvertedHasNoArea(t *testing.T) {
	b := Box{X1: 10, Y1: 10, X2: 5, Y2: 20}
	if b.Area() != 0 {
		t.Errorf("Area of inverted box: got %v, want 0", b.Area())
	}
}
