package binning

import (
	"fmt"

	"github.com/ironsheep/skytiff/internal/errs"
)

// PlaneRows reads rows from an in-memory plane. It satisfies RowReader.
type PlaneRows struct {
	data   []float32
	stride int
	width  int
	height int
	row    int
}

// NewPlaneRows views the top-left width×height window of a plane whose
// rows are stride samples apart.
func NewPlaneRows(data []float32, stride, width, height int) *PlaneRows {
	return &PlaneRows{data: data, stride: stride, width: width, height: height}
}

func (p *PlaneRows) Width() int  { return p.width }
func (p *PlaneRows) Height() int { return p.height }

func (p *PlaneRows) ReadRows(dst []float32, n int) error {
	if p.row+n > p.height {
		return errs.Internal("plane rows", fmt.Errorf("%w: rows %d..%d of %d",
			errs.ErrShortRead, p.row, p.row+n, p.height))
	}
	for i := 0; i < n; i++ {
		start := (p.row + i) * p.stride
		copy(dst[i*p.width:(i+1)*p.width], p.data[start:start+p.width])
	}
	p.row += n
	return nil
}

// HalfSize returns the dimensions of the next pyramid level.
func HalfSize(w, h int) (int, int) {
	return w / 2, h / 2
}

// Halve bins a w×h plane 2×2 into dst, which must hold (w/2)*(h/2)
// samples. An odd last column or row is dropped.
func Halve(dst, src []float32, w, h int) (int, int, error) {
	nw, nh := HalfSize(w, h)
	if nw < 1 || nh < 1 {
		return 0, 0, errs.Internal("halve", fmt.Errorf("%w: %dx%d is too small", errs.ErrDimensionMismatch, w, h))
	}
	r, err := NewReducer(NewPlaneRows(src, w, 2*nw, 2*nh), 2, 2, false)
	if err != nil {
		return 0, 0, err
	}
	if err := r.Fill(dst, false); err != nil {
		return 0, 0, err
	}
	return nw, nh, nil
}
