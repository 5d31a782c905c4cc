// Package binning averages blocks of source samples into reduced planes.
//
// A Reducer streams rows from a RowReader and emits one reduced row per
// call. Edge bins that extend past the source are divided by the number of
// samples they actually cover, so a constant plane stays constant at every
// bin factor. Pyramid levels reuse the same Reducer with a 2×2 bin over a
// PlaneRows view of the previous level.
package binning

import (
	"fmt"

	"github.com/ironsheep/skytiff/internal/errs"
)

// RowReader supplies consecutive rows of one plane.
type RowReader interface {
	Width() int
	Height() int
	// ReadRows copies the next n rows into dst, which holds at least
	// n*Width() samples.
	ReadRows(dst []float32, n int) error
}

// Reducer bins a RowReader by integer factors.
type Reducer struct {
	src    RowReader
	binX   int
	binY   int
	flipX  bool
	width  int
	height int
	row    int
	in     []float32
	acc    []float64
}

// NewReducer prepares a reduction of src by binX×binY. The reduced plane is
// ceil(width/binX) × ceil(height/binY). flipX mirrors every output row.
func NewReducer(src RowReader, binX, binY int, flipX bool) (*Reducer, error) {
	if binX < 1 || binY < 1 {
		return nil, errs.Configf("invalid bin factors %dx%d", binX, binY)
	}
	w, h := src.Width(), src.Height()
	if w < 1 || h < 1 {
		return nil, errs.Config("binning", fmt.Errorf("%w: empty source %dx%d", errs.ErrDimensionMismatch, w, h))
	}
	rw := (w + binX - 1) / binX
	return &Reducer{
		src:    src,
		binX:   binX,
		binY:   binY,
		flipX:  flipX,
		width:  rw,
		height: (h + binY - 1) / binY,
		in:     make([]float32, binY*w),
		acc:    make([]float64, rw),
	}, nil
}

// Width returns the reduced row length.
func (r *Reducer) Width() int { return r.width }

// Height returns the number of reduced rows.
func (r *Reducer) Height() int { return r.height }

// Remaining returns how many reduced rows Next can still produce.
func (r *Reducer) Remaining() int { return r.height - r.row }

// Next reads the source rows of the following bin and writes one reduced
// row into dst[:Width()].
func (r *Reducer) Next(dst []float32) error {
	if r.row >= r.height {
		return errs.Internal("binning", fmt.Errorf("%w: all %d rows already produced", errs.ErrShortRead, r.height))
	}
	sw := r.src.Width()
	ny := r.binY
	if rest := r.src.Height() - r.row*r.binY; rest < ny {
		ny = rest
	}
	if err := r.src.ReadRows(r.in[:ny*sw], ny); err != nil {
		return err
	}

	clear(r.acc)
	for y := 0; y < ny; y++ {
		line := r.in[y*sw : (y+1)*sw]
		for x, v := range line {
			r.acc[x/r.binX] += float64(v)
		}
	}

	last := r.width - 1
	for ox, sum := range r.acc {
		nx := r.binX
		if rest := sw - ox*r.binX; rest < nx {
			nx = rest
		}
		v := float32(sum / float64(nx*ny))
		if r.flipX {
			dst[last-ox] = v
		} else {
			dst[ox] = v
		}
	}
	r.row++
	return nil
}

// Fill reduces the whole source into plane, Width()*Height() samples laid
// out row after row. flipY stores the rows bottom-up.
func (r *Reducer) Fill(plane []float32, flipY bool) error {
	w := r.width
	if len(plane) < w*r.Remaining() {
		return errs.Internal("binning", fmt.Errorf("%w: plane holds %d samples, need %d",
			errs.ErrDimensionMismatch, len(plane), w*r.Remaining()))
	}
	for r.row < r.height {
		y := r.row
		if flipY {
			y = r.height - 1 - y
		}
		if err := r.Next(plane[y*w : (y+1)*w]); err != nil {
			return err
		}
	}
	return nil
}
