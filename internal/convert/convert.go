// Package convert drives a conversion level by level.
//
// Level 0 is binned from the sources into one arena plane per channel.
// Every level is tone mapped band by band on a pipeline.Coordinator and
// written to a Sink, as strips or as rows of tiles. For a pyramid each
// further level is a 2×2 reduction of the previous one, which is released
// as soon as its successor exists, so at most two levels are live.
package convert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ironsheep/skytiff/internal/arena"
	"github.com/ironsheep/skytiff/internal/binning"
	"github.com/ironsheep/skytiff/internal/errs"
	"github.com/ironsheep/skytiff/internal/logging"
	"github.com/ironsheep/skytiff/internal/pipeline"
	"github.com/ironsheep/skytiff/internal/tiler"
	"github.com/ironsheep/skytiff/internal/tone"
)

// Source is one input channel. Rows are read bottom-up, as FITS stores
// them.
type Source interface {
	binning.RowReader
	Seek(row int) error
}

// Sink receives the converted pixels. *tiff.Writer implements it.
type Sink interface {
	Channels() int
	BytesPerPixel() int
	// TileSize is the tile side, or 0 for a strip layout.
	TileSize() int
	// BufferRows is the band height of the current directory.
	BufferRows() int
	NewDirectory(width, height int) error
	WriteStrip(data []byte) error
	WriteTileRow(data []byte, tileRow int) error
}

// Options controls the geometry of the output.
type Options struct {
	BinX, BinY int
	// FlipX mirrors rows; FlipY keeps the FITS bottom-up row order.
	FlipX, FlipY bool
	// Pyramid adds halved levels while both halved sides stay at least
	// MinSize pixels.
	Pyramid bool
	MinSize int
	Workers int
}

// Size is the pixel size of one level.
type Size struct {
	Width  int
	Height int
}

// Level describes a written level.
type Level struct {
	Index   int
	Width   int
	Height  int
	Backing arena.Backing
	Elapsed time.Duration
}

// Plan returns the sizes of every level produced for a width×height source.
func Plan(width, height int, o Options) []Size {
	bx, by := max(1, o.BinX), max(1, o.BinY)
	s := Size{(width + bx - 1) / bx, (height + by - 1) / by}
	sizes := []Size{s}
	if !o.Pyramid {
		return sizes
	}
	for {
		w, h := binning.HalfSize(s.Width, s.Height)
		if w < o.MinSize || h < o.MinSize || w < 1 || h < 1 {
			return sizes
		}
		s = Size{w, h}
		sizes = append(sizes, s)
	}
}

// Estimate returns the uncompressed payload of sizes at bytesPerPixel.
func Estimate(sizes []Size, bytesPerPixel int) int64 {
	var n int64
	for _, s := range sizes {
		n += int64(s.Width) * int64(s.Height) * int64(bytesPerPixel)
	}
	return n
}

// Driver converts one set of sources into a sink.
type Driver struct {
	arena *arena.Arena
	conv  *tone.Converter
	sink  Sink
	opts  Options
	coord *pipeline.Coordinator
}

// New checks that conv and sink agree and prepares a driver.
func New(a *arena.Arena, conv *tone.Converter, sink Sink, opts Options) (*Driver, error) {
	if conv.Channels() != sink.Channels() || conv.BytesPerPixel() != sink.BytesPerPixel() {
		return nil, errs.Internal("convert", fmt.Errorf("%w: converter gives %d channels of %d bytes, sink takes %d of %d",
			errs.ErrDimensionMismatch, conv.Channels(), conv.BytesPerPixel(), sink.Channels(), sink.BytesPerPixel()))
	}
	if opts.BinX < 1 || opts.BinY < 1 {
		return nil, errs.Configf("invalid bin factors %dx%d", opts.BinX, opts.BinY)
	}
	return &Driver{
		arena: a,
		conv:  conv,
		sink:  sink,
		opts:  opts,
		coord: pipeline.New(opts.Workers),
	}, nil
}

// Run converts sources, one per channel, and returns the levels written.
// Every plane acquired is released before Run returns, on success or not.
func (d *Driver) Run(ctx context.Context, sources []Source) ([]Level, error) {
	if len(sources) != d.conv.Channels() {
		return nil, errs.Config("convert", fmt.Errorf("%w: %d sources for %d channels",
			errs.ErrChannelCount, len(sources), d.conv.Channels()))
	}
	w, h := sources[0].Width(), sources[0].Height()
	for _, s := range sources[1:] {
		if s.Width() != w || s.Height() != h {
			return nil, errs.Config("convert", fmt.Errorf("%w: %dx%d and %dx%d",
				errs.ErrDimensionMismatch, w, h, s.Width(), s.Height()))
		}
	}

	sizes := Plan(w, h, d.opts)
	cur, err := d.load(sources, sizes[0])
	if err != nil {
		return nil, err
	}
	defer func() {
		d.release(cur)
	}()

	levels := make([]Level, 0, len(sizes))
	for i, s := range sizes {
		if i > 0 {
			next, err := d.halve(cur, sizes[i-1])
			if err != nil {
				return levels, err
			}
			d.release(cur)
			cur = next
		}

		start := time.Now()
		if err := d.writeLevel(ctx, cur, s); err != nil {
			return levels, fmt.Errorf("level %d: %w", i, err)
		}
		lv := Level{Index: i, Width: s.Width, Height: s.Height, Backing: cur[0].Backing(), Elapsed: time.Since(start)}
		levels = append(levels, lv)
		logging.Logger().Info("level written", slog.Int("level", i),
			slog.Int("width", s.Width), slog.Int("height", s.Height),
			slog.String("backing", lv.Backing.String()), slog.Duration("elapsed", lv.Elapsed))
	}
	return levels, nil
}

// acquire allocates one plane per channel, releasing them all on failure.
func (d *Driver) acquire(s Size) ([]*arena.Plane, error) {
	planes := make([]*arena.Plane, 0, d.conv.Channels())
	for i := 0; i < d.conv.Channels(); i++ {
		p, err := d.arena.Acquire(s.Width * s.Height)
		if err != nil {
			d.release(planes)
			return nil, err
		}
		planes = append(planes, p)
	}
	return planes, nil
}

func (d *Driver) release(planes []*arena.Plane) {
	if err := d.arena.ReleaseAll(planes); err != nil {
		logging.Logger().Warn("releasing planes", slog.Any("error", err))
	}
}

// load bins every source into a level-0 plane stored top row first.
func (d *Driver) load(sources []Source, s Size) ([]*arena.Plane, error) {
	planes, err := d.acquire(s)
	if err != nil {
		return nil, err
	}
	for a, src := range sources {
		if err := src.Seek(0); err != nil {
			d.release(planes)
			return nil, err
		}
		r, err := binning.NewReducer(src, d.opts.BinX, d.opts.BinY, d.opts.FlipX)
		if err == nil {
			err = r.Fill(planes[a].Data(), !d.opts.FlipY)
		}
		if err != nil {
			d.release(planes)
			return nil, err
		}
		logging.Logger().Debug("channel loaded", slog.Int("channel", a),
			slog.Int("width", s.Width), slog.Int("height", s.Height))
	}
	return planes, nil
}

// halve reduces the planes of a level of size s into new planes.
func (d *Driver) halve(planes []*arena.Plane, s Size) ([]*arena.Plane, error) {
	w, h := binning.HalfSize(s.Width, s.Height)
	next, err := d.acquire(Size{w, h})
	if err != nil {
		return nil, err
	}
	for a, p := range planes {
		if _, _, err := binning.Halve(next[a].Data(), p.Data(), s.Width, s.Height); err != nil {
			d.release(next)
			return nil, err
		}
	}
	return next, nil
}

// writeLevel tone maps one level and hands it to the sink band by band.
func (d *Driver) writeLevel(ctx context.Context, planes []*arena.Plane, s Size) error {
	if err := d.sink.NewDirectory(s.Width, s.Height); err != nil {
		return err
	}
	bandRows := d.sink.BufferRows()
	tile := d.sink.TileSize()
	bpp := d.conv.BytesPerPixel()
	rowBytes := s.Width * bpp
	nbands := (s.Height + bandRows - 1) / bandRows

	data := make([][]float32, len(planes))
	for a, p := range planes {
		data[a] = p.Data()
	}
	views := make([][][]float32, d.coord.Workers())
	for i := range views {
		views[i] = make([][]float32, len(planes))
	}

	var tiles []byte
	if tile > 0 {
		tiles = make([]byte, tiler.Count(s.Width, tile)*tiler.TileBytes(tile, bpp))
	}

	rows := func(band int) int {
		return min(bandRows, s.Height-band*bandRows)
	}

	return d.coord.Run(ctx, pipeline.Job{
		Bands:   nbands,
		Rows:    rows,
		BufSize: bandRows * rowBytes,
		Work: func(worker, band, row int, out []byte) error {
			y := band*bandRows + row
			v := views[worker]
			for a := range v {
				v[a] = data[a][y*s.Width : (y+1)*s.Width]
			}
			d.conv.Convert(out[row*rowBytes:(row+1)*rowBytes], v, s.Width)
			return nil
		},
		Write: func(band int, out []byte) error {
			n := rows(band)
			if tile == 0 {
				return d.sink.WriteStrip(out[:n*rowBytes])
			}
			if _, err := tiler.ToTiles(tiles, out[:n*rowBytes], s.Width, n, tile, bpp); err != nil {
				return err
			}
			return d.sink.WriteTileRow(tiles, band)
		},
	})
}
