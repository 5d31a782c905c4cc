// Package tiff streams pixel data into TIFF and BigTIFF files.
//
// A Writer holds one open file. Every call to NewDirectory starts a new
// image file directory (IFD) whose pixel data is then appended band by band
// with WriteStrip or WriteTileRow. Directory tables are written after their
// data once the next directory starts or the file is closed, so nothing
// needs to be buffered beyond a single strip or tile. Byte order is little
// endian.
package tiff

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ironsheep/skytiff/internal/errs"
	"github.com/ironsheep/skytiff/internal/logging"
)

// Compression selects the strip/tile codec.
type Compression int

const (
	NoCompression Compression = iota
	Deflate
)

// ParseCompression accepts the COMPRESSION_TYPE keywords NONE and DEFLATE.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NONE", "":
		return NoCompression, nil
	case "DEFLATE", "ZIP":
		return Deflate, nil
	default:
		return NoCompression, fmt.Errorf("unknown compression %q", s)
	}
}

func (c Compression) String() string {
	if c == Deflate {
		return "DEFLATE"
	}
	return "NONE"
}

// BigMode decides between classic TIFF and BigTIFF.
type BigMode int

const (
	// BigAuto switches to BigTIFF when the estimated size needs it.
	BigAuto BigMode = iota
	BigNever
	BigAlways
)

// ParseBigMode accepts the BIGTIFF_TYPE keywords AUTO, NEVER and ALWAYS.
func ParseBigMode(s string) (BigMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "AUTO", "":
		return BigAuto, nil
	case "NEVER", "N":
		return BigNever, nil
	case "ALWAYS", "Y":
		return BigAlways, nil
	default:
		return BigAuto, fmt.Errorf("unknown BigTIFF mode %q", s)
	}
}

func (m BigMode) String() string {
	switch m {
	case BigNever:
		return "NEVER"
	case BigAlways:
		return "ALWAYS"
	default:
		return "AUTO"
	}
}

// classicLimit leaves room for directory tables below 4 GiB.
const classicLimit = 1<<32 - 1<<24

// stripTarget is the preferred uncompressed strip size.
const stripTarget = 64 * 1024

// Options describes the file layout.
type Options struct {
	// Channels is 1 (grey) or 3 (RGB).
	Channels int
	// Bits is 8, 16 or 32 bits per sample.
	Bits int
	// Float marks 32-bit IEEE samples.
	Float bool
	// TileSize selects a tiled layout; 0 writes strips.
	TileSize    int
	Compression Compression
	Big         BigMode
	// EstimatedSize is the expected uncompressed pixel payload, used by
	// BigAuto.
	EstimatedSize int64

	Software    string
	Description string
	Copyright   string
}

func (o Options) validate() error {
	if o.Channels != 1 && o.Channels != 3 {
		return errs.Config("tiff", fmt.Errorf("%w: got %d", errs.ErrChannelCount, o.Channels))
	}
	switch {
	case o.Float && o.Bits == 32:
	case !o.Float && (o.Bits == 8 || o.Bits == 16):
	default:
		return errs.Config("tiff", fmt.Errorf("%w: %d-bit samples (float=%v)", errs.ErrUnsupportedFormat, o.Bits, o.Float))
	}
	if o.TileSize < 0 || o.TileSize%16 != 0 {
		return errs.Configf("tile size %d must be a multiple of 16", o.TileSize)
	}
	return nil
}

// Writer streams directories into one TIFF file.
type Writer struct {
	path string
	opts Options
	big  bool

	f   *os.File
	buf *bufio.Writer
	off int64
	// link is the file offset of the pointer to the next directory.
	link int64

	enc  *encoder
	dir  *directory
	ndir int
	err  error
}

// directory tracks the data of the IFD being written.
type directory struct {
	width, height int
	rowsPerStrip  int
	rows          int
	tileRows      int
	offsets       []uint64
	counts        []uint64
}

// Create opens path for writing and emits the file header.
func Create(path string, opts Options) (*Writer, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errs.IO("create", path, err)
	}

	w := &Writer{
		path: path,
		opts: opts,
		f:    f,
		buf:  bufio.NewWriterSize(f, 1<<20),
		enc:  newEncoder(opts.Compression),
	}
	switch opts.Big {
	case BigAlways:
		w.big = true
	case BigAuto:
		w.big = opts.EstimatedSize > classicLimit
	}

	if w.big {
		// "II", 43, offset size 8, reserved, first IFD offset.
		w.link = 8
		err = w.write([]byte{'I', 'I', 43, 0, 8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	} else {
		w.link = 4
		err = w.write([]byte{'I', 'I', 42, 0, 0, 0, 0, 0})
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	logging.Logger().Debug("tiff created", slog.String("path", path), slog.Bool("bigtiff", w.big),
		slog.Int("tile", opts.TileSize), slog.String("compression", opts.Compression.String()))
	return w, nil
}

// Path returns the file name.
func (w *Writer) Path() string { return w.path }

// BigTIFF reports whether the file uses 64-bit offsets.
func (w *Writer) BigTIFF() bool { return w.big }

// Channels returns the samples per pixel.
func (w *Writer) Channels() int { return w.opts.Channels }

// BytesPerPixel returns the size of one pixel.
func (w *Writer) BytesPerPixel() int { return w.opts.Channels * w.opts.Bits / 8 }

// TileSize returns the tile side, or 0 for strips.
func (w *Writer) TileSize() int { return w.opts.TileSize }

// Directories returns how many directories have been started.
func (w *Writer) Directories() int { return w.ndir }

// BufferRows returns how many rows a caller should pass per write call:
// the tile height, or the rows per strip of the current directory.
func (w *Writer) BufferRows() int {
	if w.opts.TileSize > 0 {
		return w.opts.TileSize
	}
	if w.dir != nil {
		return w.dir.rowsPerStrip
	}
	return 1
}

// NewDirectory finishes the current directory, if any, and starts one of
// width×height pixels. Directories after the first are flagged as reduced
// resolution images.
func (w *Writer) NewDirectory(width, height int) error {
	if w.err != nil {
		return w.err
	}
	if width < 1 || height < 1 {
		return errs.Internal("tiff", fmt.Errorf("%w: directory %dx%d", errs.ErrDimensionMismatch, width, height))
	}
	if w.dir != nil {
		if err := w.finishDirectory(); err != nil {
			return err
		}
	}

	d := &directory{width: width, height: height}
	if t := w.opts.TileSize; t > 0 {
		d.tileRows = (height + t - 1) / t
	} else {
		rowBytes := width * w.BytesPerPixel()
		d.rowsPerStrip = max(1, min(height, stripTarget/rowBytes))
	}
	w.dir = d
	w.ndir++
	return nil
}

// WriteStrip appends rows of a strip layout. data holds whole rows, at most
// BufferRows of them.
func (w *Writer) WriteStrip(data []byte) error {
	d, err := w.current()
	if err != nil {
		return err
	}
	if w.opts.TileSize > 0 {
		return errs.Internal("tiff", fmt.Errorf("strip written to tiled file %s", w.path))
	}
	rowBytes := d.width * w.BytesPerPixel()
	rows := len(data) / rowBytes
	if rows*rowBytes != len(data) || rows < 1 || rows > d.rowsPerStrip || d.rows+rows > d.height {
		return errs.Internal("tiff", fmt.Errorf("%w: %d bytes at row %d of %dx%d",
			errs.ErrDimensionMismatch, len(data), d.rows, d.width, d.height))
	}
	if err := w.chunk(d, data); err != nil {
		return err
	}
	d.rows += rows
	return nil
}

// WriteTileRow appends one row of tiles. tileRow must follow the previous
// one; data holds the tiles left to right, each TileSize² pixels.
func (w *Writer) WriteTileRow(data []byte, tileRow int) error {
	d, err := w.current()
	if err != nil {
		return err
	}
	t := w.opts.TileSize
	if t == 0 {
		return errs.Internal("tiff", fmt.Errorf("tile row written to striped file %s", w.path))
	}
	if tileRow != len(d.offsets)/w.tilesAcross(d) || tileRow >= d.tileRows {
		return errs.Internal("tiff", fmt.Errorf("tile row %d out of order in %s", tileRow, w.path))
	}
	tb := t * t * w.BytesPerPixel()
	n := w.tilesAcross(d)
	if len(data) != n*tb {
		return errs.Internal("tiff", fmt.Errorf("%w: tile row of %d bytes, want %d",
			errs.ErrDimensionMismatch, len(data), n*tb))
	}
	for i := 0; i < n; i++ {
		if err := w.chunk(d, data[i*tb:(i+1)*tb]); err != nil {
			return err
		}
	}
	d.rows = min(d.height, (tileRow+1)*t)
	return nil
}

// Close writes the last directory table and closes the file.
func (w *Writer) Close() error {
	if w.f == nil {
		return errs.Internal("tiff", fmt.Errorf("%w: %s", errs.ErrClosed, w.path))
	}
	err := w.err
	if err == nil && w.dir != nil {
		err = w.finishDirectory()
	}
	if err == nil {
		if ferr := w.buf.Flush(); ferr != nil {
			err = errs.IO("write", w.path, ferr)
		}
	}
	if cerr := w.f.Close(); cerr != nil && err == nil {
		err = errs.IO("close", w.path, cerr)
	}
	w.f = nil
	return err
}

func (w *Writer) current() (*directory, error) {
	if w.err != nil {
		return nil, w.err
	}
	if w.f == nil {
		return nil, errs.Internal("tiff", fmt.Errorf("%w: %s", errs.ErrClosed, w.path))
	}
	if w.dir == nil {
		return nil, errs.Internal("tiff", fmt.Errorf("no directory started in %s", w.path))
	}
	return w.dir, nil
}

func (w *Writer) tilesAcross(d *directory) int {
	return (d.width + w.opts.TileSize - 1) / w.opts.TileSize
}

// chunk compresses and appends one strip or tile.
func (w *Writer) chunk(d *directory, data []byte) error {
	payload, err := w.enc.encode(data)
	if err != nil {
		return w.fail(errs.Internal("tiff", fmt.Errorf("compress: %w", err)))
	}
	d.offsets = append(d.offsets, uint64(w.off))
	d.counts = append(d.counts, uint64(len(payload)))
	return w.write(payload)
}

func (w *Writer) write(p []byte) error {
	n, err := w.buf.Write(p)
	w.off += int64(n)
	if err != nil {
		return w.fail(errs.IO("write", w.path, err))
	}
	if !w.big && w.off > 1<<32-1 {
		return w.fail(errs.IO("write", w.path,
			fmt.Errorf("%w: classic TIFF exceeds 4 GiB, enable BigTIFF", errs.ErrUnsupportedFormat)))
	}
	return nil
}

// fail records the first error; the writer refuses further work after it.
func (w *Writer) fail(err error) error {
	if w.err == nil {
		w.err = err
	}
	return w.err
}

// finishDirectory checks the current directory is complete, writes its
// table and links it from the previous one.
func (w *Writer) finishDirectory() error {
	d := w.dir
	if d.rows != d.height {
		return w.fail(errs.Internal("tiff", fmt.Errorf("%w: directory %d of %s has %d of %d rows",
			errs.ErrShortRead, w.ndir, w.path, d.rows, d.height)))
	}

	if w.off%2 == 1 {
		if err := w.write([]byte{0}); err != nil {
			return err
		}
	}
	start := w.off
	table, next := w.encodeDirectory(d, start)
	if err := w.write(table); err != nil {
		return err
	}

	// Patch the link to this directory.
	if err := w.buf.Flush(); err != nil {
		return w.fail(errs.IO("write", w.path, err))
	}
	var ptr []byte
	if w.big {
		ptr = le64(uint64(start))
	} else {
		ptr = le32(uint32(start))
	}
	if _, err := w.f.WriteAt(ptr, w.link); err != nil {
		return w.fail(errs.IO("write", w.path, err))
	}
	w.link = next
	w.dir = nil
	logging.Logger().Debug("tiff directory written", slog.String("path", w.path),
		slog.Int("width", d.width), slog.Int("height", d.height), slog.Int("chunks", len(d.offsets)))
	return nil
}
