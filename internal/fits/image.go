// Package fits reads two-dimensional images from FITS files.
//
// Only what a converter needs is implemented: header keywords, extension
// lookup by index or EXTNAME, and row or random access to the first plane
// of an image, scaled by BSCALE and BZERO into float32 samples.
package fits

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ironsheep/skytiff/internal/errs"
	"github.com/ironsheep/skytiff/internal/logging"
)

// Image is one image HDU opened for reading. It is safe for concurrent
// ReadPixels calls; Seek and ReadRows share a cursor.
type Image struct {
	Header *Header
	// Bitpix is the sample type: 8, 16, 32, 64, -32 or -64.
	Bitpix int
	Bscale float64
	Bzero  float64
	// Ext is the HDU index, 0 for the primary.
	Ext int

	path   string
	f      *os.File
	width  int
	height int
	data   int64
	row    int
}

// Open opens name, which may select an extension with a suffix such as
// "image.fits[2]" or "image.fits[SCI]". Without a suffix the first HDU
// holding an image is used.
func Open(name string) (*Image, error) {
	path, sel := splitExtension(name)
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.IO("open", path, err)
	}
	im, err := findImage(f, path, sel)
	if err != nil {
		f.Close()
		return nil, err
	}
	logging.Logger().Debug("fits image opened", slog.String("path", path), slog.Int("ext", im.Ext),
		slog.Int("width", im.width), slog.Int("height", im.height), slog.Int("bitpix", im.Bitpix))
	return im, nil
}

func splitExtension(name string) (string, string) {
	if strings.HasSuffix(name, "]") {
		if i := strings.LastIndexByte(name, '['); i > 0 {
			return name[:i], name[i+1 : len(name)-1]
		}
	}
	return name, ""
}

// findImage walks HDUs until the selected one.
func findImage(f *os.File, path, sel string) (*Image, error) {
	want := -1
	if sel != "" {
		if n, err := strconv.Atoi(sel); err == nil {
			want = n
		}
	}

	var off int64
	for ext := 0; ; ext++ {
		h, err := readHeader(f, off)
		if err != nil {
			if errors.Is(err, io.EOF) && ext > 0 {
				return nil, errs.Config("fits", fmt.Errorf("%s: no image extension %q", path, sel))
			}
			return nil, errs.IO("read header", path, err)
		}
		size, err := dataSize(h)
		if err != nil {
			return nil, errs.Config("fits", fmt.Errorf("%s[%d]: %w", path, ext, err))
		}
		naxis, _ := h.Int("NAXIS")
		name, _ := h.Value("EXTNAME")

		var match bool
		switch {
		case want >= 0:
			match = ext == want
		case sel != "":
			match = strings.EqualFold(name, sel)
		default:
			match = naxis >= 2
		}
		if match {
			return newImage(f, path, ext, h, off+h.Length)
		}
		off += h.Length + (size+blockSize-1)/blockSize*blockSize
	}
}

func readHeader(f *os.File, off int64) (*Header, error) {
	h := newHeader()
	block := make([]byte, blockSize)
	for {
		n, err := f.ReadAt(block, off+h.Length)
		if n < blockSize {
			if err == nil || errors.Is(err, io.EOF) {
				if h.Length == 0 && n == 0 {
					return nil, io.EOF
				}
				return nil, fmt.Errorf("%w: truncated header", errs.ErrShortRead)
			}
			return nil, err
		}
		h.Length += blockSize
		end, err := h.parseBlock(block)
		if err != nil {
			return nil, err
		}
		if end {
			return h, nil
		}
	}
}

// dataSize returns the byte size of the data unit described by h.
func dataSize(h *Header) (int64, error) {
	bitpix, ok := h.Int("BITPIX")
	if !ok {
		return 0, fmt.Errorf("missing BITPIX")
	}
	naxis, _ := h.Int("NAXIS")
	if naxis == 0 {
		return 0, nil
	}
	n := int64(1)
	for i := 1; i <= int(naxis); i++ {
		v, ok := h.Int("NAXIS" + strconv.Itoa(i))
		if !ok || v < 0 {
			return 0, fmt.Errorf("bad NAXIS%d", i)
		}
		n *= v
	}
	gcount, ok := h.Int("GCOUNT")
	if !ok {
		gcount = 1
	}
	pcount, _ := h.Int("PCOUNT")
	if bitpix < 0 {
		bitpix = -bitpix
	}
	return bitpix / 8 * gcount * (pcount + n), nil
}

func newImage(f *os.File, path string, ext int, h *Header, data int64) (*Image, error) {
	bitpix, _ := h.Int("BITPIX")
	switch bitpix {
	case 8, 16, 32, 64, -32, -64:
	default:
		return nil, errs.Config("fits", fmt.Errorf("%s: %w: BITPIX %d", path, errs.ErrUnsupportedFormat, bitpix))
	}
	naxis, _ := h.Int("NAXIS")
	if naxis < 2 {
		return nil, errs.Config("fits", fmt.Errorf("%s[%d]: %w: NAXIS = %d", path, ext, errs.ErrUnsupportedFormat, naxis))
	}
	w, _ := h.Int("NAXIS1")
	ht, _ := h.Int("NAXIS2")
	if w < 1 || ht < 1 {
		return nil, errs.Config("fits", fmt.Errorf("%s[%d]: %w: %dx%d image", path, ext, errs.ErrDimensionMismatch, w, ht))
	}
	if naxis > 2 {
		logging.Logger().Warn("only the first plane is used", slog.String("path", path), slog.Int64("naxis", naxis))
	}

	im := &Image{
		Header: h,
		Bitpix: int(bitpix),
		Bscale: 1,
		Ext:    ext,
		path:   path,
		f:      f,
		width:  int(w),
		height: int(ht),
		data:   data,
	}
	if v, ok := h.Float("BSCALE"); ok {
		im.Bscale = v
	}
	if v, ok := h.Float("BZERO"); ok {
		im.Bzero = v
	}
	return im, nil
}

// Path returns the file name without extension selector.
func (im *Image) Path() string { return im.path }

// Width returns NAXIS1.
func (im *Image) Width() int { return im.width }

// Height returns NAXIS2.
func (im *Image) Height() int { return im.height }

// Close releases the file.
func (im *Image) Close() error {
	if im.f == nil {
		return nil
	}
	err := im.f.Close()
	im.f = nil
	if err != nil {
		return errs.IO("close", im.path, err)
	}
	return nil
}

// Seek positions the row cursor used by ReadRows.
func (im *Image) Seek(row int) error {
	if row < 0 || row > im.height {
		return errs.Internal("fits seek", fmt.Errorf("%w: row %d of %d", errs.ErrDimensionMismatch, row, im.height))
	}
	im.row = row
	return nil
}

// ReadRows reads the next n rows into dst and advances the cursor.
func (im *Image) ReadRows(dst []float32, n int) error {
	if im.row+n > im.height {
		return errs.IO("read", im.path, fmt.Errorf("%w: rows %d..%d of %d", errs.ErrShortRead, im.row, im.row+n, im.height))
	}
	if err := im.ReadPixels(dst[:n*im.width], int64(im.row)*int64(im.width)); err != nil {
		return err
	}
	im.row += n
	return nil
}

// ReadPixels fills dst with consecutive samples starting at pixel offset
// off of the first plane.
func (im *Image) ReadPixels(dst []float32, off int64) error {
	if im.f == nil {
		return errs.IO("read", im.path, errs.ErrClosed)
	}
	bps := im.bytesPerSample()
	const chunk = 1 << 16
	raw := make([]byte, min(len(dst), chunk)*bps)
	for done := 0; done < len(dst); {
		n := min(len(dst)-done, chunk)
		buf := raw[:n*bps]
		pos := im.data + (off+int64(done))*int64(bps)
		if k, err := im.f.ReadAt(buf, pos); k < len(buf) {
			if err == nil || errors.Is(err, io.EOF) {
				err = errs.ErrShortRead
			}
			return errs.IO("read", im.path, err)
		}
		im.decode(dst[done:done+n], buf)
		done += n
	}
	return nil
}

func (im *Image) bytesPerSample() int {
	if im.Bitpix < 0 {
		return -im.Bitpix / 8
	}
	return im.Bitpix / 8
}

// decode converts big-endian raw samples into scaled floats.
func (im *Image) decode(dst []float32, raw []byte) {
	be := binary.BigEndian
	scale, zero := im.Bscale, im.Bzero
	plain := scale == 1 && zero == 0
	for i := range dst {
		var v float64
		switch im.Bitpix {
		case 8:
			v = float64(raw[i])
		case 16:
			v = float64(int16(be.Uint16(raw[2*i:])))
		case 32:
			v = float64(int32(be.Uint32(raw[4*i:])))
		case 64:
			v = float64(int64(be.Uint64(raw[8*i:])))
		case -32:
			f := math.Float32frombits(be.Uint32(raw[4*i:]))
			if plain {
				dst[i] = f
				continue
			}
			v = float64(f)
		case -64:
			v = math.Float64frombits(be.Uint64(raw[8*i:]))
		}
		dst[i] = float32(v*scale + zero)
	}
}
