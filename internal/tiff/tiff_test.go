package tiff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zlib"
	xtiff "golang.org/x/image/tiff"

	"github.com/ironsheep/skytiff/internal/errs"
)

// ifd is a decoded directory: tag to values.
type ifd map[uint16][]uint64

// readDirectories walks the directory chain of a classic or BigTIFF file.
func readDirectories(t *testing.T, data []byte) (bool, []ifd) {
	t.Helper()
	le := binary.LittleEndian
	if string(data[:2]) != "II" {
		t.Fatalf("byte order %q", data[:2])
	}
	big := le.Uint16(data[2:]) == 43
	var next uint64
	if big {
		next = le.Uint64(data[8:])
	} else {
		next = uint64(le.Uint32(data[4:]))
	}

	var dirs []ifd
	for next != 0 {
		p := data[next:]
		var n uint64
		var es, hs int
		if big {
			n, hs, es = le.Uint64(p), 8, 20
		} else {
			n, hs, es = uint64(le.Uint16(p)), 2, 12
		}
		d := ifd{}
		for i := 0; i < int(n); i++ {
			e := p[hs+i*es:]
			tag, typ := le.Uint16(e), le.Uint16(e[2:])
			var count uint64
			var val []byte
			if big {
				count, val = le.Uint64(e[4:]), e[12:20]
			} else {
				count, val = uint64(le.Uint32(e[4:])), e[8:12]
			}
			size := int(count) * typeSize[typ]
			if size > len(val) {
				var at uint64
				if big {
					at = le.Uint64(val)
				} else {
					at = uint64(le.Uint32(val))
				}
				val = data[at : at+uint64(size)]
			}
			for k := 0; k < int(count); k++ {
				switch typ {
				case typeShort:
					d[tag] = append(d[tag], uint64(le.Uint16(val[2*k:])))
				case typeLong:
					d[tag] = append(d[tag], uint64(le.Uint32(val[4*k:])))
				case typeLong8:
					d[tag] = append(d[tag], le.Uint64(val[8*k:]))
				}
			}
			if typ == typeASCII {
				d[tag] = []uint64{uint64(count)}
			}
		}
		dirs = append(dirs, d)
		ptr := p[hs+int(n)*es:]
		if big {
			next = le.Uint64(ptr)
		} else {
			next = uint64(le.Uint32(ptr))
		}
	}
	return big, dirs
}

// chunks concatenates the stored chunks of a directory, inflating them if
// needed.
func chunks(t *testing.T, data []byte, d ifd, offTag, countTag uint16) []byte {
	t.Helper()
	var out []byte
	for i, off := range d[offTag] {
		c := data[off : off+d[countTag][i]]
		if d[tagCompression][0] == 8 {
			r, err := zlib.NewReader(bytes.NewReader(c))
			if err != nil {
				t.Fatal(err)
			}
			c, err = io.ReadAll(r)
			if err != nil {
				t.Fatal(err)
			}
		}
		out = append(out, c...)
	}
	return out
}

func ramp(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}

func writeStrips(t *testing.T, w *Writer, data []byte, width, height int) {
	t.Helper()
	rowBytes := width * w.BytesPerPixel()
	for y := 0; y < height; y += w.BufferRows() {
		n := min(w.BufferRows(), height-y)
		if err := w.WriteStrip(data[y*rowBytes : (y+n)*rowBytes]); err != nil {
			t.Fatalf("WriteStrip at row %d: %v", y, err)
		}
	}
}

func TestStripGreyDecodes(t *testing.T) {
	for _, width := range []int{5, 20000} {
		path := filepath.Join(t.TempDir(), "grey.tif")
		w, err := Create(path, Options{Channels: 1, Bits: 8, Software: "skytiff"})
		if err != nil {
			t.Fatal(err)
		}
		const height = 7
		if err := w.NewDirectory(width, height); err != nil {
			t.Fatal(err)
		}
		pix := ramp(width * height)
		writeStrips(t, w, pix, width, height)
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}

		f, err := os.Open(path)
		if err != nil {
			t.Fatal(err)
		}
		img, err := xtiff.Decode(f)
		f.Close()
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		g, ok := img.(*image.Gray)
		if !ok {
			t.Fatalf("decoded %T, want *image.Gray", img)
		}
		if diff := cmp.Diff(pix, g.Pix); diff != "" {
			t.Errorf("width %d pixels (-want +got):\n%s", width, diff)
		}
	}
}

func TestTiledRGBDeflateDecodes(t *testing.T) {
	const width, height, tile = 37, 21, 16
	path := filepath.Join(t.TempDir(), "rgb.tif")
	w, err := Create(path, Options{Channels: 3, Bits: 8, TileSize: tile, Compression: Deflate})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.NewDirectory(width, height); err != nil {
		t.Fatal(err)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, color.RGBA{uint8(x * 5), uint8(y * 9), uint8(x + y), 255})
		}
	}
	across := (width + tile - 1) / tile
	for ty := 0; ty*tile < height; ty++ {
		row := make([]byte, across*tile*tile*3)
		for tx := 0; tx < across; tx++ {
			for y := 0; y < tile; y++ {
				for x := 0; x < tile; x++ {
					gx, gy := tx*tile+x, ty*tile+y
					if gx >= width || gy >= height {
						continue
					}
					c := img.RGBAAt(gx, gy)
					o := ((tx*tile+y)*tile + x) * 3
					row[o], row[o+1], row[o+2] = c.R, c.G, c.B
				}
			}
		}
		if err := w.WriteTileRow(row, ty); err != nil {
			t.Fatalf("WriteTileRow %d: %v", ty, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, err := xtiff.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := got.At(x, y).RGBA()
			want := img.RGBAAt(x, y)
			if uint8(r>>8) != want.R || uint8(g>>8) != want.G || uint8(b>>8) != want.B {
				t.Fatalf("pixel (%d,%d) = %d,%d,%d want %v", x, y, r>>8, g>>8, b>>8, want)
			}
		}
	}
}

func TestSixteenBitDecodes(t *testing.T) {
	const width, height = 4, 3
	path := filepath.Join(t.TempDir(), "g16.tif")
	w, err := Create(path, Options{Channels: 1, Bits: 16})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.NewDirectory(width, height); err != nil {
		t.Fatal(err)
	}
	pix := make([]byte, width*height*2)
	for i := 0; i < width*height; i++ {
		binary.LittleEndian.PutUint16(pix[2*i:], uint16(i*5000))
	}
	writeStrips(t, w, pix, width, height)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := xtiff.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	g, ok := img.(*image.Gray16)
	if !ok {
		t.Fatalf("decoded %T, want *image.Gray16", img)
	}
	for i := 0; i < width*height; i++ {
		if got := g.Gray16At(i%width, i/width).Y; got != uint16(i*5000) {
			t.Fatalf("pixel %d = %d", i, got)
		}
	}
}

func TestPyramidDirectories(t *testing.T) {
	for _, mode := range []BigMode{BigNever, BigAlways} {
		t.Run(mode.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "pyr.tif")
			w, err := Create(path, Options{Channels: 1, Bits: 8, TileSize: 16, Big: mode, Description: "M31"})
			if err != nil {
				t.Fatal(err)
			}
			levels := [][2]int{{40, 33}, {20, 16}, {10, 8}}
			var payload [][]byte
			for _, l := range levels {
				if err := w.NewDirectory(l[0], l[1]); err != nil {
					t.Fatal(err)
				}
				across := (l[0] + 15) / 16
				var all []byte
				for ty := 0; ty*16 < l[1]; ty++ {
					row := ramp(across * 256)
					row[0] = byte(ty + 1)
					all = append(all, row...)
					if err := w.WriteTileRow(row, ty); err != nil {
						t.Fatal(err)
					}
				}
				payload = append(payload, all)
			}
			if err := w.Close(); err != nil {
				t.Fatal(err)
			}
			if got := w.BigTIFF(); got != (mode == BigAlways) {
				t.Fatalf("BigTIFF() = %v", got)
			}

			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			big, dirs := readDirectories(t, data)
			if big != (mode == BigAlways) {
				t.Fatalf("header big = %v", big)
			}
			if len(dirs) != len(levels) {
				t.Fatalf("%d directories, want %d", len(dirs), len(levels))
			}
			for i, d := range dirs {
				if d[tagImageWidth][0] != uint64(levels[i][0]) || d[tagImageLength][0] != uint64(levels[i][1]) {
					t.Errorf("dir %d size %vx%v", i, d[tagImageWidth], d[tagImageLength])
				}
				wantSub := uint64(0)
				if i > 0 {
					wantSub = 1
				}
				if d[tagNewSubfileType][0] != wantSub {
					t.Errorf("dir %d NewSubfileType = %v", i, d[tagNewSubfileType])
				}
				if d[tagImageDescription][0] != 4 {
					t.Errorf("dir %d description count = %v", i, d[tagImageDescription])
				}
				got := chunks(t, data, d, tagTileOffsets, tagTileByteCounts)
				if !bytes.Equal(got, payload[i]) {
					t.Errorf("dir %d tile payload differs", i)
				}
			}
		})
	}
}

func TestFloatSamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "float.tif")
	w, err := Create(path, Options{Channels: 1, Bits: 32, Float: true, Compression: Deflate})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.NewDirectory(3, 2); err != nil {
		t.Fatal(err)
	}
	vals := []float32{0, 0.25, 0.5, 0.75, 1, 0.125}
	pix := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(pix[4*i:], math.Float32bits(v))
	}
	writeStrips(t, w, pix, 3, 2)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	_, dirs := readDirectories(t, data)
	d := dirs[0]
	if d[tagSampleFormat][0] != 3 || d[tagBitsPerSample][0] != 32 {
		t.Fatalf("sample format %v bits %v", d[tagSampleFormat], d[tagBitsPerSample])
	}
	if diff := cmp.Diff(pix, chunks(t, data, d, tagStripOffsets, tagStripByteCounts)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestAutoBigTIFF(t *testing.T) {
	dir := t.TempDir()
	small, err := Create(filepath.Join(dir, "a.tif"), Options{Channels: 1, Bits: 8, EstimatedSize: 1 << 20})
	if err != nil {
		t.Fatal(err)
	}
	defer small.Close()
	huge, err := Create(filepath.Join(dir, "b.tif"), Options{Channels: 3, Bits: 16, EstimatedSize: 5 << 30})
	if err != nil {
		t.Fatal(err)
	}
	defer huge.Close()
	if small.BigTIFF() || !huge.BigTIFF() {
		t.Fatalf("small big=%v huge big=%v", small.BigTIFF(), huge.BigTIFF())
	}
}

func TestWriterErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Create(filepath.Join(dir, "x.tif"), Options{Channels: 2, Bits: 8})
	if !errors.Is(err, errs.ErrChannelCount) {
		t.Errorf("channels=2: %v", err)
	}
	_, err = Create(filepath.Join(dir, "x.tif"), Options{Channels: 1, Bits: 12})
	if errs.KindOf(err) != errs.KindConfig {
		t.Errorf("bits=12: %v", err)
	}
	_, err = Create(filepath.Join(dir, "missing", "x.tif"), Options{Channels: 1, Bits: 8})
	if errs.KindOf(err) != errs.KindIO {
		t.Errorf("missing dir: %v", err)
	}

	w, err := Create(filepath.Join(dir, "t.tif"), Options{Channels: 1, Bits: 8, TileSize: 16})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteTileRow(make([]byte, 256), 0); err == nil {
		t.Error("write before NewDirectory succeeded")
	}
	if err := w.NewDirectory(16, 40); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteTileRow(make([]byte, 256), 1); err == nil {
		t.Error("out of order tile row accepted")
	}
	if err := w.WriteStrip(make([]byte, 16)); err == nil {
		t.Error("strip accepted by tiled writer")
	}
	if err := w.WriteTileRow(make([]byte, 256), 0); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); !errors.Is(err, errs.ErrShortRead) {
		t.Errorf("incomplete directory closed with %v", err)
	}
	if err := w.Close(); !errors.Is(err, errs.ErrClosed) {
		t.Errorf("second close: %v", err)
	}
}

func TestParseKeywords(t *testing.T) {
	if c, err := ParseCompression("deflate"); err != nil || c != Deflate {
		t.Errorf("ParseCompression = %v, %v", c, err)
	}
	if _, err := ParseCompression("LZW"); err == nil {
		t.Error("LZW accepted")
	}
	if m, err := ParseBigMode("always"); err != nil || m != BigAlways {
		t.Errorf("ParseBigMode = %v, %v", m, err)
	}
}
