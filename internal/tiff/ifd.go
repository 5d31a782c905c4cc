package tiff

import (
	"encoding/binary"
	"sort"
)

// Field types.
const (
	typeASCII    = 2
	typeShort    = 3
	typeLong     = 4
	typeRational = 5
	typeLong8    = 16
)

// Tags.
const (
	tagNewSubfileType   = 254
	tagImageWidth       = 256
	tagImageLength      = 257
	tagBitsPerSample    = 258
	tagCompression      = 259
	tagPhotometric      = 262
	tagImageDescription = 270
	tagStripOffsets     = 273
	tagSamplesPerPixel  = 277
	tagRowsPerStrip     = 278
	tagStripByteCounts  = 279
	tagXResolution      = 282
	tagYResolution      = 283
	tagPlanarConfig     = 284
	tagResolutionUnit   = 296
	tagSoftware         = 305
	tagTileWidth        = 322
	tagTileLength       = 323
	tagTileOffsets      = 324
	tagTileByteCounts   = 325
	tagSampleFormat     = 339
	tagCopyright        = 33432
)

var typeSize = map[uint16]int{
	typeASCII:    1,
	typeShort:    2,
	typeLong:     4,
	typeRational: 8,
	typeLong8:    8,
}

type entry struct {
	tag   uint16
	typ   uint16
	count int
	data  []byte
}

func shorts(v ...uint16) []byte {
	b := make([]byte, 2*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint16(b[2*i:], x)
	}
	return b
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func shortEntry(tag uint16, v ...uint16) entry {
	return entry{tag: tag, typ: typeShort, count: len(v), data: shorts(v...)}
}

func longEntry(tag uint16, v uint32) entry {
	return entry{tag: tag, typ: typeLong, count: 1, data: le32(v)}
}

func asciiEntry(tag uint16, s string) entry {
	b := append([]byte(s), 0)
	return entry{tag: tag, typ: typeASCII, count: len(b), data: b}
}

func rationalEntry(tag uint16, num, den uint32) entry {
	return entry{tag: tag, typ: typeRational, count: 1, data: append(le32(num), le32(den)...)}
}

// offsetEntry stores chunk offsets or byte counts as LONG or LONG8.
func (w *Writer) offsetEntry(tag uint16, v []uint64) entry {
	if w.big {
		b := make([]byte, 8*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint64(b[8*i:], x)
		}
		return entry{tag: tag, typ: typeLong8, count: len(v), data: b}
	}
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[4*i:], uint32(x))
	}
	return entry{tag: tag, typ: typeLong, count: len(v), data: b}
}

func (w *Writer) entries(d *directory) []entry {
	o := w.opts
	n := o.Channels
	bits := make([]uint16, n)
	format := make([]uint16, n)
	for i := range bits {
		bits[i] = uint16(o.Bits)
		format[i] = 1
		if o.Float {
			format[i] = 3
		}
	}
	photometric := uint16(1)
	if n == 3 {
		photometric = 2
	}
	compression := uint16(1)
	if o.Compression == Deflate {
		compression = 8
	}
	subfile := uint32(0)
	if w.ndir > 1 {
		subfile = 1
	}

	e := []entry{
		longEntry(tagNewSubfileType, subfile),
		longEntry(tagImageWidth, uint32(d.width)),
		longEntry(tagImageLength, uint32(d.height)),
		shortEntry(tagBitsPerSample, bits...),
		shortEntry(tagCompression, compression),
		shortEntry(tagPhotometric, photometric),
		shortEntry(tagSamplesPerPixel, uint16(n)),
		rationalEntry(tagXResolution, 72, 1),
		rationalEntry(tagYResolution, 72, 1),
		shortEntry(tagPlanarConfig, 1),
		shortEntry(tagResolutionUnit, 2),
		shortEntry(tagSampleFormat, format...),
	}
	if o.TileSize > 0 {
		e = append(e,
			longEntry(tagTileWidth, uint32(o.TileSize)),
			longEntry(tagTileLength, uint32(o.TileSize)),
			w.offsetEntry(tagTileOffsets, d.offsets),
			w.offsetEntry(tagTileByteCounts, d.counts))
	} else {
		e = append(e,
			longEntry(tagRowsPerStrip, uint32(d.rowsPerStrip)),
			w.offsetEntry(tagStripOffsets, d.offsets),
			w.offsetEntry(tagStripByteCounts, d.counts))
	}
	if o.Description != "" {
		e = append(e, asciiEntry(tagImageDescription, o.Description))
	}
	if o.Software != "" {
		e = append(e, asciiEntry(tagSoftware, o.Software))
	}
	if o.Copyright != "" {
		e = append(e, asciiEntry(tagCopyright, o.Copyright))
	}
	sort.Slice(e, func(i, j int) bool { return e[i].tag < e[j].tag })
	return e
}

// encodeDirectory lays out the table of d at file offset start, followed
// by the values that do not fit in their entries. It returns the bytes and
// the absolute offset of the table's next-directory pointer.
func (w *Writer) encodeDirectory(d *directory, start int64) ([]byte, int64) {
	e := w.entries(d)

	countSize, entrySize, ptrSize := 2, 12, 4
	if w.big {
		countSize, entrySize, ptrSize = 8, 20, 8
	}
	inline := ptrSize
	head := countSize + len(e)*entrySize + ptrSize

	table := make([]byte, head)
	var extra []byte
	if w.big {
		binary.LittleEndian.PutUint64(table, uint64(len(e)))
	} else {
		binary.LittleEndian.PutUint16(table, uint16(len(e)))
	}

	for i, en := range e {
		p := table[countSize+i*entrySize:]
		binary.LittleEndian.PutUint16(p, en.tag)
		binary.LittleEndian.PutUint16(p[2:], en.typ)
		var value []byte
		if w.big {
			binary.LittleEndian.PutUint64(p[4:], uint64(en.count))
			value = p[12:20]
		} else {
			binary.LittleEndian.PutUint32(p[4:], uint32(en.count))
			value = p[8:12]
		}

		if len(en.data) <= inline {
			copy(value, en.data)
			continue
		}
		if len(extra)%2 == 1 {
			extra = append(extra, 0)
		}
		at := uint64(start) + uint64(head) + uint64(len(extra))
		if w.big {
			binary.LittleEndian.PutUint64(value, at)
		} else {
			binary.LittleEndian.PutUint32(value, uint32(at))
		}
		extra = append(extra, en.data...)
	}
	// The next-directory pointer stays zero until a later directory
	// patches it.
	return append(table, extra...), start + int64(countSize+len(e)*entrySize)
}
