package tiff

import (
	"bytes"

	"github.com/klauspost/compress/zlib"
)

// encoder turns raw strips or tiles into their stored form.
type encoder struct {
	compression Compression
	buf         bytes.Buffer
	zw          *zlib.Writer
}

func newEncoder(c Compression) *encoder {
	return &encoder{compression: c}
}

// encode returns data as stored in the file. The result is only valid
// until the next call.
func (e *encoder) encode(data []byte) ([]byte, error) {
	if e.compression == NoCompression {
		return data, nil
	}
	e.buf.Reset()
	if e.zw == nil {
		zw, err := zlib.NewWriterLevel(&e.buf, zlib.DefaultCompression)
		if err != nil {
			return nil, err
		}
		e.zw = zw
	} else {
		e.zw.Reset(&e.buf)
	}
	if _, err := e.zw.Write(data); err != nil {
		return nil, err
	}
	if err := e.zw.Close(); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}
