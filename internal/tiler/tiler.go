// Package tiler reshapes row bands into square tiles.
package tiler

import (
	"fmt"

	"github.com/ironsheep/skytiff/internal/errs"
)

// Count returns the number of tiles across a row of width pixels.
func Count(width, size int) int {
	return (width + size - 1) / size
}

// TileBytes returns the payload size of one tile.
func TileBytes(size, bytesPerPixel int) int {
	return size * size * bytesPerPixel
}

// ToTiles copies a band of width×height pixels from src into dst as
// Count(width, size) consecutive size×size tiles, left to right. height
// must not exceed size. Pixels of a tile outside the band are zero.
func ToTiles(dst, src []byte, width, height, size, bytesPerPixel int) (int, error) {
	if height > size || height < 1 || width < 1 {
		return 0, errs.Internal("tiler", fmt.Errorf("%w: band %dx%d for tile size %d",
			errs.ErrDimensionMismatch, width, height, size))
	}
	n := Count(width, size)
	tb := TileBytes(size, bytesPerPixel)
	if len(dst) < n*tb || len(src) < width*height*bytesPerPixel {
		return 0, errs.Internal("tiler", fmt.Errorf("%w: buffers too small", errs.ErrDimensionMismatch))
	}

	srcRow := width * bytesPerPixel
	dstRow := size * bytesPerPixel
	for t := 0; t < n; t++ {
		tile := dst[t*tb : (t+1)*tb]
		x0 := t * size
		cols := size
		if rest := width - x0; rest < cols {
			cols = rest
		}
		if cols < size || height < size {
			clear(tile)
		}
		span := cols * bytesPerPixel
		for y := 0; y < height; y++ {
			off := y*srcRow + x0*bytesPerPixel
			copy(tile[y*dstRow:y*dstRow+span], src[off:off+span])
		}
	}
	return n, nil
}
