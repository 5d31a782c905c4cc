//go:build !unix

package arena

import (
	"errors"
	"os"
)

var errNoMmap = errors.New("memory mapping is not supported on this platform")

func mapFile(*os.File, int64) ([]byte, error) { return nil, errNoMmap }

func unmapFile([]byte) error { return nil }

func floats([]byte, int) []float32 { return nil }
