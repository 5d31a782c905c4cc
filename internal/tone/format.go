package tone

import (
	"fmt"
	"strconv"
)

// Format is the output sample type.
type Format int

const (
	Uint8 Format = iota
	Uint16
	Float32
)

// ParseBits maps BITS_PER_CHANNEL values 8, 16 and -32 to a Format.
func ParseBits(bits int) (Format, error) {
	switch bits {
	case 8:
		return Uint8, nil
	case 16:
		return Uint16, nil
	case -32, 32:
		return Float32, nil
	default:
		return Uint8, fmt.Errorf("unsupported bits per channel %d", bits)
	}
}

func (f Format) String() string {
	switch f {
	case Uint16:
		return "16"
	case Float32:
		return "-32"
	default:
		return "8"
	}
}

// Bits returns the number of bits per sample.
func (f Format) Bits() int {
	switch f {
	case Uint16:
		return 16
	case Float32:
		return 32
	default:
		return 8
	}
}

// BytesPerSample returns the size of one output sample.
func (f Format) BytesPerSample() int {
	return f.Bits() / 8
}

// IsFloat reports whether samples are IEEE floats.
func (f Format) IsFloat() bool { return f == Float32 }

// Max returns the largest representable output value.
func (f Format) Max() float64 {
	switch f {
	case Uint16:
		return 65535
	case Float32:
		return 1
	default:
		return 255
	}
}

// Label returns a short human readable description such as "16-bit".
func (f Format) Label() string {
	if f == Float32 {
		return "32-bit float"
	}
	return strconv.Itoa(f.Bits()) + "-bit"
}
