package fits

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

const (
	blockSize = 2880
	cardSize  = 80
)

// Header holds the cards of one header unit, sorted into typed maps by
// the syntax of their values.
type Header struct {
	Bools   map[string]bool
	Ints    map[string]int64
	Floats  map[string]float64
	Strings map[string]string
	// Keys lists keywords with a value, in file order.
	Keys []string
	// Length is the header size in bytes, a multiple of the block size.
	Length int64
}

func newHeader() *Header {
	return &Header{
		Bools:   make(map[string]bool),
		Ints:    make(map[string]int64),
		Floats:  make(map[string]float64),
		Strings: make(map[string]string),
	}
}

// Int returns an integer keyword.
func (h *Header) Int(key string) (int64, bool) {
	v, ok := h.Ints[key]
	return v, ok
}

// Float returns a numeric keyword, integers included.
func (h *Header) Float(key string) (float64, bool) {
	if v, ok := h.Floats[key]; ok {
		return v, true
	}
	if v, ok := h.Ints[key]; ok {
		return float64(v), true
	}
	return 0, false
}

// Value returns any keyword rendered as text. String values come back
// without quotes or trailing blanks.
func (h *Header) Value(key string) (string, bool) {
	key = strings.ToUpper(key)
	if v, ok := h.Strings[key]; ok {
		return v, true
	}
	if v, ok := h.Ints[key]; ok {
		return strconv.FormatInt(v, 10), true
	}
	if v, ok := h.Floats[key]; ok {
		return strconv.FormatFloat(v, 'g', -1, 64), true
	}
	if v, ok := h.Bools[key]; ok {
		if v {
			return "T", true
		}
		return "F", true
	}
	return "", false
}

// parseBlock adds the cards of one header block. It reports whether the
// END card was seen.
func (h *Header) parseBlock(block []byte) (bool, error) {
	for i := 0; i < blockSize; i += cardSize {
		card := block[i : i+cardSize]
		key := strings.TrimSpace(string(card[:8]))
		if key == "END" {
			return true, nil
		}
		if key == "" || !bytes.Equal(card[8:10], []byte("= ")) {
			// COMMENT, HISTORY, blank and other commentary cards.
			continue
		}
		if err := h.parseValue(key, string(card[10:])); err != nil {
			return false, fmt.Errorf("keyword %s: %w", key, err)
		}
	}
	return false, nil
}

func (h *Header) parseValue(key, s string) error {
	s = strings.TrimLeft(s, " ")
	if _, dup := h.Value(key); !dup {
		h.Keys = append(h.Keys, key)
	}

	if strings.HasPrefix(s, "'") {
		var b strings.Builder
		for i := 1; i < len(s); i++ {
			if s[i] == '\'' {
				if i+1 < len(s) && s[i+1] == '\'' {
					b.WriteByte('\'')
					i++
					continue
				}
				h.Strings[key] = strings.TrimRight(b.String(), " ")
				return nil
			}
			b.WriteByte(s[i])
		}
		return fmt.Errorf("unterminated string")
	}

	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	switch s {
	case "":
		h.Strings[key] = ""
		return nil
	case "T":
		h.Bools[key] = true
		return nil
	case "F":
		h.Bools[key] = false
		return nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		h.Ints[key] = v
		return nil
	}
	// Fortran exponents use D.
	if v, err := strconv.ParseFloat(strings.Replace(s, "D", "E", 1), 64); err == nil {
		h.Floats[key] = v
		return nil
	}
	// Complex and other values are kept as text.
	h.Strings[key] = s
	return nil
}
