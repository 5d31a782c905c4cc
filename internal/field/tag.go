package field

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// TagMode selects where channel tags come from.
type TagMode int

const (
	// TagManual takes tags from the configured list, in argument order.
	TagManual TagMode = iota
	// TagKeyword reads tags from a FITS keyword.
	TagKeyword
	// TagMatch reads tags from a FITS keyword and orders fields by the
	// position of their tag in the configured list.
	TagMatch
)

// ParseTagMode accepts MANUAL, KEYWORD and MATCH.
func ParseTagMode(s string) (TagMode, error) {
	switch strings.ToUpper(s) {
	case "MANUAL":
		return TagManual, nil
	case "KEYWORD":
		return TagKeyword, nil
	case "MATCH":
		return TagMatch, nil
	}
	return TagManual, fmt.Errorf("unknown channel tag type %q", s)
}

func (m TagMode) String() string {
	switch m {
	case TagKeyword:
		return "KEYWORD"
	case TagMatch:
		return "MATCH"
	default:
		return "MANUAL"
	}
}

// matchTag returns the position of tag in list, or -1. Tags match when
// one is a case-insensitive prefix of the other.
func matchTag(tag string, list []string) int {
	if tag == "" {
		return -1
	}
	t := strings.ToLower(tag)
	_, i, ok := lo.FindIndexOf(list, func(s string) bool {
		s = strings.ToLower(s)
		return s != "" && (strings.HasPrefix(t, s) || strings.HasPrefix(s, t))
	})
	if !ok {
		return -1
	}
	return i
}

// Tag sets the Tag and Index of every field and, in TagMatch mode, sorts
// fields by index. Fields whose tag is not in the list keep their relative
// order after the matched ones.
func Tag(fields []*Field, mode TagMode, tags []string, key string) {
	next := len(fields)
	for i, f := range fields {
		switch mode {
		case TagManual:
			f.Tag = ""
			if i < len(tags) {
				f.Tag = tags[i]
			}
		default:
			f.Tag, _ = f.Image.Header.Value(key)
		}

		f.Index = i
		if mode != TagMatch || len(tags) == 0 || tags[0] == "" {
			continue
		}
		if k := matchTag(f.Tag, tags); k >= 0 {
			f.Tag = tags[k]
			f.Index = k
		} else {
			f.Index = next
			next++
		}
	}

	if mode == TagMatch {
		sort.SliceStable(fields, func(i, j int) bool { return fields[i].Index < fields[j].Index })
	}
}
