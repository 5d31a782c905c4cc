package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/ironsheep/skytiff/internal/errs"
)

// param describes one keyword. ptr returns the Config field it controls.
type param struct {
	name    string
	keys    []string
	help    string
	section string
	ptr     func(c *Config) any
}

var params = []param{
	{name: "OUTFILE_NAME", help: "Name of the output file", section: "Output",
		ptr: func(c *Config) any { return &c.OutFile }},
	{name: "IMAGE_TYPE", keys: []string{"TIFF", "TIFF-PYRAMID"}, help: "Output image format",
		ptr: func(c *Config) any { return &c.ImageType }},
	{name: "BIGTIFF_TYPE", keys: []string{"AUTO", "NEVER", "ALWAYS"}, help: "Use BigTIFF: AUTO, NEVER or ALWAYS",
		ptr: func(c *Config) any { return &c.BigTIFF }},
	{name: "COMPRESSION_TYPE", keys: []string{"NONE", "DEFLATE"}, help: "NONE or DEFLATE",
		ptr: func(c *Config) any { return &c.Compression }},
	{name: "TILE_SIZE", help: "Tile size in pixels (TIFF-PYRAMID); 0 writes strips",
		ptr: func(c *Config) any { return &c.TileSize }},
	{name: "PYRAMID_MINSIZE", help: "Minimum level size in pixels (TIFF-PYRAMID)",
		ptr: func(c *Config) any { return &c.PyramidMin }},
	{name: "BITS_PER_CHANNEL", help: "8, 16 or -32 (float)",
		ptr: func(c *Config) any { return &c.Bits }},
	{name: "BINNING", help: "Binning factor(s) for the data",
		ptr: func(c *Config) any { return &c.Binning }},
	{name: "FLIP_TYPE", keys: []string{"NONE", "X", "Y", "XY"}, help: "Flip the image: NONE, X, Y or XY",
		ptr: func(c *Config) any { return &c.Flip }},

	{name: "GAMMA", help: "Display gamma", section: "Tone",
		ptr: func(c *Config) any { return &c.Gamma }},
	{name: "GAMMA_TYPE", keys: []string{"POWER_LAW", "SRGB", "REC.709"}, help: "POWER_LAW, SRGB or REC.709",
		ptr: func(c *Config) any { return &c.GammaType }},
	{name: "GAMMA_FAC", help: "Luminance gamma correction factor",
		ptr: func(c *Config) any { return &c.GammaFac }},
	{name: "COLOUR_SAT", help: "Colour saturation (0.0 = B&W)",
		ptr: func(c *Config) any { return &c.ColourSat }},
	{name: "NEGATIVE", help: "Make negative of the image",
		ptr: func(c *Config) any { return &c.Negative }},

	{name: "SKY_TYPE", keys: []string{"AUTO", "MANUAL"}, help: "Sky-level: AUTO or MANUAL", section: "Dynamic range",
		ptr: func(c *Config) any { return &c.SkyType }},
	{name: "SKY_LEVEL", help: "Background level for each image",
		ptr: func(c *Config) any { return &c.SkyLevel }},
	{name: "MIN_TYPE", keys: []string{"QUANTILE", "MANUAL", "GREYLEVEL"}, help: "Min-level: QUANTILE, MANUAL or GREYLEVEL",
		ptr: func(c *Config) any { return &c.MinType }},
	{name: "MIN_LEVEL", help: "Minimum value, quantile or grey level",
		ptr: func(c *Config) any { return &c.MinLevel }},
	{name: "MAX_TYPE", keys: []string{"QUANTILE", "MANUAL"}, help: "Max-level: QUANTILE or MANUAL",
		ptr: func(c *Config) any { return &c.MaxType }},
	{name: "MAX_LEVEL", help: "Maximum value or quantile",
		ptr: func(c *Config) any { return &c.MaxLevel }},
	{name: "SATUR_LEVEL", help: "FITS data saturation level(s)",
		ptr: func(c *Config) any { return &c.SaturLevel }},

	{name: "CHANNELTAG_TYPE", keys: []string{"MANUAL", "KEYWORD", "MATCH"}, help: "MANUAL, KEYWORD or MATCH", section: "Channels",
		ptr: func(c *Config) any { return &c.ChannelTagType }},
	{name: "CHANNEL_TAGS", help: "Channel tags, in display order",
		ptr: func(c *Config) any { return &c.ChannelTags }},
	{name: "CHANNELTAG_KEY", help: "FITS keyword holding the channel tag",
		ptr: func(c *Config) any { return &c.ChannelTagKey }},

	{name: "DESCRIPTION", help: "Image description", section: "Metadata",
		ptr: func(c *Config) any { return &c.Description }},
	{name: "COPYRIGHT", help: "Copyright notice",
		ptr: func(c *Config) any { return &c.Copyright }},
	{name: "REPORT_NAME", help: "JSON run report file name, or STDOUT",
		ptr: func(c *Config) any { return &c.ReportName }},
	{name: "PREVIEW_NAME", help: "Quick-look PNG or JPEG file name",
		ptr: func(c *Config) any { return &c.PreviewName }},
	{name: "PREVIEW_MAXSOURCE", help: "Largest level side used for the preview",
		ptr: func(c *Config) any { return &c.PreviewMaxSource }},
	{name: "PREVIEW_SIZE", help: "Preview bounding box in pixels",
		ptr: func(c *Config) any { return &c.PreviewSize }},

	{name: "MEMORY_MAXIMAGE", help: "Max memory (in MB) for image planes", section: "Resources",
		ptr: func(c *Config) any { return &c.MemoryMaxImage }},
	{name: "MEMORY_MAXVRAM", help: "Max swap space (in MB) for image planes",
		ptr: func(c *Config) any { return &c.MemoryMaxVRAM }},
	{name: "SWAP_DIR", help: "Directory for swap files",
		ptr: func(c *Config) any { return &c.SwapDir }},
	{name: "NTHREADS", help: "Number of workers (0 = automatic)",
		ptr: func(c *Config) any { return &c.NThreads }},
	{name: "VERBOSE_TYPE", keys: []string{"QUIET", "NORMAL", "FULL"}, help: "QUIET, NORMAL or FULL",
		ptr: func(c *Config) any { return &c.VerboseType }},
}

func lookup(name string) (*param, bool) {
	name = strings.ToUpper(name)
	for i := range params {
		if params[i].name == name {
			return &params[i], true
		}
	}
	return nil, false
}

// Keywords lists every known keyword.
func Keywords() []string {
	out := make([]string, len(params))
	for i, p := range params {
		out[i] = p.name
	}
	return out
}

// tokens splits a configuration line into words. Double quotes group
// blanks; commas and blanks separate words; '#' outside quotes ends the
// line.
func tokens(line string) ([]string, error) {
	var out []string
	var cur strings.Builder
	inWord, quoted := false, false
	flush := func() {
		if inWord {
			out = append(out, cur.String())
			cur.Reset()
			inWord = false
		}
	}
	for _, r := range line {
		switch {
		case quoted:
			if r == '"' {
				quoted = false
				continue
			}
			cur.WriteRune(r)
		case r == '"':
			quoted, inWord = true, true
		case r == '#':
			flush()
			return out, nil
		case r == ',' || r == ' ' || r == '\t' || r == '\r':
			flush()
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if quoted {
		return nil, fmt.Errorf("unterminated quote")
	}
	flush()
	return out, nil
}

// Read applies the keywords of a configuration file.
func (c *Config) Read(r io.Reader, name string) error {
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		words, err := tokens(sc.Text())
		if err != nil {
			return errs.Config("config", fmt.Errorf("%s:%d: %w", name, n, err))
		}
		if len(words) == 0 {
			continue
		}
		if err := c.set(words[0], words[1:]); err != nil {
			return errs.Config("config", fmt.Errorf("%s:%d: %w", name, n, err))
		}
	}
	if err := sc.Err(); err != nil {
		return errs.IO("read", name, err)
	}
	return nil
}

// ReadFile applies the keywords of the named configuration file.
func (c *Config) ReadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errs.IO("open", path, err)
	}
	defer f.Close()
	return c.Read(f, path)
}

// Set applies one keyword from a "KEY=VALUE" style override.
func (c *Config) Set(key, value string) error {
	words, err := tokens(value)
	if err != nil {
		return errs.Config("config", fmt.Errorf("%s: %w", key, err))
	}
	if err := c.set(key, words); err != nil {
		return errs.Config("config", err)
	}
	return nil
}

func (c *Config) set(key string, vals []string) error {
	p, ok := lookup(key)
	if !ok {
		return fmt.Errorf("unknown keyword %q", key)
	}
	if len(vals) == 0 {
		return fmt.Errorf("%s: missing value", p.name)
	}
	for i, v := range vals {
		if len(p.keys) > 0 {
			v = strings.ToUpper(v)
			if !slices.Contains(p.keys, v) {
				return fmt.Errorf("%s: %q is not one of %s", p.name, vals[i], strings.Join(p.keys, ", "))
			}
			vals[i] = v
		}
	}

	single := func() error {
		if len(vals) > 1 {
			return fmt.Errorf("%s takes a single value", p.name)
		}
		return nil
	}
	switch ptr := p.ptr(c).(type) {
	case *string:
		if err := single(); err != nil {
			return err
		}
		*ptr = vals[0]
	case *int:
		if err := single(); err != nil {
			return err
		}
		v, err := strconv.Atoi(vals[0])
		if err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
		*ptr = v
	case *float64:
		if err := single(); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(vals[0], 64)
		if err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
		*ptr = v
	case *bool:
		if err := single(); err != nil {
			return err
		}
		switch strings.ToUpper(vals[0]) {
		case "Y", "YES", "T", "TRUE":
			*ptr = true
		case "N", "NO", "F", "FALSE":
			*ptr = false
		default:
			return fmt.Errorf("%s: %q is not Y or N", p.name, vals[0])
		}
	case *[]string:
		*ptr = append([]string(nil), vals...)
	case *[]int:
		out := make([]int, len(vals))
		for i, s := range vals {
			v, err := strconv.Atoi(s)
			if err != nil {
				return fmt.Errorf("%s: %w", p.name, err)
			}
			out[i] = v
		}
		*ptr = out
	case *[]float64:
		out := make([]float64, len(vals))
		for i, s := range vals {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", p.name, err)
			}
			out[i] = v
		}
		*ptr = out
	}
	return nil
}

// value renders the current setting of p.
func (c *Config) value(p *param) string {
	quote := func(s string) string {
		if s == "" || strings.ContainsAny(s, " ,#\t") {
			return strconv.Quote(s)
		}
		return s
	}
	switch v := p.ptr(c).(type) {
	case *string:
		return quote(*v)
	case *int:
		return strconv.Itoa(*v)
	case *float64:
		return strconv.FormatFloat(*v, 'g', -1, 64)
	case *bool:
		if *v {
			return "Y"
		}
		return "N"
	case *[]string:
		parts := make([]string, len(*v))
		for i, s := range *v {
			parts[i] = quote(s)
		}
		return strings.Join(parts, ",")
	case *[]int:
		parts := make([]string, len(*v))
		for i, x := range *v {
			parts[i] = strconv.Itoa(x)
		}
		return strings.Join(parts, ",")
	case *[]float64:
		parts := make([]string, len(*v))
		for i, x := range *v {
			parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
		}
		return strings.Join(parts, ",")
	}
	return ""
}

// Setting is one keyword and its rendered value.
type Setting struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Values returns every keyword with its current value, in file order.
func (c *Config) Values() []Setting {
	out := make([]Setting, len(params))
	for i := range params {
		out[i] = Setting{Name: params[i].name, Value: c.value(&params[i])}
	}
	return out
}

// Dump writes every keyword with its current value, in a form Read
// accepts.
func (c *Config) Dump(w io.Writer, banner string) error {
	tw := tabwriter.NewWriter(w, 0, 8, 1, ' ', 0)
	fmt.Fprintf(tw, "# Default configuration file for %s\n", banner)
	for i := range params {
		p := &params[i]
		if p.section != "" {
			fmt.Fprintf(tw, "\n#%s\n", padSection(p.section))
		}
		fmt.Fprintf(tw, "%s\t%s\t# %s\n", p.name, c.value(p), p.help)
	}
	return tw.Flush()
}

func padSection(s string) string {
	line := "------------------------------ " + s + " "
	for len(line) < 78 {
		line += "-"
	}
	return line
}
