package field

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/skytiff/internal/errs"
	"github.com/ironsheep/skytiff/internal/fits/fitstest"
)

func loadRamp(t *testing.T, cards ...[2]string) *Field {
	t.Helper()
	path := fitstest.Write(t, "ramp.fits", fitstest.HDU{
		Bitpix: -32, Width: 10, Height: 10, Data: fitstest.Ramp(10, 10, 0, 1), Cards: cards,
	})
	f, err := Load(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestLoadIdent(t *testing.T) {
	f := loadRamp(t, [2]string{"OBJECT", "'M51'"})
	assert.Equal(t, "M51", f.Ident)
	assert.Equal(t, "ramp.fits", f.File)
	assert.Equal(t, 10, f.Width())

	g := loadRamp(t)
	assert.Equal(t, "no ident", g.Ident)
}

func TestCalibrateManual(t *testing.T) {
	f := loadRamp(t)
	err := f.Calibrate(Levels{
		SkyType: SkyManual, SkyLevel: 5,
		MinType: MinManual, MinLevel: 10,
		MaxType: MaxManual, MaxLevel: 100,
		Saturation: 1000,
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, float32(5), f.Background)
	assert.Equal(t, float32(10), f.Min)
	assert.Equal(t, float32(100), f.Max)
	assert.Equal(t, float32(1000), f.Saturation)
	assert.Zero(t, f.Noise)
}

func TestCalibrateQuantiles(t *testing.T) {
	f := loadRamp(t)
	err := f.Calibrate(Levels{
		SkyType: SkyAuto,
		MinType: MinQuantile, MinLevel: 0.1,
		MaxType: MaxQuantile, MaxLevel: 0.9,
		Saturation: 50,
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, float32(49.5), f.Background)
	// Low quantile over the lower half {0..49}, high over {50..99}.
	assert.Equal(t, float32(4), f.Min)
	assert.Equal(t, float32(94), f.Max)
}

func TestCalibrateGreyLevel(t *testing.T) {
	f := loadRamp(t)
	err := f.Calibrate(Levels{
		SkyType: SkyAuto,
		MinType: MinGreyLevel, MinLevel: 0.005,
		MaxType: MaxQuantile, MaxLevel: 0.9,
		Saturation: 40000,
	}, 1)
	require.NoError(t, err)
	grey := 0.005
	want := (94*grey - 49.5) / (grey - 1)
	assert.InDelta(t, want, float64(f.Min), 1e-4)

	// A larger gamma factor darkens the grey level.
	g := loadRamp(t)
	require.NoError(t, g.Calibrate(Levels{
		MinType: MinGreyLevel, MinLevel: 0.005,
		MaxType: MaxQuantile, MaxLevel: 0.9,
		Saturation: 40000,
	}, 2))
	grey = math.Pow(0.005, 2)
	assert.InDelta(t, (94*grey-49.5)/(grey-1), float64(g.Min), 1e-4)
}

func TestCalibrateRejectsEmptyRange(t *testing.T) {
	f := loadRamp(t)
	err := f.Calibrate(Levels{
		SkyType: SkyManual,
		MinType: MinManual, MinLevel: 10,
		MaxType: MaxManual, MaxLevel: 10,
		Saturation: 40000,
	}, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrLevelRange))
	assert.Equal(t, errs.KindConfig, errs.KindOf(err))
}

func TestCalibrateSkipsNaN(t *testing.T) {
	data := append(fitstest.Ramp(10, 10, 0, 1), make([]float64, 10)...)
	for i := 100; i < 110; i++ {
		data[i] = math.NaN()
	}
	path := fitstest.Write(t, "nan.fits", fitstest.HDU{Bitpix: -32, Width: 10, Height: 11, Data: data})
	f, err := Load(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Calibrate(Levels{
		MinType: MinQuantile, MinLevel: 0.1,
		MaxType: MaxQuantile, MaxLevel: 0.9,
		Saturation: 40000,
	}, 1))
	assert.Equal(t, float32(49.5), f.Background)
	assert.Equal(t, float32(94), f.Max)
}

func TestCheck(t *testing.T) {
	a, b, c := loadRamp(t), loadRamp(t), loadRamp(t)
	require.NoError(t, Check([]*Field{a}))
	require.NoError(t, Check([]*Field{a, b, c}))

	err := Check([]*Field{a, b})
	assert.True(t, errors.Is(err, errs.ErrChannelCount))

	path := fitstest.Write(t, "small.fits", fitstest.HDU{Bitpix: 8, Width: 3, Height: 3, Data: make([]float64, 9)})
	d, err := Load(path)
	require.NoError(t, err)
	defer d.Close()
	err = Check([]*Field{a, b, d})
	assert.True(t, errors.Is(err, errs.ErrDimensionMismatch))
}

func filters(t *testing.T, names ...string) []*Field {
	t.Helper()
	out := make([]*Field, len(names))
	for i, n := range names {
		out[i] = loadRamp(t, [2]string{"FILTER", "'" + n + "'"})
		out[i].Name = n
	}
	return out
}

func names(fields []*Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out
}

func TestTagModes(t *testing.T) {
	t.Run("manual", func(t *testing.T) {
		fs := filters(t, "g", "r", "i")
		Tag(fs, TagManual, []string{"blue", "green"}, "FILTER")
		assert.Equal(t, []string{"blue", "green", ""}, []string{fs[0].Tag, fs[1].Tag, fs[2].Tag})
		assert.Equal(t, []string{"g", "r", "i"}, names(fs))
	})

	t.Run("keyword", func(t *testing.T) {
		fs := filters(t, "g", "r", "i")
		Tag(fs, TagKeyword, nil, "FILTER")
		assert.Equal(t, "r", fs[1].Tag)
		assert.Equal(t, 1, fs[1].Index)
	})

	t.Run("match", func(t *testing.T) {
		fs := filters(t, "gSDSS", "Ha", "I")
		Tag(fs, TagMatch, []string{"i", "r", "g"}, "FILTER")
		assert.Equal(t, []string{"I", "gSDSS", "Ha"}, names(fs))
		assert.Equal(t, "i", fs[0].Tag)
		assert.Equal(t, "g", fs[1].Tag)
		assert.Equal(t, "Ha", fs[2].Tag)
		assert.Equal(t, 3, fs[2].Index)
	})
}

func TestParseKeywords(t *testing.T) {
	st, err := ParseSkyType("manual")
	require.NoError(t, err)
	assert.Equal(t, SkyManual, st)
	mt, err := ParseMinType("GREYLEVEL")
	require.NoError(t, err)
	assert.Equal(t, MinGreyLevel, mt)
	xt, err := ParseMaxType("quantile")
	require.NoError(t, err)
	assert.Equal(t, MaxQuantile, xt)
	tm, err := ParseTagMode("match")
	require.NoError(t, err)
	assert.Equal(t, TagMatch, tm)

	_, err = ParseMinType("median")
	assert.Error(t, err)
}
