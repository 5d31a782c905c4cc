package main

import (
	"context"
	"io"
	"log/slog"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ironsheep/skytiff/internal/arena"
	"github.com/ironsheep/skytiff/internal/config"
	"github.com/ironsheep/skytiff/internal/convert"
	"github.com/ironsheep/skytiff/internal/errs"
	"github.com/ironsheep/skytiff/internal/field"
	"github.com/ironsheep/skytiff/internal/logging"
	"github.com/ironsheep/skytiff/internal/preview"
	"github.com/ironsheep/skytiff/internal/report"
	"github.com/ironsheep/skytiff/internal/tiff"
	"github.com/ironsheep/skytiff/internal/tone"
)

// run converts files according to cfg and prints a one-line summary to
// summary. The report, when requested, is written whatever the outcome.
func run(ctx context.Context, cfg *config.Config, files []string, summary io.Writer) (err error) {
	start := time.Now()
	rep := report.New(report.Software{Name: "skytiff", Version: Version, Commit: GitCommit}, cfg, start)
	defer func() {
		rep.Finish(time.Now(), err)
		if rerr := rep.Save(cfg.ReportName); rerr != nil && err == nil {
			err = rerr
		}
	}()

	if err := cfg.Validate(len(files)); err != nil {
		return err
	}
	a := arena.New(cfg.Arena())
	defer a.Cleanup()

	fields := make([]*field.Field, 0, len(files))
	defer func() {
		if cerr := field.CloseAll(fields); cerr != nil {
			logging.Logger().Warn("closing inputs", slog.Any("error", cerr))
		}
	}()
	for _, name := range files {
		f, err := field.Load(name)
		if err != nil {
			return err
		}
		fields = append(fields, f)
	}
	if err := field.Check(fields); err != nil {
		return err
	}

	mode, err := cfg.TagMode()
	if err != nil {
		return err
	}
	field.Tag(fields, mode, cfg.ChannelTags, cfg.ChannelTagKey)

	levels, err := cfg.Levels(len(fields))
	if err != nil {
		return err
	}
	toneLevels := make([]tone.Levels, len(fields))
	for i, f := range fields {
		if err := f.Calibrate(levels[i], cfg.GammaFac); err != nil {
			return err
		}
		toneLevels[i] = tone.Levels{Min: f.Min, Max: f.Max}
	}
	rep.AddFields(fields)

	params, err := cfg.ToneParams()
	if err != nil {
		return err
	}
	conv, err := tone.New(params, toneLevels)
	if err != nil {
		return err
	}

	bx, by := cfg.Bin()
	fx, fy := cfg.FlipXY()
	opts := convert.Options{
		BinX:    bx,
		BinY:    by,
		FlipX:   fx,
		FlipY:   fy,
		Pyramid: cfg.Pyramid(),
		MinSize: cfg.PyramidMin,
		Workers: cfg.Workers(),
	}
	sizes := convert.Plan(fields[0].Width(), fields[0].Height(), opts)
	estimate := convert.Estimate(sizes, conv.BytesPerPixel())
	topts, err := cfg.TIFFOptions(len(fields), "skytiff "+Version, estimate)
	if err != nil {
		return err
	}

	p := message.NewPrinter(language.English)
	logging.Logger().Info("converting",
		slog.String("output", cfg.OutFile), slog.Int("channels", len(fields)),
		slog.String("pixels", p.Sprintf("%d", int64(sizes[0].Width)*int64(sizes[0].Height))),
		slog.Int("levels", len(sizes)), slog.String("bytes", p.Sprintf("%d", estimate)),
		slog.Int("workers", opts.Workers))

	w, err := tiff.Create(cfg.OutFile, topts)
	if err != nil {
		return err
	}
	rep.BigTIFF = w.BigTIFF()

	var sink convert.Sink = w
	var pv *preview.Sink
	if cfg.PreviewName != "" {
		pv = preview.Wrap(w, preview.Options{MaxSource: cfg.PreviewMaxSource, Size: cfg.PreviewSize, Format: params.Format})
		sink = pv
	}

	sources := make([]convert.Source, len(fields))
	for i, f := range fields {
		sources[i] = f.Image
	}
	d, err := convert.New(a, conv, sink, opts)
	if err != nil {
		w.Close()
		return err
	}
	written, err := d.Run(ctx, sources)
	rep.AddLevels(written)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	if pv != nil {
		res, err := pv.Save(cfg.PreviewName)
		switch {
		case errs.KindOf(err) == errs.KindConfig:
			logging.Logger().Warn("no preview written", slog.Any("reason", err))
		case err != nil:
			return err
		}
		rep.Preview = res
	}

	p.Fprintf(summary, "%s: %d×%d, %d level(s), %d pixels in %.1f s\n", cfg.OutFile,
		sizes[0].Width, sizes[0].Height, len(written), int64(sizes[0].Width)*int64(sizes[0].Height),
		time.Since(start).Seconds())
	return nil
}
