package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ironsheep/skytiff/internal/config"
	"github.com/ironsheep/skytiff/internal/errs"
	"github.com/ironsheep/skytiff/internal/logging"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// defaultConfig is read when present and no -c flag is given.
const defaultConfig = "skytiff.conf"

type options struct {
	configFile string
	dump       bool
	sets       []string
	output     string
	verbose    bool
	quiet      bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "skytiff: %v\n", err)
		os.Exit(errs.ExitCode(err))
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:   "skytiff [flags] image.fits | blue.fits green.fits red.fits",
		Short: "Convert FITS images to display-ready TIFF files",
		Long: `skytiff converts one FITS image to a grey, or three FITS images to a
colour TIFF file. Levels are set from the image statistics, the result is
gamma corrected and may be written as a tiled multi-resolution pyramid.

Environment variables:
  SKYTIFF_LOG_LEVEL=debug    Log level: debug, info, warn or error`,
		Version:       fmt.Sprintf("%s (built %s, commit %s)", Version, BuildTime, GitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.load(cmd)
			if err != nil {
				return err
			}
			if o.dump {
				return cfg.Dump(stdout, "skytiff "+Version)
			}
			if len(args) == 0 {
				_ = cmd.Usage()
				return errs.Configf("no FITS image given")
			}
			logging.SetLogger(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: o.level(cfg)})))
			defer logging.SetLogger(nil)
			summary := stderr
			if o.quiet {
				summary = io.Discard
			}
			return run(cmd.Context(), cfg, args, summary)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	o.register(cmd.Flags())
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
	return cmd
}

func (o *options) register(f *pflag.FlagSet) {
	f.SortFlags = false
	f.StringVarP(&o.configFile, "config", "c", "", "configuration file (default "+defaultConfig+" when present)")
	f.BoolVarP(&o.dump, "dump", "d", false, "print the default configuration and exit")
	f.StringArrayVar(&o.sets, "set", nil, "override a configuration keyword, KEY=VALUE (repeatable)")
	f.StringVarP(&o.output, "output", "o", "", "output file, same as --set OUTFILE_NAME=...")
	f.BoolVar(&o.verbose, "verbose", false, "log progress details")
	f.BoolVarP(&o.quiet, "quiet", "q", false, "log errors only")
}

// load builds the configuration: defaults, then the file, then overrides.
func (o *options) load(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	switch {
	case o.configFile != "":
		if err := cfg.ReadFile(o.configFile); err != nil {
			return nil, err
		}
	case !o.dump:
		if err := cfg.ReadFile(defaultConfig); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	for _, s := range o.sets {
		key, value, ok := strings.Cut(s, "=")
		if !ok {
			return nil, errs.Configf("--set %q: want KEY=VALUE", s)
		}
		if err := cfg.Set(strings.TrimSpace(key), value); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("output") {
		if err := cfg.Set("OUTFILE_NAME", o.output); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// level picks the log level: flags win over SKYTIFF_LOG_LEVEL, which wins
// over VERBOSE_TYPE.
func (o *options) level(cfg *config.Config) slog.Level {
	switch {
	case o.verbose:
		return slog.LevelDebug
	case o.quiet:
		return slog.LevelError
	}
	return logging.ParseLevel(os.Getenv("SKYTIFF_LOG_LEVEL"), cfg.LogLevel())
}
