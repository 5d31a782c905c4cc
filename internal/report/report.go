// Package report records what a run did as a JSON document.
package report

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/ironsheep/skytiff/internal/config"
	"github.com/ironsheep/skytiff/internal/convert"
	"github.com/ironsheep/skytiff/internal/errs"
	"github.com/ironsheep/skytiff/internal/field"
	"github.com/ironsheep/skytiff/internal/preview"
)

// Stdout is the REPORT_NAME that sends the report to standard output.
const Stdout = "STDOUT"

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

// Software identifies the program.
type Software struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
}

// Channel summarises one input field.
type Channel struct {
	Index      int     `json:"index"`
	File       string  `json:"file"`
	Extension  int     `json:"extension"`
	Ident      string  `json:"ident"`
	Tag        string  `json:"tag"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Bitpix     int     `json:"bitpix"`
	Background float64 `json:"background"`
	Noise      float64 `json:"noise"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Saturation float64 `json:"saturation"`
}

// Level summarises one written resolution level.
type Level struct {
	Index   int     `json:"index"`
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	Backing string  `json:"backing"`
	Seconds float64 `json:"seconds"`
}

// Report is the run record.
type Report struct {
	Software  Software         `json:"software"`
	Output    string           `json:"output"`
	StartDate string           `json:"start_date"`
	StartTime string           `json:"start_time"`
	EndDate   string           `json:"end_date,omitempty"`
	EndTime   string           `json:"end_time,omitempty"`
	Duration  float64          `json:"duration_s"`
	Workers   int              `json:"workers"`
	BigTIFF   bool             `json:"bigtiff"`
	Config    []config.Setting `json:"configuration"`
	Channels  []Channel        `json:"channels"`
	Levels    []Level          `json:"levels"`
	Preview   *preview.Result  `json:"preview,omitempty"`
	Error     string           `json:"error,omitempty"`
	ExitCode  int              `json:"exit_code"`

	start time.Time
}

// New starts a report at start with the preferences of the run.
func New(sw Software, c *config.Config, start time.Time) *Report {
	return &Report{
		Software:  sw,
		Output:    c.OutFile,
		StartDate: start.Format(dateLayout),
		StartTime: start.Format(timeLayout),
		Workers:   c.Workers(),
		Config:    c.Values(),
		Channels:  []Channel{},
		Levels:    []Level{},
		start:     start,
	}
}

// AddFields records the calibrated channels in display order.
func (r *Report) AddFields(fields []*field.Field) {
	for i, f := range fields {
		ch := Channel{
			Index:      i,
			File:       f.File,
			Ident:      f.Ident,
			Tag:        f.Tag,
			Background: float64(f.Background),
			Noise:      f.Noise,
			Min:        float64(f.Min),
			Max:        float64(f.Max),
			Saturation: float64(f.Saturation),
		}
		if f.Image != nil {
			ch.Extension = f.Image.Ext
			ch.Width, ch.Height = f.Width(), f.Height()
			ch.Bitpix = f.Image.Bitpix
		}
		r.Channels = append(r.Channels, ch)
	}
}

// AddLevels records the written levels.
func (r *Report) AddLevels(levels []convert.Level) {
	for _, l := range levels {
		r.Levels = append(r.Levels, Level{
			Index:   l.Index,
			Width:   l.Width,
			Height:  l.Height,
			Backing: l.Backing.String(),
			Seconds: l.Elapsed.Seconds(),
		})
	}
}

// Finish stamps the end of the run and the error that ended it, if any.
func (r *Report) Finish(end time.Time, err error) {
	r.EndDate = end.Format(dateLayout)
	r.EndTime = end.Format(timeLayout)
	r.Duration = end.Sub(r.start).Seconds()
	if err != nil {
		r.Error = err.Error()
		r.ExitCode = errs.ExitCode(err)
	}
}

// Encode writes the report as indented JSON.
func (r *Report) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Save writes the report to name, or to standard output when name is
// Stdout. An empty name writes nothing.
func (r *Report) Save(name string) error {
	switch name {
	case "":
		return nil
	case Stdout:
		if err := r.Encode(os.Stdout); err != nil {
			return errs.IO("report", name, err)
		}
		return nil
	}
	f, err := os.Create(name)
	if err != nil {
		return errs.IO("report", name, err)
	}
	if err := r.Encode(f); err != nil {
		f.Close()
		return errs.IO("report", name, err)
	}
	if err := f.Close(); err != nil {
		return errs.IO("report", name, err)
	}
	return nil
}
