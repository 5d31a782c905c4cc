// Package pipeline runs band conversion on a pool of workers feeding a
// single writer.
//
// A job is a sequence of bands. Each band is split into rows that workers
// claim from a shared counter and convert into an output buffer. Once every
// row of a band is done the buffer goes to the writer goroutine, which
// writes bands strictly in order. Two output buffers alternate so workers
// can start on band k+1 while the writer is still busy with band k.
//
// Usage:
//
//	c := pipeline.New(runtime.NumCPU() - 1)
//	err := c.Run(ctx, pipeline.Job{
//	    Bands:   nbands,
//	    Rows:    func(band int) int { return rowsIn(band) },
//	    BufSize: bandBytes,
//	    Work:    convertRow,
//	    Write:   writeBand,
//	})
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/skytiff/internal/errs"
	"github.com/ironsheep/skytiff/internal/logging"
)

// Job describes the bands of one conversion.
type Job struct {
	// Bands is the number of bands, written in order 0..Bands-1.
	Bands int
	// Rows returns how many rows band holds.
	Rows func(band int) int
	// BufSize is the size of one band output buffer.
	BufSize int
	// Work converts one row of a band into out. worker identifies the
	// calling goroutine, in [0, workers).
	Work func(worker, band, row int, out []byte) error
	// Write consumes a fully converted band. It runs on one goroutine.
	Write func(band int, out []byte) error
}

func (j Job) validate() error {
	if j.Bands < 0 || j.BufSize < 0 || j.Rows == nil || j.Work == nil || j.Write == nil {
		return errs.Internal("pipeline", fmt.Errorf("incomplete job description"))
	}
	return nil
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithStateHook calls fn on every state transition. Calls are serialised.
func WithStateHook(fn func(State)) Option {
	return func(c *Coordinator) { c.hook = fn }
}

// Coordinator schedules band work. It may run several jobs, one at a time.
type Coordinator struct {
	workers int
	hook    func(State)

	mu    sync.Mutex
	state State
}

// New returns a coordinator using the given number of workers. One or
// fewer workers converts and writes every band on the calling goroutine.
func New(workers int, opts ...Option) *Coordinator {
	if workers < 1 {
		workers = 1
	}
	c := &Coordinator{workers: workers}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Workers returns the configured worker count.
func (c *Coordinator) Workers() int { return c.workers }

// State returns the current phase.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) set(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
	if c.hook != nil {
		c.hook(s)
	}
}

// band is the work order broadcast to every worker.
type band struct {
	index int
	rows  int
	next  *atomic.Int64
	out   []byte
	done  chan<- struct{}
}

// Run executes job and returns the first error raised by a worker, the
// writer or ctx. Remaining goroutines stop at their next row or band.
func (c *Coordinator) Run(ctx context.Context, job Job) error {
	if err := job.validate(); err != nil {
		return err
	}
	c.set(Idle)
	defer c.set(Terminated)

	if c.workers == 1 {
		return c.runSerial(ctx, job)
	}

	g, gctx := errgroup.WithContext(ctx)

	starts := make([]chan band, c.workers)
	for i := range starts {
		starts[i] = make(chan band, 1)
		worker := i
		in := starts[i]
		g.Go(func() error { return c.work(gctx, worker, in, job) })
	}

	type written struct {
		index int
		out   []byte
	}
	free := make(chan []byte, 2)
	free <- make([]byte, job.BufSize)
	free <- make([]byte, job.BufSize)
	toWriter := make(chan written, 1)

	g.Go(func() error {
		for w := range toWriter {
			c.set(WriterRunning)
			if err := job.Write(w.index, w.out); err != nil {
				return err
			}
			c.set(WriterDone)
			free <- w.out
		}
		return nil
	})

	g.Go(func() error {
		defer func() {
			for _, s := range starts {
				close(s)
			}
			close(toWriter)
		}()

		done := make(chan struct{}, c.workers)
		for k := 0; k < job.Bands; k++ {
			var out []byte
			select {
			case out = <-free:
			case <-gctx.Done():
				return gctx.Err()
			}

			c.set(WorkAvailable)
			b := band{index: k, rows: job.Rows(k), next: new(atomic.Int64), out: out, done: done}
			for _, s := range starts {
				s <- b
			}
			c.set(WorkersRunning)
			for i := 0; i < c.workers; i++ {
				select {
				case <-done:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			c.set(WorkersDone)
			logging.Logger().Debug("band converted", slog.Int("band", k), slog.Int("rows", b.rows))

			select {
			case toWriter <- written{index: k, out: out}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	return g.Wait()
}

// work is the loop of one worker goroutine.
func (c *Coordinator) work(ctx context.Context, worker int, in <-chan band, job Job) error {
	for b := range in {
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			row := int(b.next.Add(1)) - 1
			if row >= b.rows {
				break
			}
			if err := job.Work(worker, b.index, row, b.out); err != nil {
				return err
			}
		}
		b.done <- struct{}{}
	}
	return nil
}

func (c *Coordinator) runSerial(ctx context.Context, job Job) error {
	out := make([]byte, job.BufSize)
	for k := 0; k < job.Bands; k++ {
		c.set(WorkAvailable)
		c.set(WorkersRunning)
		rows := job.Rows(k)
		for row := 0; row < rows; row++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := job.Work(0, k, row, out); err != nil {
				return err
			}
		}
		c.set(WorkersDone)
		c.set(WriterRunning)
		if err := job.Write(k, out); err != nil {
			return err
		}
		c.set(WriterDone)
	}
	return nil
}
