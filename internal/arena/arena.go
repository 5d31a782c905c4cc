package arena

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ironsheep/skytiff/internal/errs"
	"github.com/ironsheep/skytiff/internal/logging"
)

// SampleSize is the size in bytes of one plane sample.
const SampleSize = 4

// MB is the unit of the command-line budgets.
const MB = 1024 * 1024

// Backing tells where the samples of a Plane live.
type Backing int

const (
	// Empty planes hold no samples; Acquire(0) returns one.
	Empty Backing = iota
	// Memory planes are regular Go slices charged against the RAM budget.
	Memory
	// Mapped planes live in a memory-mapped swap file.
	Mapped
)

func (b Backing) String() string {
	switch b {
	case Memory:
		return "memory"
	case Mapped:
		return "mapped"
	default:
		return "empty"
	}
}

// Config sets the arena budgets.
type Config struct {
	// MaxRAM is the RAM budget in bytes.
	MaxRAM int64
	// MaxDisk is the swap-file budget in bytes.
	MaxDisk int64
	// SwapDir is the directory receiving swap files. Empty means os.TempDir().
	SwapDir string
}

// Plane is one contiguous run of float32 samples owned by its caller until
// it is given back with Arena.Release.
type Plane struct {
	data     []float32
	mapping  []byte
	backing  Backing
	path     string
	released bool
}

// Data returns the samples. The slice is invalid after Release.
func (p *Plane) Data() []float32 {
	if p == nil {
		return nil
	}
	return p.data
}

// Len returns the number of samples.
func (p *Plane) Len() int {
	if p == nil {
		return 0
	}
	return len(p.data)
}

// Bytes returns the size of the plane in bytes.
func (p *Plane) Bytes() int64 {
	return int64(p.Len()) * SampleSize
}

// Backing reports where the plane lives.
func (p *Plane) Backing() Backing {
	if p == nil {
		return Empty
	}
	return p.backing
}

// Path returns the swap file of a mapped plane, or "".
func (p *Plane) Path() string {
	if p == nil {
		return ""
	}
	return p.path
}

// Arena is a RAM/disk-budgeted plane allocator.
type Arena struct {
	cfg  Config
	pid  int
	once sync.Once

	mu       sync.Mutex
	ramLeft  int64
	diskLeft int64
	counter  uint32
	files    map[string]struct{}

	// allocRAM allocates an in-memory plane. Tests replace it to simulate
	// allocation failure.
	allocRAM func(n int) ([]float32, error)
}

// New creates an arena. Budgets are taken from cfg on first use.
func New(cfg Config) *Arena {
	if cfg.SwapDir == "" {
		cfg.SwapDir = os.TempDir()
	}
	return &Arena{
		cfg:   cfg,
		pid:   os.Getpid(),
		files: make(map[string]struct{}),
		allocRAM: func(n int) ([]float32, error) {
			return make([]float32, n), nil
		},
	}
}

func (a *Arena) init() {
	a.once.Do(func() {
		a.mu.Lock()
		a.ramLeft = a.cfg.MaxRAM
		a.diskLeft = a.cfg.MaxDisk
		a.mu.Unlock()
	})
}

// Acquire returns a plane of n samples.
//
// n == 0 yields an empty plane whose Release is a no-op. Otherwise the plane
// is served from RAM when n*SampleSize is below the remaining RAM budget and
// the allocation succeeds, then from a swap file when it is below the
// remaining disk budget. When both fail the error wraps
// errs.ErrOutOfResources.
func (a *Arena) Acquire(n int) (*Plane, error) {
	a.init()
	if n < 0 {
		return nil, errs.Internal("arena acquire", fmt.Errorf("negative sample count %d", n))
	}
	if n == 0 {
		return &Plane{}, nil
	}
	size := int64(n) * SampleSize

	if p := a.acquireRAM(n, size); p != nil {
		return p, nil
	}

	a.mu.Lock()
	if size >= a.diskLeft {
		ram, disk := a.ramLeft, a.diskLeft
		a.mu.Unlock()
		return nil, errs.Resource("arena acquire", "", fmt.Errorf("%w: need %d bytes, %d RAM and %d swap left",
			errs.ErrOutOfResources, size, ram, disk))
	}
	a.diskLeft -= size
	a.counter++
	name := filepath.Join(a.cfg.SwapDir, fmt.Sprintf("vm%05d_%05x.tmp", a.pid, a.counter))
	a.files[name] = struct{}{}
	a.mu.Unlock()

	p, err := a.mapSwap(name, n, size)
	if err != nil {
		a.mu.Lock()
		a.diskLeft += size
		delete(a.files, name)
		a.mu.Unlock()
		return nil, err
	}
	logging.Logger().Debug("arena: swap plane created", "file", name, "bytes", size)
	return p, nil
}

func (a *Arena) acquireRAM(n int, size int64) *Plane {
	a.mu.Lock()
	if size >= a.ramLeft {
		a.mu.Unlock()
		return nil
	}
	a.ramLeft -= size
	a.mu.Unlock()

	data, err := a.allocRAM(n)
	if err != nil || len(data) != n {
		a.mu.Lock()
		a.ramLeft += size
		a.mu.Unlock()
		return nil
	}
	return &Plane{data: data, backing: Memory}
}

func (a *Arena) mapSwap(name string, n int, size int64) (*Plane, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
	if err != nil {
		return nil, errs.Resource("cannot create swap-file", name, err)
	}
	defer f.Close()

	if err := f.Truncate(size); err != nil {
		os.Remove(name)
		return nil, errs.Resource("cannot grow swap-file", name, err)
	}
	mapping, err := mapFile(f, size)
	if err != nil {
		os.Remove(name)
		return nil, errs.Resource("cannot map swap-file", name, err)
	}
	return &Plane{
		data:    floats(mapping, n),
		mapping: mapping,
		backing: Mapped,
		path:    name,
	}, nil
}

// Release gives a plane back to the arena. Releasing nil or an empty plane
// does nothing; releasing the same plane twice is an internal error.
func (a *Arena) Release(p *Plane) error {
	if p == nil || p.backing == Empty {
		return nil
	}
	if p.released {
		return errs.Internal("arena release", errors.New("plane released twice"))
	}
	p.released = true
	size := p.Bytes()
	log := logging.Logger()

	switch p.backing {
	case Mapped:
		if err := unmapFile(p.mapping); err != nil {
			log.Warn("arena: cannot unmap swap-file", "file", p.path, "err", err)
		}
		if err := os.Remove(p.path); err != nil {
			log.Warn("arena: cannot delete swap-file", "file", p.path, "err", err)
		}
		a.mu.Lock()
		a.diskLeft += size
		delete(a.files, p.path)
		a.mu.Unlock()
	case Memory:
		a.mu.Lock()
		a.ramLeft += size
		a.mu.Unlock()
	}
	p.data = nil
	p.mapping = nil
	return nil
}

// ReleaseAll releases every plane, returning the first error.
func (a *Arena) ReleaseAll(planes []*Plane) error {
	var first error
	for _, p := range planes {
		if err := a.Release(p); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Left returns the remaining RAM and disk budgets in bytes.
func (a *Arena) Left() (ram, disk int64) {
	a.init()
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ramLeft, a.diskLeft
}

// SwapFiles returns the registered swap files in name order.
func (a *Arena) SwapFiles() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.files))
	for name := range a.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cleanup deletes every registered swap file. It is meant for interrupt
// handlers and process exit; mappings are left to the kernel.
func (a *Arena) Cleanup() {
	a.mu.Lock()
	names := make([]string, 0, len(a.files))
	for name := range a.files {
		names = append(names, name)
	}
	a.files = make(map[string]struct{})
	a.mu.Unlock()

	for _, name := range names {
		if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
			logging.Logger().Warn("arena: cannot delete swap-file", "file", name, "err", err)
		}
	}
}
