// Package errs defines the error taxonomy shared by the conversion packages.
//
// Every failure that reaches the command line is an *Error carrying a Kind:
//
//   - Config: bad channel count, min >= max, unsupported format. Detected
//     before any allocation; the job does not start.
//   - Resource: arena exhaustion, swap-file creation or mapping failure.
//   - IO: short or failed source reads, sink write failures.
//   - Internal: a broken programming contract.
//
// Use KindOf to classify an arbitrary wrapped error.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfResources    = errors.New("out of memory and swap budget")
	ErrChannelCount      = errors.New("only 1 or 3 channels are supported")
	ErrLevelRange        = errors.New("minimum level must be below maximum level")
	ErrDimensionMismatch = errors.New("image dimensions do not match")
	ErrShortRead         = errors.New("short read")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrClosed            = errors.New("already closed")
)

// Kind classifies an error for reporting and exit codes.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindResource
	KindIO
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "configuration error"
	case KindResource:
		return "resource error"
	case KindIO:
		return "I/O error"
	case KindInternal:
		return "internal error"
	default:
		return "error"
	}
}

// Error is a classified failure. Path names the file or resource involved,
// when there is one.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Op != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Config wraps err as a configuration error.
func Config(op string, err error) error {
	return &Error{Kind: KindConfig, Op: op, Err: err}
}

// Configf builds a configuration error from a format string.
func Configf(format string, args ...any) error {
	return &Error{Kind: KindConfig, Err: fmt.Errorf(format, args...)}
}

// Resource wraps err as a resource error against path (may be empty).
func Resource(op, path string, err error) error {
	return &Error{Kind: KindResource, Op: op, Path: path, Err: err}
}

// IO wraps err as an I/O error against path.
func IO(op, path string, err error) error {
	return &Error{Kind: KindIO, Op: op, Path: path, Err: err}
}

// Internal reports a broken contract.
func Internal(op string, err error) error {
	return &Error{Kind: KindInternal, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ExitCode maps an error to the process exit status used by the CLI.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindConfig:
		return 2
	case KindResource:
		return 3
	case KindIO:
		return 4
	case KindInternal:
		return 5
	default:
		return 1
	}
}
