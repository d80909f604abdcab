package cdo

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// Sentinel errors
var (
	// ErrSourceNotFound is returned when the resolved source file does not exist.
	ErrSourceNotFound = errors.New("source file not found")

	// ErrArtifactMissing is returned by run when the cache record is current
	// but the compiled artifact was removed from the cache directory.
	ErrArtifactMissing = errors.New("compiled artifact not found")
)

// Kind classifies an Error.
type Kind int

const (
	// KindIO covers missing, unreadable or unwritable files and directories.
	KindIO Kind = iota + 1
	// KindCompile means the external compiler reported failure.
	KindCompile
	// KindParse means a fingerprint record held non-numeric content.
	// It is recovered inside the store and never reaches the command boundary.
	KindParse
	// KindCancelled means a compile or run was stopped by its context.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindCompile:
		return "compile"
	case KindParse:
		return "parse"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by the build engine.
// Each kind carries the path it concerns and, for compile failures,
// the compiler exit status.
type Error struct {
	Kind   Kind
	Op     string // operation that failed, e.g. "hash" or "compile"
	Path   string
	Status int // exit status for KindCompile, -1 when unknown
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Op)
	if e.Path != "" {
		buf.WriteString(" ")
		buf.WriteString(e.Path)
	}
	switch e.Kind {
	case KindCompile:
		if e.Status >= 0 {
			fmt.Fprintf(&buf, ": compiler exited with status %d", e.Status)
			return buf.String()
		}
	case KindCancelled:
		buf.WriteString(": cancelled")
		return buf.String()
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// Unwrap returns the underlying cause for use with errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

func ioError(op, path string, err error) error {
	return &Error{Kind: KindIO, Op: op, Path: path, Status: -1, Err: err}
}

// sourceError classifies a failed stat of the source file, tagging a missing
// file with ErrSourceNotFound.
func sourceError(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		err = fmt.Errorf("%w: %w", ErrSourceNotFound, err)
	}
	return ioError("open source", path, err)
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// ExitError asks the binary to exit with Code after printing Msg.
// It is only produced when strict exit codes are enabled.
type ExitError struct {
	Code int
	Msg  string
}

func (e *ExitError) Error() string { return e.Msg }

// ExitCode returns the process exit status requested by the router.
func (e *ExitError) ExitCode() int { return e.Code }

// ValidationError represents one or more configuration problems.
type ValidationError struct {
	Errors []error
}

// Error implements the error interface.
func (ve *ValidationError) Error() string {
	if len(ve.Errors) == 0 {
		return "invalid configuration"
	}
	if len(ve.Errors) == 1 {
		return fmt.Sprintf("invalid configuration: %v", ve.Errors[0])
	}

	var buf strings.Builder
	fmt.Fprintf(&buf, "invalid configuration, %d errors:\n", len(ve.Errors))
	for i, err := range ve.Errors {
		fmt.Fprintf(&buf, "  %d. %v\n", i+1, err)
	}
	return buf.String()
}

// Unwrap returns the underlying errors for use with errors.Is and errors.As.
func (ve *ValidationError) Unwrap() []error {
	return ve.Errors
}

// newValidationError creates a ValidationError from a slice of errors.
// Returns nil if the slice is empty.
func newValidationError(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Errors: errs}
}
