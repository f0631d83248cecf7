package extbuild

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

// ErrorKind classifies an extension build failure.
//
// Kinds are what the resilient build step matches on when deciding whether a
// failure is an expected toolchain problem (demoted to a warning) or a genuine
// bug that must propagate.
type ErrorKind int

const (
	// KindUnknown is any error not recognised as a build tool failure.
	KindUnknown ErrorKind = iota
	// KindCompile means a compiler or build tool ran and failed.
	KindCompile
	// KindExec means a required executable could not be started.
	KindExec
	// KindPlatform means the host cannot build native code at all.
	KindPlatform
	// KindIO covers file level I/O failures.
	KindIO
	// KindOS covers system call level failures.
	KindOS
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindCompile:
		return "compile"
	case KindExec:
		return "exec"
	case KindPlatform:
		return "platform"
	case KindIO:
		return "io"
	case KindOS:
		return "os"
	default:
		return "unknown"
	}
}

// ErrNoBuilder is wrapped by the CompileError returned when no registered
// builder can handle an extension's sources.
var ErrNoBuilder = errors.New("no builder can handle the extension sources")

// ErrUnsupportedPlatform is wrapped by every PlatformError.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// CompileError reports that a build tool ran for an extension and failed.
type CompileError struct {
	Builder   string   // Builder that ran the tool (e.g. "CC", "Cargo")
	Extension string   // Extension name
	ExitCode  int      // Tool exit code, -1 when no tool was run
	Output    []string // Captured tool output
	Err       error    // Underlying error
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("%s build of %s failed with exit code %d", e.Builder, e.Extension, e.ExitCode)
	}
	if e.Builder == "" {
		return fmt.Sprintf("build of %s failed: %v", e.Extension, e.Err)
	}
	return fmt.Sprintf("%s build of %s failed: %v", e.Builder, e.Extension, e.Err)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e *CompileError) Unwrap() error {
	return e.Err
}

// Details returns the error message followed by the captured build output.
//
// Format:
//
//	CC build of pkg._ext failed with exit code 1
//
//	Build output:
//	gcc -c _ext.c -o _ext.o
//	_ext.c:1:10: fatal error: Python.h: No such file or directory
func (e *CompileError) Details() string {
	outputStr := strings.TrimSpace(strings.Join(e.Output, "\n"))
	if outputStr == "" {
		return e.Error()
	}
	return fmt.Sprintf("%s\n\nBuild output:\n%s", e.Error(), outputStr)
}

// ExecError reports that a build tool could not be executed at all,
// typically because it is not installed.
type ExecError struct {
	Tool string
	Err  error
}

// Error implements the error interface.
func (e *ExecError) Error() string {
	return fmt.Sprintf("failed to execute %s: %v", e.Tool, e.Err)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e *ExecError) Unwrap() error {
	return e.Err
}

// PlatformError reports that native extensions cannot be built on the
// target platform.
type PlatformError struct {
	Platform string
	Reason   string
}

// Error implements the error interface.
func (e *PlatformError) Error() string {
	return fmt.Sprintf("unsupported platform %s: %s", e.Platform, e.Reason)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e *PlatformError) Unwrap() error {
	return ErrUnsupportedPlatform
}

// KindOf classifies err. Build tool errors are matched first, then
// executable lookup failures, then file and system call errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return KindCompile
	}
	var execErr *ExecError
	if errors.As(err, &execErr) {
		return KindExec
	}
	var platformErr *PlatformError
	if errors.As(err, &platformErr) {
		return KindPlatform
	}

	var lookupErr *exec.Error
	if errors.As(err, &lookupErr) || errors.Is(err, exec.ErrNotFound) {
		return KindExec
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrShortWrite) {
		return KindIO
	}

	var syscallErr *os.SyscallError
	var linkErr *os.LinkError
	var errno syscall.Errno
	if errors.As(err, &syscallErr) || errors.As(err, &linkErr) || errors.As(err, &errno) {
		return KindOS
	}

	return KindUnknown
}

// KindSet is a set of error kinds considered recoverable.
type KindSet map[ErrorKind]struct{}

// NewKindSet builds a set from kinds.
func NewKindSet(kinds ...ErrorKind) KindSet {
	set := make(KindSet, len(kinds))
	for _, kind := range kinds {
		set[kind] = struct{}{}
	}
	return set
}

// Contains reports whether kind is in the set.
func (s KindSet) Contains(kind ErrorKind) bool {
	_, ok := s[kind]
	return ok
}

// Matches reports whether err is non-nil and of a kind in the set.
func (s KindSet) Matches(err error) bool {
	if err == nil {
		return false
	}
	return s.Contains(KindOf(err))
}

// Kinds returns the set members in ascending order.
func (s KindSet) Kinds() []ErrorKind {
	var kinds []ErrorKind
	for kind := KindCompile; kind <= KindOS; kind++ {
		if s.Contains(kind) {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// RecoverableKinds returns the error kinds an extension build may fail with
// on goos without failing the installation.
//
// Toolchains on windows commonly fail with plain I/O and system call errors,
// so those are recoverable there and nowhere else.
func RecoverableKinds(goos string) KindSet {
	set := NewKindSet(KindCompile, KindExec, KindPlatform)
	if goos == platformWindows {
		set[KindIO] = struct{}{}
		set[KindOS] = struct{}{}
	}
	return set
}
