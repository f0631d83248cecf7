package extbuild

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("boom"), KindUnknown},
		{"compile", &CompileError{Builder: "CC", Extension: "pkg._ext", ExitCode: 1}, KindCompile},
		{"wrapped compile", fmt.Errorf("build_ext: %w", &CompileError{ExitCode: 2}), KindCompile},
		{"exec", &ExecError{Tool: "gcc", Err: exec.ErrNotFound}, KindExec},
		{"lookup", &exec.Error{Name: "gcc", Err: exec.ErrNotFound}, KindExec},
		{"not found sentinel", fmt.Errorf("cc: %w", exec.ErrNotFound), KindExec},
		{"platform", &PlatformError{Platform: "js", Reason: "no toolchain"}, KindPlatform},
		{"path", &fs.PathError{Op: "open", Path: "x.c", Err: fs.ErrNotExist}, KindIO},
		{"short write", io.ErrShortWrite, KindIO},
		{"syscall", os.NewSyscallError("fork", syscall.EAGAIN), KindOS},
		{"link", &os.LinkError{Op: "rename", Old: "a", New: "b", Err: syscall.EXDEV}, KindOS},
		{"errno", syscall.ENOSPC, KindOS},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestKindOfPrefersBuildErrors(t *testing.T) {
	// a compiler that failed on a missing header still classifies as compile
	err := &CompileError{
		Builder:   "CC",
		Extension: "pkg._ext",
		ExitCode:  -1,
		Err:       &fs.PathError{Op: "stat", Path: "out.so", Err: fs.ErrNotExist},
	}
	assert.Equal(t, KindCompile, KindOf(err))
}

func TestRecoverableKinds(t *testing.T) {
	t.Run("linux excludes io and os errors", func(t *testing.T) {
		set := RecoverableKinds("linux")
		assert.Equal(t, []ErrorKind{KindCompile, KindExec, KindPlatform}, set.Kinds())
		assert.False(t, set.Matches(&fs.PathError{Op: "open", Path: "x", Err: fs.ErrPermission}))
	})

	t.Run("windows includes io and os errors", func(t *testing.T) {
		set := RecoverableKinds("windows")
		assert.Equal(t, []ErrorKind{KindCompile, KindExec, KindPlatform, KindIO, KindOS}, set.Kinds())
		assert.True(t, set.Matches(&fs.PathError{Op: "open", Path: "x", Err: fs.ErrPermission}))
		assert.True(t, set.Matches(syscall.EACCES))
	})

	t.Run("never matches nil or unknown errors", func(t *testing.T) {
		set := RecoverableKinds("windows")
		assert.False(t, set.Matches(nil))
		assert.False(t, set.Matches(errors.New("nil pointer dereference")))
	})
}

func TestCompileErrorMessages(t *testing.T) {
	t.Run("with exit code", func(t *testing.T) {
		err := &CompileError{
			Builder:   "CC",
			Extension: "ddtrace.vendor.wrapt._wrappers",
			ExitCode:  1,
			Output:    []string{"gcc -c _wrappers.c", "_wrappers.c:1:10: fatal error: Python.h: No such file or directory"},
		}

		assert.Equal(t, "CC build of ddtrace.vendor.wrapt._wrappers failed with exit code 1", err.Error())
		assert.Equal(t,
			"CC build of ddtrace.vendor.wrapt._wrappers failed with exit code 1\n\nBuild output:\n"+
				"gcc -c _wrappers.c\n_wrappers.c:1:10: fatal error: Python.h: No such file or directory",
			err.Details())
	})

	t.Run("without a tool run", func(t *testing.T) {
		err := &CompileError{Extension: "pkg._ext", ExitCode: -1, Err: ErrNoBuilder}

		assert.Equal(t, "build of pkg._ext failed: "+ErrNoBuilder.Error(), err.Error())
		assert.Equal(t, err.Error(), err.Details())
		assert.ErrorIs(t, err, ErrNoBuilder)
	})
}

func TestPlatformErrorUnwrapsToSentinel(t *testing.T) {
	err := fmt.Errorf("install: %w", &PlatformError{Platform: "wasip1", Reason: "no loader"})

	require.ErrorIs(t, err, ErrUnsupportedPlatform)

	var platformErr *PlatformError
	require.ErrorAs(t, err, &platformErr)
	assert.Equal(t, "wasip1", platformErr.Platform)
}

func TestCheckPlatform(t *testing.T) {
	for _, goos := range []string{"linux", "darwin", "windows", "freebsd"} {
		assert.NoError(t, CheckPlatform(goos), goos)
	}
	for _, goos := range []string{"js", "wasip1", "plan9"} {
		var platformErr *PlatformError
		assert.ErrorAs(t, CheckPlatform(goos), &platformErr, goos)
	}
}

func TestExtensionFilename(t *testing.T) {
	assert.Equal(t, filepath.Join("ddtrace", "vendor", "msgpack", "_cmsgpack.so"), ExtensionFilename("ddtrace.vendor.msgpack._cmsgpack", "linux"))
	assert.Equal(t, "_speedups.dll", ExtensionFilename("_speedups", "windows"))
}
