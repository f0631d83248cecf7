package extbuild

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// fakeToolchain replaces toolExec and execLookPath for the duration of a test.
//
// Every tool is found and succeeds unless listed in missing, or one of its
// arguments contains a key of failOn. A successful invocation creates the
// file named by its -o (or zig's -femit-bin=) argument, which is how the
// compilers produce objects and libraries.
type fakeToolchain struct {
	missing map[string]bool
	failOn  map[string]string // argument substring -> diagnostic
	calls   [][]string
	envs    []map[string]string
}

func installFakeToolchain(t *testing.T) *fakeToolchain {
	t.Helper()

	tc := &fakeToolchain{
		missing: map[string]bool{},
		failOn:  map[string]string{},
	}

	origExec := toolExec
	origLookPath := execLookPath
	t.Cleanup(func() {
		toolExec = origExec
		execLookPath = origLookPath
	})

	toolExec = tc.exec
	execLookPath = tc.lookPath

	for _, key := range []string{"CC", "CXX", "MAKE", "CARGO", "CMAKE_GENERATOR", "CARGO_BUILD_TARGET"} {
		t.Setenv(key, "")
	}
	return tc
}

func (tc *fakeToolchain) lookPath(name string) (string, error) {
	if tc.missing[filepath.Base(name)] {
		return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
	}
	if filepath.IsAbs(name) {
		return name, nil
	}
	return "/usr/bin/" + name, nil
}

func (tc *fakeToolchain) exec(_ context.Context, env map[string]string, stdout, stderr io.Writer, cmd string, args ...string) (bool, error) {
	tc.calls = append(tc.calls, append([]string{cmd}, args...))
	tc.envs = append(tc.envs, env)

	if tc.missing[filepath.Base(cmd)] {
		return false, fmt.Errorf(`failed to run "%s": %w`, cmd, &exec.Error{Name: cmd, Err: exec.ErrNotFound})
	}

	for _, arg := range args {
		for key, diagnostic := range tc.failOn {
			if strings.Contains(arg, key) {
				fmt.Fprintln(stderr, diagnostic)
				return true, errors.New("exit status 1")
			}
		}
	}

	for i, arg := range args {
		var out string
		switch {
		case arg == "-o" && i+1 < len(args):
			out = args[i+1]
		case strings.HasPrefix(arg, "-femit-bin="):
			out = strings.TrimPrefix(arg, "-femit-bin=")
		default:
			continue
		}
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return true, err
		}
		if err := os.WriteFile(out, []byte("\x7fELF"), 0o755); err != nil {
			return true, err
		}
	}

	fmt.Fprintf(stdout, "%s %s\n", filepath.Base(cmd), strings.Join(args, " "))
	return true, nil
}

// commands returns the base names of the executed tools.
func (tc *fakeToolchain) commands() []string {
	names := make([]string, 0, len(tc.calls))
	for _, call := range tc.calls {
		names = append(names, filepath.Base(call[0]))
	}
	return names
}

// writeFile creates path under dir with content, failing the test on error.
func writeFile(t *testing.T, dir, path, content string) string {
	t.Helper()
	full := filepath.Join(dir, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return full
}
