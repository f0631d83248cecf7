package extbuild

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPackage() Package {
	return Package{
		Name:     "ddtrace",
		Version:  "0.20.0",
		Packages: []string{"ddtrace"},
		Exclude:  []string{"*.c", "*.cpp", "extensions.yaml"},
	}
}

// newProject lays out a small package tree with one vendored C extension.
func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "ddtrace/__init__.py", "")
	writeFile(t, root, "ddtrace/tracer.py", "class Tracer: pass\n")
	writeFile(t, root, "ddtrace/vendor/wrapt/__init__.py", "")
	writeFile(t, root, "ddtrace/vendor/wrapt/_wrappers.c", "int x;\n")
	writeFile(t, root, "ddtrace/vendor/wrapt/_stale.so", "old build")
	writeFile(t, root, "ddtrace/vendor/wrapt/extensions.yaml", "version: 1\nextensions: []\n")
	return root
}

func TestDirInstallerInstallsPureFiles(t *testing.T) {
	root := newProject(t)
	dest := t.TempDir()
	installer := &DirInstaller{Build: BuildConfig{ProjectDir: root}, DestDir: dest}

	report, err := installer.Install(context.Background(), NewInstallConfig(testPackage()))
	require.NoError(t, err)

	want := []string{
		"ddtrace/__init__.py",
		"ddtrace/tracer.py",
		"ddtrace/vendor/wrapt/__init__.py",
	}
	assert.Equal(t, want, report.Files)
	assert.Nil(t, report.Extensions)

	for _, file := range want {
		assert.FileExists(t, filepath.Join(dest, filepath.FromSlash(file)))
	}
	assert.NoFileExists(t, filepath.Join(dest, "ddtrace", "vendor", "wrapt", "_stale.so"))
	assert.NoFileExists(t, filepath.Join(dest, "ddtrace", "vendor", "wrapt", "_wrappers.c"))

	manifest, err := ReadManifest(report.Manifest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "ddtrace-0.20.0.install.yaml"), report.Manifest)
	assert.Equal(t, want, manifest.Files)
	assert.Nil(t, manifest.Extensions)
}

func TestDirInstallerInstallsBuiltLibraries(t *testing.T) {
	root := newProject(t)
	dest := t.TempDir()
	build := BuildConfig{ProjectDir: root, GOOS: "linux"}

	handler := BuildExtHandlerFunc(func(_ context.Context, config *BuildConfig, specs []ExtensionSpec) (*BuildReport, error) {
		report := &BuildReport{Requested: extensionNames(specs)}
		lib := ExtensionFilename(specs[0].Name, config.Platform())
		writeFile(t, config.buildDir(), filepath.ToSlash(lib), "\x7fELF")
		report.Built = append(report.Built, &BuildResult{Extension: specs[0].Name, Success: true, Libraries: []string{filepath.ToSlash(lib)}})
		report.Skipped = append(report.Skipped, SkippedExtension{Name: specs[1].Name, Err: &CompileError{Builder: "CC", Extension: specs[1].Name, ExitCode: 1}})
		return report, nil
	})

	cfg := NewInstallConfig(testPackage()).
		WithExtensions([]ExtensionSpec{
			{Name: "ddtrace.vendor.wrapt._wrappers", Sources: []string{"ddtrace/vendor/wrapt/_wrappers.c"}},
			{Name: "ddtrace.vendor.psutil._psutil_linux", Sources: []string{"ddtrace/vendor/psutil/_psutil_linux.c"}},
		}).
		WithBuildExt(handler)

	installer := &DirInstaller{Build: build, DestDir: dest}
	report, err := installer.Install(context.Background(), cfg)
	require.NoError(t, err)

	assert.Contains(t, report.Files, "ddtrace/vendor/wrapt/_wrappers.so")
	assert.FileExists(t, filepath.Join(dest, "ddtrace", "vendor", "wrapt", "_wrappers.so"))

	manifest, err := ReadManifest(report.Manifest)
	require.NoError(t, err)
	require.NotNil(t, manifest.Extensions)
	assert.Equal(t, []string{"ddtrace.vendor.wrapt._wrappers"}, manifest.Extensions.Built)
	require.Len(t, manifest.Extensions.Skipped, 1)
	assert.Equal(t, "ddtrace.vendor.psutil._psutil_linux", manifest.Extensions.Skipped[0].Name)
	assert.Contains(t, manifest.Extensions.Skipped[0].Error, "exit code 1")
}

func TestDirInstallerKeepsPureFilesWhenBuildFails(t *testing.T) {
	root := newProject(t)
	dest := t.TempDir()
	failure := errors.New("unexpected handler failure")

	cfg := NewInstallConfig(testPackage()).
		WithExtensions([]ExtensionSpec{{Name: "ddtrace._x", Sources: []string{"x.c"}}}).
		WithBuildExt(BuildExtHandlerFunc(func(context.Context, *BuildConfig, []ExtensionSpec) (*BuildReport, error) {
			return nil, failure
		}))

	installer := &DirInstaller{Build: BuildConfig{ProjectDir: root}, DestDir: dest}
	_, err := installer.Install(context.Background(), cfg)

	assert.ErrorIs(t, err, failure)
	assert.FileExists(t, filepath.Join(dest, "ddtrace", "tracer.py"))
}

func TestDirInstallerBuildsWithDefaultHandler(t *testing.T) {
	tc := installFakeToolchain(t)
	root := newProject(t)
	dest := t.TempDir()

	cfg := NewInstallConfig(testPackage()).WithExtensions([]ExtensionSpec{{
		Name:         "ddtrace.vendor.wrapt._wrappers",
		Sources:      []string{"ddtrace/vendor/wrapt/_wrappers.c"},
		DefineMacros: []string{"WRAPT_FAST=1"},
	}})

	installer := &DirInstaller{Build: BuildConfig{ProjectDir: root, GOOS: "linux"}, DestDir: dest}
	report, err := installer.Install(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"ddtrace.vendor.wrapt._wrappers"}, report.Extensions.BuiltNames())
	assert.FileExists(t, filepath.Join(dest, "ddtrace", "vendor", "wrapt", "_wrappers.so"))
	assert.Equal(t, []string{"gcc", "gcc"}, tc.commands())
	assert.Contains(t, tc.calls[0], "-DWRAPT_FAST=1")
	assert.Contains(t, tc.calls[1], "-shared")
}

func TestDirInstallerRejectsInvalidPackage(t *testing.T) {
	installer := &DirInstaller{Build: BuildConfig{ProjectDir: t.TempDir()}, DestDir: t.TempDir()}

	for _, pkg := range []Package{
		{Version: "1.0", Packages: []string{"x"}},
		{Name: "x", Packages: []string{"x"}},
		{Name: "x", Version: "1.0"},
	} {
		_, err := installer.Install(context.Background(), NewInstallConfig(pkg))
		assert.ErrorIs(t, err, ErrInvalidPackage)
	}
}

func TestDirInstallerBlockedBuildDirectory(t *testing.T) {
	root := newProject(t)
	blocked := writeFile(t, root, "build", "not a directory")

	cfg := NewInstallConfig(testPackage()).
		WithExtensions([]ExtensionSpec{{Name: "ddtrace._x", Sources: []string{"x.c"}}})
	installer := &DirInstaller{Build: BuildConfig{ProjectDir: root}, DestDir: t.TempDir()}

	_, err := installer.Install(context.Background(), cfg)

	var pathErr *os.PathError
	require.ErrorAs(t, err, &pathErr)
	assert.Contains(t, pathErr.Path, blocked)
}

func TestInstallConfigIsImmutable(t *testing.T) {
	base := NewInstallConfig(testPackage())
	specs := []ExtensionSpec{{Name: "ddtrace._x", Sources: []string{"x.c"}}}

	derived := base.WithExtensions(specs).WithBuildExt(&BuildExt{})
	specs[0].Sources[0] = "changed.c"

	assert.False(t, base.HasExtensions())
	assert.Nil(t, base.BuildExt())
	assert.True(t, derived.HasExtensions())
	assert.Equal(t, []string{"x.c"}, derived.Extensions()[0].Sources)

	pkg := derived.Package()
	pkg.Packages[0] = "other"
	assert.Equal(t, []string{"ddtrace"}, derived.Package().Packages)
}

func TestSafeRelativePath(t *testing.T) {
	testCases := []struct {
		path     string
		expected string
	}{
		{"ddtrace/vendor/_x.so", filepath.Join("ddtrace", "vendor", "_x.so")},
		{"../../etc/_x.so", "_x.so"},
		{"/abs/_x.so", "_x.so"},
		{".", "."},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			if got := safeRelativePath(filepath.FromSlash(tc.path)); got != tc.expected {
				t.Fatalf("safeRelativePath(%q) = %q, expected %q", tc.path, got, tc.expected)
			}
		})
	}
}
