package extbuild

import (
	"context"
	"errors"
	"io/fs"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubBuilder builds every spec by calling build, or succeeds when it is nil.
type stubBuilder struct {
	build func(spec *ExtensionSpec) error
	built []string
}

func (b *stubBuilder) Name() string { return "Stub" }
func (b *stubBuilder) CanBuild(*ExtensionSpec) bool { return true }

func (b *stubBuilder) Build(_ context.Context, _ *BuildConfig, spec *ExtensionSpec) (*BuildResult, error) {
	if b.build != nil {
		if err := b.build(spec); err != nil {
			return &BuildResult{Extension: spec.Name, Error: err}, err
		}
	}
	b.built = append(b.built, spec.Name)
	return &BuildResult{Extension: spec.Name, Success: true, Libraries: []string{spec.Name + ".so"}}, nil
}

func (b *stubBuilder) Clean(context.Context, *BuildConfig, *ExtensionSpec) error { return nil }

func stubFactory(b Builder) *BuilderFactory {
	factory := &BuilderFactory{}
	factory.Register(b)
	return factory
}

func threeSpecs() []ExtensionSpec {
	return []ExtensionSpec{
		{Name: "pkg._one", Sources: []string{"one.c"}},
		{Name: "pkg._two", Sources: []string{"two.c"}},
		{Name: "pkg._three", Sources: []string{"three.c"}},
	}
}

func TestOptionalBuildExtSkipsFailedExtension(t *testing.T) {
	builder := &stubBuilder{build: func(spec *ExtensionSpec) error {
		if spec.Name == "pkg._two" {
			return &CompileError{Builder: "Stub", Extension: spec.Name, ExitCode: 1, Output: []string{"error: boom"}}
		}
		return nil
	}}
	logger, logs := newObservedLogger()
	handler := NewOptionalBuildExt(stubFactory(builder), WithBuildLogger(logger))

	report, err := handler.BuildExtensions(context.Background(), &BuildConfig{GOOS: "linux"}, threeSpecs())
	require.NoError(t, err)

	assert.Equal(t, []string{"pkg._one", "pkg._three"}, report.BuiltNames())
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "pkg._two", report.Skipped[0].Name)
	assert.Equal(t, KindCompile, KindOf(report.Skipped[0].Err))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "failed to build extension, skipping", entry.Message)
	assert.Equal(t, "pkg._two", entry.ContextMap()["extension"])
}

func TestOptionalBuildExtAllExtensionsFail(t *testing.T) {
	failures := []error{
		&CompileError{Builder: "Stub", ExitCode: 1},
		&ExecError{Tool: "gcc", Err: exec.ErrNotFound},
		&PlatformError{Platform: "linux", Reason: "missing sysroot"},
	}

	for _, failure := range failures {
		t.Run(KindOf(failure).String(), func(t *testing.T) {
			builder := &stubBuilder{build: func(*ExtensionSpec) error { return failure }}
			logger, logs := newObservedLogger()
			handler := NewOptionalBuildExt(stubFactory(builder), WithBuildLogger(logger))

			report, err := handler.BuildExtensions(context.Background(), &BuildConfig{GOOS: "linux"}, threeSpecs())

			require.NoError(t, err)
			assert.Empty(t, report.Built)
			assert.Len(t, report.Skipped, 3)
			assert.Equal(t, 3, logs.Len())
		})
	}
}

func TestOptionalBuildExtUnsupportedPlatform(t *testing.T) {
	for _, n := range []int{0, 1, 3} {
		builder := &stubBuilder{}
		logger, logs := newObservedLogger()
		handler := NewOptionalBuildExt(stubFactory(builder), WithBuildLogger(logger))
		specs := threeSpecs()[:n]

		report, err := handler.BuildExtensions(context.Background(), &BuildConfig{GOOS: "js"}, specs)

		require.NoError(t, err)
		assert.Empty(t, report.Built)
		assert.Len(t, report.Skipped, n)
		assert.Empty(t, builder.built)

		if n == 0 {
			assert.Zero(t, logs.Len())
			continue
		}
		want := make([]any, 0, n)
		for _, name := range extensionNames(specs) {
			want = append(want, name)
		}
		require.Equal(t, 1, logs.Len())
		assert.Equal(t, want, logs.All()[0].ContextMap()["extensions"])
	}
}

func TestOptionalBuildExtPropagatesUnrecognisedErrors(t *testing.T) {
	bug := errors.New("assignment to entry in nil map")
	builder := &stubBuilder{build: func(spec *ExtensionSpec) error {
		if spec.Name == "pkg._two" {
			return bug
		}
		return nil
	}}
	logger, logs := newObservedLogger()
	handler := NewOptionalBuildExt(stubFactory(builder), WithBuildLogger(logger))

	report, err := handler.BuildExtensions(context.Background(), &BuildConfig{GOOS: "linux"}, threeSpecs())

	assert.ErrorIs(t, err, bug)
	assert.Equal(t, []string{"pkg._one"}, report.BuiltNames())
	assert.Zero(t, logs.Len())
}

func TestOptionalBuildExtIOErrorsDependOnPlatform(t *testing.T) {
	ioErr := &fs.PathError{Op: "open", Path: "build/temp/one.o", Err: fs.ErrPermission}
	newHandler := func() *OptionalBuildExt {
		builder := &stubBuilder{build: func(*ExtensionSpec) error { return ioErr }}
		return NewOptionalBuildExt(stubFactory(builder), WithBuildLogger(zap.NewNop()))
	}

	_, err := newHandler().BuildExtensions(context.Background(), &BuildConfig{GOOS: "linux"}, threeSpecs())
	assert.ErrorIs(t, err, fs.ErrPermission)

	report, err := newHandler().BuildExtensions(context.Background(), &BuildConfig{GOOS: "windows"}, threeSpecs())
	require.NoError(t, err)
	assert.Len(t, report.Skipped, 3)
}

func TestOptionalBuildExtCustomRecoverableSet(t *testing.T) {
	builder := &stubBuilder{build: func(*ExtensionSpec) error {
		return &ExecError{Tool: "cargo", Err: exec.ErrNotFound}
	}}
	handler := NewOptionalBuildExt(stubFactory(builder),
		WithBuildLogger(zap.NewNop()),
		WithBuildRecoverable(NewKindSet(KindCompile)))

	_, err := handler.BuildExtensions(context.Background(), &BuildConfig{GOOS: "linux"}, threeSpecs())

	var execErr *ExecError
	assert.ErrorAs(t, err, &execErr)
}

func TestOptionalBuildExtMissingCompiler(t *testing.T) {
	tc := installFakeToolchain(t)
	for _, tool := range []string{"gcc", "clang", "cc", "g++", "clang++", "c++"} {
		tc.missing[tool] = true
	}

	root := t.TempDir()
	logger, logs := newObservedLogger()
	handler := NewOptionalBuildExt(nil, WithBuildLogger(logger))

	report, err := handler.BuildExtensions(context.Background(), &BuildConfig{ProjectDir: root, GOOS: "linux"}, threeSpecs())

	require.NoError(t, err)
	assert.Empty(t, report.Built)
	assert.Len(t, report.Skipped, 3)
	assert.Equal(t, 3, logs.Len())
	assert.Empty(t, tc.calls)
}

func TestBuildExtStopsAtFirstFailure(t *testing.T) {
	builder := &stubBuilder{build: func(spec *ExtensionSpec) error {
		if spec.Name == "pkg._two" {
			return &CompileError{Builder: "Stub", Extension: spec.Name, ExitCode: 2}
		}
		return nil
	}}
	handler := &BuildExt{Factory: stubFactory(builder)}

	report, err := handler.BuildExtensions(context.Background(), &BuildConfig{GOOS: "linux"}, threeSpecs())

	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, 2, compileErr.ExitCode)
	assert.Equal(t, []string{"pkg._one"}, builder.built)
	assert.Equal(t, []string{"pkg._one", "pkg._two", "pkg._three"}, report.Requested)
}

func TestBuildExtUnsupportedPlatform(t *testing.T) {
	handler := &BuildExt{Factory: stubFactory(&stubBuilder{})}

	_, err := handler.BuildExtensions(context.Background(), &BuildConfig{GOOS: "wasip1"}, threeSpecs())

	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
}

func TestBuildExtHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	builder := &stubBuilder{build: func(*ExtensionSpec) error {
		cancel()
		return nil
	}}
	handler := NewOptionalBuildExt(stubFactory(builder), WithBuildLogger(zap.NewNop()))

	report, err := handler.BuildExtensions(ctx, &BuildConfig{GOOS: "linux"}, threeSpecs())

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"pkg._one"}, report.BuiltNames())
}
