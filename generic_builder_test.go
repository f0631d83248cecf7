package extbuild

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenericBuilderCanBuild(t *testing.T) {
	zig := NewZigBuilder()

	testCases := []struct {
		spec     ExtensionSpec
		expected bool
	}{
		{ExtensionSpec{Sources: []string{"speedups.zig"}}, true},
		{ExtensionSpec{Sources: []string{"a.ZIG", "b.zig"}}, true},
		{ExtensionSpec{Sources: []string{"a.zig", "b.c"}}, false},
		{ExtensionSpec{Sources: []string{"a.c"}, BuildSystem: "zig"}, true},
		{ExtensionSpec{Sources: []string{"a.zig"}, BuildSystem: "cc"}, false},
		{ExtensionSpec{}, false},
	}

	for _, tc := range testCases {
		if got := zig.CanBuild(&tc.spec); got != tc.expected {
			t.Errorf("CanBuild(%+v) = %v, expected %v", tc.spec, got, tc.expected)
		}
	}
}

func TestGenericBuilderExpandsTemplate(t *testing.T) {
	tc := installFakeToolchain(t)
	root := t.TempDir()
	config := &BuildConfig{ProjectDir: root, GOOS: "linux"}
	spec := &ExtensionSpec{
		Name:         "pkg._speedups",
		Sources:      []string{"ext/speedups.zig", "ext/shim.zig"},
		IncludeDirs:  []string{"include"},
		DefineMacros: []string{"FAST"},
	}

	result, err := NewBuilderFactory().BuildExtension(context.Background(), config, spec)
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg/_speedups.so"}, result.Libraries)

	require.Len(t, tc.calls, 1)
	call := tc.calls[0]
	assert.Equal(t, "/usr/bin/zig", call[0])
	assert.Equal(t, []string{
		"build-lib", "-dynamic", "-lc", "-O", "ReleaseFast",
		"-I" + config.sourcePath("include"),
		"-DFAST",
		"-femit-bin=" + config.outputPath(spec),
		config.sourcePath("ext/speedups.zig"),
		config.sourcePath("ext/shim.zig"),
	}, call[1:])
}

func TestGenericBuilderWithoutCommand(t *testing.T) {
	installFakeToolchain(t)
	builder := NewGenericBuilder(&GenericBuilderConfig{Name: "Nim", Patterns: []string{"*.nim"}})
	spec := &ExtensionSpec{Name: "pkg._x", Sources: []string{"x.nim"}}

	_, err := builder.Build(context.Background(), &BuildConfig{ProjectDir: t.TempDir()}, spec)

	assert.Equal(t, KindCompile, KindOf(err))
	assert.True(t, builder.CanBuild(&ExtensionSpec{Sources: []string{"a.c"}, BuildSystem: "nim"}))
}
