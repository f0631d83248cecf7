package extbuild

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/magefile/mage/sh"
)

// Build tool constants
const (
	makeProgram      = "make"
	gmakeProgram     = "gmake"
	mingwMakeProgram = "mingw32-make"
)

// MakefileBuilder handles extensions that ship their own Makefile.
//
// make is run in the Makefile's directory with these variables set so the
// Makefile can place its output where the installer expects it:
//
//	EXT_NAME=<dotted extension name>
//	EXT_OUTPUT=<absolute library path>
//	CFLAGS / LDFLAGS built from the spec's include dirs, macros and flags
//
// If EXT_OUTPUT was not produced, the first shared library found in the
// Makefile's directory is copied there.
type MakefileBuilder struct{}

// Name returns the builder name
func (b *MakefileBuilder) Name() string {
	return "Makefile"
}

// RequiredTools returns the tools needed for Makefile builds
func (b *MakefileBuilder) RequiredTools(_ *ExtensionSpec) []ToolRequirement {
	return []ToolRequirement{
		{
			Name:         makeProgram,
			Alternatives: []string{gmakeProgram, mingwMakeProgram},
			Purpose:      "Build automation tool",
		},
		{
			Name:         "gcc",
			Alternatives: []string{"clang", "cc"},
			Purpose:      "C/C++ compiler",
		},
	}
}

// CheckTools verifies that make and compiler are available
func (b *MakefileBuilder) CheckTools(spec *ExtensionSpec) error {
	return CheckRequiredTools(b.RequiredTools(spec))
}

// CanBuild checks if this builder can handle the extension spec
func (b *MakefileBuilder) CanBuild(spec *ExtensionSpec) bool {
	if spec.BuildSystem != "" {
		return spec.BuildSystem == makeProgram
	}
	// Match Makefile, makefile, GNUmakefile
	return anySourceMatches(spec, `^(?i)(gnu)?makefile$`)
}

// Build compiles the extension using make
func (b *MakefileBuilder) Build(ctx context.Context, config *BuildConfig, spec *ExtensionSpec) (*BuildResult, error) {
	return runCommonBuild(ctx, config, spec, CommonBuildSteps{
		ConfigureFunc: b.prepare,
		BuildFunc:     b.runMake,
		FindFunc:      b.findBuiltExtension,
	})
}

// Clean removes build artifacts
func (b *MakefileBuilder) Clean(ctx context.Context, config *BuildConfig, spec *ExtensionSpec) error {
	result := &BuildResult{Extension: spec.Name}

	// Ignore errors - clean target may not exist
	_ = runTool(ctx, config, b.Name(), spec, nil, result, b.getMakeProgram(config), "-C", extensionDirFor(config, spec), "clean")
	return sh.Rm(config.outputPath(spec))
}

// prepare creates the output directory, the Makefile needs no configuration
func (b *MakefileBuilder) prepare(ctx context.Context, config *BuildConfig, spec *ExtensionSpec, _ string, result *BuildResult) error {
	if config.CleanFirst {
		if err := b.Clean(ctx, config, spec); err != nil {
			return err
		}
	}

	if config.Verbose {
		result.Output = append(result.Output, "Using existing Makefile, no configuration needed")
	}
	return os.MkdirAll(filepath.Dir(config.outputPath(spec)), 0o755)
}

// runMake executes make to compile the extension
func (b *MakefileBuilder) runMake(ctx context.Context, config *BuildConfig, spec *ExtensionSpec, extensionDir string, result *BuildResult) error {
	makeProgram := b.getMakeProgram(config)

	args := []string{"-C", extensionDir}

	// Add parallel jobs if specified
	if config.Parallel > 0 {
		args = append(args, fmt.Sprintf("-j%d", config.Parallel))
	}

	args = append(args,
		"EXT_NAME="+spec.Name,
		"EXT_OUTPUT="+config.outputPath(spec),
	)
	if cflags := b.cflags(config, spec); cflags != "" {
		args = append(args, "CFLAGS="+cflags)
	}
	if ldflags := b.ldflags(config, spec); ldflags != "" {
		args = append(args, "LDFLAGS="+ldflags)
	}
	args = append(args, config.BuildArgs...)

	if err := runTool(ctx, config, b.Name(), spec, nil, result, makeProgram, args...); err != nil {
		return err
	}

	if config.Verbose {
		result.Output = append(result.Output, fmt.Sprintf("Working directory: %s", extensionDir))
	}
	return nil
}

// findBuiltExtension returns EXT_OUTPUT, copying a library the Makefile left
// in its own directory into place when needed.
func (b *MakefileBuilder) findBuiltExtension(config *BuildConfig, spec *ExtensionSpec, extensionDir string) ([]string, error) {
	output := config.outputPath(spec)
	if _, err := os.Stat(output); err == nil {
		return builtLibrary(config, spec, b.Name())
	}

	suffix := SharedLibrarySuffix(config.Platform())
	matches, err := filepath.Glob(filepath.Join(extensionDir, "*"+suffix))
	if err != nil {
		return nil, fmt.Errorf("failed to glob pattern *%s in %s: %w", suffix, extensionDir, err)
	}
	if len(matches) == 0 {
		return builtLibrary(config, spec, b.Name())
	}

	if err := sh.Copy(output, matches[0]); err != nil {
		return nil, err
	}
	return builtLibrary(config, spec, b.Name())
}

func (b *MakefileBuilder) cflags(config *BuildConfig, spec *ExtensionSpec) string {
	var flags []string
	if config.Platform() != platformWindows {
		flags = append(flags, "-fPIC")
	}
	for _, dir := range spec.IncludeDirs {
		flags = append(flags, "-I"+config.sourcePath(dir))
	}
	for _, macro := range spec.DefineMacros {
		flags = append(flags, "-D"+macro)
	}
	flags = append(flags, spec.ExtraCompileArgs...)
	return strings.Join(flags, " ")
}

func (b *MakefileBuilder) ldflags(config *BuildConfig, spec *ExtensionSpec) string {
	var flags []string
	for _, dir := range spec.LibraryDirs {
		flags = append(flags, "-L"+config.sourcePath(dir))
	}
	for _, lib := range spec.Libraries {
		flags = append(flags, "-l"+lib)
	}
	flags = append(flags, spec.ExtraLinkArgs...)
	return strings.Join(flags, " ")
}

// getMakeProgram returns the appropriate make program for the platform
func (b *MakefileBuilder) getMakeProgram(config *BuildConfig) string {
	// Check environment variable first
	if makeEnv := toolFromEnv(config, "MAKE", ""); makeEnv != "" {
		return makeEnv
	}

	// Platform-specific defaults
	switch runtime.GOOS {
	case platformWindows:
		return mingwMakeProgram
	case "freebsd", "openbsd", "netbsd":
		return gmakeProgram
	default:
		return makeProgram
	}
}
