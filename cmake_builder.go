package extbuild

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/sh"
)

const (
	unixMakefiles  = "Unix Makefiles"
	mingwMakefiles = "MinGW Makefiles"
)

// CmakeBuilder handles CMake-based extensions.
//
// The project is configured out of source in the temp directory and
// receives EXT_NAME and EXT_OUTPUT_DIR cache variables; the built library is
// then looked up in the usual CMake output directories and copied to its
// install path.
type CmakeBuilder struct{}

// Name returns the builder name
func (b *CmakeBuilder) Name() string {
	return "CMake"
}

// RequiredTools returns the tools needed for CMake builds
func (b *CmakeBuilder) RequiredTools(_ *ExtensionSpec) []ToolRequirement {
	return []ToolRequirement{
		{Name: "cmake", Purpose: "CMake build system"},
		{Name: "ninja", Optional: true, Purpose: "Ninja build tool"},
	}
}

// CheckTools verifies that cmake is available
func (b *CmakeBuilder) CheckTools(spec *ExtensionSpec) error {
	return CheckRequiredTools(b.RequiredTools(spec))
}

// CanBuild checks if this builder can handle the extension spec
func (b *CmakeBuilder) CanBuild(spec *ExtensionSpec) bool {
	if spec.BuildSystem != "" {
		return spec.BuildSystem == "cmake"
	}
	return anySourceMatches(spec, `^CMakeLists\.txt$`)
}

// Build compiles the extension using the cmake configure -> build workflow
func (b *CmakeBuilder) Build(ctx context.Context, config *BuildConfig, spec *ExtensionSpec) (*BuildResult, error) {
	return runCommonBuild(ctx, config, spec, CommonBuildSteps{
		ConfigureFunc: b.runCmake,
		BuildFunc:     b.runBuild,
		FindFunc:      b.findBuiltExtension,
	})
}

// Clean removes the binary directory and the installed library
func (b *CmakeBuilder) Clean(_ context.Context, config *BuildConfig, spec *ExtensionSpec) error {
	if err := sh.Rm(b.binaryDir(config, spec)); err != nil {
		return err
	}
	return sh.Rm(config.outputPath(spec))
}

// runCmake executes cmake to configure the build
func (b *CmakeBuilder) runCmake(ctx context.Context, config *BuildConfig, spec *ExtensionSpec, extensionDir string, result *BuildResult) error {
	if config.CleanFirst {
		if err := b.Clean(ctx, config, spec); err != nil {
			return err
		}
	}

	binaryDir := b.binaryDir(config, spec)
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}

	args := []string{
		"-S", extensionDir,
		"-B", binaryDir,
		"-DCMAKE_BUILD_TYPE=Release",
		"-DCMAKE_POSITION_INDEPENDENT_CODE=ON",
		"-DEXT_NAME=" + spec.Name,
		"-DEXT_OUTPUT_DIR=" + filepath.Dir(config.outputPath(spec)),
	}

	if flags := strings.Join(append(b.defineFlags(config, spec), spec.ExtraCompileArgs...), " "); flags != "" {
		args = append(args, "-DCMAKE_C_FLAGS="+flags, "-DCMAKE_CXX_FLAGS="+flags)
	}
	if len(spec.ExtraLinkArgs) > 0 {
		args = append(args, "-DCMAKE_SHARED_LINKER_FLAGS="+strings.Join(spec.ExtraLinkArgs, " "))
	}

	// Platform-specific generator selection
	if generator := b.getGenerator(config); generator != "" {
		args = append(args, "-G", generator)
	}

	args = append(args, config.BuildArgs...)

	return runTool(ctx, config, b.Name(), spec, nil, result, "cmake", args...)
}

// runBuild executes the build command
func (b *CmakeBuilder) runBuild(ctx context.Context, config *BuildConfig, spec *ExtensionSpec, _ string, result *BuildResult) error {
	args := []string{"--build", b.binaryDir(config, spec), "--config", "Release"}

	// Add parallel jobs if specified
	if config.Parallel > 0 {
		args = append(args, "--parallel", fmt.Sprintf("%d", config.Parallel))
	}

	return runTool(ctx, config, b.Name(), spec, nil, result, "cmake", args...)
}

// findBuiltExtension locates the compiled library and copies it into place
func (b *CmakeBuilder) findBuiltExtension(config *BuildConfig, spec *ExtensionSpec, _ string) ([]string, error) {
	output := config.outputPath(spec)
	if _, err := os.Stat(output); err == nil {
		return builtLibrary(config, spec, b.Name())
	}

	binaryDir := b.binaryDir(config, spec)
	suffix := SharedLibrarySuffix(config.Platform())

	// CMake can output to various directories depending on configuration
	searchDirs := []string{".", "Release", "lib", "bin"}
	patterns := []string{"*" + suffix}
	if config.Platform() == platformDarwin {
		patterns = append(patterns, "*.dylib")
	}

	for _, searchDir := range searchDirs {
		for _, pattern := range patterns {
			matches, err := filepath.Glob(filepath.Join(binaryDir, searchDir, pattern))
			if err != nil {
				return nil, fmt.Errorf("failed to glob pattern %s in %s: %w", pattern, binaryDir, err)
			}
			if len(matches) > 0 {
				if err := sh.Copy(output, matches[0]); err != nil {
					return nil, err
				}
				return builtLibrary(config, spec, b.Name())
			}
		}
	}

	return builtLibrary(config, spec, b.Name())
}

func (b *CmakeBuilder) binaryDir(config *BuildConfig, spec *ExtensionSpec) string {
	return filepath.Join(config.tempDir(), "cmake", strings.ReplaceAll(spec.Name, ".", "_"))
}

func (b *CmakeBuilder) defineFlags(config *BuildConfig, spec *ExtensionSpec) []string {
	var flags []string
	for _, dir := range spec.IncludeDirs {
		flags = append(flags, "-I"+config.sourcePath(dir))
	}
	for _, macro := range spec.DefineMacros {
		flags = append(flags, "-D"+macro)
	}
	return flags
}

// getGenerator returns the appropriate CMake generator for the platform
func (b *CmakeBuilder) getGenerator(config *BuildConfig) string {
	// Check environment variable first
	if generator := toolFromEnv(config, "CMAKE_GENERATOR", ""); generator != "" {
		return generator
	}

	if config.Platform() == platformWindows {
		return mingwMakefiles
	}
	return unixMakefiles
}
