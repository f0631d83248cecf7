package extbuild

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/sh"
)

// CargoBuilder handles Rust-based extensions built with Cargo as cdylib.
type CargoBuilder struct{}

// Name returns the builder name
func (b *CargoBuilder) Name() string {
	return "Cargo"
}

// RequiredTools returns the tools needed for Cargo builds
func (b *CargoBuilder) RequiredTools(_ *ExtensionSpec) []ToolRequirement {
	return []ToolRequirement{
		{Name: "cargo", Purpose: "Rust compiler and package manager"},
	}
}

// CheckTools verifies that cargo is available
func (b *CargoBuilder) CheckTools(spec *ExtensionSpec) error {
	return CheckRequiredTools(b.RequiredTools(spec))
}

// CanBuild checks if this builder can handle the extension spec
func (b *CargoBuilder) CanBuild(spec *ExtensionSpec) bool {
	if spec.BuildSystem != "" {
		return spec.BuildSystem == "cargo"
	}
	return anySourceMatches(spec, `^Cargo\.toml$`)
}

// Build compiles the extension using cargo
func (b *CargoBuilder) Build(ctx context.Context, config *BuildConfig, spec *ExtensionSpec) (*BuildResult, error) {
	return runCommonBuild(ctx, config, spec, CommonBuildSteps{
		ConfigureFunc: b.prepare,
		BuildFunc:     b.runCargo,
		FindFunc:      b.processBuiltExtension,
	})
}

// Clean removes build artifacts
func (b *CargoBuilder) Clean(ctx context.Context, config *BuildConfig, spec *ExtensionSpec) error {
	result := &BuildResult{Extension: spec.Name}

	// Ignore errors - target dir may not exist yet
	_ = runTool(ctx, config, b.Name(), spec, nil, result, b.getCargoPath(config),
		"clean", "--manifest-path", b.manifestPath(config, spec), "--target-dir", b.targetDir(config, spec))
	return sh.Rm(config.outputPath(spec))
}

func (b *CargoBuilder) prepare(ctx context.Context, config *BuildConfig, spec *ExtensionSpec, _ string, _ *BuildResult) error {
	if config.CleanFirst {
		if err := b.Clean(ctx, config, spec); err != nil {
			return err
		}
	}
	return os.MkdirAll(filepath.Dir(config.outputPath(spec)), 0o755)
}

// runCargo executes cargo to build the Rust extension
func (b *CargoBuilder) runCargo(ctx context.Context, config *BuildConfig, spec *ExtensionSpec, extensionDir string, result *BuildResult) error {
	args := []string{
		"rustc", "--release", "--crate-type", "cdylib",
		"--manifest-path", b.manifestPath(config, spec),
		"--target-dir", b.targetDir(config, spec),
	}

	// Add target if specified
	if target := toolFromEnv(config, "CARGO_BUILD_TARGET", ""); target != "" {
		args = append(args, "--target", target)
	}

	// Use locked dependencies if Cargo.lock exists
	if _, err := os.Stat(filepath.Join(extensionDir, "Cargo.lock")); err == nil {
		args = append(args, "--locked")
	}

	// Add parallel jobs if specified
	if config.Parallel > 0 {
		args = append(args, "--jobs", fmt.Sprintf("%d", config.Parallel))
	}

	args = append(args, config.BuildArgs...)

	// Add rustc-specific arguments
	args = append(args, "--")
	args = append(args, b.getRustcArgs(config, spec)...)

	return runTool(ctx, config, b.Name(), spec, nil, result, b.getCargoPath(config), args...)
}

// processBuiltExtension finds the built cdylib and copies it to the
// extension's install path
func (b *CargoBuilder) processBuiltExtension(config *BuildConfig, spec *ExtensionSpec, _ string) ([]string, error) {
	releaseDir := b.targetDir(config, spec)
	if target := toolFromEnv(config, "CARGO_BUILD_TARGET", ""); target != "" {
		releaseDir = filepath.Join(releaseDir, target)
	}
	releaseDir = filepath.Join(releaseDir, "release")

	builtLibs, err := b.findCargoOutputs(config, releaseDir)
	if err != nil {
		return nil, err
	}
	if len(builtLibs) == 0 {
		return nil, &CompileError{
			Builder:   b.Name(),
			Extension: spec.Name,
			ExitCode:  -1,
			Err:       fmt.Errorf("no dynamic libraries found in %s", releaseDir),
		}
	}

	if err := sh.Copy(config.outputPath(spec), builtLibs[0]); err != nil {
		return nil, err
	}
	return builtLibrary(config, spec, b.Name())
}

// findCargoOutputs locates built dynamic libraries
func (b *CargoBuilder) findCargoOutputs(config *BuildConfig, releaseDir string) ([]string, error) {
	var patterns []string
	switch config.Platform() {
	case platformWindows:
		patterns = []string{"*.dll"}
	case platformDarwin:
		patterns = []string{"lib*.dylib"}
	default:
		patterns = []string{"lib*.so"}
	}

	var outputs []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(releaseDir, pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to glob pattern %s: %w", pattern, err)
		}
		outputs = append(outputs, matches...)
	}

	return outputs, nil
}

// getRustcArgs returns rustc arguments for loadable extensions
func (b *CargoBuilder) getRustcArgs(config *BuildConfig, spec *ExtensionSpec) []string {
	var args []string

	// Platform-specific linking arguments
	switch config.Platform() {
	case platformDarwin:
		args = append(args, "-C", "link-arg=-undefined", "-C", "link-arg=dynamic_lookup")
	case platformWindows:
		args = append(args, "-C", "link-arg=-static-libgcc")
	}

	for _, dir := range spec.LibraryDirs {
		args = append(args, "-L", config.sourcePath(dir))
	}
	for _, lib := range spec.Libraries {
		args = append(args, "-l", lib)
	}
	for _, arg := range spec.ExtraLinkArgs {
		args = append(args, "-C", "link-arg="+arg)
	}

	return append(args, spec.ExtraCompileArgs...)
}

func (b *CargoBuilder) manifestPath(config *BuildConfig, spec *ExtensionSpec) string {
	return filepath.Join(extensionDirFor(config, spec), "Cargo.toml")
}

func (b *CargoBuilder) targetDir(config *BuildConfig, spec *ExtensionSpec) string {
	return filepath.Join(config.tempDir(), "cargo", strings.ReplaceAll(spec.Name, ".", "_"))
}

// getCargoPath returns the path to the cargo executable
func (b *CargoBuilder) getCargoPath(config *BuildConfig) string {
	return toolFromEnv(config, "CARGO", "cargo")
}
