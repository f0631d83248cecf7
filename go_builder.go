package extbuild

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GoBuilder handles Go-based extensions built with cgo as C shared libraries.
//
// The spec's first source (a .go file or go.mod) locates the Go package to
// build.
//
// Build command:
//
//	go build -C <package dir> -buildmode=c-shared -o <build dir>/<module path>.so .
type GoBuilder struct{}

// Name returns the builder name
func (b *GoBuilder) Name() string {
	return "Go"
}

// RequiredTools returns the tools needed for Go builds
func (b *GoBuilder) RequiredTools(_ *ExtensionSpec) []ToolRequirement {
	return []ToolRequirement{
		{
			Name:    "go",
			Purpose: "Go compiler and toolchain",
		},
		{
			Name:         "gcc",
			Alternatives: []string{"clang", "cc"},
			Purpose:      "C compiler (required for CGO)",
		},
	}
}

// CheckTools verifies that Go toolchain is available
func (b *GoBuilder) CheckTools(spec *ExtensionSpec) error {
	return CheckRequiredTools(b.RequiredTools(spec))
}

// CanBuild checks if this builder can handle the extension spec
func (b *GoBuilder) CanBuild(spec *ExtensionSpec) bool {
	if spec.BuildSystem != "" {
		return spec.BuildSystem == "go"
	}
	if spec.Language == "go" {
		return true
	}
	return anySourceMatches(spec, `\.go$`, `^go\.mod$`)
}

// Build compiles the Go extension into a shared library
func (b *GoBuilder) Build(ctx context.Context, config *BuildConfig, spec *ExtensionSpec) (*BuildResult, error) {
	return runCommonBuild(ctx, config, spec, CommonBuildSteps{
		ConfigureFunc: b.prepare,
		BuildFunc:     b.runGoBuild,
		FindFunc:      b.findBuiltExtension,
	})
}

// Clean removes build artifacts
func (b *GoBuilder) Clean(ctx context.Context, config *BuildConfig, spec *ExtensionSpec) error {
	result := &BuildResult{Extension: spec.Name}

	// Ignore errors - clean may not be necessary
	_ = runTool(ctx, config, b.Name(), spec, nil, result, "go", "clean", "-C", extensionDirFor(config, spec))

	for _, path := range []string{config.outputPath(spec), b.headerPath(config, spec)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// prepare creates the output directory
func (b *GoBuilder) prepare(ctx context.Context, config *BuildConfig, spec *ExtensionSpec, _ string, result *BuildResult) error {
	if config.CleanFirst {
		if err := b.Clean(ctx, config, spec); err != nil {
			return err
		}
	}

	if config.Verbose {
		result.Output = append(result.Output, "Go modules, no configuration needed")
	}
	return os.MkdirAll(filepath.Dir(config.outputPath(spec)), 0o755)
}

// runGoBuild executes go build to compile the shared library
func (b *GoBuilder) runGoBuild(ctx context.Context, config *BuildConfig, spec *ExtensionSpec, extensionDir string, result *BuildResult) error {
	args := []string{"build", "-C", extensionDir, "-buildmode=c-shared", "-o", config.outputPath(spec)}

	if len(spec.ExtraCompileArgs) > 0 {
		args = append(args, "-gcflags", strings.Join(spec.ExtraCompileArgs, " "))
	}
	if len(spec.ExtraLinkArgs) > 0 {
		args = append(args, "-ldflags", strings.Join(spec.ExtraLinkArgs, " "))
	}

	args = append(args, config.BuildArgs...)
	args = append(args, ".")

	// Enable CGO
	env := withEnv(config.Env, "CGO_ENABLED", "1")
	if len(spec.IncludeDirs) > 0 || len(spec.DefineMacros) > 0 {
		env["CGO_CFLAGS"] = strings.TrimSpace(toolFromEnv(config, "CGO_CFLAGS", "") + " " + b.cgoCFlags(config, spec))
	}

	if err := runTool(ctx, config, b.Name(), spec, env, result, "go", args...); err != nil {
		return err
	}

	if config.Verbose {
		result.Output = append(result.Output, fmt.Sprintf("Working directory: %s", extensionDir))
	}
	return nil
}

// findBuiltExtension locates the compiled shared library
func (b *GoBuilder) findBuiltExtension(config *BuildConfig, spec *ExtensionSpec, _ string) ([]string, error) {
	return builtLibrary(config, spec, b.Name())
}

func (b *GoBuilder) cgoCFlags(config *BuildConfig, spec *ExtensionSpec) string {
	var flags []string
	for _, dir := range spec.IncludeDirs {
		flags = append(flags, "-I"+config.sourcePath(dir))
	}
	for _, macro := range spec.DefineMacros {
		flags = append(flags, "-D"+macro)
	}
	return strings.Join(flags, " ")
}

// headerPath is the C header go build writes next to a c-shared library.
func (b *GoBuilder) headerPath(config *BuildConfig, spec *ExtensionSpec) string {
	output := config.outputPath(spec)
	return strings.TrimSuffix(output, filepath.Ext(output)) + ".h"
}
