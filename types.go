package extbuild

import (
	"context"
	"path/filepath"
)

// ExtensionSpec describes one optional native extension.
//
// Specs are supplied by vendored sub-project descriptors. The orchestration
// layer only collects and forwards them; builders are the only code that
// reads the individual fields.
type ExtensionSpec struct {
	// Name is the dotted module name, e.g. "ddtrace.vendor.wrapt._wrappers".
	// It determines the installed library path.
	Name string `yaml:"name"`

	// Sources are project-relative source files. For build systems with their
	// own project file (Makefile, CMakeLists.txt, Cargo.toml, go.mod) the
	// first source locates the project directory.
	Sources []string `yaml:"sources"`

	IncludeDirs      []string `yaml:"include_dirs,omitempty"`
	LibraryDirs      []string `yaml:"library_dirs,omitempty"`
	Libraries        []string `yaml:"libraries,omitempty"`
	DefineMacros     []string `yaml:"define_macros,omitempty"` // NAME or NAME=VALUE
	ExtraCompileArgs []string `yaml:"extra_compile_args,omitempty"`
	ExtraLinkArgs    []string `yaml:"extra_link_args,omitempty"`

	// Language is one of c, c++, go, rust. Empty means infer from sources.
	Language string `yaml:"language,omitempty"`

	// BuildSystem forces a builder: cc, go, make, cmake, cargo, zig.
	// Empty means pick from the sources.
	BuildSystem string `yaml:"build,omitempty"`

	// Platforms restricts the spec to these GOOS values. Empty means all.
	Platforms []string `yaml:"platforms,omitempty"`
}

// clone returns a deep copy of the spec.
func (s ExtensionSpec) clone() ExtensionSpec {
	s.Sources = append([]string(nil), s.Sources...)
	s.IncludeDirs = append([]string(nil), s.IncludeDirs...)
	s.LibraryDirs = append([]string(nil), s.LibraryDirs...)
	s.Libraries = append([]string(nil), s.Libraries...)
	s.DefineMacros = append([]string(nil), s.DefineMacros...)
	s.ExtraCompileArgs = append([]string(nil), s.ExtraCompileArgs...)
	s.ExtraLinkArgs = append([]string(nil), s.ExtraLinkArgs...)
	s.Platforms = append([]string(nil), s.Platforms...)
	return s
}

func cloneSpecs(specs []ExtensionSpec) []ExtensionSpec {
	if specs == nil {
		return nil
	}
	out := make([]ExtensionSpec, len(specs))
	for i := range specs {
		out[i] = specs[i].clone()
	}
	return out
}

func extensionNames(specs []ExtensionSpec) []string {
	names := make([]string, 0, len(specs))
	for i := range specs {
		names = append(names, specs[i].Name)
	}
	return names
}

// BuildResult contains the output and status of one extension build.
type BuildResult struct {
	Extension           string   // Extension name
	Success             bool     // True if the build completed successfully
	Output              []string // Lines of output from the build tools
	Libraries           []string // Built library paths, relative to BuildConfig.BuildDir
	Error               error    // Error if the build failed, nil otherwise
	MissingDependencies []string // Names of build tools that were missing
}

// SkippedExtension records an extension that was not built.
type SkippedExtension struct {
	Name string
	Err  error
}

// BuildReport summarises one run of a build-extension handler.
type BuildReport struct {
	Requested []string           // Names of every extension asked for, in order
	Built     []*BuildResult     // Successful builds, in order
	Skipped   []SkippedExtension // Extensions demoted to warnings
}

// BuiltNames returns the names of the successfully built extensions.
func (r *BuildReport) BuiltNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.Built))
	for _, result := range r.Built {
		names = append(names, result.Extension)
	}
	return names
}

// BuildConfig contains configuration for the build process.
//
// Source paths:
//   - ProjectDir: project root; ExtensionSpec sources are relative to it
//   - BuildDir: where finished libraries are placed, laid out by module path
//   - TempDir: scratch space for objects and build system caches
//
// Build behavior:
//   - GOOS: target platform (empty = host)
//   - BuildArgs: extra arguments passed to the build tool
//   - Env: environment variables set for every tool invocation
//   - Parallel: parallel jobs for make/cmake/cargo (0 = tool default)
//   - CleanFirst: clean build artifacts before building
//   - Verbose: record the executed commands in BuildResult.Output
type BuildConfig struct {
	ProjectDir string
	BuildDir   string
	TempDir    string

	GOOS      string
	BuildArgs []string
	Env       map[string]string

	Verbose    bool
	CleanFirst bool
	Parallel   int
}

// Platform returns the target GOOS.
func (c *BuildConfig) Platform() string {
	if c.GOOS != "" {
		return c.GOOS
	}
	return hostPlatform()
}

func (c *BuildConfig) buildDir() string {
	if c.BuildDir != "" {
		return c.BuildDir
	}
	return filepath.Join(c.ProjectDir, "build", "lib")
}

func (c *BuildConfig) tempDir() string {
	if c.TempDir != "" {
		return c.TempDir
	}
	return filepath.Join(c.ProjectDir, "build", "temp")
}

// outputPath is the absolute library path for spec.
func (c *BuildConfig) outputPath(spec *ExtensionSpec) string {
	return filepath.Join(c.buildDir(), ExtensionFilename(spec.Name, c.Platform()))
}

// sourcePath resolves a project-relative source.
func (c *BuildConfig) sourcePath(source string) string {
	if filepath.IsAbs(source) {
		return source
	}
	return filepath.Join(c.ProjectDir, filepath.FromSlash(source))
}

// CommonBuildSteps defines the standard 3-step build pattern used by multiple builders.
//
// Most native build systems follow a similar pattern:
//  1. Configure: Prepare directories or generate build files
//  2. Build: Compile the extension
//  3. Find: Place and locate the compiled library
//
// Example usage in a builder:
//
//	return runCommonBuild(ctx, config, spec, CommonBuildSteps{
//	    ConfigureFunc: b.prepare,
//	    BuildFunc:     b.compile,
//	    FindFunc:      b.locate,
//	})
type CommonBuildSteps struct {
	// ConfigureFunc prepares the build environment (e.g. mkdir, cmake configure)
	ConfigureFunc func(ctx context.Context, config *BuildConfig, spec *ExtensionSpec, extensionDir string, result *BuildResult) error

	// BuildFunc compiles the extension (e.g. cc, make, cargo rustc)
	BuildFunc func(ctx context.Context, config *BuildConfig, spec *ExtensionSpec, extensionDir string, result *BuildResult) error

	// FindFunc returns the built library paths relative to the build directory
	FindFunc func(config *BuildConfig, spec *ExtensionSpec, extensionDir string) ([]string, error)
}
