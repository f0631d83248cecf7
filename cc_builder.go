package extbuild

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/sh"
)

// CCompilerBuilder compiles C and C++ extension sources directly with the
// host compiler, one object per source, then links them into a loadable
// shared library.
//
// This is the builder used by most vendored extension specs, which list
// plain .c/.cpp sources with include dirs, macros and extra flags.
//
// The compiler is taken from CC (C) or CXX (C++) in the build env or the
// process env, otherwise the first of gcc/clang/cc (g++/clang++/c++) on PATH.
type CCompilerBuilder struct{}

// Name returns the builder name
func (b *CCompilerBuilder) Name() string {
	return "CC"
}

// RequiredTools returns the compiler needed for the spec
func (b *CCompilerBuilder) RequiredTools(spec *ExtensionSpec) []ToolRequirement {
	return []ToolRequirement{b.compilerRequirement(nil, spec)}
}

// CheckTools verifies that a compiler is available
func (b *CCompilerBuilder) CheckTools(spec *ExtensionSpec) error {
	return CheckRequiredTools(b.RequiredTools(spec))
}

// CanBuild accepts specs forced to "cc" and specs whose sources are all C/C++
func (b *CCompilerBuilder) CanBuild(spec *ExtensionSpec) bool {
	switch spec.BuildSystem {
	case "cc":
		return true
	case "":
		return allSourcesHave(spec, append(cSourceExtensions, cxxSourceExtensions...)...)
	default:
		return false
	}
}

// Build compiles and links the extension
func (b *CCompilerBuilder) Build(ctx context.Context, config *BuildConfig, spec *ExtensionSpec) (*BuildResult, error) {
	return runCommonBuild(ctx, config, spec, CommonBuildSteps{
		ConfigureFunc: b.prepare,
		BuildFunc:     b.compile,
		FindFunc:      b.locate,
	})
}

// Clean removes the object directory and the linked library
func (b *CCompilerBuilder) Clean(_ context.Context, config *BuildConfig, spec *ExtensionSpec) error {
	if err := sh.Rm(b.objectDir(config, spec)); err != nil {
		return err
	}
	return sh.Rm(config.outputPath(spec))
}

// prepare creates the object and output directories
func (b *CCompilerBuilder) prepare(ctx context.Context, config *BuildConfig, spec *ExtensionSpec, _ string, result *BuildResult) error {
	if config.CleanFirst {
		if err := b.Clean(ctx, config, spec); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(b.objectDir(config, spec), 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(config.outputPath(spec)), 0o755); err != nil {
		return err
	}

	if config.Verbose {
		result.Output = append(result.Output, fmt.Sprintf("Compiling %s with %s", spec.Name, b.compiler(config, spec)))
	}
	return nil
}

// compile runs the compiler once per source, then links
func (b *CCompilerBuilder) compile(ctx context.Context, config *BuildConfig, spec *ExtensionSpec, _ string, result *BuildResult) error {
	compiler := b.compiler(config, spec)
	objectDir := b.objectDir(config, spec)

	objects := make([]string, 0, len(spec.Sources))
	for _, source := range spec.Sources {
		object := filepath.Join(objectDir, filepath.FromSlash(objectName(source)))
		if err := os.MkdirAll(filepath.Dir(object), 0o755); err != nil {
			return err
		}
		if err := runTool(ctx, config, b.Name(), spec, nil, result, compiler, b.compileArgs(config, spec, source, object)...); err != nil {
			return err
		}
		objects = append(objects, object)
	}

	return runTool(ctx, config, b.Name(), spec, nil, result, compiler, b.linkArgs(config, spec, objects)...)
}

func (b *CCompilerBuilder) locate(config *BuildConfig, spec *ExtensionSpec, _ string) ([]string, error) {
	return builtLibrary(config, spec, b.Name())
}

func (b *CCompilerBuilder) compileArgs(config *BuildConfig, spec *ExtensionSpec, source, object string) []string {
	args := []string{"-c", config.sourcePath(source), "-o", object}

	if config.Platform() != platformWindows {
		args = append(args, "-fPIC")
	}
	for _, dir := range spec.IncludeDirs {
		args = append(args, "-I"+config.sourcePath(dir))
	}
	for _, macro := range spec.DefineMacros {
		args = append(args, "-D"+macro)
	}

	return append(args, spec.ExtraCompileArgs...)
}

func (b *CCompilerBuilder) linkArgs(config *BuildConfig, spec *ExtensionSpec, objects []string) []string {
	var args []string

	switch config.Platform() {
	case platformDarwin:
		args = append(args, "-bundle", "-undefined", "dynamic_lookup")
	default:
		args = append(args, "-shared")
	}

	args = append(args, objects...)
	args = append(args, "-o", config.outputPath(spec))

	for _, dir := range spec.LibraryDirs {
		args = append(args, "-L"+config.sourcePath(dir))
	}
	for _, lib := range spec.Libraries {
		args = append(args, "-l"+lib)
	}

	args = append(args, spec.ExtraLinkArgs...)
	return append(args, config.BuildArgs...)
}

// compilerRequirement describes the compiler for spec. A CC/CXX override
// replaces the default candidates. config may be nil.
func (b *CCompilerBuilder) compilerRequirement(config *BuildConfig, spec *ExtensionSpec) ToolRequirement {
	if config == nil {
		config = &BuildConfig{}
	}

	if isCxx(spec) {
		if override := toolFromEnv(config, "CXX", ""); override != "" {
			return ToolRequirement{Name: override, Purpose: "C++ compiler"}
		}
		return ToolRequirement{
			Name:         "g++",
			Alternatives: []string{"clang++", "c++"},
			Purpose:      "C++ compiler",
		}
	}

	if override := toolFromEnv(config, "CC", ""); override != "" {
		return ToolRequirement{Name: override, Purpose: "C compiler"}
	}
	return ToolRequirement{
		Name:         "gcc",
		Alternatives: []string{"clang", "cc"},
		Purpose:      "C compiler",
	}
}

// compiler returns the compiler executable to run. When nothing resolves the
// primary name is returned and running it yields an *ExecError.
func (b *CCompilerBuilder) compiler(config *BuildConfig, spec *ExtensionSpec) string {
	req := b.compilerRequirement(config, spec)
	if path, err := ResolveTool(req); err == nil {
		return path
	}
	return req.Name
}

func (b *CCompilerBuilder) objectDir(config *BuildConfig, spec *ExtensionSpec) string {
	return filepath.Join(config.tempDir(), strings.ReplaceAll(spec.Name, ".", "_"))
}

// objectName maps a source to its object path below the object directory,
// mirroring the source tree: "vendor/psutil/_psutil_linux.c" becomes
// "vendor/psutil/_psutil_linux.c.o". Keeping the directories and the source
// extension gives every source of an extension its own object.
func objectName(source string) string {
	source = filepath.Clean(source)
	source = strings.TrimPrefix(source, filepath.VolumeName(source))
	cleaned := path.Clean("/" + filepath.ToSlash(source))
	return strings.TrimPrefix(cleaned, "/") + ".o"
}
