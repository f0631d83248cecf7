package extbuild

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/sh"
)

// GenericBuilder provides a configurable builder for any language that
// can compile to shared libraries.
//
// This builder covers toolchains that build an extension with a single
// command, such as Zig, without requiring a new Go file for each language.
//
// # Configuration
//
// GenericBuilder is configured with:
//   - The build system name a spec can force with `build:`
//   - Source file patterns to detect (e.g., "*.zig", "build.zig")
//   - Required tools and alternatives
//   - Build command template
//
// # Example: Zig
//
//	zig := NewGenericBuilder(&GenericBuilderConfig{
//	    Name:        "Zig",
//	    BuildSystem: "zig",
//	    Patterns:    []string{"*.zig"},
//	    Tools: []ToolRequirement{
//	        {Name: "zig", Purpose: "Zig compiler"},
//	    },
//	    BuildCommand: []string{
//	        "zig", "build-lib", "-dynamic", "-femit-bin={{output}}", "{{sources}}",
//	    },
//	})
type GenericBuilder struct {
	name         string
	buildSystem  string
	patterns     []string
	tools        []ToolRequirement
	buildCommand []string
}

// GenericBuilderConfig defines configuration for a GenericBuilder.
type GenericBuilderConfig struct {
	// Name is the human-readable builder name (e.g., "Zig")
	Name string

	// BuildSystem is the value of ExtensionSpec.BuildSystem selecting this
	// builder. Defaults to the lower-cased Name.
	BuildSystem string

	// Patterns are file patterns matched against source base names
	// (e.g., "*.zig")
	Patterns []string

	// Tools are the required build tools
	Tools []ToolRequirement

	// BuildCommand is the command template to build the extension.
	// Supports placeholders:
	//   {{sources}} - every source, expanded to one argument each
	//   {{output}}  - the absolute library path
	//   {{dir}}     - the directory of the first source
	//   {{name}}    - the dotted extension name
	//   {{includes}} / {{defines}} / {{libs}} - -I, -D and -l arguments
	BuildCommand []string
}

// NewGenericBuilder creates a new GenericBuilder from configuration.
func NewGenericBuilder(config *GenericBuilderConfig) *GenericBuilder {
	buildSystem := config.BuildSystem
	if buildSystem == "" {
		buildSystem = strings.ToLower(config.Name)
	}
	return &GenericBuilder{
		name:         config.Name,
		buildSystem:  buildSystem,
		patterns:     config.Patterns,
		tools:        config.Tools,
		buildCommand: config.BuildCommand,
	}
}

// Name returns the builder name
func (b *GenericBuilder) Name() string {
	return b.name
}

// RequiredTools returns the tools needed for this builder
func (b *GenericBuilder) RequiredTools(_ *ExtensionSpec) []ToolRequirement {
	return b.tools
}

// CheckTools verifies that all required tools are available
func (b *GenericBuilder) CheckTools(spec *ExtensionSpec) error {
	return CheckRequiredTools(b.RequiredTools(spec))
}

// CanBuild accepts specs forced to the builder's build system, or specs
// whose sources all match one of its patterns.
func (b *GenericBuilder) CanBuild(spec *ExtensionSpec) bool {
	if spec.BuildSystem != "" {
		return spec.BuildSystem == b.buildSystem
	}
	if len(spec.Sources) == 0 || len(b.patterns) == 0 {
		return false
	}

	for _, source := range spec.Sources {
		filename := strings.ToLower(filepath.Base(source))
		matched := false
		for _, pattern := range b.patterns {
			if ok, _ := filepath.Match(strings.ToLower(pattern), filename); ok {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// Build compiles the extension using the configured build command
func (b *GenericBuilder) Build(ctx context.Context, config *BuildConfig, spec *ExtensionSpec) (*BuildResult, error) {
	return runCommonBuild(ctx, config, spec, CommonBuildSteps{
		ConfigureFunc: b.prepare,
		BuildFunc:     b.runBuild,
		FindFunc:      b.findBuiltExtension,
	})
}

// Clean removes the built library
func (b *GenericBuilder) Clean(_ context.Context, config *BuildConfig, spec *ExtensionSpec) error {
	return sh.Rm(config.outputPath(spec))
}

// prepare creates the output directory, generic builders need no configuration
func (b *GenericBuilder) prepare(ctx context.Context, config *BuildConfig, spec *ExtensionSpec, _ string, result *BuildResult) error {
	if config.CleanFirst {
		if err := b.Clean(ctx, config, spec); err != nil {
			return err
		}
	}
	if config.Verbose {
		result.Output = append(result.Output, fmt.Sprintf("%s builder, no configuration needed", b.name))
	}
	return os.MkdirAll(filepath.Dir(config.outputPath(spec)), 0o755)
}

// runBuild executes the configured build command
func (b *GenericBuilder) runBuild(ctx context.Context, config *BuildConfig, spec *ExtensionSpec, extensionDir string, result *BuildResult) error {
	if len(b.buildCommand) == 0 {
		return &CompileError{
			Builder:   b.name,
			Extension: spec.Name,
			ExitCode:  -1,
			Err:       fmt.Errorf("no build command configured for %s builder", b.name),
		}
	}

	args := b.expand(config, spec, extensionDir)
	args = append(args, config.BuildArgs...)

	tool := args[0]
	if req := b.toolFor(tool); req != nil {
		if path, err := ResolveTool(*req); err == nil {
			tool = path
		}
	}

	return runTool(ctx, config, b.Name(), spec, nil, result, tool, args[1:]...)
}

// expand substitutes the command template placeholders.
func (b *GenericBuilder) expand(config *BuildConfig, spec *ExtensionSpec, extensionDir string) []string {
	lists := map[string][]string{
		"{{sources}}":  prefixed("", mapStrings(spec.Sources, config.sourcePath)),
		"{{includes}}": prefixed("-I", mapStrings(spec.IncludeDirs, config.sourcePath)),
		"{{defines}}":  prefixed("-D", spec.DefineMacros),
		"{{libs}}":     prefixed("-l", spec.Libraries),
	}
	replacer := strings.NewReplacer(
		"{{output}}", config.outputPath(spec),
		"{{dir}}", extensionDir,
		"{{name}}", spec.Name,
	)

	args := make([]string, 0, len(b.buildCommand))
	for _, arg := range b.buildCommand {
		if list, ok := lists[arg]; ok {
			args = append(args, list...)
			continue
		}
		args = append(args, replacer.Replace(arg))
	}
	return args
}

func (b *GenericBuilder) toolFor(name string) *ToolRequirement {
	for i := range b.tools {
		if b.tools[i].Name == name {
			return &b.tools[i]
		}
	}
	return nil
}

func (b *GenericBuilder) findBuiltExtension(config *BuildConfig, spec *ExtensionSpec, _ string) ([]string, error) {
	return builtLibrary(config, spec, b.Name())
}

func prefixed(prefix string, values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		out = append(out, prefix+value)
	}
	return out
}

func mapStrings(values []string, f func(string) string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		out = append(out, f(value))
	}
	return out
}

// Predefined language configurations

// NewZigBuilder creates a builder for Zig extensions.
//
// Zig links against the host libc so the library can be loaded by a C
// interpreter; sources may also be C files compiled alongside.
func NewZigBuilder() *GenericBuilder {
	return NewGenericBuilder(&GenericBuilderConfig{
		Name:        "Zig",
		BuildSystem: "zig",
		Patterns:    []string{"*.zig"},
		Tools: []ToolRequirement{
			{Name: "zig", Purpose: "Zig compiler"},
		},
		BuildCommand: []string{
			"zig", "build-lib", "-dynamic", "-lc", "-O", "ReleaseFast",
			"{{includes}}", "{{defines}}", "{{libs}}",
			"-femit-bin={{output}}", "{{sources}}",
		},
	})
}
