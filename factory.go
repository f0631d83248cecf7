package extbuild

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// BuilderFactory manages the registration and selection of extension builders.
//
// The factory maintains a registry of Builder implementations and provides
// methods to:
//   - Register new builders
//   - Find the appropriate builder for an extension spec
//   - Build or clean a single extension
//
// It is the platform build tool the build-extension handlers drive; it
// applies no failure policy of its own.
//
// # Usage
//
// Create a factory with all standard builders:
//
//	factory := extbuild.NewBuilderFactory()
//
// Or create an empty factory and register custom builders:
//
//	factory := &extbuild.BuilderFactory{}
//	factory.Register(&MyCustomBuilder{})
//
// # Builder Selection
//
// Builders are asked in registration order and the first whose CanBuild
// returns true is used. A spec nobody can build yields a *CompileError
// wrapping ErrNoBuilder.
//
// # Thread Safety
//
// BuilderFactory is NOT thread-safe for registration.
// Register all builders before use.
type BuilderFactory struct {
	builders []Builder
}

// NewBuilderFactory creates a factory with all standard builders registered.
//
// The standard builders are registered in this order:
//  1. CCompilerBuilder - plain C/C++ sources (or build: cc)
//  2. GoBuilder - .go sources / go.mod (or build: go)
//  3. MakefileBuilder - Makefile (or build: make)
//  4. CmakeBuilder - CMakeLists.txt (or build: cmake)
//  5. CargoBuilder - Cargo.toml (or build: cargo)
//  6. Zig GenericBuilder - .zig sources (or build: zig)
func NewBuilderFactory() *BuilderFactory {
	factory := &BuilderFactory{}

	// Register all standard builders in priority order
	factory.Register(&CCompilerBuilder{})
	factory.Register(&GoBuilder{})
	factory.Register(&MakefileBuilder{})
	factory.Register(&CmakeBuilder{})
	factory.Register(&CargoBuilder{})
	factory.Register(NewZigBuilder())

	return factory
}

// Register adds a new builder to the factory.
//
// Builders are checked in the order they are registered.
// Not thread-safe. Register all builders before use.
func (f *BuilderFactory) Register(builder Builder) {
	f.builders = append(f.builders, builder)
}

// BuilderFor returns the appropriate builder for the given extension spec.
func (f *BuilderFactory) BuilderFor(spec *ExtensionSpec) (Builder, error) {
	for _, builder := range f.builders {
		if builder.CanBuild(spec) {
			return builder, nil
		}
	}

	return nil, &CompileError{
		Extension: spec.Name,
		ExitCode:  -1,
		Err:       fmt.Errorf("%w: %v", ErrNoBuilder, spec.Sources),
	}
}

// ListBuilders returns a copy of all registered builders.
func (f *BuilderFactory) ListBuilders() []Builder {
	return append([]Builder{}, f.builders...)
}

// BuildExtension builds one extension with the matching builder.
//
// Builders implementing ToolChecker are checked first so a missing tool
// fails fast with an *ExecError. The returned result is never nil.
func (f *BuilderFactory) BuildExtension(ctx context.Context, config *BuildConfig, spec *ExtensionSpec) (result *BuildResult, err error) {
	ctx, span := tracer().Start(ctx, "extbuild.BuildExtension")
	span.SetAttributes(attribute.String("extension.name", spec.Name))
	defer func() { endSpan(span, err) }()

	builder, err := f.BuilderFor(spec)
	if err != nil {
		return &BuildResult{Extension: spec.Name, Error: err}, err
	}
	span.SetAttributes(attribute.String("extension.builder", builder.Name()))

	if checker, ok := builder.(ToolChecker); ok {
		if err := checker.CheckTools(spec); err != nil {
			return &BuildResult{
				Extension:           spec.Name,
				Error:               err,
				MissingDependencies: missingTools(checker.RequiredTools(spec)),
			}, err
		}
	}

	result, err = builder.Build(ctx, config, spec)
	if result == nil {
		result = &BuildResult{Extension: spec.Name, Error: err}
	}
	return result, err
}

// Clean removes build artifacts of every spec, returning the first error.
func (f *BuilderFactory) Clean(ctx context.Context, config *BuildConfig, specs []ExtensionSpec) error {
	var firstError error
	for i := range specs {
		builder, err := f.BuilderFor(&specs[i])
		if err == nil {
			err = builder.Clean(ctx, config, &specs[i])
		}
		if err != nil && firstError == nil {
			firstError = err
		}
	}
	return firstError
}

func missingTools(requirements []ToolRequirement) []string {
	var missing []string
	for _, req := range requirements {
		if req.Optional {
			continue
		}
		if _, err := ResolveTool(req); err != nil {
			missing = append(missing, req.Name)
		}
	}
	return missing
}
