package extbuild

import "context"

// Builder defines the interface that all extension builders must implement.
//
// Each builder drives one native build system (direct compiler invocation,
// Go c-shared, Makefile, CMake, Cargo) and is selected by the BuilderFactory
// from the extension spec.
//
// # Builder Lifecycle
//
//  1. CanBuild() - Factory calls this to find the right builder for a spec
//  2. Build() - Factory calls this to compile the extension
//  3. Clean() - Optional cleanup of build artifacts
//
// # Example Implementation
//
//	type MyBuilder struct{}
//
//	func (b *MyBuilder) Name() string {
//	    return "MyBuildSystem"
//	}
//
//	func (b *MyBuilder) CanBuild(spec *ExtensionSpec) bool {
//	    return spec.BuildSystem == "mybuild"
//	}
//
//	func (b *MyBuilder) Build(ctx context.Context, config *BuildConfig, spec *ExtensionSpec) (*BuildResult, error) {
//	    result := &BuildResult{Extension: spec.Name, Success: true}
//	    // ... build logic ...
//	    return result, nil
//	}
//
//	func (b *MyBuilder) Clean(ctx context.Context, config *BuildConfig, spec *ExtensionSpec) error {
//	    return nil
//	}
//
// # Errors
//
// Build should report tool failures with the typed errors in this package
// (*CompileError, *ExecError, *PlatformError) so the resilient build step can
// classify them. Any other error is treated as a bug and is not demoted.
//
// # Thread Safety
//
// Builder implementations should be stateless.
type Builder interface {
	// Name returns the human-readable name of this builder.
	//
	// This name is used in error messages and logs.
	// Examples: "CC", "CMake", "Cargo"
	Name() string

	// CanBuild checks if this builder can handle the given extension spec.
	CanBuild(spec *ExtensionSpec) bool

	// Build compiles the extension and returns the result.
	//
	// On success the library is placed under config.BuildDir at the path
	// given by ExtensionFilename and listed in BuildResult.Libraries.
	Build(ctx context.Context, config *BuildConfig, spec *ExtensionSpec) (*BuildResult, error)

	// Clean removes build artifacts.
	//
	// Returns nil if cleaning is not supported or completes successfully.
	Clean(ctx context.Context, config *BuildConfig, spec *ExtensionSpec) error
}
