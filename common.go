package extbuild

import (
	"context"
	"path/filepath"
)

// runCommonBuild executes the standard 3-step build process.
//
// # Process Flow
//
//  1. Create an empty BuildResult for the spec
//  2. Calculate the extension directory from the first source
//  3. Call ConfigureFunc to prepare the build
//  4. Call BuildFunc to compile the extension
//  5. Call FindFunc to locate the built libraries
//  6. Return BuildResult with Success=true
//
// If any step fails, processing stops and the error is returned
// with Success=false. Subsequent steps are not executed.
//
// The BuildResult.Output field is populated by the step functions
// as they execute.
func runCommonBuild(ctx context.Context, config *BuildConfig, spec *ExtensionSpec, steps CommonBuildSteps) (*BuildResult, error) {
	result := &BuildResult{
		Extension: spec.Name,
		Success:   false,
		Output:    []string{},
	}

	extensionDir := extensionDirFor(config, spec)

	// Step 1: Configure/prepare the build
	if err := steps.ConfigureFunc(ctx, config, spec, extensionDir, result); err != nil {
		result.Error = err
		return result, err
	}

	// Step 2: Build/compile the extension
	if err := steps.BuildFunc(ctx, config, spec, extensionDir, result); err != nil {
		result.Error = err
		return result, err
	}

	// Step 3: Find the built libraries
	libraries, err := steps.FindFunc(config, spec, extensionDir)
	if err != nil {
		result.Error = err
		return result, err
	}

	result.Libraries = libraries
	result.Success = true
	return result, nil
}

// extensionDirFor returns the absolute directory of the spec's first source,
// or the project directory for a spec without sources.
func extensionDirFor(config *BuildConfig, spec *ExtensionSpec) string {
	if len(spec.Sources) == 0 {
		return config.ProjectDir
	}
	return filepath.Dir(config.sourcePath(spec.Sources[0]))
}
