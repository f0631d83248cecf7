package extbuild

import "context"

// BuildExtHandler compiles the extensions an installation asked for.
//
// It is the build-extension step of an install: the installer hands it the
// combined extension list and installs whatever libraries the report lists.
type BuildExtHandler interface {
	BuildExtensions(ctx context.Context, config *BuildConfig, specs []ExtensionSpec) (*BuildReport, error)
}

// BuildExtHandlerFunc adapts a function to BuildExtHandler.
type BuildExtHandlerFunc func(ctx context.Context, config *BuildConfig, specs []ExtensionSpec) (*BuildReport, error)

// BuildExtensions implements BuildExtHandler.
func (f BuildExtHandlerFunc) BuildExtensions(ctx context.Context, config *BuildConfig, specs []ExtensionSpec) (*BuildReport, error) {
	return f(ctx, config, specs)
}

// BuildExt is the plain build-extension step: it checks the platform, builds
// every extension in order and stops at the first failure.
type BuildExt struct {
	Factory *BuilderFactory // nil means NewBuilderFactory()
}

// BuildExtensions implements BuildExtHandler.
func (b *BuildExt) BuildExtensions(ctx context.Context, config *BuildConfig, specs []ExtensionSpec) (*BuildReport, error) {
	factory := b.Factory
	if factory == nil {
		factory = NewBuilderFactory()
	}
	return runBuildExt(ctx, config, specs, factory.BuildExtension)
}

// extensionBuildFunc builds one extension. Returning a result with
// Success=false and a nil error marks the extension as skipped.
type extensionBuildFunc func(ctx context.Context, config *BuildConfig, spec *ExtensionSpec) (*BuildResult, error)

// runBuildExt is the build-extension loop shared by the handlers.
//
// # Process Flow
//
//  1. Record every requested extension name
//  2. Fail with a *PlatformError if the target cannot build native code
//  3. Build each extension in order, checking ctx between extensions
//  4. Stop at the first error; the partial report is still returned
func runBuildExt(ctx context.Context, config *BuildConfig, specs []ExtensionSpec, build extensionBuildFunc) (*BuildReport, error) {
	report := &BuildReport{Requested: extensionNames(specs)}
	if len(specs) == 0 {
		return report, nil
	}

	if err := CheckPlatform(config.Platform()); err != nil {
		return report, err
	}

	for i := range specs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		result, err := build(ctx, config, &specs[i])
		if err != nil {
			return report, err
		}

		if result == nil || !result.Success {
			skipped := SkippedExtension{Name: specs[i].Name}
			if result != nil {
				skipped.Err = result.Error
			}
			report.Skipped = append(report.Skipped, skipped)
			continue
		}

		report.Built = append(report.Built, result)
	}

	return report, nil
}
