package extbuild

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// OptionalBuildExt is the resilient build-extension step.
//
// Failures are demoted to warnings at two levels:
//   - extension: a builder error whose kind is recoverable for the target
//     platform skips that extension and the loop moves on
//   - build: a *PlatformError escaping the whole run skips every extension
//
// Errors of any other kind propagate to the caller.
type OptionalBuildExt struct {
	factory     *BuilderFactory
	recoverable KindSet
	logger      *zap.Logger
}

// OptionalBuildExtOption configures an OptionalBuildExt.
type OptionalBuildExtOption func(*OptionalBuildExt)

// WithBuildRecoverable replaces the recoverable error kinds, which default
// to RecoverableKinds of the target platform.
func WithBuildRecoverable(kinds KindSet) OptionalBuildExtOption {
	return func(b *OptionalBuildExt) {
		b.recoverable = kinds
	}
}

// WithBuildLogger sets the logger receiving the skip warnings.
func WithBuildLogger(l *zap.Logger) OptionalBuildExtOption {
	return func(b *OptionalBuildExt) {
		b.logger = l
	}
}

// NewOptionalBuildExt returns a resilient handler driving factory.
// A nil factory means NewBuilderFactory().
func NewOptionalBuildExt(factory *BuilderFactory, opts ...OptionalBuildExtOption) *OptionalBuildExt {
	if factory == nil {
		factory = NewBuilderFactory()
	}
	b := &OptionalBuildExt{factory: factory}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildExtensions implements BuildExtHandler.
func (b *OptionalBuildExt) BuildExtensions(ctx context.Context, config *BuildConfig, specs []ExtensionSpec) (*BuildReport, error) {
	report, err := runBuildExt(ctx, config, specs, func(ctx context.Context, config *BuildConfig, spec *ExtensionSpec) (*BuildResult, error) {
		return b.buildExtension(ctx, config, spec)
	})

	var platformErr *PlatformError
	if errors.As(err, &platformErr) {
		names := extensionNames(specs)
		b.log().Warn("failed to build extensions, skipping",
			zap.Strings("extensions", names),
			zap.Error(err))

		skipped := &BuildReport{Requested: names}
		for _, name := range names {
			skipped.Skipped = append(skipped.Skipped, SkippedExtension{Name: name, Err: err})
		}
		return skipped, nil
	}

	return report, err
}

func (b *OptionalBuildExt) buildExtension(ctx context.Context, config *BuildConfig, spec *ExtensionSpec) (*BuildResult, error) {
	result, err := b.factory.BuildExtension(ctx, config, spec)
	if err == nil {
		return result, nil
	}

	if !b.recoverableFor(config).Matches(err) {
		return result, err
	}

	fields := []zap.Field{
		zap.String("extension", spec.Name),
		zap.Stringer("kind", KindOf(err)),
		zap.Error(err),
	}
	b.log().Warn("failed to build extension, skipping", fields...)

	var compileErr *CompileError
	if errors.As(err, &compileErr) && len(compileErr.Output) > 0 {
		b.log().Debug("extension build output", zap.String("extension", spec.Name), zap.String("details", compileErr.Details()))
	}

	result.Success = false
	result.Error = err
	return result, nil
}

func (b *OptionalBuildExt) recoverableFor(config *BuildConfig) KindSet {
	if b.recoverable != nil {
		return b.recoverable
	}
	return RecoverableKinds(config.Platform())
}

func (b *OptionalBuildExt) log() *zap.Logger {
	if b.logger != nil {
		return b.logger
	}
	return Logger()
}
