package extbuild

import (
	"context"
	"fmt"
	"os"

	"github.com/contriboss/extbuild-go/internal/try"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// StrictEnvVar makes any failure of the extension-enabled install fatal
// when set to exactly "TRUE". CI uses it to catch extension regressions.
const StrictEnvVar = "EXTBUILD_BUILD_RAISE"

// StrictFromEnv reports whether getenv enables strict mode.
func StrictFromEnv(getenv func(string) string) bool {
	return getenv(StrictEnvVar) == "TRUE"
}

// Outcome summarises what happened to the native extensions of an install.
type Outcome string

const (
	OutcomeSucceeded        Outcome = "succeeded"
	OutcomePartiallySkipped Outcome = "partially-skipped"
	OutcomeFullySkipped     Outcome = "fully-skipped"
)

func decideOutcome(build *BuildReport, failedSources int) Outcome {
	skipped := failedSources
	built := 0
	if build != nil {
		skipped += len(build.Skipped)
		built = len(build.Built)
	}

	switch {
	case skipped == 0:
		return OutcomeSucceeded
	case built == 0:
		return OutcomeFullySkipped
	default:
		return OutcomePartiallySkipped
	}
}

// Orchestrator runs the best-effort installation.
//
// Run first attempts an install with every collected extension and the
// resilient build step. If anything escapes that attempt, including a
// panic, it installs the bare package instead, unless strict mode is on.
type Orchestrator struct {
	pkg       Package
	sources   []Source
	loader    DescriptorLoader
	goos      string
	installer Installer

	factory     *BuilderFactory
	recoverable KindSet

	logger *zap.Logger
	getenv func(string) string
	strict *bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSources replaces DefaultSources.
func WithSources(sources ...Source) Option {
	return func(o *Orchestrator) {
		o.sources = append([]Source(nil), sources...)
	}
}

// WithDescriptorLoader replaces the file loader rooted at the project dir.
func WithDescriptorLoader(l DescriptorLoader) Option {
	return func(o *Orchestrator) {
		o.loader = l
	}
}

// WithInstaller replaces the DirInstaller built by New.
func WithInstaller(i Installer) Option {
	return func(o *Orchestrator) {
		o.installer = i
	}
}

// WithBuilderFactory sets the builders used for extensions.
func WithBuilderFactory(f *BuilderFactory) Option {
	return func(o *Orchestrator) {
		o.factory = f
	}
}

// WithRecoverable sets the error kinds demoted to warnings per extension.
// The default depends on the target platform, see RecoverableKinds.
func WithRecoverable(kinds KindSet) Option {
	return func(o *Orchestrator) {
		o.recoverable = kinds
	}
}

// WithLogger sets the logger for every warning emitted during Run.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithEnv replaces os.Getenv when reading StrictEnvVar.
func WithEnv(getenv func(string) string) Option {
	return func(o *Orchestrator) {
		o.getenv = getenv
	}
}

// WithStrict forces strict mode on or off regardless of the environment.
func WithStrict(strict bool) Option {
	return func(o *Orchestrator) {
		o.strict = &strict
	}
}

// New returns an Orchestrator installing pkg from build.ProjectDir into
// destDir.
func New(pkg Package, build BuildConfig, destDir string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		pkg:     pkg.clone(),
		sources: DefaultSources(),
		loader:  Loader{Root: build.ProjectDir},
		goos:    build.Platform(),
		getenv:  os.Getenv,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.installer == nil {
		o.installer = &DirInstaller{Build: build, DestDir: destDir, Logger: o.logger}
	}
	return o
}

// Strict reports whether a failed extension-enabled install is fatal.
func (o *Orchestrator) Strict() bool {
	if o.strict != nil {
		return *o.strict
	}
	return StrictFromEnv(o.getenv)
}

// Run installs the package.
//
// The returned error is non-nil only when the pure fallback install fails,
// or when strict mode is on and the extension-enabled install failed.
func (o *Orchestrator) Run(ctx context.Context) (report *InstallReport, err error) {
	ctx, span := tracer().Start(ctx, "extbuild.Run")
	defer func() { endSpan(span, err) }()

	report, failedSources, err := o.installWithExtensions(ctx)
	if err == nil {
		span.SetAttributes(attribute.String("install.outcome", string(report.Outcome)))
		return report, nil
	}

	if o.Strict() {
		return nil, err
	}

	o.log().Warn("failed to install with native extensions, installing without them",
		zap.String("package", o.pkg.Name),
		zap.Error(err))
	span.SetAttributes(attribute.Bool("install.fallback", true))

	report, fallbackErr := o.installer.Install(ctx, NewInstallConfig(o.pkg))
	if fallbackErr != nil {
		return nil, fmt.Errorf("install of %s without native extensions failed: %w", o.pkg.Name, fallbackErr)
	}
	if report == nil {
		report = &InstallReport{Package: o.pkg.Name, Version: o.pkg.Version}
	}
	report.SkippedSources = failedSources
	report.Outcome = OutcomeFullySkipped
	report.Fallback = true
	report.FallbackCause = err
	return report, nil
}

// installWithExtensions is the extension-enabled attempt. Panics are
// returned as try.PanicError.
func (o *Orchestrator) installWithExtensions(ctx context.Context) (report *InstallReport, failedSources []string, err error) {
	defer try.Recover(&err)

	aggregator := &Aggregator{Loader: o.loader, GOOS: o.goos, Logger: o.logger}
	collection := aggregator.Collect(ctx, o.sources)
	failedSources = collection.Failed

	buildOpts := []OptionalBuildExtOption{WithBuildLogger(o.log())}
	if o.recoverable != nil {
		buildOpts = append(buildOpts, WithBuildRecoverable(o.recoverable))
	}

	cfg := NewInstallConfig(o.pkg).
		WithExtensions(collection.Extensions).
		WithBuildExt(NewOptionalBuildExt(o.factory, buildOpts...))

	report, err = o.installer.Install(ctx, cfg)
	if err != nil {
		return nil, failedSources, err
	}
	if report == nil {
		report = &InstallReport{Package: o.pkg.Name, Version: o.pkg.Version}
	}
	report.SkippedSources = failedSources
	report.Outcome = decideOutcome(report.Extensions, len(failedSources))
	return report, failedSources, nil
}

func (o *Orchestrator) log() *zap.Logger {
	if o.logger != nil {
		return o.logger
	}
	return Logger()
}
