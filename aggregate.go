package extbuild

import (
	"context"
	"fmt"

	"github.com/contriboss/extbuild-go/internal/try"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Source is a vendored sub-project that may contribute extensions.
type Source struct {
	Name   string `mapstructure:"name" yaml:"name"`     // short name used in warnings
	Module string `mapstructure:"module" yaml:"module"` // logical module name of its descriptor
	Path   string `mapstructure:"path" yaml:"path"`     // descriptor path relative to the project root
}

// DefaultSources returns the vendored sub-projects shipped with the package,
// in the order their extensions are collected.
func DefaultSources() []Source {
	return []Source{
		{Name: "msgpack", Module: "ddtrace.vendor.msgpack.setup", Path: "ddtrace/vendor/msgpack/extensions.yaml"},
		{Name: "wrapt", Module: "ddtrace.vendor.wrapt.setup", Path: "ddtrace/vendor/wrapt/extensions.yaml"},
		{Name: "psutil", Module: "ddtrace.vendor.psutil.setup", Path: "ddtrace/vendor/psutil/extensions.yaml"},
	}
}

// SourceError reports a vendored sub-project whose extensions could not be
// collected.
type SourceError struct {
	Source string
	Err    error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	return fmt.Sprintf("failed to load extensions from %s: %v", e.Source, e.Err)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e *SourceError) Unwrap() error {
	return e.Err
}

// Collection is the combined extension set of one build.
type Collection struct {
	Extensions []ExtensionSpec // every collected spec, in source order
	Loaded     []string        // sources that contributed (possibly zero specs)
	Failed     []string        // sources that failed and contributed nothing

	err error
}

// Err returns the combined *SourceError of all failed sources, or nil.
func (c *Collection) Err() error {
	return c.err
}

// Errors returns one *SourceError per failed source.
func (c *Collection) Errors() []error {
	return multierr.Errors(c.err)
}

// DescriptorLoader loads one sub-project descriptor. Loader is the
// file based implementation.
type DescriptorLoader interface {
	Load(module, relPath string) (*Descriptor, error)
}

// Aggregator merges the extension lists of vendored sub-projects.
type Aggregator struct {
	Loader DescriptorLoader // nil = Loader{Root: "."}
	GOOS   string           // empty = host
	Logger *zap.Logger      // nil = package logger
}

// Collect loads every source in order and concatenates their extensions.
//
// A source that cannot be loaded or queried, including one that panics,
// contributes nothing and is reported with a single warning. Collect itself
// never fails; failures are available from the returned Collection.
func (a *Aggregator) Collect(ctx context.Context, sources []Source) *Collection {
	_, span := tracer().Start(ctx, "extbuild.Collect")
	defer span.End()

	goos := a.GOOS
	if goos == "" {
		goos = hostPlatform()
	}

	loader := a.Loader
	if loader == nil {
		loader = Loader{Root: "."}
	}

	collection := &Collection{}
	for _, src := range sources {
		var specs []ExtensionSpec
		err := try.Call(func() error {
			d, err := loader.Load(src.Module, src.Path)
			if err != nil {
				return err
			}
			specs, err = d.Extensions(goos)
			return err
		})
		if err != nil {
			a.log().Warn("failed to load extensions, skipping",
				zap.String("source", src.Name),
				zap.String("path", src.Path),
				zap.Error(err))
			collection.Failed = append(collection.Failed, src.Name)
			collection.err = multierr.Append(collection.err, &SourceError{Source: src.Name, Err: err})
			continue
		}

		collection.Loaded = append(collection.Loaded, src.Name)
		collection.Extensions = append(collection.Extensions, specs...)
	}

	span.SetAttributes(
		attribute.Int("extensions.count", len(collection.Extensions)),
		attribute.StringSlice("sources.failed", collection.Failed),
	)
	return collection
}

func (a *Aggregator) log() *zap.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return Logger()
}
