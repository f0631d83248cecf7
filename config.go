package extbuild

import (
	"errors"
	"fmt"
)

// Package is the base metadata of the package being installed.
//
// A Package is treated as immutable: InstallConfig copies it and every
// accessor hands out copies.
type Package struct {
	Name        string   `mapstructure:"name" yaml:"name"`
	Version     string   `mapstructure:"version" yaml:"version"`
	Description string   `mapstructure:"description" yaml:"description,omitempty"`
	URL         string   `mapstructure:"url" yaml:"url,omitempty"`
	Author      string   `mapstructure:"author" yaml:"author,omitempty"`
	License     string   `mapstructure:"license" yaml:"license,omitempty"`
	Packages    []string `mapstructure:"packages" yaml:"packages"`         // package directories relative to the project root
	Exclude     []string `mapstructure:"exclude" yaml:"exclude,omitempty"` // glob patterns of files never installed
}

// ErrInvalidPackage is wrapped by Package validation failures.
var ErrInvalidPackage = errors.New("invalid package metadata")

// Validate checks the fields an installation needs.
func (p Package) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPackage)
	}
	if p.Version == "" {
		return fmt.Errorf("%w: version is required for %s", ErrInvalidPackage, p.Name)
	}
	if len(p.Packages) == 0 {
		return fmt.Errorf("%w: %s lists no package directories", ErrInvalidPackage, p.Name)
	}
	return nil
}

func (p Package) clone() Package {
	p.Packages = append([]string(nil), p.Packages...)
	p.Exclude = append([]string(nil), p.Exclude...)
	return p
}

// InstallConfig is one variant of the installation configuration: the base
// package plus, optionally, extensions and the handler that builds them.
//
// Values are immutable. WithExtensions and WithBuildExt return derived
// configurations and leave the receiver untouched, so the pure fallback can
// always start again from the base package.
type InstallConfig struct {
	pkg        Package
	extensions []ExtensionSpec
	buildExt   BuildExtHandler
}

// NewInstallConfig returns the bare configuration of pkg: no extensions and
// no build-extension handler.
func NewInstallConfig(pkg Package) InstallConfig {
	return InstallConfig{pkg: pkg.clone()}
}

// WithExtensions returns a copy of c that installs specs.
func (c InstallConfig) WithExtensions(specs []ExtensionSpec) InstallConfig {
	c.extensions = cloneSpecs(specs)
	return c
}

// WithBuildExt returns a copy of c that builds its extensions with h.
func (c InstallConfig) WithBuildExt(h BuildExtHandler) InstallConfig {
	c.buildExt = h
	return c
}

// Package returns a copy of the base package metadata.
func (c InstallConfig) Package() Package {
	return c.pkg.clone()
}

// Extensions returns a copy of the configured extension specs.
func (c InstallConfig) Extensions() []ExtensionSpec {
	return cloneSpecs(c.extensions)
}

// HasExtensions reports whether any extension is configured.
func (c InstallConfig) HasExtensions() bool {
	return len(c.extensions) > 0
}

// BuildExt returns the configured build-extension handler, which may be nil.
func (c InstallConfig) BuildExt() BuildExtHandler {
	return c.buildExt
}
