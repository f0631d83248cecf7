package extbuild

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var nativeLibraryExtensions = map[string]struct{}{
	".so":     {},
	".pyd":    {},
	".dll":    {},
	".dylib":  {},
	".bundle": {},
}

// Installer runs the installation procedure for one configuration variant.
type Installer interface {
	Install(ctx context.Context, cfg InstallConfig) (*InstallReport, error)
}

// InstallReport describes a finished installation.
type InstallReport struct {
	Package string
	Version string
	Files   []string // installed paths relative to the destination

	// Extensions is the build report of the extension step; nil when the
	// configuration carried no extensions.
	Extensions *BuildReport

	// Filled in by the Orchestrator.
	SkippedSources []string
	Outcome        Outcome
	Fallback       bool
	FallbackCause  error

	Manifest string // path of the written install manifest
}

// DirInstaller installs a package tree into a destination directory.
//
// # Process Flow
//
//  1. Validate the package metadata
//  2. Copy the pure package files, skipping excluded and native files
//  3. Build the configured extensions with the build-extension handler
//  4. Copy the built libraries next to the package files
//  5. Write <name>-<version>.install.yaml into the destination
//
// The pure files are copied before any extension is built, so a failure in
// the extension step never leaves a tree without them.
type DirInstaller struct {
	Build   BuildConfig // ProjectDir is the package source root
	DestDir string
	Logger  *zap.Logger
}

// Install implements Installer.
func (i *DirInstaller) Install(ctx context.Context, cfg InstallConfig) (report *InstallReport, err error) {
	ctx, span := tracer().Start(ctx, "extbuild.Install")
	span.SetAttributes(attribute.Bool("install.extensions", cfg.HasExtensions()))
	defer func() { endSpan(span, err) }()

	pkg := cfg.Package()
	if err := pkg.Validate(); err != nil {
		return nil, err
	}
	if i.DestDir == "" {
		return nil, fmt.Errorf("install %s: no destination directory", pkg.Name)
	}

	report = &InstallReport{Package: pkg.Name, Version: pkg.Version}
	if err := os.MkdirAll(i.DestDir, 0o755); err != nil {
		return report, fmt.Errorf("install %s: %w", pkg.Name, err)
	}

	files, err := i.copyPackageFiles(pkg)
	if err != nil {
		return report, fmt.Errorf("install %s: %w", pkg.Name, err)
	}
	report.Files = files

	// A failed attempt must not leave native libraries behind for the
	// pure install that follows it.
	var libs []string
	defer func() {
		if err != nil {
			i.removeLibraries(libs)
		}
	}()

	if cfg.HasExtensions() {
		build, err := i.buildExtensions(ctx, cfg)
		report.Extensions = build
		if err != nil {
			return report, fmt.Errorf("build_ext: %w", err)
		}

		libs, err = i.installLibraries(build)
		if err != nil {
			return report, fmt.Errorf("install %s extensions: %w", pkg.Name, err)
		}
		report.Files = uniqueStrings(append(report.Files, libs...))
	}

	manifest, err := i.writeManifest(pkg, report)
	if err != nil {
		return report, fmt.Errorf("install %s: %w", pkg.Name, err)
	}
	report.Manifest = manifest

	i.log().Debug("installed package",
		zap.String("package", pkg.Name),
		zap.Int("files", len(report.Files)),
		zap.Strings("extensions", report.Extensions.BuiltNames()))
	return report, nil
}

func (i *DirInstaller) buildExtensions(ctx context.Context, cfg InstallConfig) (*BuildReport, error) {
	build := i.Build
	for _, dir := range []string{build.buildDir(), build.tempDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	handler := cfg.BuildExt()
	if handler == nil {
		handler = &BuildExt{}
	}
	return handler.BuildExtensions(ctx, &build, cfg.Extensions())
}

// copyPackageFiles copies every package directory into DestDir and returns
// the installed paths in walk order.
func (i *DirInstaller) copyPackageFiles(pkg Package) ([]string, error) {
	var installed []string

	for _, dir := range uniqueStrings(pkg.Packages) {
		root := i.Build.sourcePath(dir)
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}

			rel, err := filepath.Rel(i.Build.ProjectDir, path)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if !d.Type().IsRegular() || isNativeLibrary(rel) || excluded(pkg.Exclude, rel) {
				return nil
			}

			if err := copyFile(path, filepath.Join(i.DestDir, filepath.FromSlash(rel))); err != nil {
				return err
			}
			installed = append(installed, rel)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return installed, nil
}

// installLibraries copies the built libraries into DestDir. On error it
// still returns the libraries copied so far.
func (i *DirInstaller) installLibraries(build *BuildReport) ([]string, error) {
	if build == nil {
		return nil, nil
	}

	var installed []string
	for _, result := range build.Built {
		for _, lib := range result.Libraries {
			if !isNativeLibrary(lib) {
				continue
			}
			rel := filepath.ToSlash(safeRelativePath(filepath.FromSlash(lib)))
			src := filepath.Join(i.Build.buildDir(), filepath.FromSlash(rel))
			if err := copyFile(src, filepath.Join(i.DestDir, filepath.FromSlash(rel))); err != nil {
				return installed, err
			}
			installed = append(installed, rel)
		}
	}
	return installed, nil
}

// removeLibraries deletes installed libraries from DestDir.
func (i *DirInstaller) removeLibraries(libs []string) {
	for _, rel := range libs {
		path := filepath.Join(i.DestDir, filepath.FromSlash(rel))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			i.log().Warn("failed to remove extension library", zap.String("path", path), zap.Error(err))
		}
	}
}

// Manifest is the record DirInstaller writes next to an installed package.
type Manifest struct {
	Package    string              `yaml:"package"`
	Version    string              `yaml:"version"`
	Files      []string            `yaml:"files"`
	Extensions *ManifestExtensions `yaml:"extensions,omitempty"`
}

// ManifestExtensions lists the extensions of an install.
type ManifestExtensions struct {
	Built   []string          `yaml:"built"`
	Skipped []ManifestSkipped `yaml:"skipped,omitempty"`
}

// ManifestSkipped is an extension that was not installed.
type ManifestSkipped struct {
	Name  string `yaml:"name"`
	Error string `yaml:"error,omitempty"`
}

// ManifestName returns the install manifest file name of pkg.
func ManifestName(pkg Package) string {
	return fmt.Sprintf("%s-%s.install.yaml", pkg.Name, pkg.Version)
}

func (i *DirInstaller) writeManifest(pkg Package, report *InstallReport) (string, error) {
	manifest := Manifest{
		Package: pkg.Name,
		Version: pkg.Version,
		Files:   report.Files,
	}
	if report.Extensions != nil {
		ext := &ManifestExtensions{Built: report.Extensions.BuiltNames()}
		for _, skipped := range report.Extensions.Skipped {
			entry := ManifestSkipped{Name: skipped.Name}
			if skipped.Err != nil {
				entry.Error = skipped.Err.Error()
			}
			ext.Skipped = append(ext.Skipped, entry)
		}
		manifest.Extensions = ext
	}

	data, err := yaml.Marshal(&manifest)
	if err != nil {
		return "", err
	}

	path := filepath.Join(i.DestDir, ManifestName(pkg))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// ReadManifest loads an install manifest written by DirInstaller.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return &manifest, nil
}

func (i *DirInstaller) log() *zap.Logger {
	if i.Logger != nil {
		return i.Logger
	}
	return Logger()
}

func excluded(patterns []string, rel string) bool {
	base := filepath.Base(rel)
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

func isNativeLibrary(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	_, ok := nativeLibraryExtensions[ext]
	return ok
}

func copyFile(srcPath, destPath string) error {
	info, err := os.Stat(srcPath)
	if err != nil {
		return err
	}

	dir := filepath.Dir(destPath)
	if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
		return mkErr
	}

	in, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}

	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return err
	}

	return out.Close()
}

func safeRelativePath(path string) string {
	clean := filepath.Clean(path)
	if clean == "." || clean == ".." || filepath.IsAbs(clean) || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return filepath.Base(path)
	}
	return clean
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{})
	var result []string

	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}

	return result
}
