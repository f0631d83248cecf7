package extbuild

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Source file suffixes compiled directly by the C/C++ builder.
var (
	cSourceExtensions   = []string{".c"}
	cxxSourceExtensions = []string{".cc", ".cpp", ".cxx", ".c++"}
)

// MatchesPattern checks if a filename matches any of the given regex patterns.
//
// If a pattern is invalid regex, it is silently skipped.
//
// # Example
//
//	if MatchesPattern(filepath.Base(source), `^CMakeLists\.txt$`) {
//	    // Handle CMake projects
//	}
func MatchesPattern(filename string, patterns ...string) bool {
	for _, pattern := range patterns {
		if matched, _ := regexp.MatchString(pattern, filename); matched {
			return true
		}
	}
	return false
}

// MatchesExtension checks if a filename has any of the given extensions.
//
// This is a case-insensitive check, with or without the leading dot.
//
//	MatchesExtension("speedups.CPP", ".cpp") // true
func MatchesExtension(filename string, extensions ...string) bool {
	for _, ext := range extensions {
		if strings.HasSuffix(strings.ToLower(filename), strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

// anySourceMatches reports whether the base name of any spec source matches
// one of the regex patterns.
func anySourceMatches(spec *ExtensionSpec, patterns ...string) bool {
	for _, source := range spec.Sources {
		if MatchesPattern(filepath.Base(source), patterns...) {
			return true
		}
	}
	return false
}

// allSourcesHave reports whether the spec has sources and all of them carry
// one of the given extensions.
func allSourcesHave(spec *ExtensionSpec, extensions ...string) bool {
	if len(spec.Sources) == 0 {
		return false
	}
	for _, source := range spec.Sources {
		if !MatchesExtension(source, extensions...) {
			return false
		}
	}
	return true
}

// isCxx reports whether the spec must be compiled and linked as C++.
func isCxx(spec *ExtensionSpec) bool {
	if spec.Language != "" {
		return spec.Language == "c++"
	}
	for _, source := range spec.Sources {
		if MatchesExtension(source, cxxSourceExtensions...) {
			return true
		}
	}
	return false
}

// toolFromEnv returns the value of key from the build env, then the process
// env, then fallback.
func toolFromEnv(config *BuildConfig, key, fallback string) string {
	if value := config.Env[key]; value != "" {
		return value
	}
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// withEnv returns a copy of base with the extra entries added.
func withEnv(base map[string]string, extra ...string) map[string]string {
	env := make(map[string]string, len(base)+len(extra)/2)
	for key, value := range base {
		env[key] = value
	}
	for i := 0; i+1 < len(extra); i += 2 {
		env[extra[i]] = extra[i+1]
	}
	return env
}

// splitOutput splits captured tool output into lines without a trailing
// empty line.
func splitOutput(output string) []string {
	output = strings.TrimRight(output, "\n")
	if output == "" {
		return nil
	}
	return strings.Split(output, "\n")
}

// relativeToBuildDir converts an absolute library path into a path relative
// to the build directory.
func relativeToBuildDir(config *BuildConfig, path string) (string, error) {
	rel, err := filepath.Rel(config.buildDir(), path)
	if err != nil {
		return "", fmt.Errorf("library %s is outside the build directory: %w", path, err)
	}
	return filepath.ToSlash(rel), nil
}

// builtLibrary stats the expected output of spec and returns it relative to
// the build directory.
func builtLibrary(config *BuildConfig, spec *ExtensionSpec, builder string) ([]string, error) {
	output := config.outputPath(spec)
	info, err := os.Stat(output)
	if err != nil {
		return nil, &CompileError{
			Builder:   builder,
			Extension: spec.Name,
			ExitCode:  -1,
			Err:       fmt.Errorf("expected library %s was not produced: %w", output, err),
		}
	}
	if !info.Mode().IsRegular() {
		return nil, &CompileError{
			Builder:   builder,
			Extension: spec.Name,
			ExitCode:  -1,
			Err:       fmt.Errorf("expected library %s is not a regular file", output),
		}
	}

	rel, err := relativeToBuildDir(config, output)
	if err != nil {
		return nil, err
	}
	return []string{rel}, nil
}
