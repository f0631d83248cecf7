package extbuild

import (
	"path/filepath"
	"runtime"
	"strings"
)

// Platform constants
const (
	platformWindows = "windows"
	platformDarwin  = "darwin"
)

// Targets without a native toolchain for loadable shared libraries.
var unsupportedPlatforms = map[string]string{
	"js":      "JavaScript targets cannot load native libraries",
	"wasip1":  "WebAssembly targets cannot load native libraries",
	"plan9":   "no supported C toolchain",
	"ios":     "shared library extensions cannot be loaded on iOS",
	"android": "shared library extensions require the NDK toolchain",
}

// CheckPlatform returns a *PlatformError when native extensions cannot be
// built for goos.
func CheckPlatform(goos string) error {
	if reason, ok := unsupportedPlatforms[goos]; ok {
		return &PlatformError{Platform: goos, Reason: reason}
	}
	return nil
}

// SharedLibrarySuffix returns the file suffix of a loadable extension on goos.
func SharedLibrarySuffix(goos string) string {
	if goos == platformWindows {
		return ".dll"
	}
	return ".so"
}

// ExtensionFilename maps a dotted extension name to its library path,
// e.g. "pkg.vendor._speedups" becomes "pkg/vendor/_speedups.so".
func ExtensionFilename(name, goos string) string {
	parts := strings.Split(name, ".")
	return filepath.Join(parts...) + SharedLibrarySuffix(goos)
}

func hostPlatform() string {
	return runtime.GOOS
}
