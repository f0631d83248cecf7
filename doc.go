// Package extbuild installs a package together with its optional native
// extensions, building as many of them as the host can compile.
//
// Native extensions are a performance layer over a package that works
// without them. A failed extension build therefore never stops the
// installation: the failure is logged as a warning and the package is
// installed with whatever did compile, or with no extensions at all.
//
// # Pipeline
//
//	Orchestrator.Run
//	├── Aggregator.Collect       one Descriptor per vendored Source
//	├── DirInstaller.Install     pure files, then extensions
//	│   └── OptionalBuildExt     demotes recoverable build errors
//	│       └── BuilderFactory   CC, Go, Makefile, CMake, Cargo, Zig
//	└── pure fallback            bare package, no extensions
//
// Failures are demoted at the narrowest scope that contains them:
//   - a source whose descriptor cannot be loaded contributes no extensions
//   - an extension failing with a recoverable ErrorKind is skipped
//   - a *PlatformError skips every extension of the build
//   - anything else escaping the install triggers the pure fallback
//
// Setting EXTBUILD_BUILD_RAISE=TRUE disables the pure fallback so CI sees
// the original error.
//
// # Basic Usage
//
//	pkg := extbuild.Package{
//	    Name:     "ddtrace",
//	    Version:  "0.20.0",
//	    Packages: []string{"ddtrace"},
//	}
//	build := extbuild.BuildConfig{ProjectDir: "/src/dd-trace-py"}
//
//	report, err := extbuild.New(pkg, build, "/site-packages").Run(ctx)
//	if err != nil {
//	    // the pure install failed too, or strict mode is on
//	}
//	fmt.Println(report.Outcome)
//
// # Descriptors
//
// Each vendored sub-project describes its extensions in a YAML file that is
// read in isolation, see LoadDescriptor:
//
//	version: 1
//	project: wrapt
//	extensions:
//	  - name: ddtrace.vendor.wrapt._wrappers
//	    sources: [_wrappers.c]
//
// # Platform Support
//
// Linux, macOS, the BSDs and Windows (MinGW). Targets without a native
// toolchain, such as js and wasip1, report a *PlatformError.
package extbuild
