package extbuild

import (
	"fmt"
	"os/exec"
	"strings"
)

// execLookPath resolves executables. Tests replace it to simulate a host
// without a given tool.
var execLookPath = exec.LookPath

// ToolChecker is an optional interface for builders that require external tools.
//
// Builders can implement this interface to declare their tool dependencies
// and verify that required tools are available before attempting to build.
//
// This is an opt-in interface - builders that don't implement it will
// work exactly as before, maintaining backward compatibility.
//
// # Platform Support
//
// Tool alternatives handle platform differences:
//   - FreeBSD: Uses gmake instead of make, clang instead of gcc
//   - Windows: Uses MinGW gcc, mingw32-make
//   - macOS: Uses clang by default
//   - Linux: Uses gcc/make by default
//
// The factory runs CheckTools before Build, so a host without a compiler
// fails with an *ExecError without running anything.
//
// # Example Implementation
//
//	func (b *CmakeBuilder) RequiredTools(spec *ExtensionSpec) []ToolRequirement {
//	    return []ToolRequirement{
//	        {Name: "cmake", Purpose: "CMake build system"},
//	        {Name: "ninja", Optional: true, Purpose: "Ninja build tool (faster than make)"},
//	    }
//	}
//
//	func (b *CmakeBuilder) CheckTools(spec *ExtensionSpec) error {
//	    return CheckRequiredTools(b.RequiredTools(spec))
//	}
//
// # Thread Safety
//
// Implementations should be thread-safe as they may be called concurrently.
type ToolChecker interface {
	// RequiredTools returns the list of tools this builder needs.
	//
	// The spec is passed because the tools may depend on it
	// (a C++ extension needs a C++ compiler).
	RequiredTools(spec *ExtensionSpec) []ToolRequirement

	// CheckTools verifies that all required tools are available.
	//
	// Returns nil if all required tools are found, or an *ExecError naming
	// the missing tools. Optional tools don't cause errors if missing.
	CheckTools(spec *ExtensionSpec) error
}

// ToolRequirement describes a build tool dependency.
//
// This structure allows builders to declare:
//   - Required tools (must be available)
//   - Optional tools (nice to have, but not required)
//   - Alternative tools (any one of several tools can satisfy the requirement)
//
// # Examples
//
// Required tool:
//
//	ToolRequirement{
//	    Name: "cmake",
//	    Purpose: "CMake build system",
//	}
//
// Optional tool:
//
//	ToolRequirement{
//	    Name: "ninja",
//	    Optional: true,
//	    Purpose: "Faster build than make",
//	}
//
// Tool with alternatives:
//
//	ToolRequirement{
//	    Name: "gcc",
//	    Alternatives: []string{"clang", "cc"},
//	    Purpose: "C compiler",
//	}
type ToolRequirement struct {
	// Name is the primary tool binary name (e.g., "cmake", "cargo").
	Name string

	// Alternatives are alternative tool names that can satisfy this requirement.
	// If any tool in Alternatives is found, the requirement is satisfied.
	// Example: []string{"gcc", "clang", "cc"}
	Alternatives []string

	// Optional indicates this tool is optional and won't cause an error if missing.
	// Optional tools are still checked and logged, but don't fail the build.
	Optional bool

	// Purpose is a human-readable description of why this tool is needed.
	// Example: "CMake build system" or "Rust compiler and package manager"
	Purpose string
}

// CheckToolAvailable checks if a tool is available in the system PATH.
//
// Returns nil if the tool is found, or an *ExecError naming the tool.
func CheckToolAvailable(tool string) error {
	if _, err := execLookPath(tool); err != nil {
		return &ExecError{Tool: tool, Err: err}
	}
	return nil
}

// ResolveTool returns the first available executable among the
// requirement's name and its alternatives.
func ResolveTool(req ToolRequirement) (string, error) {
	candidates := append([]string{req.Name}, req.Alternatives...)
	for _, candidate := range candidates {
		if path, err := execLookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", &ExecError{Tool: req.Name, Err: fmt.Errorf("none of %s found in PATH", strings.Join(candidates, ", "))}
}

// CheckRequiredTools verifies all required tools are available.
//
// The primary name is tried first, then each alternative in order.
// Optional tools never cause an error. All missing required tools are
// reported together in one *ExecError wrapping exec.ErrNotFound:
//
//	failed to execute cmake (CMake build system): executable file not found in $PATH
func CheckRequiredTools(requirements []ToolRequirement) error {
	var missingTools []string

	for _, req := range requirements {
		// Try the primary tool
		found := CheckToolAvailable(req.Name) == nil

		// If not found, try alternatives
		if !found && len(req.Alternatives) > 0 {
			for _, alt := range req.Alternatives {
				if CheckToolAvailable(alt) == nil {
					found = true
					break
				}
			}
		}

		// If still not found and not optional, record it
		if !found && !req.Optional {
			if req.Purpose != "" {
				missingTools = append(missingTools, fmt.Sprintf("%s (%s)", req.Name, req.Purpose))
			} else {
				missingTools = append(missingTools, req.Name)
			}
		}
	}

	if len(missingTools) == 0 {
		return nil
	}

	if len(missingTools) == 1 {
		return &ExecError{Tool: missingTools[0], Err: exec.ErrNotFound}
	}

	return &ExecError{
		Tool: strings.Join(missingTools, ", "),
		Err:  fmt.Errorf("missing required tools: %w", exec.ErrNotFound),
	}
}
