//go:build mage

package main

import (
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

var Default = Build

// Build compiles the extbuild binary into bin/.
func Build() error {
	return sh.RunV("go", "build", "-o", "bin/extbuild", "./cmd/extbuild")
}

// Test runs the unit tests.
func Test() error {
	return sh.RunV("go", "test", "./...")
}

// Install installs the project package with extbuild itself.
func Install() error {
	mg.Deps(Build)
	args := []string{"install"}
	if root := os.Getenv("EXTBUILD_ROOT"); root != "" {
		args = append(args, "--root", root)
	}
	return sh.RunV("bin/extbuild", args...)
}

// Clean removes binaries and build output.
func Clean() error {
	for _, dir := range []string{"bin", "build"} {
		if err := sh.Rm(dir); err != nil {
			return err
		}
	}
	return nil
}
